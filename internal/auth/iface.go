package auth

import "context"

// Provider is the credential interface consumed by the GQL client.
// *Manager satisfies this interface.
type Provider interface {
	AuthHeaders(ctx context.Context) (map[string]string, error)
}
