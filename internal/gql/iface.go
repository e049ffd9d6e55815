package gql

import (
	"context"
	"encoding/json"

	"github.com/dropforge/twitch-drops-go/internal/constants"
	"github.com/dropforge/twitch-drops-go/internal/model"
)

// Operations is the interface for the GQL methods the engine consumes.
// *Client satisfies this interface; *Fake provides a scriptable
// implementation for tests.
type Operations interface {
	Execute(ctx context.Context, op constants.GQLOperation, variables map[string]any) (json.RawMessage, error)

	FetchActiveCampaigns(ctx context.Context) ([]*model.Campaign, error)
	FetchActiveDrops(ctx context.Context) ([]*model.Drop, error)
	ClaimDrop(ctx context.Context, dropInstanceID string) (bool, error)
	SendWatchHeartbeat(ctx context.Context, channelID string) (bool, error)
}
