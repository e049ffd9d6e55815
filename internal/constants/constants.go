// Package constants defines the Twitch API endpoints, OAuth scopes, GQL
// operation definitions, and default timeout/interval values used throughout
// the drops engine.
package constants

import "time"

const (
	// AuthorizeURL is the Twitch OAuth2 authorization endpoint.
	AuthorizeURL = "https://id.twitch.tv/oauth2/authorize"
	// TokenURL is the Twitch OAuth2 token endpoint, used for both the
	// authorization-code exchange and refresh grants.
	TokenURL = "https://id.twitch.tv/oauth2/token"
	// ValidateURL is the Twitch OAuth2 token introspection endpoint.
	ValidateURL = "https://id.twitch.tv/oauth2/validate"
	// RevokeURL is the Twitch OAuth2 token revocation endpoint.
	RevokeURL = "https://id.twitch.tv/oauth2/revoke"
	// GQLURL is the Twitch GraphQL API endpoint.
	GQLURL = "https://gql.twitch.tv/gql"
	// PubSubURL is the Twitch PubSub WebSocket endpoint.
	PubSubURL = "wss://pubsub-edge.twitch.tv/v1"
)

const (
	// TopicUserDropEvents is the PubSub topic carrying drop progress and
	// claim pushes for the signed-in user. Suffixed with the user ID.
	TopicUserDropEvents = "user-drop-events"
	// PubSubPingInterval is the interval between PubSub PING frames.
	PubSubPingInterval = 4 * time.Minute
	// PubSubPongTimeout is how long to wait for a PONG before the
	// connection is considered dead.
	PubSubPongTimeout = 5 * time.Minute
)

// OAuthScopes are the scopes requested during authorization. Drops inventory
// and claims only need a user token; the chat scopes cover optional IRC
// presence on watched channels.
const OAuthScopes = "user:read:email chat:read chat:edit"

// DefaultUserAgent is the user-agent string used for API requests.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	// Twitch usually responds within 2-5s; retrying sooner beats waiting.
	DefaultHTTPTimeout = 15 * time.Second
	// DefaultMaxRetries is the default number of attempts for GQL requests.
	DefaultMaxRetries = 3
	// TokenRefreshSkew is how long before expiry a token is refreshed.
	TokenRefreshSkew = 60 * time.Second
	// DefaultPollInterval is the interval between campaign/drop poll cycles.
	DefaultPollInterval = 300 * time.Second
	// ErrorBackoff is the shortened sleep after a failed poll cycle.
	ErrorBackoff = 30 * time.Second
	// DefaultHeartbeatInterval is the interval between watch heartbeats.
	DefaultHeartbeatInterval = 30 * time.Second
	// ClaimWorkers bounds how many claim mutations run concurrently.
	ClaimWorkers = 4
	// BreakerThreshold is the number of consecutive GQL failures that opens
	// the circuit breaker.
	BreakerThreshold = 5
	// BreakerCooldown is how long the circuit breaker stays open.
	BreakerCooldown = 60 * time.Second
	// DefaultGracefulShutdownTimeout is the timeout for graceful HTTP server shutdown.
	DefaultGracefulShutdownTimeout = 5 * time.Second
)

// DefaultTokenFile is the token snapshot location relative to the data dir.
const DefaultTokenFile = "token.json"

// GQLOperation represents a GQL query or mutation with its operation name.
type GQLOperation struct {
	OperationName string
	Query         string
}

// GQL operations issued by the engine. Queries follow the shapes documented
// in the TwitchDropsMiner GQL wiki.
var (
	GQLCampaignsForUser = GQLOperation{
		OperationName: "CampaignsForUser",
		Query:         `query CampaignsForUser { currentUser { id campaigns(first: 50) { edges { node { id title status startedAt endedAt game { id name } rewards { totalCount claimedCount } channels(first: 20) { edges { node { id login displayName } } } } } } } }`,
	}
	GQLDropsEntitlementStatus = GQLOperation{
		OperationName: "DropsEntitlementStatus",
		Query:         `query DropsEntitlementStatus { currentUser { id drops(first: 100) { edges { node { id entitlementId isClaimed isClaimable name requiredMinutesWatched minutesWatched availableAt expiresAt game { id name } campaign { id title status } } } } } }`,
	}
	GQLFulfillDropReward = GQLOperation{
		OperationName: "FulfillDropReward",
		Query:         `mutation FulfillDropReward($input: FulfillDropRewardInput!) { fulfillDropReward(input: $input) { drop { id isClaimed } } }`,
	}
	GQLReportStreamWatch = GQLOperation{
		OperationName: "ReportStreamWatch",
		Query:         `mutation ReportStreamWatch($input: ReportStreamWatchInput!) { reportStreamWatch(input: $input) { success } }`,
	}
)

// AllGQLOperations returns every defined GQL operation for iteration.
func AllGQLOperations() []GQLOperation {
	return []GQLOperation{
		GQLCampaignsForUser,
		GQLDropsEntitlementStatus,
		GQLFulfillDropReward,
		GQLReportStreamWatch,
	}
}
