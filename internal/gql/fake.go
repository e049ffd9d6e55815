package gql

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dropforge/twitch-drops-go/internal/constants"
	"github.com/dropforge/twitch-drops-go/internal/model"
)

var (
	_ Operations = (*Client)(nil)
	_ Operations = (*Fake)(nil)
)

// Fake is a scriptable Operations implementation for tests. Unset
// function fields succeed with empty results. Claim and heartbeat
// calls are recorded for assertions.
type Fake struct {
	mu sync.Mutex

	ExecuteFunc              func(ctx context.Context, op constants.GQLOperation, variables map[string]any) (json.RawMessage, error)
	FetchActiveCampaignsFunc func(ctx context.Context) ([]*model.Campaign, error)
	FetchActiveDropsFunc     func(ctx context.Context) ([]*model.Drop, error)
	ClaimDropFunc            func(ctx context.Context, dropInstanceID string) (bool, error)
	SendWatchHeartbeatFunc   func(ctx context.Context, channelID string) (bool, error)

	claimCalls     []string
	heartbeatCalls []string
}

func (f *Fake) Execute(ctx context.Context, op constants.GQLOperation, variables map[string]any) (json.RawMessage, error) {
	if f.ExecuteFunc != nil {
		return f.ExecuteFunc(ctx, op, variables)
	}
	return json.RawMessage(`{}`), nil
}

func (f *Fake) FetchActiveCampaigns(ctx context.Context) ([]*model.Campaign, error) {
	if f.FetchActiveCampaignsFunc != nil {
		return f.FetchActiveCampaignsFunc(ctx)
	}
	return nil, nil
}

func (f *Fake) FetchActiveDrops(ctx context.Context) ([]*model.Drop, error) {
	if f.FetchActiveDropsFunc != nil {
		return f.FetchActiveDropsFunc(ctx)
	}
	return nil, nil
}

func (f *Fake) ClaimDrop(ctx context.Context, dropInstanceID string) (bool, error) {
	f.mu.Lock()
	f.claimCalls = append(f.claimCalls, dropInstanceID)
	f.mu.Unlock()

	if f.ClaimDropFunc != nil {
		return f.ClaimDropFunc(ctx, dropInstanceID)
	}
	return true, nil
}

func (f *Fake) SendWatchHeartbeat(ctx context.Context, channelID string) (bool, error) {
	f.mu.Lock()
	f.heartbeatCalls = append(f.heartbeatCalls, channelID)
	f.mu.Unlock()

	if f.SendWatchHeartbeatFunc != nil {
		return f.SendWatchHeartbeatFunc(ctx, channelID)
	}
	return true, nil
}

// ClaimCalls returns the drop instance IDs passed to ClaimDrop so far.
func (f *Fake) ClaimCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.claimCalls...)
}

// HeartbeatCalls returns the channel IDs passed to SendWatchHeartbeat
// so far.
func (f *Fake) HeartbeatCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.heartbeatCalls...)
}
