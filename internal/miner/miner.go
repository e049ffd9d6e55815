// Package miner implements the drop-mining orchestrator. It owns the
// lifecycle state machine, the campaign/drop poll cycle, the per-channel
// watch heartbeat tasks, and the concurrent claim fan-out, wiring together
// authentication, the GQL client, event dispatch, metrics, and optional
// chat presence.
package miner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropforge/twitch-drops-go/internal/auth"
	"github.com/dropforge/twitch-drops-go/internal/constants"
	"github.com/dropforge/twitch-drops-go/internal/errtrack"
	"github.com/dropforge/twitch-drops-go/internal/events"
	"github.com/dropforge/twitch-drops-go/internal/gql"
	"github.com/dropforge/twitch-drops-go/internal/logger"
	"github.com/dropforge/twitch-drops-go/internal/metrics"
	"github.com/dropforge/twitch-drops-go/internal/model"
	"github.com/dropforge/twitch-drops-go/internal/utils"
)

// Orchestrator lifecycle errors.
var (
	ErrNoCampaigns    = errors.New("no active campaigns match the target filter")
	ErrAlreadyRunning = errors.New("miner already running")
	ErrNotRunning     = errors.New("miner not running")
)

// Authenticator is the slice of the token manager the orchestrator needs.
// *auth.Manager satisfies it.
type Authenticator interface {
	EnsureFreshToken(ctx context.Context) error
}

// Presence mirrors watch sessions into an optional chat layer.
// Implementations must not block. A nil Presence disables mirroring.
type Presence interface {
	Join(channel string)
	Part(channel string)
}

// Config carries the orchestrator timing knobs. Zero values fall back to
// the package defaults.
type Config struct {
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	ErrorBackoff      time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = constants.DefaultPollInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = constants.DefaultHeartbeatInterval
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = constants.ErrorBackoff
	}
	return c
}

// Orchestrator drives drop mining for one account. A single poll goroutine
// owns the campaign and drop maps; watch tasks only credit watch minutes.
// All shared state is guarded by mu, so Status may be called from any
// goroutine. It is safe for concurrent use.
type Orchestrator struct {
	cfg    Config
	api    gql.Operations
	auth   Authenticator
	events *events.Dispatcher
	errs   *errtrack.Tracker
	met    *metrics.Metrics
	log    *logger.Logger

	mu          sync.Mutex
	state       model.State
	lastErr     string
	targetGames []string
	campaigns   map[string]*model.Campaign
	drops       map[string]*model.Drop
	sessions    map[string]*model.WatchSession
	watchers    map[string]*watchTask
	stats       model.Statistics
	presence    Presence

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates an Orchestrator in the Idle state.
func New(cfg Config, api gql.Operations, authenticator Authenticator, dispatcher *events.Dispatcher, tracker *errtrack.Tracker, met *metrics.Metrics, log *logger.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg.withDefaults(),
		api:       api,
		auth:      authenticator,
		events:    dispatcher,
		errs:      tracker,
		met:       met,
		log:       log.WithScope("miner"),
		state:     model.StateIdle,
		campaigns: make(map[string]*model.Campaign),
		drops:     make(map[string]*model.Drop),
		sessions:  make(map[string]*model.WatchSession),
		watchers:  make(map[string]*watchTask),
	}
	o.met.SetMinerState(model.StateIdle)
	return o
}

// SetPresence wires the optional chat layer. Call before Start.
func (o *Orchestrator) SetPresence(p Presence) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.presence = p
}

// Start begins a mining session. It is valid only from the Idle, Stopped,
// or Error states. When targetGames is non-empty, only campaigns for those
// games (matched case-insensitively on title) are mined; an empty filter
// mines everything. Start returns ErrNoCampaigns and falls back to Idle
// when nothing matches.
func (o *Orchestrator) Start(ctx context.Context, targetGames ...string) error {
	o.mu.Lock()
	if !o.state.CanStart() {
		defer o.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrAlreadyRunning, o.state)
	}
	o.setStateLocked(model.StateInitializing, "")
	o.targetGames = append([]string(nil), targetGames...)
	for id, s := range o.sessions {
		if !s.Active() {
			delete(o.sessions, id)
		}
	}
	o.mu.Unlock()

	o.log.Info("🚀 Initializing mining session", "target_games", targetGames)

	if err := o.auth.EnsureFreshToken(ctx); err != nil {
		err = fmt.Errorf("ensuring fresh token: %w", err)
		o.errs.Record("auth", err)
		o.mu.Lock()
		o.setStateLocked(model.StateError, err.Error())
		o.mu.Unlock()
		return err
	}

	fetched, err := o.api.FetchActiveCampaigns(ctx)
	if err != nil {
		err = fmt.Errorf("fetching campaigns: %w", err)
		o.errs.Record("poll", err)
		o.mu.Lock()
		if isAuthError(err) {
			o.setStateLocked(model.StateError, err.Error())
		} else {
			o.setStateLocked(model.StateIdle, err.Error())
		}
		o.mu.Unlock()
		return err
	}

	matched := filterByGame(fetched, targetGames)
	if len(matched) == 0 {
		o.mu.Lock()
		o.setStateLocked(model.StateIdle, "")
		o.mu.Unlock()
		o.log.Warn("No campaigns match the target filter",
			"fetched", len(fetched), "target_games", targetGames)
		return ErrNoCampaigns
	}

	o.mergeCampaigns(ctx, fetched)

	o.mu.Lock()
	// The mining loop must outlive the caller's context: Start may be
	// invoked from a short-lived HTTP request.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(runCtx)
	o.cancel = cancel
	o.group = g
	o.stats.SessionCount++
	o.stats.SessionStart = time.Now()
	o.stats.SessionEnd = time.Time{}
	o.setStateLocked(model.StateRunning, "")
	g.Go(func() error {
		return o.runPollLoop(gctx)
	})
	o.mu.Unlock()

	o.log.Event(ctx, model.EventMinerStart, "Mining started",
		"campaigns", len(matched), "poll_interval", o.cfg.PollInterval)
	return nil
}

// Stop cancels the polling loop and every watch task, waits for their
// cooperative exit, and records the session end time. Valid only while
// Running or Paused.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if o.state != model.StateRunning && o.state != model.StatePaused {
		defer o.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrNotRunning, o.state)
	}
	cancel, group := o.cancel, o.group
	o.mu.Unlock()

	cancel()
	// Wait drains the poll loop and every watch task; a terminal loop
	// error was already recorded and surfaced through the state.
	_ = group.Wait()

	o.mu.Lock()
	o.stats.SessionEnd = time.Now()
	claimed := o.stats.DropsClaimed
	duration := o.stats.MiningDuration()
	o.setStateLocked(model.StateStopped, "")
	o.mu.Unlock()

	o.log.Event(context.Background(), model.EventMinerStop, "Mining stopped",
		"drops_claimed", claimed, "duration", duration.Round(time.Second))
	return nil
}

// Pause suspends poll cycles and heartbeat work while keeping their tickers
// and goroutines alive. Valid only while Running.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != model.StateRunning {
		return fmt.Errorf("%w: state %s", ErrNotRunning, o.state)
	}
	o.setStateLocked(model.StatePaused, "")
	o.log.Info("⏸️ Mining paused")
	return nil
}

// Resume continues a paused session. Valid only while Paused.
func (o *Orchestrator) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != model.StatePaused {
		return fmt.Errorf("%w: state %s", ErrNotRunning, o.state)
	}
	o.setStateLocked(model.StateRunning, "")
	o.log.Info("▶️ Mining resumed")
	return nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() model.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Snapshot is a point-in-time copy of the orchestrator's observable state.
type Snapshot struct {
	State           model.State           `json:"state"`
	LastError       string                `json:"last_error,omitempty"`
	ActiveCampaigns int                   `json:"active_campaigns"`
	TotalCampaigns  int                   `json:"total_campaigns"`
	ActiveSessions  int                   `json:"active_sessions"`
	TrackedDrops    int                   `json:"tracked_drops"`
	Statistics      model.Statistics      `json:"statistics"`
	Sessions        []*model.WatchSession `json:"sessions,omitempty"`
	RecentErrors    []errtrack.Entry      `json:"recent_errors,omitempty"`
}

// Status returns a consistent snapshot. Safe to call from any goroutine.
func (o *Orchestrator) Status() Snapshot {
	o.mu.Lock()
	snap := Snapshot{
		State:        o.state,
		LastError:    o.lastErr,
		TrackedDrops: len(o.drops),
		Statistics:   o.stats,
	}
	for _, c := range o.campaigns {
		snap.TotalCampaigns++
		if c.IsActive() {
			snap.ActiveCampaigns++
		}
	}
	for _, s := range o.sessions {
		cp := s.Clone()
		cp.MinutesWatched = utils.FloatRound(cp.MinutesWatched, 2)
		snap.Sessions = append(snap.Sessions, cp)
		if s.Active() {
			snap.ActiveSessions++
		}
	}
	o.mu.Unlock()

	sort.Slice(snap.Sessions, func(i, j int) bool {
		return snap.Sessions[i].StartedAt.Before(snap.Sessions[j].StartedAt)
	})
	snap.RecentErrors = o.errs.Recent(10)
	return snap
}

// Campaigns returns copies of every tracked campaign, sorted by title.
func (o *Orchestrator) Campaigns() []*model.Campaign {
	o.mu.Lock()
	out := make([]*model.Campaign, 0, len(o.campaigns))
	for _, c := range o.campaigns {
		out = append(out, c.Clone())
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Title < out[j].Title
	})
	return out
}

// setStateLocked transitions the state machine, updates the gauge, and
// emits a status-change event. Callers hold o.mu.
func (o *Orchestrator) setStateLocked(s model.State, errMsg string) {
	o.state = s
	o.lastErr = errMsg
	o.met.SetMinerState(s)
	o.events.EmitStatusChange(s, errMsg)
}

// isAuthError reports whether err means the credentials are unusable and
// mining must halt until re-authentication.
func isAuthError(err error) bool {
	return errors.Is(err, auth.ErrNotAuthenticated) || errors.Is(err, auth.ErrRefreshFailed)
}
