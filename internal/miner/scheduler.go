package miner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dropforge/twitch-drops-go/internal/constants"
	"github.com/dropforge/twitch-drops-go/internal/model"
	"github.com/dropforge/twitch-drops-go/internal/workerpool"
)

// runPollLoop drives the mining cycle until ctx is cancelled. A failed
// cycle shortens the next wait to the error backoff; an authentication
// failure escalates to the Error state and ends the loop.
func (o *Orchestrator) runPollLoop(ctx context.Context) error {
	// Start fetched campaigns moments ago, so the first cycle skips the
	// refetch and goes straight to sessions and claims.
	refetch := false

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if o.State() == model.StateRunning {
			if err := o.pollCycle(ctx, refetch); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if isAuthError(err) {
					o.escalate(ctx, err)
					return err
				}
				o.met.PollErrors.Inc()
				o.errs.Record("poll", err)
				o.log.Warn("Poll cycle failed, backing off",
					"error", err, "backoff", o.cfg.ErrorBackoff)
				ticker.Reset(o.cfg.ErrorBackoff)
			} else {
				ticker.Reset(o.cfg.PollInterval)
			}
		}
		refetch = true

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// pollCycle runs one iteration: refresh campaigns, reconcile watch
// sessions, then sweep and claim eligible drops.
func (o *Orchestrator) pollCycle(ctx context.Context, refetchCampaigns bool) error {
	o.met.PollCycles.Inc()
	o.mu.Lock()
	o.stats.PollCycles++
	o.stats.LastUpdate = time.Now()
	o.mu.Unlock()

	if refetchCampaigns {
		fetched, err := o.api.FetchActiveCampaigns(ctx)
		if err != nil {
			return fmt.Errorf("fetching campaigns: %w", err)
		}
		o.mergeCampaigns(ctx, fetched)
	}

	o.syncWatchSessions(ctx)

	return o.sweepDrops(ctx)
}

// mergeCampaigns folds freshly fetched campaigns into the tracked map,
// preserving claim progress observed earlier. Tracked campaigns missing
// from the response are marked ended so their watch tasks retire.
func (o *Orchestrator) mergeCampaigns(ctx context.Context, fetched []*model.Campaign) {
	var added, updated []*model.Campaign

	o.mu.Lock()
	seen := make(map[string]bool, len(fetched))
	for _, fc := range fetched {
		seen[fc.ID] = true
	}

	for _, fc := range filterByGame(fetched, o.targetGames) {
		cur, ok := o.campaigns[fc.ID]
		if !ok {
			o.campaigns[fc.ID] = fc
			added = append(added, fc.Clone())
			continue
		}
		status, total, claimed := cur.Status, cur.TotalRewards, cur.ClaimedRewards
		cur.Merge(fc)
		if cur.Status != status || cur.TotalRewards != total || cur.ClaimedRewards != claimed {
			updated = append(updated, cur.Clone())
		}
	}

	for id, c := range o.campaigns {
		if !seen[id] && c.Status == model.CampaignActive {
			c.Status = model.CampaignEnded
			updated = append(updated, c.Clone())
		}
	}

	active := 0
	for _, c := range o.campaigns {
		if c.IsActive() {
			active++
		}
	}
	o.met.ActiveCampaigns.Set(float64(active))
	o.mu.Unlock()

	for _, c := range added {
		o.log.Event(ctx, model.EventCampaignNew, "Campaign discovered",
			"campaign", c.Title, "game", c.GameName,
			"rewards", fmt.Sprintf("%d/%d", c.ClaimedRewards, c.TotalRewards))
		o.events.EmitCampaignUpdate(c)
	}
	for _, c := range updated {
		o.events.EmitCampaignUpdate(c)
	}
}

// sweepDrops refreshes the drop map from the API and claims everything
// eligible. Locally recorded claims survive stale responses; drops the API
// no longer offers become unclaimable.
func (o *Orchestrator) sweepDrops(ctx context.Context) error {
	fetched, err := o.api.FetchActiveDrops(ctx)
	if err != nil {
		return fmt.Errorf("fetching drops: %w", err)
	}

	o.mu.Lock()
	seen := make(map[string]bool, len(fetched))
	for _, fd := range fetched {
		seen[fd.ID] = true
		if cur, ok := o.drops[fd.ID]; ok {
			cur.Update(fd)
		} else {
			o.drops[fd.ID] = fd
		}
	}
	for id, d := range o.drops {
		if !seen[id] && !d.IsClaimed {
			d.IsClaimable = false
		}
	}

	// Eligibility reads the latest heartbeat-credited minutes under the
	// same lock the watch tasks write them.
	var eligible []*model.Drop
	for _, d := range o.drops {
		if d.Eligible() {
			eligible = append(eligible, d.Clone())
		}
	}
	o.mu.Unlock()

	if len(eligible) == 0 {
		return nil
	}
	return o.claimDrops(ctx, eligible)
}

// claimDrops issues claim mutations for all eligible drops concurrently.
// A failed claim leaves its drop tracked and eligible for the next cycle;
// only authentication failures propagate.
func (o *Orchestrator) claimDrops(ctx context.Context, eligible []*model.Drop) error {
	o.log.Info("Claiming eligible drops", "count", len(eligible))

	return workerpool.Run(ctx, eligible, constants.ClaimWorkers, func(ctx context.Context, d *model.Drop) error {
		claimed, err := o.api.ClaimDrop(ctx, d.InstanceID())
		if err != nil {
			if isAuthError(err) {
				return err
			}
			o.recordClaimFailure(d, err)
			return nil
		}
		if !claimed {
			o.recordClaimFailure(d, nil)
			return nil
		}
		o.recordClaim(ctx, d.ID)
		return nil
	})
}

func (o *Orchestrator) recordClaim(ctx context.Context, dropID string) {
	o.mu.Lock()
	d := o.drops[dropID]
	if d == nil || d.IsClaimed {
		o.mu.Unlock()
		return
	}
	d.MarkClaimed(time.Now())
	o.stats.DropsClaimed++
	var campaignTitle string
	if c := o.campaigns[d.CampaignID]; c != nil {
		c.RecordClaim()
		campaignTitle = c.Title
	}
	clone := d.Clone()
	o.mu.Unlock()

	o.met.DropsClaimed.Inc()
	o.events.EmitDropClaimed(clone)
	o.log.Event(ctx, model.EventDropClaim, "Drop claimed",
		"drop", clone.Name, "campaign", campaignTitle)
}

func (o *Orchestrator) recordClaimFailure(d *model.Drop, err error) {
	o.met.ClaimFailures.Inc()
	o.mu.Lock()
	o.stats.ClaimFailures++
	o.mu.Unlock()

	if err != nil {
		o.errs.Record("claim", err)
		o.log.Warn("Claim failed", "drop", d.Name, "error", err)
		return
	}
	o.log.Warn("Claim rejected", "drop", d.Name)
}

// ApplyDropProgress folds watch minutes pushed over PubSub into a tracked
// drop. Progress only moves forward; drops not yet discovered by a poll
// are ignored.
func (o *Orchestrator) ApplyDropProgress(dropID string, minutes float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	d := o.drops[dropID]
	if d == nil || d.IsClaimed {
		return
	}
	if minutes > d.MinutesWatched {
		d.MinutesWatched = minutes
	}
}

// MarkDropReady records a pushed claim notification. The server considers
// the drop earned, so local progress is raised to the requirement and the
// entitlement is stored for the claim on the next poll cycle.
func (o *Orchestrator) MarkDropReady(dropID, instanceID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	d := o.drops[dropID]
	if d == nil || d.IsClaimed {
		return
	}
	d.IsClaimable = true
	if instanceID != "" {
		d.EntitlementID = instanceID
	}
	if d.MinutesWatched < float64(d.RequiredMinutes) {
		d.MinutesWatched = float64(d.RequiredMinutes)
	}
}

// escalate moves the orchestrator to the Error state after an
// authentication failure. The caller returns its error afterwards, which
// cancels the run group and retires every watch task.
func (o *Orchestrator) escalate(ctx context.Context, err error) {
	o.errs.Record("auth", err)
	o.mu.Lock()
	o.stats.SessionEnd = time.Now()
	o.setStateLocked(model.StateError, err.Error())
	o.mu.Unlock()
	o.log.Event(ctx, model.EventMinerError, "Authentication failed, mining halted", "error", err)
}

// matchesGame reports whether the campaign's game title is in the filter.
// An empty filter matches everything.
func matchesGame(c *model.Campaign, games []string) bool {
	if len(games) == 0 {
		return true
	}
	for _, g := range games {
		if strings.EqualFold(c.GameName, g) {
			return true
		}
	}
	return false
}

func filterByGame(campaigns []*model.Campaign, games []string) []*model.Campaign {
	if len(games) == 0 {
		return campaigns
	}
	out := make([]*model.Campaign, 0, len(campaigns))
	for _, c := range campaigns {
		if matchesGame(c, games) {
			out = append(out, c)
		}
	}
	return out
}
