package miner

import (
	"context"
	"fmt"
	"time"

	"github.com/dropforge/twitch-drops-go/internal/model"
)

// HeartbeatCredit returns the watch minutes credited for one acknowledged
// heartbeat sent at the given interval: exactly the interval expressed in
// minutes, so the default 30s cadence credits 0.5 minutes per beat.
func HeartbeatCredit(interval time.Duration) float64 {
	return interval.Minutes()
}

// watchTask pairs a watch goroutine's cancel func with the session it
// owns, so retirement and cleanup can tell concurrent tasks for the same
// channel apart.
type watchTask struct {
	cancel context.CancelFunc
	sess   *model.WatchSession
}

// WatchChannel runs a heartbeat loop for one channel until the duration
// elapses or ctx is cancelled; a non-positive duration watches until
// cancellation. The poll cycle manages watch sessions automatically, so
// this is only needed for ad-hoc watching.
func (o *Orchestrator) WatchChannel(ctx context.Context, channelID string, duration time.Duration) {
	sess := model.NewWatchSession(channelID, channelID, "")

	o.mu.Lock()
	if old := o.sessions[channelID]; old != nil && old.Active() {
		old.End(time.Now())
		o.met.ActiveWatchSessions.Dec()
	}
	o.sessions[channelID] = sess
	o.stats.ChannelsWatched++
	o.met.ActiveWatchSessions.Inc()
	o.mu.Unlock()

	o.runWatchTask(ctx, sess, duration)
}

// syncWatchSessions reconciles watch tasks with the campaign map: every
// active targeted campaign with unclaimed rewards gets one watched channel,
// and tasks whose campaigns no longer qualify are retired.
func (o *Orchestrator) syncWatchSessions(ctx context.Context) {
	type startInfo struct {
		sess  *model.WatchSession
		title string
		wctx  context.Context
	}
	var starts []startInfo

	o.mu.Lock()
	needed := make(map[string]bool, len(o.watchers))
	for _, c := range o.campaigns {
		if !c.IsActive() || !c.HasUnclaimedRewards() || len(c.Channels) == 0 ||
			!matchesGame(c, o.targetGames) {
			continue
		}

		watched := false
		for _, ch := range c.Channels {
			if _, ok := o.watchers[ch.ID]; ok {
				needed[ch.ID] = true
				watched = true
			}
		}
		if watched {
			continue
		}

		ch := c.Channels[0]
		name := ch.Login
		if name == "" {
			name = ch.ID
		}
		sess := model.NewWatchSession(ch.ID, name, c.ID)
		wctx, cancel := context.WithCancel(ctx)
		o.watchers[ch.ID] = &watchTask{cancel: cancel, sess: sess}
		o.sessions[ch.ID] = sess
		o.stats.ChannelsWatched++
		o.met.ActiveWatchSessions.Inc()
		needed[ch.ID] = true
		starts = append(starts, startInfo{sess: sess, title: c.Title, wctx: wctx})
	}

	for id, w := range o.watchers {
		if !needed[id] {
			w.cancel()
		}
	}
	group := o.group
	p := o.presence
	o.mu.Unlock()

	for _, si := range starts {
		group.Go(func() error {
			o.runWatchTask(si.wctx, si.sess, 0)
			return nil
		})
		o.log.Event(ctx, model.EventWatchStart, "Watching channel",
			"channel", si.sess.ChannelName, "campaign", si.title)
		if p != nil {
			p.Join(si.sess.ChannelName)
		}
	}
}

// runWatchTask sends heartbeats for one session until cancellation or the
// optional duration elapses. Heartbeat work is gated on the Running state;
// each acknowledged beat credits HeartbeatCredit minutes.
func (o *Orchestrator) runWatchTask(ctx context.Context, sess *model.WatchSession, duration time.Duration) {
	defer o.finishWatchTask(sess)

	interval := o.cfg.HeartbeatInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-ticker.C:
			if o.State() != model.StateRunning {
				continue
			}
			acked, err := o.api.SendWatchHeartbeat(ctx, sess.ChannelID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				o.errs.Record("heartbeat", err)
				o.log.Debug("Heartbeat failed", "channel", sess.ChannelName, "error", err)
				continue
			}
			if !acked {
				o.log.Debug("Heartbeat not acknowledged", "channel", sess.ChannelName)
				continue
			}
			o.met.Heartbeats.Inc()
			o.creditWatchTime(sess, HeartbeatCredit(interval))
		}
	}
}

// creditWatchTime adds acknowledged watch minutes to the session and to
// the unclaimed drops of every active campaign the channel participates in.
func (o *Orchestrator) creditWatchTime(sess *model.WatchSession, minutes float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	sess.MinutesWatched += minutes
	for _, c := range o.campaigns {
		if !c.IsActive() || !c.HasChannel(sess.ChannelID) {
			continue
		}
		for _, d := range o.drops {
			if d.CampaignID == c.ID && !d.IsClaimed {
				d.MinutesWatched += minutes
			}
		}
	}
}

// finishWatchTask ends the session and drops the watcher bookkeeping once
// a watch goroutine exits.
func (o *Orchestrator) finishWatchTask(sess *model.WatchSession) {
	o.mu.Lock()
	if w := o.watchers[sess.ChannelID]; w != nil && w.sess == sess {
		delete(o.watchers, sess.ChannelID)
	}
	ended := false
	var watched string
	if sess.Active() {
		sess.End(time.Now())
		o.met.ActiveWatchSessions.Dec()
		watched = fmt.Sprintf("%.1f min", sess.MinutesWatched)
		ended = true
	}
	p := o.presence
	o.mu.Unlock()

	if !ended {
		return
	}
	o.log.Event(context.Background(), model.EventWatchStop, "Stopped watching",
		"channel", sess.ChannelName, "watched", watched)
	if p != nil {
		p.Part(sess.ChannelName)
	}
}
