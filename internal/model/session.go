package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WatchSession tracks one channel being "watched" by a heartbeat task.
// At most one active session exists per channel.
type WatchSession struct {
	ID             string     `json:"id"`
	ChannelID      string     `json:"channel_id"`
	ChannelName    string     `json:"channel_name"`
	CampaignID     string     `json:"campaign_id"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	MinutesWatched float64    `json:"minutes_watched"`
}

// NewWatchSession creates a session for the given channel.
func NewWatchSession(channelID, channelName, campaignID string) *WatchSession {
	return &WatchSession{
		ID:          uuid.NewString(),
		ChannelID:   channelID,
		ChannelName: channelName,
		CampaignID:  campaignID,
		StartedAt:   time.Now(),
	}
}

// Active returns true while the session has not ended.
func (s *WatchSession) Active() bool {
	return s.EndedAt == nil
}

// End marks the session as finished at the given time.
func (s *WatchSession) End(now time.Time) {
	if s.EndedAt == nil {
		s.EndedAt = &now
	}
}

// Clone returns a copy safe to hand to other goroutines.
func (s *WatchSession) Clone() *WatchSession {
	cp := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		cp.EndedAt = &t
	}
	return &cp
}

// String returns a human-readable representation of the session.
func (s *WatchSession) String() string {
	return fmt.Sprintf("WatchSession(channel=%s, campaign=%s, watched=%.1f min)",
		s.ChannelID, s.CampaignID, s.MinutesWatched)
}
