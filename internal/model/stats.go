package model

import "time"

// Statistics holds monotonically accumulating mining counters. Counters only
// ever increase; timestamps record session boundaries. The orchestrator owns
// the single mutable instance and hands out copies.
type Statistics struct {
	DropsClaimed    int `json:"drops_claimed"`
	ClaimFailures   int `json:"claim_failures"`
	ChannelsWatched int `json:"channels_watched"`
	SessionCount    int `json:"session_count"`
	PollCycles      int `json:"poll_cycles"`

	SessionStart time.Time `json:"session_start,omitempty"`
	SessionEnd   time.Time `json:"session_end,omitempty"`
	LastUpdate   time.Time `json:"last_update,omitempty"`
}

// MiningDuration returns how long the current or last mining session ran.
func (s *Statistics) MiningDuration() time.Duration {
	if s.SessionStart.IsZero() {
		return 0
	}
	end := s.SessionEnd
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.SessionStart)
}
