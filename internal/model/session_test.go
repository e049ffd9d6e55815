package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchSessionLifecycle(t *testing.T) {
	s := NewWatchSession("ch-1", "streamer_one", "c1")

	assert.NotEmpty(t, s.ID)
	assert.True(t, s.Active())
	assert.Nil(t, s.EndedAt)

	other := NewWatchSession("ch-1", "streamer_one", "c1")
	assert.NotEqual(t, s.ID, other.ID)

	first := time.Now()
	s.End(first)
	require.NotNil(t, s.EndedAt)
	assert.False(t, s.Active())
	assert.Equal(t, first, *s.EndedAt)

	// Ending twice keeps the original end time.
	s.End(first.Add(time.Minute))
	assert.Equal(t, first, *s.EndedAt)
}

func TestWatchSessionCloneIsIndependent(t *testing.T) {
	s := NewWatchSession("ch-1", "streamer_one", "c1")
	s.MinutesWatched = 12.5
	s.End(time.Now())

	cp := s.Clone()
	cp.MinutesWatched = 99
	*cp.EndedAt = cp.EndedAt.Add(time.Hour)

	assert.InDelta(t, 12.5, s.MinutesWatched, 1e-9)
	assert.NotEqual(t, *cp.EndedAt, *s.EndedAt)
}

func TestStatisticsMiningDuration(t *testing.T) {
	var s Statistics
	assert.Equal(t, time.Duration(0), s.MiningDuration())

	s.SessionStart = time.Now().Add(-10 * time.Minute)
	s.SessionEnd = s.SessionStart.Add(7 * time.Minute)
	assert.Equal(t, 7*time.Minute, s.MiningDuration())

	// A running session measures against the clock.
	s.SessionEnd = time.Time{}
	assert.Greater(t, s.MiningDuration(), 9*time.Minute)
}
