package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func claimableDrop(watched float64, required int) *Drop {
	d := NewDrop("d1", "ent-d1", "c1", "Skin Crate", required,
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	d.MinutesWatched = watched
	d.IsClaimable = true
	return d
}

func TestDropEligible(t *testing.T) {
	tests := []struct {
		name string
		drop *Drop
		want bool
	}{
		{"enough watch time", claimableDrop(30, 30), true},
		{"over the bar", claimableDrop(45.5, 30), true},
		{"not enough watch time", claimableDrop(29.5, 30), false},
		{"zero progress", claimableDrop(0, 30), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.drop.Eligible())
		})
	}

	t.Run("already claimed", func(t *testing.T) {
		d := claimableDrop(60, 30)
		d.IsClaimed = true
		assert.False(t, d.Eligible())
	})

	t.Run("not claimable", func(t *testing.T) {
		d := claimableDrop(60, 30)
		d.IsClaimable = false
		assert.False(t, d.Eligible())
	})
}

func TestDropInstanceID(t *testing.T) {
	d := claimableDrop(0, 30)
	assert.Equal(t, "ent-d1", d.InstanceID())

	d.EntitlementID = ""
	assert.Equal(t, "d1", d.InstanceID())
}

func TestDropUpdateKeepsLocalProgress(t *testing.T) {
	d := claimableDrop(10, 30)

	// The API lags behind locally credited minutes.
	stale := claimableDrop(5, 30)
	d.Update(stale)
	assert.InDelta(t, 10, d.MinutesWatched, 1e-9)

	// The API runs ahead, for example after watching elsewhere.
	ahead := claimableDrop(15, 30)
	d.Update(ahead)
	assert.InDelta(t, 15, d.MinutesWatched, 1e-9)
}

func TestDropUpdateNeverRollsBackClaim(t *testing.T) {
	d := claimableDrop(30, 30)
	d.MarkClaimed(time.Now())

	stale := claimableDrop(30, 30)
	d.Update(stale)

	assert.True(t, d.IsClaimed)
	assert.False(t, d.IsClaimable)
	assert.False(t, d.Eligible())
}

func TestDropUpdateAdoptsClaimFromAPI(t *testing.T) {
	d := claimableDrop(30, 30)

	fresh := claimableDrop(30, 30)
	fresh.IsClaimed = true
	d.Update(fresh)

	assert.True(t, d.IsClaimed)
	assert.False(t, d.IsClaimable)
}

func TestDropUpdateKeepsPushedEntitlement(t *testing.T) {
	d := claimableDrop(30, 30)
	d.EntitlementID = "inst-9"

	// Inventory has not exposed the instance yet.
	fresh := claimableDrop(30, 30)
	fresh.EntitlementID = ""
	d.Update(fresh)
	assert.Equal(t, "inst-9", d.EntitlementID)

	// Once it does, the API value wins.
	fresh.EntitlementID = "ent-new"
	d.Update(fresh)
	assert.Equal(t, "ent-new", d.EntitlementID)
}

func TestDropMarkClaimed(t *testing.T) {
	d := claimableDrop(30, 30)
	now := time.Now()

	d.MarkClaimed(now)

	assert.True(t, d.IsClaimed)
	assert.False(t, d.IsClaimable)
	require.NotNil(t, d.ClaimedAt)
	assert.Equal(t, now, *d.ClaimedAt)
}

func TestDropProgress(t *testing.T) {
	assert.Equal(t, 0, claimableDrop(0, 30).Progress())
	assert.Equal(t, 50, claimableDrop(15, 30).Progress())
	assert.Equal(t, 100, claimableDrop(30, 30).Progress())
}

func TestDropCloneIsIndependent(t *testing.T) {
	d := claimableDrop(30, 30)
	d.MarkClaimed(time.Now())

	cp := d.Clone()
	later := time.Now().Add(time.Hour)
	*cp.ClaimedAt = later
	cp.MinutesWatched = 999

	assert.NotEqual(t, later, *d.ClaimedAt)
	assert.InDelta(t, 30, d.MinutesWatched, 1e-9)
	assert.True(t, d.Equal(cp))
}
