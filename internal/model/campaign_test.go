package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeCampaign(claimed, total int) *Campaign {
	c := NewCampaign("c1", "Rust Drops", "g1", "Rust", CampaignActive,
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour),
		[]Channel{{ID: "ch-1", Login: "streamer_one"}})
	c.TotalRewards = total
	c.ClaimedRewards = claimed
	return c
}

func TestCampaignMergeKeepsClaimProgress(t *testing.T) {
	local := activeCampaign(2, 3)

	// A stale response reporting fewer claims must not roll progress back.
	stale := activeCampaign(1, 3)
	local.Merge(stale)
	assert.Equal(t, 2, local.ClaimedRewards)

	// A response reporting more claims moves progress forward.
	ahead := activeCampaign(3, 3)
	local.Merge(ahead)
	assert.Equal(t, 3, local.ClaimedRewards)
}

func TestCampaignMergeClampsToTotal(t *testing.T) {
	local := activeCampaign(5, 5)

	shrunk := activeCampaign(0, 3)
	local.Merge(shrunk)

	assert.Equal(t, 3, local.TotalRewards)
	assert.Equal(t, 3, local.ClaimedRewards)
	assert.False(t, local.HasUnclaimedRewards())
}

func TestCampaignMergeRefreshesMetadata(t *testing.T) {
	local := activeCampaign(0, 3)

	fresh := activeCampaign(0, 3)
	fresh.Title = "Rust Drops Round 2"
	fresh.Status = CampaignEnded
	fresh.Channels = []Channel{{ID: "ch-2", Login: "streamer_two"}}

	local.Merge(fresh)

	assert.Equal(t, "Rust Drops Round 2", local.Title)
	assert.Equal(t, CampaignEnded, local.Status)
	assert.False(t, local.IsActive())
	require.Len(t, local.Channels, 1)
	assert.Equal(t, "ch-2", local.Channels[0].ID)
}

func TestCampaignRecordClaimClamps(t *testing.T) {
	c := activeCampaign(0, 2)

	c.RecordClaim()
	c.RecordClaim()
	c.RecordClaim()

	assert.Equal(t, 2, c.ClaimedRewards)
	assert.False(t, c.HasUnclaimedRewards())
}

func TestCampaignHasChannel(t *testing.T) {
	c := activeCampaign(0, 1)

	assert.True(t, c.HasChannel("ch-1"))
	assert.False(t, c.HasChannel("ch-2"))
	assert.False(t, c.HasChannel(""))
}

func TestCampaignCloneIsIndependent(t *testing.T) {
	c := activeCampaign(1, 3)

	cp := c.Clone()
	cp.ClaimedRewards = 99
	cp.Channels[0].ID = "mutated"

	assert.Equal(t, 1, c.ClaimedRewards)
	assert.Equal(t, "ch-1", c.Channels[0].ID)
	assert.True(t, c.Equal(cp))
}

func TestCampaignEqualByID(t *testing.T) {
	c := activeCampaign(0, 1)

	other := activeCampaign(0, 5)
	other.Title = "Different title"
	assert.True(t, c.Equal(other))

	other.ID = "c2"
	assert.False(t, c.Equal(other))
	assert.False(t, c.Equal(nil))
}
