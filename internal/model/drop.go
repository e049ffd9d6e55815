package model

import (
	"fmt"
	"time"

	"github.com/dropforge/twitch-drops-go/internal/utils"
)

// Drop represents a single time-based drop reward within a campaign.
type Drop struct {
	ID              string  `json:"id"`
	EntitlementID   string  `json:"entitlement_id"`
	CampaignID      string  `json:"campaign_id"`
	Name            string  `json:"name"`
	RequiredMinutes int     `json:"required_minutes_watched"`
	MinutesWatched  float64 `json:"minutes_watched"`

	AvailableAt time.Time  `json:"available_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	IsClaimable bool       `json:"is_claimable"`
	IsClaimed   bool       `json:"is_claimed"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
}

// NewDrop creates a Drop from raw API data.
func NewDrop(id, entitlementID, campaignID, name string, requiredMinutes int, availableAt, expiresAt time.Time) *Drop {
	return &Drop{
		ID:              id,
		EntitlementID:   entitlementID,
		CampaignID:      campaignID,
		Name:            name,
		RequiredMinutes: requiredMinutes,
		AvailableAt:     availableAt,
		ExpiresAt:       expiresAt,
	}
}

// Eligible returns true if the drop has accumulated enough watch time to claim.
func (d *Drop) Eligible() bool {
	return d.IsClaimable && !d.IsClaimed && d.MinutesWatched >= float64(d.RequiredMinutes)
}

// InstanceID returns the identifier used to claim the drop: the entitlement
// when the API provided one, the drop ID otherwise.
func (d *Drop) InstanceID() string {
	if d.EntitlementID != "" {
		return d.EntitlementID
	}
	return d.ID
}

// Update refreshes the drop from freshly fetched data. Locally credited watch
// minutes are kept when they run ahead of what the API has acknowledged, and
// a claim observed once is never rolled back by a stale response.
func (d *Drop) Update(fresh *Drop) {
	// An empty entitlement keeps any instance ID learned through a push;
	// the inventory only exposes it once the claim is ready server-side.
	if fresh.EntitlementID != "" {
		d.EntitlementID = fresh.EntitlementID
	}
	d.Name = fresh.Name
	d.RequiredMinutes = fresh.RequiredMinutes
	d.AvailableAt = fresh.AvailableAt
	d.ExpiresAt = fresh.ExpiresAt
	if fresh.MinutesWatched > d.MinutesWatched {
		d.MinutesWatched = fresh.MinutesWatched
	}
	if fresh.IsClaimed {
		d.IsClaimed = true
	}
	d.IsClaimable = fresh.IsClaimable && !d.IsClaimed
}

// MarkClaimed records a successful claim at the given time.
func (d *Drop) MarkClaimed(now time.Time) {
	d.IsClaimed = true
	d.IsClaimable = false
	d.ClaimedAt = &now
}

// Progress returns the watch progress as an integer percentage.
func (d *Drop) Progress() int {
	return utils.Percentage(int(d.MinutesWatched), d.RequiredMinutes)
}

// Clone returns a deep copy safe to hand to other goroutines.
func (d *Drop) Clone() *Drop {
	cp := *d
	if d.ClaimedAt != nil {
		t := *d.ClaimedAt
		cp.ClaimedAt = &t
	}
	return &cp
}

// Equal returns true if two drops have the same ID.
func (d *Drop) Equal(other *Drop) bool {
	if other == nil {
		return false
	}
	return d.ID == other.ID
}

// String returns a human-readable representation of the drop.
func (d *Drop) String() string {
	return fmt.Sprintf("Drop(id=%s, name=%s, progress=%.1f/%d min, claimable=%t, claimed=%t)",
		d.ID, d.Name, d.MinutesWatched, d.RequiredMinutes, d.IsClaimable, d.IsClaimed)
}
