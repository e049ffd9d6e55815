package model

import (
	"fmt"
	"time"
)

// Campaign status values as reported by the GQL API.
const (
	CampaignActive   = "ACTIVE"
	CampaignUpcoming = "UPCOMING"
	CampaignEnded    = "ENDED"
)

// Channel identifies one broadcaster participating in a campaign.
type Channel struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name,omitempty"`
}

// Campaign represents a Twitch drop campaign.
type Campaign struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	GameID         string    `json:"game_id"`
	GameName       string    `json:"game_name"`
	Status         string    `json:"status"`
	StartAt        time.Time `json:"start_at"`
	EndAt          time.Time `json:"end_at"`
	Channels       []Channel `json:"channels,omitempty"`
	TotalRewards   int       `json:"total_rewards"`
	ClaimedRewards int       `json:"claimed_rewards"`
}

// NewCampaign creates a Campaign from raw API data.
func NewCampaign(id, title, gameID, gameName, status string, startAt, endAt time.Time, channels []Channel) *Campaign {
	return &Campaign{
		ID:       id,
		Title:    title,
		GameID:   gameID,
		GameName: gameName,
		Status:   status,
		StartAt:  startAt,
		EndAt:    endAt,
		Channels: channels,
	}
}

// IsActive returns true if the campaign is currently running.
func (c *Campaign) IsActive() bool {
	return c.Status == CampaignActive
}

// HasUnclaimedRewards returns true if the campaign still has rewards left to claim.
func (c *Campaign) HasUnclaimedRewards() bool {
	return c.ClaimedRewards < c.TotalRewards
}

// HasChannel returns true if the campaign lists the given channel ID.
func (c *Campaign) HasChannel(channelID string) bool {
	for _, ch := range c.Channels {
		if ch.ID == channelID {
			return true
		}
	}
	return false
}

// Merge refreshes this campaign from freshly fetched data, keeping the higher
// of the two claimed-reward counts so a stale API response never rolls back
// progress observed earlier. ClaimedRewards is clamped to TotalRewards.
func (c *Campaign) Merge(fresh *Campaign) {
	c.Title = fresh.Title
	c.GameID = fresh.GameID
	c.GameName = fresh.GameName
	c.Status = fresh.Status
	c.StartAt = fresh.StartAt
	c.EndAt = fresh.EndAt
	c.Channels = fresh.Channels
	c.TotalRewards = fresh.TotalRewards
	if fresh.ClaimedRewards > c.ClaimedRewards {
		c.ClaimedRewards = fresh.ClaimedRewards
	}
	if c.ClaimedRewards > c.TotalRewards {
		c.ClaimedRewards = c.TotalRewards
	}
}

// RecordClaim increments the claimed-reward counter, clamped to TotalRewards.
func (c *Campaign) RecordClaim() {
	if c.ClaimedRewards < c.TotalRewards {
		c.ClaimedRewards++
	}
}

// Clone returns a deep copy safe to hand to other goroutines.
func (c *Campaign) Clone() *Campaign {
	cp := *c
	cp.Channels = make([]Channel, len(c.Channels))
	copy(cp.Channels, c.Channels)
	return &cp
}

// Equal returns true if two campaigns have the same ID.
func (c *Campaign) Equal(other *Campaign) bool {
	if other == nil {
		return false
	}
	return c.ID == other.ID
}

// String returns a human-readable representation of the campaign.
func (c *Campaign) String() string {
	return fmt.Sprintf("Campaign(id=%s, title=%s, game=%s, status=%s, rewards=%d/%d)",
		c.ID, c.Title, c.GameName, c.Status, c.ClaimedRewards, c.TotalRewards)
}
