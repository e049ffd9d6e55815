package gql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dropforge/twitch-drops-go/internal/constants"
	"github.com/dropforge/twitch-drops-go/internal/model"
)

// FetchActiveCampaigns fetches the user's drop campaigns and returns
// those whose status is ACTIVE, with channels flattened out of the
// nested connection shape.
func (c *Client) FetchActiveCampaigns(ctx context.Context) ([]*model.Campaign, error) {
	data, err := c.Execute(ctx, constants.GQLCampaignsForUser, nil)
	if err != nil {
		return nil, fmt.Errorf("CampaignsForUser: %w", err)
	}

	var resp struct {
		CurrentUser *struct {
			Campaigns struct {
				Edges []struct {
					Node struct {
						ID        string `json:"id"`
						Title     string `json:"title"`
						Status    string `json:"status"`
						StartedAt string `json:"startedAt"`
						EndedAt   string `json:"endedAt"`
						Game      *struct {
							ID   string `json:"id"`
							Name string `json:"name"`
						} `json:"game"`
						Rewards struct {
							TotalCount   int `json:"totalCount"`
							ClaimedCount int `json:"claimedCount"`
						} `json:"rewards"`
						Channels struct {
							Edges []struct {
								Node struct {
									ID          string `json:"id"`
									Login       string `json:"login"`
									DisplayName string `json:"displayName"`
								} `json:"node"`
							} `json:"edges"`
						} `json:"channels"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"campaigns"`
		} `json:"currentUser"`
	}

	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parsing CampaignsForUser response: %w", err)
	}

	if resp.CurrentUser == nil {
		return nil, nil
	}

	var campaigns []*model.Campaign
	for _, edge := range resp.CurrentUser.Campaigns.Edges {
		node := edge.Node
		if node.Status != model.CampaignActive {
			continue
		}

		var gameID, gameName string
		if node.Game != nil {
			gameID = node.Game.ID
			gameName = node.Game.Name
		}

		channels := make([]model.Channel, 0, len(node.Channels.Edges))
		for _, ch := range node.Channels.Edges {
			if ch.Node.ID != "" {
				channels = append(channels, model.Channel{
					ID:          ch.Node.ID,
					Login:       ch.Node.Login,
					DisplayName: ch.Node.DisplayName,
				})
			}
		}

		campaign := model.NewCampaign(node.ID, node.Title, gameID, gameName, node.Status,
			parseTimestamp(node.StartedAt), parseTimestamp(node.EndedAt), channels)
		campaign.TotalRewards = node.Rewards.TotalCount
		campaign.ClaimedRewards = node.Rewards.ClaimedCount

		campaigns = append(campaigns, campaign)
	}

	return campaigns, nil
}

// FetchActiveDrops fetches the user's drop entitlements and returns
// those that are claimable and not yet claimed.
func (c *Client) FetchActiveDrops(ctx context.Context) ([]*model.Drop, error) {
	data, err := c.Execute(ctx, constants.GQLDropsEntitlementStatus, nil)
	if err != nil {
		return nil, fmt.Errorf("DropsEntitlementStatus: %w", err)
	}

	var resp struct {
		CurrentUser *struct {
			Drops struct {
				Edges []struct {
					Node struct {
						ID                     string  `json:"id"`
						EntitlementID          string  `json:"entitlementId"`
						IsClaimed              bool    `json:"isClaimed"`
						IsClaimable            bool    `json:"isClaimable"`
						Name                   string  `json:"name"`
						RequiredMinutesWatched int     `json:"requiredMinutesWatched"`
						MinutesWatched         float64 `json:"minutesWatched"`
						AvailableAt            string  `json:"availableAt"`
						ExpiresAt              string  `json:"expiresAt"`
						Campaign               *struct {
							ID string `json:"id"`
						} `json:"campaign"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"drops"`
		} `json:"currentUser"`
	}

	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parsing DropsEntitlementStatus response: %w", err)
	}

	if resp.CurrentUser == nil {
		return nil, nil
	}

	var drops []*model.Drop
	for _, edge := range resp.CurrentUser.Drops.Edges {
		node := edge.Node
		if !node.IsClaimable || node.IsClaimed {
			continue
		}

		var campaignID string
		if node.Campaign != nil {
			campaignID = node.Campaign.ID
		}

		drop := model.NewDrop(node.ID, node.EntitlementID, campaignID, node.Name,
			node.RequiredMinutesWatched, parseTimestamp(node.AvailableAt), parseTimestamp(node.ExpiresAt))
		drop.MinutesWatched = node.MinutesWatched
		drop.IsClaimable = node.IsClaimable

		drops = append(drops, drop)
	}

	return drops, nil
}

// ClaimDrop redeems a drop instance. It returns true only when the API
// reports the drop as claimed.
func (c *Client) ClaimDrop(ctx context.Context, dropInstanceID string) (bool, error) {
	vars := map[string]any{
		"input": map[string]any{
			"dropInstanceID": dropInstanceID,
		},
	}

	data, err := c.Execute(ctx, constants.GQLFulfillDropReward, vars)
	if err != nil {
		return false, fmt.Errorf("FulfillDropReward: %w", err)
	}

	var resp struct {
		FulfillDropReward *struct {
			Drop *struct {
				ID        string `json:"id"`
				IsClaimed bool   `json:"isClaimed"`
			} `json:"drop"`
		} `json:"fulfillDropReward"`
	}

	if err := json.Unmarshal(data, &resp); err != nil {
		return false, fmt.Errorf("parsing FulfillDropReward response: %w", err)
	}

	if resp.FulfillDropReward == nil || resp.FulfillDropReward.Drop == nil {
		return false, nil
	}

	return resp.FulfillDropReward.Drop.IsClaimed, nil
}

// SendWatchHeartbeat reports watch presence on a channel. It returns
// true when the API acknowledged the heartbeat.
func (c *Client) SendWatchHeartbeat(ctx context.Context, channelID string) (bool, error) {
	vars := map[string]any{
		"input": map[string]any{
			"channelID": channelID,
		},
	}

	data, err := c.Execute(ctx, constants.GQLReportStreamWatch, vars)
	if err != nil {
		return false, fmt.Errorf("ReportStreamWatch: %w", err)
	}

	var resp struct {
		ReportStreamWatch *struct {
			Success bool `json:"success"`
		} `json:"reportStreamWatch"`
	}

	if err := json.Unmarshal(data, &resp); err != nil {
		return false, fmt.Errorf("parsing ReportStreamWatch response: %w", err)
	}

	return resp.ReportStreamWatch != nil && resp.ReportStreamWatch.Success, nil
}

// parseTimestamp parses an RFC3339 timestamp from the API, returning
// the zero time for empty or malformed values.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}
