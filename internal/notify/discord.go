package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dropforge/twitch-drops-go/internal/model"
)

// embedColorDefault is the Twitch purple used when no event color matches.
const embedColorDefault = 6570404

// embedColors picks the Discord embed accent per event.
var embedColors = map[model.Event]int{
	model.EventDropClaim:  5763719,  // green
	model.EventMinerError: 15548997, // red
	model.EventMinerStop:  10070709, // gray
}

// Discord sends notifications via a Discord webhook.
type Discord struct {
	baseNotifier
	webhookURL string
	httpClient *http.Client
}

// Send posts an embed message to the configured Discord webhook.
func (d *Discord) Send(ctx context.Context, event model.Event, title, message string) error {
	color, ok := embedColors[event]
	if !ok {
		color = embedColorDefault
	}

	payload := map[string]any{
		"username": "Drops Miner",
		"embeds": []map[string]any{
			{
				"title":       title,
				"description": message,
				"color":       color,
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord: unexpected status %d", resp.StatusCode)
	}

	return nil
}
