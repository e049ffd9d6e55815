// Package pubsub maintains a WebSocket subscription to the Twitch PubSub
// edge and feeds pushed drop progress into the miner between poll cycles.
// The connection is kept alive with PING/PONG frames and redialed with
// exponential backoff when lost.
package pubsub

import (
	"encoding/json"
	"fmt"

	"github.com/dropforge/twitch-drops-go/internal/jsonutil"
)

// PubSub protocol frame types.
const (
	// TypePing is sent by the client to keep the connection alive.
	TypePing = "PING"
	// TypePong is the server's response to a PING.
	TypePong = "PONG"
	// TypeListen subscribes to one or more topics.
	TypeListen = "LISTEN"
	// TypeUnlisten unsubscribes from one or more topics.
	TypeUnlisten = "UNLISTEN"
	// TypeMessage is a server-pushed message for a subscribed topic.
	TypeMessage = "MESSAGE"
	// TypeResponse is the server's acknowledgement of a LISTEN/UNLISTEN.
	TypeResponse = "RESPONSE"
	// TypeReconnect is sent by the server to request a client reconnection.
	TypeReconnect = "RECONNECT"
)

// Request is a frame sent from the client to the PubSub edge.
type Request struct {
	Type  string       `json:"type"`
	Nonce string       `json:"nonce,omitempty"`
	Data  *RequestData `json:"data,omitempty"`
}

// RequestData carries the topics and auth token for LISTEN/UNLISTEN requests.
type RequestData struct {
	Topics    []string `json:"topics"`
	AuthToken string   `json:"auth_token"`
}

// Response is a frame received from the PubSub edge.
type Response struct {
	Type  string          `json:"type"`
	Nonce string          `json:"nonce,omitempty"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MessageData is the payload within a MESSAGE frame. Message holds the
// topic-specific body as a JSON string.
type MessageData struct {
	Topic   string `json:"topic"`
	Message string `json:"message"`
}

// Drop event types pushed on the user-drop-events topic.
const (
	EventDropProgress = "drop-progress"
	EventDropClaim    = "drop-claim"
)

// DropEvent is one push update for the signed-in user's drop progress.
type DropEvent struct {
	Type            string
	DropID          string
	ChannelID       string
	CurrentMinutes  float64
	RequiredMinutes int
	// InstanceID is set on drop-claim events and identifies the claimable
	// entitlement.
	InstanceID string
}

// parseDropEvent extracts a DropEvent from a user-drop-events message body.
// Event types other than drop-progress and drop-claim yield (nil, nil).
func parseDropEvent(raw []byte) (*DropEvent, error) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("parsing drop event body: %w", err)
	}

	typ, _ := body["type"].(string)
	if typ != EventDropProgress && typ != EventDropClaim {
		return nil, nil
	}

	data, _ := body["data"].(map[string]any)
	if data == nil {
		return nil, fmt.Errorf("drop event %q has no data", typ)
	}

	ev := &DropEvent{
		Type:            typ,
		DropID:          jsonutil.StringFromMap(data, "drop_id"),
		ChannelID:       jsonutil.StringFromMap(data, "channel_id"),
		RequiredMinutes: jsonutil.IntFromMap(data, "required_progress_min"),
		InstanceID:      jsonutil.StringFromMap(data, "drop_instance_id"),
	}
	if v, ok := data["current_progress_min"]; ok {
		ev.CurrentMinutes = jsonutil.FloatFromAny(v)
	}
	if ev.DropID == "" {
		return nil, fmt.Errorf("drop event %q has no drop_id", typ)
	}
	return ev, nil
}
