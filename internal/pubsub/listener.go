package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/dropforge/twitch-drops-go/internal/auth"
	"github.com/dropforge/twitch-drops-go/internal/constants"
	"github.com/dropforge/twitch-drops-go/internal/logger"
)

// maxReconnectBackoff caps the redial delay after repeated failures.
const maxReconnectBackoff = 60 * time.Second

// readLimit bounds incoming frame size.
const readLimit = 128 << 10

// TokenSource supplies the OAuth access token attached to LISTEN frames.
// *auth.Manager satisfies this interface.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// DropSink receives drop updates pushed by the PubSub edge. Implementations
// must be safe for concurrent use; *miner.Orchestrator satisfies this.
type DropSink interface {
	ApplyDropProgress(dropID string, minutes float64)
	MarkDropReady(dropID, instanceID string)
}

// Listener keeps one PubSub connection subscribed to the signed-in user's
// drop events and forwards them to a sink. A lost connection is redialed
// with exponential backoff; a fresh token is fetched on every dial, so an
// expired session heals itself once the manager refreshes.
type Listener struct {
	url    string
	userID string
	tokens TokenSource
	sink   DropSink
	log    *logger.Logger

	pingInterval   time.Duration
	pongTimeout    time.Duration
	initialBackoff time.Duration

	mu       sync.Mutex
	lastPong time.Time
}

// NewListener creates a Listener for the given user ID.
func NewListener(userID string, tokens TokenSource, sink DropSink, log *logger.Logger) *Listener {
	return &Listener{
		url:            constants.PubSubURL,
		userID:         userID,
		tokens:         tokens,
		sink:           sink,
		log:            log.WithScope("pubsub"),
		pingInterval:   constants.PubSubPingInterval,
		pongTimeout:    constants.PubSubPongTimeout,
		initialBackoff: time.Second,
	}
}

// Run connects to the PubSub edge and processes pushed messages until the
// context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	backoff := l.initialBackoff

	for {
		started := time.Now()
		err := l.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A connection that held for a while earns a fresh backoff.
		if time.Since(started) > time.Minute {
			backoff = l.initialBackoff
		}

		l.log.Warn("PubSub connection lost, reconnecting",
			"error", err, "backoff", backoff.Round(time.Millisecond))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectBackoff {
			backoff = maxReconnectBackoff
		}
	}
}

func (l *Listener) runOnce(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, l.url, nil)
	if err != nil {
		return fmt.Errorf("dialing pubsub edge: %w", err)
	}
	conn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close(websocket.StatusNormalClosure, "listener exiting")

	writeCh := make(chan []byte, 16)
	go l.writeLoop(ctx, conn, writeCh)

	if err := l.sendListen(ctx, writeCh); err != nil {
		return err
	}

	l.setPong(time.Now())
	l.enqueuePing(writeCh)
	go l.pingLoop(ctx, conn, writeCh)

	l.log.Info("📡 Subscribed to drop events", "user_id", l.userID)
	return l.readLoop(ctx, conn)
}

func (l *Listener) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var resp Response
		if err := wsjson.Read(ctx, conn, &resp); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("pubsub read: %w", err)
		}

		switch resp.Type {
		case TypePong:
			l.setPong(time.Now())

		case TypeReconnect:
			return errors.New("server requested reconnect")

		case TypeResponse:
			if resp.Error != "" {
				if resp.Error == "ERR_BADAUTH" {
					l.log.Warn("PubSub rejected auth token, redialing with a fresh one")
				}
				return fmt.Errorf("pubsub LISTEN failed: %s", resp.Error)
			}

		case TypeMessage:
			l.handleMessage(resp.Data)
		}
	}
}

func (l *Listener) handleMessage(raw json.RawMessage) {
	var msg MessageData
	if err := json.Unmarshal(raw, &msg); err != nil {
		l.log.Error("Failed to parse MESSAGE frame", "error", err)
		return
	}
	if !strings.HasPrefix(msg.Topic, constants.TopicUserDropEvents) {
		return
	}

	ev, err := parseDropEvent([]byte(msg.Message))
	if err != nil {
		l.log.Error("Failed to parse drop event", "topic", msg.Topic, "error", err)
		return
	}
	if ev == nil {
		return
	}

	switch ev.Type {
	case EventDropProgress:
		l.log.Debug("Drop progress pushed",
			"drop", ev.DropID, "minutes", ev.CurrentMinutes, "required", ev.RequiredMinutes)
		l.sink.ApplyDropProgress(ev.DropID, ev.CurrentMinutes)
	case EventDropClaim:
		l.log.Debug("Drop claim pushed", "drop", ev.DropID, "instance", ev.InstanceID)
		l.sink.MarkDropReady(ev.DropID, ev.InstanceID)
	}
}

func (l *Listener) writeLoop(ctx context.Context, conn *websocket.Conn, writeCh <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-writeCh:
			if !ok {
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				if ctx.Err() == nil {
					l.log.Error("PubSub write error", "error", err)
				}
				return
			}
		}
	}
}

// pingLoop keeps the connection alive. A missing PONG closes the connection,
// which surfaces as a read error and triggers a redial.
func (l *Listener) pingLoop(ctx context.Context, conn *websocket.Conn, writeCh chan []byte) {
	ticker := time.NewTicker(l.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if elapsed := l.pongElapsed(); elapsed > l.pongTimeout {
				l.log.Warn("No PONG received, dropping connection",
					"elapsed", elapsed.Round(time.Second))
				conn.Close(websocket.StatusGoingAway, "pong timeout")
				return
			}
			l.enqueuePing(writeCh)
		}
	}
}

func (l *Listener) sendListen(ctx context.Context, writeCh chan []byte) error {
	token, err := l.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("fetching token for LISTEN: %w", err)
	}

	req := Request{
		Type:  TypeListen,
		Nonce: auth.GenerateHex(16),
		Data: &RequestData{
			Topics:    []string{constants.TopicUserDropEvents + "." + l.userID},
			AuthToken: token,
		},
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling LISTEN: %w", err)
	}

	select {
	case writeCh <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Listener) enqueuePing(writeCh chan []byte) {
	data, err := json.Marshal(Request{Type: TypePing})
	if err != nil {
		return
	}
	select {
	case writeCh <- data:
	default:
		l.log.Warn("Write queue full, dropping PING")
	}
}

func (l *Listener) setPong(t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastPong = t
}

func (l *Listener) pongElapsed() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Since(l.lastPong)
}
