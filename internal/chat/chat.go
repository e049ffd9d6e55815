// Package chat keeps an IRC presence in the channels being watched, the
// way a real viewer lurks in chat while the stream plays. Presence is
// optional; mining works without it.
package chat

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/gempir/go-twitch-irc/v4"

	"github.com/dropforge/twitch-drops-go/internal/logger"
)

// Manager mirrors watch sessions into Twitch IRC. Join and Part only
// queue IRC commands, so they are safe to call from the mining loop.
// go-twitch-irc handles PING/PONG keepalive and reconnection itself.
type Manager struct {
	mu       sync.Mutex
	client   *twitch.Client
	channels map[string]bool
	closed   bool

	log *logger.Logger
}

// NewManager creates a Manager authenticated as username. token is the
// OAuth access token without the "oauth:" prefix.
func NewManager(username, token string, log *logger.Logger) *Manager {
	m := &Manager{
		client:   twitch.NewClient(username, "oauth:"+token),
		channels: make(map[string]bool),
		log:      log.WithScope("chat"),
	}

	h := newHandler(username, m.log)
	m.client.OnConnect(h.onConnect)
	m.client.OnPrivateMessage(h.onMessage)
	m.client.OnSelfJoinMessage(h.onSelfJoin)
	m.client.OnSelfPartMessage(h.onSelfPart)
	m.client.OnReconnectMessage(func(twitch.ReconnectMessage) { h.onReconnect() })

	return m
}

// Join enters a channel's chat. Idempotent; channel names are
// case-insensitive.
func (m *Manager) Join(channel string) {
	name := strings.ToLower(channel)
	if name == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.channels[name] {
		return
	}
	m.channels[name] = true
	m.client.Join(name)
	m.log.Debug("Joining chat", "channel", name)
}

// Part leaves a channel's chat. Unknown channels are ignored.
func (m *Manager) Part(channel string) {
	name := strings.ToLower(channel)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.channels[name] {
		return
	}
	delete(m.channels, name)
	m.client.Depart(name)
	m.log.Debug("Leaving chat", "channel", name)
}

// Run connects to Twitch IRC and blocks until ctx is cancelled or the
// connection fails fatally.
func (m *Manager) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.client.Connect()
	}()

	select {
	case <-ctx.Done():
		m.Close()
		return ctx.Err()
	case err := <-errCh:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			m.log.Error("IRC connection failed", "error", err)
		}
		return err
	}
}

// Close departs every joined channel and disconnects the client.
// Subsequent Join and Part calls are no-ops.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	channels := make([]string, 0, len(m.channels))
	for name := range m.channels {
		channels = append(channels, name)
	}
	m.channels = make(map[string]bool)
	m.mu.Unlock()

	for _, name := range channels {
		m.client.Depart(name)
	}
	if err := m.client.Disconnect(); err != nil {
		m.log.Debug("IRC disconnect", "error", err)
	}
	m.log.Info("💬 IRC presence closed")
}

// Joined reports whether the manager is currently in the channel.
func (m *Manager) Joined(channel string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channels[strings.ToLower(channel)]
}

// Channels returns the joined channels, sorted.
func (m *Manager) Channels() []string {
	m.mu.Lock()
	out := make([]string, 0, len(m.channels))
	for name := range m.channels {
		out = append(out, name)
	}
	m.mu.Unlock()

	sort.Strings(out)
	return out
}
