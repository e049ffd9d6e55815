package chat

import (
	"context"
	"strings"

	"github.com/gempir/go-twitch-irc/v4"

	"github.com/dropforge/twitch-drops-go/internal/logger"
	"github.com/dropforge/twitch-drops-go/internal/model"
)

// handler reacts to IRC events: connection logging plus @mention
// detection for the authenticated user.
type handler struct {
	mention string
	log     *logger.Logger
}

func newHandler(username string, log *logger.Logger) *handler {
	h := &handler{log: log}
	if username != "" {
		h.mention = "@" + strings.ToLower(username)
	}
	return h
}

func (h *handler) onMessage(msg twitch.PrivateMessage) {
	if h.mention == "" || !strings.Contains(strings.ToLower(msg.Message), h.mention) {
		return
	}
	h.log.Event(context.Background(), model.EventChatMention, "Mentioned in chat",
		"channel", msg.Channel, "from", msg.User.DisplayName, "message", msg.Message)
}

func (h *handler) onConnect() {
	h.log.Info("💬 Connected to Twitch IRC")
}

func (h *handler) onReconnect() {
	h.log.Info("💬 Reconnected to Twitch IRC")
}

func (h *handler) onSelfJoin(msg twitch.UserJoinMessage) {
	h.log.Debug("Joined chat", "channel", msg.Channel)
}

func (h *handler) onSelfPart(msg twitch.UserPartMessage) {
	h.log.Debug("Left chat", "channel", msg.Channel)
}
