package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/dropforge/twitch-drops-go/internal/events"
	"github.com/dropforge/twitch-drops-go/internal/logger"
)

const (
	// clientQueueSize is the per-client send buffer. Events beyond it are
	// dropped for that client rather than stalling the broadcast.
	clientQueueSize = 32
	wsPingInterval  = 30 * time.Second
	wsWriteTimeout  = 5 * time.Second
)

// hub fans dispatcher events out to WebSocket subscribers. Each client
// gets its own send queue and write pump, so one slow consumer never
// blocks the others or the emitter.
type hub struct {
	log      *logger.Logger
	snapshot func() events.Event

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan events.Event
}

func newHub(log *logger.Logger, snapshot func() events.Event) *hub {
	return &hub{
		log:      log,
		snapshot: snapshot,
		clients:  make(map[*wsClient]struct{}),
	}
}

// HandleEvent implements events.Handler by enqueueing the event for every
// connected client. Full queues drop the event for that client.
func (h *hub) HandleEvent(e events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- e:
		default:
		}
	}
}

// serveWS upgrades the request and streams events until the client
// disconnects or the server shuts down. The first frame is a status
// snapshot so clients render without waiting for a transition.
func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Debug("WebSocket accept failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan events.Event, clientQueueSize)}
	if !h.register(client) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.unregister(client)

	// The feed is write-only: CloseRead discards inbound frames and
	// cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	h.log.Debug("WebSocket client connected", "remote", r.RemoteAddr)

	if h.snapshot != nil {
		if !h.write(ctx, conn, h.snapshot()) {
			return
		}
	}

	pings := time.NewTicker(wsPingInterval)
	defer pings.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case e := <-client.send:
			if !h.write(ctx, conn, e) {
				return
			}
		case <-pings.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// write sends one event frame, reporting false when the client is gone.
func (h *hub) write(ctx context.Context, conn *websocket.Conn, e events.Event) bool {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, e); err != nil {
		h.log.Debug("WebSocket write failed", "error", err)
		return false
	}
	return true
}

func (h *hub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *hub) unregister(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// close disconnects every client and rejects new ones.
func (h *hub) close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
