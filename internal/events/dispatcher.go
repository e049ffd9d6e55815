// Package events delivers engine callbacks (status changes, claimed drops,
// campaign updates) to external subscribers without blocking the emitting
// task. Events are queued on a buffered channel and fanned out by a single
// dispatch goroutine.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dropforge/twitch-drops-go/internal/logger"
	"github.com/dropforge/twitch-drops-go/internal/model"
)

// Type identifies the kind of engine event.
type Type string

// All event types carried by the dispatcher.
const (
	TypeStatusChange   Type = "status_change"
	TypeDropClaimed    Type = "drop_claimed"
	TypeCampaignUpdate Type = "campaign_update"
)

// Event is one queued notification. Exactly one payload field is set,
// matching Type.
type Event struct {
	Type     Type                `json:"type"`
	Time     time.Time           `json:"time"`
	Status   *model.StatusChange `json:"status,omitempty"`
	Drop     *model.Drop         `json:"drop,omitempty"`
	Campaign *model.Campaign     `json:"campaign,omitempty"`
}

// Handler receives engine events. Delivery happens on the dispatcher's own
// goroutine, so a slow handler delays other handlers but never the emitter.
type Handler interface {
	HandleEvent(Event)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(Event)

// HandleEvent calls f(e).
func (f HandlerFunc) HandleEvent(e Event) { f(e) }

// queueSize is the emit buffer. Large enough that only a stalled dispatch
// goroutine ever fills it.
const queueSize = 256

// Dispatcher fans engine events out to subscribers. Safe for concurrent use.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []Handler

	queue   chan Event
	done    chan struct{}
	dropped atomic.Int64

	log *logger.Logger
}

// NewDispatcher creates a Dispatcher and starts its dispatch goroutine.
func NewDispatcher(log *logger.Logger) *Dispatcher {
	d := &Dispatcher{
		queue: make(chan Event, queueSize),
		done:  make(chan struct{}),
		log:   log,
	}
	go d.run()
	return d
}

// Subscribe registers a handler for all subsequent events.
func (d *Dispatcher) Subscribe(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

// EmitStatusChange queues a state-transition event.
func (d *Dispatcher) EmitStatusChange(state model.State, errMsg string) {
	d.emit(Event{
		Type:   TypeStatusChange,
		Time:   time.Now(),
		Status: &model.StatusChange{State: state, Err: errMsg},
	})
}

// EmitDropClaimed queues a claim event. The drop is copied so subscribers
// never share memory with the poll loop.
func (d *Dispatcher) EmitDropClaimed(drop *model.Drop) {
	d.emit(Event{
		Type: TypeDropClaimed,
		Time: time.Now(),
		Drop: drop.Clone(),
	})
}

// EmitCampaignUpdate queues a campaign refresh event with a copied campaign.
func (d *Dispatcher) EmitCampaignUpdate(c *model.Campaign) {
	d.emit(Event{
		Type:     TypeCampaignUpdate,
		Time:     time.Now(),
		Campaign: c.Clone(),
	})
}

// Dropped returns how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops the dispatch goroutine after draining queued events.
// Emissions after Close are discarded.
func (d *Dispatcher) Close() {
	close(d.queue)
	<-d.done
}

func (d *Dispatcher) emit(e Event) {
	defer func() {
		// Emit after Close hits a closed channel; count it as dropped.
		if recover() != nil {
			d.dropped.Add(1)
		}
	}()

	select {
	case d.queue <- e:
	default:
		d.dropped.Add(1)
		if d.log != nil {
			d.log.Warn("Event queue full, dropping event", "type", string(e.Type))
		}
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.queue {
		d.mu.RLock()
		handlers := make([]Handler, len(d.handlers))
		copy(handlers, d.handlers)
		d.mu.RUnlock()

		for _, h := range handlers {
			h.HandleEvent(e)
		}
	}
}
