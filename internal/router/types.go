package router

import (
	"encoding/json"
	"time"

	"github.com/rickgao/broker-streamer/internal/event"
)

// Config holds configuration for the event router.
type Config struct {
	QueueLimit int // Max queued pushes, 0 = unbounded. Default: 100000
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		QueueLimit: 100000,
	}
}

// Push is one raw server push as received by the hub read loop.
type Push struct {
	Target     string
	Args       []json.RawMessage
	ReceivedAt time.Time // Local timestamp when the frame was read
}

// Handler consumes decoded events. Handlers run on the router goroutine,
// one event at a time, in arrival order.
type Handler interface {
	HandleEvent(ev event.Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ev event.Event)

func (f HandlerFunc) HandleEvent(ev event.Event) { f(ev) }

// Handlers fans an event out to several handlers in order.
type Handlers []Handler

func (hs Handlers) HandleEvent(ev event.Event) {
	for _, h := range hs {
		if h != nil {
			h.HandleEvent(ev)
		}
	}
}

// Stats contains runtime statistics.
type Stats struct {
	PushesReceived int64
	EventsRouted   int64
	DecodeErrors   int64
	HandlerPanics  int64
	Queue          QueueStats
}
