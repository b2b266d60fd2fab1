package router

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rickgao/broker-streamer/internal/event"
	"github.com/rickgao/broker-streamer/internal/metrics"
)

// Router decodes raw pushes and hands the events to a Handler.
type Router struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	handler Handler
	queue   *Queue[Push]

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats
	mu            sync.RWMutex
	received      int64
	routed        int64
	decodeErrors  int64
	handlerPanics int64
}

// New creates a new event router.
func New(cfg Config, handler Handler, m *metrics.Metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = Handlers(nil)
	}

	return &Router{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		handler: handler,
		queue:   NewQueue[Push](cfg.QueueLimit),
	}
}

// Enqueue queues a push without blocking. Returns false if it was dropped.
func (r *Router) Enqueue(p Push) bool {
	if !r.queue.Send(p) {
		r.metrics.IncDroppedPush()
		r.logger.Warn("event queue full or closed, dropping push", "target", p.Target)
		return false
	}
	return true
}

// Start begins routing events.
func (r *Router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	// Closing the queue lets routeLoop drain what is left and exit
	go func() {
		<-r.ctx.Done()
		r.queue.Close()
	}()

	r.logger.Info("event router started", "queue_limit", r.cfg.QueueLimit)

	return nil
}

// Stop gracefully shuts down the router.
func (r *Router) Stop(ctx context.Context) error {
	r.logger.Info("stopping event router")

	if r.cancel != nil {
		r.cancel()
	} else {
		r.queue.Close()
	}

	// Wait for goroutine to finish
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("event router stopped")
	case <-ctx.Done():
		r.logger.Warn("event router stop timed out")
	}

	return nil
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		PushesReceived: r.received,
		EventsRouted:   r.routed,
		DecodeErrors:   r.decodeErrors,
		HandlerPanics:  r.handlerPanics,
		Queue:          r.queue.Stats(),
	}
}

// routeLoop is the main routing goroutine.
func (r *Router) routeLoop() {
	defer r.wg.Done()

	for {
		p, ok := r.queue.Receive()
		if !ok {
			return
		}
		r.route(p)
	}
}

// route decodes a single push and delivers its events.
func (r *Router) route(p Push) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()

	events, err := event.Decode(p.Target, p.Args, p.ReceivedAt)
	if err != nil {
		r.logger.Warn("failed to decode push", "target", p.Target, "error", err)
		r.metrics.IncDecodeError()
		r.mu.Lock()
		r.decodeErrors++
		r.mu.Unlock()
		return
	}

	for _, ev := range events {
		r.deliver(ev)
	}
}

// deliver calls the handler and contains its panics.
func (r *Router) deliver(ev event.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event handler panicked", "kind", ev.Kind(), "panic", rec)
			r.metrics.IncHandlerPanic()
			r.mu.Lock()
			r.handlerPanics++
			r.mu.Unlock()
		}
	}()

	r.handler.HandleEvent(ev)

	r.metrics.IncEvent(string(ev.Kind()))
	r.mu.Lock()
	r.routed++
	r.mu.Unlock()
}
