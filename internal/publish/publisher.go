package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/broker-streamer/internal/config"
	"github.com/rickgao/broker-streamer/internal/event"
	"github.com/rickgao/broker-streamer/internal/metrics"
	"github.com/rickgao/broker-streamer/internal/router"
)

// Client is the part of *redis.Client the publisher uses.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// NewRedisClient creates a Redis client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Message is the JSON document published for every event.
type Message struct {
	Kind       event.Kind  `json:"kind"`
	ReceivedAt time.Time   `json:"received_at"`
	Data       event.Event `json:"data"`
}

// Stats holds publisher counters.
type Stats struct {
	Published int64
	Errors    int64
	Dropped   int64
}

// Publisher fans decoded events out to Redis pub/sub channels:
//
//	<prefix>.quote.<instrument id>
//	<prefix>.news
//	<prefix>.orders.<account number>
//
// It implements router.Handler and never blocks the router.
type Publisher struct {
	client  Client
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	input *router.Queue[event.Event]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	stats Stats
}

// New creates a Publisher. bufferSize bounds the events waiting to be
// published (0 = unbounded).
func New(client Client, prefix string, bufferSize int, m *metrics.Metrics, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:  client,
		prefix:  prefix,
		timeout: 5 * time.Second,
		logger:  logger,
		metrics: m,
		input:   router.NewQueue[event.Event](bufferSize),
	}
}

// Channel returns the channel an event is published on.
func (p *Publisher) Channel(ev event.Event) string {
	switch e := ev.(type) {
	case event.QuoteTrade:
		return fmt.Sprintf("%s.quote.%s", p.prefix, e.InstrumentID)
	case event.QuoteBookLevel:
		return fmt.Sprintf("%s.quote.%s", p.prefix, e.InstrumentID)
	case event.NewsItem:
		return p.prefix + ".news"
	case event.OrderEvent:
		return fmt.Sprintf("%s.orders.%s", p.prefix, e.AccountNumber)
	}
	return fmt.Sprintf("%s.%s", p.prefix, ev.Kind())
}

// HandleEvent queues an event for publishing.
func (p *Publisher) HandleEvent(ev event.Event) {
	if !p.input.Send(ev) {
		p.mu.Lock()
		p.stats.Dropped++
		p.mu.Unlock()
		p.logger.Warn("publish buffer full, dropping event", "kind", ev.Kind())
	}
}

// Start begins publishing queued events.
func (p *Publisher) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.publishLoop()

	go func() {
		<-p.ctx.Done()
		p.input.Close()
	}()

	p.logger.Info("event publisher started", "channel_prefix", p.prefix)
	return nil
}

// Stop publishes what is queued and shuts down.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	} else {
		p.input.Close()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("event publisher stopped")
	case <-ctx.Done():
		p.logger.Warn("event publisher stop timed out")
	}
	return nil
}

// Stats returns current counters.
func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Publisher) publishLoop() {
	defer p.wg.Done()

	for {
		ev, ok := p.input.Receive()
		if !ok {
			return
		}
		p.publish(ev)
	}
}

func (p *Publisher) publish(ev event.Event) {
	channel := p.Channel(ev)

	payload, err := json.Marshal(Message{Kind: ev.Kind(), ReceivedAt: ev.Received(), Data: ev})
	if err != nil {
		p.fail(channel, fmt.Errorf("marshal event: %w", err))
		return
	}

	// Queued events are still published after Stop cancelled p.ctx
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		p.fail(channel, err)
		return
	}

	p.mu.Lock()
	p.stats.Published++
	p.mu.Unlock()
}

func (p *Publisher) fail(channel string, err error) {
	p.logger.Warn("failed to publish event", "channel", channel, "error", err)
	p.metrics.IncPublishError()
	p.mu.Lock()
	p.stats.Errors++
	p.mu.Unlock()
}
