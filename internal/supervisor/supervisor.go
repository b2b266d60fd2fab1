package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/rickgao/broker-streamer/internal/metrics"
	"github.com/rickgao/broker-streamer/internal/streamer"
)

// Session is the part of *streamer.Session the supervisor drives.
type Session interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	ExtendSubscriptions(ctx context.Context) error
}

// Config configures the restart and extend policy.
type Config struct {
	ExtendInterval time.Duration // How often ExtendSubscriptions is called (0 disables)
	InitialDelay   time.Duration // First reconnect delay
	MaxDelay       time.Duration // Reconnect delay cap
	StopTimeout    time.Duration // Time allowed for Stop on shutdown
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ExtendInterval: 30 * time.Minute,
		InitialDelay:   time.Second,
		MaxDelay:       time.Minute,
		StopTimeout:    5 * time.Second,
	}
}

// Supervisor keeps a session connected.
type Supervisor struct {
	cfg     Config
	session Session
	logger  *slog.Logger
	metrics *metrics.Metrics

	restart   chan struct{}
	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a supervisor. Pass HandleError to the session as its error
// handler so lost connections are restarted.
func New(cfg Config, session Session, logger *slog.Logger, m *metrics.Metrics) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}

	return &Supervisor{
		cfg:     cfg,
		session: session,
		logger:  logger,
		metrics: m,
		restart: make(chan struct{}, 1),
		ready:   make(chan struct{}),
	}
}

// SetSession sets the supervised session when it has to be created after
// the supervisor (the session needs HandleError at construction).
func (s *Supervisor) SetSession(session Session) {
	s.session = session
}

// HandleError is a streamer.ErrorHandler. It never blocks.
func (s *Supervisor) HandleError(code streamer.ErrorCode, description string) {
	s.logger.Warn("streamer error", "code", code, "description", description)

	if code != streamer.CodeDisconnected {
		return
	}
	select {
	case s.restart <- struct{}{}:
	default:
	}
}

// Ready is closed after the first successful start.
func (s *Supervisor) Ready() <-chan struct{} {
	return s.ready
}

// Run starts the session and keeps it running until ctx is cancelled, then
// stops it. It returns nil on cancellation.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.stop()

	if !s.connect(ctx) {
		return nil
	}

	var extend <-chan time.Time
	if s.cfg.ExtendInterval > 0 {
		ticker := time.NewTicker(s.cfg.ExtendInterval)
		defer ticker.Stop()
		extend = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-s.restart:
			s.metrics.IncRestarts()
			s.logger.Info("restarting streamer session")
			if !s.connect(ctx) {
				return nil
			}

		case <-extend:
			if err := s.session.ExtendSubscriptions(ctx); err != nil {
				s.logger.Warn("extend subscriptions failed", "error", err)
			}
		}
	}
}

// connect starts the session, retrying with exponential backoff. Returns
// false when ctx was cancelled first.
func (s *Supervisor) connect(ctx context.Context) bool {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialDelay
	b.MaxInterval = s.cfg.MaxDelay

	for attempt := 1; ; attempt++ {
		err := s.session.Start(ctx)
		if err == nil {
			s.readyOnce.Do(func() { close(s.ready) })
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		delay := b.NextBackOff()
		s.logger.Warn("streamer start failed, retrying",
			"attempt", attempt,
			"retry_in", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
	}
}

func (s *Supervisor) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
	defer cancel()

	if err := s.session.Stop(ctx); err != nil {
		s.logger.Warn("failed to stop streamer session", "error", err)
	}
}
