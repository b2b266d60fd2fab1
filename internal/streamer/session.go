package streamer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/broker-streamer/internal/event"
	"github.com/rickgao/broker-streamer/internal/hub"
	"github.com/rickgao/broker-streamer/internal/metrics"
	"github.com/rickgao/broker-streamer/internal/router"
	"github.com/rickgao/broker-streamer/internal/version"
)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSubscription sets the account context, polled on every request.
func WithSubscription(fn func() Subscription) Option {
	return func(s *Session) { s.subscription = fn }
}

// WithErrorHandler sets the callback for asynchronous errors.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(s *Session) { s.onError = fn }
}

// WithHandler sets the receiver of decoded push events.
func WithHandler(h router.Handler) Option {
	return func(s *Session) { s.handler = h }
}

// WithConnectionFactory replaces the hub client, mainly for tests.
func WithConnectionFactory(fn func() Connection) Option {
	return func(s *Session) { s.newConnection = fn }
}

// WithID sets the session id. Empty keeps the generated one.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// Session is one streamer connection with its subscriptions.
type Session struct {
	cfg           Config
	id            string
	logger        *slog.Logger
	metrics       *metrics.Metrics
	subscription  func() Subscription
	onError       ErrorHandler
	handler       router.Handler
	newConnection func() Connection

	router     *router.Router
	routerOnce sync.Once

	mu      sync.Mutex
	state   State
	conn    Connection
	closing bool // set by Stop, suppresses the disconnect callback

	quotes *QuoteSubscriptions
	news   *Feed
	orders *Feed
}

// NewSession creates a disconnected session.
func NewSession(cfg Config, opts ...Option) *Session {
	s := &Session{
		cfg:          cfg,
		id:           uuid.NewString(),
		logger:       slog.Default(),
		subscription: func() Subscription { return Subscription{} },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newConnection == nil {
		s.newConnection = s.dialHub
	}
	if s.cfg.ExtendWindow <= 0 {
		s.cfg.ExtendWindow = time.Hour
	}

	s.logger = s.logger.With("session_id", s.id)
	s.router = router.New(cfg.Router, s.handler, s.metrics, s.logger)

	req := requester{logger: s.logger, metrics: s.metrics, report: s.reportError}
	s.quotes = newQuoteSubscriptions(req, s.connection, s.subscription)
	s.news = newNewsFeed(req, s.connection, s.subscription)
	s.orders = newOrdersFeed(req, s.connection, s.subscription)
	return s
}

// ID returns the session id used in logs.
func (s *Session) ID() string {
	return s.id
}

// Quotes returns the quote subscriptions.
func (s *Session) Quotes() *QuoteSubscriptions {
	return s.quotes
}

// News returns the news feed.
func (s *Session) News() *Feed {
	return s.news
}

// Orders returns the order events feed.
func (s *Session) Orders() *Feed {
	return s.orders
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RouterStats returns the push event queue statistics.
func (s *Session) RouterStats() router.Stats {
	return s.router.Stats()
}

// Start opens the connection and replays every subscription: quotes, then
// news, then orders. Replay failures go to the error handler; Start itself
// only fails when the connection cannot be opened.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Connected:
		s.mu.Unlock()
		s.logger.Debug("session already connected")
		return nil
	case Connecting:
		s.mu.Unlock()
		return ErrConnecting
	}
	if s.conn == nil {
		s.conn = s.buildConnection()
	}
	conn := s.conn
	s.closing = false
	s.setState(Connecting)
	s.mu.Unlock()

	s.routerOnce.Do(func() {
		if err := s.router.Start(context.Background()); err != nil {
			s.logger.Error("failed to start event router", "error", err)
		}
	})

	s.logger.Info("connecting to streamer")
	if err := conn.Start(ctx); err != nil {
		s.mu.Lock()
		s.setState(Disconnected)
		s.mu.Unlock()

		s.logger.Error("failed to connect to streamer", "error", err)
		s.reportError(CodeConnectFailed, fmt.Sprintf("Unable to connect to the streamer: %v", err))
		return fmt.Errorf("start session: %w", err)
	}

	s.mu.Lock()
	if s.closing {
		// Stop ran while the connection was being opened.
		s.setState(Disconnected)
		s.mu.Unlock()
		_ = conn.Close()
		return ErrStopped
	}
	if s.state != Connecting {
		// The link closed before Start returned; handleClose already reported it.
		s.mu.Unlock()
		s.logger.Warn("streamer connection closed during start")
		return ErrConnectionLost
	}
	s.setState(Connected)
	s.mu.Unlock()

	s.logger.Info("connected to streamer")
	s.replay(ctx)
	return nil
}

// replay restores the server side subscriptions after a (re)connect.
func (s *Session) replay(ctx context.Context) {
	if s.quotes.HasSubscriptionsToBeActivated() {
		if err := s.quotes.ActivateSubscriptions(ctx); err != nil {
			s.logger.Warn("quote replay incomplete", "error", err)
		}
	}
	if s.news.IsActive() {
		if err := s.news.Activate(ctx); err != nil {
			s.logger.Warn("news replay failed", "error", err)
		}
	}
	if s.orders.IsActive() {
		if err := s.orders.Activate(ctx); err != nil {
			s.logger.Warn("orders replay failed", "error", err)
		}
	}
}

// Stop closes the connection on purpose. No disconnect error is reported and
// the news and orders feeds are forgotten; quote subscriptions are kept.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conn := s.conn
	s.setState(Disconnected)
	s.mu.Unlock()

	s.news.reset()
	s.orders.reset()

	if conn != nil {
		if err := conn.Close(); err != nil {
			return fmt.Errorf("stop session: %w", err)
		}
	}

	s.logger.Info("streamer session stopped")
	return nil
}

// Close stops the session and the event router.
func (s *Session) Close(ctx context.Context) error {
	stopErr := s.Stop(ctx)
	if err := s.router.Stop(ctx); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return stopErr
}

// ExtendSubscriptions renews the server side subscriptions with a freshly
// polled access token.
func (s *Session) ExtendSubscriptions(ctx context.Context) error {
	conn, ok := s.connection()
	if !ok {
		s.logger.Info("not connected, subscriptions not extended")
		return nil
	}

	token := s.subscription().AccessToken
	if _, err := conn.Invoke(ctx, TargetExtendSubscriptions, token); err != nil {
		s.metrics.IncRequestFailure(TargetExtendSubscriptions)
		s.logger.Error("failed to extend subscriptions", "error", err)
		s.reportError(CodeRequestFailed, fmt.Sprintf("%s failed: %v", TargetExtendSubscriptions, err))
		return fmt.Errorf("extend subscriptions: %w", err)
	}

	s.logger.Info("subscriptions extended", "valid_until", time.Now().Add(s.cfg.ExtendWindow).Format(time.RFC3339))
	return nil
}

// connection returns the live connection, if any.
func (s *Session) connection() (Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connected || s.conn == nil {
		return nil, false
	}
	return s.conn, true
}

// buildConnection creates the connection and registers the push and close
// handlers. Called once, with s.mu held.
func (s *Session) buildConnection() Connection {
	conn := s.newConnection()
	for _, target := range event.Targets() {
		target := target
		conn.On(target, func(args []json.RawMessage, receivedAt time.Time) {
			s.router.Enqueue(router.Push{Target: target, Args: args, ReceivedAt: receivedAt})
		})
	}
	conn.OnClose(s.handleClose)
	return conn
}

func (s *Session) handleClose(cause error) {
	s.mu.Lock()
	closing := s.closing
	s.setState(Disconnected)
	s.mu.Unlock()

	if closing {
		s.logger.Debug("streamer connection closed")
		return
	}

	description := "The streamer connection has been closed."
	if cause != nil {
		description += " " + cause.Error()
	}
	s.logger.Warn("streamer connection lost", "error", cause)
	s.reportError(CodeDisconnected, description)
}

func (s *Session) reportError(code ErrorCode, description string) {
	if s.onError != nil {
		s.onError(code, description)
	}
}

// setState must be called with s.mu held.
func (s *Session) setState(state State) {
	if s.state == state {
		return
	}
	s.logger.Debug("session state changed", "from", s.state, "to", state)
	s.state = state
	s.metrics.SetConnectionState(int(state))
}

// dialHub is the default connection factory.
func (s *Session) dialHub() Connection {
	cfg := s.cfg.Hub
	cfg.Token = func() string {
		return s.subscription().AccessToken
	}
	cfg.Params = func() url.Values {
		return url.Values{"accountNumber": {s.subscription().ActiveAccountNumber}}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = version.UserAgent()
	}
	return hub.NewClient(cfg, s.logger)
}
