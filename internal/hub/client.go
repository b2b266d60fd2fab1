package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is a hub connection over a single websocket. It can be started
// again after it closed; registered handlers survive restarts.
type Client struct {
	cfg    Config
	logger *slog.Logger
	id     string

	// Handlers
	handlersMu sync.RWMutex
	handlers   map[string][]PushHandler
	onClose    []func(error)

	// State
	mu       sync.Mutex
	link     *link
	starting bool

	// Invocation correlation
	nextID    atomic.Int64
	pendingMu sync.Mutex
	pending   map[string]chan message
}

// link is one started websocket connection.
type link struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	done     chan struct{}
	once     sync.Once
	lastSeen atomic.Int64
}

func (l *link) touch() {
	l.lastSeen.Store(time.Now().UnixNano())
}

func (l *link) seen() time.Time {
	return time.Unix(0, l.lastSeen.Load())
}

// NewClient creates a new hub client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	return &Client{
		cfg:      cfg,
		logger:   logger.With("client_id", id),
		id:       id,
		handlers: make(map[string][]PushHandler),
		pending:  make(map[string]chan message),
	}
}

// ID returns the client's identifier.
func (c *Client) ID() string {
	return c.id
}

// On registers a handler for server pushes to target. Target names are
// matched case-insensitively.
func (c *Client) On(target string, h PushHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	key := strings.ToLower(target)
	c.handlers[key] = append(c.handlers[key], h)
}

// OnClose registers a handler called once each time a started connection
// ends. The error is nil when Close was called.
func (c *Client) OnClose(fn func(error)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onClose = append(c.onClose, fn)
}

// Start dials the hub and completes the protocol handshake.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.link != nil || c.starting {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.starting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	token := ""
	if c.cfg.Token != nil {
		token = c.cfg.Token()
	}

	endpoint, err := c.endpoint(token)
	if err != nil {
		return err
	}

	// Build headers
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	if c.cfg.UserAgent != "" {
		header.Set("User-Agent", c.cfg.UserAgent)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial hub: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial hub: %w", err)
	}

	trailing, err := c.handshake(conn)
	if err != nil {
		conn.Close()
		return err
	}

	l := &link{
		conn: conn,
		done: make(chan struct{}),
	}
	l.touch()

	// Server pings count as liveness; reply with pong as the default handler does.
	conn.SetPingHandler(func(data string) error {
		l.touch()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	c.mu.Lock()
	c.link = l
	c.mu.Unlock()

	receivedAt := time.Now()
	for _, rec := range trailing {
		c.handleRecord(l, rec, receivedAt)
	}

	go c.readLoop(l)
	go c.keepAliveLoop(l)

	c.logger.Debug("hub connected", "url", c.cfg.URL)

	return nil
}

// Close closes the current connection. Pending invocations fail with
// ErrConnectionClosed and close handlers receive a nil error.
func (c *Client) Close() error {
	c.mu.Lock()
	l := c.link
	c.link = nil
	c.mu.Unlock()

	if l == nil {
		return nil
	}

	// Send close message
	if err := l.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	); err != nil {
		c.logger.Debug("failed to send close message", "error", err)
	}

	c.terminate(l, nil)
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	return c.current() != nil
}

// Invoke calls a hub method and waits for its completion.
func (c *Client) Invoke(ctx context.Context, target string, args ...any) (json.RawMessage, error) {
	l := c.current()
	if l == nil {
		return nil, ErrNotConnected
	}

	if _, ok := ctx.Deadline(); !ok && c.cfg.InvokeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.InvokeTimeout)
		defer cancel()
	}

	id := strconv.FormatInt(c.nextID.Add(1), 10)
	respCh := make(chan message, 1)

	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if args == nil {
		args = []any{}
	}
	if err := c.write(l, invocation{
		Type:         typeInvocation,
		InvocationID: id,
		Target:       target,
		Arguments:    args,
	}); err != nil {
		return nil, fmt.Errorf("send %s: %w", target, err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != "" {
			return nil, &InvocationError{Target: target, Message: resp.Error}
		}
		return resp.Result, nil
	case <-l.done:
		return nil, fmt.Errorf("invoke %s: %w", target, ErrConnectionClosed)
	case <-ctx.Done():
		return nil, fmt.Errorf("invoke %s: %w", target, ctx.Err())
	}
}

func (c *Client) current() *link {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

// endpoint adds the access token and extra parameters to the hub URL.
func (c *Client) endpoint(token string) (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse hub url: %w", err)
	}

	q := u.Query()
	if c.cfg.Params != nil {
		for k, vs := range c.cfg.Params() {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
	}
	if token != "" {
		q.Set("access_token", token)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// handshake negotiates the JSON protocol on a fresh websocket.
func (c *Client) handshake(conn *websocket.Conn) ([][]byte, error) {
	if c.cfg.HandshakeTimeout > 0 {
		deadline := time.Now().Add(c.cfg.HandshakeTimeout)
		conn.SetWriteDeadline(deadline)
		conn.SetReadDeadline(deadline)
		defer func() {
			conn.SetWriteDeadline(time.Time{})
			conn.SetReadDeadline(time.Time{})
		}()
	}

	data, err := encodeRecord(handshakeRequest{Protocol: "json", Version: 1})
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return nil, fmt.Errorf("%w: send: %v", ErrHandshake, err)
	}

	_, frame, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrHandshake, err)
	}

	return parseHandshake(frame)
}

// write serialises v as one record.
func (c *Client) write(l *link, v any) error {
	data, err := encodeRecord(v)
	if err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		l.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads frames until the connection ends.
func (c *Client) readLoop(l *link) {
	for {
		_, data, err := l.conn.ReadMessage()
		receivedAt := time.Now() // Capture timestamp immediately

		if err != nil {
			// No-op when Close already terminated this link
			c.terminate(l, err)
			return
		}

		l.touch()

		for _, rec := range splitRecords(data) {
			if stop := c.handleRecord(l, rec, receivedAt); stop {
				return
			}
		}
	}
}

// handleRecord processes one record. It returns true when the link ended.
func (c *Client) handleRecord(l *link, rec []byte, receivedAt time.Time) bool {
	var msg message
	if err := json.Unmarshal(rec, &msg); err != nil {
		c.logger.Warn("failed to parse hub message", "error", err)
		return false
	}

	switch msg.Type {
	case typeInvocation:
		c.dispatch(msg.Target, msg.Arguments, receivedAt)

	case typeCompletion:
		c.complete(msg)

	case typePing:
		// Liveness only

	case typeClose:
		c.terminate(l, &ServerCloseError{Message: msg.Error, AllowReconnect: msg.AllowReconnect})
		return true

	default:
		c.logger.Debug("skipping hub message type", "type", msg.Type)
	}

	return false
}

func (c *Client) dispatch(target string, args []json.RawMessage, receivedAt time.Time) {
	c.handlersMu.RLock()
	handlers := c.handlers[strings.ToLower(target)]
	c.handlersMu.RUnlock()

	if len(handlers) == 0 {
		c.logger.Debug("no handler for hub target", "target", target)
		return
	}
	for _, h := range handlers {
		h(args, receivedAt)
	}
}

func (c *Client) complete(msg message) {
	c.pendingMu.Lock()
	respCh, ok := c.pending[msg.InvocationID]
	delete(c.pending, msg.InvocationID)
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Debug("completion for unknown invocation", "invocation_id", msg.InvocationID)
		return
	}
	respCh <- msg
}

// keepAliveLoop sends ping records and drops a silent connection.
func (c *Client) keepAliveLoop(l *link) {
	if c.cfg.KeepAliveInterval <= 0 {
		return
	}

	ticker := time.NewTicker(c.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			if err := c.write(l, ping{Type: typePing}); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			lastSeen := l.seen()
			if c.cfg.ServerTimeout > 0 && time.Since(lastSeen) > c.cfg.ServerTimeout {
				c.logger.Warn("no message received, connection stale",
					"last_seen", lastSeen,
					"timeout", c.cfg.ServerTimeout,
				)
				c.terminate(l, ErrServerTimeout)
				return
			}
		}
	}
}

// terminate ends a link once and notifies close handlers.
func (c *Client) terminate(l *link, cause error) {
	l.once.Do(func() {
		close(l.done)
		l.conn.Close()

		c.mu.Lock()
		if c.link == l {
			c.link = nil
		}
		c.mu.Unlock()

		if cause != nil {
			c.logger.Info("hub connection closed", "error", cause)
		} else {
			c.logger.Debug("hub connection closed")
		}

		c.handlersMu.RLock()
		handlers := append([]func(error){}, c.onClose...)
		c.handlersMu.RUnlock()

		for _, fn := range handlers {
			fn(cause)
		}
	})
}
