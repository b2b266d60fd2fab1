package api

import (
	"log/slog"
	"net/http"
	"time"
)

// maxRetryDelay caps the wait between two attempts.
const maxRetryDelay = 30 * time.Second

// Client talks to the plain HTTP endpoints of the streamer host.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	logger    *slog.Logger

	// retries is the number of extra attempts after a 5xx or 429.
	retries    int
	retryDelay time.Duration
}

// Option configures a Client.
type Option func(*Client)

// NewClient returns a client for the host at baseURL, e.g. the result of
// VersionURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		http:       &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		retries:    3,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithRetries sets how many times a retryable response is repeated and the
// first delay of the exponential backoff between attempts.
func WithRetries(retries int, initialDelay time.Duration) Option {
	return func(c *Client) {
		c.retries = retries
		c.retryDelay = initialDelay
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}
