package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var quoteLevels = []string{"Trades", "TopOfBook", "Book"}

// Validate checks that all required fields are set and values are valid.
func (c *StreamerConfig) Validate() error {
	if c.Account.Number == "" {
		return errors.New("account.number is required")
	}
	if c.Account.AccessToken == "" && c.Account.TokenFile == "" {
		return errors.New("account.access_token or account.token_file is required")
	}

	if c.Streamer.URL == "" {
		return errors.New("streamer.url is required")
	}
	u, err := url.Parse(c.Streamer.URL)
	if err != nil {
		return fmt.Errorf("streamer.url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("streamer.url must use ws, wss, http or https, got %q", u.Scheme)
	}
	if c.Streamer.QueueLimit < 0 {
		return errors.New("streamer.queue_limit must be >= 0")
	}

	if !validQuoteLevel(c.Quotes.Level) {
		return fmt.Errorf("quotes.level must be one of %s, got %q", strings.Join(quoteLevels, ", "), c.Quotes.Level)
	}
	for i, id := range c.Quotes.Instruments {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("quotes.instruments[%d] is empty", i)
		}
	}

	if c.Session.ReconnectMaxDelay < c.Session.ReconnectBaseDelay {
		return fmt.Errorf("session.reconnect_max_delay (%s) cannot be less than reconnect_base_delay (%s)",
			c.Session.ReconnectMaxDelay, c.Session.ReconnectBaseDelay)
	}

	if c.Database.Enabled {
		if err := c.Database.Timescale.validate("database.timescale"); err != nil {
			return err
		}
		if c.Writers.BatchSize < 1 {
			return errors.New("writers.batch_size must be >= 1")
		}
		if c.Writers.BufferSize < 1 {
			return errors.New("writers.buffer_size must be >= 1")
		}
	}

	if c.Redis.DB < 0 {
		return errors.New("redis.db must be >= 0")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func validQuoteLevel(level string) bool {
	for _, l := range quoteLevels {
		if strings.EqualFold(level, l) {
			return true
		}
	}
	return false
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
