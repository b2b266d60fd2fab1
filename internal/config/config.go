package config

import "time"

// StreamerConfig is the root configuration for a streamer instance.
type StreamerConfig struct {
	Account  AccountConfig  `yaml:"account"`
	Streamer EndpointConfig `yaml:"streamer"`
	Quotes   QuotesConfig   `yaml:"quotes"`
	Feeds    FeedsConfig    `yaml:"feeds"`
	Session  SessionConfig  `yaml:"session"`
	Database DatabaseConfig `yaml:"database"`
	Writers  WritersConfig  `yaml:"writers"`
	Redis    RedisConfig    `yaml:"redis"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AccountConfig holds the brokerage account and its credentials.
type AccountConfig struct {
	Number      string `yaml:"number"`
	AccessToken string `yaml:"access_token"` // Takes precedence over token_file at startup
	TokenFile   string `yaml:"token_file"`   // Written by the external token exchange, reloaded on SIGHUP
}

// EndpointConfig holds streamer hub and REST API settings.
type EndpointConfig struct {
	URL               string        `yaml:"url"`     // Hub endpoint, wss://...
	APIURL            string        `yaml:"api_url"` // REST base URL, derived from url when empty
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	InvokeTimeout     time.Duration `yaml:"invoke_timeout"`
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval"`
	ServerTimeout     time.Duration `yaml:"server_timeout"`
	QueueLimit        int           `yaml:"queue_limit"` // Push events waiting for handlers (0 = unbounded)
}

// QuotesConfig lists the instruments subscribed at startup.
type QuotesConfig struct {
	Instruments []string `yaml:"instruments"`
	Level       string   `yaml:"level"` // Trades, TopOfBook or Book
}

// FeedsConfig selects the account-wide feeds activated at startup.
type FeedsConfig struct {
	News   bool `yaml:"news"`
	Orders bool `yaml:"orders"`
}

// SessionConfig holds reconnect and subscription extension settings.
type SessionConfig struct {
	ExtendInterval     time.Duration `yaml:"extend_interval"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
}

// DatabaseConfig holds the TimescaleDB connection for recorded events.
// Recording is off when Enabled is false.
type DatabaseConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// RedisConfig holds the event publisher settings. Publishing is off when
// Addr is empty.
type RedisConfig struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// MetricsConfig holds Prometheus metrics and debug endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
