package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHandshakeTimeout   = 15 * time.Second
	DefaultInvokeTimeout      = 30 * time.Second
	DefaultKeepAliveInterval  = 15 * time.Second
	DefaultServerTimeout      = 30 * time.Second
	DefaultQueueLimit         = 100000
	DefaultQuoteLevel         = "Trades"
	DefaultExtendInterval     = 30 * time.Minute
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultBatchSize          = 1000
	DefaultFlushInterval      = 1 * time.Second
	DefaultBufferSize         = 10000
	DefaultRedisChannelPrefix = "streamer"
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

func (c *StreamerConfig) applyDefaults() {
	// Streamer defaults
	if c.Streamer.HandshakeTimeout == 0 {
		c.Streamer.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Streamer.InvokeTimeout == 0 {
		c.Streamer.InvokeTimeout = DefaultInvokeTimeout
	}
	if c.Streamer.KeepAliveInterval == 0 {
		c.Streamer.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if c.Streamer.ServerTimeout == 0 {
		c.Streamer.ServerTimeout = DefaultServerTimeout
	}
	if c.Streamer.QueueLimit == 0 {
		c.Streamer.QueueLimit = DefaultQueueLimit
	}

	// Quotes defaults
	if c.Quotes.Level == "" {
		c.Quotes.Level = DefaultQuoteLevel
	}

	// Session defaults
	if c.Session.ExtendInterval == 0 {
		c.Session.ExtendInterval = DefaultExtendInterval
	}
	if c.Session.ReconnectBaseDelay == 0 {
		c.Session.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Session.ReconnectMaxDelay == 0 {
		c.Session.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultBufferSize
	}

	// Redis defaults
	if c.Redis.ChannelPrefix == "" {
		c.Redis.ChannelPrefix = DefaultRedisChannelPrefix
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
