package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/broker-streamer/internal/api"
	"github.com/rickgao/broker-streamer/internal/auth"
	"github.com/rickgao/broker-streamer/internal/config"
	"github.com/rickgao/broker-streamer/internal/database"
	"github.com/rickgao/broker-streamer/internal/event"
	"github.com/rickgao/broker-streamer/internal/logging"
	"github.com/rickgao/broker-streamer/internal/metrics"
	"github.com/rickgao/broker-streamer/internal/publish"
	"github.com/rickgao/broker-streamer/internal/router"
	"github.com/rickgao/broker-streamer/internal/streamer"
	"github.com/rickgao/broker-streamer/internal/supervisor"
	"github.com/rickgao/broker-streamer/internal/version"
	"github.com/rickgao/broker-streamer/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/streamer.local.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional .env file loaded before the config")
	flag.Parse()

	if err := config.LoadEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load env file: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	logger.Info("starting streamer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("streamer failed", "error", err)
		os.Exit(1)
	}

	logger.Info("streamer stopped")
}

// app holds everything run wires together.
type app struct {
	cfg       *config.StreamerConfig
	logger    *slog.Logger
	registry  prometheus.Gatherer
	metrics   *metrics.Metrics
	store     *auth.Store
	session   *streamer.Session
	sup       *supervisor.Supervisor
	pool      *pgxpool.Pool
	redis     *redis.Client
	recorder  *writer.EventWriter
	publisher *publish.Publisher
}

func run(cfg *config.StreamerConfig, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := metrics.NewRegistry()
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  metrics.New(reg),
	}

	// Credentials
	a.store = auth.NewStore(cfg.Account.Number, cfg.Account.AccessToken)
	if cfg.Account.AccessToken == "" {
		if err := a.store.LoadTokenFile(cfg.Account.TokenFile); err != nil {
			return fmt.Errorf("load token: %w", err)
		}
	}

	level, err := streamer.ParseQuoteLevel(cfg.Quotes.Level)
	if err != nil {
		return err
	}

	a.checkVersion(ctx)

	sessionID := uuid.NewString()
	sinks, err := a.startSinks(ctx, sessionID)
	if err != nil {
		return err
	}
	defer a.stopSinks()

	a.sup = supervisor.New(supervisor.Config{
		ExtendInterval: cfg.Session.ExtendInterval,
		InitialDelay:   cfg.Session.ReconnectBaseDelay,
		MaxDelay:       cfg.Session.ReconnectMaxDelay,
		StopTimeout:    5 * time.Second,
	}, nil, logger, a.metrics)

	a.session = streamer.NewSession(sessionConfig(cfg),
		streamer.WithID(sessionID),
		streamer.WithLogger(logger),
		streamer.WithMetrics(a.metrics),
		streamer.WithSubscription(a.subscription),
		streamer.WithErrorHandler(a.sup.HandleError),
		streamer.WithHandler(sinks),
	)
	a.sup.SetSession(a.session)
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		if err := a.session.Close(closeCtx); err != nil {
			logger.Warn("failed to close session", "error", err)
		}
	}()

	// Queued now, sent by the replay on the first start
	if len(cfg.Quotes.Instruments) > 0 {
		if err := a.session.Quotes().AddInstruments(cfg.Quotes.Instruments, level); err != nil {
			return fmt.Errorf("queue instruments: %w", err)
		}
		logger.Info("instruments queued",
			"count", len(cfg.Quotes.Instruments),
			"level", level,
		)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: a.httpHandler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.sup.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("starting http server", "port", cfg.Metrics.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		a.activateFeeds(gctx)
		return nil
	})

	g.Go(func() error {
		a.reloadTokenOnHangup(gctx)
		return nil
	})

	logger.Info("streamer running",
		"session_id", sessionID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	err = g.Wait()
	logger.Info("shutting down...")
	return err
}

func sessionConfig(cfg *config.StreamerConfig) streamer.Config {
	scfg := streamer.DefaultConfig()
	scfg.Hub.URL = cfg.Streamer.URL
	scfg.Hub.UserAgent = version.UserAgent()
	scfg.Hub.HandshakeTimeout = cfg.Streamer.HandshakeTimeout
	scfg.Hub.InvokeTimeout = cfg.Streamer.InvokeTimeout
	scfg.Hub.KeepAliveInterval = cfg.Streamer.KeepAliveInterval
	scfg.Hub.ServerTimeout = cfg.Streamer.ServerTimeout
	scfg.Router.QueueLimit = cfg.Streamer.QueueLimit
	return scfg
}

func (a *app) subscription() streamer.Subscription {
	account, token := a.store.Subscription()
	return streamer.Subscription{ActiveAccountNumber: account, AccessToken: token}
}

// checkVersion logs the streamer host version. Failure is only logged.
func (a *app) checkVersion(ctx context.Context) {
	base := a.cfg.Streamer.APIURL
	if base == "" {
		var err error
		if base, err = api.VersionURL(a.cfg.Streamer.URL); err != nil {
			a.logger.Warn("cannot derive version url", "error", err)
			return
		}
	}

	client := api.NewClient(base,
		api.WithLogger(a.logger),
		api.WithTimeout(10*time.Second),
		api.WithRetries(2, time.Second),
		api.WithUserAgent(version.UserAgent()),
	)

	info, err := client.GetVersion(ctx)
	if err != nil {
		a.logger.Warn("streamer version check failed", "url", base, "error", err)
		return
	}
	a.logger.Info("streamer host reachable",
		"version", info.CurrentVersion,
		"build_date", info.BuildDate,
	)
}

// startSinks creates the optional recorder and publisher and returns the
// handlers the session delivers events to.
func (a *app) startSinks(ctx context.Context, sessionID string) (router.Handlers, error) {
	var sinks router.Handlers

	if a.cfg.Database.Enabled {
		db := a.cfg.Database.Timescale
		a.logger.Info("connecting to database",
			"host", db.Host,
			"port", db.Port,
			"database", db.Name,
		)

		pool, err := database.Connect(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.pool = pool

		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}

		a.recorder = writer.NewEventWriter(writer.WriterConfig{
			BatchSize:     a.cfg.Writers.BatchSize,
			FlushInterval: a.cfg.Writers.FlushInterval,
			BufferSize:    a.cfg.Writers.BufferSize,
		}, pool, sessionID, a.metrics, a.logger)
		// Not bound to ctx so events already routed are still written on shutdown
		if err := a.recorder.Start(context.Background()); err != nil {
			return nil, err
		}
		sinks = append(sinks, a.recorder)
	}

	if a.cfg.Redis.Addr != "" {
		client := publish.NewRedisClient(a.cfg.Redis)
		a.redis = client
		if err := client.Ping(ctx).Err(); err != nil {
			a.logger.Warn("redis not reachable, publishing anyway", "addr", a.cfg.Redis.Addr, "error", err)
		}

		a.publisher = publish.New(client, a.cfg.Redis.ChannelPrefix, a.cfg.Writers.BufferSize, a.metrics, a.logger)
		if err := a.publisher.Start(context.Background()); err != nil {
			return nil, err
		}
		sinks = append(sinks, a.publisher)
	}

	if len(sinks) == 0 {
		sinks = append(sinks, router.HandlerFunc(a.logEvent))
	}
	return sinks, nil
}

func (a *app) stopSinks() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.recorder != nil {
		a.recorder.Stop(ctx)
	}
	if a.publisher != nil {
		a.publisher.Stop(ctx)
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

func (a *app) logEvent(ev event.Event) {
	a.logger.Debug("event", "kind", ev.Kind(), "received_at", ev.Received())
}

// activateFeeds turns on the configured news and order feeds once the
// session has started. Later restarts replay them.
func (a *app) activateFeeds(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-a.sup.Ready():
	}

	if a.cfg.Feeds.News {
		if err := a.session.News().Activate(ctx); err != nil {
			a.logger.Warn("failed to activate news feed", "error", err)
		}
	}
	if a.cfg.Feeds.Orders {
		if err := a.session.Orders().Activate(ctx); err != nil {
			a.logger.Warn("failed to activate orders feed", "error", err)
		}
	}
}

// reloadTokenOnHangup re-reads the token file on SIGHUP and extends the
// current subscriptions with the new token.
func (a *app) reloadTokenOnHangup(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}

		if a.cfg.Account.TokenFile == "" {
			a.logger.Warn("SIGHUP received but no token_file configured")
			continue
		}
		if err := a.store.LoadTokenFile(a.cfg.Account.TokenFile); err != nil {
			a.logger.Error("failed to reload token", "error", err)
			continue
		}
		a.logger.Info("access token reloaded")

		if err := a.session.ExtendSubscriptions(ctx); err != nil {
			a.logger.Warn("extend subscriptions failed", "error", err)
		}
	}
}
