// streamtest connects to the streamer and prints decoded events to the console.
// Usage: go run ./cmd/streamtest -config configs/streamer.local.yaml -instruments ApHUX,ApVDv -level Book
//
// The account number and access token come from the config file, usually via
// ${STREAMER_ACCOUNT} and ${STREAMER_TOKEN} in a .env file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/broker-streamer/internal/api"
	"github.com/rickgao/broker-streamer/internal/auth"
	"github.com/rickgao/broker-streamer/internal/config"
	"github.com/rickgao/broker-streamer/internal/event"
	"github.com/rickgao/broker-streamer/internal/router"
	"github.com/rickgao/broker-streamer/internal/streamer"
	"github.com/rickgao/broker-streamer/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/streamer.example.yaml", "path to config file")
	instruments := flag.String("instruments", "", "comma separated instrument ids (overrides quotes.instruments)")
	levelName := flag.String("level", "", "quote level: Trades, TopOfBook or Book (overrides quotes.level)")
	news := flag.Bool("news", false, "subscribe to the news feed")
	orders := flag.Bool("orders", false, "subscribe to the orders feed")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	duration := flag.Duration("duration", 0, "stop after this long (0 = until Ctrl+C)")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	if err := config.LoadEnv(".env"); err != nil {
		logger.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	keys := cfg.Quotes.Instruments
	if *instruments != "" {
		keys = splitList(*instruments)
	}
	if *levelName != "" {
		cfg.Quotes.Level = *levelName
	}
	level, err := streamer.ParseQuoteLevel(cfg.Quotes.Level)
	if err != nil {
		logger.Error("invalid level", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	printVersion(ctx, cfg, logger)

	store := auth.NewStore(cfg.Account.Number, cfg.Account.AccessToken)
	if cfg.Account.AccessToken == "" {
		if err := store.LoadTokenFile(cfg.Account.TokenFile); err != nil {
			logger.Error("failed to load token", "error", err)
			os.Exit(1)
		}
	}

	scfg := streamer.DefaultConfig()
	scfg.Hub.URL = cfg.Streamer.URL
	scfg.Hub.UserAgent = version.UserAgent()
	scfg.Router.QueueLimit = cfg.Streamer.QueueLimit

	session := streamer.NewSession(scfg,
		streamer.WithLogger(logger),
		streamer.WithSubscription(func() streamer.Subscription {
			account, token := store.Subscription()
			return streamer.Subscription{ActiveAccountNumber: account, AccessToken: token}
		}),
		streamer.WithErrorHandler(func(code streamer.ErrorCode, description string) {
			logger.Warn("streamer error", "code", code, "description", description)
			if code == streamer.CodeDisconnected {
				cancel()
			}
		}),
		streamer.WithHandler(router.HandlerFunc(func(ev event.Event) {
			printEvent(ev, *verbose)
		})),
	)

	if len(keys) > 0 {
		if err := session.Quotes().AddInstruments(keys, level); err != nil {
			logger.Error("failed to queue instruments", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("connecting", "url", cfg.Streamer.URL, "account", cfg.Account.Number)
	if err := session.Start(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	if *news {
		if err := session.News().Activate(ctx); err != nil {
			logger.Error("failed to subscribe to news", "error", err)
		}
	}
	if *orders {
		if err := session.Orders().Activate(ctx); err != nil {
			logger.Error("failed to subscribe to orders", "error", err)
		}
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := session.RouterStats()
				logger.Info("stats",
					"state", session.State(),
					"instruments", len(session.Quotes().Snapshot()),
					"pushes_received", stats.PushesReceived,
					"events_routed", stats.EventsRouted,
					"decode_errors", stats.DecodeErrors,
					"queue", stats.Queue.Count,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop",
		"instruments", keys,
		"level", level,
		"news", *news,
		"orders", *orders,
	)

	// Wait for shutdown
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	if err := session.Close(shutdownCtx); err != nil {
		logger.Warn("close failed", "error", err)
	}

	logger.Info("shutdown complete")
}

func printVersion(ctx context.Context, cfg *config.StreamerConfig, logger *slog.Logger) {
	base := cfg.Streamer.APIURL
	if base == "" {
		var err error
		if base, err = api.VersionURL(cfg.Streamer.URL); err != nil {
			logger.Warn("cannot derive version url", "error", err)
			return
		}
	}

	info, err := api.NewClient(base, api.WithLogger(logger), api.WithRetries(0, time.Second)).GetVersion(ctx)
	if err != nil {
		logger.Warn("version check failed", "error", err)
		return
	}
	fmt.Printf("[VERSION] streamer=%s build=%s\n", info.CurrentVersion, info.BuildDate.Format(time.RFC3339))
}

func printEvent(ev event.Event, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(ev, "", "  ")
		fmt.Printf("[%s] %s\n", strings.ToUpper(string(ev.Kind())), data)
		return
	}

	switch e := ev.(type) {
	case event.QuoteTrade:
		fmt.Printf("[TRADE] instrument=%s type=%s price=%s volume=%d time=%s\n",
			e.InstrumentID, e.Type, e.Price, e.Volume, e.Time.Format(time.TimeOnly))
	case event.QuoteBookLevel:
		fmt.Printf("[BOOK] instrument=%s side=%s depth=%d price=%s volume=%d orders=%d\n",
			e.InstrumentID, e.Side, e.Depth, e.Price, e.Volume, e.Orders)
	case event.NewsItem:
		fmt.Printf("[NEWS] id=%s headline=%q\n", e.ID, e.Headline)
	case event.OrderEvent:
		fmt.Printf("[ORDER %s] account=%s number=%d instrument=%s qty=%s status=%s\n",
			strings.ToUpper(string(e.Type)), e.AccountNumber, e.Number, e.InstrumentName, e.Quantity, e.Status)
	default:
		fmt.Printf("[%s] %+v\n", ev.Kind(), ev)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
