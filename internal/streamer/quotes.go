package streamer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rickgao/broker-streamer/internal/ledger"
)

// QuoteSubscriptions tracks which instruments are wanted at which level and
// sends the difference to the hub on activation.
type QuoteSubscriptions struct {
	requester
	conn         func() (Connection, bool)
	subscription func() Subscription

	mu     sync.Mutex
	ledger *ledger.Ledger
}

func newQuoteSubscriptions(req requester, conn func() (Connection, bool), subscription func() Subscription) *QuoteSubscriptions {
	names := make([]string, 0, 3)
	for _, lvl := range QuoteLevels() {
		names = append(names, string(lvl))
	}

	return &QuoteSubscriptions{
		requester:    req,
		conn:         conn,
		subscription: subscription,
		ledger:       ledger.New(names...),
	}
}

// AddInstruments adds one holder of level for every key. Nothing is sent
// until ActivateSubscriptions.
func (q *QuoteSubscriptions) AddInstruments(keys []string, level QuoteLevel) error {
	idx, err := level.index()
	if err != nil {
		return fmt.Errorf("add instruments: %w", err)
	}

	q.mu.Lock()
	var errs []error
	for _, key := range keys {
		if err := q.ledger.Push(key, idx); err != nil {
			errs = append(errs, err)
		}
	}
	tracked := q.ledger.Len()
	q.mu.Unlock()

	q.metrics.SetTrackedInstruments(tracked)
	q.logger.Debug("instruments added", "instrument_ids", keys, "level", level)
	return errors.Join(errs...)
}

// DeleteInstruments releases one holder of level for every key. Keys that are
// not tracked or not held at level are reported in the returned error; the
// other keys of the call are still released.
func (q *QuoteSubscriptions) DeleteInstruments(keys []string, level QuoteLevel) error {
	idx, err := level.index()
	if err != nil {
		return fmt.Errorf("delete instruments: %w", err)
	}

	q.mu.Lock()
	var errs []error
	for _, key := range keys {
		if err := q.ledger.Pop(key, idx); err != nil {
			errs = append(errs, err)
		}
	}
	tracked := q.ledger.Len()
	q.mu.Unlock()

	q.metrics.SetTrackedInstruments(tracked)
	q.logger.Debug("instruments deleted", "instrument_ids", keys, "level", level)
	return errors.Join(errs...)
}

// ActivateSubscriptions sends the queued intents: one SubscribeQuotes per
// level, lowest first, then one UnSubscribeQuotes. When the session is not
// connected it does nothing and the intents stay queued.
//
// Failed requests are reported and returned but not rolled back; the ledger
// already reflects the wanted state.
func (q *QuoteSubscriptions) ActivateSubscriptions(ctx context.Context) error {
	conn, ok := q.conn()
	if !ok {
		q.logger.Info("not connected, quote subscriptions stay queued")
		return nil
	}

	q.mu.Lock()
	flush := q.ledger.Drain()
	q.mu.Unlock()

	if flush.Empty() {
		return nil
	}

	return flush.Dispatch(ctx,
		func(ctx context.Context, lvl ledger.Level, keys []string) error {
			return q.subscribe(ctx, conn, QuoteLevels()[lvl], keys)
		},
		func(ctx context.Context, keys []string) error {
			return q.unsubscribe(ctx, conn, keys)
		},
	)
}

// HasSubscriptionsToBeActivated requeues every tracked instrument at its
// highest level and reports whether anything is left to send. Used after a
// reconnect, when the server has forgotten all subscriptions.
func (q *QuoteSubscriptions) HasSubscriptionsToBeActivated() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.ledger.RebuildIntentsFromLedger()
	return q.ledger.HasPendingIntents()
}

// Snapshot returns the tracked instruments, sorted by key.
func (q *QuoteSubscriptions) Snapshot() []InstrumentSubscription {
	q.mu.Lock()
	records := q.ledger.Snapshot()
	q.mu.Unlock()

	levels := QuoteLevels()
	out := make([]InstrumentSubscription, 0, len(records))
	for _, rec := range records {
		counts := make(map[QuoteLevel]int, len(levels))
		for i, n := range rec.Counts {
			if n > 0 {
				counts[levels[i]] = n
			}
		}
		out = append(out, InstrumentSubscription{
			InstrumentID: rec.Key,
			Level:        levels[rec.Highest()],
			Holders:      counts,
		})
	}
	return out
}

// InstrumentSubscription is one tracked instrument.
type InstrumentSubscription struct {
	InstrumentID string             `json:"instrument_id"`
	Level        QuoteLevel         `json:"level"`
	Holders      map[QuoteLevel]int `json:"holders"`
}

func (q *QuoteSubscriptions) subscribe(ctx context.Context, conn Connection, level QuoteLevel, keys []string) error {
	sub := q.subscription()
	subject := fmt.Sprintf("%s at level %s", strings.Join(keys, ", "), level)

	q.logger.Info("subscribing to quotes", "instrument_ids", keys, "level", level, "account", sub.ActiveAccountNumber)
	resp, err := q.invoke(ctx, conn, TargetSubscribeQuotes, subject, sub.ActiveAccountNumber, keys, string(level))
	if err != nil {
		return err
	}

	q.metrics.AddIntents("subscribe", string(level), len(keys))
	q.logger.Info("subscribed to quotes", "level", level, "subscriptions", resp.SubCount)
	return nil
}

func (q *QuoteSubscriptions) unsubscribe(ctx context.Context, conn Connection, keys []string) error {
	q.logger.Info("unsubscribing from quotes", "instrument_ids", keys)
	resp, err := q.invoke(ctx, conn, TargetUnSubscribeQuotes, strings.Join(keys, ", "), keys)
	if err != nil {
		return err
	}

	q.metrics.AddIntents("unsubscribe", "", len(keys))
	q.logger.Info("unsubscribed from quotes", "subscriptions", resp.SubCount)
	return nil
}
