package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Errors
var (
	ErrNotTracked   = errors.New("key is not tracked")
	ErrLevelNotHeld = errors.New("level has no holders")
	ErrInvalidLevel = errors.New("invalid level")
)

// Level indexes into the ordered level list a Ledger was created with.
// A higher Level is a superset of every lower one.
type Level int

// Intent is a subscribe request that has not been sent yet.
type Intent struct {
	Key   string
	Level Level
}

// Batch groups every key that requests exactly one level.
type Batch struct {
	Level Level
	Keys  []string
}

// Flush is the content of both intent queues at drain time.
type Flush struct {
	Subscribe   []Batch  // ascending level order, empty levels omitted
	Unsubscribe []string // keys whose last holder left
}

// Empty reports whether the flush carries no work.
func (f Flush) Empty() bool {
	return len(f.Subscribe) == 0 && len(f.Unsubscribe) == 0
}

// Record is a read-only view of one tracked key.
type Record struct {
	Key    string
	Counts []int
}

// Highest returns the highest level with at least one holder.
func (r Record) Highest() Level {
	for i := len(r.Counts) - 1; i >= 0; i-- {
		if r.Counts[i] > 0 {
			return Level(i)
		}
	}
	return -1
}

// Ledger holds per-key reference counts and the pending intent queues.
type Ledger struct {
	levels  []string
	records map[string][]int

	subscribe   []Intent
	unsubscribe []string
}

// New creates a Ledger for the given level names, lowest first.
func New(levels ...string) *Ledger {
	return &Ledger{
		levels:  levels,
		records: make(map[string][]int),
	}
}

// Levels returns the number of levels.
func (l *Ledger) Levels() int {
	return len(l.levels)
}

// LevelName returns the name a level was registered with.
func (l *Ledger) LevelName(level Level) string {
	if !l.valid(level) {
		return fmt.Sprintf("level(%d)", int(level))
	}
	return l.levels[level]
}

// Push records one more holder of level for key.
func (l *Ledger) Push(key string, level Level) error {
	if !l.valid(level) {
		return fmt.Errorf("push %q: %w: %d", key, ErrInvalidLevel, int(level))
	}

	counts, ok := l.records[key]
	if !ok {
		counts = make([]int, len(l.levels))
		l.records[key] = counts
		l.cancelUnsubscribe(key)
	}

	counts[level]++
	if counts[level] == 1 {
		l.subscribe = append(l.subscribe, Intent{Key: key, Level: level})
	}
	return nil
}

// Pop releases one holder of level for key. When it was the last holder
// across all levels the record is removed and an unsubscribe is queued.
func (l *Ledger) Pop(key string, level Level) error {
	if !l.valid(level) {
		return fmt.Errorf("pop %q: %w: %d", key, ErrInvalidLevel, int(level))
	}

	counts, ok := l.records[key]
	if !ok {
		return fmt.Errorf("pop %q: %w", key, ErrNotTracked)
	}
	if counts[level] == 0 {
		return fmt.Errorf("pop %q at %s: %w", key, l.levels[level], ErrLevelNotHeld)
	}

	if total(counts) == 1 {
		delete(l.records, key)
		l.unsubscribe = append(l.unsubscribe, key)
		return nil
	}

	counts[level]--
	return nil
}

// HasPendingIntents reports whether subscribe intents are waiting.
func (l *Ledger) HasPendingIntents() bool {
	return len(l.subscribe) > 0
}

// RebuildIntentsFromLedger replaces the intent queues with one subscribe
// intent per tracked key at its highest active level. Used after a
// reconnect, when the server holds no subscriptions for this client.
func (l *Ledger) RebuildIntentsFromLedger() {
	keys := l.sortedKeys()

	l.subscribe = make([]Intent, 0, len(keys))
	for _, key := range keys {
		rec := Record{Key: key, Counts: l.records[key]}
		l.subscribe = append(l.subscribe, Intent{Key: key, Level: rec.Highest()})
	}
	l.unsubscribe = nil
}

// Drain takes both intent queues and leaves them empty. A key appears at
// most once per level batch.
func (l *Ledger) Drain() Flush {
	byLevel := make([][]string, len(l.levels))
	seen := make(map[Intent]struct{}, len(l.subscribe))
	for _, in := range l.subscribe {
		if _, dup := seen[in]; dup {
			continue
		}
		seen[in] = struct{}{}
		byLevel[in.Level] = append(byLevel[in.Level], in.Key)
	}

	var f Flush
	for i, keys := range byLevel {
		if len(keys) > 0 {
			f.Subscribe = append(f.Subscribe, Batch{Level: Level(i), Keys: keys})
		}
	}
	f.Unsubscribe = l.unsubscribe

	l.subscribe = nil
	l.unsubscribe = nil
	return f
}

// SubscribeFunc sends one subscribe batch.
type SubscribeFunc func(ctx context.Context, level Level, keys []string) error

// UnsubscribeFunc sends one unsubscribe batch.
type UnsubscribeFunc func(ctx context.Context, keys []string) error

// DrainAndDispatch drains the queues and sends one call per level followed
// by one unsubscribe call. Every batch is attempted; failures are joined.
func (l *Ledger) DrainAndDispatch(ctx context.Context, subscribe SubscribeFunc, unsubscribe UnsubscribeFunc) error {
	return l.Drain().Dispatch(ctx, subscribe, unsubscribe)
}

// Dispatch sends the flush in order: subscribe batches by ascending level,
// then the unsubscribe batch.
func (f Flush) Dispatch(ctx context.Context, subscribe SubscribeFunc, unsubscribe UnsubscribeFunc) error {
	var errs []error
	for _, b := range f.Subscribe {
		if err := subscribe(ctx, b.Level, b.Keys); err != nil {
			errs = append(errs, err)
		}
	}
	if len(f.Unsubscribe) > 0 {
		if err := unsubscribe(ctx, f.Unsubscribe); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of tracked keys.
func (l *Ledger) Len() int {
	return len(l.records)
}

// Counts returns a copy of the per-level counters for key.
func (l *Ledger) Counts(key string) ([]int, bool) {
	counts, ok := l.records[key]
	if !ok {
		return nil, false
	}
	return append([]int(nil), counts...), true
}

// Snapshot returns every tracked record sorted by key.
func (l *Ledger) Snapshot() []Record {
	keys := l.sortedKeys()
	out := make([]Record, 0, len(keys))
	for _, key := range keys {
		out = append(out, Record{Key: key, Counts: append([]int(nil), l.records[key]...)})
	}
	return out
}

// PendingSubscribes returns a copy of the subscribe queue.
func (l *Ledger) PendingSubscribes() []Intent {
	return append([]Intent(nil), l.subscribe...)
}

// PendingUnsubscribes returns a copy of the unsubscribe queue.
func (l *Ledger) PendingUnsubscribes() []string {
	return append([]string(nil), l.unsubscribe...)
}

func (l *Ledger) valid(level Level) bool {
	return level >= 0 && int(level) < len(l.levels)
}

// cancelUnsubscribe drops a queued unsubscribe for key that was not flushed yet.
func (l *Ledger) cancelUnsubscribe(key string) {
	for i, k := range l.unsubscribe {
		if k == key {
			l.unsubscribe = append(l.unsubscribe[:i], l.unsubscribe[i+1:]...)
			return
		}
	}
}

func (l *Ledger) sortedKeys() []string {
	keys := make([]string, 0, len(l.records))
	for key := range l.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func total(counts []int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}
