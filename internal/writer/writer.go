package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/broker-streamer/internal/event"
	"github.com/rickgao/broker-streamer/internal/metrics"
	"github.com/rickgao/broker-streamer/internal/router"
)

// DB is the part of *pgxpool.Pool the writer uses.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// EventWriter records streamer events in TimescaleDB. It implements
// router.Handler; HandleEvent only queues, inserts happen in batches on the
// writer's own goroutine.
type EventWriter struct {
	cfg       WriterConfig
	sessionID string
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// Input from the event router
	input *router.Queue[event.Event]

	// Database
	db DB

	// Batching
	batch       []row
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats
	stats WriterMetrics
}

// NewEventWriter creates a new EventWriter. sessionID is stored with every
// row so records of different sessions can be told apart.
func NewEventWriter(
	cfg WriterConfig,
	db DB,
	sessionID string,
	m *metrics.Metrics,
	logger *slog.Logger,
) *EventWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultWriterConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultWriterConfig().FlushInterval
	}
	return &EventWriter{
		cfg:       cfg,
		sessionID: sessionID,
		logger:    logger,
		metrics:   m,
		input:     router.NewQueue[event.Event](cfg.BufferSize),
		db:        db,
		batch:     make([]row, 0, cfg.BatchSize),
	}
}

// HandleEvent queues an event for writing. Never blocks.
func (w *EventWriter) HandleEvent(ev event.Event) {
	if !w.input.Send(ev) {
		w.batchMu.Lock()
		w.stats.Dropped++
		w.batchMu.Unlock()
		w.logger.Warn("writer buffer full, dropping event", "kind", ev.Kind())
	}
}

// Start begins consuming events and writing to the database.
func (w *EventWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	// Closing the input lets consumeLoop drain and exit
	go func() {
		<-w.ctx.Done()
		w.input.Close()
	}()

	w.logger.Info("event writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer and flushes what is left.
func (w *EventWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping event writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("event writer stopped")
	case <-ctx.Done():
		w.logger.Warn("event writer stop timed out")
	}

	// Final flush
	w.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (w *EventWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

// consumeLoop reads from the input queue and accumulates batches.
func (w *EventWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		ev, ok := w.input.Receive()
		if !ok {
			return
		}
		w.handleEvent(ev)
	}
}

// flushLoop periodically flushes the batch.
func (w *EventWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// handleEvent transforms and adds an event to the batch.
func (w *EventWriter) handleEvent(ev event.Event) {
	r, ok := w.transform(ev)
	if !ok {
		return
	}

	w.batchMu.Lock()
	w.batch = append(w.batch, r)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transform converts an event to its table row.
func (w *EventWriter) transform(ev event.Event) (row, bool) {
	switch e := ev.(type) {
	case event.QuoteTrade:
		return quoteTradeRow{
			ID:           uuid.New(),
			SessionID:    w.sessionID,
			InstrumentID: e.InstrumentID,
			Type:         string(e.Type),
			Price:        e.Price,
			Volume:       e.Volume,
			QuoteTime:    nullTime(e.Time),
			ServerTime:   nullTime(e.ServerTime),
			ReceivedAt:   e.ReceivedAt,
		}, true

	case event.QuoteBookLevel:
		return quoteBookLevelRow{
			ID:           uuid.New(),
			SessionID:    w.sessionID,
			InstrumentID: e.InstrumentID,
			Side:         string(e.Side),
			Depth:        e.Depth,
			Price:        e.Price,
			Volume:       e.Volume,
			Orders:       e.Orders,
			QuoteTime:    nullTime(e.Time),
			ServerTime:   nullTime(e.ServerTime),
			ReceivedAt:   e.ReceivedAt,
		}, true

	case event.NewsItem:
		return newsItemRow{
			ID:         uuid.New(),
			SessionID:  w.sessionID,
			NewsID:     e.ID,
			Headline:   e.Headline,
			Body:       e.Body,
			Format:     e.Format,
			NewsTime:   nullTime(e.Time),
			ReceivedAt: e.ReceivedAt,
		}, true

	case event.OrderEvent:
		return orderEventRow{
			ID:             uuid.New(),
			SessionID:      w.sessionID,
			Type:           string(e.Type),
			AccountNumber:  e.AccountNumber,
			OrderNumber:    e.Number,
			Side:           e.Side,
			InstrumentID:   e.InstrumentID,
			Quantity:       e.Quantity,
			Status:         e.Status,
			ExpirationDate: nullTime(e.ExpirationDate),
			Payload:        e.Raw,
			ReceivedAt:     e.ReceivedAt,
		}, true
	}

	w.logger.Debug("no table for event", "kind", ev.Kind())
	return nil, false
}

// flush writes the current batch to the database.
func (w *EventWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]row, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		// Writer context is already cancelled during the final flush
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	start := time.Now()

	inserted, conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		for table := range countByTable(batch) {
			w.metrics.IncWriterError(table)
		}
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		return
	}

	for table, n := range inserted {
		w.metrics.AddWriterRows(table, n)
	}

	w.batchMu.Lock()
	w.stats.Inserts += int64(len(batch) - conflicts)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *EventWriter) batchInsert(ctx context.Context, rows []row) (inserted map[string]int, conflicts int, err error) {
	if w.db == nil {
		return nil, 0, errNoDatabase
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		sql, args := r.insert()
		batch.Queue(sql, args...)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	inserted = make(map[string]int)
	for _, r := range rows {
		ct, err := results.Exec()
		if err != nil {
			return nil, 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
			continue
		}
		inserted[r.table()]++
	}

	return inserted, conflicts, nil
}

func countByTable(rows []row) map[string]int {
	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.table()]++
	}
	return counts
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
