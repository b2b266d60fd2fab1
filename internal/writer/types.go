package writer

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// BufferSize is the number of events waiting for the writer before
	// new ones are dropped (0 = unbounded).
	BufferSize int
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     1000,
		FlushInterval: 5 * time.Second,
		BufferSize:    10000,
	}
}

var errNoDatabase = errors.New("writer has no database")

// Tables written by EventWriter.
const (
	TableQuoteTrades     = "quote_trades"
	TableQuoteBookLevels = "quote_book_levels"
	TableNewsItems       = "news_items"
	TableOrderEvents     = "order_events"
)

// row is one pending insert.
type row interface {
	table() string
	insert() (sql string, args []any)
}

// quoteTradeRow represents a row for the quote_trades table.
type quoteTradeRow struct {
	ID           uuid.UUID
	SessionID    string
	InstrumentID string
	Type         string
	Price        decimal.Decimal
	Volume       int64
	QuoteTime    *time.Time
	ServerTime   *time.Time
	ReceivedAt   time.Time
}

func (quoteTradeRow) table() string { return TableQuoteTrades }

func (r quoteTradeRow) insert() (string, []any) {
	return `
		INSERT INTO quote_trades (id, session_id, instrument_id, type, price, volume, quote_time, server_time, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, []any{r.ID, r.SessionID, r.InstrumentID, r.Type, r.Price, r.Volume, r.QuoteTime, r.ServerTime, r.ReceivedAt}
}

// quoteBookLevelRow represents a row for the quote_book_levels table.
type quoteBookLevelRow struct {
	ID           uuid.UUID
	SessionID    string
	InstrumentID string
	Side         string
	Depth        int
	Price        decimal.Decimal
	Volume       int64
	Orders       int64
	QuoteTime    *time.Time
	ServerTime   *time.Time
	ReceivedAt   time.Time
}

func (quoteBookLevelRow) table() string { return TableQuoteBookLevels }

func (r quoteBookLevelRow) insert() (string, []any) {
	return `
		INSERT INTO quote_book_levels (id, session_id, instrument_id, side, depth, price, volume, orders, quote_time, server_time, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`, []any{r.ID, r.SessionID, r.InstrumentID, r.Side, r.Depth, r.Price, r.Volume, r.Orders, r.QuoteTime, r.ServerTime, r.ReceivedAt}
}

// newsItemRow represents a row for the news_items table.
type newsItemRow struct {
	ID         uuid.UUID
	SessionID  string
	NewsID     string
	Headline   string
	Body       string
	Format     string
	NewsTime   *time.Time
	ReceivedAt time.Time
}

func (newsItemRow) table() string { return TableNewsItems }

func (r newsItemRow) insert() (string, []any) {
	return `
		INSERT INTO news_items (id, session_id, news_id, headline, body, format, news_time, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, []any{r.ID, r.SessionID, r.NewsID, r.Headline, r.Body, r.Format, r.NewsTime, r.ReceivedAt}
}

// orderEventRow represents a row for the order_events table.
type orderEventRow struct {
	ID             uuid.UUID
	SessionID      string
	Type           string
	AccountNumber  string
	OrderNumber    int64
	Side           string
	InstrumentID   string
	Quantity       decimal.Decimal
	Status         string
	ExpirationDate *time.Time
	Payload        json.RawMessage // JSONB, the push as received
	ReceivedAt     time.Time
}

func (orderEventRow) table() string { return TableOrderEvents }

func (r orderEventRow) insert() (string, []any) {
	return `
		INSERT INTO order_events (id, session_id, type, account_number, order_number, side, instrument_id, quantity, status, expiration_date, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`, []any{r.ID, r.SessionID, r.Type, r.AccountNumber, r.OrderNumber, r.Side, r.InstrumentID, r.Quantity, r.Status, r.ExpirationDate, r.Payload, r.ReceivedAt}
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Dropped   int64
	Flushes   int64
}
