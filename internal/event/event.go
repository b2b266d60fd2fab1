package event

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies the variant of an Event.
type Kind string

const (
	KindQuoteTrade     Kind = "quote_trade"
	KindQuoteBookLevel Kind = "quote_book_level"
	KindNewsItem       Kind = "news_item"
	KindOrderEvent     Kind = "order_event"
)

// Event is one decoded server push. The concrete type is one of
// QuoteTrade, QuoteBookLevel, NewsItem or OrderEvent.
type Event interface {
	Kind() Kind
	Received() time.Time
	sealed()
}

// TradeType is the quote type of a non-book quote line.
type TradeType string

const (
	TradeLast              TradeType = "lst" // last trade
	TradeTheoreticalPrice  TradeType = "thp" // theoretical (auction) price
	TradeOpen              TradeType = "opn"
	TradeClose             TradeType = "cls" // previous close
	TradeHigh              TradeType = "hgh"
	TradeLow               TradeType = "low"
	TradeVolume            TradeType = "vol" // cumulative volume
	TradeImpliedInterest   TradeType = "iir"
	TradeImpliedDividend   TradeType = "idv"
	TradeImpliedVolatility TradeType = "ivl"
)

// Side is the side of a book level.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// MaxBookDepth is the deepest book level the feed sends.
const MaxBookDepth = 5

// QuoteTrade is a trade-level quote line (last, open, high, volume, ...).
type QuoteTrade struct {
	InstrumentID string          `json:"instrument_id"`
	Type         TradeType       `json:"type"`
	Price        decimal.Decimal `json:"price"`
	Volume       int64           `json:"volume,omitempty"`
	Time         time.Time       `json:"time"`        // exchange time of the quote
	ServerTime   time.Time       `json:"server_time"` // time the streamer sent the message
	ReceivedAt   time.Time       `json:"received_at"`
}

// QuoteBookLevel is one price level of the order book.
type QuoteBookLevel struct {
	InstrumentID string          `json:"instrument_id"`
	Side         Side            `json:"side"`
	Depth        int             `json:"depth"` // 1 = top of book
	Price        decimal.Decimal `json:"price"`
	Volume       int64           `json:"volume"`
	Orders       int64           `json:"orders"`
	Time         time.Time       `json:"time"`
	ServerTime   time.Time       `json:"server_time"`
	ReceivedAt   time.Time       `json:"received_at"`
}

// NewsItem is a news headline with optional body.
type NewsItem struct {
	ID         string    `json:"id"`
	Headline   string    `json:"headline"`
	Body       string    `json:"body,omitempty"`
	Format     string    `json:"format,omitempty"` // "html" or "plain"
	Time       time.Time `json:"time"`
	ReceivedAt time.Time `json:"received_at"`
}

// OrderEventType identifies which order push produced an OrderEvent.
type OrderEventType string

const (
	OrderExecution OrderEventType = "execution"
	OrderModified  OrderEventType = "modified"
	OrderStatus    OrderEventType = "status"
)

// OrderEvent is an execution, modification or status change of an order.
type OrderEvent struct {
	Type           OrderEventType  `json:"type"`
	AccountNumber  string          `json:"account_number"`
	Number         int64           `json:"number"`
	Side           string          `json:"side,omitempty"`
	InstrumentID   string          `json:"instrument_id,omitempty"`
	InstrumentName string          `json:"instrument_name,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	Status         string          `json:"status,omitempty"`
	ExpirationDate time.Time       `json:"expiration_date"`
	Raw            json.RawMessage `json:"raw"` // full payload, fields vary per event type
	ReceivedAt     time.Time       `json:"received_at"`
}

func (QuoteTrade) Kind() Kind     { return KindQuoteTrade }
func (QuoteBookLevel) Kind() Kind { return KindQuoteBookLevel }
func (NewsItem) Kind() Kind       { return KindNewsItem }
func (OrderEvent) Kind() Kind     { return KindOrderEvent }

func (e QuoteTrade) Received() time.Time     { return e.ReceivedAt }
func (e QuoteBookLevel) Received() time.Time { return e.ReceivedAt }
func (e NewsItem) Received() time.Time       { return e.ReceivedAt }
func (e OrderEvent) Received() time.Time     { return e.ReceivedAt }

func (QuoteTrade) sealed()     {}
func (QuoteBookLevel) sealed() {}
func (NewsItem) sealed()       {}
func (OrderEvent) sealed()     {}
