package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Push targets the streamer sends.
const (
	TargetQuote          = "Quote"
	TargetNews           = "News"
	TargetOrderExecution = "OrderExecution"
	TargetOrderModified  = "OrderModified"
	TargetOrderStatus    = "OrderStatus"
)

// Targets lists every push target Decode understands.
func Targets() []string {
	return []string{TargetQuote, TargetNews, TargetOrderExecution, TargetOrderModified, TargetOrderStatus}
}

// Errors
var (
	ErrUnknownTarget  = errors.New("unknown push target")
	ErrMissingPayload = errors.New("push without payload")
)

// Wire types for JSON parsing

// quoteWire is the wire format of a Quote push.
type quoteWire struct {
	ID  flexID          `json:"id"`
	SDT timestamp       `json:"sdt"`
	QT  []quoteLineWire `json:"qt"`
}

// quoteLineWire is one entry of the qt array.
type quoteLineWire struct {
	Typ string          `json:"typ"`
	Prc decimal.Decimal `json:"prc"`
	Vol int64           `json:"vol"`
	Ord int64           `json:"ord"`
	Dt  timestamp       `json:"dt"`
}

// newsWire is the wire format of a News push.
type newsWire struct {
	ID   flexID    `json:"id"`
	Dt   timestamp `json:"dt"`
	Head string    `json:"head"`
	Body string    `json:"body"`
	Fmt  string    `json:"fmt"`
}

// orderWire is the common subset of the order push payloads.
type orderWire struct {
	AccountNumber  string          `json:"accountNumber"`
	Number         int64           `json:"number"`
	Side           string          `json:"side"`
	Quantity       decimal.Decimal `json:"quantity"`
	Status         string          `json:"status"`
	LastStatus     string          `json:"lastStatus"`
	ExpirationDate timestamp       `json:"expirationDate"`
	InstrumentID   flexID          `json:"instrumentId"`
	Instrument     struct {
		ID   flexID `json:"id"`
		Name string `json:"name"`
	} `json:"instrument"`
}

// Decode converts the arguments of one push into events. A Quote push can
// carry several quote lines and yields one event per recognised line.
func Decode(target string, args []json.RawMessage, receivedAt time.Time) ([]Event, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("decode %s: %w", target, ErrMissingPayload)
	}
	payload := args[0]

	switch strings.ToLower(target) {
	case "quote":
		return decodeQuote(payload, receivedAt)
	case "news":
		ev, err := decodeNews(payload, receivedAt)
		if err != nil {
			return nil, err
		}
		return []Event{ev}, nil
	case "orderexecution":
		return decodeOrder(OrderExecution, payload, receivedAt)
	case "ordermodified":
		return decodeOrder(OrderModified, payload, receivedAt)
	case "orderstatus":
		return decodeOrder(OrderStatus, payload, receivedAt)
	default:
		return nil, fmt.Errorf("decode %s: %w", target, ErrUnknownTarget)
	}
}

func decodeQuote(payload json.RawMessage, receivedAt time.Time) ([]Event, error) {
	var wire quoteWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}

	events := make([]Event, 0, len(wire.QT))
	for _, line := range wire.QT {
		if side, depth, ok := parseBookType(line.Typ); ok {
			events = append(events, QuoteBookLevel{
				InstrumentID: string(wire.ID),
				Side:         side,
				Depth:        depth,
				Price:        line.Prc,
				Volume:       line.Vol,
				Orders:       line.Ord,
				Time:         line.Dt.Time,
				ServerTime:   wire.SDT.Time,
				ReceivedAt:   receivedAt,
			})
			continue
		}

		if !isTradeType(line.Typ) {
			// Unknown quote types are skipped
			continue
		}
		events = append(events, QuoteTrade{
			InstrumentID: string(wire.ID),
			Type:         TradeType(line.Typ),
			Price:        line.Prc,
			Volume:       line.Vol,
			Time:         line.Dt.Time,
			ServerTime:   wire.SDT.Time,
			ReceivedAt:   receivedAt,
		})
	}

	return events, nil
}

func decodeNews(payload json.RawMessage, receivedAt time.Time) (NewsItem, error) {
	var wire newsWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return NewsItem{}, fmt.Errorf("decode news: %w", err)
	}

	return NewsItem{
		ID:         string(wire.ID),
		Headline:   wire.Head,
		Body:       wire.Body,
		Format:     wire.Fmt,
		Time:       wire.Dt.Time,
		ReceivedAt: receivedAt,
	}, nil
}

func decodeOrder(typ OrderEventType, payload json.RawMessage, receivedAt time.Time) ([]Event, error) {
	var wire orderWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("decode order %s: %w", typ, err)
	}

	instrumentID := string(wire.Instrument.ID)
	if instrumentID == "" {
		instrumentID = string(wire.InstrumentID)
	}
	status := wire.Status
	if status == "" {
		status = wire.LastStatus
	}

	return []Event{OrderEvent{
		Type:           typ,
		AccountNumber:  wire.AccountNumber,
		Number:         wire.Number,
		Side:           wire.Side,
		InstrumentID:   instrumentID,
		InstrumentName: wire.Instrument.Name,
		Quantity:       wire.Quantity,
		Status:         status,
		ExpirationDate: wire.ExpirationDate.Time,
		Raw:            append(json.RawMessage(nil), payload...),
		ReceivedAt:     receivedAt,
	}}, nil
}

// parseBookType parses "bid", "ask", "bid2" ... "ask5".
func parseBookType(typ string) (Side, int, bool) {
	var side Side
	switch {
	case strings.HasPrefix(typ, string(SideBid)):
		side = SideBid
	case strings.HasPrefix(typ, string(SideAsk)):
		side = SideAsk
	default:
		return "", 0, false
	}

	rest := typ[len(side):]
	if rest == "" {
		return side, 1, true
	}
	depth, err := strconv.Atoi(rest)
	if err != nil || depth < 2 || depth > MaxBookDepth {
		return "", 0, false
	}
	return side, depth, true
}

func isTradeType(typ string) bool {
	switch TradeType(typ) {
	case TradeLast, TradeTheoreticalPrice, TradeOpen, TradeClose, TradeHigh, TradeLow,
		TradeVolume, TradeImpliedInterest, TradeImpliedDividend, TradeImpliedVolatility:
		return true
	}
	return false
}

// timestamp accepts RFC 3339 with or without zone, and plain dates.
// flexID is an identifier sent either as a JSON string or a number.
type flexID string

func (id *flexID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id %s: %w", data, err)
	}
	*id = flexID(n.String())
	return nil
}

type timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func (t *timestamp) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		return nil
	}

	unquoted, err := strconv.Unquote(s)
	if err != nil {
		return fmt.Errorf("timestamp %s: %w", s, err)
	}

	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, unquoted); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp %q: unrecognised format", unquoted)
}
