package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func args(payload string) []json.RawMessage {
	return []json.RawMessage{json.RawMessage(payload)}
}

func TestDecode_QuoteLines(t *testing.T) {
	receivedAt := time.Date(2024, 3, 1, 9, 0, 1, 0, time.UTC)
	payload := `{
		"id": "ApHUX",
		"sdt": "2024-03-01T10:00:00.500+01:00",
		"qt": [
			{"typ": "lst", "prc": 172.35, "vol": 120, "dt": "2024-03-01T10:00:00.250+01:00"},
			{"typ": "bid", "prc": 172.30, "vol": 300, "ord": 4, "dt": "2024-03-01T10:00:00.250+01:00"},
			{"typ": "ask3", "prc": "172.45", "vol": 50, "ord": 1, "dt": "2024-03-01T10:00:00.250+01:00"},
			{"typ": "xyz", "prc": 1},
			{"typ": "vol", "vol": 1250000, "dt": "2024-03-01T10:00:00"}
		]
	}`

	events, err := Decode(TargetQuote, args(payload), receivedAt)
	require.NoError(t, err)
	require.Len(t, events, 4)

	last, ok := events[0].(QuoteTrade)
	require.True(t, ok, "events[0] is %T", events[0])
	assert.Equal(t, "ApHUX", last.InstrumentID)
	assert.Equal(t, TradeLast, last.Type)
	assert.True(t, decimal.RequireFromString("172.35").Equal(last.Price))
	assert.Equal(t, int64(120), last.Volume)
	assert.Equal(t, receivedAt, last.Received())
	assert.Equal(t, KindQuoteTrade, last.Kind())
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 500_000_000, time.UTC), last.ServerTime.UTC())

	bid, ok := events[1].(QuoteBookLevel)
	require.True(t, ok, "events[1] is %T", events[1])
	assert.Equal(t, SideBid, bid.Side)
	assert.Equal(t, 1, bid.Depth)
	assert.Equal(t, int64(4), bid.Orders)

	ask, ok := events[2].(QuoteBookLevel)
	require.True(t, ok, "events[2] is %T", events[2])
	assert.Equal(t, SideAsk, ask.Side)
	assert.Equal(t, 3, ask.Depth)
	assert.Equal(t, "172.45", ask.Price.String())

	vol, ok := events[3].(QuoteTrade)
	require.True(t, ok, "events[3] is %T", events[3])
	assert.Equal(t, TradeVolume, vol.Type)
	assert.True(t, vol.Price.IsZero())
	assert.Equal(t, int64(1250000), vol.Volume)
	assert.Equal(t, 10, vol.Time.Hour())
}

func TestDecode_News(t *testing.T) {
	payload := `{"id":"n-1","dt":"2024-03-01T08:30:00Z","head":"ASML beats estimates","body":"<p>Q4</p>","fmt":"html"}`

	events, err := Decode("news", args(payload), time.Now())
	require.NoError(t, err)
	require.Len(t, events, 1)

	news, ok := events[0].(NewsItem)
	require.True(t, ok)
	assert.Equal(t, "n-1", news.ID)
	assert.Equal(t, "ASML beats estimates", news.Headline)
	assert.Equal(t, "html", news.Format)
	assert.Equal(t, KindNewsItem, news.Kind())
}

func TestDecode_NumericIDs(t *testing.T) {
	events, err := Decode(TargetQuote, args(`{"id": 1331, "qt": [{"typ": "lst", "prc": 9.5, "vol": 10}]}`), time.Now())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "1331", events[0].(QuoteTrade).InstrumentID)

	events, err = Decode(TargetNews, args(`{"id": 42, "head": "h"}`), time.Now())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "42", events[0].(NewsItem).ID)

	_, err = Decode(TargetQuote, args(`{"id": true, "qt": []}`), time.Now())
	assert.Error(t, err)
}

func TestDecode_OrderEvents(t *testing.T) {
	payload := `{
		"accountNumber": "12345678",
		"number": 4711,
		"side": "buy",
		"quantity": 10,
		"lastStatus": "placementConfirmed",
		"expirationDate": "2024-03-29",
		"instrument": {"id": "ApHUX", "name": "Apple Inc."}
	}`

	tests := []struct {
		target string
		want   OrderEventType
	}{
		{TargetOrderExecution, OrderExecution},
		{TargetOrderModified, OrderModified},
		{TargetOrderStatus, OrderStatus},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			events, err := Decode(tt.target, args(payload), time.Now())
			require.NoError(t, err)
			require.Len(t, events, 1)

			order, ok := events[0].(OrderEvent)
			require.True(t, ok)
			assert.Equal(t, tt.want, order.Type)
			assert.Equal(t, "12345678", order.AccountNumber)
			assert.Equal(t, int64(4711), order.Number)
			assert.Equal(t, "ApHUX", order.InstrumentID)
			assert.Equal(t, "Apple Inc.", order.InstrumentName)
			assert.Equal(t, "placementConfirmed", order.Status)
			assert.True(t, decimal.NewFromInt(10).Equal(order.Quantity))
			assert.Equal(t, time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC), order.ExpirationDate)
			assert.JSONEq(t, payload, string(order.Raw))
		})
	}
}

func TestDecode_OrderStatusPrefersStatusField(t *testing.T) {
	events, err := Decode(TargetOrderStatus, args(`{"status":"executed","lastStatus":"placed","instrumentId":"X1"}`), time.Now())
	require.NoError(t, err)

	order := events[0].(OrderEvent)
	assert.Equal(t, "executed", order.Status)
	assert.Equal(t, "X1", order.InstrumentID)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode("Heartbeat", args(`{}`), time.Now())
	assert.ErrorIs(t, err, ErrUnknownTarget)

	_, err = Decode(TargetQuote, nil, time.Now())
	assert.ErrorIs(t, err, ErrMissingPayload)

	_, err = Decode(TargetQuote, args(`{"id":`), time.Now())
	assert.Error(t, err)

	_, err = Decode(TargetNews, args(`{"dt":"yesterday"}`), time.Now())
	assert.Error(t, err)
}

func TestParseBookType(t *testing.T) {
	tests := []struct {
		typ       string
		wantSide  Side
		wantDepth int
		wantOK    bool
	}{
		{"bid", SideBid, 1, true},
		{"ask", SideAsk, 1, true},
		{"bid2", SideBid, 2, true},
		{"ask5", SideAsk, 5, true},
		{"bid1", "", 0, false},
		{"ask6", "", 0, false},
		{"bidx", "", 0, false},
		{"lst", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			side, depth, ok := parseBookType(tt.typ)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantSide, side)
			assert.Equal(t, tt.wantDepth, depth)
		})
	}
}
