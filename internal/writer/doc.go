// Package writer records streamer events in TimescaleDB.
//
// EventWriter is a router.Handler. Events are queued without blocking the
// router, transformed into rows and inserted in batches:
//   - QuoteTrade -> quote_trades
//   - QuoteBookLevel -> quote_book_levels
//   - NewsItem -> news_items
//   - OrderEvent -> order_events (raw payload kept as JSONB)
//
// All writes are append-only. Prices are stored as NUMERIC with the exact
// decimal value received.
package writer
