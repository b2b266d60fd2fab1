// Package database provides the TimescaleDB connection pool used to record
// streamer events.
//
// Tables (see EnsureSchema):
//   - quote_trades: last, open, high, low, close, volume and implied values
//   - quote_book_levels: bid/ask updates per depth
//   - news_items: news headlines
//   - order_events: order execution, modification and status pushes
package database
