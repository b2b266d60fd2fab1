// Package event decodes streamer pushes into typed events.
//
// Variants:
//   - QuoteTrade: last, open, high, low, close, volume and implied values
//   - QuoteBookLevel: bid/ask at depth 1 (top of book) to 5
//   - NewsItem: headline with optional html or plain body
//   - OrderEvent: execution, modification or status change
//
// Prices are decimal.Decimal to keep the exact value sent by the server.
package event
