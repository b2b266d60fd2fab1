// Package streamer manages one realtime session with the broker's streamer hub.
//
// A Session owns the hub connection and three subscription families:
//   - Quotes: reference-counted instrument subscriptions at Trades,
//     TopOfBook or Book level, batched per level on activation
//   - News: a single on/off feed for the active account
//   - Orders: a single on/off feed for the active account
//
// Subscriptions survive reconnects. Start replays quotes, then news, then
// orders. Errors are reported through an ErrorHandler with a short code and a
// human readable description; recovery policy is left to the caller.
//
// Lifecycle:
//
//	Disconnected --Start--> Connecting --ok--> Connected
//	     ^                      |                  |
//	     +-------fail-----------+                  |
//	     +-------------Stop or connection lost-----+
package streamer
