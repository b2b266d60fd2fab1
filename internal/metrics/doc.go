// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Session connection state and restarts
//   - Tracked instruments and dispatched subscription intents
//   - Failed hub invocations by target
//   - Decoded events, decode errors and dropped pushes
//   - Recorder rows and publish errors
package metrics
