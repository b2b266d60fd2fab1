// Package ledger implements reference-counted subscription bookkeeping.
//
// A Ledger tracks, per key, how many consumers want each of N ordered levels
// active. Levels are counted independently but are assumed to nest on the
// server side: a higher level carries everything a lower one does.
//
// Mutations record intents rather than talking to the network:
//   - Push enqueues a subscribe intent when a level goes from 0 to 1 holders
//   - Pop enqueues an unsubscribe intent when the last holder of a key leaves
//   - Drain hands both queues to the caller, batched by level
//
// A Ledger is not safe for concurrent use. The owner serialises access.
package ledger
