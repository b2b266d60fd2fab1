// Package supervisor keeps a streamer session alive.
//
// The session itself only reports a lost connection. The supervisor turns
// that report into a restart with exponential backoff, extends the server
// side subscriptions on a fixed interval, and stops the session when its
// context ends.
package supervisor
