// Package router moves server pushes off the hub read loop.
//
// The hub client enqueues raw pushes without blocking; a single router
// goroutine decodes them into events and calls the configured Handler, so
// handlers see events in arrival order.
package router
