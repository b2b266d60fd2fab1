// Package publish forwards streamer events to Redis pub/sub so other
// processes can consume quotes, news and order updates without their own
// streamer session.
package publish
