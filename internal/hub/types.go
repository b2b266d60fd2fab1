package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyStarted   = errors.New("already started")
	ErrConnectionClosed = errors.New("connection closed")
	ErrServerTimeout    = errors.New("server timeout (no message received)")
	ErrHandshake        = errors.New("handshake failed")
)

// InvocationError is a completion that carried an error from the hub.
type InvocationError struct {
	Target  string
	Message string
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("hub invocation %s failed: %s", e.Target, e.Message)
}

// ServerCloseError is the reason a hub gave in its close message.
type ServerCloseError struct {
	Message        string
	AllowReconnect bool
}

func (e *ServerCloseError) Error() string {
	if e.Message == "" {
		return "server closed the connection"
	}
	return "server closed the connection: " + e.Message
}

// PushHandler receives the arguments of a server-to-client invocation.
// It runs on the read goroutine and must not block.
type PushHandler func(args []json.RawMessage, receivedAt time.Time)

// Config configures a hub Client.
type Config struct {
	URL               string            // Hub endpoint (e.g., wss://realtime.sandbox.example.com/stream)
	Params            func() url.Values // Extra query parameters, polled on every Start
	Token             func() string     // Access token, polled on every Start
	UserAgent         string            // Sent on the upgrade request
	HandshakeTimeout  time.Duration     // Websocket dial + protocol handshake
	InvokeTimeout     time.Duration     // Applied when the caller's context has no deadline
	WriteTimeout      time.Duration     // Write deadline for sends
	KeepAliveInterval time.Duration     // Ping record interval
	ServerTimeout     time.Duration     // Max silence from server before the connection is dropped
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  15 * time.Second,
		InvokeTimeout:     30 * time.Second,
		WriteTimeout:      5 * time.Second,
		KeepAliveInterval: 15 * time.Second,
		ServerTimeout:     30 * time.Second,
	}
}
