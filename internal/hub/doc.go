// Package hub implements a client for the streamer's real-time hub.
//
// The hub speaks the SignalR JSON protocol (version 1) over a websocket:
//   - every record is a JSON object terminated by 0x1E
//   - the client opens with a protocol handshake
//   - Invoke sends an invocation and waits for the matching completion
//   - server pushes arrive as invocations without an id and go to handlers
//     registered with On
//
// Keep-alive pings are sent every KeepAliveInterval, and a connection that
// stays silent for ServerTimeout is dropped.
package hub
