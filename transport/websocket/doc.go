// Package websocket provides the WebSocket transport for the SimuTrador client.
//
// The websocket package implements:
//   - Dialing the simulation server with a context-aware handshake
//   - A single long-lived connection carrying JSON text frames
//   - Serialized writes so concurrent callers never interleave frames
//   - Idempotent close with a proper close handshake
//   - An in-process FakeServer for tests
//
// Architecture:
//
// The package wraps a single gorilla/websocket connection in a Conn. One
// goroutine (the client's reader loop) owns ReadMessage; any number of
// goroutines may call WriteMessage, which takes an internal write lock
// because the underlying connection supports at most one writer at a time.
//
// Message Protocol:
//
// Frames are JSON-encoded envelopes defined by the sim/protocol package:
//   - Outgoing: {type: "order_batch", request_id: "...", data: {...}}
//   - Incoming: {type: "tick", data: {session_id: "...", candles: {...}}}
//
// The transport itself is payload-agnostic; it moves opaque byte slices and
// leaves envelope semantics to the caller.
//
// Usage:
//
//	conn, err := websocket.Dial(ctx, "ws://127.0.0.1:8003/ws/simulate")
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	for {
//		raw, err := conn.ReadMessage()
//		if err != nil {
//			return err
//		}
//		// decode and dispatch raw
//	}
//
// Concurrency:
//
// ReadMessage must be confined to a single goroutine. WriteMessage and Close
// are safe for concurrent use. Closing the connection unblocks a pending
// ReadMessage with an error.
package websocket
