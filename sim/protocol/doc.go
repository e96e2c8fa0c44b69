// Package protocol defines the wire format spoken with the SimuTrador server.
//
// The protocol package implements:
//   - The Envelope frame exchanged over the WebSocket connection
//   - Message type constants for every request, reply and push
//   - Typed payloads (simulations, candles, orders, fills, account state)
//   - Stream-kind and lifecycle-event classification helpers
//
// Message Protocol:
//
// Every frame is a JSON object with a type tag and an opaque payload:
//
//	{"type": "start_simulation", "request_id": "r1", "data": {...}}
//	{"type": "tick", "session_id": "s1", "data": {...}}
//
// Request/reply frames are correlated by request_id; lifecycle and stream
// pushes are scoped by session_id. Some server builds place session_id only
// inside data, which is why Envelope.SessionScope checks both locations.
//
// Replies whose type is "error" or ends in "_error" report a failure for the
// request that carries the same request_id.
package protocol
