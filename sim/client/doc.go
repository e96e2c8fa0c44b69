// Package client multiplexes one WebSocket connection to the SimuTrador
// server across many concurrent simulation sessions.
//
// The client package implements:
//   - A single reader goroutine that owns the transport
//   - Request/response correlation keyed by request id
//   - Per-session one-shot events (history snapshot, simulation end)
//   - Per-session typed streams (ticks, execution reports, account snapshots)
//   - Session-scoped failure that never leaks across sessions
//   - Typed trading operations on top of the generic facade
//
// Architecture:
//
// Every inbound frame passes through one dispatcher running on the reader
// goroutine. The dispatcher consults the correlation registry first, then
// the per-session waiter table, and routes the frame without blocking and
// without performing I/O. Slow consumers therefore never stall the
// connection; a stream whose buffer is full drops the newest item and
// counts the drop instead.
//
// Correlation:
//
// Call registers a pending slot under a fresh request id before writing the
// frame, so a reply can never arrive ahead of its waiter. Each slot resolves
// exactly once and is removed at resolution; late replies after a timeout
// are discarded with a diagnostic. A second resolution attempt for the same
// slot means correlation state is corrupt and fails the whole connection.
//
// Session scoping:
//
// A session_error frame fails only the session it names: its unresolved
// waiters, its open streams, and, when the frame echoes a request id, that
// pending call. Every other session on the connection keeps operating.
// When the connection itself ends, everything still outstanding fails with
// ErrConnectionClosed and open streams end after draining their buffers.
//
// Usage:
//
//	c := client.New(client.DialWebSocket(url), client.WithLogger(log))
//	if err := c.Connect(ctx); err != nil {
//		return err
//	}
//	defer c.Close()
//
//	sessionID, err := c.StartSimulation(ctx, req)
//	if err != nil {
//		return err
//	}
//
//	ticks, err := c.Subscribe(sessionID, protocol.StreamTick)
//	if err != nil {
//		return err
//	}
//
//	snapshot, err := c.WaitForHistorySnapshot(ctx, sessionID)
//	if err != nil {
//		return err
//	}
//	_ = snapshot
//
//	for {
//		env, err := ticks.Next(ctx)
//		if err != nil {
//			break
//		}
//		// decode env.Data and trade
//	}
//
// Ordering:
//
// Subscribe before the server starts streaming: items that arrive with no
// subscriber attached are dropped, not retained. One-shot events are the
// exception; their values are retained so waiting after arrival still
// succeeds. Within one session and stream kind, delivery order equals
// arrival order.
package client
