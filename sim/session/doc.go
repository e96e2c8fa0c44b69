// Package session manages simulation sessions on the SimuTrador server.
//
// The session package handles:
//   - Creating sessions with settings-backed defaults
//   - Fetching a single session's status
//   - Listing the caller's sessions
//   - Deleting sessions
//
// Defaults:
//
// Create fills initial capital, data provider, commission and slippage from
// the loaded settings whenever the caller leaves them zero, mirroring how
// operators configure a client once and create many sessions.
//
// Failure rule:
//
// The server answers a failed operation with a type ending in _error; those
// replies surface as *client.ServerError. Every operation is bounded by the
// configured session timeout in addition to the caller's context.
//
// Usage:
//
//	svc := session.NewService(c, settings)
//
//	info, err := svc.Create(ctx, session.CreateParams{
//		Symbols:   []string{"AAPL"},
//		StartDate: start,
//		EndDate:   end,
//	})
//	if err != nil {
//		return err
//	}
//
//	sessions, err := svc.List(ctx)
package session
