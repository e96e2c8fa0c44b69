package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when an operation needs a live
	// connection and Connect has not succeeded yet.
	ErrNotConnected = errors.New("client is not connected")

	// ErrConnectionClosed fails every pending call, event waiter and
	// subscription when the connection goes away, and any operation
	// attempted afterwards.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrAlreadySubscribed is returned by Subscribe when the stream kind
	// already has a live subscriber for that session.
	ErrAlreadySubscribed = errors.New("stream already has a subscriber")

	// ErrStreamEnded is returned by Subscription.Next after Cancel, once
	// any buffered items have been drained.
	ErrStreamEnded = errors.New("stream ended")

	// ErrDuplicateResolve reports a second resolution attempt on a call
	// that already completed. It indicates a dispatcher bug and is
	// treated as fatal for the connection.
	ErrDuplicateResolve = errors.New("pending call resolved twice")
)

// SessionError is a server-reported failure scoped to one session. It fails
// the session's outstanding waiters and streams without touching any other
// session on the connection.
type SessionError struct {
	SessionID string
	Code      string
	Message   string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session error (%s) for %s: %s", e.Code, e.SessionID, e.Message)
}

// ServerError is an error reply correlated to a specific request, such as
// a rejected create_session or a generic error frame echoing a request id.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%s): %s", e.Code, e.Message)
}

// ProtocolError reports a reply whose shape violates the wire contract,
// such as a batch acknowledgment with no batch id.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}
