package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MessageType identifies the kind of an Envelope.
type MessageType string

const (
	// Server greeting sent once after the connection is accepted.
	TypeConnectionReady MessageType = "connection_ready"

	// Simulation lifecycle.
	TypeStartSimulation MessageType = "start_simulation"
	TypeSessionCreated  MessageType = "session_created"
	TypeHistorySnapshot MessageType = "history_snapshot"
	TypeSimulationEnd   MessageType = "simulation_end"
	TypeSessionError    MessageType = "session_error"

	// Continuous per-session pushes.
	TypeTick            MessageType = "tick"
	TypeExecutionReport MessageType = "execution_report"
	TypeAccountSnapshot MessageType = "account_snapshot"

	// Order placement.
	TypeOrderBatch MessageType = "order_batch"
	TypeBatchAck   MessageType = "batch_ack"

	// Generic request failure, correlated by request_id.
	TypeError MessageType = "error"

	// Session management.
	TypeCreateSession MessageType = "create_session"
	TypeGetSession    MessageType = "get_session"
	TypeListSessions  MessageType = "list_sessions"
	TypeDeleteSession MessageType = "delete_session"

	// Health probe reply on the /ws/health endpoint.
	TypeHealthStatus MessageType = "health_status"
)

// errorTypeSuffix marks reply types that report a failure (e.g. "create_session_error").
const errorTypeSuffix = "_error"

// IsErrorReply reports whether t is a failure reply for a correlated request.
// The generic "error" type and any "*_error" CRUD reply qualify; session_error
// is session-scoped and handled separately.
func (t MessageType) IsErrorReply() bool {
	if t == TypeSessionError {
		return false
	}
	return t == TypeError || strings.HasSuffix(string(t), errorTypeSuffix)
}

// SessionEvent names a one-shot lifecycle event within a session.
type SessionEvent string

const (
	EventHistorySnapshot SessionEvent = SessionEvent(TypeHistorySnapshot)
	EventSimulationEnd   SessionEvent = SessionEvent(TypeSimulationEnd)
)

// SessionEvents lists every lifecycle event a session context tracks.
var SessionEvents = []SessionEvent{EventHistorySnapshot, EventSimulationEnd}

// SessionEventFor maps a message type to its lifecycle event, if it is one.
func SessionEventFor(t MessageType) (SessionEvent, bool) {
	switch t {
	case TypeHistorySnapshot, TypeSimulationEnd:
		return SessionEvent(t), true
	}
	return "", false
}

// StreamKind identifies a continuous per-session push stream.
type StreamKind string

const (
	StreamTick            StreamKind = StreamKind(TypeTick)
	StreamExecutionReport StreamKind = StreamKind(TypeExecutionReport)
	StreamAccountSnapshot StreamKind = StreamKind(TypeAccountSnapshot)
)

// Valid reports whether k names a known stream kind.
func (k StreamKind) Valid() bool {
	switch k {
	case StreamTick, StreamExecutionReport, StreamAccountSnapshot:
		return true
	}
	return false
}

// StreamKindFor maps a message type to its stream kind, if it is one.
func StreamKindFor(t MessageType) (StreamKind, bool) {
	switch t {
	case TypeTick, TypeExecutionReport, TypeAccountSnapshot:
		return StreamKind(t), true
	}
	return "", false
}

// Envelope is the frame exchanged over the WebSocket connection.
type Envelope struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope builds an envelope with the payload marshaled into Data.
func NewEnvelope(t MessageType, requestID string, payload any) (*Envelope, error) {
	env := &Envelope{Type: t, RequestID: requestID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
		}
		env.Data = data
	}
	return env, nil
}

// Decode parses a raw WebSocket frame into an Envelope.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("envelope has no type")
	}
	return &env, nil
}

// Encode serializes the envelope for the wire.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", e.Type, err)
	}
	return data, nil
}

// DecodeData unmarshals the envelope payload into v.
func (e *Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s envelope has no data", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", e.Type, err)
	}
	return nil
}

// SessionScope returns the session the envelope belongs to. The top-level
// field wins; older server builds carry session_id only inside data.
func (e *Envelope) SessionScope() string {
	if e.SessionID != "" {
		return e.SessionID
	}
	if len(e.Data) == 0 {
		return ""
	}
	var probe struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(e.Data, &probe); err != nil {
		return ""
	}
	return probe.SessionID
}

// ErrorData is the payload of "error" and "*_error" replies.
type ErrorData struct {
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ErrorInfo extracts the error code and message from a failure reply,
// falling back to placeholders when the payload is malformed or missing.
func (e *Envelope) ErrorInfo() (code, message string) {
	var ed ErrorData
	if len(e.Data) > 0 {
		_ = json.Unmarshal(e.Data, &ed)
	}
	code = ed.ErrorCode
	if code == "" {
		code = "UNKNOWN"
	}
	return code, ed.Message
}
