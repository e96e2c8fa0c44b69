package protocol

import (
	"testing"
)

func TestDecodeEnvelope(t *testing.T) {
	raw := []byte(`{"type":"session_created","request_id":"r1","data":{"session_id":"s1"}}`)

	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.Type != TypeSessionCreated {
		t.Errorf("Expected type session_created, got %s", env.Type)
	}
	if env.RequestID != "r1" {
		t.Errorf("Expected request_id r1, got %s", env.RequestID)
	}

	var created SessionCreated
	if err := env.DecodeData(&created); err != nil {
		t.Fatalf("DecodeData failed: %v", err)
	}
	if created.SessionID != "s1" {
		t.Errorf("Expected session_id s1, got %s", created.SessionID)
	}
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	if _, err := Decode([]byte(`{not json`)); err == nil {
		t.Error("Expected error for malformed JSON")
	}
	if _, err := Decode([]byte(`{"data":{}}`)); err == nil {
		t.Error("Expected error for envelope without type")
	}
}

func TestSessionScopeFallsBackToData(t *testing.T) {
	// Top-level session_id wins when present
	env, err := Decode([]byte(`{"type":"tick","session_id":"top","data":{"session_id":"inner"}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := env.SessionScope(); got != "top" {
		t.Errorf("Expected top-level session_id, got %s", got)
	}

	// Older servers put session_id only inside data
	env, err = Decode([]byte(`{"type":"history_snapshot","data":{"session_id":"inner","count":0}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := env.SessionScope(); got != "inner" {
		t.Errorf("Expected data session_id, got %s", got)
	}

	// No session anywhere
	env, err = Decode([]byte(`{"type":"connection_ready","data":{}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := env.SessionScope(); got != "" {
		t.Errorf("Expected empty session scope, got %s", got)
	}
}

func TestErrorReplyClassification(t *testing.T) {
	tests := []struct {
		msgType MessageType
		want    bool
	}{
		{TypeError, true},
		{MessageType("create_session_error"), true},
		{MessageType("delete_session_error"), true},
		{TypeSessionError, false}, // session-scoped, not a call reply
		{TypeBatchAck, false},
		{TypeSessionCreated, false},
	}

	for _, tt := range tests {
		if got := tt.msgType.IsErrorReply(); got != tt.want {
			t.Errorf("IsErrorReply(%s) = %v, want %v", tt.msgType, got, tt.want)
		}
	}
}

func TestStreamKindClassification(t *testing.T) {
	for _, msgType := range []MessageType{TypeTick, TypeExecutionReport, TypeAccountSnapshot} {
		kind, ok := StreamKindFor(msgType)
		if !ok {
			t.Errorf("Expected %s to be a stream kind", msgType)
		}
		if !kind.Valid() {
			t.Errorf("Expected kind %s to be valid", kind)
		}
	}

	if _, ok := StreamKindFor(TypeHistorySnapshot); ok {
		t.Error("history_snapshot is a one-shot event, not a stream kind")
	}
	if StreamKind("candles").Valid() {
		t.Error("Unknown stream kind should not be valid")
	}
}

func TestSessionEventClassification(t *testing.T) {
	for _, msgType := range []MessageType{TypeHistorySnapshot, TypeSimulationEnd} {
		if _, ok := SessionEventFor(msgType); !ok {
			t.Errorf("Expected %s to be a session event", msgType)
		}
	}
	if _, ok := SessionEventFor(TypeTick); ok {
		t.Error("tick is a stream push, not a one-shot event")
	}
}

func TestErrorInfoDefaults(t *testing.T) {
	env, err := Decode([]byte(`{"type":"error","request_id":"r9","data":{"error_code":"INVALID","message":"bad order"}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	code, msg := env.ErrorInfo()
	if code != "INVALID" || msg != "bad order" {
		t.Errorf("Expected INVALID/bad order, got %s/%s", code, msg)
	}

	// Missing payload falls back to UNKNOWN
	env = &Envelope{Type: TypeError}
	code, _ = env.ErrorInfo()
	if code != "UNKNOWN" {
		t.Errorf("Expected UNKNOWN for missing payload, got %s", code)
	}
}

func TestNewEnvelopeCarriesPayload(t *testing.T) {
	env, err := NewEnvelope(TypeStartSimulation, "r1", StartSimulationRequest{
		Symbols:        []string{"AAPL"},
		StartDate:      "2024-01-02",
		EndDate:        "2024-01-31",
		InitialCapital: 100000,
		Timeframe:      "1min",
		WarmupBars:     50,
		Adjusted:       true,
	})
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}

	raw, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	var req StartSimulationRequest
	if err := decoded.DecodeData(&req); err != nil {
		t.Fatalf("DecodeData failed: %v", err)
	}
	if len(req.Symbols) != 1 || req.Symbols[0] != "AAPL" {
		t.Errorf("Expected symbols [AAPL], got %v", req.Symbols)
	}
	if req.WarmupBars != 50 {
		t.Errorf("Expected warmup_bars 50, got %d", req.WarmupBars)
	}
}
