package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wricardo/simutrador-go/sim/protocol"
	wstransport "github.com/wricardo/simutrador-go/transport/websocket"
)

// CheckHealth dials the health endpoint, reads the one status frame the
// server pushes on connect, and closes the connection. Cancel the context
// to bound the wait.
func CheckHealth(ctx context.Context, url string) (*protocol.HealthStatus, error) {
	conn, err := wstransport.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial health endpoint: %w", err)
	}
	defer conn.Close()

	type readResult struct {
		raw []byte
		err error
	}
	readc := make(chan readResult, 1)
	go func() {
		raw, err := conn.ReadMessage()
		readc <- readResult{raw: raw, err: err}
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	case res := <-readc:
		if res.err != nil {
			return nil, fmt.Errorf("health endpoint closed before replying: %w", res.err)
		}

		var env protocol.Envelope
		if err := json.Unmarshal(res.raw, &env); err != nil {
			return nil, &ProtocolError{Reason: fmt.Sprintf("malformed health frame: %v", err)}
		}
		if env.Type != protocol.TypeHealthStatus {
			return nil, &ProtocolError{Reason: fmt.Sprintf("unexpected %s frame on health endpoint", env.Type)}
		}

		var status protocol.HealthStatus
		if err := env.DecodeData(&status); err != nil {
			return nil, &ProtocolError{Reason: fmt.Sprintf("malformed health_status payload: %v", err)}
		}
		return &status, nil
	}
}
