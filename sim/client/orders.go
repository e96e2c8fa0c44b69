package client

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/wricardo/simutrador-go/sim/protocol"
	"github.com/wricardo/simutrador-go/validate"
)

// StartSimulation opens a new simulation session and returns its id. An
// empty timeframe becomes "1min". The server streams history and ticks for
// the session afterwards, so subscribe to the streams you need as soon as
// this returns.
func (c *Client) StartSimulation(ctx context.Context, req protocol.StartSimulationRequest) (string, error) {
	if req.Timeframe == "" {
		req.Timeframe = "1min"
	}
	if err := validate.StartSimulation(req); err != nil {
		return "", fmt.Errorf("invalid start_simulation request: %w", err)
	}

	env, err := c.Call(ctx, protocol.TypeStartSimulation, req)
	if err != nil {
		return "", err
	}

	var created protocol.SessionCreated
	if err := env.DecodeData(&created); err != nil {
		return "", &ProtocolError{Reason: fmt.Sprintf("malformed session_created payload: %v", err)}
	}
	if created.SessionID == "" {
		return "", &ProtocolError{Reason: "session_created reply missing session_id"}
	}
	return created.SessionID, nil
}

// WaitForHistorySnapshot blocks until the session's warmup history arrives.
// The snapshot is retained, so calling this after arrival returns
// immediately.
func (c *Client) WaitForHistorySnapshot(ctx context.Context, sessionID string) (*protocol.HistorySnapshot, error) {
	env, err := c.AwaitSessionEvent(ctx, sessionID, protocol.EventHistorySnapshot)
	if err != nil {
		return nil, err
	}

	var snapshot protocol.HistorySnapshot
	if err := env.DecodeData(&snapshot); err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("malformed history_snapshot payload: %v", err)}
	}
	return &snapshot, nil
}

// WaitForSimulationEnd blocks until the session reports completion.
func (c *Client) WaitForSimulationEnd(ctx context.Context, sessionID string) (*protocol.SimulationEnd, error) {
	env, err := c.AwaitSessionEvent(ctx, sessionID, protocol.EventSimulationEnd)
	if err != nil {
		return nil, err
	}

	var end protocol.SimulationEnd
	if err := env.DecodeData(&end); err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("malformed simulation_end payload: %v", err)}
	}
	return &end, nil
}

// SubmitOrders sends a batch of orders for the session and blocks until the
// server acknowledges it. Orders without an id get one assigned; an empty
// batchID is replaced with a fresh uuid. Safe to call from a strategy
// callback because acknowledgments are delivered by the reader loop, not
// the caller.
func (c *Client) SubmitOrders(ctx context.Context, sessionID string, orders []protocol.Order, batchID string) (*protocol.BatchAck, error) {
	if serr := c.table.sessionFailure(sessionID); serr != nil {
		return nil, serr
	}
	if batchID == "" {
		batchID = uuid.NewString()
	}

	prepared := make([]protocol.Order, len(orders))
	for i, o := range orders {
		if o.OrderID == "" {
			o.OrderID = uuid.NewString()
		}
		if o.TimeInForce == "" {
			o.TimeInForce = protocol.TimeInForceDay
		}
		prepared[i] = o
	}

	if err := validate.Orders(prepared); err != nil {
		return nil, fmt.Errorf("invalid order batch: %w", err)
	}

	batch := protocol.OrderBatch{
		SessionID: sessionID,
		BatchID:   batchID,
		Orders:    prepared,
	}

	env, err := c.Call(ctx, protocol.TypeOrderBatch, batch)
	if err != nil {
		return nil, err
	}

	var ack protocol.BatchAck
	if err := env.DecodeData(&ack); err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("malformed batch_ack payload: %v", err)}
	}
	if ack.BatchID == "" {
		return nil, &ProtocolError{Reason: "batch_ack reply missing batch_id"}
	}
	return &ack, nil
}

// BatchResult carries the outcome of an asynchronous order submission.
type BatchResult struct {
	Ack *protocol.BatchAck
	Err error
}

// SubmitOrdersAsync submits the batch without blocking the caller. The
// returned channel receives exactly one result.
func (c *Client) SubmitOrdersAsync(ctx context.Context, sessionID string, orders []protocol.Order, batchID string) <-chan BatchResult {
	out := make(chan BatchResult, 1)
	go func() {
		ack, err := c.SubmitOrders(ctx, sessionID, orders, batchID)
		out <- BatchResult{Ack: ack, Err: err}
	}()
	return out
}

// BracketOrder describes an entry order with protective stop-loss and
// take-profit levels attached.
type BracketOrder struct {
	Symbol   string
	Side     protocol.OrderSide
	Quantity int

	// EntryType defaults to market; EntryPrice is required for limit.
	EntryType  protocol.OrderType
	EntryPrice float64

	StopLoss   float64
	TakeProfit float64

	// TimeInForce defaults to day.
	TimeInForce protocol.TimeInForce

	// BatchID is optional; a fresh uuid is used when empty.
	BatchID string
}

// PlaceBracketOrder submits a single entry order carrying stop-loss and
// take-profit levels.
func (c *Client) PlaceBracketOrder(ctx context.Context, sessionID string, spec BracketOrder) (*protocol.BatchAck, error) {
	entryType := spec.EntryType
	if entryType == "" {
		entryType = protocol.OrderTypeMarket
	}
	tif := spec.TimeInForce
	if tif == "" {
		tif = protocol.TimeInForceDay
	}

	order := protocol.Order{
		OrderID:     uuid.NewString(),
		Symbol:      spec.Symbol,
		Side:        spec.Side,
		Type:        entryType,
		Quantity:    spec.Quantity,
		Price:       spec.EntryPrice,
		StopLoss:    spec.StopLoss,
		TakeProfit:  spec.TakeProfit,
		TimeInForce: tif,
	}

	return c.SubmitOrders(ctx, sessionID, []protocol.Order{order}, spec.BatchID)
}
