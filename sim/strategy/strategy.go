package strategy

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wricardo/simutrador-go/sim/client"
	"github.com/wricardo/simutrador-go/sim/protocol"
	"github.com/wricardo/simutrador-go/sim/store"
)

// Strategy receives lifecycle and market events for one simulation session.
//
// The runner calls every method from a single goroutine, in event arrival
// order, after the session store has been updated for the triggering event.
// Callbacks may block on client operations such as order submission.
type Strategy interface {
	// OnSessionStart is called once, after the warmup history has been
	// ingested into the store. Returning an error aborts the run.
	OnSessionStart(ctx context.Context, sessionID string, st *store.Store) error

	// OnTick is called for every tick after the store has been updated
	// with the tick's candles. Returning an error aborts the run.
	OnTick(ctx context.Context, sessionID string, tick *protocol.Tick, st *store.Store) error

	// OnFill is called for every execution report.
	OnFill(ctx context.Context, sessionID string, fill *protocol.ExecutionReport, st *store.Store)

	// OnAccountSnapshot is called for every account snapshot.
	OnAccountSnapshot(ctx context.Context, sessionID string, account *protocol.AccountSnapshot, st *store.Store)

	// OnSessionEnd is called when the simulation ends normally.
	OnSessionEnd(ctx context.Context, sessionID string, end *protocol.SimulationEnd, st *store.Store)
}

// ClientBinder is implemented by strategies that submit orders themselves.
// The runner calls BindClient exactly once, before any other callback, even
// across repeated runs with the same runner.
type ClientBinder interface {
	BindClient(c *client.Client)
}

// Base provides no-op implementations of every Strategy callback. Embed it
// to implement only the callbacks a strategy cares about.
type Base struct{}

func (Base) OnSessionStart(context.Context, string, *store.Store) error { return nil }

func (Base) OnTick(context.Context, string, *protocol.Tick, *store.Store) error { return nil }

func (Base) OnFill(context.Context, string, *protocol.ExecutionReport, *store.Store) {}

func (Base) OnAccountSnapshot(context.Context, string, *protocol.AccountSnapshot, *store.Store) {}

func (Base) OnSessionEnd(context.Context, string, *protocol.SimulationEnd, *store.Store) {}

// OrderSpec is a transport-agnostic order intent produced by decision
// strategies. Zero values fall back to a market order, good for the day.
// Tag is a client-side label for logs and fill attribution; it is not sent
// to the server.
type OrderSpec struct {
	Symbol      string
	Side        protocol.OrderSide
	Quantity    int
	Type        protocol.OrderType
	Price       float64
	StopLoss    float64
	TakeProfit  float64
	TimeInForce protocol.TimeInForce
	Tag         string
}

// Order converts the intent into a wire order. The order id is left empty
// so the submitting client assigns one.
func (s OrderSpec) Order() protocol.Order {
	o := protocol.Order{
		Symbol:      s.Symbol,
		Side:        s.Side,
		Type:        s.Type,
		Quantity:    s.Quantity,
		Price:       s.Price,
		StopLoss:    s.StopLoss,
		TakeProfit:  s.TakeProfit,
		TimeInForce: s.TimeInForce,
	}
	if o.Type == "" {
		o.Type = protocol.OrderTypeMarket
	}
	if o.TimeInForce == "" {
		o.TimeInForce = protocol.TimeInForceDay
	}
	return o
}

// Decider holds pure decision logic: inspect the store and the incoming
// tick, return zero or more order intents. Implementations never talk to
// the server.
type Decider interface {
	Decide(ctx context.Context, sessionID string, tick *protocol.Tick, st *store.Store) ([]OrderSpec, error)
}

// DecideFunc adapts a function to the Decider interface.
type DecideFunc func(ctx context.Context, sessionID string, tick *protocol.Tick, st *store.Store) ([]OrderSpec, error)

// Decide calls the wrapped function.
func (f DecideFunc) Decide(ctx context.Context, sessionID string, tick *protocol.Tick, st *store.Store) ([]OrderSpec, error) {
	return f(ctx, sessionID, tick, st)
}

// DecisionStrategy adapts a Decider into a full Strategy. On every tick it
// asks the Decider for intents, converts them to wire orders, and submits
// them as one batch. Rejected orders are logged, not treated as errors;
// transport and session failures abort the run.
type DecisionStrategy struct {
	Base

	decider Decider
	log     zerolog.Logger
	client  *client.Client
}

// NewDecisionStrategy wraps a Decider for execution by a Runner.
func NewDecisionStrategy(d Decider, log zerolog.Logger) *DecisionStrategy {
	return &DecisionStrategy{decider: d, log: log}
}

// BindClient receives the client used to submit order batches.
func (ds *DecisionStrategy) BindClient(c *client.Client) {
	ds.client = c
}

// OnTick asks the Decider for intents and executes them.
func (ds *DecisionStrategy) OnTick(ctx context.Context, sessionID string, tick *protocol.Tick, st *store.Store) error {
	specs, err := ds.decider.Decide(ctx, sessionID, tick, st)
	if err != nil {
		return fmt.Errorf("decide failed: %w", err)
	}
	if len(specs) == 0 {
		return nil
	}
	if ds.client == nil {
		return fmt.Errorf("no client bound, cannot execute %d order intents", len(specs))
	}

	orders := make([]protocol.Order, 0, len(specs))
	for _, spec := range specs {
		orders = append(orders, spec.Order())
	}

	ack, err := ds.client.SubmitOrders(ctx, sessionID, orders, "")
	if err != nil {
		return fmt.Errorf("failed to submit %d orders: %w", len(orders), err)
	}
	for orderID, reason := range ack.RejectedOrders {
		ds.log.Warn().
			Str("session_id", sessionID).
			Str("order_id", orderID).
			Str("reason", reason).
			Msg("Order rejected")
	}
	return nil
}
