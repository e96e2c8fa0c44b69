// Package validate checks trading requests before they reach the wire. It
// accumulates every problem it finds instead of stopping at the first, so a
// caller can fix a whole batch in one pass. It checks:
//   - Order structure: id, symbol, side, type, quantity, time in force
//   - Limit orders carry a positive price
//   - Protective stop-loss and take-profit levels are coherent
//   - Session requests: symbols, date range, capital and cost parameters
package validate

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/wricardo/simutrador-go/sim/protocol"
)

// dateLayouts are the wire formats accepted for session date bounds.
var dateLayouts = []string{"2006-01-02", time.RFC3339}

// Order validates a single order.
func Order(o protocol.Order) error {
	var err error

	if o.OrderID == "" {
		err = multierr.Append(err, fmt.Errorf("order is missing an order_id"))
	}
	if o.Symbol == "" {
		err = multierr.Append(err, fmt.Errorf("order %s is missing a symbol", orderLabel(o)))
	}

	switch o.Side {
	case protocol.OrderSideBuy, protocol.OrderSideSell:
	default:
		err = multierr.Append(err, fmt.Errorf("order %s has invalid side %q", orderLabel(o), o.Side))
	}

	switch o.Type {
	case protocol.OrderTypeMarket:
		if o.Price != 0 {
			err = multierr.Append(err, fmt.Errorf("order %s is a market order but carries price %v", orderLabel(o), o.Price))
		}
	case protocol.OrderTypeLimit:
		if o.Price <= 0 {
			err = multierr.Append(err, fmt.Errorf("order %s is a limit order without a positive price", orderLabel(o)))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("order %s has invalid type %q", orderLabel(o), o.Type))
	}

	if o.Quantity <= 0 {
		err = multierr.Append(err, fmt.Errorf("order %s has non-positive quantity %d", orderLabel(o), o.Quantity))
	}

	switch o.TimeInForce {
	case protocol.TimeInForceDay, protocol.TimeInForceGTC, protocol.TimeInForceIOC:
	default:
		err = multierr.Append(err, fmt.Errorf("order %s has invalid time_in_force %q", orderLabel(o), o.TimeInForce))
	}

	if o.StopLoss < 0 {
		err = multierr.Append(err, fmt.Errorf("order %s has negative stop_loss %v", orderLabel(o), o.StopLoss))
	}
	if o.TakeProfit < 0 {
		err = multierr.Append(err, fmt.Errorf("order %s has negative take_profit %v", orderLabel(o), o.TakeProfit))
	}
	if o.StopLoss > 0 && o.TakeProfit > 0 {
		switch o.Side {
		case protocol.OrderSideBuy:
			if o.StopLoss >= o.TakeProfit {
				err = multierr.Append(err, fmt.Errorf("order %s: buy bracket needs stop_loss below take_profit (%v >= %v)", orderLabel(o), o.StopLoss, o.TakeProfit))
			}
		case protocol.OrderSideSell:
			if o.TakeProfit >= o.StopLoss {
				err = multierr.Append(err, fmt.Errorf("order %s: sell bracket needs take_profit below stop_loss (%v >= %v)", orderLabel(o), o.TakeProfit, o.StopLoss))
			}
		}
	}

	return err
}

// Orders validates a whole batch.
func Orders(orders []protocol.Order) error {
	if len(orders) == 0 {
		return fmt.Errorf("order batch is empty")
	}

	var err error
	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		err = multierr.Append(err, Order(o))
		if o.OrderID != "" {
			if seen[o.OrderID] {
				err = multierr.Append(err, fmt.Errorf("duplicate order_id %s in batch", o.OrderID))
			}
			seen[o.OrderID] = true
		}
	}
	return err
}

// StartSimulation validates a start_simulation request.
func StartSimulation(req protocol.StartSimulationRequest) error {
	var err error

	if len(req.Symbols) == 0 {
		err = multierr.Append(err, fmt.Errorf("start_simulation needs at least one symbol"))
	}
	for i, sym := range req.Symbols {
		if sym == "" {
			err = multierr.Append(err, fmt.Errorf("symbol %d is empty", i))
		}
	}

	err = multierr.Append(err, dateRange(req.StartDate, req.EndDate))

	if req.InitialCapital < 0 {
		err = multierr.Append(err, fmt.Errorf("initial_capital cannot be negative: %v", req.InitialCapital))
	}
	if req.Timeframe == "" {
		err = multierr.Append(err, fmt.Errorf("timeframe is required"))
	}
	if req.WarmupBars < 0 {
		err = multierr.Append(err, fmt.Errorf("warmup_bars cannot be negative: %d", req.WarmupBars))
	}

	return err
}

// CreateSession validates a create_session request.
func CreateSession(req protocol.CreateSessionRequest) error {
	var err error

	if len(req.Symbols) == 0 {
		err = multierr.Append(err, fmt.Errorf("create_session needs at least one symbol"))
	}
	err = multierr.Append(err, dateRange(req.StartDate, req.EndDate))

	if req.InitialCapital <= 0 {
		err = multierr.Append(err, fmt.Errorf("initial_capital must be positive: %v", req.InitialCapital))
	}
	if req.CommissionPerShare < 0 {
		err = multierr.Append(err, fmt.Errorf("commission_per_share cannot be negative: %v", req.CommissionPerShare))
	}
	if req.SlippageBps < 0 {
		err = multierr.Append(err, fmt.Errorf("slippage_bps cannot be negative: %d", req.SlippageBps))
	}

	return err
}

// dateRange checks that both bounds are present, parseable and ordered.
func dateRange(start, end string) error {
	var err error

	startAt, startErr := parseDate(start)
	if startErr != nil {
		err = multierr.Append(err, fmt.Errorf("invalid start_date %q", start))
	}
	endAt, endErr := parseDate(end)
	if endErr != nil {
		err = multierr.Append(err, fmt.Errorf("invalid end_date %q", end))
	}
	if startErr == nil && endErr == nil && !startAt.Before(endAt) {
		err = multierr.Append(err, fmt.Errorf("start_date %s is not before end_date %s", start, end))
	}

	return err
}

func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, v)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func orderLabel(o protocol.Order) string {
	if o.OrderID != "" {
		return o.OrderID
	}
	if o.Symbol != "" {
		return "for " + o.Symbol
	}
	return "(unidentified)"
}
