package strategy

import (
	"context"
	"sort"

	"github.com/wricardo/simutrador-go/sim/protocol"
	"github.com/wricardo/simutrador-go/sim/store"
)

// SMACross is a simple moving-average crossover Decider. It buys a fixed
// quantity when the short average rises above the long average and sells
// the whole position when it falls below. Positions are tracked at decision
// time, one per symbol.
//
// It holds no client and does no I/O. Wrap it in a DecisionStrategy to run.
type SMACross struct {
	short int
	long  int
	size  int

	held map[string]int
}

// NewSMACross builds a crossover strategy with the given window lengths and
// order size. Non-positive arguments fall back to 5, 20 and 1.
func NewSMACross(short, long, size int) *SMACross {
	if short <= 0 {
		short = 5
	}
	if long <= short {
		long = 20
	}
	if size <= 0 {
		size = 1
	}
	return &SMACross{
		short: short,
		long:  long,
		size:  size,
		held:  make(map[string]int),
	}
}

// Position returns the quantity the strategy believes it holds in symbol.
func (s *SMACross) Position(symbol string) int {
	return s.held[symbol]
}

// Decide compares the short and long averages for every symbol in the tick.
// Symbols with fewer bars than the long window are skipped.
func (s *SMACross) Decide(_ context.Context, _ string, tick *protocol.Tick, st *store.Store) ([]OrderSpec, error) {
	symbols := make([]string, 0, len(tick.Candles))
	for symbol := range tick.Candles {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var specs []OrderSpec
	for _, symbol := range symbols {
		closes, err := st.Closes(symbol, s.long)
		if err != nil || len(closes) < s.long {
			continue
		}

		shortMA := mean(closes[len(closes)-s.short:])
		longMA := mean(closes)
		held := s.held[symbol]

		switch {
		case shortMA > longMA && held == 0:
			specs = append(specs, OrderSpec{
				Symbol:   symbol,
				Side:     protocol.OrderSideBuy,
				Quantity: s.size,
				Tag:      "sma-cross-entry",
			})
			s.held[symbol] = s.size
		case shortMA < longMA && held > 0:
			specs = append(specs, OrderSpec{
				Symbol:   symbol,
				Side:     protocol.OrderSideSell,
				Quantity: held,
				Tag:      "sma-cross-exit",
			})
			s.held[symbol] = 0
		}
	}
	return specs, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
