// Package store keeps per-symbol candle series in memory, built from a
// session's history snapshot and extended by each incoming tick. Accessors
// return copied float64 slices sized for indicator libraries, so strategies
// can compute moving averages or ranges without touching live state.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/wricardo/simutrador-go/sim/protocol"
)

// ErrUnknownSymbol is returned by accessors for symbols the store has never
// seen.
var ErrUnknownSymbol = errors.New("unknown symbol")

type series struct {
	dates  []time.Time
	open   []float64
	high   []float64
	low    []float64
	close  []float64
	volume []float64
}

// OHLCV is a windowed view over one symbol's candles. All slices have equal
// length and are copies, safe to keep or mutate.
type OHLCV struct {
	Dates  []time.Time
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// Store is an in-memory candle store. It is safe for concurrent use; the
// stream consumer appends while strategy code reads.
type Store struct {
	mu       sync.RWMutex
	bySymbol map[string]*series
}

// New returns an empty store.
func New() *Store {
	return &Store{bySymbol: make(map[string]*series)}
}

// FromHistory builds a store preloaded with a history snapshot.
func FromHistory(snapshot *protocol.HistorySnapshot) *Store {
	s := New()
	s.ApplyHistorySnapshot(snapshot)
	return s
}

// ApplyHistorySnapshot appends every candle of the snapshot, per symbol, in
// the order the server sent them.
func (s *Store) ApplyHistorySnapshot(snapshot *protocol.HistorySnapshot) {
	if snapshot == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for sym, candles := range snapshot.Candles {
		ser := s.seriesLocked(sym)
		for _, c := range candles {
			ser.append(c)
		}
	}
}

// ApplyTick appends the tick's candle for each symbol it carries.
func (s *Store) ApplyTick(tick *protocol.Tick) {
	if tick == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for sym, c := range tick.Candles {
		s.seriesLocked(sym).append(c)
	}
}

// Symbols lists every known symbol in sorted order.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.bySymbol))
	for sym := range s.bySymbol {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Len reports how many candles the store holds for symbol.
func (s *Store) Len(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ser, ok := s.bySymbol[symbol]; ok {
		return len(ser.dates)
	}
	return 0
}

// Closes returns the last window closing prices for symbol. A window of
// zero or less returns the full series.
func (s *Store) Closes(symbol string, window int) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ser, ok := s.bySymbol[symbol]
	if !ok {
		return nil, ErrUnknownSymbol
	}
	return tail(ser.close, window), nil
}

// Series returns a windowed copy of every field for symbol.
func (s *Store) Series(symbol string, window int) (*OHLCV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ser, ok := s.bySymbol[symbol]
	if !ok {
		return nil, ErrUnknownSymbol
	}

	return &OHLCV{
		Dates:  tailDates(ser.dates, window),
		Open:   tail(ser.open, window),
		High:   tail(ser.high, window),
		Low:    tail(ser.low, window),
		Close:  tail(ser.close, window),
		Volume: tail(ser.volume, window),
	}, nil
}

// Last returns the most recent candle for symbol.
func (s *Store) Last(symbol string) (protocol.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ser, ok := s.bySymbol[symbol]
	if !ok || len(ser.dates) == 0 {
		return protocol.Candle{}, false
	}

	n := len(ser.dates) - 1
	return protocol.Candle{
		Date:   ser.dates[n],
		Open:   ser.open[n],
		High:   ser.high[n],
		Low:    ser.low[n],
		Close:  ser.close[n],
		Volume: ser.volume[n],
	}, true
}

func (s *Store) seriesLocked(symbol string) *series {
	ser, ok := s.bySymbol[symbol]
	if !ok {
		ser = &series{}
		s.bySymbol[symbol] = ser
	}
	return ser
}

func (ser *series) append(c protocol.Candle) {
	ser.dates = append(ser.dates, c.Date)
	ser.open = append(ser.open, c.Open)
	ser.high = append(ser.high, c.High)
	ser.low = append(ser.low, c.Low)
	ser.close = append(ser.close, c.Close)
	ser.volume = append(ser.volume, c.Volume)
}

func tail(values []float64, window int) []float64 {
	if window > 0 && window < len(values) {
		values = values[len(values)-window:]
	}
	out := make([]float64, len(values))
	copy(out, values)
	return out
}

func tailDates(values []time.Time, window int) []time.Time {
	if window > 0 && window < len(values) {
		values = values[len(values)-window:]
	}
	out := make([]time.Time, len(values))
	copy(out, values)
	return out
}
