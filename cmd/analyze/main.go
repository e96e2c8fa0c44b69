// Command analyze prints quick, human-readable statistics about execution
// report logs written during simulation runs. It reads JSON lines files with
// one execution report per line and summarizes fills, traded volume, notional
// value and commissions per symbol, highlighting rejected orders and
// positions left open at the end of the log.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// FillRecord is a light struct for reading execution report log lines.
type FillRecord struct {
	SessionID  string  `json:"session_id"`
	OrderID    string  `json:"order_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	Status     string  `json:"status"`
	Commission float64 `json:"commission"`
}

// SymbolStats aggregates the fills seen for one symbol.
type SymbolStats struct {
	Fills      int
	Rejected   int
	BoughtQty  float64
	SoldQty    float64
	Notional   float64
	Commission float64
}

// Net is the position left after replaying every fill in the log.
func (s *SymbolStats) Net() float64 {
	return s.BoughtQty - s.SoldQty
}

func main() {
	files := os.Args[1:]
	if len(files) == 0 {
		files = []string{"fills.jsonl"}
	}

	for _, file := range files {
		fmt.Printf("\n=== Analyzing %s ===\n", file)
		analyzeFills(file)
	}
}

func analyzeFills(path string) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		return
	}
	defer f.Close()

	stats, sessions, skipped, err := collectStats(f)
	if err != nil {
		fmt.Printf("Error scanning file: %v\n", err)
		return
	}

	var total int
	for _, s := range stats {
		total += s.Fills
	}
	fmt.Printf("Fills: %d\n", total)
	fmt.Printf("Sessions: %d\n", len(sessions))
	if skipped > 0 {
		fmt.Printf("Skipped %d undecodable lines\n", skipped)
	}

	symbols := make([]string, 0, len(stats))
	for symbol := range stats {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		s := stats[symbol]
		fmt.Printf("%-8s fills=%-4d bought=%-8.0f sold=%-8.0f notional=%-12.2f commission=%.4f\n",
			symbol, s.Fills, s.BoughtQty, s.SoldQty, s.Notional, s.Commission)
	}

	// Rejections and open positions are what a strategy author looks for
	// first, so call them out separately.
	for _, symbol := range symbols {
		if s := stats[symbol]; s.Rejected > 0 {
			fmt.Printf("WARNING: %d orders rejected for %s\n", s.Rejected, symbol)
		}
	}
	for _, symbol := range symbols {
		if net := stats[symbol].Net(); net != 0 {
			fmt.Printf("WARNING: %s position still open at end of log: %+.0f shares\n", symbol, net)
		}
	}
}

// collectStats aggregates execution reports read line by line from r. Lines
// that are blank or fail to decode are counted, not fatal.
func collectStats(r io.Reader) (map[string]*SymbolStats, map[string]bool, int, error) {
	stats := make(map[string]*SymbolStats)
	sessions := make(map[string]bool)
	skipped := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var record FillRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil || record.Symbol == "" {
			skipped++
			continue
		}

		if record.SessionID != "" {
			sessions[record.SessionID] = true
		}

		s := stats[record.Symbol]
		if s == nil {
			s = &SymbolStats{}
			stats[record.Symbol] = s
		}

		if record.Status == "rejected" {
			s.Rejected++
			continue
		}

		s.Fills++
		switch record.Side {
		case "buy":
			s.BoughtQty += record.Quantity
		case "sell":
			s.SoldQty += record.Quantity
		}
		s.Notional += record.Quantity * record.Price
		s.Commission += record.Commission
	}

	return stats, sessions, skipped, scanner.Err()
}
