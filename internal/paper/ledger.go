package paper

import (
	"sync"

	"ritbot-go/internal/exchange"
	"ritbot-go/internal/execution"
)

// TickerTotals aggregates the fills seen for one ticker.
type TickerTotals struct {
	Orders int
	Bought int
	Sold   int
	Net    int
}

// Ledger stores fills in memory for quick inspection.
type Ledger struct {
	mu    sync.Mutex
	fills []execution.Fill
}

// NewLedger creates an empty ledger optionally pre-sizing storage.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{fills: make([]execution.Fill, 0, capacity)}
}

// Record appends a fill to the ledger.
func (l *Ledger) Record(fill execution.Fill) {
	l.mu.Lock()
	l.fills = append(l.fills, fill)
	l.mu.Unlock()
}

// Snapshot returns a copy of the recorded fills.
func (l *Ledger) Snapshot() []execution.Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]execution.Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

// Totals sums submitted quantity per ticker. Submitted, not filled: resting
// LIMIT orders count in full.
func (l *Ledger) Totals() map[string]TickerTotals {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]TickerTotals)
	for _, f := range l.fills {
		tt := out[f.Ticker]
		tt.Orders++
		if f.Side == exchange.Buy {
			tt.Bought += f.Qty
		} else {
			tt.Sold += f.Qty
		}
		tt.Net = tt.Bought - tt.Sold
		out[f.Ticker] = tt
	}
	return out
}

// Reset clears all stored fills.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.fills = l.fills[:0]
	l.mu.Unlock()
}
