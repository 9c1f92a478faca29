package paper

import (
	"testing"

	"ritbot-go/internal/exchange"
	"ritbot-go/internal/execution"
)

func TestLedgerRecordSnapshot(t *testing.T) {
	ledger := NewLedger(2)
	fill := execution.Fill{Ticker: "CRZY", Side: exchange.Buy, Qty: 100}
	ledger.Record(fill)

	snapshot := ledger.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(snapshot))
	}
	if snapshot[0].Ticker != fill.Ticker {
		t.Fatalf("unexpected fill ticker")
	}

	ledger.Reset()
	if len(ledger.Snapshot()) != 0 {
		t.Fatalf("expected ledger reset")
	}
}

func TestLedgerTotals(t *testing.T) {
	ledger := NewLedger(0)
	ledger.Record(execution.Fill{Ticker: "CRZY", Side: exchange.Buy, Qty: 300})
	ledger.Record(execution.Fill{Ticker: "CRZY", Side: exchange.Sell, Qty: 100})
	ledger.Record(execution.Fill{Ticker: "TAME", Side: exchange.Sell, Qty: 50})

	totals := ledger.Totals()
	if got := totals["CRZY"]; got.Orders != 2 || got.Net != 200 {
		t.Fatalf("unexpected CRZY totals: %+v", got)
	}
	if got := totals["TAME"]; got.Sold != 50 || got.Net != -50 {
		t.Fatalf("unexpected TAME totals: %+v", got)
	}
}
