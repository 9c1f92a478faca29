package signal

import (
	"errors"
	"testing"

	"ritbot-go/internal/depth"
	"ritbot-go/internal/exchange"
)

func ladderWithBids(levels ...exchange.Level) depth.Ladder {
	return depth.Build(exchange.Book{Bids: levels}, 20)
}

func TestEvaluateDepthSellAboveBidVWAP(t *testing.T) {
	ladder := ladderWithBids(
		exchange.Level{Price: 9.85, Quantity: 500},
		exchange.Level{Price: 9.75, Quantity: 500},
		exchange.Level{Price: 9.50, Quantity: 5000},
	)
	tender := exchange.Tender{ID: 1, Ticker: "CRZY", Price: 10.0, Action: exchange.Sell, Quantity: 1000}

	d, err := EvaluateDepth(ladder, tender, 0.05)
	if err != nil {
		t.Fatalf("EvaluateDepth returned error: %v", err)
	}
	if d.ReferenceVWAP < 9.7999 || d.ReferenceVWAP > 9.8001 {
		t.Fatalf("expected reference vwap 9.80, got %.4f", d.ReferenceVWAP)
	}
	if !d.Favorable {
		t.Fatalf("expected 10.00 - 0.05 > 9.80 to be favorable")
	}
}

func TestEvaluateDepthSellWithinMargin(t *testing.T) {
	ladder := ladderWithBids(exchange.Level{Price: 9.97, Quantity: 2000})
	tender := exchange.Tender{ID: 2, Ticker: "CRZY", Price: 10.0, Action: exchange.Sell, Quantity: 1000}

	d, err := EvaluateDepth(ladder, tender, 0.05)
	if err != nil {
		t.Fatalf("EvaluateDepth returned error: %v", err)
	}
	if d.Favorable {
		t.Fatalf("expected price within margin to be unfavorable")
	}
}

func TestEvaluateDepthBuyUsesAsks(t *testing.T) {
	ladder := depth.Build(exchange.Book{
		Bids: []exchange.Level{{Price: 9.0, Quantity: 10000}},
		Asks: []exchange.Level{{Price: 10.3, Quantity: 400}, {Price: 10.5, Quantity: 400}},
	}, 20)
	tender := exchange.Tender{ID: 3, Ticker: "CRZY", Price: 10.0, Action: exchange.Buy, Quantity: 5000}

	d, err := EvaluateDepth(ladder, tender, 0.1)
	if err != nil {
		t.Fatalf("EvaluateDepth returned error: %v", err)
	}
	if d.ReferenceVWAP < 10.3999 || d.ReferenceVWAP > 10.4001 {
		t.Fatalf("expected fallback to deepest ask vwap 10.40, got %.4f", d.ReferenceVWAP)
	}
	if !d.Favorable {
		t.Fatalf("expected 10.0 + 0.1 < 10.4 to be favorable")
	}
}

func TestEvaluateDepthEmptySide(t *testing.T) {
	ladder := depth.Build(exchange.Book{Asks: []exchange.Level{{Price: 10, Quantity: 100}}}, 20)
	tender := exchange.Tender{ID: 4, Ticker: "CRZY", Price: 10.0, Action: exchange.Sell, Quantity: 100}

	if _, err := EvaluateDepth(ladder, tender, 0.05); !errors.Is(err, depth.ErrUndefinedVWAP) {
		t.Fatalf("expected ErrUndefinedVWAP, got %v", err)
	}
}

func TestEvaluateDepthRejectsUnknownAction(t *testing.T) {
	ladder := ladderWithBids(exchange.Level{Price: 10, Quantity: 100})
	if _, err := EvaluateDepth(ladder, exchange.Tender{Action: "HOLD"}, 0); err == nil {
		t.Fatalf("expected error for unknown action")
	}
}

func TestEvaluateGlobal(t *testing.T) {
	secs := []exchange.Security{
		{Ticker: "THOR_A", Last: 20.0, Volume: 3000},
		{Ticker: "THOR_M", Last: 20.4, Volume: 1000},
	}
	buy := exchange.Tender{ID: 5, Ticker: "THOR_M", Price: 19.9, Action: exchange.Buy, Quantity: 1000}
	d, err := EvaluateGlobal(secs, buy, 0.02)
	if err != nil {
		t.Fatalf("EvaluateGlobal returned error: %v", err)
	}
	if d.ReferenceVWAP < 20.0999 || d.ReferenceVWAP > 20.1001 || !d.Favorable {
		t.Fatalf("unexpected decision %+v", d)
	}

	sell := exchange.Tender{ID: 6, Ticker: "THOR_M", Price: 20.11, Action: exchange.Sell, Quantity: 1000}
	d, err = EvaluateGlobal(secs, sell, 0.02)
	if err != nil || d.Favorable {
		t.Fatalf("expected unfavorable sell within margin, got %+v err=%v", d, err)
	}

	if _, err := EvaluateGlobal(nil, sell, 0.02); !errors.Is(err, ErrNoVolume) {
		t.Fatalf("expected ErrNoVolume, got %v", err)
	}
}
