// Package signal decides whether a tender's fixed price beats what the market would pay.
package signal

import (
	"errors"
	"fmt"

	"ritbot-go/internal/depth"
	"ritbot-go/internal/exchange"
)

// ErrNoVolume is returned by EvaluateGlobal when no security has traded yet.
var ErrNoVolume = errors.New("no traded volume across securities")

// Decision is the evaluator's verdict. Favorable is a threshold signal only;
// acceptance is still gated by the risk limiter.
type Decision struct {
	Favorable     bool
	ReferenceVWAP float64
	Reason        string
}

// EvaluateDepth compares a tender with the VWAP of the depth the trader would
// have to unwind into: a SELL tender leaves the trader short, so it is
// measured against bids; a BUY tender against asks. The reference is the
// VWAP of the first level whose cumulative volume covers the tender size, or
// of the deepest available level when none does.
func EvaluateDepth(ladder depth.Ladder, tender exchange.Tender, margin float64) (Decision, error) {
	if !tender.Action.Valid() {
		return Decision{}, fmt.Errorf("tender %d: unknown action %q", tender.ID, tender.Action)
	}
	ref, err := depth.Reference(ladder.Side(tender.Action), tender.Quantity)
	if err != nil {
		return Decision{}, fmt.Errorf("tender %d %s: %w", tender.ID, tender.Ticker, err)
	}
	return compare(tender, ref.VWAP, margin, fmt.Sprintf("depth vwap over %d", ref.CumVolume)), nil
}

// EvaluateGlobal uses the volume-weighted last price across every security as
// the reference. It suits venues where one exposure trades on several books.
func EvaluateGlobal(securities []exchange.Security, tender exchange.Tender, margin float64) (Decision, error) {
	if !tender.Action.Valid() {
		return Decision{}, fmt.Errorf("tender %d: unknown action %q", tender.ID, tender.Action)
	}
	var notional float64
	var volume int
	for _, sec := range securities {
		notional += sec.Last * float64(sec.Volume)
		volume += sec.Volume
	}
	if volume == 0 {
		return Decision{}, fmt.Errorf("tender %d: %w", tender.ID, ErrNoVolume)
	}
	return compare(tender, notional/float64(volume), margin, "global vwap"), nil
}

func compare(tender exchange.Tender, ref, margin float64, reason string) Decision {
	d := Decision{ReferenceVWAP: ref, Reason: reason}
	switch tender.Action {
	case exchange.Sell:
		d.Favorable = tender.Price-margin > ref
	case exchange.Buy:
		d.Favorable = tender.Price+margin < ref
	}
	return d
}
