// Package depth folds raw order book levels into cumulative volume/VWAP ladders.
package depth

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"ritbot-go/internal/exchange"
)

// ErrUndefinedVWAP is returned when a ladder side has no volume at all.
var ErrUndefinedVWAP = errors.New("vwap undefined: empty book side")

// Row is one ladder level. VWAP is only meaningful when Defined is true.
type Row struct {
	Ticker    string  `json:"ticker,omitempty"`
	Price     float64 `json:"price"`
	Volume    int     `json:"volume"`
	CumVolume int     `json:"cum_volume"`
	VWAP      float64 `json:"vwap"`
	Defined   bool    `json:"defined"`
}

// RoundedVWAP is the VWAP at cent precision, as the exchange quotes prices.
func (r Row) RoundedVWAP() float64 {
	return decimal.NewFromFloat(r.VWAP).Round(2).InexactFloat64()
}

// Ladder holds both sides of one book, index 0 is the best price.
type Ladder struct {
	Bids []Row `json:"bids"`
	Asks []Row `json:"asks"`
}

// Side returns the rows a trader would hit to trade in the given direction:
// selling consumes bids, buying consumes asks.
func (l Ladder) Side(action exchange.Side) []Row {
	if action == exchange.Sell {
		return l.Bids
	}
	return l.Asks
}

// Build sorts the book (bids descending, asks ascending), keeps n levels per
// side padding missing ones with zero price and volume, and folds a running VWAP.
func Build(book exchange.Book, n int) Ladder {
	if n < 0 {
		n = 0
	}
	return Ladder{
		Bids: fold(sortLevels(book.Bids, exchange.Buy), n),
		Asks: fold(sortLevels(book.Asks, exchange.Sell), n),
	}
}

// Reference walks rows until cumulative volume covers qty and returns that
// row. When no row covers qty it falls back to the last row with volume.
func Reference(rows []Row, qty int) (Row, error) {
	var last Row
	found := false
	for _, row := range rows {
		if row.Defined {
			last = row
			found = true
		}
		if row.Defined && row.CumVolume >= qty {
			return row, nil
		}
	}
	if !found {
		return Row{}, ErrUndefinedVWAP
	}
	return last, nil
}

// sortLevels orders resting bids (side BUY) descending and asks ascending.
func sortLevels(levels []exchange.Level, side exchange.Side) []exchange.Level {
	out := make([]exchange.Level, len(levels))
	copy(out, levels)
	sort.SliceStable(out, func(i, j int) bool {
		if side == exchange.Buy {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}

func fold(levels []exchange.Level, n int) []Row {
	rows := make([]Row, n)
	var cumVol int
	var notional float64
	for i := 0; i < n; i++ {
		var lvl exchange.Level
		if i < len(levels) {
			lvl = levels[i]
		}
		cumVol += lvl.Quantity
		notional += lvl.Price * float64(lvl.Quantity)
		row := Row{Price: lvl.Price, Volume: lvl.Quantity, CumVolume: cumVol}
		if cumVol > 0 {
			row.VWAP = notional / float64(cumVol)
			row.Defined = true
		}
		rows[i] = row
	}
	return rows
}
