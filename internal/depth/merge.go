package depth

import (
	"sort"

	"ritbot-go/internal/exchange"
)

type taggedLevel struct {
	ticker string
	level  exchange.Level
}

// Merge combines the books of several tickers into one globally sorted ladder
// and refolds cumulative volume and VWAP across the merged sequence. Levels
// with no volume are dropped; n <= 0 keeps every level.
func Merge(books map[string]exchange.Book, n int) Ladder {
	tickers := make([]string, 0, len(books))
	for ticker := range books {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	var bids, asks []taggedLevel
	for _, ticker := range tickers {
		book := books[ticker]
		for _, lvl := range book.Bids {
			if lvl.Quantity > 0 {
				bids = append(bids, taggedLevel{ticker: ticker, level: lvl})
			}
		}
		for _, lvl := range book.Asks {
			if lvl.Quantity > 0 {
				asks = append(asks, taggedLevel{ticker: ticker, level: lvl})
			}
		}
	}
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].level.Price > bids[j].level.Price })
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].level.Price < asks[j].level.Price })

	return Ladder{Bids: foldTagged(bids, n), Asks: foldTagged(asks, n)}
}

func foldTagged(levels []taggedLevel, n int) []Row {
	if n <= 0 || n > len(levels) {
		n = len(levels)
	}
	rows := make([]Row, 0, n)
	var cumVol int
	var notional float64
	for _, tl := range levels[:n] {
		cumVol += tl.level.Quantity
		notional += tl.level.Price * float64(tl.level.Quantity)
		rows = append(rows, Row{
			Ticker:    tl.ticker,
			Price:     tl.level.Price,
			Volume:    tl.level.Quantity,
			CumVolume: cumVol,
			VWAP:      notional / float64(cumVol),
			Defined:   true,
		})
	}
	return rows
}
