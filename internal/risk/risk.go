// Package risk enforces portfolio net and gross position limits on tenders.
package risk

import "ritbot-go/internal/exchange"

// Limits caps |net position| and gross position across all tickers.
type Limits struct {
	Net   int
	Gross int
}

// Check is the hypothetical portfolio after provisionally applying a tender.
type Check struct {
	Allowed bool
	Net     int
	Gross   int
}

// Check applies the tender's signed quantity to a copy of positions and
// tests the result. positions is not modified; a ticker missing from it
// counts as flat.
func (l Limits) Check(positions map[string]int, tender exchange.Tender) Check {
	hypothetical := make(map[string]int, len(positions)+1)
	for ticker, pos := range positions {
		hypothetical[ticker] = pos
	}
	hypothetical[tender.Ticker] += tender.SignedQuantity()

	var net, gross int
	for _, pos := range hypothetical {
		net += pos
		gross += abs(pos)
	}
	return Check{
		Allowed: abs(net) <= l.Net && gross <= l.Gross,
		Net:     net,
		Gross:   gross,
	}
}

// Allow is Check reduced to its verdict.
func (l Limits) Allow(positions map[string]int, tender exchange.Tender) bool {
	return l.Check(positions, tender).Allowed
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
