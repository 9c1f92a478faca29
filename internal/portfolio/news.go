package portfolio

import (
	"regexp"
	"strconv"
)

// Expectation is an analyst price target set published in a news item.
type Expectation struct {
	Tick   int
	Prices map[string]float64
}

// NewsAssets are the assets a news item carries targets for, in body order.
var NewsAssets = []string{"US", "BRIC", "BOND"}

var newsPattern = regexp.MustCompile(`tick (\d+).*?US = \$(\d+(?:\.\d{1,2})?).*?BRIC = \$(\d+(?:\.\d{1,2})?).*?BOND (\d+(?:\.\d{1,2})?)`)

// ParseNews extracts targets from bodies like
// "... tick 45 ... US = $24.50 ... BRIC = $31 ... BOND 101.25".
func ParseNews(body string) (Expectation, bool) {
	m := newsPattern.FindStringSubmatch(body)
	if m == nil {
		return Expectation{}, false
	}
	tick, err := strconv.Atoi(m[1])
	if err != nil {
		return Expectation{}, false
	}
	exp := Expectation{Tick: tick, Prices: make(map[string]float64, len(NewsAssets))}
	for i, asset := range NewsAssets {
		v, err := strconv.ParseFloat(m[i+2], 64)
		if err != nil {
			return Expectation{}, false
		}
		exp.Prices[asset] = v
	}
	return exp, true
}

// Reached reports whether last has met the target in the direction that
// profits a position of the given sign.
func (e Expectation) Reached(asset string, position int, last float64) bool {
	target, ok := e.Prices[asset]
	if !ok {
		return false
	}
	switch {
	case position > 0:
		return last >= target
	case position < 0:
		return last <= target
	}
	return false
}
