package paper

import (
	"errors"
	"sync"

	"ritbot-go/internal/exchange"
)

type positionState struct {
	Qty     int
	AvgCost float64
}

// Account tracks virtual cash, realized PnL, and signed per-ticker positions.
// Shorts are allowed, as on the case exchange.
type Account struct {
	mu           sync.Mutex
	startingCash float64
	cash         float64
	realizedPnL  float64
	positions    map[string]positionState
}

// PositionSnapshot exposes a read-only view of a single ticker position.
type PositionSnapshot struct {
	Qty         int
	AvgCost     float64
	MarketValue float64
	Unrealized  float64
}

// Snapshot is a point-in-time copy of the account, marked to the supplied prices.
type Snapshot struct {
	Cash        float64
	RealizedPnL float64
	Equity      float64
	Positions   map[string]PositionSnapshot
}

// NewAccount constructs an account holding startingCash and no positions.
func NewAccount(startingCash float64) *Account {
	return &Account{
		startingCash: startingCash,
		cash:         startingCash,
		positions:    make(map[string]positionState),
	}
}

// StartingCash returns the initial bankroll.
func (a *Account) StartingCash() float64 { return a.startingCash }

// Fill books qty units of ticker at price. Reducing trades realize PnL
// against the average cost; a trade that crosses zero re-opens at price.
func (a *Account) Fill(ticker string, side exchange.Side, qty int, price float64) error {
	if qty <= 0 {
		return errors.New("quantity must be positive")
	}
	if price <= 0 {
		return errors.New("price must be positive")
	}
	if !side.Valid() {
		return errors.New("unknown order side")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	state := a.positions[ticker]
	delta := side.Sign() * qty
	a.cash -= float64(delta) * price

	switch {
	case state.Qty == 0 || sameSign(state.Qty, delta):
		newQty := state.Qty + delta
		state.AvgCost = (state.AvgCost*float64(absInt(state.Qty)) + price*float64(qty)) / float64(absInt(newQty))
		state.Qty = newQty
	default:
		closed := min(absInt(state.Qty), qty)
		if state.Qty > 0 {
			a.realizedPnL += (price - state.AvgCost) * float64(closed)
		} else {
			a.realizedPnL += (state.AvgCost - price) * float64(closed)
		}
		state.Qty += delta
		if closed < qty {
			state.AvgCost = price
		}
	}

	if state.Qty == 0 {
		delete(a.positions, ticker)
	} else {
		a.positions[ticker] = state
	}
	return nil
}

// Snapshot returns a copy of balances marked using prices; unpriced positions count as zero.
func (a *Account) Snapshot(prices map[string]float64) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make(map[string]PositionSnapshot, len(a.positions))
	equity := a.cash
	for ticker, pos := range a.positions {
		mark := prices[ticker]
		var marketValue, unrealized float64
		if mark != 0 {
			marketValue = float64(pos.Qty) * mark
			unrealized = (mark - pos.AvgCost) * float64(pos.Qty)
		}
		positions[ticker] = PositionSnapshot{
			Qty:         pos.Qty,
			AvgCost:     pos.AvgCost,
			MarketValue: marketValue,
			Unrealized:  unrealized,
		}
		equity += marketValue
	}

	return Snapshot{
		Cash:        a.cash,
		RealizedPnL: a.realizedPnL,
		Equity:      equity,
		Positions:   positions,
	}
}

// Cash reports the current cash balance, negative when levered.
func (a *Account) Cash() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash
}

// Position returns the signed position for ticker.
func (a *Account) Position(ticker string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positions[ticker].Qty
}

// SetPosition overrides a position without touching cash, for seeding scenarios.
func (a *Account) SetPosition(ticker string, qty int, avgCost float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if qty == 0 {
		delete(a.positions, ticker)
		return
	}
	a.positions[ticker] = positionState{Qty: qty, AvgCost: avgCost}
}

// RealizedPnL returns total closed-trade profit and loss.
func (a *Account) RealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realizedPnL
}

func sameSign(a, b int) bool { return (a > 0) == (b > 0) }

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
