// Package exchange hosts the gateway to the simulated exchange and its wire types.
package exchange

import (
	"encoding/json"
	"math"
)

// Side enumerates order and tender directions.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the side that offsets s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Sign is +1 for BUY and -1 for SELL.
func (s Side) Sign() int {
	if s == Sell {
		return -1
	}
	return 1
}

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool { return s == Buy || s == Sell }

// OrderType distinguishes market from limit orders.
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

// OrderStatus is the lifecycle state of an order. OPEN moves to TRANSACTED or CANCELLED and never back.
type OrderStatus string

const (
	StatusOpen       OrderStatus = "OPEN"
	StatusTransacted OrderStatus = "TRANSACTED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

// CaseStatus is the session state reported by /case.
type CaseStatus string

const (
	CaseActive  CaseStatus = "ACTIVE"
	CasePaused  CaseStatus = "PAUSED"
	CaseStopped CaseStatus = "STOPPED"
)

// Session is the tick/period/status triple refreshed every poll.
type Session struct {
	Tick   int        `json:"tick"`
	Period int        `json:"period"`
	Status CaseStatus `json:"status"`
}

// Security is a per-ticker position and price snapshot.
type Security struct {
	Ticker   string  `json:"ticker"`
	Position int     `json:"position"`
	Last     float64 `json:"last"`
	Volume   int     `json:"volume"`
}

// UnmarshalJSON tolerates the exchange reporting integral quantities as floats.
func (s *Security) UnmarshalJSON(b []byte) error {
	var raw struct {
		Ticker   string  `json:"ticker"`
		Position float64 `json:"position"`
		Last     float64 `json:"last"`
		Volume   float64 `json:"volume"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = Security{Ticker: raw.Ticker, Position: roundQty(raw.Position), Last: raw.Last, Volume: roundQty(raw.Volume)}
	return nil
}

// Level is one resting price level of an order book.
type Level struct {
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

func (l *Level) UnmarshalJSON(b []byte) error {
	var raw struct {
		Price    float64 `json:"price"`
		Quantity float64 `json:"quantity"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*l = Level{Price: raw.Price, Quantity: roundQty(raw.Quantity)}
	return nil
}

// Book holds the unsorted bid and ask levels of one ticker.
type Book struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}

// Tender is a block trade offered at a fixed price. It is accepted or declined once.
type Tender struct {
	ID       int     `json:"tender_id"`
	Ticker   string  `json:"ticker"`
	Price    float64 `json:"price"`
	Action   Side    `json:"action"`
	Quantity int     `json:"quantity"`
	Tick     int     `json:"tick"`
	Expires  int     `json:"expires"`
	Caption  string  `json:"caption"`
}

func (t *Tender) UnmarshalJSON(b []byte) error {
	type alias Tender
	var raw struct {
		alias
		Quantity float64 `json:"quantity"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*t = Tender(raw.alias)
	t.Quantity = roundQty(raw.Quantity)
	return nil
}

// SignedQuantity is the position change accepting the tender causes.
func (t Tender) SignedQuantity() int { return t.Action.Sign() * t.Quantity }

// Order is an exchange order as reported back after submission.
type Order struct {
	ID             int         `json:"order_id"`
	Ticker         string      `json:"ticker"`
	Type           OrderType   `json:"type"`
	Quantity       int         `json:"quantity"`
	Action         Side        `json:"action"`
	Price          *float64    `json:"price"`
	QuantityFilled int         `json:"quantity_filled"`
	VWAP           *float64    `json:"vwap"`
	Status         OrderStatus `json:"status"`
}

func (o *Order) UnmarshalJSON(b []byte) error {
	type alias Order
	var raw struct {
		alias
		Quantity       float64 `json:"quantity"`
		QuantityFilled float64 `json:"quantity_filled"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*o = Order(raw.alias)
	o.Quantity = roundQty(raw.Quantity)
	o.QuantityFilled = roundQty(raw.QuantityFilled)
	return nil
}

// OrderRequest is what the executor submits. Price is ignored for MARKET orders.
type OrderRequest struct {
	Ticker   string
	Type     OrderType
	Quantity int
	Action   Side
	Price    float64
}

// News is one item of the exchange news feed, newest first.
type News struct {
	ID       int    `json:"news_id"`
	Tick     int    `json:"tick"`
	Ticker   string `json:"ticker"`
	Headline string `json:"headline"`
	Body     string `json:"body"`
}

// Trader identifies the logged-in trader.
type Trader struct {
	ID        string  `json:"trader_id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	NLV       float64 `json:"nlv"`
}

// Result is the generic success envelope of mutating endpoints.
type Result struct {
	Success     bool   `json:"success"`
	Description string `json:"description,omitempty"`
}

func roundQty(v float64) int { return int(math.Round(v)) }
