package paper

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"ritbot-go/internal/exchange"
)

// Scenario is a scripted session loaded from YAML for dry runs.
type Scenario struct {
	StartingCash float64            `yaml:"starting_cash"`
	EndTick      int                `yaml:"end_tick"`
	SettleAfter  int                `yaml:"settle_after"`
	Securities   []ScenarioSecurity `yaml:"securities"`
	Tenders      []ScenarioTender   `yaml:"tenders"`
	News         []ScenarioNews     `yaml:"news"`
}

// ScenarioSecurity lists a ticker with its opening price and book.
type ScenarioSecurity struct {
	Ticker   string           `yaml:"ticker"`
	Last     float64          `yaml:"last"`
	Volume   int              `yaml:"volume"`
	Position int              `yaml:"position"`
	Bids     []exchange.Level `yaml:"bids"`
	Asks     []exchange.Level `yaml:"asks"`
}

// ScenarioTender is an institutional offer released at Tick.
type ScenarioTender struct {
	ID       int     `yaml:"id"`
	Ticker   string  `yaml:"ticker"`
	Action   string  `yaml:"action"`
	Quantity int     `yaml:"quantity"`
	Price    float64 `yaml:"price"`
	Tick     int     `yaml:"tick"`
	Expires  int     `yaml:"expires"`
}

// ScenarioNews is a headline released at Tick.
type ScenarioNews struct {
	ID       int    `yaml:"id"`
	Tick     int    `yaml:"tick"`
	Headline string `yaml:"headline"`
	Body     string `yaml:"body"`
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	for _, t := range sc.Tenders {
		if side := exchange.Side(t.Action); !side.Valid() {
			return nil, fmt.Errorf("scenario tender %d: unknown action %q", t.ID, t.Action)
		}
	}
	return &sc, nil
}

// Build seeds a fresh exchange with the scenario.
func (sc *Scenario) Build() *Exchange {
	account := NewAccount(sc.StartingCash)
	x := NewExchange(account)
	x.SetEndTick(sc.EndTick)
	x.SettleAfter(sc.SettleAfter)
	for _, sec := range sc.Securities {
		x.AddSecurity(sec.Ticker, sec.Last)
		x.SetVolume(sec.Ticker, sec.Volume)
		x.SetBook(sec.Ticker, exchange.Book{Bids: sec.Bids, Asks: sec.Asks})
		if sec.Position != 0 {
			account.SetPosition(sec.Ticker, sec.Position, sec.Last)
		}
	}
	for _, t := range sc.Tenders {
		x.AddTender(exchange.Tender{
			ID:       t.ID,
			Ticker:   t.Ticker,
			Action:   exchange.Side(t.Action),
			Quantity: t.Quantity,
			Price:    t.Price,
			Tick:     t.Tick,
			Expires:  t.Expires,
		})
	}
	for _, n := range sc.News {
		x.AddNews(exchange.News{ID: n.ID, Tick: n.Tick, Headline: n.Headline, Body: n.Body})
	}
	return x
}
