package portfolio

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"ritbot-go/internal/exchange"
	"ritbot-go/internal/execution"
	"ritbot-go/internal/metrics"
)

// Config is the VaR engine's static risk model and sizing knobs.
// Volatilities and Correlations are ordered as Assets followed by Cash.
type Config struct {
	Assets       []string
	Cash         string
	Volatilities []float64
	Correlations [][]float64
	Ceiling      float64
	Confidence   float64
	UnitBudget   float64
	ZScore       float64
	SafetyFactor float64
	TrimQuantity int
	BatchSize    int
}

// Trade is a directional entry taken on fresh news.
type Trade struct {
	Ticker   string
	Action   exchange.Side
	Quantity int
	Return   float64
	Filled   int
	VWAP     float64
}

// CycleReport summarizes what one cycle saw and did.
type CycleReport struct {
	Active     bool
	NewNews    bool
	Entry      *Trade
	VaR        float64
	Value      float64
	Trimmed    []string
	SquaredOff []string
}

// Engine keeps the news watermark and latest analyst targets between cycles.
// It is not safe for concurrent use.
type Engine struct {
	exec *execution.Executor
	cfg  Config
	log  zerolog.Logger

	newsSeen    int
	expectation *Expectation
}

// NewEngine wires the executor and risk model.
func NewEngine(exec *execution.Executor, cfg Config, log zerolog.Logger) *Engine {
	return &Engine{exec: exec, cfg: cfg, log: log.With().Str("component", "var").Logger()}
}

// Expectation returns the most recent parsed targets, if any.
func (e *Engine) Expectation() (Expectation, bool) {
	if e.expectation == nil {
		return Expectation{}, false
	}
	return *e.expectation, true
}

// Cycle runs one pass: skip unless ACTIVE, enter on unseen news, then
// measure VaR, trim above the ceiling and take profit at target.
func (e *Engine) Cycle(ctx context.Context) (CycleReport, error) {
	var rep CycleReport
	gw := e.exec.Gateway()

	sess, err := gw.Case(ctx)
	if err != nil {
		return rep, fmt.Errorf("case status: %w", err)
	}
	if sess.Status != exchange.CaseActive {
		if e.newsSeen != 0 {
			e.log.Info().Str("status", string(sess.Status)).Msg("case not active, resetting news watermark")
		}
		e.newsSeen = 0
		metrics.PortfolioVaR.Set(0)
		return rep, nil
	}
	rep.Active = true

	holdings, err := e.holdings(ctx)
	if err != nil {
		return rep, err
	}

	news, err := gw.News(ctx, 0)
	if err != nil {
		return rep, fmt.Errorf("news: %w", err)
	}
	// The first item of a session is the case briefing, not a forecast.
	fresh := false
	if len(news) > 1 {
		if exp, ok := ParseNews(news[0].Body); ok {
			e.expectation = &exp
			fresh = true
		}
	}
	if len(news) > e.newsSeen {
		e.newsSeen = len(news)
		rep.NewNews = true
		if fresh {
			trade, err := e.enter(ctx, holdings)
			if err != nil {
				return rep, err
			}
			rep.Entry = trade
			if holdings, err = e.holdings(ctx); err != nil {
				return rep, err
			}
		}
	}

	book := e.ordered(holdings)
	weights, total := Weights(book)
	v, err := VaR(e.cfg.Volatilities, e.cfg.Correlations, weights, total, e.cfg.Confidence)
	if err != nil {
		return rep, err
	}
	rep.VaR, rep.Value = v, total
	metrics.PortfolioVaR.Set(v)
	e.log.Debug().Float64("var", v).Float64("value", total).Floats64("weights", weights).Msg("portfolio var")

	if v >= e.cfg.Ceiling {
		trimmed, err := e.trim(ctx, book)
		rep.Trimmed = trimmed
		if err != nil {
			return rep, err
		}
	}
	squared, err := e.takeProfit(ctx, book)
	rep.SquaredOff = squared
	return rep, err
}

func (e *Engine) holdings(ctx context.Context) (map[string]Holding, error) {
	rows, err := e.exec.Gateway().Securities(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("securities: %w", err)
	}
	out := make(map[string]Holding, len(rows))
	for _, r := range rows {
		out[r.Ticker] = Holding{Ticker: r.Ticker, Position: r.Position, Last: r.Last}
	}
	return out, nil
}

// ordered lays holdings out as Assets then Cash to line up with the risk model.
func (e *Engine) ordered(h map[string]Holding) []Holding {
	out := make([]Holding, 0, len(e.cfg.Assets)+1)
	for _, t := range append(append([]string(nil), e.cfg.Assets...), e.cfg.Cash) {
		row, ok := h[t]
		if !ok {
			row = Holding{Ticker: t}
		}
		out = append(out, row)
	}
	return out
}

// pickEntry returns the asset and direction with the highest expected return.
// Longs are considered before shorts; the first maximum wins.
func pickEntry(assets []string, h map[string]Holding, exp Expectation) (int, exchange.Side, float64, bool) {
	best, bestRet := -1, 0.0
	side := exchange.Buy
	for _, dir := range []exchange.Side{exchange.Buy, exchange.Sell} {
		for i, a := range assets {
			target, ok := exp.Prices[a]
			last := h[a].Last
			if !ok || last <= 0 {
				continue
			}
			ret := float64(dir.Sign()) * (target - last) / last
			if best < 0 || ret > bestRet {
				best, bestRet, side = i, ret, dir
			}
		}
	}
	return best, side, bestRet, best >= 0
}

func (e *Engine) enter(ctx context.Context, h map[string]Holding) (*Trade, error) {
	idx, side, ret, ok := pickEntry(e.cfg.Assets, h, *e.expectation)
	if !ok {
		e.log.Warn().Msg("news parsed but no priced asset to trade")
		return nil, nil
	}
	ticker := e.cfg.Assets[idx]
	last := h[ticker].Last
	units := UnitsForBudget(last, e.cfg.Volatilities[idx], e.cfg.UnitBudget, e.cfg.ZScore)
	qty := int(float64(units) * e.cfg.SafetyFactor)
	if side == exchange.Buy {
		byCash := int(float64(h[e.cfg.Cash].Position) / last)
		e.log.Info().Int("by_var", units).Int("by_cash", byCash).Int("scaled", qty).Msg("sizing long entry")
		qty = min(qty, byCash)
	}
	trade := &Trade{Ticker: ticker, Action: side, Quantity: qty, Return: ret}
	if qty <= 0 {
		e.log.Info().Str("ticker", ticker).Str("action", string(side)).Msg("entry sized to zero")
		return trade, nil
	}

	e.log.Info().Str("ticker", ticker).Str("action", string(side)).Int("qty", qty).Float64("price", last).
		Float64("expected_return", ret).Int("news_tick", e.expectation.Tick).Msg("entering on news")
	res, err := e.exec.SubmitBatches(ctx, exchange.OrderRequest{Ticker: ticker, Type: exchange.Market, Quantity: qty, Action: side}, e.cfg.BatchSize)
	trade.Filled, trade.VWAP = res.Filled, res.VWAP
	if err != nil {
		return trade, fmt.Errorf("enter %s %s: %w", side, ticker, err)
	}
	return trade, nil
}

// trim shaves a fixed quantity off every open position still short of its
// target. Without any targets every open position is trimmed.
func (e *Engine) trim(ctx context.Context, book []Holding) ([]string, error) {
	var trimmed []string
	for _, h := range book[:len(e.cfg.Assets)] {
		if h.Position == 0 {
			continue
		}
		if e.expectation != nil && e.expectation.Reached(h.Ticker, h.Position, h.Last) {
			continue
		}
		qty := min(e.cfg.TrimQuantity, abs(h.Position))
		action := exchange.Sell
		if h.Position < 0 {
			action = exchange.Buy
		}
		e.log.Info().Str("ticker", h.Ticker).Str("action", string(action)).Int("qty", qty).Int("position", h.Position).Msg("trimming above var ceiling")
		if _, err := e.exec.SubmitBatches(ctx, exchange.OrderRequest{Ticker: h.Ticker, Type: exchange.Market, Quantity: qty, Action: action}, e.cfg.BatchSize); err != nil {
			return trimmed, fmt.Errorf("trim %s: %w", h.Ticker, err)
		}
		trimmed = append(trimmed, h.Ticker)
	}
	return trimmed, nil
}

// takeProfit flattens every position whose target has been reached.
func (e *Engine) takeProfit(ctx context.Context, book []Holding) ([]string, error) {
	if e.expectation == nil {
		return nil, nil
	}
	var squared []string
	for _, h := range book[:len(e.cfg.Assets)] {
		if !e.expectation.Reached(h.Ticker, h.Position, h.Last) {
			continue
		}
		action := exchange.Sell
		if h.Position < 0 {
			action = exchange.Buy
		}
		e.log.Info().Str("ticker", h.Ticker).Str("action", string(action)).Int("qty", abs(h.Position)).
			Float64("price", h.Last).Float64("target", e.expectation.Prices[h.Ticker]).Msg("target reached, squaring off")
		if _, err := e.exec.SubmitBatches(ctx, exchange.OrderRequest{Ticker: h.Ticker, Type: exchange.Market, Quantity: abs(h.Position), Action: action}, e.cfg.BatchSize); err != nil {
			return squared, fmt.Errorf("take profit %s: %w", h.Ticker, err)
		}
		squared = append(squared, h.Ticker)
	}
	return squared, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
