// Package router unwinds a position spread across interchangeable listings
// of one underlying, routing each block to the listing with the better price.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ritbot-go/internal/exchange"
	"ritbot-go/internal/execution"
	"ritbot-go/internal/metrics"
	"ritbot-go/internal/session"
)

// Config holds the routing knobs.
type Config struct {
	Tickers        []string
	BlockQuantity  int
	SlippageMargin float64
	NearCloseTicks int
	Every          time.Duration
}

// Decision is the outcome of one routing cycle.
type Decision struct {
	Route    bool
	Ticker   string
	Action   exchange.Side
	Quantity int
	Price    float64
	Position int
	Forced   bool
	Reason   string
}

// Decide picks the listing and block for the next unwind step. The position
// is the sum across all configured listings. A block is routed only when the
// chosen price has moved past the last tender price by more than the slippage
// margin in the trader's favor, or when the session is close to its cutoff.
func Decide(rows []exchange.Security, snap session.Snapshot, cfg Config) Decision {
	listed := make(map[string]exchange.Security, len(rows))
	for _, row := range rows {
		listed[row.Ticker] = row
	}

	var d Decision
	var candidates []exchange.Security
	for _, t := range cfg.Tickers {
		row, ok := listed[t]
		if !ok {
			continue
		}
		d.Position += row.Position
		candidates = append(candidates, row)
	}
	if d.Position == 0 {
		d.Reason = "flat"
		return d
	}
	if len(candidates) == 0 {
		d.Reason = "no listings"
		return d
	}

	d.Action = exchange.Sell
	if d.Position < 0 {
		d.Action = exchange.Buy
	}
	d.Quantity = abs(d.Position)
	if cfg.BlockQuantity > 0 && d.Quantity > cfg.BlockQuantity {
		d.Quantity = cfg.BlockQuantity
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if better(d.Action, c.Last, best.Last) {
			best = c
		}
	}
	d.Ticker = best.Ticker
	d.Price = best.Last

	profitable := false
	if d.Action == exchange.Sell {
		profitable = best.Last > snap.LastTenderPrice+cfg.SlippageMargin
	} else {
		profitable = best.Last < snap.LastTenderPrice-cfg.SlippageMargin
	}
	d.Forced = snap.Cutoff > 0 && snap.TicksToCutoff() <= cfg.NearCloseTicks

	switch {
	case profitable:
		d.Route = true
		d.Reason = "price beyond slippage margin"
	case d.Forced:
		d.Route = true
		d.Reason = "near cutoff"
	default:
		d.Reason = "price not profitable"
	}
	return d
}

// better reports whether price a is preferable to b for action.
func better(action exchange.Side, a, b float64) bool {
	if action == exchange.Sell {
		return a > b
	}
	return a < b
}

// Router runs Decide on its own cadence and submits MARKET blocks.
type Router struct {
	exec   *execution.Executor
	shared *session.Shared
	cfg    Config
	log    zerolog.Logger
}

// New builds a router over exec reading shared state each cycle.
func New(exec *execution.Executor, shared *session.Shared, cfg Config, log zerolog.Logger) *Router {
	if cfg.Every <= 0 {
		cfg.Every = 100 * time.Millisecond
	}
	return &Router{exec: exec, shared: shared, cfg: cfg, log: log.With().Str("component", "router").Logger()}
}

// Step runs one routing cycle.
func (r *Router) Step(ctx context.Context) (Decision, error) {
	rows, err := r.exec.Gateway().Securities(ctx, "")
	if err != nil {
		return Decision{}, fmt.Errorf("router securities: %w", err)
	}
	snap := r.shared.Snapshot()
	d := Decide(rows, snap, r.cfg)
	if !d.Route {
		r.log.Debug().Int("position", d.Position).Str("reason", d.Reason).Float64("tender_price", snap.LastTenderPrice).Msg("not routing")
		return d, nil
	}

	r.log.Info().Str("ticker", d.Ticker).Str("action", string(d.Action)).Int("qty", d.Quantity).Float64("price", d.Price).
		Int("position", d.Position).Bool("forced", d.Forced).Float64("tender_price", snap.LastTenderPrice).Msg("routing block")
	_, err = r.exec.Submit(ctx, exchange.OrderRequest{Ticker: d.Ticker, Type: exchange.Market, Quantity: d.Quantity, Action: d.Action})
	if err != nil {
		return d, fmt.Errorf("route %s %d %s: %w", d.Action, d.Quantity, d.Ticker, err)
	}
	metrics.RoutesTotal.WithLabelValues(d.Ticker, string(d.Action)).Inc()
	return d, nil
}

// Run loops until ctx ends. Cycle failures are logged and retried on the next tick.
func (r *Router) Run(ctx context.Context) error {
	r.log.Info().Strs("tickers", r.cfg.Tickers).Int("block", r.cfg.BlockQuantity).Dur("every", r.cfg.Every).Msg("router started")
	ticker := time.NewTicker(r.cfg.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if _, err := r.Step(ctx); err != nil && ctx.Err() == nil {
			r.log.Error().Err(err).Msg("routing cycle failed")
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
