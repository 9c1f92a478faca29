package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"ritbot-go/internal/config"
	"ritbot-go/internal/depth"
	"ritbot-go/internal/exchange"
	"ritbot-go/internal/execution"
	"ritbot-go/internal/metrics"
	"ritbot-go/internal/risk"
	"ritbot-go/internal/session"
	"ritbot-go/internal/signal"
)

// LT3 takes tenders that beat the depth VWAP, then unwinds them into the book
// with randomized batches. Past the cutoff it cancels and flattens everything
// once per session.
type LT3 struct {
	cfg    config.LT3
	exec   *execution.Executor
	gw     exchange.Gateway
	poller *session.Poller
	limits risk.Limits
	opts   loopOptions
	tasks  detached
	log    zerolog.Logger
}

// NewLT3 wires the LT3 loop.
func NewLT3(cfg config.LT3, exec *execution.Executor, log zerolog.Logger, opts ...Option) *LT3 {
	return &LT3{
		cfg:    cfg,
		exec:   exec,
		gw:     exec.Gateway(),
		poller: session.NewPoller(exec.Gateway(), cfg.TradeUntilTick, nil),
		limits: risk.Limits{Net: cfg.NetLimit, Gross: cfg.GrossLimit},
		opts:   buildOptions(opts),
		tasks:  detached{log: log},
		log:    log,
	}
}

func (s *LT3) Name() string { return config.ModeLT3 }

// Run polls until ctx is cancelled.
func (s *LT3) Run(ctx context.Context) error {
	s.log.Info().Int("trade_until_tick", s.cfg.TradeUntilTick).Float64("min_vwap_margin", s.cfg.MinVWAPMargin).
		Int("net_limit", s.cfg.NetLimit).Int("gross_limit", s.cfg.GrossLimit).Msg("lt3 started")
	return cycleLoop(ctx, s.log, config.Millis(s.cfg.PollIntervalMs), s.opts.backoff, s.Cycle)
}

// Wait blocks until detached square-offs have finished.
func (s *LT3) Wait() { s.tasks.Wait() }

// Cycle runs one poll: end-of-window handling or tender processing.
func (s *LT3) Cycle(ctx context.Context) error {
	sess, ev, err := s.poller.Poll(ctx)
	if err != nil {
		return fmt.Errorf("poll case: %w", err)
	}
	switch ev {
	case session.EventNewSession:
		s.log.Info().Int("period", sess.Period).Msg("new session")
	case session.EventWindowClosed:
		s.log.Info().Int("tick", sess.Tick).Int("cutoff", s.poller.Cutoff()).Msg("window closed, cancelling and squaring off")
		s.tasks.spawn(ctx, "end_of_window", s.endOfWindow)
		return nil
	case session.EventPastWindow:
		s.log.Debug().Int("tick", sess.Tick).Msg("past cutoff")
		return nil
	}
	if sess.Status != exchange.CaseActive {
		return nil
	}

	tenders, err := s.gw.Tenders(ctx)
	if err != nil {
		return fmt.Errorf("fetch tenders: %w", err)
	}
	for _, t := range tenders {
		if err := s.handleTender(ctx, t); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error().Err(err).Int("tender_id", t.ID).Str("ticker", t.Ticker).Str("action", string(t.Action)).
				Int("qty", t.Quantity).Float64("price", t.Price).Msg("tender handling failed")
		}
	}
	return nil
}

func (s *LT3) endOfWindow(ctx context.Context) error {
	if _, err := s.exec.CancelAll(ctx, ""); err != nil {
		return err
	}
	return s.exec.SquareOffAll(ctx, s.cfg.SquareOffBatchSize)
}

func (s *LT3) handleTender(ctx context.Context, t exchange.Tender) error {
	log := s.log.With().Int("tender_id", t.ID).Str("ticker", t.Ticker).Str("action", string(t.Action)).
		Int("qty", t.Quantity).Float64("price", t.Price).Logger()

	book, err := s.gw.Book(ctx, t.Ticker, s.cfg.MarketDepth)
	if err != nil {
		return fmt.Errorf("book: %w", err)
	}
	dec, err := signal.EvaluateDepth(depth.Build(book, s.cfg.MarketDepth), t, s.cfg.MinVWAPMargin)
	if errors.Is(err, depth.ErrUndefinedVWAP) {
		metrics.TendersTotal.WithLabelValues(t.Ticker, "undefined").Inc()
		log.Warn().Msg("book side empty, tender skipped")
		return nil
	}
	if err != nil {
		return err
	}
	if !dec.Favorable {
		metrics.TendersTotal.WithLabelValues(t.Ticker, "unfavorable").Inc()
		log.Info().Float64("reference_vwap", dec.ReferenceVWAP).Msg("waiting for favorable condition")
		return nil
	}

	rows, err := s.gw.Securities(ctx, "")
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}
	positions := exchange.Positions(rows)
	check := s.limits.Check(positions, t)
	if !check.Allowed {
		metrics.TendersTotal.WithLabelValues(t.Ticker, "risk_rejected").Inc()
		log.Info().Int("net", check.Net).Int("gross", check.Gross).Msg("tender would breach position limits")
		return nil
	}
	before := positions[t.Ticker]

	res, err := s.gw.AcceptTender(ctx, t.ID, t.Price)
	if err != nil {
		return fmt.Errorf("accept: %w", err)
	}
	if !res.Success {
		metrics.TendersTotal.WithLabelValues(t.Ticker, "refused").Inc()
		log.Warn().Str("description", res.Description).Msg("exchange refused tender")
		return nil
	}
	metrics.TendersTotal.WithLabelValues(t.Ticker, "accepted").Inc()
	log.Info().Float64("reference_vwap", dec.ReferenceVWAP).Int("net", check.Net).Int("gross", check.Gross).Msg("tender accepted")

	now, err := s.exec.ConfirmTender(ctx, t.Ticker, t.Quantity, before)
	if err != nil {
		if errors.Is(err, execution.ErrTenderNotProcessed) {
			log.Warn().Int("before", before).Msg("tender not reflected in position, no square-off scheduled")
			return nil
		}
		return err
	}
	// Unwind only what the position shows; any late remainder is flattened at the cutoff.
	filled := min(abs(now-before), t.Quantity)
	if filled < t.Quantity {
		log.Warn().Int("before", before).Int("now", now).Int("filled", filled).Msg("tender partially reflected, unwinding observed fill")
	}

	unwind := t.Action.Opposite()
	s.tasks.spawn(ctx, fmt.Sprintf("square_off_tender_%d", t.ID), func(ctx context.Context) error {
		_, err := s.exec.SquareOffRandomized(ctx, t.Ticker, unwind, t.Price, filled, s.cfg.BatchSize)
		return err
	})
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
