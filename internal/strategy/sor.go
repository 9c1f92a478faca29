package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ritbot-go/internal/config"
	"ritbot-go/internal/exchange"
	"ritbot-go/internal/execution"
	"ritbot-go/internal/metrics"
	"ritbot-go/internal/router"
	"ritbot-go/internal/session"
	"ritbot-go/internal/signal"
)

// SOR accepts tenders priced well against the global VWAP and leaves the
// unwind to a router goroutine that runs alongside the tender loop.
type SOR struct {
	cfg    config.SOR
	exec   *execution.Executor
	gw     exchange.Gateway
	shared *session.Shared
	poller *session.Poller
	router *router.Router
	opts   loopOptions
	log    zerolog.Logger
}

// NewSOR wires the tender loop and its router over shared.
func NewSOR(cfg config.SOR, exec *execution.Executor, shared *session.Shared, log zerolog.Logger, opts ...Option) *SOR {
	rt := router.New(exec, shared, router.Config{
		Tickers:        cfg.Tickers,
		BlockQuantity:  cfg.BlockQuantity,
		SlippageMargin: cfg.SlippageMargin,
		NearCloseTicks: cfg.NearCloseTicks,
		Every:          config.Millis(cfg.RouteEveryMs),
	}, log)
	return &SOR{
		cfg:    cfg,
		exec:   exec,
		gw:     exec.Gateway(),
		shared: shared,
		poller: session.NewPoller(exec.Gateway(), cfg.TradeUntilTick, shared),
		router: rt,
		opts:   buildOptions(opts),
		log:    log,
	}
}

func (s *SOR) Name() string { return config.ModeSOR }

// Run starts the router and the tender loop and returns when both have
// stopped, which only happens once ctx is cancelled.
func (s *SOR) Run(ctx context.Context) error {
	s.log.Info().Int("trade_until_tick", s.cfg.TradeUntilTick).Strs("tickers", s.cfg.Tickers).Msg("sor started")
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.router.Run(ctx) })
	g.Go(func() error {
		return cycleLoop(ctx, s.log, config.Millis(s.cfg.PollIntervalMs), s.opts.backoff, s.Cycle)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return err
}

// Cycle polls the session and evaluates any open tenders while the window is open.
func (s *SOR) Cycle(ctx context.Context) error {
	sess, ev, err := s.poller.Poll(ctx)
	if err != nil {
		return fmt.Errorf("poll case: %w", err)
	}
	if ev == session.EventWindowClosed || ev == session.EventPastWindow {
		s.log.Debug().Int("tick", sess.Tick).Int("cutoff", s.poller.Cutoff()).Msg("past cutoff, router unwinds")
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

func (s *SOR) handleTender(ctx context.Context, t exchange.Tender) error {
	rows, err := s.gw.Securities(ctx, "")
	if err != nil {
		return fmt.Errorf("securities: %w", err)
	}
	dec, err := signal.EvaluateGlobal(rows, t, s.cfg.MinVWAPMargin)
	if err != nil {
		return err
	}
	if !dec.Favorable {
		metrics.TendersTotal.WithLabelValues(t.Ticker, "unfavorable").Inc()
		s.log.Info().Int("tender_id", t.ID).Float64("price", t.Price).Float64("global_vwap", dec.ReferenceVWAP).Msg("waiting for favorable condition")
		return nil
	}
	res, err := s.gw.AcceptTender(ctx, t.ID, t.Price)
	if err != nil {
		return fmt.Errorf("accept: %w", err)
	}
	if !res.Success {
		metrics.TendersTotal.WithLabelValues(t.Ticker, "refused").Inc()
		return nil
	}
	s.shared.SetLastTenderPrice(t.Price)
	metrics.TendersTotal.WithLabelValues(t.Ticker, "accepted").Inc()
	s.log.Info().Int("tender_id", t.ID).Str("ticker", t.Ticker).Str("action", string(t.Action)).Int("qty", t.Quantity).
		Float64("price", t.Price).Float64("global_vwap", dec.ReferenceVWAP).Msg("tender accepted")
	return nil
}
