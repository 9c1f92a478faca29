package strategy

import (
	"context"

	"github.com/rs/zerolog"

	"ritbot-go/internal/config"
	"ritbot-go/internal/execution"
	"ritbot-go/internal/portfolio"
)

// VaR drives the portfolio engine on a fixed cadence.
type VaR struct {
	cfg    config.VaR
	engine *portfolio.Engine
	opts   loopOptions
	log    zerolog.Logger
}

// NewVaR wires the engine from the var config section.
func NewVaR(cfg config.VaR, exec *execution.Executor, log zerolog.Logger, opts ...Option) *VaR {
	engine := portfolio.NewEngine(exec, portfolio.Config{
		Assets:       cfg.Assets,
		Cash:         cfg.CashTicker,
		Volatilities: cfg.Volatilities,
		Correlations: cfg.Correlations,
		Ceiling:      cfg.Ceiling,
		Confidence:   cfg.Confidence,
		UnitBudget:   cfg.UnitBudget,
		ZScore:       cfg.ZScore,
		SafetyFactor: cfg.SafetyFactor,
		TrimQuantity: cfg.TrimQuantity,
		BatchSize:    cfg.BatchSize,
	}, log)
	return &VaR{cfg: cfg, engine: engine, opts: buildOptions(opts), log: log}
}

func (s *VaR) Name() string { return config.ModeVaR }

// Run cycles the engine until ctx is cancelled.
func (s *VaR) Run(ctx context.Context) error {
	s.log.Info().Strs("assets", s.cfg.Assets).Float64("ceiling", s.cfg.Ceiling).Float64("confidence", s.cfg.Confidence).Msg("var started")
	return cycleLoop(ctx, s.log, config.Millis(s.cfg.CycleMs), s.opts.backoff, func(ctx context.Context) error {
		rep, err := s.engine.Cycle(ctx)
		if err == nil && rep.Active {
			s.log.Debug().Float64("var", rep.VaR).Float64("value", rep.Value).Bool("new_news", rep.NewNews).Msg("var cycle")
		}
		return err
	})
}
