// Package strategy hosts the long-running strategy loops that tie the
// session poller, evaluators and executor together.
package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"ritbot-go/internal/config"
	"ritbot-go/internal/execution"
	"ritbot-go/internal/session"
)

// Runner is a strategy main loop. Run returns only once ctx is cancelled.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

// Deps carries everything a strategy constructor may need.
type Deps struct {
	Config   *config.Config
	Executor *execution.Executor
	Shared   *session.Shared
	Log      zerolog.Logger
}

// Build returns the runner matching the configured mode.
func Build(mode string, deps Deps) (Runner, error) {
	if deps.Config == nil || deps.Executor == nil {
		return nil, fmt.Errorf("strategy: config and executor are required")
	}
	backoff := deps.Config.Retry.Backoff()
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case config.ModeLT3, "liquidity", "tender":
		return NewLT3(deps.Config.LT3, deps.Executor, deps.Log, WithBackoff(backoff)), nil
	case config.ModeSOR, "smart_order_routing":
		shared := deps.Shared
		if shared == nil {
			shared = session.NewShared()
		}
		return NewSOR(deps.Config.SOR, deps.Executor, shared, deps.Log, WithBackoff(backoff)), nil
	case config.ModeVaR, "value_at_risk":
		return NewVaR(deps.Config.VaR, deps.Executor, deps.Log, WithBackoff(backoff)), nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy mode %q", config.ErrInvalid, mode)
	}
}
