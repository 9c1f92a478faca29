package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"ritbot-go/internal/portfolio"
	"ritbot-go/internal/retry"
)

// ApplyDefaults fills optional knobs that were left empty in the YAML file.
func (c *Config) ApplyDefaults() {
	if c.App.Mode == "" {
		c.App.Mode = ModeLT3
	}
	c.App.Mode = strings.ToLower(strings.TrimSpace(c.App.Mode))
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Exchange.Host == "" {
		c.Exchange.Host = "localhost"
	}
	if c.Exchange.TimeoutMs <= 0 {
		c.Exchange.TimeoutMs = 5000
	}

	if c.Retry.MinDelayMs <= 0 {
		c.Retry.MinDelayMs = 200
	}
	if c.Retry.MaxDelayMs <= 0 {
		c.Retry.MaxDelayMs = 5000
	}
	if c.Retry.Factor <= 1 {
		c.Retry.Factor = 2
	}

	if c.LT3.MarketDepth <= 0 {
		c.LT3.MarketDepth = 20
	}
	if c.LT3.BatchSize <= 0 {
		c.LT3.BatchSize = 10000
	}
	if c.LT3.SquareOffBatchSize <= 0 {
		c.LT3.SquareOffBatchSize = 10000
	}
	if c.LT3.PollIntervalMs <= 0 {
		c.LT3.PollIntervalMs = 1000
	}
	if c.LT3.PaceMs <= 0 {
		c.LT3.PaceMs = 100
	}
	if c.LT3.ConfirmAttempts <= 0 {
		c.LT3.ConfirmAttempts = 10
	}
	if c.LT3.ConfirmDelayMs <= 0 {
		c.LT3.ConfirmDelayMs = 100
	}
	if len(c.LT3.PriceOffsets) == 0 {
		c.LT3.PriceOffsets = []float64{0, 0.05, 0.1, 0.15, 0.2}
	}

	if c.SOR.BlockQuantity <= 0 {
		c.SOR.BlockQuantity = 2000
	}
	if len(c.SOR.Tickers) == 0 {
		c.SOR.Tickers = []string{"THOR_A", "THOR_M"}
	}
	if c.SOR.NearCloseTicks <= 0 {
		c.SOR.NearCloseTicks = 5
	}
	if c.SOR.RouteEveryMs <= 0 {
		c.SOR.RouteEveryMs = 100
	}
	if c.SOR.PollIntervalMs <= 0 {
		c.SOR.PollIntervalMs = 1000
	}

	if len(c.VaR.Assets) == 0 {
		c.VaR.Assets = slices.Clone(portfolio.NewsAssets)
	}
	if c.VaR.CashTicker == "" {
		c.VaR.CashTicker = "CASH"
	}
	if c.VaR.Confidence <= 0 {
		c.VaR.Confidence = 0.99
	}
	if c.VaR.ZScore <= 0 {
		c.VaR.ZScore = 2.33
	}
	if c.VaR.SafetyFactor <= 0 {
		c.VaR.SafetyFactor = 0.95
	}
	if c.VaR.TrimQuantity <= 0 {
		c.VaR.TrimQuantity = 100
	}
	if c.VaR.BatchSize <= 0 {
		c.VaR.BatchSize = 5000
	}
	if c.VaR.CycleMs <= 0 {
		c.VaR.CycleMs = 1000
	}

	if c.Admin.Addr == "" {
		c.Admin.Addr = ":8000"
	}
	if c.Admin.StatusEveryMs <= 0 {
		c.Admin.StatusEveryMs = 1000
	}
	if c.Admin.DefaultBatchSize <= 0 {
		c.Admin.DefaultBatchSize = 10000
	}
}

// Validate checks the fields the selected strategy cannot run without.
func (c *Config) Validate(mode string) error {
	if err := c.Exchange.validate(); err != nil {
		return err
	}
	return c.ValidateStrategy(mode)
}

// ValidateStrategy checks only the strategy section, for runs against the
// in-process paper exchange where no credentials are needed.
func (c *Config) ValidateStrategy(mode string) error {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeLT3:
		return c.LT3.validate()
	case ModeSOR:
		return c.SOR.validate()
	case ModeVaR:
		return c.VaR.validate()
	case "admin":
		return nil
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalid, mode)
	}
}

func (e Exchange) validate() error {
	if e.Username == "" || e.Password == "" {
		return fmt.Errorf("%w: exchange credentials are required", ErrInvalid)
	}
	if e.Port < 1 || e.Port > 65535 {
		return fmt.Errorf("%w: exchange port %d out of range", ErrInvalid, e.Port)
	}
	return nil
}

func (l LT3) validate() error {
	switch {
	case l.TradeUntilTick <= 0:
		return fmt.Errorf("%w: lt3.trade_until_tick must be positive", ErrInvalid)
	case l.NetLimit <= 0 || l.GrossLimit <= 0:
		return fmt.Errorf("%w: lt3 net and gross limits must be positive", ErrInvalid)
	case l.MinVWAPMargin < 0:
		return fmt.Errorf("%w: lt3.min_vwap_margin must not be negative", ErrInvalid)
	}
	for _, off := range l.PriceOffsets {
		if off < 0 {
			return fmt.Errorf("%w: lt3.price_offsets must not be negative", ErrInvalid)
		}
	}
	return nil
}

func (s SOR) validate() error {
	switch {
	case s.TradeUntilTick <= 0:
		return fmt.Errorf("%w: sor.trade_until_tick must be positive", ErrInvalid)
	case s.SlippageMargin < 0 || s.MinVWAPMargin < 0:
		return fmt.Errorf("%w: sor margins must not be negative", ErrInvalid)
	case len(s.Tickers) != 2:
		return fmt.Errorf("%w: sor.tickers needs exactly two instruments, got %d", ErrInvalid, len(s.Tickers))
	}
	return nil
}

func (v VaR) validate() error {
	seen := make(map[string]bool, len(v.Assets))
	for _, asset := range v.Assets {
		if !slices.Contains(portfolio.NewsAssets, asset) {
			return fmt.Errorf("%w: var.assets %q has no news targets, want one of %v", ErrInvalid, asset, portfolio.NewsAssets)
		}
		if seen[asset] {
			return fmt.Errorf("%w: var.assets lists %q twice", ErrInvalid, asset)
		}
		seen[asset] = true
	}
	n := len(v.Assets) + 1
	if len(v.Volatilities) != n {
		return fmt.Errorf("%w: var.volatilities needs %d entries (assets + cash), got %d", ErrInvalid, n, len(v.Volatilities))
	}
	if len(v.Correlations) != n {
		return fmt.Errorf("%w: var.correlations needs %d rows, got %d", ErrInvalid, n, len(v.Correlations))
	}
	for i, row := range v.Correlations {
		if len(row) != n {
			return fmt.Errorf("%w: var.correlations row %d needs %d columns, got %d", ErrInvalid, i, n, len(row))
		}
	}
	if v.Ceiling <= 0 || v.UnitBudget <= 0 {
		return fmt.Errorf("%w: var.ceiling and var.unit_budget must be positive", ErrInvalid)
	}
	if v.Confidence <= 0.5 || v.Confidence >= 1 {
		return fmt.Errorf("%w: var.confidence %.4f must be in (0.5, 1)", ErrInvalid, v.Confidence)
	}
	return nil
}

// Millis converts a millisecond knob into a duration.
func Millis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// Backoff turns the retry section into the backoff used by cyclic loops.
func (r Retry) Backoff() retry.Backoff {
	return retry.Backoff{
		Min:    Millis(r.MinDelayMs),
		Max:    Millis(r.MaxDelayMs),
		Factor: r.Factor,
		Jitter: r.Jitter,
	}
}
