package execution

import (
	"context"
	"errors"

	"ritbot-go/internal/exchange"
	"ritbot-go/internal/retry"
)

// SquareOffTicker flattens one ticker with MARKET batches, re-reading the
// position after every submission until it is zero.
func (e *Executor) SquareOffTicker(ctx context.Context, ticker string, batch int) error {
	consecutive := 0
	for {
		var sec exchange.Security
		err := retry.Forever(ctx, e.backoff, func(ctx context.Context) error {
			var err error
			sec, err = exchange.SecurityFor(ctx, e.gw, ticker)
			return err
		}, func(attempt int, err error) {
			e.log.Warn().Err(err).Str("ticker", ticker).Int("attempt", attempt).Msg("fetch position failed")
		})
		if err != nil {
			return err
		}
		if sec.Position == 0 {
			e.log.Info().Str("ticker", ticker).Msg("ticker squared off")
			return nil
		}

		action := exchange.Sell
		if sec.Position < 0 {
			action = exchange.Buy
		}
		qty := min(abs(sec.Position), batchOr(batch, abs(sec.Position)))
		_, err = e.Submit(ctx, exchange.OrderRequest{Ticker: ticker, Type: exchange.Market, Quantity: qty, Action: action})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			consecutive++
			e.log.Error().Err(err).Str("ticker", ticker).Str("action", string(action)).Int("qty", qty).
				Int("position", sec.Position).Msg("square-off order failed")
			if err := retry.Sleep(ctx, retry.Wait(e.backoff, consecutive, err)); err != nil {
				return err
			}
			continue
		}
		consecutive = 0
	}
}

// SquareOffAll flattens every non-zero position except the skipped tickers.
func (e *Executor) SquareOffAll(ctx context.Context, batch int, skip ...string) error {
	var rows []exchange.Security
	err := retry.Forever(ctx, e.backoff, func(ctx context.Context) error {
		var err error
		rows, err = e.gw.Securities(ctx, "")
		return err
	}, func(attempt int, err error) {
		e.log.Warn().Err(err).Int("attempt", attempt).Msg("fetch securities failed")
	})
	if err != nil {
		return err
	}

	skipped := make(map[string]bool, len(skip))
	for _, t := range skip {
		skipped[t] = true
	}
	var errs []error
	for _, sec := range rows {
		if sec.Position == 0 || skipped[sec.Ticker] {
			continue
		}
		if err := e.SquareOffTicker(ctx, sec.Ticker, batch); err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}
	if len(errs) == 0 {
		e.log.Info().Msg("all tickers squared off")
	}
	return errors.Join(errs...)
}

// ConfirmTender polls ticker's position until it has moved by at least half
// of qty from before. It gives up with ErrTenderNotProcessed after the
// configured attempts; callers must not assume a full fill either way.
func (e *Executor) ConfirmTender(ctx context.Context, ticker string, qty, before int) (int, error) {
	for attempt := 1; attempt <= e.confirmAttempts; attempt++ {
		sec, err := exchange.SecurityFor(ctx, e.gw, ticker)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			e.log.Warn().Err(err).Str("ticker", ticker).Int("attempt", attempt).Msg("confirm tender: position read failed")
		default:
			delta := abs(sec.Position - before)
			e.log.Debug().Str("ticker", ticker).Int("qty", qty).Int("before", before).Int("now", sec.Position).Int("delta", delta).Msg("checking tender")
			if 2*delta >= abs(qty) {
				return sec.Position, nil
			}
		}
		if attempt < e.confirmAttempts {
			if err := retry.Sleep(ctx, e.confirmDelay); err != nil {
				return 0, err
			}
		}
	}
	return 0, ErrTenderNotProcessed
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
