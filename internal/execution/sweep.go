package execution

import (
	"context"
	"fmt"

	"ritbot-go/internal/exchange"
	"ritbot-go/internal/metrics"
	"ritbot-go/internal/retry"
)

// CancelAll cancels every OPEN order (only ticker's when ticker is set). It
// re-fetches the OPEN set after each pass and returns once a fresh fetch is
// empty; orders that fail to cancel are retried on the next pass.
func (e *Executor) CancelAll(ctx context.Context, ticker string) (int, error) {
	cancelled := 0
	for pass := 1; ; pass++ {
		var open []exchange.Order
		err := retry.Forever(ctx, e.backoff, func(ctx context.Context) error {
			orders, err := e.gw.Orders(ctx, exchange.StatusOpen)
			if err != nil {
				return err
			}
			open = filterTicker(orders, ticker)
			return nil
		}, func(attempt int, err error) {
			e.log.Warn().Err(err).Int("attempt", attempt).Msg("fetch open orders failed")
		})
		if err != nil {
			return cancelled, err
		}
		if len(open) == 0 {
			e.log.Info().Str("ticker", ticker).Int("cancelled", cancelled).Int("passes", pass).Msg("no open orders left")
			return cancelled, nil
		}

		for i, order := range open {
			if err := e.pace(ctx); err != nil {
				return cancelled, err
			}
			res, err := e.gw.CancelOrder(ctx, order.ID)
			if err == nil && !res.Success {
				err = fmt.Errorf("cancel order %d rejected: %s", order.ID, res.Description)
			}
			if err != nil {
				if ctx.Err() != nil {
					return cancelled, ctx.Err()
				}
				e.log.Warn().Err(err).Int("order_id", order.ID).Int("index", i).Int("of", len(open)).Msg("cancel failed, retrying next pass")
				continue
			}
			cancelled++
			metrics.CancelsTotal.Inc()
			e.log.Debug().Int("order_id", order.ID).Int("index", i).Int("of", len(open)).Msg("order cancelled")
		}
	}
}

func filterTicker(orders []exchange.Order, ticker string) []exchange.Order {
	if ticker == "" {
		return orders
	}
	out := orders[:0:0]
	for _, o := range orders {
		if o.Ticker == ticker {
			out = append(out, o)
		}
	}
	return out
}
