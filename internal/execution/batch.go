package execution

import (
	"context"

	"github.com/shopspring/decimal"

	"ritbot-go/internal/exchange"
	"ritbot-go/internal/retry"
)

// Report separates what was asked for from what the exchange took.
type Report struct {
	Requested int
	Submitted int
	Attempts  int
	Failures  int
}

// BatchResult adds the realized price of MARKET batches to a Report.
type BatchResult struct {
	Report
	Filled int
	VWAP   float64
}

// Chunks splits qty into batch-sized pieces; the last piece carries the remainder.
func Chunks(qty, batch int) []int {
	if qty <= 0 {
		return nil
	}
	if batch <= 0 {
		batch = qty
	}
	out := make([]int, 0, (qty+batch-1)/batch)
	for remaining := qty; remaining > 0; {
		n := min(remaining, batch)
		out = append(out, n)
		remaining -= n
	}
	return out
}

// LimitPrice offsets ref in the direction that rests on the book: below for
// BUY, above for SELL, at cent precision.
func LimitPrice(ref, offset float64, action exchange.Side) float64 {
	p := decimal.NewFromFloat(ref)
	off := decimal.NewFromFloat(offset)
	if action == exchange.Buy {
		p = p.Sub(off)
	} else {
		p = p.Add(off)
	}
	return p.Round(2).InexactFloat64()
}

// SquareOffRandomized offloads qty in batches, each batch randomly a MARKET
// order or a LIMIT order offset from refPrice. A failed batch is retried at
// the same size; remaining only shrinks on accepted submissions. It returns
// only when everything was submitted or ctx ends.
func (e *Executor) SquareOffRandomized(ctx context.Context, ticker string, action exchange.Side, refPrice float64, qty, batch int) (Report, error) {
	rep := Report{Requested: qty}
	remaining := qty
	consecutive := 0
	for remaining > 0 {
		chunk := min(remaining, batchOr(batch, remaining))
		req := exchange.OrderRequest{Ticker: ticker, Type: exchange.Market, Quantity: chunk, Action: action}
		if off := e.pickOffset(); off != 0 {
			req.Type = exchange.Limit
			req.Price = LimitPrice(refPrice, off, action)
		}
		rep.Attempts++
		if _, err := e.Submit(ctx, req); err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			rep.Failures++
			consecutive++
			e.log.Error().Err(err).Str("ticker", ticker).Str("action", string(action)).Str("type", string(req.Type)).
				Int("qty", chunk).Float64("price", req.Price).Int("remaining", remaining).Msg("square-off batch failed")
			if err := retry.Sleep(ctx, retry.Wait(e.backoff, consecutive, err)); err != nil {
				return rep, err
			}
			continue
		}
		consecutive = 0
		remaining -= chunk
		rep.Submitted += chunk
	}
	e.log.Info().Str("ticker", ticker).Str("action", string(action)).Int("qty", qty).Int("failures", rep.Failures).Msg("square-off submitted")
	return rep, nil
}

// SubmitBatches places req.Quantity in plain batches of one type. For MARKET
// batches the fills are aggregated into an overall VWAP.
func (e *Executor) SubmitBatches(ctx context.Context, req exchange.OrderRequest, batch int) (BatchResult, error) {
	res := BatchResult{Report: Report{Requested: req.Quantity}}
	remaining := req.Quantity
	consecutive := 0
	var notional float64
	for remaining > 0 {
		chunk := min(remaining, batchOr(batch, remaining))
		part := req
		part.Quantity = chunk
		res.Attempts++
		order, err := e.Submit(ctx, part)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failures++
			consecutive++
			e.log.Error().Err(err).Str("ticker", req.Ticker).Str("action", string(req.Action)).Str("type", string(req.Type)).
				Int("qty", chunk).Int("remaining", remaining).Msg("batch failed")
			if err := retry.Sleep(ctx, retry.Wait(e.backoff, consecutive, err)); err != nil {
				return res, err
			}
			continue
		}
		consecutive = 0
		remaining -= chunk
		res.Submitted += chunk
		if req.Type == exchange.Market && order.VWAP != nil && order.QuantityFilled > 0 {
			notional += *order.VWAP * float64(order.QuantityFilled)
			res.Filled += order.QuantityFilled
		}
	}
	if res.Filled > 0 {
		res.VWAP = notional / float64(res.Filled)
	}
	return res, nil
}

func batchOr(batch, fallback int) int {
	if batch <= 0 {
		return fallback
	}
	return batch
}
