package execution_test

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ritbot-go/internal/exchange"
	"ritbot-go/internal/execution"
	"ritbot-go/internal/paper"
	"ritbot-go/internal/retry"
)

func newExecutor(x exchange.Gateway, opts ...execution.Option) *execution.Executor {
	base := []execution.Option{
		execution.WithPace(time.Millisecond),
		execution.WithBackoff(retry.Fixed(time.Millisecond)),
		execution.WithConfirm(3, time.Millisecond),
	}
	return execution.NewExecutor(x, zerolog.Nop(), append(base, opts...)...)
}

func newPaper() *paper.Exchange {
	x := paper.NewExchange(paper.NewAccount(1_000_000))
	x.AddSecurity("CRZY", 10)
	x.AddSecurity("TAME", 25)
	return x
}

func TestSubmitLogsOrder(t *testing.T) {
	var buf bytes.Buffer
	exec := execution.NewExecutor(newPaper(), zerolog.New(&buf), execution.WithPace(time.Millisecond))

	_, err := exec.Submit(context.Background(), exchange.OrderRequest{Ticker: "CRZY", Type: exchange.Market, Quantity: 10, Action: exchange.Buy})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "CRZY") {
		t.Fatalf("log does not contain ticker: %s", out)
	}
}

func TestChunks(t *testing.T) {
	for _, tc := range []struct{ qty, batch int }{{25000, 10000}, {10000, 10000}, {1, 5000}, {7, 3}, {12, 0}} {
		chunks := execution.Chunks(tc.qty, tc.batch)
		sum := 0
		for _, c := range chunks {
			require.Positive(t, c)
			if tc.batch > 0 {
				require.LessOrEqual(t, c, tc.batch)
			}
			sum += c
		}
		assert.Equal(t, tc.qty, sum, "qty=%d batch=%d", tc.qty, tc.batch)
	}
	assert.Equal(t, []int{10000, 10000, 5000}, execution.Chunks(25000, 10000))
	assert.Empty(t, execution.Chunks(0, 100))
}

func TestLimitPrice(t *testing.T) {
	assert.Equal(t, 9.95, execution.LimitPrice(10, 0.05, exchange.Buy))
	assert.Equal(t, 10.15, execution.LimitPrice(10, 0.15, exchange.Sell))
	assert.Equal(t, 24.8, execution.LimitPrice(24.999, 0.2, exchange.Buy))
}

func TestSquareOffRandomizedSubmitsEverything(t *testing.T) {
	x := newPaper()
	ledger := paper.NewLedger(0)
	exec := newExecutor(x, execution.WithRecorder(ledger), execution.WithRand(rand.NewSource(42)))

	rep, err := exec.SquareOffRandomized(context.Background(), "CRZY", exchange.Sell, 10, 25000, 10000)
	require.NoError(t, err)
	assert.Equal(t, 25000, rep.Submitted)
	assert.Equal(t, 3, rep.Attempts)
	assert.Zero(t, rep.Failures)

	totals := ledger.Totals()["CRZY"]
	assert.Equal(t, 25000, totals.Sold)
	for _, f := range ledger.Snapshot() {
		if f.Type == exchange.Limit {
			assert.GreaterOrEqual(t, f.Price, 10.05, "SELL limits rest above the reference")
		}
	}
}

func TestSquareOffRandomizedRetriesFailedBatch(t *testing.T) {
	x := newPaper()
	x.FailNext(paper.OpPost, 2)
	exec := newExecutor(x, execution.WithPriceOffsets([]float64{0}))

	rep, err := exec.SquareOffRandomized(context.Background(), "CRZY", exchange.Buy, 10, 15000, 10000)
	require.NoError(t, err)
	assert.Equal(t, rep.Requested, rep.Submitted)
	assert.Equal(t, 2, rep.Failures)
	assert.Equal(t, 4, rep.Attempts)
	assert.Equal(t, 15000, x.Account().Position("CRZY"))
}

type throttledExchange struct {
	*paper.Exchange
	limited int
	after   time.Duration
}

func (x *throttledExchange) PostOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	if x.limited > 0 {
		x.limited--
		return exchange.Order{}, &exchange.Error{Op: "post order", Status: 429, RetryAfter: x.after}
	}
	return x.Exchange.PostOrder(ctx, req)
}

func TestSubmitBatchesWaitsOutRateLimit(t *testing.T) {
	x := &throttledExchange{Exchange: newPaper(), limited: 1, after: 50 * time.Millisecond}
	exec := newExecutor(x)

	start := time.Now()
	res, err := exec.SubmitBatches(context.Background(), exchange.OrderRequest{Ticker: "CRZY", Type: exchange.Market, Quantity: 100, Action: exchange.Buy}, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failures)
	assert.Equal(t, 100, res.Submitted)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestSquareOffRandomizedStopsOnCancel(t *testing.T) {
	x := newPaper()
	x.FailNext(paper.OpPost, 1_000_000)
	exec := newExecutor(x)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	rep, err := exec.SquareOffRandomized(ctx, "CRZY", exchange.Sell, 10, 500, 100)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, rep.Submitted)
	assert.Positive(t, rep.Failures)
}

type driftingExchange struct {
	*paper.Exchange
	step float64
}

func (d *driftingExchange) PostOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	order, err := d.Exchange.PostOrder(ctx, req)
	if err == nil && order.VWAP != nil {
		d.SetLast(req.Ticker, *order.VWAP+d.step)
	}
	return order, err
}

func TestSubmitBatchesAggregatesVWAP(t *testing.T) {
	x := &driftingExchange{Exchange: newPaper(), step: 2}
	exec := newExecutor(x)

	res, err := exec.SubmitBatches(context.Background(), exchange.OrderRequest{Ticker: "CRZY", Type: exchange.Market, Quantity: 200, Action: exchange.Buy}, 100)
	require.NoError(t, err)
	assert.Equal(t, 200, res.Submitted)
	assert.Equal(t, 200, res.Filled)
	assert.InDelta(t, 11.0, res.VWAP, 1e-9)
}

func TestCancelAllSweepsUntilEmpty(t *testing.T) {
	ctx := context.Background()
	x := newPaper()
	var ids []int
	for i := 0; i < 3; i++ {
		o, err := x.PostOrder(ctx, exchange.OrderRequest{Ticker: "CRZY", Type: exchange.Limit, Quantity: 100, Action: exchange.Sell, Price: 10.1})
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}
	x.FailCancel(ids[1], 1)
	exec := newExecutor(x)

	n, err := exec.CancelAll(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, x.Calls(paper.OpOrders), "one pass per retry plus the empty confirmation")
	assert.Equal(t, 4, x.Calls(paper.OpCancel))

	open, err := x.Orders(ctx, exchange.StatusOpen)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestCancelAllFiltersTicker(t *testing.T) {
	ctx := context.Background()
	x := newPaper()
	for _, ticker := range []string{"CRZY", "TAME", "CRZY"} {
		_, err := x.PostOrder(ctx, exchange.OrderRequest{Ticker: ticker, Type: exchange.Limit, Quantity: 10, Action: exchange.Buy, Price: 5})
		require.NoError(t, err)
	}
	x.FailNext(paper.OpOrders, 1)
	exec := newExecutor(x)

	n, err := exec.CancelAll(ctx, "CRZY")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	open, _ := x.Orders(ctx, exchange.StatusOpen)
	require.Len(t, open, 1)
	assert.Equal(t, "TAME", open[0].Ticker)
}

func TestSquareOffTickerFlattens(t *testing.T) {
	x := newPaper()
	x.Account().SetPosition("CRZY", -25000, 10)
	x.FailNext(paper.OpSecurities, 1)
	exec := newExecutor(x)

	require.NoError(t, exec.SquareOffTicker(context.Background(), "CRZY", 10000))
	assert.Zero(t, x.Account().Position("CRZY"))
	orders := x.OrderLog()
	require.Len(t, orders, 3)
	for _, o := range orders {
		assert.Equal(t, exchange.Buy, o.Action)
		assert.Equal(t, exchange.Market, o.Type)
	}
}

func TestSquareOffAllSkipsTickers(t *testing.T) {
	x := newPaper()
	x.AddSecurity("CASH", 1)
	x.Account().SetPosition("CRZY", 300, 10)
	x.Account().SetPosition("TAME", -200, 25)
	x.Account().SetPosition("CASH", 5000, 1)
	exec := newExecutor(x)

	require.NoError(t, exec.SquareOffAll(context.Background(), 100, "CASH"))
	assert.Zero(t, x.Account().Position("CRZY"))
	assert.Zero(t, x.Account().Position("TAME"))
	assert.Equal(t, 5000, x.Account().Position("CASH"))
}

func TestConfirmTender(t *testing.T) {
	ctx := context.Background()
	x := newPaper()
	x.AddTender(exchange.Tender{ID: 9, Ticker: "CRZY", Action: exchange.Sell, Quantity: 3001, Price: 9.9})
	x.SettleAfter(1)
	exec := newExecutor(x)

	_, err := x.AcceptTender(ctx, 9, 9.9)
	require.NoError(t, err)
	pos, err := exec.ConfirmTender(ctx, "CRZY", 3001, 0)
	require.NoError(t, err)
	assert.Equal(t, -3001, pos)
}

func TestConfirmTenderGivesUp(t *testing.T) {
	x := newPaper()
	exec := newExecutor(x)

	_, err := exec.ConfirmTender(context.Background(), "CRZY", 1000, 0)
	require.True(t, errors.Is(err, execution.ErrTenderNotProcessed))
	assert.Equal(t, 3, x.Calls(paper.OpSecurities))
}
