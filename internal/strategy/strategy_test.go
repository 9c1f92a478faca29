package strategy

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ritbot-go/internal/config"
	"ritbot-go/internal/exchange"
	"ritbot-go/internal/execution"
	"ritbot-go/internal/paper"
	"ritbot-go/internal/retry"
	"ritbot-go/internal/session"
)

func testLT3Config() config.LT3 {
	return config.LT3{
		TradeUntilTick:     280,
		MarketDepth:        20,
		MinVWAPMargin:      0.05,
		NetLimit:           100000,
		GrossLimit:         250000,
		BatchSize:          500,
		SquareOffBatchSize: 1000,
		PollIntervalMs:     1,
	}
}

func newLT3Exchange() *paper.Exchange {
	x := paper.NewExchange(paper.NewAccount(1_000_000))
	x.AddSecurity("CRZY", 9.9)
	x.AddSecurity("TAME", 25)
	x.SetBook("CRZY", exchange.Book{
		Bids: []exchange.Level{{Price: 9.85, Quantity: 600}, {Price: 9.75, Quantity: 400}},
		Asks: []exchange.Level{{Price: 9.95, Quantity: 800}, {Price: 10.05, Quantity: 800}},
	})
	return x
}

func newTestExecutor(x exchange.Gateway, opts ...execution.Option) *execution.Executor {
	base := []execution.Option{
		execution.WithPace(time.Millisecond),
		execution.WithBackoff(retry.Fixed(time.Millisecond)),
		execution.WithConfirm(5, time.Millisecond),
		execution.WithRand(rand.NewSource(7)),
	}
	return execution.NewExecutor(x, zerolog.Nop(), append(base, opts...)...)
}

func TestBuild(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	exec := newTestExecutor(paper.NewExchange(nil))
	for mode, want := range map[string]string{"lt3": "lt3", " SOR ": "sor", "var": "var", "value_at_risk": "var"} {
		r, err := Build(mode, Deps{Config: cfg, Executor: exec, Log: zerolog.Nop()})
		if err != nil {
			t.Fatalf("Build(%q) error: %v", mode, err)
		}
		if r.Name() != want {
			t.Fatalf("Build(%q) = %s, want %s", mode, r.Name(), want)
		}
	}
	if _, err := Build("obi", Deps{Config: cfg, Executor: exec}); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown mode, got %v", err)
	}
	if _, err := Build("lt3", Deps{}); err == nil {
		t.Fatalf("expected error without dependencies")
	}
}

func TestLT3AcceptsAndUnwindsFavorableTender(t *testing.T) {
	ctx := context.Background()
	x := newLT3Exchange()
	x.AddTender(exchange.Tender{ID: 1, Ticker: "CRZY", Action: exchange.Sell, Quantity: 1000, Price: 10})
	ledger := paper.NewLedger(0)
	exec := newTestExecutor(x, execution.WithRecorder(ledger), execution.WithPriceOffsets([]float64{0}))
	s := NewLT3(testLT3Config(), exec, zerolog.Nop())

	if err := s.Cycle(ctx); err != nil {
		t.Fatalf("Cycle error: %v", err)
	}
	s.Wait()

	if got := x.Accepted(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected tender 1 accepted, got %v", got)
	}
	if got := ledger.Totals()["CRZY"]; got.Bought != 1000 || got.Orders != 2 {
		t.Fatalf("expected 1000 bought back in 2 batches, got %+v", got)
	}
	if pos := x.Account().Position("CRZY"); pos != 0 {
		t.Fatalf("expected flat after square-off, got %d", pos)
	}
}

func TestLT3SkipsUnfavorableTender(t *testing.T) {
	x := newLT3Exchange()
	// bids cover 1000 at VWAP 9.81; 9.85 - 0.05 does not clear it
	x.AddTender(exchange.Tender{ID: 2, Ticker: "CRZY", Action: exchange.Sell, Quantity: 1000, Price: 9.85})
	s := NewLT3(testLT3Config(), newTestExecutor(x), zerolog.Nop())

	if err := s.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle error: %v", err)
	}
	if len(x.Accepted()) != 0 || x.Calls(paper.OpAccept) != 0 {
		t.Fatalf("unfavorable tender must not be accepted")
	}
}

func TestLT3RiskLimitOverridesSignal(t *testing.T) {
	x := newLT3Exchange()
	x.Account().SetPosition("TAME", -800, 25)
	x.AddTender(exchange.Tender{ID: 3, Ticker: "CRZY", Action: exchange.Sell, Quantity: 1000, Price: 10})
	cfg := testLT3Config()
	cfg.NetLimit = 1500
	s := NewLT3(cfg, newTestExecutor(x), zerolog.Nop())

	if err := s.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle error: %v", err)
	}
	if x.Calls(paper.OpAccept) != 0 {
		t.Fatalf("tender breaching net limit must not be accepted")
	}
}

// partialTenders books only part of each accepted tender into the position.
type partialTenders struct {
	*paper.Exchange
	booked int
}

func (p *partialTenders) AcceptTender(ctx context.Context, id int, price float64) (exchange.Result, error) {
	res, err := p.Exchange.AcceptTender(ctx, id, price)
	if err == nil && res.Success {
		p.Account().SetPosition("CRZY", -p.booked, price)
	}
	return res, err
}

func TestLT3UnwindsOnlyConfirmedFill(t *testing.T) {
	x := &partialTenders{Exchange: newLT3Exchange(), booked: 600}
	x.AddTender(exchange.Tender{ID: 5, Ticker: "CRZY", Action: exchange.Sell, Quantity: 1000, Price: 10})
	ledger := paper.NewLedger(0)
	exec := newTestExecutor(x, execution.WithRecorder(ledger), execution.WithPriceOffsets([]float64{0}))
	s := NewLT3(testLT3Config(), exec, zerolog.Nop())

	if err := s.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle error: %v", err)
	}
	s.Wait()

	if got := ledger.Totals()["CRZY"]; got.Bought != 600 || got.Orders != 2 {
		t.Fatalf("expected 600 bought back in 2 batches, got %+v", got)
	}
	if pos := x.Account().Position("CRZY"); pos != 0 {
		t.Fatalf("expected flat after unwinding the confirmed fill, got %d", pos)
	}
}

func TestLT3UnprocessedTenderIsNotUnwound(t *testing.T) {
	x := newLT3Exchange()
	x.SettleAfter(100)
	x.AddTender(exchange.Tender{ID: 4, Ticker: "CRZY", Action: exchange.Sell, Quantity: 1000, Price: 10})
	s := NewLT3(testLT3Config(), newTestExecutor(x), zerolog.Nop())

	if err := s.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle error: %v", err)
	}
	s.Wait()
	if len(x.OrderLog()) != 0 {
		t.Fatalf("expected no square-off orders, got %d", len(x.OrderLog()))
	}
}

func TestLT3EndOfWindowRunsOncePerSession(t *testing.T) {
	ctx := context.Background()
	x := newLT3Exchange()
	x.Account().SetPosition("CRZY", -2500, 10)
	x.Account().SetPosition("TAME", 700, 25)
	if _, err := x.PostOrder(ctx, exchange.OrderRequest{Ticker: "CRZY", Type: exchange.Limit, Quantity: 100, Action: exchange.Buy, Price: 9.5}); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	x.SetSession(exchange.Session{Tick: 281, Period: 1, Status: exchange.CaseActive})
	x.AddTender(exchange.Tender{ID: 5, Ticker: "CRZY", Action: exchange.Sell, Quantity: 1000, Price: 10, Tick: 281})
	s := NewLT3(testLT3Config(), newTestExecutor(x), zerolog.Nop())

	if err := s.Cycle(ctx); err != nil {
		t.Fatalf("Cycle error: %v", err)
	}
	s.Wait()
	if open, _ := x.Orders(ctx, exchange.StatusOpen); len(open) != 0 {
		t.Fatalf("expected open orders cancelled, got %d", len(open))
	}
	if x.Account().Position("CRZY") != 0 || x.Account().Position("TAME") != 0 {
		t.Fatalf("expected every position flattened")
	}
	cancels := x.Calls(paper.OpCancel)

	x.Advance()
	if err := s.Cycle(ctx); err != nil {
		t.Fatalf("second Cycle error: %v", err)
	}
	s.Wait()
	if x.Calls(paper.OpCancel) != cancels || x.Calls(paper.OpTenders) != 0 {
		t.Fatalf("past-window cycle must neither sweep again nor look at tenders")
	}

	x.SetSession(exchange.Session{Tick: 0, Period: 2, Status: exchange.CaseActive})
	if err := s.Cycle(ctx); err != nil {
		t.Fatalf("new session Cycle error: %v", err)
	}
	s.Wait()
	if x.Calls(paper.OpTenders) != 1 {
		t.Fatalf("expected tenders to be read again after reset")
	}
}

func TestLT3RunSurvivesFailures(t *testing.T) {
	x := newLT3Exchange()
	x.FailNext(paper.OpCase, 3)
	x.FailNext(paper.OpTenders, 2)
	s := NewLT3(testLT3Config(), newTestExecutor(x), zerolog.Nop(), WithBackoff(retry.Fixed(time.Millisecond)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for x.Calls(paper.OpTenders) < 4 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if x.Calls(paper.OpTenders) < 4 {
		t.Fatalf("loop stopped polling after failures")
	}
}

func TestSORAcceptsAndRoutes(t *testing.T) {
	x := paper.NewExchange(paper.NewAccount(0))
	x.AddSecurity("THOR_A", 10.2)
	x.AddSecurity("THOR_M", 10.1)
	x.SetVolume("THOR_A", 1000)
	x.SetVolume("THOR_M", 1000)
	x.AddTender(exchange.Tender{ID: 1, Ticker: "THOR_A", Action: exchange.Buy, Quantity: 1500, Price: 9.9})
	cfg := config.SOR{
		TradeUntilTick: 280,
		MinVWAPMargin:  0.02,
		SlippageMargin: 0.02,
		BlockQuantity:  1000,
		Tickers:        []string{"THOR_A", "THOR_M"},
		NearCloseTicks: 5,
		RouteEveryMs:   1,
		PollIntervalMs: 1,
	}
	shared := session.NewShared()
	s := NewSOR(cfg, newTestExecutor(x), shared, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for (len(x.Accepted()) == 0 || x.Account().Position("THOR_A") != 0) && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(x.Accepted()) != 1 {
		t.Fatalf("expected tender accepted, got %v", x.Accepted())
	}
	if got := shared.Snapshot(); got.LastTenderPrice != 9.9 || got.Cutoff != 280 {
		t.Fatalf("unexpected shared snapshot %+v", got)
	}
	if pos := x.Account().Position("THOR_A") + x.Account().Position("THOR_M"); pos != 0 {
		t.Fatalf("expected router to unwind, position %d", pos)
	}
}

func TestVaRRunEntersOnNews(t *testing.T) {
	x := paper.NewExchange(paper.NewAccount(0))
	for ticker, last := range map[string]float64{"US": 20, "BRIC": 30, "BOND": 100, "CASH": 1} {
		x.AddSecurity(ticker, last)
	}
	x.Account().SetPosition("CASH", 1_000_000, 1)
	x.AddNews(exchange.News{ID: 1, Body: "Case briefing."})
	x.AddNews(exchange.News{ID: 2, Body: "tick 5: US = $20.00, BRIC = $33.00, BOND 100"})

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.VaR.Volatilities = []float64{0.0131, 0.0161, 0.0055, 0}
	cfg.VaR.Correlations = [][]float64{{1, 0.48, 0.068, 0}, {0.48, 1, 0.005, 0}, {0.068, 0.005, 1, 0}, {0, 0, 0, 1}}
	cfg.VaR.Ceiling = 1e9
	cfg.VaR.UnitBudget = 20000
	cfg.VaR.CycleMs = 1
	r, err := Build(config.ModeVaR, Deps{Config: cfg, Executor: newTestExecutor(x), Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	deadline := time.Now().Add(2 * time.Second)
	for x.Account().Position("BRIC") == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	<-done
	if x.Account().Position("BRIC") <= 0 {
		t.Fatalf("expected a long BRIC entry, got %d", x.Account().Position("BRIC"))
	}
}
