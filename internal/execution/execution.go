// Package execution handles order lifecycle and interaction with the exchange.
package execution

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"ritbot-go/internal/exchange"
	"ritbot-go/internal/metrics"
	"ritbot-go/internal/retry"
)

// ErrTenderNotProcessed is returned when an accepted tender never showed up in the position.
var ErrTenderNotProcessed = errors.New("tender not processed")

const (
	defaultPace            = 100 * time.Millisecond
	defaultConfirmAttempts = 10
)

// DefaultPriceOffsets are the limit offsets a randomized square-off picks from; 0 means MARKET.
var DefaultPriceOffsets = []float64{0, 0.05, 0.1, 0.15, 0.2}

// Fill is one order the exchange accepted.
type Fill struct {
	OrderID int                `json:"order_id"`
	Ticker  string             `json:"ticker"`
	Side    exchange.Side      `json:"side"`
	Type    exchange.OrderType `json:"type"`
	Qty     int                `json:"qty"`
	Price   float64            `json:"price,omitempty"`
	Filled  int                `json:"filled"`
	VWAP    float64            `json:"vwap,omitempty"`
	Status  string             `json:"status"`
	Ts      time.Time          `json:"ts"`
}

// FillRecorder captures fills for later inspection.
type FillRecorder interface {
	Record(Fill)
}

// Executor submits orders against a gateway, paced by a shared rate limiter.
// It is safe for concurrent use by detached tasks.
type Executor struct {
	gw       exchange.Gateway
	log      zerolog.Logger
	pacer    *rate.Limiter
	backoff  retry.Backoff
	offsets  []float64
	recorder FillRecorder

	confirmAttempts int
	confirmDelay    time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures Executor construction parameters.
type Option func(*Executor)

// WithPace spaces consecutive exchange mutations by at least d.
func WithPace(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.pacer = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithBackoff sets the wait applied after failed submissions.
func WithBackoff(b retry.Backoff) Option {
	return func(e *Executor) { e.backoff = b }
}

// WithPriceOffsets overrides the randomized limit offsets.
func WithPriceOffsets(offsets []float64) Option {
	return func(e *Executor) {
		if len(offsets) > 0 {
			e.offsets = append([]float64(nil), offsets...)
		}
	}
}

// WithRecorder sends every accepted order to r.
func WithRecorder(r FillRecorder) Option {
	return func(e *Executor) { e.recorder = r }
}

// WithRand makes the randomized square-off deterministic.
func WithRand(src rand.Source) Option {
	return func(e *Executor) { e.rng = rand.New(src) }
}

// WithConfirm bounds tender-fill confirmation polling.
func WithConfirm(attempts int, delay time.Duration) Option {
	return func(e *Executor) {
		if attempts > 0 {
			e.confirmAttempts = attempts
		}
		if delay > 0 {
			e.confirmDelay = delay
		}
	}
}

// NewExecutor wires a gateway and logger into an executor.
func NewExecutor(gw exchange.Gateway, log zerolog.Logger, opts ...Option) *Executor {
	e := &Executor{
		gw:              gw,
		log:             log,
		pacer:           rate.NewLimiter(rate.Every(defaultPace), 1),
		backoff:         retry.Fixed(defaultPace),
		offsets:         DefaultPriceOffsets,
		confirmAttempts: defaultConfirmAttempts,
		confirmDelay:    defaultPace,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Gateway exposes the underlying exchange for read-only callers.
func (e *Executor) Gateway() exchange.Gateway { return e.gw }

// Submit places a single order, recording and counting it.
func (e *Executor) Submit(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	if err := e.pace(ctx); err != nil {
		return exchange.Order{}, err
	}
	order, err := e.gw.PostOrder(ctx, req)
	if err != nil {
		metrics.OrderFailuresTotal.WithLabelValues(req.Ticker, string(req.Action)).Inc()
		return exchange.Order{}, err
	}
	metrics.OrdersTotal.WithLabelValues(req.Ticker, string(req.Action), string(req.Type)).Inc()
	e.record(req, order)
	e.log.Info().Str("ticker", req.Ticker).Str("action", string(req.Action)).Str("type", string(req.Type)).
		Int("qty", req.Quantity).Float64("price", req.Price).Int("order_id", order.ID).Msg("order placed")
	return order, nil
}

func (e *Executor) record(req exchange.OrderRequest, order exchange.Order) {
	if e.recorder == nil {
		return
	}
	fill := Fill{
		OrderID: order.ID,
		Ticker:  req.Ticker,
		Side:    req.Action,
		Type:    req.Type,
		Qty:     req.Quantity,
		Filled:  order.QuantityFilled,
		Status:  string(order.Status),
		Ts:      time.Now().UTC(),
	}
	if req.Type == exchange.Limit {
		fill.Price = req.Price
	}
	if order.VWAP != nil {
		fill.VWAP = *order.VWAP
	}
	e.recorder.Record(fill)
}

// pace blocks until the next exchange mutation is allowed. The limiter
// refuses early when ctx's deadline is sooner than the next slot; that is
// treated as running into the deadline.
func (e *Executor) pace(ctx context.Context) error {
	if err := e.pacer.Wait(ctx); err != nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (e *Executor) pickOffset() float64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.offsets[e.rng.Intn(len(e.offsets))]
}
