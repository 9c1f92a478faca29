// Package paper provides an in-memory exchange and account used for dry runs
// and tests. It implements exchange.Gateway with immediate MARKET fills at
// the last price; LIMIT orders rest until cancelled.
package paper

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"ritbot-go/internal/exchange"
)

// Operation names accepted by FailNext and Calls.
const (
	OpCase       = "case"
	OpTrader     = "trader"
	OpSecurities = "securities"
	OpBook       = "book"
	OpTenders    = "tenders"
	OpAccept     = "accept"
	OpDecline    = "decline"
	OpOrders     = "orders"
	OpPost       = "post"
	OpCancel     = "cancel"
	OpNews       = "news"
)

type pendingTender struct {
	tender exchange.Tender
	price  float64
	polls  int
}

// Exchange is a scripted, goroutine-safe stand-in for the case exchange.
type Exchange struct {
	mu sync.Mutex

	session exchange.Session
	endTick int
	trader  exchange.Trader
	account *Account

	tickers []string
	last    map[string]float64
	volume  map[string]int
	books   map[string]exchange.Book

	tenders   []exchange.Tender
	scheduled []exchange.Tender
	pending   []pendingTender
	settle    int
	accepted  []int
	declined  []int

	news          []exchange.News
	scheduledNews []exchange.News

	orders []*exchange.Order
	nextID int

	faults       map[string]int
	cancelFaults map[int]int
	calls        map[string]int
}

// NewExchange returns an ACTIVE session at tick 0 backed by account.
func NewExchange(account *Account) *Exchange {
	if account == nil {
		account = NewAccount(0)
	}
	return &Exchange{
		session:      exchange.Session{Period: 1, Status: exchange.CaseActive},
		trader:       exchange.Trader{ID: "paper", FirstName: "Paper", LastName: "Trader"},
		account:      account,
		last:         make(map[string]float64),
		volume:       make(map[string]int),
		books:        make(map[string]exchange.Book),
		faults:       make(map[string]int),
		cancelFaults: make(map[int]int),
		calls:        make(map[string]int),
	}
}

// Account exposes the backing account.
func (x *Exchange) Account() *Account { return x.account }

// SetSession replaces the session state.
func (x *Exchange) SetSession(s exchange.Session) {
	x.mu.Lock()
	x.session = s
	x.mu.Unlock()
}

// SetEndTick stops the session once Advance moves past tick.
func (x *Exchange) SetEndTick(tick int) {
	x.mu.Lock()
	x.endTick = tick
	x.mu.Unlock()
}

// AddSecurity lists ticker with a last price; listing order is kept.
func (x *Exchange) AddSecurity(ticker string, last float64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.last[ticker]; !ok {
		x.tickers = append(x.tickers, ticker)
	}
	x.last[ticker] = last
}

// SetLast moves the last traded price.
func (x *Exchange) SetLast(ticker string, last float64) { x.AddSecurity(ticker, last) }

// SetVolume overrides the cumulative traded volume of ticker.
func (x *Exchange) SetVolume(ticker string, volume int) {
	x.mu.Lock()
	x.volume[ticker] = volume
	x.mu.Unlock()
}

// SetBook replaces the book of ticker.
func (x *Exchange) SetBook(ticker string, book exchange.Book) {
	x.mu.Lock()
	x.books[ticker] = book
	x.mu.Unlock()
}

// AddTender offers t immediately when its Tick has been reached, otherwise
// when Advance gets there.
func (x *Exchange) AddTender(t exchange.Tender) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if t.Tick <= x.session.Tick {
		x.tenders = append(x.tenders, t)
		return
	}
	x.scheduled = append(x.scheduled, t)
}

// AddNews publishes n at its tick, newest first.
func (x *Exchange) AddNews(n exchange.News) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if n.Tick <= x.session.Tick {
		x.news = append([]exchange.News{n}, x.news...)
		return
	}
	x.scheduledNews = append(x.scheduledNews, n)
}

// SettleAfter delays accepted tenders until n more position reads have happened.
func (x *Exchange) SettleAfter(n int) {
	x.mu.Lock()
	x.settle = n
	x.mu.Unlock()
}

// FailNext makes the next n calls of op return a transient error.
func (x *Exchange) FailNext(op string, n int) {
	x.mu.Lock()
	x.faults[op] += n
	x.mu.Unlock()
}

// FailCancel makes the next n cancellations of order id fail.
func (x *Exchange) FailCancel(id, n int) {
	x.mu.Lock()
	x.cancelFaults[id] += n
	x.mu.Unlock()
}

// Calls reports how many times op was invoked, failures included.
func (x *Exchange) Calls(op string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.calls[op]
}

// Accepted lists accepted tender ids in order.
func (x *Exchange) Accepted() []int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]int(nil), x.accepted...)
}

// Declined lists declined tender ids in order.
func (x *Exchange) Declined() []int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]int(nil), x.declined...)
}

// OrderLog returns a copy of every order ever accepted.
func (x *Exchange) OrderLog() []exchange.Order {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]exchange.Order, 0, len(x.orders))
	for _, o := range x.orders {
		out = append(out, *o)
	}
	return out
}

// Advance moves the clock one tick, releasing scheduled tenders and news and
// expiring stale tenders. Past the end tick the session stops.
func (x *Exchange) Advance() exchange.Session {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.session.Status == exchange.CaseStopped {
		return x.session
	}
	x.session.Tick++
	if x.endTick > 0 && x.session.Tick > x.endTick {
		x.session.Status = exchange.CaseStopped
	}

	var keep []exchange.Tender
	for _, t := range x.scheduled {
		if t.Tick <= x.session.Tick {
			x.tenders = append(x.tenders, t)
		} else {
			keep = append(keep, t)
		}
	}
	x.scheduled = keep

	live := x.tenders[:0]
	for _, t := range x.tenders {
		if t.Expires == 0 || t.Expires >= x.session.Tick {
			live = append(live, t)
		}
	}
	x.tenders = live

	var later []exchange.News
	for _, n := range x.scheduledNews {
		if n.Tick <= x.session.Tick {
			x.news = append([]exchange.News{n}, x.news...)
		} else {
			later = append(later, n)
		}
	}
	x.scheduledNews = later
	return x.session
}

// Run advances the clock every interval until ctx ends or the session stops.
func (x *Exchange) Run(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s := x.Advance(); s.Status == exchange.CaseStopped {
				return nil
			}
		}
	}
}

// enter counts the call and consumes an injected fault. Callers hold mu.
func (x *Exchange) enter(op string) error {
	x.calls[op]++
	if x.faults[op] > 0 {
		x.faults[op]--
		return &exchange.Error{Op: op, Status: http.StatusServiceUnavailable, Body: "injected fault"}
	}
	return nil
}

func (x *Exchange) Case(ctx context.Context) (exchange.Session, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.enter(OpCase); err != nil {
		return exchange.Session{}, err
	}
	return x.session, ctx.Err()
}

func (x *Exchange) Trader(ctx context.Context) (exchange.Trader, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.enter(OpTrader); err != nil {
		return exchange.Trader{}, err
	}
	tr := x.trader
	tr.NLV = x.account.Snapshot(x.last).Equity
	return tr, ctx.Err()
}

func (x *Exchange) Securities(ctx context.Context, ticker string) ([]exchange.Security, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.enter(OpSecurities); err != nil {
		return nil, err
	}
	x.settlePending()
	var rows []exchange.Security
	for _, t := range x.tickers {
		if ticker != "" && t != ticker {
			continue
		}
		rows = append(rows, exchange.Security{
			Ticker:   t,
			Position: x.account.Position(t),
			Last:     x.last[t],
			Volume:   x.volume[t],
		})
	}
	return rows, ctx.Err()
}

func (x *Exchange) settlePending() {
	keep := x.pending[:0]
	for _, p := range x.pending {
		if p.polls > 0 {
			p.polls--
			keep = append(keep, p)
			continue
		}
		_ = x.account.Fill(p.tender.Ticker, p.tender.Action, p.tender.Quantity, p.price)
	}
	x.pending = keep
}

func (x *Exchange) Book(ctx context.Context, ticker string, limit int) (exchange.Book, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.enter(OpBook); err != nil {
		return exchange.Book{}, err
	}
	book := x.books[ticker]
	out := exchange.Book{Bids: truncate(book.Bids, limit), Asks: truncate(book.Asks, limit)}
	return out, ctx.Err()
}

func truncate(levels []exchange.Level, limit int) []exchange.Level {
	if limit > 0 && len(levels) > limit {
		levels = levels[:limit]
	}
	return append([]exchange.Level(nil), levels...)
}

func (x *Exchange) Tenders(ctx context.Context) ([]exchange.Tender, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.enter(OpTenders); err != nil {
		return nil, err
	}
	return append([]exchange.Tender(nil), x.tenders...), ctx.Err()
}

func (x *Exchange) takeTender(id int) (exchange.Tender, bool) {
	for i, t := range x.tenders {
		if t.ID == id {
			x.tenders = append(x.tenders[:i], x.tenders[i+1:]...)
			return t, true
		}
	}
	return exchange.Tender{}, false
}

func (x *Exchange) AcceptTender(ctx context.Context, id int, price float64) (exchange.Result, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.enter(OpAccept); err != nil {
		return exchange.Result{}, err
	}
	t, ok := x.takeTender(id)
	if !ok {
		return exchange.Result{}, &exchange.Error{Op: OpAccept, Status: http.StatusNotFound, Body: fmt.Sprintf("tender %d not found", id)}
	}
	if price <= 0 {
		price = t.Price
	}
	x.accepted = append(x.accepted, id)
	if x.settle > 0 {
		x.pending = append(x.pending, pendingTender{tender: t, price: price, polls: x.settle})
	} else if err := x.account.Fill(t.Ticker, t.Action, t.Quantity, price); err != nil {
		return exchange.Result{}, &exchange.Error{Op: OpAccept, Status: http.StatusBadRequest, Err: err}
	}
	return exchange.Result{Success: true}, ctx.Err()
}

func (x *Exchange) DeclineTender(ctx context.Context, id int) (exchange.Result, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.enter(OpDecline); err != nil {
		return exchange.Result{}, err
	}
	if _, ok := x.takeTender(id); !ok {
		return exchange.Result{}, &exchange.Error{Op: OpDecline, Status: http.StatusNotFound, Body: fmt.Sprintf("tender %d not found", id)}
	}
	x.declined = append(x.declined, id)
	return exchange.Result{Success: true}, ctx.Err()
}

func (x *Exchange) Orders(ctx context.Context, status exchange.OrderStatus) ([]exchange.Order, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.enter(OpOrders); err != nil {
		return nil, err
	}
	var out []exchange.Order
	for _, o := range x.orders {
		if status == "" || o.Status == status {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, ctx.Err()
}

func (x *Exchange) PostOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.enter(OpPost); err != nil {
		return exchange.Order{}, err
	}
	last, listed := x.last[req.Ticker]
	switch {
	case !listed:
		return exchange.Order{}, &exchange.Error{Op: OpPost, Status: http.StatusBadRequest, Body: "unknown ticker " + req.Ticker}
	case req.Quantity <= 0 || !req.Action.Valid():
		return exchange.Order{}, &exchange.Error{Op: OpPost, Status: http.StatusBadRequest, Body: "invalid order"}
	case req.Type == exchange.Limit && req.Price <= 0:
		return exchange.Order{}, &exchange.Error{Op: OpPost, Status: http.StatusBadRequest, Body: "limit order needs a price"}
	}

	x.nextID++
	order := &exchange.Order{
		ID:       x.nextID,
		Ticker:   req.Ticker,
		Type:     req.Type,
		Quantity: req.Quantity,
		Action:   req.Action,
		Status:   exchange.StatusOpen,
	}
	if req.Type == exchange.Limit {
		price := req.Price
		order.Price = &price
	} else {
		if err := x.account.Fill(req.Ticker, req.Action, req.Quantity, last); err != nil {
			return exchange.Order{}, &exchange.Error{Op: OpPost, Status: http.StatusBadRequest, Err: err}
		}
		vwap := last
		order.VWAP = &vwap
		order.QuantityFilled = req.Quantity
		order.Status = exchange.StatusTransacted
		x.volume[req.Ticker] += req.Quantity
	}
	x.orders = append(x.orders, order)
	return *order, ctx.Err()
}

func (x *Exchange) CancelOrder(ctx context.Context, id int) (exchange.Result, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.enter(OpCancel); err != nil {
		return exchange.Result{}, err
	}
	if x.cancelFaults[id] > 0 {
		x.cancelFaults[id]--
		return exchange.Result{}, &exchange.Error{Op: OpCancel, Status: http.StatusServiceUnavailable, Body: fmt.Sprintf("order %d busy", id)}
	}
	for _, o := range x.orders {
		if o.ID != id {
			continue
		}
		if o.Status != exchange.StatusOpen {
			return exchange.Result{Success: false, Description: "order not open"}, nil
		}
		o.Status = exchange.StatusCancelled
		return exchange.Result{Success: true}, ctx.Err()
	}
	return exchange.Result{}, &exchange.Error{Op: OpCancel, Status: http.StatusNotFound, Body: fmt.Sprintf("order %d not found", id)}
}

func (x *Exchange) News(ctx context.Context, limit int) ([]exchange.News, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.enter(OpNews); err != nil {
		return nil, err
	}
	news := x.news
	if limit > 0 && len(news) > limit {
		news = news[:limit]
	}
	return append([]exchange.News(nil), news...), ctx.Err()
}

var _ exchange.Gateway = (*Exchange)(nil)
