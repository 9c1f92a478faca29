package paper

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"ritbot-go/internal/exchange"
)

// NewHandler serves x over the same REST surface the exchange client speaks,
// so the real client can be driven end to end. Empty credentials disable auth.
func NewHandler(x *Exchange, username, password string) http.Handler {
	h := &restHandler{x: x}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/case", h.caseStatus)
	mux.HandleFunc("GET /v1/trader", h.trader)
	mux.HandleFunc("GET /v1/securities", h.securities)
	mux.HandleFunc("GET /v1/securities/book", h.book)
	mux.HandleFunc("GET /v1/tenders", h.tenders)
	mux.HandleFunc("POST /v1/tenders/{id}", h.acceptTender)
	mux.HandleFunc("DELETE /v1/tenders/{id}", h.declineTender)
	mux.HandleFunc("GET /v1/orders", h.orders)
	mux.HandleFunc("POST /v1/orders", h.postOrder)
	mux.HandleFunc("DELETE /v1/orders/{id}", h.cancelOrder)
	mux.HandleFunc("GET /v1/news", h.news)
	if username == "" && password == "" {
		return mux
	}
	return basicAuth(mux, username, password)
}

func basicAuth(next http.Handler, username, password string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(username)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(password)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type restHandler struct {
	x *Exchange
}

func (h *restHandler) caseStatus(w http.ResponseWriter, r *http.Request) {
	s, err := h.x.Case(r.Context())
	reply(w, s, err)
}

func (h *restHandler) trader(w http.ResponseWriter, r *http.Request) {
	tr, err := h.x.Trader(r.Context())
	reply(w, tr, err)
}

func (h *restHandler) securities(w http.ResponseWriter, r *http.Request) {
	rows, err := h.x.Securities(r.Context(), r.URL.Query().Get("ticker"))
	reply(w, nonNil(rows), err)
}

func (h *restHandler) book(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	b, err := h.x.Book(r.Context(), q.Get("ticker"), limit)
	if b.Bids == nil {
		b.Bids = []exchange.Level{}
	}
	if b.Asks == nil {
		b.Asks = []exchange.Level{}
	}
	reply(w, b, err)
}

func (h *restHandler) tenders(w http.ResponseWriter, r *http.Request) {
	ts, err := h.x.Tenders(r.Context())
	reply(w, nonNil(ts), err)
}

func (h *restHandler) acceptTender(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	price, _ := strconv.ParseFloat(r.URL.Query().Get("price"), 64)
	res, err := h.x.AcceptTender(r.Context(), id, price)
	reply(w, res, err)
}

func (h *restHandler) declineTender(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.x.DeclineTender(r.Context(), id)
	reply(w, res, err)
}

func (h *restHandler) orders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.x.Orders(r.Context(), exchange.OrderStatus(r.URL.Query().Get("status")))
	reply(w, nonNil(orders), err)
}

func (h *restHandler) postOrder(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	qty, err := strconv.Atoi(q.Get("quantity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "quantity must be an integer")
		return
	}
	req := exchange.OrderRequest{
		Ticker:   q.Get("ticker"),
		Type:     exchange.OrderType(q.Get("type")),
		Quantity: qty,
		Action:   exchange.Side(q.Get("action")),
	}
	if raw := q.Get("price"); raw != "" {
		if req.Price, err = strconv.ParseFloat(raw, 64); err != nil {
			writeError(w, http.StatusBadRequest, "price must be a number")
			return
		}
	}
	order, err := h.x.PostOrder(r.Context(), req)
	reply(w, order, err)
}

func (h *restHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.x.CancelOrder(r.Context(), id)
	reply(w, res, err)
}

func (h *restHandler) news(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ns, err := h.x.News(r.Context(), limit)
	reply(w, nonNil(ns), err)
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return 0, false
	}
	return id, true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func reply(w http.ResponseWriter, v any, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		var gwErr *exchange.Error
		if errors.As(err, &gwErr) && gwErr.Status != 0 {
			status = gwErr.Status
		}
		writeError(w, status, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": status, "message": msg})
}
