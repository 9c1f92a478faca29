// Package admin exposes operator controls over HTTP: session readouts, a
// merged depth view, cancel-all sweeps and market square-offs, plus a
// websocket status feed.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ritbot-go/internal/depth"
	"ritbot-go/internal/exchange"
	"ritbot-go/internal/execution"
)

// Server delegates every mutating call to the executor; it keeps no trading state.
type Server struct {
	exec         *execution.Executor
	gw           exchange.Gateway
	log          zerolog.Logger
	defaultBatch int
	statusEvery  time.Duration
	hub          *Hub
}

// Option configures the server.
type Option func(*Server)

// WithDefaultBatchSize sets the square-off batch used when the request has none.
func WithDefaultBatchSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.defaultBatch = n
		}
	}
}

// WithStatusInterval sets how often the websocket feed polls the session.
func WithStatusInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.statusEvery = d
		}
	}
}

// NewServer builds the façade over exec.
func NewServer(exec *execution.Executor, log zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		exec:         exec,
		gw:           exec.Gateway(),
		log:          log.With().Str("component", "admin").Logger(),
		defaultBatch: 10000,
		statusEvery:  time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(s.log)
	return s
}

// Hub returns the status broadcaster.
func (s *Server) Hub() *Hub { return s.hub }

// RunStatusFeed polls the session for websocket subscribers until ctx ends.
func (s *Server) RunStatusFeed(ctx context.Context) error {
	return s.hub.Run(ctx, s.gw, s.statusEvery)
}

// Handler routes every admin endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /tick", s.handleTick)
	mux.HandleFunc("GET /period", s.handlePeriod)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /trader", s.handleTrader)
	mux.HandleFunc("GET /depth", s.handleDepth)
	mux.HandleFunc("DELETE /all_orders", s.handleCancelAll)
	mux.HandleFunc("DELETE /all_orders/{ticker}", s.handleCancelAll)
	mux.HandleFunc("POST /market_square_off", s.handleSquareOff)
	mux.HandleFunc("POST /market_square_off/{ticker}", s.handleSquareOff)
	mux.HandleFunc("GET /ws/status", s.hub.ServeWS)
	return mux
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	sess, err := s.gw.Case(r.Context())
	if err != nil {
		s.gatewayError(w, "case", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"tick": sess.Tick})
}

func (s *Server) handlePeriod(w http.ResponseWriter, r *http.Request) {
	sess, err := s.gw.Case(r.Context())
	if err != nil {
		s.gatewayError(w, "case", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"period": sess.Period})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.gw.Case(r.Context())
	if err != nil {
		s.gatewayError(w, "case", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleTrader(w http.ResponseWriter, r *http.Request) {
	tr, err := s.gw.Trader(r.Context())
	if err != nil {
		s.gatewayError(w, "trader", err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

const defaultDepthLevels = 20

// handleDepth merges the books of ?tickers=A,B into one ladder, n levels per
// side, with VWAPs rounded to the cent.
func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	var tickers []string
	for _, t := range strings.Split(r.URL.Query().Get("tickers"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tickers = append(tickers, t)
		}
	}
	if len(tickers) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "tickers is required"})
		return
	}
	n := defaultDepthLevels
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "n must be a positive integer"})
			return
		}
		n = v
	}

	books := make(map[string]exchange.Book, len(tickers))
	for _, t := range tickers {
		book, err := s.gw.Book(r.Context(), t, n)
		if err != nil {
			s.gatewayError(w, "book", err)
			return
		}
		books[t] = book
	}
	ladder := depth.Merge(books, n)
	writeJSON(w, http.StatusOK, depth.Ladder{Bids: rounded(ladder.Bids), Asks: rounded(ladder.Asks)})
}

func rounded(rows []depth.Row) []depth.Row {
	out := make([]depth.Row, len(rows))
	for i, row := range rows {
		row.VWAP = row.RoundedVWAP()
		out[i] = row
	}
	return out
}

// handleCancelAll blocks until the sweep sees no OPEN orders or the client goes away.
func (s *Server) handleCancelAll(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	n, err := s.exec.CancelAll(r.Context(), ticker)
	if err != nil {
		s.gatewayError(w, "cancel all", err)
		return
	}
	s.log.Info().Str("ticker", ticker).Int("cancelled", n).Msg("cancel-all via admin")
	writeJSON(w, http.StatusOK, map[string]any{"ticker": ticker, "cancelled": n})
}

func (s *Server) handleSquareOff(w http.ResponseWriter, r *http.Request) {
	batch := s.defaultBatch
	if raw := r.URL.Query().Get("batch_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "batch_size must be a positive integer"})
			return
		}
		batch = n
	}

	ticker := r.PathValue("ticker")
	var err error
	if ticker == "" {
		err = s.exec.SquareOffAll(r.Context(), batch)
	} else {
		err = s.exec.SquareOffTicker(r.Context(), ticker, batch)
	}
	if err != nil {
		s.gatewayError(w, "square off", err)
		return
	}
	s.log.Info().Str("ticker", ticker).Int("batch_size", batch).Msg("square-off via admin")
	writeJSON(w, http.StatusOK, map[string]any{"ticker": ticker, "batch_size": batch, "squared_off": true})
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) gatewayError(w http.ResponseWriter, op string, err error) {
	s.log.Error().Err(err).Str("op", op).Msg("admin request failed")
	writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
