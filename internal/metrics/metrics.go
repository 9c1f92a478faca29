// Package metrics registers the prometheus collectors shared by every strategy.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "rit_ticks_total", Help: "Session polls that returned a tick"},
	)
	SessionTick = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "rit_session_tick", Help: "Most recent session tick"},
	)
	TendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rit_tenders_total", Help: "Tenders evaluated, by decision"},
		[]string{"ticker", "decision"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rit_orders_total", Help: "Orders accepted by the exchange"},
		[]string{"ticker", "side", "type"},
	)
	OrderFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rit_order_failures_total", Help: "Order submissions that failed"},
		[]string{"ticker", "side"},
	)
	CancelsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "rit_cancels_total", Help: "Orders cancelled by sweeps"},
	)
	PortfolioVaR = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "rit_portfolio_var", Help: "Latest variance-covariance VaR"},
	)
	RoutesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rit_router_routes_total", Help: "Chunks routed by the smart order router"},
		[]string{"ticker", "side"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal, SessionTick, TendersTotal, OrdersTotal,
		OrderFailuresTotal, CancelsTotal, PortfolioVaR, RoutesTotal,
	)
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
