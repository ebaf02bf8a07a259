// Package metrics provides Prometheus instrumentation for the league engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts executed buy/sell trades.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "league_trades_total",
		Help: "Total number of trades executed",
	}, []string{"type"})

	// TradeRejections counts trades rejected before execution, by reason.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "league_trade_rejections_total",
		Help: "Trades rejected by eligibility or balance checks",
	}, []string{"reason"})

	// DraftPicksTotal counts accepted draft picks.
	DraftPicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "league_draft_picks_total",
		Help: "Total number of draft picks accepted",
	})

	// PriceRefreshTotal counts refresh sweeps, partitioned by outcome.
	PriceRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "league_price_refresh_total",
		Help: "Price refresh sweeps by outcome (ran, skipped_fresh)",
	}, []string{"outcome"})

	// AssetsUpdated counts assets updated by refresh sweeps.
	AssetsUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "league_assets_updated_total",
		Help: "Assets updated with fresh quotes",
	})

	// ValuationRuns counts portfolio recalculations.
	ValuationRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "league_valuation_runs_total",
		Help: "Portfolio valuation passes executed",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "league_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "league_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "league_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; route patterns keep cardinality low
		// enough for this surface.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
