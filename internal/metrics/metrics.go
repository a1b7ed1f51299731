// Package metrics provides Prometheus instrumentation for the exchange core.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersTotal counts accepted orders by side and type.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsx_orders_total",
		Help: "Total number of orders accepted",
	}, []string{"side", "type"})

	// OrderRejections counts rejected orders by reason.
	OrderRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsx_order_rejections_total",
		Help: "Orders rejected before matching",
	}, []string{"reason"})

	// TradesTotal counts trades executed, partitioned by aggressor side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsx_trades_total",
		Help: "Total number of trades executed",
	}, []string{"side"})

	// MatchLatency tracks order placement latency including persistence.
	MatchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fsx_match_latency_seconds",
		Help:    "Order placement latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// PlayerVolume tracks cumulative traded shares per player.
	PlayerVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsx_player_volume_total",
		Help: "Cumulative trade volume in shares",
	}, []string{"player_id"})

	// RestingOrders tracks resting limit orders across all books.
	RestingOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fsx_resting_orders",
		Help: "Number of resting limit orders",
	})

	// VestingSharesClaimed counts shares redeemed from vesting.
	VestingSharesClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fsx_vesting_shares_claimed_total",
		Help: "Vested shares redeemed into player holdings",
	})

	// ContestsSettled counts settlement outcomes.
	ContestsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsx_contests_settled_total",
		Help: "Contest settlement attempts by outcome",
	}, []string{"outcome"})

	// SettlementDuration tracks settlement latency including the feed fetch.
	SettlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fsx_settlement_duration_seconds",
		Help:    "Contest settlement duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// FeedRetries counts fantasy feed retry attempts.
	FeedRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fsx_feed_retries_total",
		Help: "Fantasy points feed retries",
	})

	// CacheRequests counts cache lookups by cache and result.
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsx_cache_requests_total",
		Help: "Cache lookups by result",
	}, []string{"cache", "result"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fsx_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsx_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fsx_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// PositionLimitRejections counts orders rejected by the position limiter.
	PositionLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fsx_position_limit_rejections_total",
		Help: "Orders rejected by position limiter",
	})
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

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
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

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
