// Package metrics provides Prometheus instrumentation for the trading service.
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
	// OrdersTotal counts accepted orders by side, type and time in force.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shoken_orders_total",
		Help: "Total number of orders accepted",
	}, []string{"side", "type", "tif"})

	// OrderRejections counts orders refused before or during matching, by error code.
	OrderRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shoken_order_rejections_total",
		Help: "Orders rejected, by error code",
	}, []string{"code"})

	// FillsTotal counts fills produced by matching or ingested from a venue.
	FillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shoken_fills_total",
		Help: "Total number of fills",
	}, []string{"market_id", "side"})

	// PredictionFillsTotal counts prediction share fills by outcome.
	PredictionFillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shoken_prediction_fills_total",
		Help: "Total number of prediction market fills",
	}, []string{"market_id", "outcome"})

	// MatchLatency tracks time spent validating, matching and committing an order.
	MatchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shoken_match_latency_seconds",
		Help:    "Order placement latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// MarketVolume tracks cumulative filled base quantity per market.
	MarketVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shoken_market_volume_total",
		Help: "Cumulative filled quantity",
	}, []string{"market_id", "side"})

	// ActiveMarkets tracks the number of markets accepting orders.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shoken_active_markets",
		Help: "Number of markets with status ACTIVE",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shoken_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// LimitRejections counts orders rejected by the exposure limiter.
	LimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shoken_limit_rejections_total",
		Help: "Orders rejected by the exposure limiter",
	}, []string{"limit"})

	// EventsAppended counts events committed to wallet logs, by kind.
	EventsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shoken_events_appended_total",
		Help: "Events appended to wallet logs",
	}, []string{"kind"})

	// StoreErrors counts failed appends to the event log.
	StoreErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shoken_store_errors_total",
		Help: "Failed event log appends",
	})

	// PublishErrors counts event batches that could not be published.
	PublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shoken_publish_errors_total",
		Help: "Failed event publishes",
	})

	// FeedMessages counts price feed messages by outcome.
	FeedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shoken_feed_messages_total",
		Help: "Price feed messages consumed",
	}, []string{"result"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shoken_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shoken_http_request_duration_seconds",
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

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern labels by chi route pattern so wallet and market ids do not
// explode cardinality.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
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
	return h.Hijack()
}
