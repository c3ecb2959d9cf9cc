package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	checkoutOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_outcomes_total",
			Help: "Checkout attempts by gateway and terminal outcome",
		},
		[]string{"gateway", "outcome"},
	)

	gatewayAwaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_await_duration_seconds",
			Help:    "Time spent waiting for a gateway to resolve an intent",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180, 300},
		},
		[]string{"gateway"},
	)

	reconciliationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_reconciliation_entries_total",
			Help: "Captured payments that could not be settled locally",
		},
		[]string{"gateway"},
	)

	outboxPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Outbox events published to the broker",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(checkoutOutcomesTotal)
	prometheus.MustRegister(gatewayAwaitDuration)
	prometheus.MustRegister(reconciliationTotal)
	prometheus.MustRegister(outboxPublishedTotal)
}

// Middleware records request counts and latency labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordCheckoutOutcome(gateway, outcome string) {
	checkoutOutcomesTotal.WithLabelValues(gateway, outcome).Inc()
}

func ObserveGatewayAwait(gateway string, d time.Duration) {
	gatewayAwaitDuration.WithLabelValues(gateway).Observe(d.Seconds())
}

func RecordReconciliation(gateway string) {
	reconciliationTotal.WithLabelValues(gateway).Inc()
}

func RecordOutboxPublish(status string) {
	outboxPublishedTotal.WithLabelValues(status).Inc()
}
