package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hunt"

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Participation triggers by outcome",
		},
		[]string{"trigger", "outcome"}, // outcome: confirmed, pending, waitlisted, cancelled, rejected, <error code>
	)

	promotionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotions_total",
			Help:      "Waitlisted participants moved up after a seat freed",
		},
	)

	paymentEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_events_total",
			Help:      "Payment provider callbacks by type and result",
		},
		[]string{"type", "result"}, // result: applied, noop, duplicate, refund
	)

	paymentLockReleasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_lock_releases_total",
			Help:      "Payment locks released",
		},
		[]string{"reason"},
	)

	expiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_total",
			Help:      "Requests cancelled by the expiration sweep",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)
)

// RecordTransition counts one trigger invocation
func RecordTransition(trigger, outcome string) {
	transitionsTotal.WithLabelValues(trigger, outcome).Inc()
}

func RecordPromotion() {
	promotionsTotal.Inc()
}

// RecordPaymentEvent counts a reconciled webhook
func RecordPaymentEvent(eventType, result string) {
	paymentEventsTotal.WithLabelValues(eventType, result).Inc()
}

func RecordLockRelease(reason string) {
	paymentLockReleasesTotal.WithLabelValues(reason).Inc()
}

func RecordExpired(n int) {
	expiredTotal.Add(float64(n))
}

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records per-route request counts and latency.
// The route label is the chi pattern so ids do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
