package metrics

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"code", "method", "path"},
	)
	httpRequestsDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current Number of HTTP requests being processed.",
		},
	)

	couponApplyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coupon_apply_total",
			Help: "Coupon apply attempts by result.",
		},
		[]string{"result"},
	)

	rewardsPointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_points_total",
			Help: "Loyalty points moved, by direction (earned or redeemed).",
		},
		[]string{"direction"},
	)

	docstoreWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_write_failures_total",
			Help: "Remote document writes that failed after retries.",
		},
		[]string{"store"},
	)

	cartFlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_flushes_total",
			Help: "Debounced cart write-throughs by result.",
		},
		[]string{"result"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Redis cache reads by key family and result (hit, miss, error).",
		},
		[]string{"family", "result"},
	)

	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Browser sessions currently held in memory.",
		},
	)
)

func init() {
	if err := prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		slog.Debug("ProcessCollector registration skipped (likely already registered)",
			slog.String("error", err.Error()))
	}

	if err := prometheus.Register(collectors.NewGoCollector()); err != nil {
		slog.Debug("GoCollector registration skipped (likely already registered)",
			slog.String("error", err.Error()))
	}
}

func CouponApplied(result string) {
	couponApplyTotal.WithLabelValues(result).Inc()
}

func PointsEarned(points int64) {
	rewardsPointsTotal.WithLabelValues("earned").Add(float64(points))
}

func PointsRedeemed(points int64) {
	rewardsPointsTotal.WithLabelValues("redeemed").Add(float64(points))
}

func DocstoreWriteFailed(store string) {
	docstoreWriteFailures.WithLabelValues(store).Inc()
}

func CartFlushed(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cartFlushesTotal.WithLabelValues(result).Inc()
}

func CacheLookup(family, result string) {
	cacheLookupsTotal.WithLabelValues(family, result).Inc()
}

func SessionOpened() {
	sessionsActive.Inc()
}

func SessionClosed() {
	sessionsActive.Dec()
}

// wrapper around http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{w, http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		start := time.Now()
		httpRequestsInFlight.Inc()

		rw := newResponseWriter(w)

		defer func() {

			// r.Pattern is filled in by the mux, so this middleware must be
			// the last one before it.
			path := r.Pattern
			if path == "" {
				path = "unmatched"
			}

			duration := time.Since(start)
			statusCodeStr := strconv.Itoa(rw.statusCode)

			httpRequestsTotal.WithLabelValues(statusCodeStr, r.Method, path).Inc()
			httpRequestsDuration.WithLabelValues(r.Method, path).Observe(duration.Seconds())
			httpRequestsInFlight.Dec()

		}()

		next.ServeHTTP(rw, r)

	})
}

// http.Handler for the Prometheus /metrics endpoint
func Handler() http.Handler {

	return promhttp.Handler()
}
