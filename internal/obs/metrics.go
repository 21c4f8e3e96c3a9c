package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	syncPullRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_pull_rows_total",
			Help: "Rows returned by pull requests, by table and delta kind.",
		},
		[]string{"table", "kind"},
	)

	syncPushRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_push_records_total",
			Help: "Records received in push batches, by table and outcome.",
		},
		[]string{"table", "outcome"},
	)

	auditEntriesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_entries_written_total",
		Help: "Audit log entries inserted.",
	})

	auditHashFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_hash_failures_total",
		Help: "Audit entries whose stored hash did not match the recomputed hash.",
	})

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service considers itself ready.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		syncPullRows, syncPushRecords,
		auditEntriesWritten, auditHashFailures,
		readyGauge,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady flips the readiness gauge.
func SetReady(ready bool) {
	if ready {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// AddPullRows accounts rows delivered in a pull response.
func AddPullRows(table, kind string, n int) {
	if n > 0 {
		syncPullRows.WithLabelValues(table, kind).Add(float64(n))
	}
}

// IncPushRecord accounts a single pushed record with its outcome.
func IncPushRecord(table, outcome string) {
	syncPushRecords.WithLabelValues(table, outcome).Inc()
}

// AddAuditEntries accounts inserted audit entries.
func AddAuditEntries(n int) {
	if n > 0 {
		auditEntriesWritten.Add(float64(n))
	}
}

// IncHashFailure accounts a hash verification mismatch.
func IncHashFailure() {
	auditHashFailures.Inc()
}

// Instrument wraps next with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metrics.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
