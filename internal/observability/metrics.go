// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Fetch metrics
	FetchAttempts *prometheus.CounterVec
	FetchOutcomes *prometheus.CounterVec
	FetchLatency  *prometheus.HistogramVec
	FetchInFlight prometheus.Gauge
	PagesFetched  *prometheus.CounterVec

	// Cache metrics
	CacheLookups      *prometheus.CounterVec
	CacheStaleWrites  *prometheus.CounterVec
	CacheInvalidated  *prometheus.CounterVec
	SharedComputation *prometheus.CounterVec

	// Normalization metrics
	RecordsDropped *prometheus.CounterVec
	SuspectEvents  prometheus.Counter
	TradeEvents    *prometheus.CounterVec

	// Report metrics
	ReportsTotal    *prometheus.CounterVec
	ReportDuration  *prometheus.HistogramVec
	MetricFailures  *prometheus.CounterVec
	HistoryWrites   *prometheus.CounterVec
	RescanRequests  *prometheus.CounterVec
	WatchedLogsSeen prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "onchain_analytics"
	}

	return &Metrics{
		FetchAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "attempts_total",
			Help:      "Total number of upstream request attempts by source",
		}, []string{"source"}),
		FetchOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "outcomes_total",
			Help:      "Total number of finished fetches by source and outcome",
		}, []string{"source", "outcome"}),
		FetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "latency_seconds",
			Help:      "Fetch latency including retries by source",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		FetchInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "in_flight",
			Help:      "Upstream requests currently in flight",
		}),
		PagesFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "pages_total",
			Help:      "Total number of result pages fetched by source",
		}, []string{"source"}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by kind and result (hit, miss, stale, invalidated, error)",
		}, []string{"kind", "result"}),
		CacheStaleWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "stale_writes_total",
			Help:      "Cache writes discarded because an invalidation happened during computation",
		}, []string{"kind"}),
		CacheInvalidated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Cache invalidations by kind",
		}, []string{"kind"}),
		SharedComputation: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "shared_computations_total",
			Help:      "Requests served by joining an in-flight computation of the same key",
		}, []string{"kind"}),

		RecordsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalization",
			Name:      "records_dropped_total",
			Help:      "Records discarded during normalization by reason",
		}, []string{"reason"}),
		SuspectEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalization",
			Name:      "suspect_events_total",
			Help:      "Trade events flagged as suspect",
		}),
		TradeEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalization",
			Name:      "trade_events_total",
			Help:      "Normalized trade events by source rule",
		}, []string{"source"}),

		ReportsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "reports_total",
			Help:      "Analytics reports produced by status (complete, partial, invalid)",
		}, []string{"status"}),
		ReportDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "report_duration_seconds",
			Help:      "Analytics report duration by status",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"status"}),
		MetricFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "metric_failures_total",
			Help:      "Metrics omitted from reports by metric and failure kind",
		}, []string{"metric", "kind"}),
		HistoryWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "history_writes_total",
			Help:      "History sink writes by table and status",
		}, []string{"table", "status"}),
		RescanRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "rescan_requests_total",
			Help:      "Rescan requests by origin",
		}, []string{"origin"}),
		WatchedLogsSeen: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "logs_seen_total",
			Help:      "Log notifications received for watched mints",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordFetchAttempt increments the attempt counter of source.
func RecordFetchAttempt(source string) {
	DefaultMetrics.FetchAttempts.WithLabelValues(source).Inc()
}

// RecordFetchOutcome records a finished fetch. outcome is "ok" or a failure kind.
func RecordFetchOutcome(source, outcome string, d time.Duration) {
	DefaultMetrics.FetchOutcomes.WithLabelValues(source, outcome).Inc()
	DefaultMetrics.FetchLatency.WithLabelValues(source).Observe(d.Seconds())
}

// AddFetchInFlight adjusts the in-flight gauge.
func AddFetchInFlight(delta float64) {
	DefaultMetrics.FetchInFlight.Add(delta)
}

// RecordPageFetched increments the page counter of source.
func RecordPageFetched(source string) {
	DefaultMetrics.PagesFetched.WithLabelValues(source).Inc()
}

// RecordCacheLookup records a cache lookup result.
func RecordCacheLookup(kind, result string) {
	DefaultMetrics.CacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordStaleWrite records a discarded cache write.
func RecordStaleWrite(kind string) {
	DefaultMetrics.CacheStaleWrites.WithLabelValues(kind).Inc()
}

// RecordInvalidation records a cache invalidation.
func RecordInvalidation(kind string) {
	DefaultMetrics.CacheInvalidated.WithLabelValues(kind).Inc()
}

// RecordSharedComputation records a caller that joined an in-flight computation.
func RecordSharedComputation(kind string) {
	DefaultMetrics.SharedComputation.WithLabelValues(kind).Inc()
}

// RecordDropped adds n dropped records for reason.
func RecordDropped(reason string, n int) {
	if n <= 0 {
		return
	}
	DefaultMetrics.RecordsDropped.WithLabelValues(reason).Add(float64(n))
}

// RecordSuspect adds n suspect events.
func RecordSuspect(n int) {
	if n <= 0 {
		return
	}
	DefaultMetrics.SuspectEvents.Add(float64(n))
}

// RecordTradeEvent increments the trade event counter for a source rule.
func RecordTradeEvent(source string) {
	DefaultMetrics.TradeEvents.WithLabelValues(source).Inc()
}

// RecordReport records a finished report.
func RecordReport(status string, d time.Duration) {
	DefaultMetrics.ReportsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.ReportDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordMetricFailure records a metric omitted from a report.
func RecordMetricFailure(metric, kind string) {
	DefaultMetrics.MetricFailures.WithLabelValues(metric, kind).Inc()
}

// RecordHistoryWrite records a history sink write.
func RecordHistoryWrite(table string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.HistoryWrites.WithLabelValues(table, status).Inc()
}

// RecordRescan records a rescan request.
func RecordRescan(origin string) {
	DefaultMetrics.RescanRequests.WithLabelValues(origin).Inc()
}

// RecordWatchedLog records a log notification for a watched mint.
func RecordWatchedLog() {
	DefaultMetrics.WatchedLogsSeen.Inc()
}
