// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds every Prometheus vector the server publishes.
type Collector struct {
	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// HSG retrieval and writes (C2/C3)
	hsgQueriesTotal     *prometheus.CounterVec
	hsgQueryDuration     *prometheus.HistogramVec
	hsgMemoriesWritten   *prometheus.CounterVec
	hsgReinforcements    *prometheus.CounterVec
	hsgDecayScanned      prometheus.Gauge
	hsgDecayFloored      prometheus.Gauge

	// Analyzer battery (C6-C10)
	analyzerRunsTotal    *prometheus.CounterVec
	analyzerDuration     *prometheus.HistogramVec
	analyzerReportWrites *prometheus.CounterVec

	// Enforcement gate (C11)
	enforcementChecksTotal *prometheus.CounterVec
	enforcementLocksHeld   prometheus.Gauge

	// Cache (hot-tier)
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// Database
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector builds and registers every metric under namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.hsgQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hsg_queries_total",
			Help:      "Total number of HSG retrieval queries",
		},
		[]string{"status"},
	)

	c.hsgQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hsg_query_duration_seconds",
			Help:      "HSG retrieval query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"sector"},
	)

	c.hsgMemoriesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hsg_memories_written_total",
			Help:      "Total number of memories written, by sector",
		},
		[]string{"sector"},
	)

	c.hsgReinforcements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hsg_reinforcements_total",
			Help:      "Total number of reinforcement calls, by reason",
		},
		[]string{"reason"},
	)

	c.hsgDecayScanned = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hsg_decay_last_scanned",
			Help:      "Number of memories scanned in the last decay tick",
		},
	)

	c.hsgDecayFloored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hsg_decay_last_floored",
			Help:      "Number of memories decayed down to the salience floor in the last decay tick",
		},
	)

	c.analyzerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyzer_runs_total",
			Help:      "Total number of analyzer runs, by analyzer and status",
		},
		[]string{"analyzer", "status"},
	)

	c.analyzerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analyzer_duration_seconds",
			Help:      "Analyzer run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"analyzer"},
	)

	c.analyzerReportWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyzer_report_writes_total",
			Help:      "Total number of analyzer report table writes, by analyzer and status",
		},
		[]string{"analyzer", "status"},
	)

	c.enforcementChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enforcement_checks_total",
			Help:      "Total number of enforcement gate checks, by result",
		},
		[]string{"result"},
	)

	c.enforcementLocksHeld = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "enforcement_locks_held",
			Help:      "Number of task locks currently held",
		},
	)

	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (c *Collector) RecordHSGQuery(sector, status string, duration time.Duration) {
	c.hsgQueriesTotal.WithLabelValues(status).Inc()
	c.hsgQueryDuration.WithLabelValues(sector).Observe(duration.Seconds())
}

func (c *Collector) RecordHSGWrite(sector string) {
	c.hsgMemoriesWritten.WithLabelValues(sector).Inc()
}

func (c *Collector) RecordReinforcement(reason string) {
	c.hsgReinforcements.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordDecayTick(scanned, floored int) {
	c.hsgDecayScanned.Set(float64(scanned))
	c.hsgDecayFloored.Set(float64(floored))
}

func (c *Collector) RecordAnalyzerRun(analyzer, status string, duration time.Duration) {
	c.analyzerRunsTotal.WithLabelValues(analyzer, status).Inc()
	c.analyzerDuration.WithLabelValues(analyzer).Observe(duration.Seconds())
}

func (c *Collector) RecordAnalyzerReportWrite(analyzer, status string) {
	c.analyzerReportWrites.WithLabelValues(analyzer, status).Inc()
}

func (c *Collector) RecordEnforcementCheck(result string) {
	c.enforcementChecksTotal.WithLabelValues(result).Inc()
}

func (c *Collector) SetEnforcementLocksHeld(n int) {
	c.enforcementLocksHeld.Set(float64(n))
}

func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
