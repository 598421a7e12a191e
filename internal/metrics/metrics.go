// Package metrics provides Prometheus metrics for diskgraph.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ning0612/Diskgraph/internal/domain"
)

var (
	// Scan metrics
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskgraph_scans_total",
			Help: "Total number of filesystem scans",
		},
		[]string{"status"},
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "diskgraph_scan_duration_seconds",
			Help:    "Time to scan all roots",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		},
	)

	unreadableEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "diskgraph_unreadable_entries_total",
			Help: "Total entries recorded as unreadable during scans",
		},
	)

	// Cache metrics
	cacheLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskgraph_cache_loads_total",
			Help: "Cache file load attempts",
		},
		[]string{"result"}, // hit, miss, corrupt, stale
	)

	cacheWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskgraph_cache_writes_total",
			Help: "Cache file write attempts",
		},
		[]string{"result"}, // ok, error, locked
	)

	cacheFileBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "diskgraph_cache_file_bytes",
			Help: "Size of the last written or loaded cache file",
		},
	)

	reloadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "diskgraph_reloads_total",
			Help: "Total number of explicit reloads",
		},
	)

	// Graph metrics
	graphEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "diskgraph_graph_entries",
			Help: "Entries in the held graph by kind",
		},
		[]string{"kind"},
	)

	graphBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "diskgraph_graph_bytes",
			Help: "Sum of file sizes in the held graph",
		},
	)

	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskgraph_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diskgraph_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordScan records a finished scan.
func RecordScan(duration time.Duration, unreadable int, success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	scansTotal.WithLabelValues(status).Inc()
	scanDuration.Observe(duration.Seconds())
	unreadableEntriesTotal.Add(float64(unreadable))
}

// RecordCacheLoad records a cache load attempt: "hit", "miss", "corrupt" or "stale".
func RecordCacheLoad(result string, bytes int64) {
	cacheLoadsTotal.WithLabelValues(result).Inc()
	if result == "hit" {
		cacheFileBytes.Set(float64(bytes))
	}
}

// RecordCacheWrite records a cache write attempt: "ok", "error" or "locked".
func RecordCacheWrite(result string, bytes int64) {
	cacheWritesTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		cacheFileBytes.Set(float64(bytes))
	}
}

// RecordReload records an explicit reload.
func RecordReload() {
	reloadsTotal.Inc()
}

// SetGraphStats publishes the statistics of the held graph.
func SetGraphStats(s domain.GraphStats) {
	graphEntries.WithLabelValues(domain.KindFile.String()).Set(float64(s.Files))
	graphEntries.WithLabelValues(domain.KindDirectory.String()).Set(float64(s.Directories))
	graphEntries.WithLabelValues(domain.KindSymlink.String()).Set(float64(s.Symlinks))
	graphEntries.WithLabelValues(domain.KindUnreadableFile.String()).Set(float64(s.UnreadableFiles))
	graphEntries.WithLabelValues(domain.KindUnreadableDirectory.String()).Set(float64(s.UnreadableDirectories))
	graphBytes.Set(float64(s.TotalBytes))
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
