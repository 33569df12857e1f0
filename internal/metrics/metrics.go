package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailfield_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbnailfield_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnailfield_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailfield_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbnailfield_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnailfield_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Thumbnail metrics
var (
	ThumbnailMaterializationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailfield_materializations_total",
			Help: "Total number of derived images generated",
		},
		[]string{"name", "status"}, // status: success, error_config, error_exists, error_decode, error_transform, error_encode, error_save
	)

	ThumbnailMaterializationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbnailfield_materialization_duration_seconds",
			Help:    "Time to decode, transform, encode and save one derived image",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"name"},
	)

	ThumbnailCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailfield_cache_lookups_total",
			Help: "Derived image lookups by result",
		},
		[]string{"result"}, // memory, storage, miss, forced
	)

	ThumbnailDeletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailfield_deletions_total",
			Help: "Artifact delete calls, including already missing artifacts",
		},
		[]string{"reason", "status"}, // reason: remove_all, replace, delete
	)

	ThumbnailImageDecodeByFormat = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailfield_image_decode_total",
			Help: "Original images decoded, by detected format",
		},
		[]string{"format"},
	)

	OriginalProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailfield_original_processed_total",
			Help: "Uploads rewritten by the original pattern chain before storage",
		},
		[]string{"status"},
	)
)

// Storage metrics
var (
	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbnailfield_storage_operation_duration_seconds",
			Help:    "Duration of storage operations",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	StorageOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailfield_storage_operation_errors_total",
			Help: "Storage operations that returned an error",
		},
		[]string{"volume", "operation"},
	)

	StorageRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailfield_storage_retry_attempts_total",
			Help: "Retries after an NFS stale file handle error",
		},
		[]string{"operation", "volume"},
	)

	StorageRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailfield_storage_retry_success_total",
			Help: "Operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	StorageRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailfield_storage_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	StorageStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailfield_storage_stale_errors_total",
			Help: "NFS stale file handle errors seen",
		},
		[]string{"operation", "volume"},
	)
)

// Entry metrics
var (
	EntriesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thumbnailfield_entries_total",
			Help: "Stored entries",
		},
		[]string{"image"}, // with, without
	)

	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thumbnailfield_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnailfield_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnailfield_memory_paused",
			Help: "1 while thumbnail regeneration waits for memory to recover",
		},
	)

	MemoryPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbnailfield_memory_pauses_total",
			Help: "Times regeneration was paused on memory pressure",
		},
	)
)
