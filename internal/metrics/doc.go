// Package metrics provides Prometheus instrumentation for the thumbnail
// service. All metrics are prefixed with "thumbnailfield_".
//
// # Metric Categories
//
// ## HTTP Metrics
//   - HTTPRequestsTotal: requests by method, route and status
//   - HTTPRequestDuration: request duration by method and route
//   - HTTPRequestsInFlight: requests currently being served
//
// ## Database Metrics
//   - DBQueryTotal, DBQueryDuration: entry store queries by operation
//   - DBConnectionsOpen: open SQLite connections
//
// ## Thumbnail Metrics
//   - ThumbnailMaterializationsTotal: derived images generated, by name and status
//   - ThumbnailMaterializationDuration: time spent decoding, transforming,
//     encoding and saving one derived image
//   - ThumbnailCacheLookups: Get calls by result (memory, storage, miss, forced)
//   - ThumbnailDeletionsTotal: derived artifacts removed, by reason
//   - ThumbnailImageDecodeByFormat: original images decoded, by sniffed format
//   - OriginalProcessedTotal: uploads rewritten by an original chain
//
// ## Storage Metrics
//   - StorageOperationDuration, StorageOperationErrors: per volume and operation
//   - StorageRetryAttempts, StorageRetrySuccess, StorageRetryFailures,
//     StorageStaleErrors: NFS stale handle retries
//
// ## Entry Metrics
//   - EntriesTotal: stored entries, split by whether they carry an image
//
// # Usage
//
// Metrics are registered with the default registry on import through
// promauto. Call InitializeMetrics once at startup so that every label
// combination is exported from the first scrape, and register the storage
// observer:
//
//	metrics.InitializeMetrics()
//	storage.SetObserver(metrics.NewStorageObserver())
//
// The Collector refreshes gauges from a StatsProvider on an interval.
package metrics
