package metrics

// InitializeMetrics pre-populates expected label combinations so that every
// metric is exported from the first Prometheus scrape.
func InitializeMetrics() {
	for _, op := range []string{"exists", "save", "delete", "open", "size"} {
		StorageOperationDuration.WithLabelValues("media", op)
		StorageOperationErrors.WithLabelValues("media", op)
	}
	for _, op := range []string{"stat", "open"} {
		StorageRetryAttempts.WithLabelValues(op, "media")
		StorageRetrySuccess.WithLabelValues(op, "media")
		StorageRetryFailures.WithLabelValues(op, "media")
		StorageStaleErrors.WithLabelValues(op, "media")
	}

	for _, result := range []string{"memory", "storage", "miss", "forced"} {
		ThumbnailCacheLookups.WithLabelValues(result)
	}
	for _, reason := range []string{"remove_all", "replace", "delete"} {
		ThumbnailDeletionsTotal.WithLabelValues(reason, "success")
		ThumbnailDeletionsTotal.WithLabelValues(reason, "error")
	}
	for _, format := range []string{"jpeg", "png", "gif", "webp", "bmp", "tiff", "unknown"} {
		ThumbnailImageDecodeByFormat.WithLabelValues(format)
	}
	for _, status := range []string{"success", "error"} {
		OriginalProcessedTotal.WithLabelValues(status)
	}

	for _, op := range []string{"initialize_schema", "create_entry", "get_entry", "update_entry",
		"delete_entry", "list_entries", "count_entries"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	EntriesTotal.WithLabelValues("with")
	EntriesTotal.WithLabelValues("without")
}

// InitializeThumbnailNames pre-populates per-name thumbnail series for the
// names a field declares.
func InitializeThumbnailNames(names []string) {
	for _, name := range names {
		ThumbnailMaterializationDuration.WithLabelValues(name)
		for _, status := range []string{"success", "error_config", "error_exists", "error_decode", "error_transform", "error_encode", "error_save"} {
			ThumbnailMaterializationsTotal.WithLabelValues(name, status)
		}
	}
}
