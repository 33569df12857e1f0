package metrics

import "thumbnailfield/internal/storage"

// storageObserver implements storage.Observer with the metrics declared in
// metrics.go.
type storageObserver struct{}

// NewStorageObserver returns the observer to pass to storage.SetObserver.
func NewStorageObserver() storage.Observer {
	return &storageObserver{}
}

func (o *storageObserver) ObserveOperation(volume, operation string, durationSeconds float64, err error) {
	StorageOperationDuration.WithLabelValues(volume, operation).Observe(durationSeconds)
	if err != nil {
		StorageOperationErrors.WithLabelValues(volume, operation).Inc()
	}
}

func (o *storageObserver) ObserveRetryAttempt(retryOp, volume string) {
	StorageRetryAttempts.WithLabelValues(retryOp, volume).Inc()
}

func (o *storageObserver) ObserveRetrySuccess(retryOp, volume string) {
	StorageRetrySuccess.WithLabelValues(retryOp, volume).Inc()
}

func (o *storageObserver) ObserveRetryFailure(retryOp, volume string) {
	StorageRetryFailures.WithLabelValues(retryOp, volume).Inc()
}

func (o *storageObserver) ObserveStaleError(retryOp, volume string) {
	StorageStaleErrors.WithLabelValues(retryOp, volume).Inc()
}
