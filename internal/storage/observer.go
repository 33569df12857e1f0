package storage

// Observer records storage operation metrics. The metrics package provides
// the implementation.
type Observer interface {
	// ObserveOperation records the duration and outcome of one store call.
	// operation is one of "exists", "save", "delete", "open", "size".
	ObserveOperation(volume, operation string, durationSeconds float64, err error)

	// The retry hooks fire from the NFS stale handle retry loop.
	// retryOp is "stat" or "open".
	ObserveRetryAttempt(retryOp, volume string)
	ObserveRetrySuccess(retryOp, volume string)
	ObserveRetryFailure(retryOp, volume string)
	ObserveStaleError(retryOp, volume string)
}

// defaultObserver is set once at startup. Nil skips metric recording.
var defaultObserver Observer

// SetObserver sets the package-level metrics observer.
func SetObserver(o Observer) {
	defaultObserver = o
}

func observe() Observer {
	return defaultObserver
}
