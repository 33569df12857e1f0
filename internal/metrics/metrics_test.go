package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsExist(t *testing.T) {
	tests := []struct {
		name   string
		metric interface{}
	}{
		{"HTTPRequestsTotal", HTTPRequestsTotal},
		{"HTTPRequestDuration", HTTPRequestDuration},
		{"HTTPRequestsInFlight", HTTPRequestsInFlight},
		{"DBQueryTotal", DBQueryTotal},
		{"DBQueryDuration", DBQueryDuration},
		{"ThumbnailMaterializationsTotal", ThumbnailMaterializationsTotal},
		{"ThumbnailMaterializationDuration", ThumbnailMaterializationDuration},
		{"ThumbnailCacheLookups", ThumbnailCacheLookups},
		{"ThumbnailDeletionsTotal", ThumbnailDeletionsTotal},
		{"StorageOperationDuration", StorageOperationDuration},
		{"EntriesTotal", EntriesTotal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s metric is nil", tt.name)
			}
		})
	}
}

func TestInitializeMetrics(t *testing.T) {
	InitializeMetrics()
	InitializeThumbnailNames([]string{"small"})

	if n := testutil.CollectAndCount(ThumbnailCacheLookups); n < 4 {
		t.Errorf("ThumbnailCacheLookups series = %d, want >= 4", n)
	}
	if n := testutil.CollectAndCount(ThumbnailMaterializationsTotal); n < 5 {
		t.Errorf("ThumbnailMaterializationsTotal series = %d, want >= 5", n)
	}
}

func TestStorageObserver(t *testing.T) {
	obs := NewStorageObserver()

	beforeErr := testutil.ToFloat64(StorageOperationErrors.WithLabelValues("test-vol", "save"))
	obs.ObserveOperation("test-vol", "save", 0.01, nil)
	obs.ObserveOperation("test-vol", "save", 0.01, errors.New("disk full"))
	if got := testutil.ToFloat64(StorageOperationErrors.WithLabelValues("test-vol", "save")); got != beforeErr+1 {
		t.Errorf("StorageOperationErrors = %v, want %v", got, beforeErr+1)
	}

	before := testutil.ToFloat64(StorageRetryAttempts.WithLabelValues("stat", "test-vol"))
	obs.ObserveRetryAttempt("stat", "test-vol")
	if got := testutil.ToFloat64(StorageRetryAttempts.WithLabelValues("stat", "test-vol")); got != before+1 {
		t.Errorf("StorageRetryAttempts = %v, want %v", got, before+1)
	}

	obs.ObserveRetrySuccess("stat", "test-vol")
	obs.ObserveRetryFailure("stat", "test-vol")
	obs.ObserveStaleError("stat", "test-vol")
	if got := testutil.ToFloat64(StorageStaleErrors.WithLabelValues("stat", "test-vol")); got < 1 {
		t.Errorf("StorageStaleErrors = %v, want >= 1", got)
	}
}

type fakeStats struct{ stats Stats }

func (f fakeStats) GetStats() Stats { return f.stats }

func TestCollector(t *testing.T) {
	c := NewCollector(fakeStats{Stats{TotalEntries: 10, EntriesWithImage: 7}}, time.Hour)
	c.collect()

	if got := testutil.ToFloat64(EntriesTotal.WithLabelValues("with")); got != 7 {
		t.Errorf("entries with image = %v, want 7", got)
	}
	if got := testutil.ToFloat64(EntriesTotal.WithLabelValues("without")); got != 3 {
		t.Errorf("entries without image = %v, want 3", got)
	}
}

func TestCollectorNilProvider(t *testing.T) {
	c := NewCollector(nil, time.Hour)
	c.collect()
	c.Start()
	c.Stop()
}

func TestMetricsConcurrentAccess(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				HTTPRequestsTotal.WithLabelValues("GET", "/test", "200").Inc()
				ThumbnailCacheLookups.WithLabelValues("memory").Inc()
				ThumbnailMaterializationDuration.WithLabelValues("small").Observe(0.1)
			}
		}()
	}
	wg.Wait()
}

func TestAppInfo(t *testing.T) {
	SetAppInfo("1.0.0", "abc123", "go1.25")
	if got := testutil.ToFloat64(AppInfo.WithLabelValues("1.0.0", "abc123", "go1.25")); got != 1 {
		t.Errorf("AppInfo = %v, want 1", got)
	}
}
