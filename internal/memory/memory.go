package memory

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"thumbnailfield/internal/logging"
	"thumbnailfield/internal/metrics"
)

// ErrStopped is returned by Wait after the monitor has been stopped.
var ErrStopped = errors.New("memory monitor stopped")

// Config holds memory monitor configuration
type Config struct {
	// LimitBytes is the soft limit. Zero uses the Go memory limit; with
	// neither set the monitor never pauses.
	LimitBytes int64

	// ResumeMark is the usage ratio below which a paused monitor resumes
	ResumeMark float64

	// PauseMark is the usage ratio at which regeneration pauses
	PauseMark float64

	CheckInterval time.Duration
}

// DefaultConfig returns the defaults used by the server and CLI
func DefaultConfig() Config {
	return Config{
		ResumeMark:    0.70,
		PauseMark:     0.85,
		CheckInterval: 2 * time.Second,
	}
}

// Usage is a snapshot of the monitor state.
type Usage struct {
	Alloc  uint64  `json:"alloc"`
	Limit  int64   `json:"limit"`
	Ratio  float64 `json:"ratio"`
	Paused bool    `json:"paused"`
}

// Monitor samples heap usage and holds back thumbnail work while usage is
// above the pause mark. A nil *Monitor never pauses.
type Monitor struct {
	config    Config
	limit     int64
	readAlloc func() uint64

	mu       sync.RWMutex
	alloc    uint64
	paused   bool
	resumeCh chan struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMonitor creates a monitor. Call Start to begin sampling.
func NewMonitor(config Config) *Monitor {
	defaults := DefaultConfig()
	if config.PauseMark <= 0 || config.PauseMark > 1 {
		config.PauseMark = defaults.PauseMark
	}
	if config.ResumeMark <= 0 || config.ResumeMark >= config.PauseMark {
		config.ResumeMark = config.PauseMark * 0.8
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = defaults.CheckInterval
	}

	limit := config.LimitBytes
	if limit == 0 {
		if goLimit := debug.SetMemoryLimit(-1); goLimit > 0 && goLimit < 1<<62 {
			limit = goLimit
		}
	}
	if limit == 0 {
		logging.Debug("Memory monitor: no limit configured, backpressure disabled")
	} else {
		logging.Info("Memory monitor: limit %s, pause at %.0f%%, resume at %.0f%%",
			FormatBytes(limit), config.PauseMark*100, config.ResumeMark*100)
	}

	return &Monitor{
		config:    config,
		limit:     limit,
		readAlloc: heapAlloc,
		resumeCh:  make(chan struct{}),
		stopCh:    make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}

// Start begins sampling in the background. It does nothing without a limit.
func (m *Monitor) Start() {
	if m == nil || m.limit == 0 {
		return
	}
	m.check()
	go m.loop()
}

// Stop stops sampling and releases every waiter with ErrStopped.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) check() {
	alloc := m.readAlloc()
	ratio := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(ratio)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.alloc = alloc

	switch {
	case !m.paused && ratio >= m.config.PauseMark:
		logging.Warn("Memory at %.1f%% of limit, pausing thumbnail generation", ratio*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryPausesTotal.Inc()
		go runtime.GC()
	case m.paused && ratio < m.config.ResumeMark:
		logging.Info("Memory at %.1f%% of limit, resuming thumbnail generation", ratio*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resumeCh)
		m.resumeCh = make(chan struct{})
	}
}

// Wait blocks while the monitor is paused. It returns the context error if
// ctx ends first and ErrStopped if the monitor is stopped.
func (m *Monitor) Wait(ctx context.Context) error {
	if m == nil {
		return ctx.Err()
	}
	m.mu.RLock()
	paused, resume := m.paused, m.resumeCh
	m.mu.RUnlock()
	if !paused {
		return ctx.Err()
	}

	select {
	case <-resume:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopCh:
		return ErrStopped
	}
}

// Usage returns the last sample.
func (m *Monitor) Usage() Usage {
	if m == nil {
		return Usage{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	u := Usage{Alloc: m.alloc, Limit: m.limit, Paused: m.paused}
	if m.limit > 0 {
		u.Ratio = float64(m.alloc) / float64(m.limit)
	}
	return u
}
