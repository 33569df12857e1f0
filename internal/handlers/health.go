package handlers

import (
	"net/http"
	"runtime"
	"time"

	"thumbnailfield/internal/codec"
	"thumbnailfield/internal/memory"
	"thumbnailfield/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	// Image pipeline
	Thumbnails    []string `json:"thumbnails"`
	VipsAvailable bool     `json:"vipsAvailable"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	Memory *memory.Usage `json:"memory,omitempty"`

	// Stats summary
	TotalEntries     int `json:"totalEntries"`
	EntriesWithImage int `json:"entriesWithImage"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:        statusHealthy,
		Version:       startup.Version,
		Uptime:        time.Since(h.startTime).Round(time.Second).String(),
		Thumbnails:    h.entries.Field().Names(),
		VipsAvailable: codec.IsVipsAvailable(),
		GoVersion:     runtime.Version(),
		NumCPU:        runtime.NumCPU(),
		NumGoroutine:  runtime.NumGoroutine(),
	}

	if h.mem != nil {
		usage := h.mem.Usage()
		response.Memory = &usage
	}

	status := http.StatusOK
	if err := h.db.Ping(r.Context()); err != nil {
		response.Status = statusDegraded
		status = http.StatusServiceUnavailable
	} else {
		stats := h.db.GetStats()
		response.TotalEntries = stats.TotalEntries
		response.EntriesWithImage = stats.EntriesWithImage
	}

	writeJSONStatusCode(w, status, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}
