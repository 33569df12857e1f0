package handlers

import (
	"net/http"
	"time"

	"thumbnailfield/internal/database"
	"thumbnailfield/internal/entries"
	"thumbnailfield/internal/memory"
	"thumbnailfield/internal/startup"

	"github.com/gorilla/mux"
)

// defaultMaxUploadBytes bounds multipart bodies.
const defaultMaxUploadBytes = 32 << 20

// Handlers serves the entry API.
type Handlers struct {
	db             *database.Database
	entries        *entries.Service
	mem            *memory.Monitor
	maxUploadBytes int64
	startTime      time.Time
}

// New creates the handlers.
func New(db *database.Database, svc *entries.Service, _ *startup.Config) *Handlers {
	return &Handlers{
		db:             db,
		entries:        svc,
		maxUploadBytes: defaultMaxUploadBytes,
		startTime:      time.Now(),
	}
}

// SetMemoryMonitor makes thumbnail refreshes wait on m and adds its usage
// to the health report.
func (h *Handlers) SetMemoryMonitor(m *memory.Monitor) {
	h.mem = m
}

// RegisterRoutes adds the API, health and version routes to r.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/entries", h.ListEntries).Methods(http.MethodGet)
	api.HandleFunc("/entries", h.CreateEntry).Methods(http.MethodPost)
	api.HandleFunc("/entries/{id:[0-9]+}", h.GetEntry).Methods(http.MethodGet)
	api.HandleFunc("/entries/{id:[0-9]+}", h.UpdateEntry).Methods(http.MethodPut)
	api.HandleFunc("/entries/{id:[0-9]+}", h.DeleteEntry).Methods(http.MethodDelete)
	api.HandleFunc("/entries/{id:[0-9]+}/image", h.ReplaceImage).Methods(http.MethodPut)
	api.HandleFunc("/entries/{id:[0-9]+}/image", h.RemoveImage).Methods(http.MethodDelete)
	api.HandleFunc("/entries/{id:[0-9]+}/thumbnails", h.RefreshThumbnails).Methods(http.MethodPost)
	api.HandleFunc("/entries/{id:[0-9]+}/thumbnails", h.RemoveThumbnails).Methods(http.MethodDelete)
	api.HandleFunc("/entries/{id:[0-9]+}/thumbnails/{name}", h.GetThumbnail).Methods(http.MethodGet)
}
