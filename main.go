package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"thumbnailfield/internal/codec"
	"thumbnailfield/internal/database"
	"thumbnailfield/internal/entries"
	"thumbnailfield/internal/handlers"
	"thumbnailfield/internal/imagefield"
	"thumbnailfield/internal/logging"
	"thumbnailfield/internal/memory"
	"thumbnailfield/internal/metrics"
	"thumbnailfield/internal/middleware"
	"thumbnailfield/internal/pattern"
	"thumbnailfield/internal/startup"
	"thumbnailfield/internal/storage"

	"github.com/gorilla/mux"
)

// metricsInterval is how often entry gauges are refreshed.
const metricsInterval = time.Minute

func main() {
	startTime := time.Now()

	// Set GOMEMLIMIT before the first large allocation
	memory.ConfigureFromEnv()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	// libvips is optional; decoding falls back to pure Go
	vipsErr := codec.InitVips()
	startup.LogVipsInit(vipsErr)
	defer codec.ShutdownVips()

	build := startup.GetBuildInfo()
	metrics.SetAppInfo(build.Version, build.Commit, build.GoVersion)
	metrics.InitializeMetrics()
	storage.SetObserver(metrics.NewStorageObserver())

	// Initialize database
	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer db.Close()
	startup.LogDatabaseInit(time.Since(dbStart))

	field, err := newField(config)
	if err != nil {
		startup.LogFatal("Failed to initialize thumbnail field: %v", err)
	}
	startup.LogFieldInit(field)
	metrics.InitializeThumbnailNames(field.Names())

	svc := entries.NewService(db, field, config.UploadTo)
	h := handlers.New(db, svc, config)

	memMonitor := memory.NewMonitor(memory.DefaultConfig())
	memMonitor.Start()
	h.SetMemoryMonitor(memMonitor)

	router := setupRouter(h, config)
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	collector := metrics.NewCollector(db, metricsInterval)
	collector.Start()

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           wrapMiddleware(router, config),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start graceful shutdown handler
	go handleShutdown(srv, collector, memMonitor)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
}

// newField opens media storage and compiles the configured patterns.
func newField(config *startup.Config) (*imagefield.Field, error) {
	store, err := storage.NewFileSystem(storage.Config{
		Root:    config.MediaDir,
		BaseURL: config.MediaURL,
	})
	if err != nil {
		return nil, err
	}
	settings, err := config.FieldSettings()
	if err != nil {
		return nil, err
	}
	return imagefield.NewField(
		pattern.Context{DeclaringType: "Entry", Field: "thumbnail"},
		config.PatternDecls(),
		store,
		settings,
	)
}

// mediaPrefix is the local path media is served under. An absolute
// MEDIA_URL points at another host, so local files stay on /media/.
func mediaPrefix(config *startup.Config) string {
	if strings.Contains(config.MediaURL, "://") {
		return "/media/"
	}
	return "/" + strings.Trim(config.MediaURL, "/") + "/"
}

func setupRouter(h *handlers.Handlers, config *startup.Config) *mux.Router {
	r := mux.NewRouter()

	h.RegisterRoutes(r)

	if config.MetricsEnabled {
		r.Handle("/metrics", h.MetricsHandler()).Methods(http.MethodGet)
	}

	// Originals and thumbnails straight from the media directory
	prefix := mediaPrefix(config)
	r.PathPrefix(prefix).Handler(
		http.StripPrefix(prefix, http.FileServer(http.Dir(config.MediaDir))),
	).Methods(http.MethodGet, http.MethodHead)

	return r
}

func wrapMiddleware(router http.Handler, config *startup.Config) http.Handler {
	prefix := mediaPrefix(config)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.MediaPrefix = prefix
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Logger(loggingConfig)(router)

	if config.MetricsEnabled {
		metricsConfig := middleware.DefaultMetricsConfig()
		metricsConfig.MediaPrefix = prefix
		handler = middleware.Metrics(metricsConfig)(handler)
	}
	return handler
}

func handleShutdown(srv *http.Server, collector *metrics.Collector, memMonitor *memory.Monitor) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Stopping metrics collector")
	collector.Stop()
	startup.LogShutdownStepComplete("Metrics collector stopped")

	startup.LogShutdownStep("Stopping memory monitor")
	memMonitor.Stop()
	startup.LogShutdownStepComplete("Memory monitor stopped")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownComplete()
}
