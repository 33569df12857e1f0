package handlers

import (
	"fmt"
	"net/http"

	"thumbnailfield/internal/logging"
	"thumbnailfield/internal/startup"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// VersionResponse is the build information plus the fingerprint of every
// declared thumbnail chain. A changed fingerprint means stored thumbnails
// of that name were produced by a different declaration.
type VersionResponse struct {
	startup.BuildInfo
	FilenameTemplate string            `json:"filenameTemplate"`
	Patterns         map[string]string `json:"patterns"`
}

// GetVersion returns the application version and pattern fingerprints
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	field := h.entries.Field()
	resp := VersionResponse{
		BuildInfo:        startup.GetBuildInfo(),
		FilenameTemplate: string(field.Settings().FilenameTemplate),
		Patterns:         make(map[string]string, len(field.Names())),
	}
	for _, name := range field.Names() {
		if chain, ok := field.Chain(name); ok {
			resp.Patterns[name] = chain.Fingerprint()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, resp)
}

// MetricsHandler returns the Prometheus handler for the default registry,
// counting its own scrapes.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorLog:      promLogger{},
			ErrorHandling: promhttp.ContinueOnError,
		}),
	)
}

// promLogger routes promhttp errors to the application log.
type promLogger struct{}

func (promLogger) Println(v ...interface{}) {
	logging.Error("metrics: %s", fmt.Sprint(v...))
}
