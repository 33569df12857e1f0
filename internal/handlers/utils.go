package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"thumbnailfield/internal/codec"
	"thumbnailfield/internal/database"
	"thumbnailfield/internal/entries"
	"thumbnailfield/internal/imagefield"
	"thumbnailfield/internal/logging"
	"thumbnailfield/internal/pattern"

	"github.com/gorilla/mux"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONStatusCode writes v as JSON with the given status code.
func writeJSONStatusCode(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONStatusCode(w, statusCode, map[string]string{"error": message})
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": status})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var pce *pattern.PatternConfigurationError
	var me *imagefield.MaterializationError
	switch {
	case errors.Is(err, database.ErrNotFound),
		errors.Is(err, imagefield.ErrNoOriginal),
		errors.Is(err, imagefield.ErrUnknownThumbnail):
		return http.StatusNotFound
	case errors.Is(err, database.ErrDuplicateTitle):
		return http.StatusConflict
	case errors.Is(err, entries.ErrInvalidTitle),
		errors.Is(err, entries.ErrNotImage):
		return http.StatusBadRequest
	case errors.Is(err, codec.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &pce):
		return http.StatusInternalServerError
	case errors.As(err, &me):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs err and writes it with the matching status.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.Error("%s failed: %v", op, err)
	} else {
		logging.Debug("%s rejected: %v", op, err)
	}
	writeJSONError(w, err.Error(), status)
}

// entryID parses the {id} route variable.
func entryID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}
