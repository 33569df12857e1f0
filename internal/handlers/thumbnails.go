package handlers

import (
	"net/http"
	"strconv"

	"thumbnailfield/internal/imagefield"
	"thumbnailfield/internal/middleware"
	"thumbnailfield/internal/pattern"

	"github.com/gorilla/mux"
)

// originalName addresses the uploaded image in thumbnail URLs.
const originalName = "original"

// GetThumbnail serves a named thumbnail, generating it when it is not
// stored yet. ?force=1 regenerates it first.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(r)
	if !ok {
		writeJSONError(w, "invalid entry id", http.StatusBadRequest)
		return
	}
	name := mux.Vars(r)["name"]
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	rec, err := h.entries.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, "GetThumbnail", err)
		return
	}

	var ref *imagefield.ArtifactRef
	if name == originalName && !rec.Image.Field().Has(name) {
		ref, err = rec.Image.Get(r.Context(), pattern.Original, false)
	} else {
		ref, err = rec.Image.Get(r.Context(), name, force)
	}
	if err != nil {
		writeServiceError(w, "GetThumbnail", err)
		return
	}

	path, err := ref.Path()
	if err != nil {
		writeServiceError(w, "GetThumbnail", err)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(middleware.ThumbnailHeader, name)
	w.Header().Set(middleware.ThumbnailSourceHeader, ref.Source)
	http.ServeFile(w, r, path)
}
