package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"thumbnailfield/internal/database"
	"thumbnailfield/internal/entries"
	"thumbnailfield/internal/imagefield"
	"thumbnailfield/internal/logging"
)

// ThumbnailView describes one named thumbnail of an entry image.
type ThumbnailView struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ImageView describes an entry image and its thumbnails.
type ImageView struct {
	Key        string                   `json:"key"`
	URL        string                   `json:"url"`
	Width      int                      `json:"width,omitempty"`
	Height     int                      `json:"height,omitempty"`
	Thumbnails map[string]ThumbnailView `json:"thumbnails"`
}

// EntryView is the JSON form of an entry.
type EntryView struct {
	database.Entry
	Image *ImageView `json:"image,omitempty"`
}

// EntryListView is one page of entries.
type EntryListView struct {
	Items      []EntryView `json:"items"`
	TotalItems int         `json:"totalItems"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
}

// entryView renders rec. With materialize set every thumbnail is generated
// if needed and its dimensions are included; otherwise only URLs are
// derived.
func (h *Handlers) entryView(ctx context.Context, rec *entries.Record, materialize bool) EntryView {
	view := EntryView{Entry: *rec.Entry}
	if !rec.Image.HasOriginal() {
		return view
	}

	field := rec.Image.Field()
	store := field.Storage()
	key := rec.Image.Key()
	img := &ImageView{
		Key:        key,
		URL:        store.URL(key),
		Width:      rec.Entry.ImageWidth,
		Height:     rec.Entry.ImageHeight,
		Thumbnails: make(map[string]ThumbnailView, len(field.Names())),
	}

	for _, name := range field.Names() {
		if !materialize {
			img.Thumbnails[name] = ThumbnailView{URL: store.URL(field.DerivedKey(key, name))}
			continue
		}
		ref, err := rec.Image.Get(ctx, name, false)
		if err != nil {
			img.Thumbnails[name] = ThumbnailView{URL: store.URL(field.DerivedKey(key, name)), Error: err.Error()}
			continue
		}
		tv := ThumbnailView{URL: ref.URL()}
		if dims, err := ref.Dimensions(ctx); err == nil {
			tv.Width, tv.Height = dims.Width, dims.Height
		}
		img.Thumbnails[name] = tv
	}

	view.Image = img
	return view
}

// ListEntries returns a page of entries with thumbnail URLs.
func (h *Handlers) ListEntries(w http.ResponseWriter, r *http.Request) {
	opts := database.ListOptions{Page: 1, PageSize: 50}
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && page > 0 {
		opts.Page = page
	}
	if pageSize, err := strconv.Atoi(r.URL.Query().Get("pageSize")); err == nil && pageSize > 0 {
		opts.PageSize = pageSize
	}

	list, err := h.entries.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, "ListEntries", err)
		return
	}

	view := EntryListView{
		Items:      make([]EntryView, 0, len(list.Items)),
		TotalItems: list.TotalItems,
		Page:       list.Page,
		PageSize:   list.PageSize,
		TotalPages: list.TotalPages,
	}
	for i := range list.Items {
		view.Items = append(view.Items, h.entryView(r.Context(), h.entries.Open(&list.Items[i]), false))
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, view)
}

// readUpload parses a multipart body and returns the "image" part, or nil
// when there is none.
func (h *Handlers) readUpload(w http.ResponseWriter, r *http.Request) (*entries.Upload, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, func() {}, r.ParseForm()
		}
		return nil, func() {}, err
	}
	cleanup := func() {
		if r.MultipartForm != nil {
			if err := r.MultipartForm.RemoveAll(); err != nil {
				logging.Warn("failed to remove multipart temp files: %v", err)
			}
		}
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, cleanup, nil
	}
	if err != nil {
		return nil, cleanup, err
	}
	return &entries.Upload{Filename: header.Filename, Content: file}, func() {
		closeUpload(file)
		cleanup()
	}, nil
}

func closeUpload(f multipart.File) {
	if err := f.Close(); err != nil {
		logging.Warn("failed to close upload: %v", err)
	}
}

func writeUploadError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeJSONError(w, "upload too large", http.StatusRequestEntityTooLarge)
		return
	}
	writeJSONError(w, "invalid multipart body: "+err.Error(), http.StatusBadRequest)
}

// CreateEntry creates an entry from a multipart form with title, body and
// an optional image.
func (h *Handlers) CreateEntry(w http.ResponseWriter, r *http.Request) {
	upload, done, err := h.readUpload(w, r)
	defer done()
	if err != nil {
		writeUploadError(w, err)
		return
	}

	rec, err := h.entries.Create(r.Context(), r.FormValue("title"), r.FormValue("body"), upload)
	if err != nil {
		writeServiceError(w, "CreateEntry", err)
		return
	}

	w.Header().Set("Location", "/api/entries/"+strconv.FormatInt(rec.Entry.ID, 10))
	writeJSONStatusCode(w, http.StatusCreated, h.entryView(r.Context(), rec, false))
}

// GetEntry returns an entry with every thumbnail generated.
func (h *Handlers) GetEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(r)
	if !ok {
		writeJSONError(w, "invalid entry id", http.StatusBadRequest)
		return
	}
	rec, err := h.entries.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, "GetEntry", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.entryView(r.Context(), rec, true))
}

type updateEntryRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// UpdateEntry changes the title and body of an entry.
func (h *Handlers) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(r)
	if !ok {
		writeJSONError(w, "invalid entry id", http.StatusBadRequest)
		return
	}
	var req updateEntryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	rec, err := h.entries.Update(r.Context(), id, req.Title, req.Body)
	if err != nil {
		writeServiceError(w, "UpdateEntry", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.entryView(r.Context(), rec, false))
}

// DeleteEntry removes an entry with its image and thumbnails.
func (h *Handlers) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(r)
	if !ok {
		writeJSONError(w, "invalid entry id", http.StatusBadRequest)
		return
	}
	if err := h.entries.Delete(r.Context(), id); err != nil {
		writeServiceError(w, "DeleteEntry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReplaceImage stores a new image for an entry.
func (h *Handlers) ReplaceImage(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(r)
	if !ok {
		writeJSONError(w, "invalid entry id", http.StatusBadRequest)
		return
	}
	upload, done, err := h.readUpload(w, r)
	defer done()
	if err != nil {
		writeUploadError(w, err)
		return
	}
	if upload == nil {
		writeJSONError(w, "image is required", http.StatusBadRequest)
		return
	}

	rec, err := h.entries.ReplaceImage(r.Context(), id, upload)
	if err != nil {
		writeServiceError(w, "ReplaceImage", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.entryView(r.Context(), rec, false))
}

// RemoveImage deletes an entry's image and thumbnails.
func (h *Handlers) RemoveImage(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(r)
	if !ok {
		writeJSONError(w, "invalid entry id", http.StatusBadRequest)
		return
	}
	rec, err := h.entries.RemoveImage(r.Context(), id)
	if err != nil {
		writeServiceError(w, "RemoveImage", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.entryView(r.Context(), rec, false))
}

// batchFailure is returned when some thumbnails could not be regenerated.
type batchFailure struct {
	Error  string   `json:"error"`
	Failed []string `json:"failed"`
}

// RefreshThumbnails regenerates every thumbnail of an entry.
func (h *Handlers) RefreshThumbnails(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(r)
	if !ok {
		writeJSONError(w, "invalid entry id", http.StatusBadRequest)
		return
	}
	rec, err := h.entries.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, "RefreshThumbnails", err)
		return
	}

	if err := h.mem.Wait(r.Context()); err != nil {
		logging.Warn("RefreshThumbnails: entry %d: %v", id, err)
		writeJSONError(w, "server is low on memory, try again later", http.StatusServiceUnavailable)
		return
	}

	if err := rec.Image.UpdateAll(r.Context()); err != nil {
		var batch *imagefield.BatchMaterializationError
		if errors.As(err, &batch) {
			logging.Warn("RefreshThumbnails: entry %d: %v", id, err)
			writeJSONStatusCode(w, http.StatusBadGateway, batchFailure{Error: err.Error(), Failed: batch.Names()})
			return
		}
		writeServiceError(w, "RefreshThumbnails", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.entryView(r.Context(), rec, true))
}

// RemoveThumbnails deletes every stored thumbnail of an entry. They are
// generated again on the next request.
func (h *Handlers) RemoveThumbnails(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(r)
	if !ok {
		writeJSONError(w, "invalid entry id", http.StatusBadRequest)
		return
	}
	rec, err := h.entries.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, "RemoveThumbnails", err)
		return
	}
	if err := rec.Image.RemoveAll(r.Context(), false); err != nil {
		writeServiceError(w, "RemoveThumbnails", err)
		return
	}
	writeJSONStatus(w, "removed")
}
