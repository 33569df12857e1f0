package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"thumbnailfield/internal/database"
	"thumbnailfield/internal/entries"
	"thumbnailfield/internal/imagefield"
	"thumbnailfield/internal/memory"
	"thumbnailfield/internal/middleware"
	"thumbnailfield/internal/pattern"
	"thumbnailfield/internal/storage"

	"github.com/gorilla/mux"
)

type testServer struct {
	h      *Handlers
	router *mux.Router
	store  *storage.FileSystem
	db     *database.Database
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	db, err := database.New(context.Background(), filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewFileSystem(storage.Config{Root: filepath.Join(dir, "media"), BaseURL: "/media/"})
	if err != nil {
		t.Fatal(err)
	}

	field, err := imagefield.NewField(pattern.Context{DeclaringType: "Entry", Field: "thumbnail"}, map[string]any{
		"large": []any{pattern.Tuple(64, 48, "resize")},
		"small": pattern.Tuple(32, 24, "crop", map[string]any{"left": 0, "upper": 0}),
		"tiny":  pattern.Tuple(16, 12),
	}, store, imagefield.DefaultSettings())
	if err != nil {
		t.Fatalf("NewField() error = %v", err)
	}

	h := New(db, entries.NewService(db, field, "img/thumbnails"), nil)
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return &testServer{h: h, router: router, store: store, db: db}
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 3), G: uint8(y * 3), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// multipartBody builds a form with the given fields and, when filename is
// set, an "image" part.
func multipartBody(t *testing.T, fields map[string]string, filename string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		part, err := mw.CreateFormFile("image", filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func (s *testServer) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = http.NoBody
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createEntry(t *testing.T, title, filename string, width, height int) EntryView {
	t.Helper()
	var data []byte
	if filename != "" {
		data = pngBytes(t, width, height)
	}
	body, ct := multipartBody(t, map[string]string{"title": title, "body": "text"}, filename, data)
	w := s.do(t, http.MethodPost, "/api/entries", body, ct)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var view EntryView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	return view
}

func (s *testServer) exists(t *testing.T, key string) bool {
	t.Helper()
	ok, err := s.store.Exists(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	return ok
}

func TestCreateEntry(t *testing.T) {
	s := newTestServer(t)

	view := s.createEntry(t, "hello", "cat.png", 80, 60)
	if view.ID == 0 || view.Title != "hello" {
		t.Errorf("view = %+v", view.Entry)
	}
	if view.Image == nil {
		t.Fatal("view.Image is nil")
	}
	if view.Image.URL != "/media/img/thumbnails/cat.png" {
		t.Errorf("Image.URL = %q", view.Image.URL)
	}
	if view.Image.Width != 80 || view.Image.Height != 60 {
		t.Errorf("Image size = %dx%d", view.Image.Width, view.Image.Height)
	}
	if got := view.Image.Thumbnails["small"].URL; got != "/media/img/thumbnails/cat.small.png" {
		t.Errorf("small URL = %q", got)
	}
	// Creating does not generate thumbnails
	if s.exists(t, "img/thumbnails/cat.small.png") {
		t.Error("thumbnail generated on create")
	}
}

func TestCreateEntryErrors(t *testing.T) {
	s := newTestServer(t)
	s.createEntry(t, "taken", "", 0, 0)

	tests := []struct {
		name     string
		fields   map[string]string
		filename string
		data     []byte
		want     int
	}{
		{"missing title", map[string]string{"body": "x"}, "", nil, http.StatusBadRequest},
		{"duplicate title", map[string]string{"title": "taken"}, "", nil, http.StatusConflict},
		{"not an image", map[string]string{"title": "a"}, "cat.png", []byte("hello"), http.StatusBadRequest},
		{"unsupported extension", map[string]string{"title": "b"}, "cat.txt", pngBytes(t, 4, 4), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.fields, tt.filename, tt.data)
			w := s.do(t, http.MethodPost, "/api/entries", body, ct)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestCreateEntryURLEncoded(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/entries", strings.NewReader("title=plain&body=text"), "application/x-www-form-urlencoded")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestGetEntryMaterializesThumbnails(t *testing.T) {
	s := newTestServer(t)
	created := s.createEntry(t, "hello", "cat.png", 80, 60)

	w := s.do(t, http.MethodGet, "/api/entries/"+itoa(created.ID), nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var view EntryView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}

	want := map[string][2]int{"large": {64, 48}, "small": {32, 24}, "tiny": {16, 12}}
	for name, size := range want {
		tv := view.Image.Thumbnails[name]
		if tv.Error != "" {
			t.Errorf("%s error = %s", name, tv.Error)
		}
		if tv.Width != size[0] || tv.Height != size[1] {
			t.Errorf("%s = %dx%d, want %dx%d", name, tv.Width, tv.Height, size[0], size[1])
		}
	}
	if !s.exists(t, "img/thumbnails/cat.tiny.png") {
		t.Error("tiny thumbnail not stored after GET")
	}
}

func TestGetEntryNotFound(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/entries/999", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetThumbnail(t *testing.T) {
	s := newTestServer(t)
	created := s.createEntry(t, "hello", "cat.png", 80, 60)
	base := "/api/entries/" + itoa(created.ID) + "/thumbnails/"

	w := s.do(t, http.MethodGet, base+"small", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := w.Header().Get(middleware.ThumbnailHeader); got != "small" {
		t.Errorf("%s = %q, want small", middleware.ThumbnailHeader, got)
	}
	if got := w.Header().Get(middleware.ThumbnailSourceHeader); got != imagefield.SourceGenerated {
		t.Errorf("%s = %q, want %q", middleware.ThumbnailSourceHeader, got, imagefield.SourceGenerated)
	}
	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("response is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
		t.Errorf("small = %dx%d, want 32x24", b.Dx(), b.Dy())
	}

	w = s.do(t, http.MethodGet, base+"original", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("original status = %d", w.Code)
	}
	if got := w.Header().Get(middleware.ThumbnailSourceHeader); got != imagefield.SourceOriginal {
		t.Errorf("original source = %q, want %q", got, imagefield.SourceOriginal)
	}
	img, err = png.Decode(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 80 {
		t.Errorf("original width = %d, want 80", b.Dx())
	}

	if w := s.do(t, http.MethodGet, base+"huge", nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown name status = %d, want 404", w.Code)
	}
}

func TestGetThumbnailForce(t *testing.T) {
	s := newTestServer(t)
	created := s.createEntry(t, "hello", "cat.png", 80, 60)
	url := "/api/entries/" + itoa(created.ID) + "/thumbnails/tiny"

	if w := s.do(t, http.MethodGet, url, nil, ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	// Overwrite the stored thumbnail with something else
	ctx := context.Background()
	if _, err := s.store.Save(ctx, "img/thumbnails/cat.tiny.png", bytes.NewReader(pngBytes(t, 3, 3)), true); err != nil {
		t.Fatal(err)
	}

	w := s.do(t, http.MethodGet, url, nil, "")
	if got := w.Header().Get(middleware.ThumbnailSourceHeader); got != imagefield.SourceStorage {
		t.Errorf("stored thumbnail source = %q, want %q", got, imagefield.SourceStorage)
	}
	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 3 {
		t.Errorf("stored thumbnail should be served as is, got width %d", img.Bounds().Dx())
	}

	w = s.do(t, http.MethodGet, url+"?force=1", nil, "")
	if got := w.Header().Get(middleware.ThumbnailSourceHeader); got != imagefield.SourceGenerated {
		t.Errorf("forced thumbnail source = %q, want %q", got, imagefield.SourceGenerated)
	}
	img, err = png.Decode(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 16 {
		t.Errorf("forced thumbnail width = %d, want 16", img.Bounds().Dx())
	}
}

func TestGetThumbnailWithoutImage(t *testing.T) {
	s := newTestServer(t)
	created := s.createEntry(t, "text only", "", 0, 0)
	w := s.do(t, http.MethodGet, "/api/entries/"+itoa(created.ID)+"/thumbnails/small", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestReplaceImage(t *testing.T) {
	s := newTestServer(t)
	created := s.createEntry(t, "hello", "old.png", 80, 60)
	id := itoa(created.ID)

	if w := s.do(t, http.MethodGet, "/api/entries/"+id+"/thumbnails/tiny", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	body, ct := multipartBody(t, nil, "new.png", pngBytes(t, 40, 40))
	w := s.do(t, http.MethodPut, "/api/entries/"+id+"/image", body, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("replace status = %d, body = %s", w.Code, w.Body.String())
	}
	var view EntryView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.ImageKey != "img/thumbnails/new.png" {
		t.Errorf("ImageKey = %q", view.ImageKey)
	}
	if s.exists(t, "img/thumbnails/old.png") || s.exists(t, "img/thumbnails/old.tiny.png") {
		t.Error("previous image files not removed")
	}

	body, ct = multipartBody(t, nil, "", nil)
	if w := s.do(t, http.MethodPut, "/api/entries/"+id+"/image", body, ct); w.Code != http.StatusBadRequest {
		t.Errorf("replace without image status = %d, want 400", w.Code)
	}
}

func TestRemoveImage(t *testing.T) {
	s := newTestServer(t)
	created := s.createEntry(t, "hello", "cat.png", 20, 20)

	w := s.do(t, http.MethodDelete, "/api/entries/"+itoa(created.ID)+"/image", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var view EntryView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.Image != nil || view.ImageKey != "" {
		t.Errorf("image still set: %+v", view)
	}
	if s.exists(t, "img/thumbnails/cat.png") {
		t.Error("original not removed")
	}
}

func TestRefreshAndRemoveThumbnails(t *testing.T) {
	s := newTestServer(t)
	created := s.createEntry(t, "hello", "cat.png", 80, 60)
	base := "/api/entries/" + itoa(created.ID) + "/thumbnails"

	w := s.do(t, http.MethodPost, base, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body = %s", w.Code, w.Body.String())
	}
	for _, name := range []string{"large", "small", "tiny"} {
		if !s.exists(t, "img/thumbnails/cat."+name+".png") {
			t.Errorf("%s missing after refresh", name)
		}
	}

	w = s.do(t, http.MethodDelete, base, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("remove status = %d", w.Code)
	}
	for _, name := range []string{"large", "small", "tiny"} {
		if s.exists(t, "img/thumbnails/cat."+name+".png") {
			t.Errorf("%s still stored after remove", name)
		}
	}
	if !s.exists(t, "img/thumbnails/cat.png") {
		t.Error("original removed with thumbnails")
	}

	// Removing again is not an error
	if w := s.do(t, http.MethodDelete, base, nil, ""); w.Code != http.StatusOK {
		t.Errorf("second remove status = %d", w.Code)
	}
}

func TestRefreshThumbnailsWithoutImage(t *testing.T) {
	s := newTestServer(t)
	created := s.createEntry(t, "text only", "", 0, 0)
	w := s.do(t, http.MethodPost, "/api/entries/"+itoa(created.ID)+"/thumbnails", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRefreshThumbnailsWaitsOnMemory(t *testing.T) {
	s := newTestServer(t)
	created := s.createEntry(t, "pressure", "cat.png", 40, 30)

	// A one byte limit keeps the monitor paused
	mon := memory.NewMonitor(memory.Config{LimitBytes: 1})
	mon.Start()
	t.Cleanup(mon.Stop)
	s.h.SetMemoryMonitor(mon)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/entries/"+itoa(created.ID)+"/thumbnails", http.NoBody).WithContext(ctx)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if s.exists(t, "img/thumbnails/cat.small.png") {
		t.Error("thumbnail generated while memory was paused")
	}

	w = s.do(t, http.MethodGet, "/health", nil, "")
	var health HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Memory == nil || !health.Memory.Paused {
		t.Errorf("health memory = %+v, want paused", health.Memory)
	}
}

func TestUpdateEntry(t *testing.T) {
	s := newTestServer(t)
	created := s.createEntry(t, "draft", "", 0, 0)
	url := "/api/entries/" + itoa(created.ID)

	w := s.do(t, http.MethodPut, url, strings.NewReader(`{"title":"final","body":"done"}`), "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var view EntryView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.Title != "final" || view.Body != "done" {
		t.Errorf("view = %+v", view.Entry)
	}

	if w := s.do(t, http.MethodPut, url, strings.NewReader(`{`), "application/json"); w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want 400", w.Code)
	}
}

func TestDeleteEntry(t *testing.T) {
	s := newTestServer(t)
	created := s.createEntry(t, "hello", "cat.png", 40, 30)
	url := "/api/entries/" + itoa(created.ID)

	if w := s.do(t, http.MethodGet, url+"/thumbnails/small", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	if w := s.do(t, http.MethodDelete, url, nil, ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if s.exists(t, "img/thumbnails/cat.png") || s.exists(t, "img/thumbnails/cat.small.png") {
		t.Error("files left after delete")
	}
	if w := s.do(t, http.MethodDelete, url, nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestListEntries(t *testing.T) {
	s := newTestServer(t)
	s.createEntry(t, "one", "one.png", 20, 20)
	s.createEntry(t, "two", "", 0, 0)
	s.createEntry(t, "three", "three.png", 20, 20)

	w := s.do(t, http.MethodGet, "/api/entries?pageSize=2", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var list EntryListView
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if list.TotalItems != 3 || list.TotalPages != 2 || len(list.Items) != 2 {
		t.Errorf("list = total %d pages %d items %d", list.TotalItems, list.TotalPages, len(list.Items))
	}
	if list.Items[0].Title != "three" {
		t.Errorf("first item = %q, want newest first", list.Items[0].Title)
	}
	// Listing never generates thumbnails
	if s.exists(t, "img/thumbnails/three.small.png") {
		t.Error("list generated a thumbnail")
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	s.createEntry(t, "one", "one.png", 20, 20)

	w := s.do(t, http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != statusHealthy {
		t.Errorf("Status = %q", resp.Status)
	}
	if resp.TotalEntries != 1 || resp.EntriesWithImage != 1 {
		t.Errorf("stats = %d/%d", resp.TotalEntries, resp.EntriesWithImage)
	}
	if strings.Join(resp.Thumbnails, ",") != "large,small,tiny" {
		t.Errorf("Thumbnails = %v", resp.Thumbnails)
	}

	s.db.Close()
	if w := s.do(t, http.MethodGet, "/health", nil, ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status with closed database = %d, want 503", w.Code)
	}
}

func TestLivenessCheck(t *testing.T) {
	s := newTestServer(t)
	for _, method := range []string{http.MethodGet, http.MethodHead} {
		w := s.do(t, method, "/livez", nil, "")
		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d", method, w.Code)
		}
		if method == http.MethodHead && w.Body.Len() != 0 {
			t.Error("HEAD response has a body")
		}
	}
}

func TestGetVersion(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/version", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}

	var resp VersionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Version == "" {
		t.Error("version is empty")
	}
	if len(resp.Patterns) != 3 {
		t.Fatalf("patterns = %v, want 3 entries", resp.Patterns)
	}
	if resp.Patterns["small"] == "" || resp.Patterns["small"] == resp.Patterns["tiny"] {
		t.Errorf("fingerprints = %v, want distinct non-empty values", resp.Patterns)
	}
	if resp.FilenameTemplate != "{root}/{filename}.{name}.{ext}" {
		t.Errorf("filenameTemplate = %q", resp.FilenameTemplate)
	}
}

func TestMetricsHandler(t *testing.T) {
	s := newTestServer(t)
	s.router.Handle("/metrics", s.h.MetricsHandler())

	w := s.do(t, http.MethodGet, "/metrics", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "promhttp_metric_handler_requests_total") {
		t.Error("scrape counter missing from output")
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
