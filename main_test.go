package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"thumbnailfield/internal/database"
	"thumbnailfield/internal/entries"
	"thumbnailfield/internal/handlers"
	"thumbnailfield/internal/naming"
	"thumbnailfield/internal/startup"
)

func testConfig(t *testing.T) *startup.Config {
	t.Helper()
	dir := t.TempDir()
	return &startup.Config{
		MediaDir:     filepath.Join(dir, "media"),
		MediaURL:     "/media/",
		DatabasePath: filepath.Join(dir, "test.db"),
		UploadTo:     "img",
		Thumbnails: startup.ThumbnailConfig{
			RemovePrevious:   true,
			FilenameTemplate: string(naming.DefaultTemplate),
		},
		Patterns: startup.PatternConfig{
			Thumbnails: map[string]any{
				"small": []any{32, 24, "resize"},
			},
		},
	}
}

func TestMediaPrefix(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"/media/", "/media/"},
		{"/media", "/media/"},
		{"media", "/media/"},
		{"/static/uploads/", "/static/uploads/"},
		{"https://cdn.example.com/media/", "/media/"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got := mediaPrefix(&startup.Config{MediaURL: tt.url})
			if got != tt.expected {
				t.Errorf("mediaPrefix(%q) = %q, want %q", tt.url, got, tt.expected)
			}
		})
	}
}

func TestNewField(t *testing.T) {
	config := testConfig(t)

	field, err := newField(config)
	if err != nil {
		t.Fatalf("newField() error = %v", err)
	}
	if names := field.Names(); len(names) != 1 || names[0] != "small" {
		t.Errorf("Names() = %v, want [small]", names)
	}

	config.Patterns.Thumbnails["broken"] = []any{32, 24, "no-such-transform"}
	if _, err := newField(config); err == nil {
		t.Error("newField() with unknown transform: expected error")
	}
}

func TestSetupRouterServesMedia(t *testing.T) {
	for _, metricsEnabled := range []bool{true, false} {
		config := testConfig(t)
		config.MetricsEnabled = metricsEnabled

		db, err := database.New(context.Background(), config.DatabasePath)
		if err != nil {
			t.Fatalf("database.New() error = %v", err)
		}
		defer db.Close()

		field, err := newField(config)
		if err != nil {
			t.Fatalf("newField() error = %v", err)
		}
		svc := entries.NewService(db, field, config.UploadTo)
		handler := wrapMiddleware(setupRouter(handlers.New(db, svc, config), config), config)

		img := image.NewRGBA(image.Rect(0, 0, 64, 48))
		for i := range img.Pix {
			img.Pix[i] = 200
		}
		img.Set(0, 0, color.Black)
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			t.Fatal(err)
		}
		rec, err := svc.Create(context.Background(), "photo", "", &entries.Upload{Filename: "photo.png", Content: &buf})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		// The API generates the thumbnail, the media route serves it
		ref, err := rec.Image.Get(context.Background(), "small", false)
		if err != nil {
			t.Fatalf("Get(small) error = %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, ref.URL(), http.NoBody)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", ref.URL(), w.Code)
		}
		decoded, err := png.Decode(w.Body)
		if err != nil {
			t.Fatalf("decode served thumbnail: %v", err)
		}
		if b := decoded.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
			t.Errorf("served thumbnail = %dx%d, want 32x24", b.Dx(), b.Dy())
		}

		req = httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		want := http.StatusNotFound
		if metricsEnabled {
			want = http.StatusOK
		}
		if w.Code != want {
			t.Errorf("metrics=%v: GET /metrics status = %d, want %d", metricsEnabled, w.Code, want)
		}
	}
}
