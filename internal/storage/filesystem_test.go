package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *FileSystem {
	t.Helper()
	s, err := NewFileSystem(Config{Root: t.TempDir(), BaseURL: "/media/", Retry: fastRetry()})
	if err != nil {
		t.Fatalf("NewFileSystem() error = %v", err)
	}
	return s
}

func readKey(t *testing.T, s Storage, key string) string {
	t.Helper()
	rc, err := s.Open(context.Background(), key)
	if err != nil {
		t.Fatalf("Open(%q) error = %v", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestNewFileSystem_RequiresRoot(t *testing.T) {
	if _, err := NewFileSystem(Config{}); err == nil {
		t.Error("NewFileSystem() with empty root should fail")
	}
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{"cat.png", "cat.png", false},
		{"entries/cat.png", "entries/cat.png", false},
		{"/some/where/test.png", "some/where/test.png", false},
		{"a//b/./c.png", "a/b/c.png", false},
		{"../etc/passwd", "", true},
		{"a/../../b", "", true},
		{"", "", true},
		{"/", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := CleanKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CleanKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidKey) {
				t.Errorf("CleanKey(%q) error = %v, want ErrInvalidKey", tt.key, err)
			}
			if got != tt.want {
				t.Errorf("CleanKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestSaveExistsOpenDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	obs := useObserver(t)

	exists, err := s.Exists(ctx, "entries/cat.png")
	if err != nil || exists {
		t.Fatalf("Exists() before save = %v, %v", exists, err)
	}

	key, err := s.Save(ctx, "entries/cat.png", strings.NewReader("meow"), true)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if key != "entries/cat.png" {
		t.Errorf("Save() key = %q", key)
	}

	if exists, _ := s.Exists(ctx, key); !exists {
		t.Error("Exists() after save = false")
	}
	if got := readKey(t, s, key); got != "meow" {
		t.Errorf("content = %q", got)
	}
	if size, err := s.Size(ctx, key); err != nil || size != 4 {
		t.Errorf("Size() = %d, %v", size, err)
	}

	p, _ := s.Path(key)
	info, err := os.Stat(p)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("file mode = %v, want 0644", info.Mode().Perm())
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if exists, _ := s.Exists(ctx, key); exists {
		t.Error("Exists() after delete = true")
	}
	if obs.ops["save"] != 1 || obs.ops["delete"] != 1 || obs.ops["exists"] != 3 {
		t.Errorf("observed ops = %v", obs.ops)
	}
}

func TestSaveOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Save(ctx, "a.png", strings.NewReader("one"), true); err != nil {
		t.Fatal(err)
	}
	key, err := s.Save(ctx, "a.png", strings.NewReader("two"), true)
	if err != nil {
		t.Fatal(err)
	}
	if key != "a.png" {
		t.Errorf("overwrite key = %q, want a.png", key)
	}
	if got := readKey(t, s, "a.png"); got != "two" {
		t.Errorf("content = %q, want two", got)
	}
}

func TestSaveWithoutOverwriteRenames(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Save(ctx, "photos/a.png", strings.NewReader("one"), false); err != nil {
		t.Fatal(err)
	}
	key, err := s.Save(ctx, "photos/a.png", strings.NewReader("two"), false)
	if err != nil {
		t.Fatal(err)
	}

	if !regexp.MustCompile(`^photos/a_[0-9a-f]{8}\.png$`).MatchString(key) {
		t.Errorf("renamed key = %q", key)
	}
	if got := readKey(t, s, "photos/a.png"); got != "one" {
		t.Errorf("original content = %q, want one", got)
	}
	if got := readKey(t, s, key); got != "two" {
		t.Errorf("renamed content = %q, want two", got)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Save(ctx, "x/y.png", strings.NewReader("data"), true); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(filepath.Join(s.Root(), "x"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "y.png" {
		t.Errorf("directory entries = %v", entries)
	}
}

func TestSaveCanceledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Save(ctx, "a.png", strings.NewReader("x"), true); !errors.Is(err, context.Canceled) {
		t.Errorf("Save() error = %v, want context.Canceled", err)
	}
}

func TestDeleteMissingIsNoop(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 2; i++ {
		if err := s.Delete(context.Background(), "never/saved.png"); err != nil {
			t.Errorf("Delete() #%d error = %v", i, err)
		}
	}
}

func TestOpenMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Open(context.Background(), "missing.png")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Open() error = %v, want ErrNotFound", err)
	}
	_, err = s.Size(context.Background(), "missing.png")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Size() error = %v, want ErrNotFound", err)
	}
}

func TestPathAndURL(t *testing.T) {
	s := newTestStore(t)

	p, err := s.Path("entries/my cat.png")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(s.Root(), "entries", "my cat.png"); p != want {
		t.Errorf("Path() = %q, want %q", p, want)
	}
	if _, err := s.Path("../outside.png"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Path() escaping root error = %v", err)
	}

	if got := s.URL("entries/my cat.png"); got != "/media/entries/my%20cat.png" {
		t.Errorf("URL() = %q", got)
	}
}

func TestConcurrentSavesSameKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Save(ctx, "same.png", strings.NewReader("content"), true); err != nil {
				t.Errorf("Save() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := readKey(t, s, "same.png"); got != "content" {
		t.Errorf("content = %q", got)
	}
	if len(s.locks) != 0 {
		t.Errorf("locks not released: %d", len(s.locks))
	}
}
