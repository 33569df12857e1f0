package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"thumbnailfield/internal/logging"
	"thumbnailfield/internal/naming"

	"github.com/google/uuid"
)

// Config configures a FileSystem store.
type Config struct {
	// Root is the directory keys are resolved against. It is created if
	// missing.
	Root string
	// BaseURL is prefixed to keys by URL.
	BaseURL string
	// Volume labels metrics. Defaults to "media".
	Volume string
	// Retry configures NFS stale handle retries. Zero value uses
	// DefaultRetryConfig.
	Retry RetryConfig
}

// FileSystem stores objects as files under a root directory.
type FileSystem struct {
	root    string
	baseURL string
	volume  string
	retry   RetryConfig

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

var _ Storage = (*FileSystem)(nil)

// NewFileSystem creates the root directory if needed and returns a store
// rooted there.
func NewFileSystem(cfg Config) (*FileSystem, error) {
	if cfg.Root == "" {
		return nil, errors.New("storage root required")
	}

	abs, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	volume := cfg.Volume
	if volume == "" {
		volume = "media"
	}
	retry := cfg.Retry
	if retry == (RetryConfig{}) {
		retry = DefaultRetryConfig()
	}

	return &FileSystem{
		root:    abs,
		baseURL: cfg.BaseURL,
		volume:  volume,
		retry:   retry,
		locks:   make(map[string]*entryLock),
	}, nil
}

// Root returns the absolute root directory.
func (s *FileSystem) Root() string {
	return s.root
}

// CleanKey normalises key to the slash-separated form the store uses,
// rejecting keys that are empty or would escape the root.
func CleanKey(key string) (string, error) {
	if strings.ContainsRune(key, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	key = filepath.ToSlash(key)
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if cleaned == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// Path returns the absolute file path for key.
func (s *FileSystem) Path(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// URL returns BaseURL joined with the escaped key.
func (s *FileSystem) URL(key string) string {
	cleaned, err := CleanKey(key)
	if err != nil {
		cleaned = strings.TrimPrefix(key, "/")
	}
	escaped := (&url.URL{Path: cleaned}).EscapedPath()
	return strings.TrimRight(s.baseURL, "/") + "/" + escaped
}

func (s *FileSystem) observeOp(op string, start time.Time, err error) {
	if obs := observe(); obs != nil {
		obs.ObserveOperation(s.volume, op, time.Since(start).Seconds(), err)
	}
}

// Exists reports whether key is stored as a regular file.
func (s *FileSystem) Exists(ctx context.Context, key string) (exists bool, err error) {
	start := time.Now()
	defer func() { s.observeOp("exists", start, err) }()

	if err := ctx.Err(); err != nil {
		return false, err
	}
	filePath, err := s.Path(key)
	if err != nil {
		return false, err
	}
	info, err := StatWithRetry(filePath, s.volume, s.retry)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// Size returns the size of the file stored under key.
func (s *FileSystem) Size(ctx context.Context, key string) (size int64, err error) {
	start := time.Now()
	defer func() { s.observeOp("size", start, err) }()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	filePath, err := s.Path(key)
	if err != nil {
		return 0, err
	}
	info, err := StatWithRetry(filePath, s.volume, s.retry)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return info.Size(), nil
}

// Open opens the file stored under key for reading.
func (s *FileSystem) Open(ctx context.Context, key string) (rc io.ReadCloser, err error) {
	start := time.Now()
	defer func() { s.observeOp("open", start, err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filePath, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	f, err := OpenWithRetry(filePath, s.volume, s.retry)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return f, nil
}

// Save writes r to a temporary file beside the target and renames it into
// place.
func (s *FileSystem) Save(ctx context.Context, key string, r io.Reader, overwrite bool) (saved string, err error) {
	start := time.Now()
	defer func() { s.observeOp("save", start, err) }()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}

	for {
		unlock := s.lockEntry(cleaned)
		filePath := filepath.Join(s.root, filepath.FromSlash(cleaned))

		if !overwrite {
			if _, statErr := os.Lstat(filePath); statErr == nil {
				unlock()
				next := alternateKey(cleaned)
				logging.Debug("Storage key %s is taken, trying %s", cleaned, next)
				cleaned = next
				continue
			}
		}

		err = s.writeFile(ctx, filePath, r)
		unlock()
		if err != nil {
			return "", fmt.Errorf("save %s: %w", cleaned, err)
		}
		return cleaned, nil
	}
}

func (s *FileSystem) writeFile(ctx context.Context, filePath string, r io.Reader) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, err = copyWithContext(ctx, tmp, r)
	if err == nil {
		err = tmp.Chmod(0o644)
	}
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, filePath); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Delete removes key. A missing key is not an error.
func (s *FileSystem) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() { s.observeOp("delete", start, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}

	unlock := s.lockEntry(cleaned)
	defer unlock()

	filePath := filepath.Join(s.root, filepath.FromSlash(cleaned))
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", cleaned, err)
	}
	return nil
}

func (s *FileSystem) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// alternateKey inserts a short random suffix before the extension.
func alternateKey(key string) string {
	dir, file := path.Split(key)
	stem, ext := naming.SplitExt(file)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return dir + stem + "_" + suffix + ext
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
