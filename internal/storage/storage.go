package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound is returned when a key has no stored object.
	ErrNotFound = errors.New("storage: object not found")

	// ErrInvalidKey is returned for empty keys or keys escaping the root.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Storage is a key/value object store for image files.
type Storage interface {
	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Save writes the content of r under key and returns the key actually
	// used. With overwrite false an existing key is left untouched and a
	// fresh key is chosen.
	Save(ctx context.Context, key string, r io.Reader, overwrite bool) (string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Open returns a reader for key, or ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Size returns the stored size of key in bytes, or ErrNotFound.
	Size(ctx context.Context, key string) (int64, error)

	// Path returns the local filesystem path for key.
	Path(key string) (string, error)

	// URL returns the public URL for key.
	URL(key string) string
}
