package imagefield

import (
	"context"
	"io"

	"thumbnailfield/internal/codec"
	"thumbnailfield/internal/storage"
)

// ArtifactRef points at a stored image: the original or one of its
// thumbnails. Dimensions are read lazily when the ref was built from an
// artifact already in storage.
type ArtifactRef struct {
	Name string
	Key  string
	// Source tells where Get found the artifact.
	Source string

	store storage.Storage
	dims  *codec.Dimensions
}

// Values of ArtifactRef.Source.
const (
	SourceMemory    = "memory"
	SourceStorage   = "storage"
	SourceGenerated = "generated"
	SourceOriginal  = "original"
)

func newRef(name, key, source string, store storage.Storage, dims *codec.Dimensions) *ArtifactRef {
	return &ArtifactRef{Name: name, Key: key, Source: source, store: store, dims: dims}
}

// Path returns the local filesystem path of the artifact.
func (r *ArtifactRef) Path() (string, error) {
	return r.store.Path(r.Key)
}

// URL returns the public URL of the artifact.
func (r *ArtifactRef) URL() string {
	return r.store.URL(r.Key)
}

// Open opens the stored artifact for reading.
func (r *ArtifactRef) Open(ctx context.Context) (io.ReadCloser, error) {
	return r.store.Open(ctx, r.Key)
}

// Size returns the stored size in bytes.
func (r *ArtifactRef) Size(ctx context.Context) (int64, error) {
	return r.store.Size(ctx, r.Key)
}

// Dimensions returns the image size, reading only the image header when it
// is not already known.
func (r *ArtifactRef) Dimensions(ctx context.Context) (codec.Dimensions, error) {
	if r.dims != nil {
		return *r.dims, nil
	}
	rc, err := r.store.Open(ctx, r.Key)
	if err != nil {
		return codec.Dimensions{}, err
	}
	defer rc.Close()

	dims, err := codec.DecodeDimensions(rc)
	if err != nil {
		return codec.Dimensions{}, err
	}
	r.dims = &dims
	return dims, nil
}
