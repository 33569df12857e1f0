package imagefield

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path"
	"strings"
	"time"

	"thumbnailfield/internal/codec"
	"thumbnailfield/internal/logging"
	"thumbnailfield/internal/metrics"
	"thumbnailfield/internal/naming"
	"thumbnailfield/internal/pattern"
	"thumbnailfield/internal/storage"

	"github.com/google/uuid"
)

// Attempts at finding an original key whose thumbnail keys are free
const maxKeyAttempts = 8

type cachedArtifact struct {
	ref *ArtifactRef
	// img is nil when the ref was built from an existing stored artifact.
	img image.Image
}

// File is one record's value of a Field. It memoizes the decoded original
// and every thumbnail it has looked up.
type File struct {
	field *Field
	owner Persister

	key      string
	original image.Image
	cache    map[string]*cachedArtifact
}

// Field returns the declaration this value belongs to.
func (f *File) Field() *Field { return f.field }

// Key returns the storage key of the original, or "" when there is none.
func (f *File) Key() string { return f.key }

// HasOriginal reports whether an original image is set.
func (f *File) HasOriginal() bool { return f.key != "" }

func (f *File) reset() {
	f.original = nil
	f.cache = make(map[string]*cachedArtifact)
}

func (f *File) persist(ctx context.Context) error {
	if f.owner == nil {
		return nil
	}
	if err := f.owner.Persist(ctx); err != nil {
		return fmt.Errorf("persist owner: %w", err)
	}
	return nil
}

// Original returns a ref to the original image.
func (f *File) Original() (*ArtifactRef, error) {
	if f.key == "" {
		return nil, ErrNoOriginal
	}
	var dims *codec.Dimensions
	if f.original != nil {
		b := f.original.Bounds()
		dims = &codec.Dimensions{Width: b.Dx(), Height: b.Dy()}
	}
	return newRef(pattern.Original, f.key, SourceOriginal, f.field.store, dims), nil
}

// Image returns the decoded original. It is decoded at most once per File.
func (f *File) Image(ctx context.Context) (image.Image, error) {
	if f.original != nil {
		return f.original, nil
	}
	if f.key == "" {
		return nil, ErrNoOriginal
	}

	rc, err := f.field.store.Open(ctx, f.key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	br := bufio.NewReader(rc)
	header, _ := br.Peek(12)
	format := codec.Sniff(header)
	metrics.ThumbnailImageDecodeByFormat.WithLabelValues(format).Inc()

	img, err := codec.Decode(br, codec.DecodeOptions{MaxPixels: f.field.settings.MaxImagePixels})
	if err != nil {
		return nil, err
	}
	logging.Debug("Decoded original %s (%s, %dx%d)", f.key, format, img.Bounds().Dx(), img.Bounds().Dy())
	f.original = img
	return img, nil
}

// Dimensions returns the width and height of the original.
func (f *File) Dimensions(ctx context.Context) (codec.Dimensions, error) {
	ref, err := f.Original()
	if err != nil {
		return codec.Dimensions{}, err
	}
	return ref.Dimensions(ctx)
}

// Get returns the thumbnail called name, generating and storing it if it
// is not in storage yet. force regenerates it regardless.
//
// Declaration problems are returned as *pattern.PatternConfigurationError.
// Failures while generating are returned as *MaterializationError.
func (f *File) Get(ctx context.Context, name string, force bool) (*ArtifactRef, error) {
	if name == pattern.Original {
		return f.Original()
	}
	if !f.field.Has(name) {
		return nil, fmt.Errorf("%w: %q [at %s]", ErrUnknownThumbnail, name, f.field.ctx)
	}
	if f.key == "" {
		return nil, ErrNoOriginal
	}

	if !force {
		if c, ok := f.cache[name]; ok {
			metrics.ThumbnailCacheLookups.WithLabelValues(SourceMemory).Inc()
			ref := *c.ref
			ref.Source = SourceMemory
			return &ref, nil
		}
	}

	key := f.field.DerivedKey(f.key, name)

	if force {
		metrics.ThumbnailCacheLookups.WithLabelValues("forced").Inc()
	} else {
		exists, err := f.field.store.Exists(ctx, key)
		if err != nil {
			metrics.ThumbnailMaterializationsTotal.WithLabelValues(name, "error_exists").Inc()
			return nil, &MaterializationError{Name: name, Key: key, Op: "exists", Err: err}
		}
		if exists {
			metrics.ThumbnailCacheLookups.WithLabelValues(SourceStorage).Inc()
			logging.Debug("Thumbnail %q for %s found in storage at %s", name, f.key, key)
			ref := newRef(name, key, SourceStorage, f.field.store, nil)
			f.cache[name] = &cachedArtifact{ref: ref}
			return ref, nil
		}
		metrics.ThumbnailCacheLookups.WithLabelValues("miss").Inc()
	}

	return f.materialize(ctx, name, key)
}

func (f *File) materialize(ctx context.Context, name, key string) (*ArtifactRef, error) {
	start := time.Now()
	chain := f.field.patterns[name]
	store := f.field.store

	fail := func(op string, err error) (*ArtifactRef, error) {
		metrics.ThumbnailMaterializationsTotal.WithLabelValues(name, "error_"+op).Inc()
		logging.Warn("Failed to materialize thumbnail %q for %s at %s: %v", name, f.key, op, err)
		return nil, &MaterializationError{Name: name, Key: key, Op: op, Err: err}
	}

	src, err := f.Image(ctx)
	if err != nil {
		return fail("decode", err)
	}

	// Checks run against the real image before any pixel work
	if err := chain.Check(f.field.ctx, name, src); err != nil {
		metrics.ThumbnailMaterializationsTotal.WithLabelValues(name, "error_config").Inc()
		return nil, err
	}

	out, err := chain.Apply(f.field.ctx, name, src)
	if err != nil {
		var pce *pattern.PatternConfigurationError
		if errors.As(err, &pce) {
			return nil, err
		}
		return fail("transform", err)
	}

	data, err := codec.Encode(out, naming.InferFormat(key), f.field.settings.SaveOptions)
	if err != nil {
		return fail("encode", err)
	}

	saved, err := store.Save(ctx, key, bytes.NewReader(data), true)
	if err != nil {
		return fail("save", err)
	}

	b := out.Bounds()
	dims := codec.Dimensions{Width: b.Dx(), Height: b.Dy()}
	ref := newRef(name, saved, SourceGenerated, store, &dims)
	f.cache[name] = &cachedArtifact{ref: ref, img: out}

	elapsed := time.Since(start)
	metrics.ThumbnailMaterializationsTotal.WithLabelValues(name, "success").Inc()
	metrics.ThumbnailMaterializationDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	logging.Debug("Materialized thumbnail %q for %s: %s %dx%d, %d bytes in %v",
		name, f.key, saved, dims.Width, dims.Height, len(data), elapsed)
	return ref, nil
}

// Thumbnail returns the decoded pixels of thumbnail name, generating it
// like Get when needed.
func (f *File) Thumbnail(ctx context.Context, name string, force bool) (image.Image, error) {
	if name == pattern.Original {
		return f.Image(ctx)
	}
	ref, err := f.Get(ctx, name, force)
	if err != nil {
		return nil, err
	}
	c := f.cache[name]
	if c.img != nil {
		return c.img, nil
	}

	rc, err := ref.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	img, err := codec.Decode(rc, codec.DecodeOptions{MaxPixels: f.field.settings.MaxImagePixels})
	if err != nil {
		return nil, fmt.Errorf("decode thumbnail %q: %w", name, err)
	}
	c.img = img
	return img, nil
}

// Refs returns a ref for every declared thumbnail, in Names order,
// generating missing ones.
func (f *File) Refs(ctx context.Context) ([]*ArtifactRef, error) {
	names := f.field.Names()
	refs := make([]*ArtifactRef, 0, len(names))
	for _, name := range names {
		ref, err := f.Get(ctx, name, false)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Materialized reports whether thumbnail name is in storage, without
// generating it.
func (f *File) Materialized(ctx context.Context, name string) (bool, error) {
	if !f.field.Has(name) {
		return false, fmt.Errorf("%w: %q [at %s]", ErrUnknownThumbnail, name, f.field.ctx)
	}
	if f.key == "" {
		return false, nil
	}
	return f.field.store.Exists(ctx, f.field.DerivedKey(f.key, name))
}

// UpdateAll regenerates every declared thumbnail. Generation failures do
// not stop the others and are returned together as a
// *BatchMaterializationError. Declaration errors and context cancellation
// are returned immediately.
func (f *File) UpdateAll(ctx context.Context) error {
	if f.key == "" {
		return ErrNoOriginal
	}

	var failures []*MaterializationError
	for _, name := range f.field.Names() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := f.Get(ctx, name, true); err != nil {
			var me *MaterializationError
			if errors.As(err, &me) {
				failures = append(failures, me)
				continue
			}
			return err
		}
	}

	if len(failures) > 0 {
		return &BatchMaterializationError{Failures: failures}
	}
	logging.Debug("Updated %d thumbnails for %s", len(f.field.Names()), f.key)
	return nil
}

// RemoveAll deletes every declared thumbnail of the current original from
// storage and clears the in-memory cache. Missing artifacts are not an
// error. With save set the owner is persisted afterwards.
func (f *File) RemoveAll(ctx context.Context, save bool) error {
	var errs []error
	if f.key != "" {
		errs = f.deleteKeys(ctx, f.field.DerivedKeys(f.key), "remove_all")
	}
	f.cache = make(map[string]*cachedArtifact)

	if err := errors.Join(errs...); err != nil {
		return err
	}
	if save {
		return f.persist(ctx)
	}
	return nil
}

// OnReplace deletes the original stored at previousKey and every thumbnail
// derived from it.
func (f *File) OnReplace(ctx context.Context, previousKey string) error {
	if previousKey == "" {
		return nil
	}
	return errors.Join(f.deleteKeys(ctx, f.field.staleKeys(previousKey), "replace")...)
}

// Assign points the value at a new original key. When the key changes and
// RemovePrevious is set, the previous original and its thumbnails are
// deleted. The deletion set is computed before the key is switched.
func (f *File) Assign(ctx context.Context, key string) error {
	prev := f.key
	if key == prev {
		return nil
	}

	var stale []string
	if f.field.settings.RemovePrevious && prev != "" {
		for _, k := range f.field.staleKeys(prev) {
			if k != key {
				stale = append(stale, k)
			}
		}
	}

	f.key = key
	f.reset()
	logging.Debug("Image changed from %q to %q", prev, key)

	if len(stale) == 0 {
		return nil
	}
	return errors.Join(f.deleteKeys(ctx, stale, "replace")...)
}

// SaveOriginal stores content as the new original under filename and
// assigns it. When the field declares an original chain the content is
// decoded, transformed and re-encoded in the format filename implies
// before it is stored. An existing file is never overwritten, and a name
// whose thumbnail keys are already taken in storage is replaced by a
// suffixed one; the key actually used is in the returned ref. With save
// set the owner is persisted afterwards.
//
// When the new original is stored and assigned but files of the previous
// one could not be deleted, SaveOriginal returns the ref together with a
// *CleanupError.
func (f *File) SaveOriginal(ctx context.Context, filename string, content io.Reader, save bool) (*ArtifactRef, error) {
	body := content
	var processed image.Image

	if chain, ok := f.field.patterns.OriginalChain(); ok {
		out, data, err := f.processOriginal(ctx, chain, filename, content)
		if err != nil {
			metrics.OriginalProcessedTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.OriginalProcessedTotal.WithLabelValues("success").Inc()
		body = bytes.NewReader(data)
		processed = out
	}

	target, err := f.freeKey(ctx, filename)
	if err != nil {
		return nil, &MaterializationError{Name: pattern.Original, Key: filename, Op: "exists", Err: err}
	}

	key, err := f.field.store.Save(ctx, target, body, false)
	if err != nil {
		return nil, &MaterializationError{Name: pattern.Original, Key: target, Op: "save", Err: err}
	}

	cleanupErr := f.Assign(ctx, key)
	if cleanupErr != nil {
		logging.Warn("Failed to remove previous image after saving %s: %v", key, cleanupErr)
	}
	f.original = processed

	if save {
		if err := f.persist(ctx); err != nil {
			return nil, err
		}
	}
	ref, err := f.Original()
	if err != nil {
		return nil, err
	}
	if cleanupErr != nil {
		return ref, &CleanupError{Ref: ref, Err: cleanupErr}
	}
	return ref, nil
}

// freeKey returns filename, or a suffixed variant of it, none of whose
// thumbnail keys exists in storage yet.
func (f *File) freeKey(ctx context.Context, filename string) (string, error) {
	candidate, err := storage.CleanKey(filename)
	if err != nil {
		// Save reports the invalid key
		return filename, nil
	}
	for i := 0; i < maxKeyAttempts; i++ {
		taken, err := f.derivedTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if taken == "" {
			return candidate, nil
		}
		next := suffixedKey(candidate)
		logging.Debug("Thumbnail key %s of %s is taken, storing the original as %s", taken, candidate, next)
		candidate = next
	}
	return "", fmt.Errorf("no free key for %s after %d attempts", filename, maxKeyAttempts)
}

// derivedTaken returns the first thumbnail key of key that exists in
// storage, or "".
func (f *File) derivedTaken(ctx context.Context, key string) (string, error) {
	for _, derived := range f.field.DerivedKeys(key) {
		if derived == key {
			continue
		}
		exists, err := f.field.store.Exists(ctx, derived)
		if err != nil {
			return "", err
		}
		if exists {
			return derived, nil
		}
	}
	return "", nil
}

func (f *File) processOriginal(ctx context.Context, chain pattern.Chain, filename string, content io.Reader) (image.Image, []byte, error) {
	wrap := func(op string, err error) error {
		return &MaterializationError{Name: pattern.Original, Key: filename, Op: op, Err: err}
	}

	img, err := codec.Decode(content, codec.DecodeOptions{MaxPixels: f.field.settings.MaxImagePixels})
	if err != nil {
		return nil, nil, wrap("decode", err)
	}
	if err := chain.Check(f.field.ctx, pattern.Original, img); err != nil {
		return nil, nil, err
	}
	out, err := chain.Apply(f.field.ctx, pattern.Original, img)
	if err != nil {
		return nil, nil, wrap("transform", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	data, err := codec.Encode(out, naming.InferFormat(filename), f.field.settings.SaveOptions)
	if err != nil {
		return nil, nil, wrap("encode", err)
	}
	logging.Debug("Processed upload %s with original chain: %dx%d -> %dx%d",
		filename, img.Bounds().Dx(), img.Bounds().Dy(), out.Bounds().Dx(), out.Bounds().Dy())
	return out, data, nil
}

// Delete removes the thumbnails and the original and clears the key. With
// save set the owner is persisted afterwards.
func (f *File) Delete(ctx context.Context, save bool) error {
	var errs []error
	if f.key != "" {
		errs = f.deleteKeys(ctx, f.field.staleKeys(f.key), "delete")
	}
	f.key = ""
	f.reset()

	if err := errors.Join(errs...); err != nil {
		return err
	}
	if save {
		return f.persist(ctx)
	}
	return nil
}

func (f *File) deleteKeys(ctx context.Context, keys []string, reason string) []error {
	var errs []error
	for _, key := range keys {
		if err := f.field.store.Delete(ctx, key); err != nil {
			metrics.ThumbnailDeletionsTotal.WithLabelValues(reason, "error").Inc()
			logging.Warn("Failed to delete %s (%s): %v", key, reason, err)
			errs = append(errs, err)
			continue
		}
		metrics.ThumbnailDeletionsTotal.WithLabelValues(reason, "success").Inc()
		logging.Debug("Deleted %s (%s)", key, reason)
	}
	return errs
}

// suffixedKey inserts a short random suffix before the extension.
func suffixedKey(key string) string {
	dir, file := path.Split(key)
	stem, ext := naming.SplitExt(file)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return dir + stem + "_" + suffix + ext
}
