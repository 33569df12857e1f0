package imagefield

import (
	"context"

	"thumbnailfield/internal/pattern"
	"thumbnailfield/internal/storage"
)

// Persister is the owning record. Persist is called after operations that
// change the record's image key when the caller asks for it.
type Persister interface {
	Persist(ctx context.Context) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context) error

// Persist calls f.
func (f PersisterFunc) Persist(ctx context.Context) error {
	return f(ctx)
}

// Field is an image field declaration with named thumbnails.
type Field struct {
	ctx      pattern.Context
	patterns pattern.Set
	store    storage.Storage
	settings Settings
}

// NewField compiles decls and returns the field. Each declaration is a
// shorthand tuple or a chain of tuples; the pattern.Original name declares
// the chain applied to uploads.
func NewField(ctx pattern.Context, decls map[string]any, store storage.Storage, settings Settings) (*Field, error) {
	settings, err := settings.normalize()
	if err != nil {
		return nil, &pattern.ConfigurationError{Context: ctx, Name: pattern.Original, Reason: err.Error()}
	}

	compiler := pattern.Compiler{
		Context:  ctx,
		Registry: settings.Registry,
		Defaults: pattern.Defaults{
			Transform: settings.DefaultTransform,
			Options:   settings.DefaultOptions,
		},
	}
	set, err := compiler.CompileSet(decls)
	if err != nil {
		return nil, err
	}

	return &Field{
		ctx:      ctx,
		patterns: set,
		store:    store,
		settings: settings,
	}, nil
}

// Context identifies the field in error messages.
func (f *Field) Context() pattern.Context { return f.ctx }

// Storage returns the store the field reads and writes.
func (f *Field) Storage() storage.Storage { return f.store }

// Settings returns the normalized settings.
func (f *Field) Settings() Settings { return f.settings }

// Names returns the declared thumbnail names in sorted order. The original
// chain is not included.
func (f *Field) Names() []string {
	return f.patterns.Names()
}

// Has reports whether name is a declared thumbnail.
func (f *Field) Has(name string) bool {
	return name != pattern.Original && f.patterns.Has(name)
}

// Chain returns the compiled chain for name.
func (f *Field) Chain(name string) (pattern.Chain, bool) {
	c, ok := f.patterns[name]
	return c, ok
}

// DerivedKey returns the storage key of thumbnail name for the original
// stored at key. The original name maps to key itself.
func (f *Field) DerivedKey(key, name string) string {
	if name == pattern.Original {
		return key
	}
	var hash string
	if f.settings.FilenameTemplate.UsesHash() {
		hash = f.patterns[name].Fingerprint()
	}
	return f.settings.FilenameTemplate.Derive(key, name, hash)
}

// DerivedKeys returns the keys of every declared thumbnail of key, in
// Names order.
func (f *Field) DerivedKeys(key string) []string {
	names := f.Names()
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = f.DerivedKey(key, name)
	}
	return keys
}

// Open returns the value of this field for the original stored at key.
// key may be empty for a record without an image. owner may be nil.
func (f *Field) Open(key string, owner Persister) *File {
	return &File{
		field: f,
		owner: owner,
		key:   key,
		cache: make(map[string]*cachedArtifact),
	}
}

// staleKeys lists every key owned by the original at key: its thumbnails
// first, then the original itself.
func (f *Field) staleKeys(key string) []string {
	return append(f.DerivedKeys(key), key)
}
