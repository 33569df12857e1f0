package transform

import (
	"errors"
	"image"
	"sort"
)

// ErrInvalidPattern is returned by checks that reject a width, height or
// option combination.
var ErrInvalidPattern = errors.New("invalid pattern")

// Options are transform-specific settings from a pattern declaration.
type Options map[string]any

// Func produces a new image from img.
type Func func(img image.Image, width, height int, opts Options) (image.Image, error)

// Check validates a pattern. img is nil when the pattern is checked at
// declaration time.
type Check func(img image.Image, width, height int, opts Options) error

// Transform is a named Func with an optional Check.
type Transform struct {
	Name  string
	Apply Func
	Check Check
}

// Validate runs the transform's check, if any.
func (t Transform) Validate(img image.Image, width, height int, opts Options) error {
	if t.Check == nil {
		return nil
	}
	return t.Check(img, width, height, opts)
}

// Registry maps transform names to transforms. It is replaced wholesale by
// configuration rather than extended in place.
type Registry map[string]Transform

// DefaultRegistry returns a new registry holding the built-in transforms.
func DefaultRegistry() Registry {
	return Registry{
		"thumbnail": {Name: "thumbnail", Apply: Thumbnail, Check: requireSize("thumbnail")},
		"resize":    {Name: "resize", Apply: Resize, Check: requireSize("resize")},
		"crop":      {Name: "crop", Apply: Crop, Check: checkCrop},
		"grayscale": {Name: "grayscale", Apply: Grayscale, Check: forbidSize("grayscale")},
		"sepia":     {Name: "sepia", Apply: Sepia, Check: forbidSize("sepia")},
	}
}

// Lookup returns the transform registered under name.
func (r Registry) Lookup(name string) (Transform, bool) {
	t, ok := r[name]
	if ok && t.Apply == nil {
		return Transform{}, false
	}
	if ok && t.Name == "" {
		t.Name = name
	}
	return t, ok
}

// Names returns the registered names in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a shallow copy that can be modified independently.
func (r Registry) Clone() Registry {
	out := make(Registry, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
