package pattern

import (
	"encoding/hex"
	"fmt"
	"image"
	"sort"
	"strings"

	"thumbnailfield/internal/transform"

	"golang.org/x/crypto/blake2b"
)

// Original is the thumbnail name that refers to the original image itself.
// A chain declared under it is applied to uploaded content before it is
// stored.
const Original = ""

// Pattern is one compiled transform step.
type Pattern struct {
	Width     int
	Height    int
	Transform string
	Options   transform.Options

	fn transform.Transform
}

// Check runs the transform's check against img, which may be nil.
func (p Pattern) Check(img image.Image) error {
	return p.fn.Validate(img, p.Width, p.Height, p.Options)
}

// Apply runs the step on img.
func (p Pattern) Apply(img image.Image) (image.Image, error) {
	return p.fn.Apply(img, p.Width, p.Height, p.Options)
}

func (p Pattern) String() string {
	keys := make([]string, 0, len(p.Options))
	for k := range p.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	opts := make([]string, 0, len(keys))
	for _, k := range keys {
		opts = append(opts, fmt.Sprintf("%s=%v", k, p.Options[k]))
	}
	return fmt.Sprintf("%s(%d,%d){%s}", p.Transform, p.Width, p.Height, strings.Join(opts, ","))
}

// Chain is an ordered sequence of steps; each step's output feeds the next.
type Chain []Pattern

// Check validates every step against img before any pixel work is done.
func (c Chain) Check(ctx Context, name string, img image.Image) error {
	for _, p := range c {
		if err := p.Check(img); err != nil {
			return &PatternConfigurationError{Context: ctx, Name: name, Transform: p.Transform, Err: err}
		}
	}
	return nil
}

// Apply validates the chain and runs it on img. The input is never
// modified. Check failures are returned as *PatternConfigurationError.
func (c Chain) Apply(ctx Context, name string, img image.Image) (image.Image, error) {
	if err := c.Check(ctx, name, img); err != nil {
		return nil, err
	}
	out := img
	for i, p := range c {
		next, err := p.Apply(out)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, p.Transform, err)
		}
		out = next
	}
	return out, nil
}

// Fingerprint returns a short stable digest of the chain's definition.
// Inline callables contribute their declared name only.
func (c Chain) Fingerprint() string {
	parts := make([]string, len(c))
	for i, p := range c {
		parts[i] = p.String()
	}
	sum := blake2b.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:4])
}

// Set maps thumbnail names to their chains. It may contain Original.
type Set map[string]Chain

// Names returns the thumbnail names in sorted order, excluding Original.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		if name == Original {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is declared.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// OriginalChain returns the chain applied to uploads, if one is declared.
func (s Set) OriginalChain() (Chain, bool) {
	c, ok := s[Original]
	if !ok || len(c) == 0 {
		return nil, false
	}
	return c, true
}
