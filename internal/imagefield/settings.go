package imagefield

import (
	"fmt"

	"thumbnailfield/internal/codec"
	"thumbnailfield/internal/naming"
	"thumbnailfield/internal/pattern"
	"thumbnailfield/internal/transform"
)

// Settings is the process-wide configuration a Field is built with. It is
// copied into the Field and never modified afterwards.
type Settings struct {
	// RemovePrevious deletes the previous original and its thumbnails when
	// a File is assigned a different key.
	RemovePrevious bool
	// DefaultTransform and DefaultOptions fill in shorthand declarations.
	DefaultTransform string
	DefaultOptions   transform.Options
	// FilenameTemplate derives thumbnail keys from the original key.
	FilenameTemplate naming.Template
	// SaveOptions are passed to the encoder for every derived image.
	SaveOptions codec.SaveOptions
	// Registry resolves transform names. It replaces the built-ins
	// entirely when set.
	Registry transform.Registry
	// MaxImagePixels bounds the size of originals that will be decoded.
	MaxImagePixels int
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		RemovePrevious:   true,
		DefaultTransform: pattern.DefaultTransform,
		DefaultOptions:   transform.Options{"filter": "lanczos"},
		FilenameTemplate: naming.DefaultTemplate,
		Registry:         transform.DefaultRegistry(),
		MaxImagePixels:   codec.DefaultMaxPixels,
	}
}

// normalize fills zero values with defaults and validates the template.
func (s Settings) normalize() (Settings, error) {
	if s.DefaultTransform == "" {
		s.DefaultTransform = pattern.DefaultTransform
	}
	if s.FilenameTemplate == "" {
		s.FilenameTemplate = naming.DefaultTemplate
	}
	if err := s.FilenameTemplate.Validate(); err != nil {
		return s, fmt.Errorf("filename template: %w", err)
	}
	if s.Registry == nil {
		s.Registry = transform.DefaultRegistry()
	} else {
		s.Registry = s.Registry.Clone()
	}
	opts := make(transform.Options, len(s.DefaultOptions))
	for k, v := range s.DefaultOptions {
		opts[k] = v
	}
	s.DefaultOptions = opts
	return s, nil
}
