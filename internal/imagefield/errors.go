package imagefield

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoOriginal is returned when a File has no original image.
	ErrNoOriginal = errors.New("no original image")

	// ErrUnknownThumbnail is returned for names the field does not declare.
	ErrUnknownThumbnail = errors.New("unknown thumbnail name")
)

// MaterializationError reports a failure while generating one derived
// image. Op is the failing step: "exists", "decode", "transform",
// "encode" or "save".
type MaterializationError struct {
	Name string
	Key  string
	Op   string
	Err  error
}

func (e *MaterializationError) Error() string {
	return fmt.Sprintf("materialize %s (%s): %s: %v", displayName(e.Name), e.Key, e.Op, e.Err)
}

func (e *MaterializationError) Unwrap() error {
	return e.Err
}

// CleanupError reports that a new original was stored and assigned but
// files of the previous original could not be deleted. They can be
// removed later with OnReplace.
type CleanupError struct {
	Ref *ArtifactRef
	Err error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("saved %s but failed to remove the previous image: %v", e.Ref.Key, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}

// BatchMaterializationError collects the per-name failures of UpdateAll.
type BatchMaterializationError struct {
	Failures []*MaterializationError
}

func (e *BatchMaterializationError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %v", displayName(f.Name), f.Err)
	}
	return fmt.Sprintf("%d thumbnail(s) failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *BatchMaterializationError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Names returns the names that failed, in order.
func (e *BatchMaterializationError) Names() []string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Name
	}
	return names
}

func displayName(name string) string {
	if name == "" {
		return "<original>"
	}
	return fmt.Sprintf("%q", name)
}
