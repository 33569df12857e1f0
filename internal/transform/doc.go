// Package transform provides the image transforms that thumbnail patterns
// are built from, and the Registry that maps transform names to them.
//
// Every transform is a pure function: it never modifies its input and
// returns a new image. A transform may carry a Check that validates the
// requested width, height and options before any pixel work is done.
//
// Built-in transforms:
//   - thumbnail: scale down to fit within width x height, keeping aspect ratio
//   - resize: force exact width x height (only when needed unless force is set)
//   - crop: extract width x height at (left, upper)
//   - grayscale: convert to single-channel luma
//   - sepia: grayscale, autocontrast, then map through a warm tone ramp
//
// Width and height of 0 mean "not given".
package transform
