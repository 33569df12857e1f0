// Package codec decodes uploaded images and encodes transformed ones.
//
// Decoding goes through the imaging library with EXIF auto-orientation and
// the Go decoders for JPEG, PNG, GIF, BMP, TIFF and WebP. When those fail
// and libvips has been initialised with InitVips, the bytes are handed to
// libvips as a fallback, which covers formats such as HEIC and AVIF.
//
// Encoding supports PNG, JPEG, GIF, TIFF and BMP. Other formats known to
// naming.InferFormat fail with ErrUnsupportedFormat.
package codec
