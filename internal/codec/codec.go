package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	"thumbnailfield/internal/logging"
	"thumbnailfield/internal/naming"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"

	"github.com/disintegration/imaging"
	"github.com/mitchellh/mapstructure"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // WebP format support
)

var (
	// ErrUnsupportedFormat is returned when an image cannot be encoded in
	// the requested format.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrImageTooLarge is returned when an image exceeds the pixel limit.
	ErrImageTooLarge = errors.New("image exceeds pixel limit")
)

// DefaultMaxPixels is the decode limit used when none is configured.
// A 40MP image uses ~160MB in RGBA.
const DefaultMaxPixels = 40_000_000

// Dimensions holds image width and height
type Dimensions struct {
	Width  int
	Height int
}

// DecodeOptions controls Decode. MaxPixels <= 0 disables the size check.
type DecodeOptions struct {
	MaxPixels int
}

// Decode reads and decodes an image, rejecting images larger than
// opts.MaxPixels before the full decode.
func Decode(r io.Reader, opts DecodeOptions) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("read image: empty content")
	}

	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		if err := checkPixels(cfg.Width, cfg.Height, opts.MaxPixels); err != nil {
			return nil, err
		}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	logging.Debug("imaging.Decode failed (%s content): %v, trying fallback methods", Sniff(data), err)

	if !IsVipsAvailable() {
		return nil, fmt.Errorf("decode %s image: %w", Sniff(data), err)
	}

	img, vipsErr := decodeWithVips(data, opts.MaxPixels)
	if errors.Is(vipsErr, ErrImageTooLarge) {
		return nil, vipsErr
	}
	if vipsErr != nil {
		return nil, fmt.Errorf("all image decode methods failed: %w", errors.Join(err, vipsErr))
	}
	return img, nil
}

// checkPixels returns ErrImageTooLarge when a width x height image is
// over maxPixels. maxPixels <= 0 allows any size.
func checkPixels(width, height, maxPixels int) error {
	if maxPixels <= 0 {
		return nil
	}
	if pixels := width * height; pixels > maxPixels {
		return fmt.Errorf("%w: %dx%d (%d pixels, limit %d)",
			ErrImageTooLarge, width, height, pixels, maxPixels)
	}
	return nil
}

// DecodeDimensions returns image dimensions without fully decoding the image
func DecodeDimensions(r io.Reader) (Dimensions, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return Dimensions{}, err
	}
	return Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

// SaveOptions are encoder settings. Fields that do not apply to the target
// format are ignored.
type SaveOptions struct {
	// Quality is the JPEG quality, 1-100. Zero uses the imaging default.
	Quality int `mapstructure:"quality"`
	// Compression is the PNG compression level: default, none, fast or best.
	Compression string `mapstructure:"compression"`
	// Colors is the GIF palette size, 1-256. Zero uses the imaging default.
	Colors int `mapstructure:"colors"`
}

// ParseSaveOptions decodes loosely typed settings, as read from
// configuration, into SaveOptions.
func ParseSaveOptions(m map[string]any) (SaveOptions, error) {
	var opts SaveOptions
	if len(m) == 0 {
		return opts, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return opts, err
	}
	if err := dec.Decode(m); err != nil {
		return opts, fmt.Errorf("invalid save options: %w", err)
	}
	if opts.Quality < 0 || opts.Quality > 100 {
		return opts, fmt.Errorf("invalid save options: quality %d out of range 1-100", opts.Quality)
	}
	if opts.Colors < 0 || opts.Colors > 256 {
		return opts, fmt.Errorf("invalid save options: colors %d out of range 1-256", opts.Colors)
	}
	if _, err := compressionLevel(opts.Compression); err != nil {
		return opts, fmt.Errorf("invalid save options: %w", err)
	}
	return opts, nil
}

func compressionLevel(name string) (png.CompressionLevel, error) {
	switch strings.ToLower(name) {
	case "", "default":
		return png.DefaultCompression, nil
	case "none":
		return png.NoCompression, nil
	case "fast", "speed":
		return png.BestSpeed, nil
	case "best":
		return png.BestCompression, nil
	default:
		return 0, fmt.Errorf("unknown png compression %q", name)
	}
}

var imagingFormats = map[naming.Format]imaging.Format{
	naming.FormatPNG:  imaging.PNG,
	naming.FormatJPEG: imaging.JPEG,
	naming.FormatGIF:  imaging.GIF,
	naming.FormatTIFF: imaging.TIFF,
	naming.FormatBMP:  imaging.BMP,
}

// Encode serialises img in format. The whole image is encoded in memory so
// callers can write it to storage in a single operation.
func Encode(img image.Image, format naming.Format, opts SaveOptions) ([]byte, error) {
	f, ok := imagingFormats[format]
	if !ok {
		if format == "" {
			return nil, fmt.Errorf("%w: cannot infer format", ErrUnsupportedFormat)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	var encodeOpts []imaging.EncodeOption
	if opts.Quality > 0 {
		encodeOpts = append(encodeOpts, imaging.JPEGQuality(opts.Quality))
	}
	if opts.Colors > 0 {
		encodeOpts = append(encodeOpts, imaging.GIFNumColors(opts.Colors))
	}
	level, err := compressionLevel(opts.Compression)
	if err != nil {
		return nil, err
	}
	encodeOpts = append(encodeOpts, imaging.PNGCompressionLevel(level))

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, f, encodeOpts...); err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// Sniff names the image type from its magic bytes, for diagnostics.
func Sniff(header []byte) string {
	switch {
	case len(header) >= 3 && header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return "jpeg"
	case len(header) >= 8 && header[0] == 0x89 && header[1] == 0x50 && header[2] == 0x4E && header[3] == 0x47:
		return "png"
	case len(header) >= 4 && header[0] == 0x47 && header[1] == 0x49 && header[2] == 0x46 && header[3] == 0x38:
		return "gif"
	case len(header) >= 12 && string(header[0:4]) == "RIFF" && string(header[8:12]) == "WEBP":
		return "webp"
	case len(header) >= 2 && header[0] == 0x42 && header[1] == 0x4D:
		return "bmp"
	case len(header) >= 4 && (string(header[0:4]) == "II*\x00" || string(header[0:4]) == "MM\x00*"):
		return "tiff"
	case len(header) >= 12 && string(header[4:8]) == "ftyp":
		switch string(header[8:12]) {
		case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
			return "heif"
		case "avif", "avis":
			return "avif"
		}
		return "mp4-container"
	}
	return "unknown"
}
