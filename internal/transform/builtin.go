package transform

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// sepiaHighlight is the color that white maps to in the sepia ramp.
var sepiaHighlight = color.NRGBA{R: 255, G: 240, B: 192, A: 255}

// Thumbnail scales img down to fit within width x height, preserving the
// aspect ratio. Images that already fit are copied unchanged.
func Thumbnail(img image.Image, width, height int, opts Options) (image.Image, error) {
	var o resampleOptions
	if err := opts.Decode(&o); err != nil {
		return nil, err
	}
	return imaging.Fit(img, width, height, pickFilter(o.Filter, o.Resample)), nil
}

type resizeOptions struct {
	Filter   *imaging.ResampleFilter `mapstructure:"filter"`
	Resample *imaging.ResampleFilter `mapstructure:"resample"`
	Force    bool                    `mapstructure:"force"`
}

// Resize scales img to exactly width x height. Unless the "force" option is
// set, images that already fit within the bounds are copied unchanged.
func Resize(img image.Image, width, height int, opts Options) (image.Image, error) {
	var o resizeOptions
	if err := opts.Decode(&o); err != nil {
		return nil, err
	}
	b := img.Bounds()
	if o.Force || b.Dx() > width || b.Dy() > height {
		return imaging.Resize(img, width, height, pickFilter(o.Filter, o.Resample)), nil
	}
	return imaging.Clone(img), nil
}

type cropOptions struct {
	Left  *int `mapstructure:"left"`
	Upper *int `mapstructure:"upper"`
}

// Crop extracts the rectangle (left, upper, left+width, upper+height).
// Areas outside img are transparent, so the result is always width x height.
func Crop(img image.Image, width, height int, opts Options) (image.Image, error) {
	var o cropOptions
	if err := opts.Decode(&o); err != nil {
		return nil, err
	}
	if o.Left == nil || o.Upper == nil {
		return nil, fmt.Errorf("%w: 'crop' pattern requires 'left' and 'upper' options", ErrInvalidPattern)
	}
	canvas := imaging.New(width, height, color.NRGBA{})
	return imaging.Paste(canvas, img, image.Pt(-*o.Left, -*o.Upper)), nil
}

// Grayscale converts img to a single-channel luma image.
func Grayscale(img image.Image, _, _ int, _ Options) (image.Image, error) {
	return toGray(img), nil
}

// Sepia converts img to grayscale, stretches its contrast to the full range
// and maps it through a ramp from black to a warm highlight.
func Sepia(img image.Image, _, _ int, _ Options) (image.Image, error) {
	gray := toGray(img)

	lo, hi := grayRange(gray)
	var ramp [256]color.NRGBA
	for i := range ramp {
		v := i
		if hi > lo {
			v = (i - lo) * 255 / (hi - lo)
			v = max(0, min(255, v))
		}
		ramp[i] = color.NRGBA{
			R: uint8(int(sepiaHighlight.R) * v / 255),
			G: uint8(int(sepiaHighlight.G) * v / 255),
			B: uint8(int(sepiaHighlight.B) * v / 255),
			A: 255,
		}
	}

	return imaging.AdjustFunc(gray, func(c color.NRGBA) color.NRGBA {
		return ramp[c.R]
	}), nil
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// grayRange returns the darkest and lightest luma values in img.
func grayRange(img *image.Gray) (lo, hi int) {
	lo, hi = 255, 0
	for y := 0; y < img.Rect.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+img.Rect.Dx()]
		for _, v := range row {
			lo = min(lo, int(v))
			hi = max(hi, int(v))
		}
	}
	if lo > hi {
		return 0, 255
	}
	return lo, hi
}

func requireSize(name string) Check {
	return func(_ image.Image, width, height int, _ Options) error {
		if width <= 0 || height <= 0 {
			return fmt.Errorf("%w: 'width' and 'height' are required in '%s' pattern", ErrInvalidPattern, name)
		}
		return nil
	}
}

func forbidSize(name string) Check {
	return func(_ image.Image, width, height int, _ Options) error {
		if width != 0 || height != 0 {
			return fmt.Errorf("%w: 'width' and 'height' must be None in '%s' pattern", ErrInvalidPattern, name)
		}
		return nil
	}
}

func checkCrop(img image.Image, width, height int, opts Options) error {
	if err := requireSize("crop")(img, width, height, opts); err != nil {
		return err
	}
	if !opts.Has("left") {
		return fmt.Errorf("%w: 'crop' pattern requires 'left' option", ErrInvalidPattern)
	}
	if !opts.Has("upper") {
		return fmt.Errorf("%w: 'crop' pattern requires 'upper' option", ErrInvalidPattern)
	}
	return nil
}
