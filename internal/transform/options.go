package transform

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/mitchellh/mapstructure"
)

var filtersByName = map[string]imaging.ResampleFilter{
	"nearest":           imaging.NearestNeighbor,
	"nearestneighbor":   imaging.NearestNeighbor,
	"box":               imaging.Box,
	"linear":            imaging.Linear,
	"bilinear":          imaging.Linear,
	"hermite":           imaging.Hermite,
	"mitchellnetravali": imaging.MitchellNetravali,
	"catmullrom":        imaging.CatmullRom,
	"bicubic":           imaging.CatmullRom,
	"bspline":           imaging.BSpline,
	"gaussian":          imaging.Gaussian,
	"bartlett":          imaging.Bartlett,
	"lanczos":           imaging.Lanczos,
	"antialias":         imaging.Lanczos,
	"hann":              imaging.Hann,
	"hamming":           imaging.Hamming,
	"blackman":          imaging.Blackman,
	"welch":             imaging.Welch,
	"cosine":            imaging.Cosine,
}

// ParseFilter resolves a resampling filter name such as "lanczos".
func ParseFilter(name string) (imaging.ResampleFilter, error) {
	key := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(name))
	f, ok := filtersByName[key]
	if !ok {
		return imaging.ResampleFilter{}, fmt.Errorf("unknown resampling filter %q", name)
	}
	return f, nil
}

// filterDecodeHook turns filter names into imaging.ResampleFilter values.
func filterDecodeHook() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(imaging.ResampleFilter{})
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != target || from.Kind() != reflect.String {
			return data, nil
		}
		return ParseFilter(data.(string))
	}
}

// Decode copies opts into the struct pointed to by out. Numeric strings and
// floats are accepted for integer fields, which is what YAML and JSON
// declarations produce.
func (opts Options) Decode(out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       filterDecodeHook(),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]interface{}(opts)); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	return nil
}

// Has reports whether key is present in opts.
func (opts Options) Has(key string) bool {
	_, ok := opts[key]
	return ok
}

// resampleOptions configures the scaling transforms. "resample" is accepted
// as an alias of "filter".
type resampleOptions struct {
	Filter   *imaging.ResampleFilter `mapstructure:"filter"`
	Resample *imaging.ResampleFilter `mapstructure:"resample"`
}

func pickFilter(filter, resample *imaging.ResampleFilter) imaging.ResampleFilter {
	switch {
	case filter != nil:
		return *filter
	case resample != nil:
		return *resample
	default:
		return imaging.Lanczos
	}
}
