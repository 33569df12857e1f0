package pattern

import (
	"fmt"
	"image"
	"reflect"

	"thumbnailfield/internal/transform"

	"github.com/mitchellh/mapstructure"
)

// DefaultTransform is used when neither the declaration nor Defaults name
// a transform.
const DefaultTransform = "thumbnail"

// Defaults fill in the transform and options a declaration leaves out.
type Defaults struct {
	Transform string
	Options   transform.Options
}

// Compiler turns declarations into chains for one declaring field.
type Compiler struct {
	Context  Context
	Registry transform.Registry
	Defaults Defaults
}

// Tuple is a convenience for writing a single shorthand declaration.
func Tuple(v ...any) []any {
	return v
}

// Steps is a convenience for writing a chain of shorthand declarations.
func Steps(tuples ...[]any) []any {
	out := make([]any, len(tuples))
	for i, t := range tuples {
		out[i] = t
	}
	return out
}

// CompileSet compiles every declaration in decls.
func (c Compiler) CompileSet(decls map[string]any) (Set, error) {
	set := make(Set, len(decls))
	for name, decl := range decls {
		chain, err := c.Compile(name, decl)
		if err != nil {
			return nil, err
		}
		set[name] = chain
	}
	return set, nil
}

// Compile compiles one declaration: a single tuple or a sequence of tuples.
func (c Compiler) Compile(name string, decl any) (Chain, error) {
	items, ok := asSlice(decl)
	if !ok && isNumber(decl) {
		items, ok = []any{decl}, true
	}
	if !ok || len(items) == 0 {
		return nil, c.errorf(name, "pattern must be a non-empty sequence, got %T", decl)
	}

	var tuples [][]any
	if _, nested := asSlice(items[0]); nested {
		for i, item := range items {
			tuple, ok := asSlice(item)
			if !ok {
				return nil, c.errorf(name, "chain element %d must be a sequence, got %T", i+1, item)
			}
			tuples = append(tuples, tuple)
		}
	} else {
		tuples = [][]any{items}
	}

	chain := make(Chain, 0, len(tuples))
	for _, tuple := range tuples {
		p, err := c.compileTuple(name, tuple)
		if err != nil {
			return nil, err
		}
		chain = append(chain, p)
	}

	if err := chain.Check(c.Context, name, nil); err != nil {
		return nil, err
	}
	return chain, nil
}

func (c Compiler) compileTuple(name string, tuple []any) (Pattern, error) {
	var p Pattern
	var err error

	switch len(tuple) {
	case 1, 2, 3, 4:
	default:
		return p, c.errorf(name, "pattern must have 1 to 4 elements, got %d", len(tuple))
	}

	if p.Width, err = c.dimension(name, "width", tuple[0]); err != nil {
		return p, err
	}
	p.Height = p.Width
	if len(tuple) >= 2 {
		if p.Height, err = c.dimension(name, "height", tuple[1]); err != nil {
			return p, err
		}
	}

	var slot any
	if len(tuple) >= 3 {
		slot = tuple[2]
	}
	if p.fn, err = c.resolve(name, slot); err != nil {
		return p, err
	}
	p.Transform = p.fn.Name

	p.Options = copyOptions(c.Defaults.Options)
	if len(tuple) == 4 && tuple[3] != nil {
		opts, ok := asOptions(tuple[3])
		if !ok {
			return p, c.errorf(name, "pattern options must be a mapping, got %T", tuple[3])
		}
		p.Options = opts
	}
	return p, nil
}

func (c Compiler) dimension(name, label string, v any) (int, error) {
	if v == nil {
		return 0, nil
	}
	var n int
	if err := mapstructure.WeakDecode(v, &n); err != nil {
		return 0, c.errorf(name, "invalid %s %v: %v", label, v, err)
	}
	if n < 0 {
		return 0, c.errorf(name, "%s must not be negative, got %d", label, n)
	}
	return n, nil
}

// resolve turns the transform slot into a concrete transform.
func (c Compiler) resolve(name string, slot any) (transform.Transform, error) {
	switch v := slot.(type) {
	case nil:
		return c.lookup(name, c.defaultTransform())
	case string:
		if v == "" {
			return c.lookup(name, c.defaultTransform())
		}
		return c.lookup(name, v)
	case transform.Transform:
		if v.Apply == nil {
			return transform.Transform{}, c.errorf(name, "inline transform %q has no Apply function", v.Name)
		}
		if v.Name == "" {
			v.Name = "inline"
		}
		return v, nil
	case transform.Func:
		return transform.Transform{Name: "inline", Apply: v}, nil
	case func(image.Image, int, int, transform.Options) (image.Image, error):
		return transform.Transform{Name: "inline", Apply: v}, nil
	default:
		return transform.Transform{}, c.errorf(name, "transform must be a registered name or a transform function, got %T", slot)
	}
}

func (c Compiler) lookup(name, transformName string) (transform.Transform, error) {
	t, ok := c.Registry.Lookup(transformName)
	if !ok {
		return transform.Transform{}, c.errorf(name, "transform %q is not registered", transformName)
	}
	return t, nil
}

func (c Compiler) defaultTransform() string {
	if c.Defaults.Transform != "" {
		return c.Defaults.Transform
	}
	return DefaultTransform
}

func (c Compiler) errorf(name, format string, args ...any) error {
	return &ConfigurationError{Context: c.Context, Name: name, Reason: fmt.Sprintf(format, args...)}
}

// asSlice converts any slice or array except strings and byte slices.
func asSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, false
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	default:
		return nil, false
	}
}

func isNumber(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func asOptions(v any) (transform.Options, bool) {
	switch m := v.(type) {
	case transform.Options:
		return copyOptions(m), true
	case map[string]any:
		return copyOptions(m), true
	case map[any]any:
		out := make(transform.Options, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func copyOptions(m map[string]any) transform.Options {
	out := make(transform.Options, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
