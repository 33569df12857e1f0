// Package pattern compiles thumbnail pattern declarations into chains of
// resolved transforms.
//
// A declaration is written in tuple shorthand, the same form used in
// configuration files:
//
//	[]any{160}                                  // 160x160 with the default transform
//	[]any{160, 120}                             // 160x120 with the default transform
//	[]any{640, 480, "resize"}                   // named transform, default options
//	[]any{320, 240, "crop", map[string]any{...}} // named transform and options
//	[]any{[]any{nil, nil, "sepia"}, []any{800, 400, "resize"}} // a chain
//
// The transform slot may also hold a transform.Func or transform.Transform
// for inline callables. Names are resolved once, at compile time.
package pattern
