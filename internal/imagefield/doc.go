/*
Package imagefield binds an original image stored in a storage.Storage to a
set of named, lazily generated thumbnails.

A Field is the declaration: the compiled pattern set, the store and the
Settings. It is built once and shared. A File is one record's value of that
field. It is the cache controller for the record's original image:

	field, err := imagefield.NewField(
	    pattern.Context{DeclaringType: "Entry", Field: "image"},
	    map[string]any{
	        "small": pattern.Tuple(100, 100),
	        "large": pattern.Tuple(640, 480, "resize"),
	    },
	    store, imagefield.DefaultSettings())

	file := field.Open(entry.ImageKey, entry)
	ref, err := file.Get(ctx, "small", false)
	url := ref.URL()

Derived keys are computed from the original key and the thumbnail name
alone, so storage existence is the only cache index. Get returns an
existing artifact without touching pixels; otherwise it decodes the
original once per File, runs the chain, encodes the result fully in memory
and saves it with overwrite.

A File is not safe for concurrent use. Two processes materialising the same
thumbnail write identical content to the same key.
*/
package imagefield
