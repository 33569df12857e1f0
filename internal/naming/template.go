package naming

import (
	"fmt"
	"path"
	"strings"
)

// Template is a filename template. Supported placeholders are {root},
// {filename}, {name}, {ext} (without the leading dot) and {hash}.
type Template string

// DefaultTemplate places derived images next to the original.
const DefaultTemplate Template = "{root}/{filename}.{name}.{ext}"

var knownPlaceholders = []string{"{root}", "{filename}", "{name}", "{ext}", "{hash}"}

// Validate reports whether the template can produce distinct keys per name.
func (t Template) Validate() error {
	s := string(t)
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("filename template is empty")
	}
	if !strings.Contains(s, "{name}") {
		return fmt.Errorf("filename template %q must contain {name}", s)
	}

	rest := s
	for _, p := range knownPlaceholders {
		rest = strings.ReplaceAll(rest, p, "")
	}
	if i := strings.IndexByte(rest, '{'); i >= 0 {
		return fmt.Errorf("filename template %q has an unknown placeholder near %q", s, rest[i:])
	}
	return nil
}

// UsesHash reports whether keys depend on the pattern fingerprint.
func (t Template) UsesHash() bool {
	return strings.Contains(string(t), "{hash}")
}

// Derive renders the derived key for (key, name). hash fills {hash} and may
// be empty when the template does not use it.
func (t Template) Derive(key, name, hash string) string {
	if t == "" {
		t = DefaultTemplate
	}
	root, file := path.Split(key)
	root = strings.TrimSuffix(root, "/")
	filename, ext := SplitExt(file)

	out := strings.NewReplacer(
		"{root}", root,
		"{filename}", filename,
		"{name}", name,
		"{ext}", strings.TrimPrefix(ext, "."),
		"{hash}", hash,
	).Replace(string(t))

	// A key without a directory must not become absolute, and a key
	// without an extension must not end in a dot.
	if root == "" && !strings.HasPrefix(key, "/") {
		out = strings.TrimPrefix(out, "/")
	}
	if ext == "" {
		out = strings.TrimSuffix(out, ".")
	}
	return out
}

// Derive renders key and name through DefaultTemplate.
func Derive(key, name string) string {
	return DefaultTemplate.Derive(key, name, "")
}

// SplitExt splits a base file name into stem and extension (with dot).
// Leading dots belong to the stem, so ".profile" has no extension.
func SplitExt(file string) (stem, ext string) {
	trimmed := strings.TrimLeft(file, ".")
	i := strings.LastIndexByte(trimmed, '.')
	if i < 0 {
		return file, ""
	}
	i += len(file) - len(trimmed)
	return file[:i], file[i:]
}
