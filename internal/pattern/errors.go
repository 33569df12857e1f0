package pattern

import "fmt"

// Context identifies the field that declared a pattern, for error messages.
type Context struct {
	DeclaringType string
	Field         string
}

func (c Context) String() string {
	switch {
	case c.DeclaringType == "" && c.Field == "":
		return "<undeclared>"
	case c.DeclaringType == "":
		return c.Field
	default:
		return c.DeclaringType + "." + c.Field
	}
}

// ConfigurationError reports a declaration that cannot be compiled, such
// as an unregistered transform name.
type ConfigurationError struct {
	Context Context
	Name    string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s [at %s, pattern %s]", e.Reason, e.Context, displayName(e.Name))
}

// PatternConfigurationError reports a transform check rejecting a
// pattern's width, height or options.
type PatternConfigurationError struct {
	Context   Context
	Name      string
	Transform string
	Err       error
}

func (e *PatternConfigurationError) Error() string {
	return fmt.Sprintf("%v [at %s, pattern %s]", e.Err, e.Context, displayName(e.Name))
}

func (e *PatternConfigurationError) Unwrap() error {
	return e.Err
}

func displayName(name string) string {
	if name == Original {
		return "<original>"
	}
	return fmt.Sprintf("%q", name)
}
