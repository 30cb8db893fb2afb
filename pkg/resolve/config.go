package resolve

// ConfigSource supplies values for env fallbacks. Implementations are
// consulted on every lookup, so they reflect the current configuration.
type ConfigSource interface {
	Lookup(key string) (any, bool)
}

// ConfigFunc adapts a function to ConfigSource
type ConfigFunc func(key string) (any, bool)

// Lookup implements ConfigSource
func (f ConfigFunc) Lookup(key string) (any, bool) {
	return f(key)
}

// MapSource is a fixed ConfigSource, mostly useful in tests
type MapSource map[string]any

// Lookup implements ConfigSource
func (m MapSource) Lookup(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

type emptySource struct{}

func (emptySource) Lookup(string) (any, bool) {
	return nil, false
}
