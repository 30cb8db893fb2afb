package resolve

import (
	"fmt"
	"net/http"
)

// CoercionError is returned when a transform cannot convert a request value.
// It is a client input error.
type CoercionError struct {
	Arg       string
	Transform string
	Value     any
	Err       error
}

// Error implements the error interface
func (e *CoercionError) Error() string {
	return fmt.Sprintf("argument %q: cannot apply %s transform to %v: %v", e.Arg, e.Transform, e.Value, e.Err)
}

// Unwrap returns the underlying conversion error
func (e *CoercionError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status for this error
func (e *CoercionError) StatusCode() int {
	return http.StatusBadRequest
}

// ConfigError is returned when an env fallback names a configuration key that
// is not set. It is a server misconfiguration.
type ConfigError struct {
	Arg string
	Key string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("argument %q: configuration key %q is not set", e.Arg, e.Key)
}

// StatusCode returns the HTTP status for this error
func (e *ConfigError) StatusCode() int {
	return http.StatusInternalServerError
}
