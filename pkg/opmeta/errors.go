package opmeta

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// DecodePath is the field path used for errors that cannot be attributed to
// a single field.
const DecodePath = "$"

// ValidationErrors maps a field path (for example service.callArgs[1].name)
// to the problems found there.
type ValidationErrors struct {
	Op     string              `json:"op,omitempty"`
	Fields map[string][]string `json:"fields"`
}

// NewValidationErrors creates a new ValidationErrors instance
func NewValidationErrors(op string) *ValidationErrors {
	return &ValidationErrors{
		Op:     op,
		Fields: make(map[string][]string),
	}
}

// Add adds a validation error for a specific field path
func (ve *ValidationErrors) Add(path, message string) {
	if ve.Fields == nil {
		ve.Fields = make(map[string][]string)
	}
	ve.Fields[path] = append(ve.Fields[path], message)
}

// Merge copies every error from other into ve
func (ve *ValidationErrors) Merge(other *ValidationErrors) {
	if other == nil {
		return
	}
	for path, msgs := range other.Fields {
		for _, msg := range msgs {
			ve.Add(path, msg)
		}
	}
}

// HasErrors returns true if there are any validation errors
func (ve *ValidationErrors) HasErrors() bool {
	return ve != nil && len(ve.Fields) > 0
}

// Count returns the total number of validation errors across all fields
func (ve *ValidationErrors) Count() int {
	if ve == nil {
		return 0
	}
	count := 0
	for _, messages := range ve.Fields {
		count += len(messages)
	}
	return count
}

// Paths returns the field paths with errors in sorted order
func (ve *ValidationErrors) Paths() []string {
	paths := make([]string, 0, len(ve.Fields))
	for path := range ve.Fields {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Error implements the error interface
func (ve *ValidationErrors) Error() string {
	subject := "invalid operation metadata"
	if ve.Op != "" {
		subject = fmt.Sprintf("invalid operation metadata for %q", ve.Op)
	}
	if !ve.HasErrors() {
		return subject
	}

	var messages []string
	for _, path := range ve.Paths() {
		for _, msg := range ve.Fields[path] {
			messages = append(messages, fmt.Sprintf("  - %s: %s", path, msg))
		}
	}

	if len(messages) == 1 {
		return fmt.Sprintf("%s: %s", subject, strings.TrimPrefix(messages[0], "  - "))
	}

	return fmt.Sprintf("%s:\n%s", subject, strings.Join(messages, "\n"))
}

// MarshalJSON implements json.Marshaler for custom JSON serialization
func (ve *ValidationErrors) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error  string              `json:"error"`
		Op     string              `json:"op,omitempty"`
		Fields map[string][]string `json:"fields"`
	}{
		Error:  "invalid_opmeta",
		Op:     ve.Op,
		Fields: ve.Fields,
	})
}
