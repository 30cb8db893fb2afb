package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/conduit-lang/opmeta/pkg/web/response"
)

// Validator parses and validates request input. It returns the parsed
// value, which replaces the raw input for argument resolution.
type Validator interface {
	Parse(v any) (any, error)
}

// ValidatorFunc adapts a function to Validator
type ValidatorFunc func(v any) (any, error)

// Parse implements Validator
func (f ValidatorFunc) Parse(v any) (any, error) {
	return f(v)
}

// SchemaValidator validates input against an OpenAPI schema and fills in
// declared defaults
type SchemaValidator struct {
	schema *openapi3.Schema
}

// NewSchemaValidator creates a validator for schema
func NewSchemaValidator(schema *openapi3.Schema) *SchemaValidator {
	return &SchemaValidator{schema: schema}
}

// Schema returns the validated schema
func (v *SchemaValidator) Schema() *openapi3.Schema {
	return v.schema
}

// Parse implements Validator. The input is copied before defaults are
// applied, so the caller's value is left as received.
func (v *SchemaValidator) Parse(in any) (any, error) {
	value, err := deepCopy(in)
	if err != nil {
		return nil, err
	}
	err = v.schema.VisitJSON(value,
		openapi3.VisitAsRequest(),
		openapi3.MultiErrors(),
		openapi3.DefaultsSet(func() {}),
	)
	if err != nil {
		return nil, err
	}
	return value, nil
}

func deepCopy(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("input is not JSON: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// invalidInput renders a validator failure as a 400 with one message per
// schema problem
func invalidInput(source string, err error) error {
	var msgs []string
	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		for _, e := range multi {
			msgs = append(msgs, e.Error())
		}
	} else {
		msgs = append(msgs, err.Error())
	}

	return response.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request %s", source)).
		WithCode("invalid_input").
		WithDetails(map[string]any{source: msgs}).
		Wrap(err)
}
