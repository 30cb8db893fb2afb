package opmeta

import (
	"errors"
	"sort"

	"github.com/go-viper/mapstructure/v2"
)

// Decode converts a loosely typed candidate (decoded JSON/YAML, an OpenAPI
// extension value) into an OpMeta. The schema is closed: unknown keys at any
// depth are reported by path, as are shape mismatches. The returned OpMeta is
// whatever could be decoded, so lenient callers can continue with it.
func Decode(candidate map[string]any) (*OpMeta, *ValidationErrors) {
	op, _ := candidate["op"].(string)
	verrs := NewValidationErrors(op)

	meta := &OpMeta{}
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:  "json",
		Metadata: &md,
		Result:   meta,
	})
	if err != nil {
		verrs.Add(DecodePath, err.Error())
		return meta, verrs
	}

	if err := decoder.Decode(candidate); err != nil {
		addDecodeErrors(verrs, err)
	}

	unused := append([]string(nil), md.Unused...)
	sort.Strings(unused)
	for _, path := range unused {
		verrs.Add(path, "unknown field")
	}

	if verrs.HasErrors() {
		return meta, verrs
	}
	return meta, nil
}

// addDecodeErrors files each decode problem under the field path
// mapstructure reports for it
func addDecodeErrors(verrs *ValidationErrors, err error) {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			addDecodeErrors(verrs, e)
		}
		return
	}

	if de, ok := err.(*mapstructure.DecodeError); ok {
		cause := de.Unwrap()
		if _, ok := cause.(interface{ Unwrap() []error }); ok {
			addDecodeErrors(verrs, cause)
			return
		}
		path := de.Name()
		if path == "" {
			path = DecodePath
		}
		verrs.Add(path, cause.Error())
		return
	}

	if inner := errors.Unwrap(err); inner != nil {
		addDecodeErrors(verrs, inner)
		return
	}
	verrs.Add(DecodePath, err.Error())
}
