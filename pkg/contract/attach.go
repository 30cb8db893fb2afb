package contract

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/conduit-lang/opmeta/pkg/opmeta"
)

// Extension is the OpenAPI operation extension holding operation metadata
const Extension = "x-opmeta"

// ErrNoMetadata is returned for routes without attached metadata
var ErrNoMetadata = errors.New("route has no operation metadata")

// Attach returns route with meta stored in its operation's extensions. The
// operation is copied, so the route passed in is left unchanged.
func Attach(route Route, meta *opmeta.OpMeta) Route {
	var op openapi3.Operation
	if route.Operation != nil {
		op = *route.Operation
	} else {
		op = *openapi3.NewOperation()
	}

	ext := make(map[string]any, len(op.Extensions)+1)
	for k, v := range op.Extensions {
		ext[k] = v
	}
	ext[Extension] = meta
	op.Extensions = ext

	route.Operation = &op
	return route
}

// Read returns the metadata attached to route. Serialized forms left by
// loading a document are decoded; use Checked for closed-world validation.
func Read(route Route) (*opmeta.OpMeta, bool) {
	raw, ok := extension(route)
	if !ok {
		return nil, false
	}
	if meta, ok := raw.(*opmeta.OpMeta); ok {
		return meta, meta != nil
	}

	data, err := toJSON(raw)
	if err != nil {
		return nil, false
	}
	meta := &opmeta.OpMeta{}
	if err := json.Unmarshal(data, meta); err != nil {
		return nil, false
	}
	return meta, true
}

// Checked reads route's metadata through gate. Typed metadata is validated
// as is; serialized metadata is decoded closed-world first, so unknown keys
// are reported.
func Checked(route Route, gate *opmeta.Gate) (*opmeta.OpMeta, error) {
	raw, ok := extension(route)
	if !ok {
		return nil, ErrNoMetadata
	}

	if meta, ok := raw.(*opmeta.OpMeta); ok {
		return gate.Check(meta)
	}

	candidate, err := Candidate(raw)
	if err != nil {
		return nil, err
	}
	return gate.CheckCandidate(candidate)
}

// Candidate converts a serialized extension value into a generic map
func Candidate(raw any) (map[string]any, error) {
	if m, ok := raw.(map[string]any); ok {
		return m, nil
	}
	data, err := toJSON(raw)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid %s extension: %w", Extension, err)
	}
	return m, nil
}

func extension(route Route) (any, bool) {
	if route.Operation == nil || route.Operation.Extensions == nil {
		return nil, false
	}
	raw, ok := route.Operation.Extensions[Extension]
	if meta, typed := raw.(*opmeta.OpMeta); typed && meta == nil {
		return nil, false
	}
	return raw, ok && raw != nil
}

func toJSON(raw any) ([]byte, error) {
	switch v := raw.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s extension: %w", Extension, err)
		}
		return data, nil
	}
}
