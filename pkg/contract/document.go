package contract

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// BearerScheme is the security scheme name used for authenticated operations
const BearerScheme = "bearerAuth"

var pathParamPattern = regexp.MustCompile(`\{([^}/]+)\}`)

var methodOrder = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions, http.MethodTrace,
}

// Document builds an OpenAPI document from routes. Each operation's
// operationId defaults to its op name and its security follows the auth
// flags; metadata stays in the extension slot.
func Document(title, version string, routes []Route) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info:    &openapi3.Info{Title: title, Version: version},
		Paths:   openapi3.NewPaths(),
		Components: &openapi3.Components{
			SecuritySchemes: openapi3.SecuritySchemes{
				BearerScheme: &openapi3.SecuritySchemeRef{
					Value: openapi3.NewJWTSecurityScheme(),
				},
			},
		},
	}

	for _, route := range routes {
		var op openapi3.Operation
		if route.Operation != nil {
			op = *route.Operation
		} else {
			op = *openapi3.NewOperation()
		}
		if op.Responses == nil || op.Responses.Len() == 0 {
			op.Responses = openapi3.NewResponses()
		}

		if meta, ok := Read(route); ok {
			if op.OperationID == "" {
				op.OperationID = meta.Op
			}
			if op.Security == nil {
				if meta.NeedsUser() {
					op.Security = openapi3.NewSecurityRequirements().With(
						openapi3.NewSecurityRequirement().Authenticate(BearerScheme),
					)
				} else {
					op.Security = openapi3.NewSecurityRequirements()
				}
			}
		}

		op.Parameters = withPathParameters(op.Parameters, route.Path)
		doc.AddOperation(route.Path, route.Method, &op)
	}
	return doc
}

// withPathParameters declares every templated path segment that the
// operation does not declare itself
func withPathParameters(params openapi3.Parameters, path string) openapi3.Parameters {
	declared := make(map[string]bool, len(params))
	for _, p := range params {
		if p != nil && p.Value != nil && p.Value.In == openapi3.ParameterInPath {
			declared[p.Value.Name] = true
		}
	}

	out := append(openapi3.Parameters(nil), params...)
	for _, m := range pathParamPattern.FindAllStringSubmatch(path, -1) {
		if declared[m[1]] {
			continue
		}
		declared[m[1]] = true
		param := openapi3.NewPathParameter(m[1]).WithSchema(openapi3.NewStringSchema())
		out = append(out, &openapi3.ParameterRef{Value: param})
	}
	return out
}

// FromDocument lists the routes of doc, sorted by path then method
func FromDocument(doc *openapi3.T) []Route {
	if doc == nil || doc.Paths == nil {
		return nil
	}

	paths := doc.Paths.InMatchingOrder()
	sort.Strings(paths)

	var routes []Route
	for _, path := range paths {
		item := doc.Paths.Value(path)
		if item == nil {
			continue
		}
		for _, method := range methodOrder {
			if op := item.GetOperation(method); op != nil {
				routes = append(routes, Route{Method: method, Path: path, Operation: op})
			}
		}
	}
	return routes
}

// Load reads and validates an OpenAPI document in JSON or YAML
func Load(ctx context.Context, path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid document %s: %w", path, err)
	}
	return doc, nil
}
