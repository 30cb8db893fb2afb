// Package contract holds route definitions and attaches operation metadata
// to them through the OpenAPI operation extension slot.
package contract

import (
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/conduit-lang/opmeta/pkg/opmeta"
)

// Route is one HTTP operation of the contract
type Route struct {
	Method    string
	Path      string
	Operation *openapi3.Operation
}

// NewRoute creates a route with an empty operation
func NewRoute(method, path string) Route {
	op := openapi3.NewOperation()
	op.Responses = openapi3.NewResponses()
	return Route{
		Method:    strings.ToUpper(method),
		Path:      path,
		Operation: op,
	}
}

// Op creates a route and attaches meta to it
func Op(method, path string, meta *opmeta.OpMeta) Route {
	return Attach(NewRoute(method, path), meta)
}

// Get, Post, Put, Patch and Delete are shorthands for Op
func Get(path string, meta *opmeta.OpMeta) Route    { return Op(http.MethodGet, path, meta) }
func Post(path string, meta *opmeta.OpMeta) Route   { return Op(http.MethodPost, path, meta) }
func Put(path string, meta *opmeta.OpMeta) Route    { return Op(http.MethodPut, path, meta) }
func Patch(path string, meta *opmeta.OpMeta) Route  { return Op(http.MethodPatch, path, meta) }
func Delete(path string, meta *opmeta.OpMeta) Route { return Op(http.MethodDelete, path, meta) }

// String renders the route as "METHOD /path"
func (r Route) String() string {
	return r.Method + " " + r.Path
}
