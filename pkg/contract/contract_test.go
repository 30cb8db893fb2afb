package contract

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/opmeta/pkg/opmeta"
)

func subscribeMeta() *opmeta.OpMeta {
	return &opmeta.OpMeta{
		Op:                 "billing.subscribe",
		Perm:               "billing.manage",
		RequireTenantMatch: true,
		Service: &opmeta.ServiceBinding{
			ImportPath: "example.com/billing",
			Fn:         "Subscribe",
			CallArgs: []opmeta.CallArg{
				{Name: "tenantId", From: opmeta.SourceParams, Key: "tenantId"},
				{Name: "plan", From: opmeta.SourceBody, Key: "plan"},
			},
		},
		Invalidate: []opmeta.InvalidationDirective{
			{Kind: opmeta.InvalidateOp, Target: "billing.get", Pick: []string{"tenantId"}},
		},
	}
}

func TestAttach_DoesNotMutateRoute(t *testing.T) {
	base := NewRoute("post", "/tenants/{tenantId}/subscription")
	base.Operation.Summary = "Subscribe"
	base.Operation.Extensions = map[string]any{"x-other": true}

	attached := Attach(base, subscribeMeta())

	assert.Equal(t, "POST", attached.Method)
	assert.Equal(t, base.Path, attached.Path)
	assert.Equal(t, "Subscribe", attached.Operation.Summary)
	assert.NotContains(t, base.Operation.Extensions, Extension)
	assert.Equal(t, true, attached.Operation.Extensions["x-other"])

	meta, ok := Read(attached)
	require.True(t, ok)
	assert.Equal(t, "billing.subscribe", meta.Op)

	_, ok = Read(base)
	assert.False(t, ok)
}

func TestRead_SerializedForms(t *testing.T) {
	data, err := json.Marshal(subscribeMeta())
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))

	forms := map[string]any{
		"map":         generic,
		"raw message": json.RawMessage(data),
		"bytes":       data,
	}

	for name, raw := range forms {
		t.Run(name, func(t *testing.T) {
			route := NewRoute("POST", "/x")
			route.Operation.Extensions = map[string]any{Extension: raw}

			meta, ok := Read(route)
			require.True(t, ok)
			assert.Equal(t, subscribeMeta(), meta)
		})
	}
}

func TestChecked(t *testing.T) {
	strict := opmeta.NewGate(opmeta.ModeStrict, nil)

	meta, err := Checked(Post("/t/{tenantId}", subscribeMeta()), strict)
	require.NoError(t, err)
	assert.Equal(t, "billing.subscribe", meta.Op)

	_, err = Checked(NewRoute("GET", "/bare"), strict)
	assert.ErrorIs(t, err, ErrNoMetadata)

	route := NewRoute("GET", "/x")
	route.Operation.Extensions = map[string]any{Extension: map[string]any{"op": "a.b", "foo": 1}}
	_, err = Checked(route, strict)
	var verrs *opmeta.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs.Fields, "foo")

	lenient := opmeta.NewGate(opmeta.ModeWarn, nil)
	meta, err = Checked(route, lenient)
	require.NoError(t, err)
	assert.Equal(t, "a.b", meta.Op)
}

func TestRouter_Routes(t *testing.T) {
	get := &opmeta.OpMeta{Op: "billing.get"}
	r := NewRouter()
	r.Handle(Get("/health", &opmeta.OpMeta{Op: "health.check", AllowUnauthed: true}))
	r.Group("/v1", func(v1 *Router) {
		v1.Group("/tenants/{tenantId}/", func(tenant *Router) {
			tenant.Handle(Get("/subscription", get), Post("subscription", subscribeMeta()))
		})
		v1.Handle(Get("/", &opmeta.OpMeta{Op: "root.index"}))
	})

	routes := r.Routes()
	require.Len(t, routes, 4)

	got := make([]string, len(routes))
	for i, route := range routes {
		got[i] = route.String()
	}
	assert.Equal(t, []string{
		"GET /health",
		"GET /v1/tenants/{tenantId}/subscription",
		"POST /v1/tenants/{tenantId}/subscription",
		"GET /v1",
	}, got)

	meta, ok := Read(routes[1])
	require.True(t, ok)
	assert.Same(t, get, meta)
}

func TestDocument_RoundTrip(t *testing.T) {
	routes := NewRouter().
		Handle(Get("/health", &opmeta.OpMeta{Op: "health.check", AllowUnauthed: true})).
		Handle(Post("/tenants/{tenantId}/subscription", subscribeMeta())).
		Routes()

	doc := Document("Billing", "1.0.0", routes)
	require.NoError(t, doc.Validate(context.Background()))

	post := doc.Paths.Find("/tenants/{tenantId}/subscription").Post
	require.NotNil(t, post)
	assert.Equal(t, "billing.subscribe", post.OperationID)
	require.NotNil(t, post.Security)
	assert.Len(t, *post.Security, 1)
	require.Len(t, post.Parameters, 1)
	assert.Equal(t, "tenantId", post.Parameters[0].Value.Name)

	health := doc.Paths.Find("/health").Get
	require.NotNil(t, health.Security)
	assert.Empty(t, *health.Security)

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "openapi.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := Load(context.Background(), path)
	require.NoError(t, err)

	back := FromDocument(loaded)
	require.Len(t, back, 2)
	assert.Equal(t, "GET /health", back[0].String())
	assert.Equal(t, "POST /tenants/{tenantId}/subscription", back[1].String())

	meta, err := Checked(back[1], opmeta.NewGate(opmeta.ModeStrict, nil))
	require.NoError(t, err)
	assert.Equal(t, subscribeMeta(), meta)
}

func TestFromDocument_Nil(t *testing.T) {
	assert.Nil(t, FromDocument(nil))
	assert.Nil(t, FromDocument(&openapi3.T{}))
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
