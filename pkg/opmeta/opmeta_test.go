package opmeta

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func validMeta() *OpMeta {
	return &OpMeta{
		Op:   "billing.subscribe",
		Perm: "billing:write",
		Invalidate: []InvalidationDirective{
			{Kind: InvalidatePrefix, Key: []string{"billing", "plans"}},
			{Kind: InvalidateOp, Target: "billing.get", Pick: []string{"tenantId"}},
		},
		Service: &ServiceBinding{
			ImportPath: "example.com/billing",
			Fn:         "Subscribe",
			CallArgs: []CallArg{
				{Name: "tenantId", From: SourceParams, Key: "tenantId"},
				{Name: "amount", From: SourceBody, Key: "amount", Transform: TransformNumber},
				{Name: "source", From: SourceConst, Value: "api"},
			},
			Audit: &AuditDirective{
				ResourceType:   "subscription",
				ResourceIDExpr: "result.id",
				AfterExpr:      "{ ...result, tenant: params.tenantId }",
			},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	assert.Nil(t, Validate(validMeta()))
}

func TestValidate_EmptyCollectionsAreValid(t *testing.T) {
	meta := &OpMeta{
		Op:      "health.check",
		Service: &ServiceBinding{ImportPath: "example.com/health", Fn: "Check"},
	}
	assert.Nil(t, Validate(meta))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *OpMeta)
		path   string
	}{
		{"missing op", func(m *OpMeta) { m.Op = "" }, "op"},
		{"bad op", func(m *OpMeta) { m.Op = "billing..x" }, "op"},
		{"bad invoke", func(m *OpMeta) { m.Service.Invoke = "named" }, "service.invoke"},
		{"bad source", func(m *OpMeta) { m.Service.CallArgs[0].From = "header" }, "service.callArgs[0].from"},
		{"bad transform", func(m *OpMeta) { m.Service.CallArgs[1].Transform = "money" }, "service.callArgs[1].transform"},
		{"missing name", func(m *OpMeta) { m.Service.CallArgs[0].Name = "" }, "service.callArgs[0].name"},
		{"const without value", func(m *OpMeta) { m.Service.CallArgs[2].Value = nil }, "service.callArgs[2].value"},
		{"const with fallback", func(m *OpMeta) {
			m.Service.CallArgs[2].Fallback = &Fallback{Kind: FallbackValue, Value: 1}
		}, "service.callArgs[2].fallback"},
		{"value on non-const", func(m *OpMeta) { m.Service.CallArgs[0].Value = "x" }, "service.callArgs[0].value"},
		{"env fallback without key", func(m *OpMeta) {
			m.Service.CallArgs[0].Fallback = &Fallback{Kind: FallbackEnv}
		}, "service.callArgs[0].fallback.key"},
		{"value fallback without value", func(m *OpMeta) {
			m.Service.CallArgs[0].Fallback = &Fallback{Kind: FallbackValue}
		}, "service.callArgs[0].fallback.value"},
		{"bad fallback kind", func(m *OpMeta) {
			m.Service.CallArgs[0].Fallback = &Fallback{Kind: "secret", Key: "X"}
		}, "service.callArgs[0].fallback.kind"},
		{"duplicate names", func(m *OpMeta) { m.Service.CallArgs[1].Name = "tenantId" }, "service.callArgs[1].name"},
		{"prefix without key", func(m *OpMeta) { m.Invalidate[0].Key = nil }, "invalidate[0].key"},
		{"prefix with target", func(m *OpMeta) { m.Invalidate[0].Target = "x.y" }, "invalidate[0].target"},
		{"op without target", func(m *OpMeta) { m.Invalidate[1].Target = "" }, "invalidate[1].target"},
		{"bad invalidation kind", func(m *OpMeta) { m.Invalidate[1].Kind = "all" }, "invalidate[1].kind"},
		{"bad invalidation source", func(m *OpMeta) { m.Invalidate[1].From = "ctx" }, "invalidate[1].from"},
		{"raw without factory", func(m *OpMeta) {
			m.Service.Raw = true
			m.Service.CallArgs = nil
		}, "service.factory"},
		{"raw with call args", func(m *OpMeta) {
			m.Service.Raw = true
			m.Service.Factory = "billing.webhook"
		}, "service.callArgs"},
		{"factory without raw", func(m *OpMeta) { m.Service.Factory = "x" }, "service.factory"},
		{"missing fn", func(m *OpMeta) { m.Service.Fn = "" }, "service.fn"},
		{"missing resource type", func(m *OpMeta) { m.Service.Audit.ResourceType = "" }, "service.audit.resourceType"},
		{"bad audit expression", func(m *OpMeta) { m.Service.Audit.ResourceIDExpr = "result.id +" }, "service.audit.resourceIdExpr"},
		{"allowUnauthed with perm", func(m *OpMeta) { m.AllowUnauthed = true }, "allowUnauthed"},
		{"bad cache ttl", func(m *OpMeta) { m.Cache = &CacheRule{TTL: "soon"} }, "cache.ttl"},
		{"cache with ctx argument", func(m *OpMeta) {
			m.Cache = &CacheRule{Key: []string{"me"}}
			m.Service.CallArgs = append(m.Service.CallArgs, CallArg{Name: "userId", From: SourceCtx, Key: "userId"})
		}, "cache"},
		{"cache with raw factory", func(m *OpMeta) {
			m.Cache = &CacheRule{Key: []string{"hooks"}}
			m.Service = &ServiceBinding{Raw: true, Factory: "billing.webhook"}
		}, "cache"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := validMeta()
			tt.mutate(meta)
			verrs := Validate(meta)
			require.NotNil(t, verrs)
			assert.Contains(t, verrs.Fields, tt.path, verrs.Error())
		})
	}
}

func TestValidate_PositionalDensity(t *testing.T) {
	meta := &OpMeta{
		Op: "files.move",
		Service: &ServiceBinding{
			ImportPath: "example.com/files",
			Fn:         "Move",
			Invoke:     InvokePositional,
			CallArgs: []CallArg{
				{Name: "0", From: SourceParams, Key: "from"},
				{Name: "2", From: SourceParams, Key: "to"},
			},
		},
	}

	verrs := Validate(meta)
	require.NotNil(t, verrs)
	assert.Contains(t, verrs.Fields, "service.callArgs[1].name")

	meta.Service.CallArgs[1].Name = "1"
	assert.Nil(t, Validate(meta))
}

func TestValidate_PositionalOptionalSuffix(t *testing.T) {
	meta := &OpMeta{
		Op: "files.copy",
		Service: &ServiceBinding{
			ImportPath: "example.com/files",
			Fn:         "Copy",
			Invoke:     InvokePositional,
			CallArgs: []CallArg{
				{Name: "0", From: SourceParams, Key: "from"},
				{Name: "1", From: SourceQuery, Key: "mode", Optional: true},
				{Name: "2", From: SourceBody, Key: "to"},
			},
		},
	}

	verrs := Validate(meta)
	require.NotNil(t, verrs)
	assert.Contains(t, verrs.Fields, "service.callArgs[1].optional")

	// An optional argument with a fallback always resolves, so it may sit mid-list.
	meta.Service.CallArgs[1].Fallback = &Fallback{Kind: FallbackValue, Value: "copy"}
	assert.Nil(t, Validate(meta))
}

func TestDecode_Valid(t *testing.T) {
	candidate := map[string]any{
		"op":         "billing.subscribe",
		"idempotent": true,
		"invalidate": []any{
			map[string]any{"kind": "prefix", "key": []any{"billing", "plans"}},
		},
		"service": map[string]any{
			"importPath": "example.com/billing",
			"fn":         "Subscribe",
			"invoke":     "object",
			"callArgs": []any{
				map[string]any{"name": "amount", "from": "body", "key": "amount", "optional": true},
				map[string]any{"name": "env", "from": "query", "key": "env",
					"fallback": map[string]any{"kind": "value", "value": "production"}},
			},
		},
	}

	meta, verrs := Decode(candidate)
	require.Nil(t, verrs)
	assert.Equal(t, "billing.subscribe", meta.Op)
	assert.True(t, meta.Idempotent)
	require.NotNil(t, meta.Service)
	assert.Equal(t, InvokeObject, meta.Service.Invoke)
	require.Len(t, meta.Service.CallArgs, 2)
	assert.True(t, meta.Service.CallArgs[0].Optional)
	assert.Equal(t, "production", meta.Service.CallArgs[1].Fallback.Value)
	assert.Equal(t, []string{"billing", "plans"}, meta.Invalidate[0].Key)
}

func TestDecode_UnknownFields(t *testing.T) {
	candidate := map[string]any{
		"op":  "billing.subscribe",
		"foo": 1,
		"service": map[string]any{
			"importPath": "example.com/billing",
			"fn":         "Subscribe",
			"callArgs": []any{
				map[string]any{"name": "amount", "from": "body", "fooo": true},
			},
		},
	}

	_, verrs := Decode(candidate)
	require.NotNil(t, verrs)
	assert.Equal(t, []string{"unknown field"}, verrs.Fields["foo"])
	assert.Equal(t, []string{"unknown field"}, verrs.Fields["service.callArgs[0].fooo"])
}

func TestDecode_ShapeMismatch(t *testing.T) {
	tests := []struct {
		name      string
		candidate map[string]any
		path      string
	}{
		{
			name:      "list given a string",
			candidate: map[string]any{"op": "a.b", "invalidate": "everything"},
			path:      "invalidate",
		},
		{
			name: "nested call argument name",
			candidate: map[string]any{
				"op": "a.b",
				"service": map[string]any{
					"importPath": "example.com/a",
					"fn":         "B",
					"callArgs":   []any{map[string]any{"name": 1, "from": "body"}},
				},
			},
			path: "service.callArgs[0].name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, verrs := Decode(tt.candidate)
			require.NotNil(t, verrs)
			assert.Contains(t, verrs.Fields, tt.path, verrs.Error())
			assert.NotContains(t, verrs.Fields, DecodePath)
		})
	}

	_, verrs := Decode(map[string]any{
		"op":         "a.b",
		"perm":       []any{"x"},
		"invalidate": "everything",
	})
	require.NotNil(t, verrs)
	assert.Equal(t, []string{"invalidate", "perm"}, verrs.Paths())
}

func TestGate_StrictRejectsUnknownField(t *testing.T) {
	gate := NewGate(ModeStrict, nil)
	meta, err := gate.CheckCandidate(map[string]any{"op": "billing.subscribe", "foo": 1})
	require.Error(t, err)
	assert.Nil(t, meta)

	var verrs *ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs.Fields, "foo")
}

func TestGate_WarnContinues(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	gate := NewGate(ModeWarn, zap.New(core))

	meta, err := gate.CheckCandidate(map[string]any{"op": "billing.subscribe", "foo": 1})
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "billing.subscribe", meta.Op)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "billing.subscribe", entries[0].ContextMap()["op"])
}

func TestGate_CheckTyped(t *testing.T) {
	gate := NewGate("", nil)
	assert.Equal(t, ModeStrict, gate.Mode())

	meta, err := gate.Check(validMeta())
	require.NoError(t, err)
	assert.Equal(t, "billing.subscribe", meta.Op)

	_, err = gate.Check(&OpMeta{})
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("warn")
	require.NoError(t, err)
	assert.Equal(t, ModeWarn, m)

	_, err = ParseMode("loose")
	assert.Error(t, err)
}

func TestValidationErrors_JSON(t *testing.T) {
	verrs := NewValidationErrors("a.b")
	verrs.Add("op", "is required")
	verrs.Add("op", "must be a dotted identifier such as billing.subscribe")

	assert.Equal(t, 2, verrs.Count())
	assert.Contains(t, verrs.Error(), "a.b")

	data, err := json.Marshal(verrs)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"invalid_opmeta","op":"a.b","fields":{"op":["is required","must be a dotted identifier such as billing.subscribe"]}}`, string(data))
}

func TestOpMeta_Flags(t *testing.T) {
	meta := &OpMeta{Op: "a.b", Service: &ServiceBinding{RequireTenantMatch: true, RequireSuperAdmin: true}}
	assert.True(t, meta.NeedsTenantMatch())
	assert.True(t, meta.NeedsSuperAdmin())
	assert.True(t, meta.NeedsUser())
	assert.Equal(t, []string{"a.b"}, meta.CacheKeyPrefix())

	public := &OpMeta{Op: "a.c", AllowUnauthed: true}
	assert.False(t, public.NeedsUser())
	assert.Equal(t, InvokeObject, public.Service.InvokeMode())
}
