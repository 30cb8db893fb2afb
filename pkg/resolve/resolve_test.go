package resolve

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/opmeta/pkg/opmeta"
)

func binding(invoke opmeta.Invoke, args ...opmeta.CallArg) *opmeta.ServiceBinding {
	return &opmeta.ServiceBinding{
		ImportPath: "example.com/svc",
		Fn:         "Do",
		Invoke:     invoke,
		CallArgs:   args,
	}
}

func TestResolve_ObjectScenario(t *testing.T) {
	b := binding(opmeta.InvokeObject,
		opmeta.CallArg{Name: "amount", From: opmeta.SourceBody, Key: "amount"},
		opmeta.CallArg{Name: "tenantId", From: opmeta.SourceParams, Key: "tenantId"},
	)

	args, err := NewResolver(nil, nil).Resolve(b, Request{
		Params: map[string]any{"tenantId": "t1"},
		Body:   map[string]any{"amount": 500},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tenantId": "t1", "amount": 500}, args.Named)
	assert.Equal(t, 2, args.Len())
}

func TestResolve_OptionalWithValueFallback(t *testing.T) {
	b := binding("", opmeta.CallArg{
		Name: "env", From: opmeta.SourceQuery, Key: "env", Optional: true,
		Fallback: &opmeta.Fallback{Kind: opmeta.FallbackValue, Value: "production"},
	})

	args, err := NewResolver(nil, nil).Resolve(b, Request{Query: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"env": "production"}, args.Named)
}

func TestResolve_OptionalOmitted(t *testing.T) {
	b := binding(opmeta.InvokeObject, opmeta.CallArg{
		Name: "expiresAt", From: opmeta.SourceBody, Key: "expiresAt", Optional: true, Transform: opmeta.TransformDate,
	})

	args, err := NewResolver(nil, nil).Resolve(b, Request{Body: map[string]any{}})
	require.NoError(t, err)
	_, ok := args.Get("expiresAt")
	assert.False(t, ok)
	assert.Empty(t, args.Named)
}

func TestResolve_RequiredUndefinedPassesNil(t *testing.T) {
	b := binding(opmeta.InvokeObject, opmeta.CallArg{Name: "note", From: opmeta.SourceBody, Key: "note"})

	args, err := NewResolver(nil, nil).Resolve(b, Request{Body: map[string]any{}})
	require.NoError(t, err)
	v, ok := args.Get("note")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestResolve_FallbackPrecedence(t *testing.T) {
	fallbacks := []*opmeta.Fallback{
		{Kind: opmeta.FallbackValue, Value: "default"},
		{Kind: opmeta.FallbackEnv, Key: "REGION"},
	}
	config := MapSource{"REGION": "eu-west-1"}

	for _, fb := range fallbacks {
		t.Run(string(fb.Kind), func(t *testing.T) {
			b := binding("", opmeta.CallArg{Name: "region", From: opmeta.SourceQuery, Key: "region", Fallback: fb})
			r := NewResolver(config, nil)

			// Present values win, including a defined nil.
			for _, present := range []any{"us-east-1", "", nil} {
				args, err := r.Resolve(b, Request{Query: map[string]any{"region": present}})
				require.NoError(t, err)
				assert.Equal(t, present, args.Named["region"])
			}

			args, err := r.Resolve(b, Request{Query: map[string]any{}})
			require.NoError(t, err)
			assert.NotNil(t, args.Named["region"])
		})
	}
}

func TestResolve_EnvFallbackReadsCurrentConfig(t *testing.T) {
	current := "blue"
	source := ConfigFunc(func(key string) (any, bool) {
		if key != "DEPLOY_COLOR" {
			return nil, false
		}
		return current, true
	})
	b := binding("", opmeta.CallArg{
		Name: "color", From: opmeta.SourceQuery, Key: "color",
		Fallback: &opmeta.Fallback{Kind: opmeta.FallbackEnv, Key: "DEPLOY_COLOR"},
	})
	r := NewResolver(source, nil)

	args, err := r.Resolve(b, Request{})
	require.NoError(t, err)
	assert.Equal(t, "blue", args.Named["color"])

	current = "green"
	args, err = r.Resolve(b, Request{})
	require.NoError(t, err)
	assert.Equal(t, "green", args.Named["color"])
}

func TestResolve_MissingEnvFallback(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	b := binding("", opmeta.CallArg{
		Name: "apiKey", From: opmeta.SourceCtx, Key: "apiKey",
		Fallback: &opmeta.Fallback{Kind: opmeta.FallbackEnv, Key: "BILLING_API_KEY"},
	})
	r := NewResolver(MapSource{}, zap.New(core))

	_, err := r.Resolve(b, Request{Ctx: map[string]any{}})
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "BILLING_API_KEY", cfgErr.Key)
	assert.Equal(t, http.StatusInternalServerError, cfgErr.StatusCode())
	assert.Equal(t, 1, logs.Len())

	assert.Error(t, r.Preflight(b))
	assert.NoError(t, NewResolver(MapSource{"BILLING_API_KEY": "k"}, nil).Preflight(b))
}

func TestResolve_Const(t *testing.T) {
	b := binding(opmeta.InvokeObject,
		opmeta.CallArg{Name: "source", From: opmeta.SourceConst, Value: "api"},
		opmeta.CallArg{Name: "limit", From: opmeta.SourceConst, Value: "25", Transform: opmeta.TransformNumber},
	)

	args, err := NewResolver(nil, nil).Resolve(b, Request{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"source": "api", "limit": float64(25)}, args.Named)
}

func TestResolve_ForwardWholeSource(t *testing.T) {
	body := map[string]any{"name": "Ada", "plan": "pro"}
	b := binding(opmeta.InvokeObject, opmeta.CallArg{Name: "input", From: opmeta.SourceBody})

	args, err := NewResolver(nil, nil).Resolve(b, Request{Body: body})
	require.NoError(t, err)
	assert.Equal(t, body, args.Named["input"])
}

func TestResolve_Positional(t *testing.T) {
	b := binding(opmeta.InvokePositional,
		opmeta.CallArg{Name: "0", From: opmeta.SourceParams, Key: "id"},
		opmeta.CallArg{Name: "1", From: opmeta.SourceBody, Key: "patch"},
		opmeta.CallArg{Name: "2", From: opmeta.SourceQuery, Key: "dryRun", Optional: true, Transform: opmeta.TransformBoolean},
	)
	r := NewResolver(nil, nil)

	args, err := r.Resolve(b, Request{
		Params: map[string]any{"id": "42"},
		Body:   map[string]any{"patch": map[string]any{"a": 1}},
		Query:  map[string]any{"dryRun": "true"},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"42", map[string]any{"a": 1}, true}, args.Positional)
	assert.Equal(t, true, args.At(2))

	// Trailing optional argument is dropped and the list shrinks.
	args, err = r.Resolve(b, Request{
		Params: map[string]any{"id": "42"},
		Body:   map[string]any{"patch": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"42", nil}, args.Positional)
	assert.Nil(t, args.At(2))
	assert.Equal(t, 2, args.Len())
}

func TestResolve_PositionalSlotOutOfRange(t *testing.T) {
	tests := []string{"999999999999", "2", "-1", "first"}

	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			b := binding(opmeta.InvokePositional,
				opmeta.CallArg{Name: "0", From: opmeta.SourceParams, Key: "id"},
				opmeta.CallArg{Name: name, From: opmeta.SourceConst, Value: "x"},
			)

			_, err := NewResolver(nil, nil).Resolve(b, Request{Params: map[string]any{"id": "42"}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "slot index below 2")
		})
	}
}

func TestResolve_CoercionError(t *testing.T) {
	b := binding(opmeta.InvokeObject, opmeta.CallArg{
		Name: "amount", From: opmeta.SourceBody, Key: "amount", Transform: opmeta.TransformNumber,
	})

	_, err := NewResolver(nil, nil).Resolve(b, Request{Body: map[string]any{"amount": "lots"}})
	require.Error(t, err)

	var ce *CoercionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "amount", ce.Arg)
	assert.Equal(t, http.StatusBadRequest, ce.StatusCode())
}

func TestResolve_TransformSkipsNil(t *testing.T) {
	b := binding(opmeta.InvokeObject, opmeta.CallArg{
		Name: "at", From: opmeta.SourceBody, Key: "at", Transform: opmeta.TransformISODate,
	})

	args, err := NewResolver(nil, nil).Resolve(b, Request{Body: map[string]any{"at": nil}})
	require.NoError(t, err)
	v, ok := args.Get("at")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestResolve_NilBinding(t *testing.T) {
	args, err := NewResolver(nil, nil).Resolve(nil, Request{})
	require.NoError(t, err)
	assert.Equal(t, opmeta.InvokeObject, args.Mode)
	assert.Empty(t, args.Named)
}

func TestApply_ISODateIdempotent(t *testing.T) {
	canonical := []string{
		"2024-03-01T12:00:00.000Z",
		"1999-12-31T23:59:59.999Z",
	}
	for _, s := range canonical {
		out, err := Apply(opmeta.TransformISODate, s)
		require.NoError(t, err)
		assert.Equal(t, s, out)

		again, err := Apply(opmeta.TransformISODate, out)
		require.NoError(t, err)
		assert.Equal(t, out, again)
	}
}

func TestApply_Transforms(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		transform opmeta.Transform
		in        any
		want      any
	}{
		{"isoDate from offset", opmeta.TransformISODate, "2024-03-01T14:00:00+02:00", "2024-03-01T12:00:00.000Z"},
		{"isoDate from time", opmeta.TransformISODate, ts, "2024-03-01T12:00:00.000Z"},
		{"isoDate from epoch millis", opmeta.TransformISODate, float64(ts.UnixMilli()), "2024-03-01T12:00:00.000Z"},
		{"date from string", opmeta.TransformDate, "2024-03-01T12:00:00Z", ts},
		{"number from string", opmeta.TransformNumber, "12.5", 12.5},
		{"number from int", opmeta.TransformNumber, 7, float64(7)},
		{"string from number", opmeta.TransformString, 42, "42"},
		{"string from time", opmeta.TransformString, ts, "2024-03-01T12:00:00.000Z"},
		{"boolean from string", opmeta.TransformBoolean, "false", false},
		{"boolean from number", opmeta.TransformBoolean, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Apply(tt.transform, tt.in)
			require.NoError(t, err)
			if want, ok := tt.want.(time.Time); ok {
				got, isTime := out.(time.Time)
				require.True(t, isTime)
				assert.True(t, want.Equal(got))
				return
			}
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestApply_Failures(t *testing.T) {
	tests := []struct {
		transform opmeta.Transform
		in        any
	}{
		{opmeta.TransformNumber, "abc"},
		{opmeta.TransformNumber, "  "},
		{opmeta.TransformBoolean, "maybe"},
		{opmeta.TransformDate, "not a date"},
		{opmeta.TransformISODate, map[string]any{}},
		{"money", 1},
	}

	for _, tt := range tests {
		_, err := Apply(tt.transform, tt.in)
		assert.Error(t, err, "%s(%v)", tt.transform, tt.in)
	}
}
