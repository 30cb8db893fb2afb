package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/conduit-lang/opmeta/pkg/audit"
	"github.com/conduit-lang/opmeta/pkg/invalidate"
	"github.com/conduit-lang/opmeta/pkg/opmeta"
	"github.com/conduit-lang/opmeta/pkg/resolve"
	"github.com/conduit-lang/opmeta/pkg/web/auth"
	"github.com/conduit-lang/opmeta/pkg/web/cache"
	"github.com/conduit-lang/opmeta/pkg/web/middleware"
	"github.com/conduit-lang/opmeta/pkg/web/response"
)

// CacheHeader reports whether a read-through response came from the cache
const CacheHeader = "X-Cache"

// incoming is the parsed HTTP request before validation
type incoming struct {
	params map[string]any
	query  map[string]any
	body   any
	raw    []byte
}

func (rt *Runtime) handler(meta *opmeta.OpMeta) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		if err := rt.serve(meta, sw, r); err != nil {
			rt.fail(meta, sw, r, err)
		}
		rt.metrics.observe(meta.Op, sw.status, time.Since(start))
	}
}

func (rt *Runtime) serve(meta *opmeta.OpMeta, w http.ResponseWriter, r *http.Request) error {
	session, _ := auth.FromContext(r.Context())
	if err := rt.authorizer.Authorize(meta, session); err != nil {
		return err
	}

	in, err := rt.readRequest(r)
	if err != nil {
		return err
	}
	if err := auth.CheckTenant(meta, session, rt.requestTenant(in)); err != nil {
		return err
	}

	binding := meta.Service
	input := in.body
	if binding != nil {
		if binding.ZodQuery != "" {
			parsed, err := rt.validators[binding.ZodQuery].Parse(in.query)
			if err != nil {
				return invalidInput("query", err)
			}
			query, ok := parsed.(map[string]any)
			if !ok {
				return fmt.Errorf("query validator %q returned %T, want an object", binding.ZodQuery, parsed)
			}
			in.query = query
		}
		if binding.ZodBody != "" {
			if input, err = rt.validators[binding.ZodBody].Parse(in.body); err != nil {
				return invalidInput("body", err)
			}
		}
	}

	req := resolve.Request{
		Params: in.params,
		Query:  in.query,
		Body:   input,
		Ctx:    requestContext(r, session),
	}

	if binding == nil {
		rt.afterSuccess(r.Context(), meta, req, in.body, nil)
		response.NoContent(w)
		return nil
	}

	key := rt.readThroughKey(r, meta, req)
	if key != "" {
		data, err := rt.cache.Get(r.Context(), key)
		switch {
		case err == nil:
			rt.metrics.cacheLookup(meta.Op, true)
			w.Header().Set(CacheHeader, "HIT")
			return response.RawJSON(w, http.StatusOK, data)
		case !cache.IsCacheMiss(err):
			rt.logger.Warn("cache read failed", zap.String("op", meta.Op), zap.String("key", key), zap.Error(err))
		}
		rt.metrics.cacheLookup(meta.Op, false)
	}

	result, err := rt.invoke(r, binding, req, in.raw)
	if err != nil {
		return err
	}
	if ctxErr := r.Context().Err(); ctxErr != nil {
		return cancelled(ctxErr)
	}

	rt.afterSuccess(r.Context(), meta, req, in.body, result)

	if result == nil {
		response.NoContent(w)
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if key != "" {
		if err := rt.cache.Set(context.WithoutCancel(r.Context()), key, data, rt.ttlFor(meta)); err != nil {
			rt.logger.Warn("cache write failed", zap.String("op", meta.Op), zap.String("key", key), zap.Error(err))
		}
		w.Header().Set(CacheHeader, "MISS")
	}
	return response.RawJSON(w, http.StatusOK, data)
}

func (rt *Runtime) invoke(r *http.Request, binding *opmeta.ServiceBinding, req resolve.Request, raw []byte) (any, error) {
	if binding.Raw {
		factory, ok := rt.backends.Factory(binding)
		if !ok {
			return nil, fmt.Errorf("no factory registered for %q", binding.Factory)
		}
		r.Body = io.NopCloser(bytes.NewReader(raw))
		return factory(r.Context(), r)
	}

	args, err := rt.resolver.Resolve(binding, req)
	if err != nil {
		return nil, err
	}
	invoker, ok := rt.backends.Invoker(binding)
	if !ok {
		return nil, fmt.Errorf("no backend registered for %q", binding.Locator())
	}
	return invoker(r.Context(), args)
}

// afterSuccess runs the invalidation and audit side effects of a completed
// call. They run detached from request cancellation and never change the
// response.
func (rt *Runtime) afterSuccess(parent context.Context, meta *opmeta.OpMeta, req resolve.Request, body, result any) {
	ctx := context.WithoutCancel(parent)

	if len(meta.Invalidate) > 0 {
		targets, errs := rt.registry.Compute(meta.Invalidate, req)
		for _, err := range errs {
			rt.logger.Warn("invalidation directive failed", zap.String("op", meta.Op), zap.Error(err))
			rt.metrics.sideEffectFailed(meta.Op, "invalidate")
		}
		if rt.purger != nil {
			for range rt.purger.Purge(ctx, targets) {
				rt.metrics.sideEffectFailed(meta.Op, "purge")
			}
		}
	}

	if d := meta.Audit(); d != nil {
		rec := rt.auditor.Build(meta.Op, d, audit.Input{
			Params: req.Params,
			Body:   body,
			Input:  req.Body,
			Result: result,
			Ctx:    req.Ctx,
		})
		if rec == nil {
			return
		}
		if err := rt.sink.Write(ctx, rec); err != nil {
			rt.logger.Error("audit write failed", zap.String("op", meta.Op), zap.Error(err))
			rt.metrics.sideEffectFailed(meta.Op, "audit")
		}
	}
}

// readThroughKey returns the cache key for a cacheable GET, or "" when the
// request is not served from the cache. Only exact keys are cached.
// Caller-scoped operations are never cached.
func (rt *Runtime) readThroughKey(r *http.Request, meta *opmeta.OpMeta, req resolve.Request) string {
	if rt.cache == nil || meta.Cache == nil || r.Method != http.MethodGet || meta.CallerScoped() {
		return ""
	}
	rule, ok := rt.registry.Rule(meta.Op)
	if !ok {
		return ""
	}

	fields := make(map[string]any, len(req.Params)+len(req.Query))
	for k, v := range req.Query {
		fields[k] = v
	}
	for k, v := range req.Params {
		fields[k] = v
	}

	target, err := rule.Apply(fields)
	if err != nil || (target.Prefix && len(rule.Vary) > 0) {
		return ""
	}
	return target.Key.String()
}

func (rt *Runtime) ttlFor(meta *opmeta.OpMeta) time.Duration {
	if rule := invalidate.RuleFor(meta); rule.TTL > 0 {
		return rule.TTL
	}
	return rt.cacheTTL
}

func (rt *Runtime) readRequest(r *http.Request) (*incoming, error) {
	in := &incoming{
		params: map[string]any{},
		query:  map[string]any{},
	}

	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, k := range rctx.URLParams.Keys {
			if k == "*" || i >= len(rctx.URLParams.Values) {
				continue
			}
			in.params[k] = rctx.URLParams.Values[i]
		}
	}

	for k, vs := range r.URL.Query() {
		if len(vs) == 1 {
			in.query[k] = vs[0]
			continue
		}
		list := make([]any, len(vs))
		for i, v := range vs {
			list[i] = v
		}
		in.query[k] = list
	}

	if r.Body == nil || r.Body == http.NoBody {
		return in, nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, rt.maxBodyBytes+1))
	if err != nil {
		return nil, response.NewHTTPError(http.StatusBadRequest, "failed to read request body").Wrap(err)
	}
	if int64(len(raw)) > rt.maxBodyBytes {
		return nil, response.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}
	in.raw = raw
	if len(bytes.TrimSpace(raw)) == 0 {
		return in, nil
	}
	if err := json.Unmarshal(raw, &in.body); err != nil {
		return nil, response.NewHTTPError(http.StatusBadRequest, "request body is not valid JSON").Wrap(err)
	}
	return in, nil
}

// requestTenant finds the tenant a request acts on: path parameters first,
// then query, then the body.
func (rt *Runtime) requestTenant(in *incoming) string {
	if v, ok := in.params[rt.tenantField]; ok {
		return cast.ToString(v)
	}
	if v, ok := in.query[rt.tenantField]; ok {
		return cast.ToString(v)
	}
	if body, ok := in.body.(map[string]any); ok {
		if v, ok := body[rt.tenantField]; ok {
			return cast.ToString(v)
		}
	}
	return ""
}

// requestContext builds the ctx source seen by call arguments and audit
// expressions. Keys are only present when known.
func requestContext(r *http.Request, s *auth.Session) map[string]any {
	ctx := map[string]any{}
	if id := middleware.GetRequestID(r.Context()); id != "" {
		ctx[audit.CtxRequestID] = id
	}
	if s.Authenticated() {
		ctx[audit.CtxUserID] = s.UserID
		ctx["roles"] = append([]string(nil), s.Roles...)
		ctx["superAdmin"] = s.SuperAdmin
		if s.TenantID != "" {
			ctx[audit.CtxTenantID] = s.TenantID
		}
	}
	return ctx
}

func cancelled(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return response.NewHTTPError(http.StatusGatewayTimeout, "request timed out").Wrap(err)
	}
	return response.NewHTTPError(http.StatusServiceUnavailable, "request cancelled").Wrap(err)
}

func (rt *Runtime) fail(meta *opmeta.OpMeta, w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var sc response.StatusCoder
	if errors.As(err, &sc) {
		status = sc.StatusCode()
	}

	fields := []zap.Field{
		zap.String("op", meta.Op),
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		rt.logger.Error("operation failed", fields...)
	} else {
		rt.logger.Debug("operation rejected", fields...)
	}
	response.RenderError(w, err)
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
		w.ResponseWriter.WriteHeader(status)
	}
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
