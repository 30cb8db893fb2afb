// Package opmeta defines the operation metadata model: a declarative
// description of one API operation's authorization posture, backend call
// wiring, cache side effects and audit hooks.
package opmeta

// Invoke selects how the backend function receives its arguments
type Invoke string

const (
	// InvokeObject passes a single object with one property per argument.
	InvokeObject Invoke = "object"
	// InvokePositional passes an ordered argument list.
	InvokePositional Invoke = "positional"
)

// Source names where a call argument is read from
type Source string

const (
	SourceParams Source = "params"
	SourceQuery  Source = "query"
	SourceBody   Source = "body"
	SourceCtx    Source = "ctx"
	SourceConst  Source = "const"
)

// Transform names a coercion applied to a resolved argument
type Transform string

const (
	TransformDate    Transform = "date"
	TransformISODate Transform = "isoDate"
	TransformNumber  Transform = "number"
	TransformString  Transform = "string"
	TransformBoolean Transform = "boolean"
)

// FallbackKind selects where a fallback value comes from
type FallbackKind string

const (
	FallbackEnv   FallbackKind = "env"
	FallbackValue FallbackKind = "value"
)

// InvalidationKind selects the shape of an invalidation directive
type InvalidationKind string

const (
	InvalidatePrefix InvalidationKind = "prefix"
	InvalidateKey    InvalidationKind = "key"
	InvalidateOp     InvalidationKind = "op"
)

// OpMeta describes one API operation
type OpMeta struct {
	Op                 string                  `json:"op" validate:"required"`
	Perm               string                  `json:"perm,omitempty"`
	RequireUser        bool                    `json:"requireUser,omitempty"`
	RequireSuperAdmin  bool                    `json:"requireSuperAdmin,omitempty"`
	AllowUnauthed      bool                    `json:"allowUnauthed,omitempty"`
	RequireTenantMatch bool                    `json:"requireTenantMatch,omitempty"`
	Idempotent         bool                    `json:"idempotent,omitempty"`
	Invalidate         []InvalidationDirective `json:"invalidate,omitempty" validate:"dive"`
	Service            *ServiceBinding         `json:"service,omitempty"`
	Cache              *CacheRule              `json:"cache,omitempty"`
}

// ServiceBinding describes how to invoke the backend function
type ServiceBinding struct {
	ImportPath         string          `json:"importPath,omitempty"`
	Fn                 string          `json:"fn,omitempty"`
	ZodBody            string          `json:"zodBody,omitempty"`
	ZodQuery           string          `json:"zodQuery,omitempty"`
	Invoke             Invoke          `json:"invoke,omitempty" validate:"omitempty,oneof=object positional"`
	CallArgs           []CallArg       `json:"callArgs,omitempty" validate:"dive"`
	Raw                bool            `json:"raw,omitempty"`
	Factory            string          `json:"factory,omitempty"`
	RequireTenantMatch bool            `json:"requireTenantMatch,omitempty"`
	RequireSuperAdmin  bool            `json:"requireSuperAdmin,omitempty"`
	Audit              *AuditDirective `json:"audit,omitempty"`
}

// CallArg binds one backend parameter to a request-derived or constant value
type CallArg struct {
	Name      string    `json:"name" validate:"required"`
	From      Source    `json:"from" validate:"required,oneof=params query body ctx const"`
	Key       string    `json:"key,omitempty"`
	Optional  bool      `json:"optional,omitempty"`
	Transform Transform `json:"transform,omitempty" validate:"omitempty,oneof=date isoDate number string boolean"`
	Value     any       `json:"value,omitempty"`
	Fallback  *Fallback `json:"fallback,omitempty"`
}

// Fallback supplies a value when the primary source value is undefined
type Fallback struct {
	Kind  FallbackKind `json:"kind" validate:"required,oneof=env value"`
	Key   string       `json:"key,omitempty"`
	Value any          `json:"value,omitempty"`
}

// InvalidationDirective purges cache entries after a successful call
type InvalidationDirective struct {
	Kind   InvalidationKind `json:"kind" validate:"required,oneof=prefix key op"`
	Key    []string         `json:"key,omitempty"`
	Target string           `json:"target,omitempty"`
	From   Source           `json:"from,omitempty" validate:"omitempty,oneof=params query body"`
	Pick   []string         `json:"pick,omitempty"`
}

// AuditDirective describes the audit entry written after a successful call
type AuditDirective struct {
	ResourceType   string `json:"resourceType" validate:"required"`
	ResourceIDExpr string `json:"resourceIdExpr,omitempty"`
	AfterExpr      string `json:"afterExpr,omitempty"`
}

// CacheRule is an operation's own cache-key construction rule. The key is the
// static prefix followed by the values of the Vary fields, in order.
type CacheRule struct {
	Key  []string `json:"key,omitempty"`
	Vary []string `json:"vary,omitempty"`
	TTL  string   `json:"ttl,omitempty"`
}

// InvokeMode returns the binding's invocation mode, defaulting to object
func (s *ServiceBinding) InvokeMode() Invoke {
	if s == nil || s.Invoke == "" {
		return InvokeObject
	}
	return s.Invoke
}

// SourceOrDefault returns the directive's source, defaulting to params
func (d InvalidationDirective) SourceOrDefault() Source {
	if d.From == "" {
		return SourceParams
	}
	return d.From
}

// Locator returns the backend function locator "importPath#fn", or the
// factory name for raw bindings.
func (s *ServiceBinding) Locator() string {
	if s == nil {
		return ""
	}
	if s.Raw {
		return s.Factory
	}
	return s.ImportPath + "#" + s.Fn
}

// NeedsTenantMatch reports whether the operation or its binding demands a
// tenant match. The stricter setting wins.
func (m *OpMeta) NeedsTenantMatch() bool {
	return m.RequireTenantMatch || (m.Service != nil && m.Service.RequireTenantMatch)
}

// NeedsSuperAdmin reports whether the operation or its binding demands a
// super admin.
func (m *OpMeta) NeedsSuperAdmin() bool {
	return m.RequireSuperAdmin || (m.Service != nil && m.Service.RequireSuperAdmin)
}

// NeedsUser reports whether an authenticated session is required. That is
// the default posture unless the operation opts out with AllowUnauthed.
func (m *OpMeta) NeedsUser() bool {
	if m.RequireUser || m.NeedsSuperAdmin() || m.Perm != "" {
		return true
	}
	return !m.AllowUnauthed
}

// Audit returns the binding's audit directive, if any
func (m *OpMeta) Audit() *AuditDirective {
	if m.Service == nil {
		return nil
	}
	return m.Service.Audit
}

// CallerScoped reports whether the operation's result can depend on the
// caller: a call argument reads ctx or the binding is a raw factory.
func (m *OpMeta) CallerScoped() bool {
	if m.Service == nil {
		return false
	}
	if m.Service.Raw {
		return true
	}
	for _, arg := range m.Service.CallArgs {
		if arg.From == SourceCtx {
			return true
		}
	}
	return false
}

// CacheKeyPrefix returns the static part of the operation's cache key
func (m *OpMeta) CacheKeyPrefix() []string {
	if m.Cache != nil && len(m.Cache.Key) > 0 {
		return m.Cache.Key
	}
	return []string{m.Op}
}
