// Package dispatch serves operations from their metadata. For every route it
// authorizes the caller, validates input, resolves backend arguments, invokes
// the backend and, after a successful call, runs the declared invalidation
// and audit side effects.
package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/conduit-lang/opmeta/pkg/audit"
	"github.com/conduit-lang/opmeta/pkg/contract"
	"github.com/conduit-lang/opmeta/pkg/invalidate"
	"github.com/conduit-lang/opmeta/pkg/opmeta"
	"github.com/conduit-lang/opmeta/pkg/resolve"
	"github.com/conduit-lang/opmeta/pkg/web/auth"
	"github.com/conduit-lang/opmeta/pkg/web/cache"
)

const (
	defaultCacheTTL     = 5 * time.Minute
	defaultMaxBodyBytes = 1 << 20
	defaultTenantField  = "tenantId"
)

// ErrAlreadyMounted is returned when Mount is called twice on one runtime
var ErrAlreadyMounted = errors.New("runtime already mounted")

// Options configures a Runtime. Zero values select defaults.
type Options struct {
	Gate       *opmeta.Gate
	Backends   *Backends
	Validators map[string]Validator
	Config     resolve.ConfigSource
	Authorizer *auth.Authorizer

	// Cache serves read-through GET operations and receives invalidations.
	Cache    cache.Cache
	CacheTTL time.Duration

	Audit     *audit.Builder
	AuditSink audit.Sink

	Metrics *Metrics
	Logger  *zap.Logger

	// TenantField names the request field compared with the session tenant.
	TenantField  string
	MaxBodyBytes int64
}

// Runtime serves the operations of one contract
type Runtime struct {
	gate         *opmeta.Gate
	backends     *Backends
	validators   map[string]Validator
	resolver     *resolve.Resolver
	authorizer   *auth.Authorizer
	cache        cache.Cache
	cacheTTL     time.Duration
	purger       *invalidate.Purger
	auditor      *audit.Builder
	sink         audit.Sink
	metrics      *Metrics
	logger       *zap.Logger
	tenantField  string
	maxBodyBytes int64

	registry *invalidate.Registry
	mounted  []Mounted
}

// Mounted is a route served by the runtime with its checked metadata
type Mounted struct {
	Route contract.Route
	Meta  *opmeta.OpMeta
}

// New creates a runtime
func New(opts Options) *Runtime {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := &Runtime{
		gate:         opts.Gate,
		backends:     opts.Backends,
		validators:   opts.Validators,
		resolver:     resolve.NewResolver(opts.Config, logger),
		authorizer:   opts.Authorizer,
		cache:        opts.Cache,
		cacheTTL:     opts.CacheTTL,
		auditor:      opts.Audit,
		sink:         opts.AuditSink,
		metrics:      opts.Metrics,
		logger:       logger,
		tenantField:  opts.TenantField,
		maxBodyBytes: opts.MaxBodyBytes,
	}
	if rt.gate == nil {
		rt.gate = opmeta.NewGate(opmeta.ModeStrict, logger)
	}
	if rt.backends == nil {
		rt.backends = NewBackends()
	}
	if rt.authorizer == nil {
		rt.authorizer = auth.NewAuthorizer(nil)
	}
	if rt.cache != nil {
		rt.purger = invalidate.NewPurger(rt.cache, logger)
	}
	if rt.cacheTTL <= 0 {
		rt.cacheTTL = defaultCacheTTL
	}
	if rt.auditor == nil {
		rt.auditor = audit.NewBuilder(audit.WithLogger(logger))
	}
	if rt.sink == nil {
		rt.sink = audit.NewLogSink(logger)
	}
	if rt.tenantField == "" {
		rt.tenantField = defaultTenantField
	}
	if rt.maxBodyBytes <= 0 {
		rt.maxBodyBytes = defaultMaxBodyBytes
	}
	return rt
}

// Mount checks every route's metadata and registers the handlers on r.
// Nothing is registered unless every route passes: invalid metadata, an
// unknown invalidation target, a duplicate op, a missing backend or
// validator, or an audit expression that does not compile.
func (rt *Runtime) Mount(r chi.Router, routes []contract.Route) error {
	if rt.registry != nil {
		return ErrAlreadyMounted
	}

	var errs []error
	mounted := make([]Mounted, 0, len(routes))
	for _, route := range routes {
		meta, err := contract.Checked(route, rt.gate)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", route, err))
			continue
		}
		mounted = append(mounted, Mounted{Route: route, Meta: meta})
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	metas := make([]*opmeta.OpMeta, len(mounted))
	for i, m := range mounted {
		metas[i] = m.Meta
	}

	registry, err := invalidate.NewRegistry(metas...)
	if err != nil {
		return err
	}
	if err := registry.Check(metas...); err != nil {
		if rt.gate.Mode() == opmeta.ModeStrict {
			return err
		}
		rt.logger.Warn("invalid invalidation targets, continuing", zap.Error(err))
	}

	for _, m := range mounted {
		if err := rt.prepare(m.Meta); err != nil {
			errs = append(errs, fmt.Errorf("%s: %s: %w", m.Route, m.Meta.Op, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	rt.registry = registry
	rt.mounted = mounted
	for _, m := range mounted {
		r.Method(m.Route.Method, m.Route.Path, rt.handler(m.Meta))
		rt.logger.Debug("operation mounted",
			zap.String("op", m.Meta.Op),
			zap.String("method", m.Route.Method),
			zap.String("path", m.Route.Path),
		)
	}
	return nil
}

// Mounted returns the routes served after a successful Mount
func (rt *Runtime) Mounted() []Mounted {
	return append([]Mounted(nil), rt.mounted...)
}

// Registry returns the invalidation registry built by Mount
func (rt *Runtime) Registry() *invalidate.Registry {
	return rt.registry
}

// prepare checks what an operation needs at request time
func (rt *Runtime) prepare(meta *opmeta.OpMeta) error {
	binding := meta.Service
	if binding == nil {
		return nil
	}

	var errs []error
	if err := rt.backends.check(binding); err != nil {
		errs = append(errs, err)
	}
	for _, name := range []string{binding.ZodBody, binding.ZodQuery} {
		if name == "" {
			continue
		}
		if _, ok := rt.validators[name]; !ok {
			errs = append(errs, fmt.Errorf("no validator registered for %q", name))
		}
	}
	if err := rt.auditor.Prepare(binding.Audit); err != nil {
		errs = append(errs, fmt.Errorf("audit: %w", err))
	}
	if !binding.Raw {
		if err := rt.resolver.Preflight(binding); err != nil {
			if rt.gate.Mode() == opmeta.ModeStrict {
				errs = append(errs, err)
			} else {
				rt.logger.Warn("unresolved env fallbacks", zap.String("op", meta.Op), zap.Error(err))
			}
		}
	}
	return errors.Join(errs...)
}
