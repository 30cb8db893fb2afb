package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/conduit-lang/opmeta/pkg/audit"
	"github.com/conduit-lang/opmeta/pkg/dispatch"
	"github.com/conduit-lang/opmeta/pkg/opmeta"
	"github.com/conduit-lang/opmeta/pkg/web/auth"
	"github.com/conduit-lang/opmeta/pkg/web/cache"
)

// Services holds the runtime collaborators built from a Config. Close
// releases the cache and audit connections.
type Services struct {
	Options dispatch.Options
	Tokens  *auth.TokenService
	Audit   *audit.SQLStore

	closers []func() error
}

// Close releases everything Build opened
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build wires the cache, audit store, authorization and metrics described by
// cfg into dispatch options. Backends and validators are left to the caller.
func Build(ctx context.Context, cfg *Config, logger *zap.Logger, reg prometheus.Registerer) (*Services, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &Services{}

	opts := dispatch.Options{
		Gate:        opmeta.NewGate(cfg.GateMode(), logger),
		Config:      NewEnvSource(cfg.Fallbacks),
		Authorizer:  auth.NewAuthorizer(auth.FromMap(cfg.Auth.Roles)),
		CacheTTL:    cfg.Cache.TTL,
		Logger:      logger,
		TenantField: cfg.Auth.TenantField,
	}
	if reg != nil {
		opts.Metrics = dispatch.NewMetrics(reg)
	}

	cacheConfig := cache.CacheConfig{DefaultTTL: cfg.Cache.TTL, Prefix: cfg.Cache.Prefix}
	switch cfg.Cache.Backend {
	case "memory":
		mc := cache.NewMemoryCacheWithConfig(cacheConfig)
		opts.Cache = mc
		svc.closers = append(svc.closers, mc.Close)
	case "redis":
		rc, err := cache.NewRedisCacheWithConfig(cache.RedisConfig{
			Addr:        cfg.Cache.Redis.Addr,
			Password:    cfg.Cache.Redis.Password,
			DB:          cfg.Cache.Redis.DB,
			CacheConfig: cacheConfig,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Cache.Redis.Addr, err)
		}
		opts.Cache = rc
		svc.closers = append(svc.closers, rc.Close)
	}

	logSink := audit.NewLogSink(logger)
	switch cfg.Audit.Driver {
	case "postgres", "sqlite":
		dialect := audit.DialectPostgres
		if cfg.Audit.Driver == "sqlite" {
			dialect = audit.DialectSQLite
		}
		store, err := audit.OpenSQLStore(ctx, dialect, cfg.Audit.DSN)
		if err != nil {
			_ = svc.Close()
			return nil, err
		}
		svc.closers = append(svc.closers, store.Close)
		if err := store.Migrate(ctx); err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("failed to migrate audit store: %w", err)
		}
		svc.Audit = store
		opts.AuditSink = audit.MultiSink{store, logSink}
	default:
		opts.AuditSink = logSink
	}

	if cfg.Auth.JWTSecret != "" {
		svc.Tokens = auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	}

	svc.Options = opts
	return svc, nil
}
