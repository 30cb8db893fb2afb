package invalidate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/opmeta/pkg/web/cache"
)

// Purger applies targets to a cache
type Purger struct {
	cache  cache.Cache
	logger *zap.Logger
}

// NewPurger creates a purger for c
func NewPurger(c cache.Cache, logger *zap.Logger) *Purger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Purger{cache: c, logger: logger}
}

// Purge removes every target. A failing target is logged and reported; the
// remaining targets are still purged.
func (p *Purger) Purge(ctx context.Context, targets []Target) []error {
	var errs []error
	for _, t := range targets {
		removed, err := p.purge(ctx, t)
		if err != nil {
			p.logger.Warn("cache purge failed", zap.Stringer("target", t), zap.Error(err))
			errs = append(errs, fmt.Errorf("purge %s: %w", t, err))
			continue
		}
		p.logger.Debug("cache purged", zap.Stringer("target", t), zap.Int("removed", removed))
	}
	return errs
}

func (p *Purger) purge(ctx context.Context, t Target) (int, error) {
	key := t.Key.String()
	if err := p.cache.Delete(ctx, key); err != nil {
		return 0, err
	}
	if !t.Prefix {
		return 1, nil
	}
	n, err := p.cache.DeletePrefix(ctx, cache.ChildPrefix(key))
	return n + 1, err
}
