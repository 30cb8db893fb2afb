// Package invalidate turns invalidation directives into cache targets and
// purges them. Directives run only after a successful backend call.
package invalidate

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cast"

	"github.com/conduit-lang/opmeta/pkg/opmeta"
	"github.com/conduit-lang/opmeta/pkg/web/cache"
)

var (
	// ErrUnknownTarget is returned when an op directive names an operation
	// that is not registered.
	ErrUnknownTarget = errors.New("unknown invalidation target")
	// ErrDuplicateOp is returned when two operations share a name.
	ErrDuplicateOp = errors.New("duplicate operation")
)

// CacheKey is an ordered list of key segments
type CacheKey []string

// String renders the key in its cache form
func (k CacheKey) String() string {
	return cache.JoinKey(k...)
}

// Target is one cache entry, or with Prefix set every entry under Key
type Target struct {
	Key    CacheKey
	Prefix bool
}

// String renders the target for logs
func (t Target) String() string {
	if t.Prefix {
		return t.Key.String() + ":*"
	}
	return t.Key.String()
}

// KeyRule is an operation's cache-key construction rule: a static prefix
// followed by the values of the Vary fields in order.
type KeyRule struct {
	Op     string
	Prefix []string
	Vary   []string
	TTL    time.Duration
}

// RuleFor derives the key rule declared by meta
func RuleFor(meta *opmeta.OpMeta) KeyRule {
	rule := KeyRule{
		Op:     meta.Op,
		Prefix: append([]string(nil), meta.CacheKeyPrefix()...),
	}
	if meta.Cache != nil {
		rule.Vary = append([]string(nil), meta.Cache.Vary...)
		if meta.Cache.TTL != "" {
			rule.TTL, _ = time.ParseDuration(meta.Cache.TTL)
		}
	}
	return rule
}

// Apply builds a target from fields. When every Vary field is present the
// target is the exact entry; otherwise it covers every entry under the
// prefix plus the leading Vary values that are present.
func (r KeyRule) Apply(fields map[string]any) (Target, error) {
	key := append(CacheKey(nil), r.Prefix...)
	for _, name := range r.Vary {
		v, ok := fields[name]
		if !ok || v == nil {
			return Target{Key: key, Prefix: true}, nil
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			return Target{}, fmt.Errorf("cache key field %q: %w", name, err)
		}
		key = append(key, s)
	}
	return Target{Key: key, Prefix: len(r.Vary) == 0}, nil
}

// Registry maps operation names to their key rules. It is built once at
// startup and read concurrently afterwards.
type Registry struct {
	rules map[string]KeyRule
}

// NewRegistry registers every operation's key rule
func NewRegistry(metas ...*opmeta.OpMeta) (*Registry, error) {
	reg := &Registry{rules: make(map[string]KeyRule, len(metas))}
	for _, meta := range metas {
		if meta == nil {
			continue
		}
		if _, exists := reg.rules[meta.Op]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOp, meta.Op)
		}
		reg.rules[meta.Op] = RuleFor(meta)
	}
	return reg, nil
}

// Rule returns the key rule registered for op
func (r *Registry) Rule(op string) (KeyRule, bool) {
	rule, ok := r.rules[op]
	return rule, ok
}

// Ops returns the registered operation names in sorted order
func (r *Registry) Ops() []string {
	ops := make([]string, 0, len(r.rules))
	for op := range r.rules {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Check verifies that every op directive of every operation names a
// registered operation
func (r *Registry) Check(metas ...*opmeta.OpMeta) error {
	var errs []error
	for _, meta := range metas {
		if meta == nil {
			continue
		}
		for i, d := range meta.Invalidate {
			if d.Kind != opmeta.InvalidateOp {
				continue
			}
			if _, ok := r.rules[d.Target]; !ok {
				errs = append(errs, fmt.Errorf("%s: invalidate[%d]: %w: %s", meta.Op, i, ErrUnknownTarget, d.Target))
			}
		}
	}
	return errors.Join(errs...)
}
