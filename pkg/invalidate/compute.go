package invalidate

import (
	"fmt"

	"github.com/conduit-lang/opmeta/pkg/opmeta"
	"github.com/conduit-lang/opmeta/pkg/resolve"
)

// Compute resolves directives against a completed request. Each directive
// is handled on its own: a failing directive is reported in the error list
// and the rest still produce targets.
func (r *Registry) Compute(directives []opmeta.InvalidationDirective, req resolve.Request) ([]Target, []error) {
	var (
		targets []Target
		errs    []error
	)

	for i, d := range directives {
		target, err := r.compute(d, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalidate[%d]: %w", i, err))
			continue
		}
		targets = append(targets, target)
	}

	return targets, errs
}

func (r *Registry) compute(d opmeta.InvalidationDirective, req resolve.Request) (Target, error) {
	switch d.Kind {
	case opmeta.InvalidatePrefix:
		return Target{Key: append(CacheKey(nil), d.Key...), Prefix: true}, nil
	case opmeta.InvalidateKey:
		return Target{Key: append(CacheKey(nil), d.Key...)}, nil
	case opmeta.InvalidateOp:
		rule, ok := r.rules[d.Target]
		if !ok {
			return Target{}, fmt.Errorf("%w: %s", ErrUnknownTarget, d.Target)
		}
		return rule.Apply(subRequest(d, req))
	default:
		return Target{}, fmt.Errorf("unknown invalidation kind %q", d.Kind)
	}
}

// subRequest selects the directive's source and narrows it to Pick
func subRequest(d opmeta.InvalidationDirective, req resolve.Request) map[string]any {
	var source map[string]any
	switch d.SourceOrDefault() {
	case opmeta.SourceQuery:
		source = req.Query
	case opmeta.SourceBody:
		source, _ = req.Body.(map[string]any)
	default:
		source = req.Params
	}

	if len(d.Pick) == 0 {
		return source
	}

	picked := make(map[string]any, len(d.Pick))
	for _, field := range d.Pick {
		if v, ok := source[field]; ok {
			picked[field] = v
		}
	}
	return picked
}
