package codegen

import (
	"errors"
	"fmt"

	"github.com/conduit-lang/opmeta/pkg/audit"
	"github.com/conduit-lang/opmeta/pkg/contract"
	"github.com/conduit-lang/opmeta/pkg/invalidate"
	"github.com/conduit-lang/opmeta/pkg/opmeta"
)

// Operation is a route with its checked metadata
type Operation struct {
	Route contract.Route
	Meta  *opmeta.OpMeta
}

// Collect checks the metadata of every route through gate. Routes without
// metadata are skipped. Invalid metadata, duplicate ops, unknown
// invalidation targets and audit expressions that do not compile fail the
// whole collection.
func Collect(routes []contract.Route, gate *opmeta.Gate) ([]Operation, error) {
	var (
		ops  []Operation
		errs []error
	)
	for _, route := range routes {
		meta, err := contract.Checked(route, gate)
		if errors.Is(err, contract.ErrNoMetadata) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", route, err))
			continue
		}
		ops = append(ops, Operation{Route: route, Meta: meta})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	metas := make([]*opmeta.OpMeta, len(ops))
	for i, op := range ops {
		metas[i] = op.Meta
	}
	registry, err := invalidate.NewRegistry(metas...)
	if err != nil {
		return nil, err
	}
	if err := registry.Check(metas...); err != nil {
		if gate.Mode() == opmeta.ModeStrict {
			return nil, err
		}
	}

	builder := audit.NewBuilder()
	for _, op := range ops {
		if err := builder.Prepare(op.Meta.Audit()); err != nil {
			errs = append(errs, fmt.Errorf("%s: %s: audit: %w", op.Route, op.Meta.Op, err))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return ops, nil
}
