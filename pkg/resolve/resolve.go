// Package resolve computes backend call arguments from a service binding and
// a request. A value is undefined when its key is absent from the source;
// a key that is present with a nil value is defined and passes through.
package resolve

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/conduit-lang/opmeta/pkg/opmeta"
)

// Request carries the per-request inputs arguments are read from
type Request struct {
	Params map[string]any
	Query  map[string]any
	Body   any
	Ctx    map[string]any
}

// Args is a resolved argument set. Named is set in object mode, Positional
// in positional mode.
type Args struct {
	Mode       opmeta.Invoke
	Named      map[string]any
	Positional []any
}

// At returns the positional argument at i, or nil past the end
func (a Args) At(i int) any {
	if i < 0 || i >= len(a.Positional) {
		return nil
	}
	return a.Positional[i]
}

// Get returns a named argument and whether it was bound
func (a Args) Get(name string) (any, bool) {
	v, ok := a.Named[name]
	return v, ok
}

// Len returns the number of bound arguments
func (a Args) Len() int {
	if a.Mode == opmeta.InvokePositional {
		return len(a.Positional)
	}
	return len(a.Named)
}

// Value returns the argument set as the single value a backend receives:
// the object in object mode, the list in positional mode.
func (a Args) Value() any {
	if a.Mode == opmeta.InvokePositional {
		return a.Positional
	}
	return a.Named
}

// Resolver applies call-argument bindings to requests. It holds no
// per-request state and is safe for concurrent use.
type Resolver struct {
	config ConfigSource
	logger *zap.Logger
}

// NewResolver creates a resolver reading env fallbacks from config
func NewResolver(config ConfigSource, logger *zap.Logger) *Resolver {
	if config == nil {
		config = emptySource{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{config: config, logger: logger}
}

// Resolve binds every call argument of binding in declared order
func (r *Resolver) Resolve(binding *opmeta.ServiceBinding, req Request) (Args, error) {
	mode := binding.InvokeMode()
	args := Args{Mode: mode}
	if binding == nil {
		args.Named = map[string]any{}
		return args, nil
	}

	var slots map[int]any
	if mode == opmeta.InvokePositional {
		slots = make(map[int]any, len(binding.CallArgs))
	} else {
		args.Named = make(map[string]any, len(binding.CallArgs))
	}

	for _, arg := range binding.CallArgs {
		value, present, err := r.resolveArg(arg, req)
		if err != nil {
			return Args{}, err
		}
		if !present {
			continue
		}

		if mode == opmeta.InvokePositional {
			idx, err := strconv.Atoi(arg.Name)
			if err != nil || idx < 0 || idx >= len(binding.CallArgs) {
				return Args{}, fmt.Errorf("argument %q: positional name must be a slot index below %d", arg.Name, len(binding.CallArgs))
			}
			slots[idx] = value
			continue
		}
		args.Named[arg.Name] = value
	}

	if mode == opmeta.InvokePositional {
		args.Positional = packSlots(slots)
	}
	return args, nil
}

// resolveArg returns the argument's value and whether it is bound at all
func (r *Resolver) resolveArg(arg opmeta.CallArg, req Request) (any, bool, error) {
	var value any

	if arg.From == opmeta.SourceConst {
		value = arg.Value
	} else {
		raw, defined := lookup(req, arg.From, arg.Key)
		switch {
		case defined:
			value = raw
		case arg.Fallback != nil:
			fb, err := r.fallback(arg)
			if err != nil {
				return nil, false, err
			}
			value = fb
		case arg.Optional:
			return nil, false, nil
		default:
			value = nil
		}
	}

	if arg.Transform != "" && value != nil {
		coerced, err := Apply(arg.Transform, value)
		if err != nil {
			return nil, false, &CoercionError{Arg: arg.Name, Transform: string(arg.Transform), Value: value, Err: err}
		}
		value = coerced
	}

	return value, true, nil
}

func (r *Resolver) fallback(arg opmeta.CallArg) (any, error) {
	fb := arg.Fallback
	if fb.Kind == opmeta.FallbackValue {
		return fb.Value, nil
	}

	v, ok := r.config.Lookup(fb.Key)
	if !ok {
		err := &ConfigError{Arg: arg.Name, Key: fb.Key}
		r.logger.Error("missing configuration for env fallback",
			zap.String("arg", arg.Name),
			zap.String("key", fb.Key),
		)
		return nil, err
	}
	return v, nil
}

// lookup reads request[from][key]. An empty key forwards the whole source.
func lookup(req Request, from opmeta.Source, key string) (any, bool) {
	var source any
	switch from {
	case opmeta.SourceParams:
		if req.Params == nil {
			return nil, false
		}
		source = req.Params
	case opmeta.SourceQuery:
		if req.Query == nil {
			return nil, false
		}
		source = req.Query
	case opmeta.SourceBody:
		source = req.Body
	case opmeta.SourceCtx:
		if req.Ctx == nil {
			return nil, false
		}
		source = req.Ctx
	default:
		return nil, false
	}

	if key == "" {
		return source, source != nil
	}

	m, ok := source.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// packSlots lays out positional values by index. Trailing unbound slots are
// dropped; an unbound slot before a bound one is passed as nil.
func packSlots(slots map[int]any) []any {
	if len(slots) == 0 {
		return []any{}
	}
	indexes := make([]int, 0, len(slots))
	for idx := range slots {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	out := make([]any, indexes[len(indexes)-1]+1)
	for _, idx := range indexes {
		out[idx] = slots[idx]
	}
	return out
}

// Preflight reports env fallbacks whose configuration key is not set, so a
// misconfigured deployment fails before serving the operation.
func (r *Resolver) Preflight(binding *opmeta.ServiceBinding) error {
	if binding == nil {
		return nil
	}
	var errs []error
	for _, arg := range binding.CallArgs {
		if arg.From == opmeta.SourceConst || arg.Fallback == nil || arg.Fallback.Kind != opmeta.FallbackEnv {
			continue
		}
		if _, ok := r.config.Lookup(arg.Fallback.Key); !ok {
			errs = append(errs, &ConfigError{Arg: arg.Name, Key: arg.Fallback.Key})
		}
	}
	return errors.Join(errs...)
}
