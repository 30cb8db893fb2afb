package audit

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/opmeta/pkg/expr"
	"github.com/conduit-lang/opmeta/pkg/opmeta"
)

// Builder evaluates audit directives. Compiled expressions are cached, so
// one Builder should serve the whole process.
type Builder struct {
	funcs    expr.Funcs
	logger   *zap.Logger
	now      func() time.Time
	programs sync.Map // expression source -> *expr.Program
}

// BuilderOption configures a Builder
type BuilderOption func(*Builder)

// WithFuncs replaces the function allow-list
func WithFuncs(funcs expr.Funcs) BuilderOption {
	return func(b *Builder) {
		b.funcs = funcs
	}
}

// WithLogger sets the logger for expression failures
func WithLogger(logger *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock sets the time source for CreatedAt
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		b.now = now
	}
}

// NewBuilder creates a builder using the default function allow-list
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		funcs:  expr.DefaultFuncs(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Prepare compiles a directive's expressions and checks their function calls
// against the allow-list.
func (b *Builder) Prepare(d *opmeta.AuditDirective) error {
	if d == nil {
		return nil
	}
	for field, src := range map[string]string{"resourceIdExpr": d.ResourceIDExpr, "afterExpr": d.AfterExpr} {
		if src == "" {
			continue
		}
		prog, err := b.program(src)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if err := prog.CheckFunctions(b.funcs); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	return nil
}

// Build returns the audit record for a successful call, or nil when there is
// no directive. A failing expression is logged and its field left empty.
func (b *Builder) Build(op string, d *opmeta.AuditDirective, in Input) *Record {
	if d == nil {
		return nil
	}

	rec := &Record{
		ID:           uuid.New(),
		Op:           op,
		ResourceType: d.ResourceType,
		ActorID:      ctxString(in.Ctx, CtxUserID),
		TenantID:     ctxString(in.Ctx, CtxTenantID),
		RequestID:    ctxString(in.Ctx, CtxRequestID),
		CreatedAt:    b.now().UTC(),
	}

	scope := expr.Scope{
		"params": orEmpty(in.Params),
		"body":   in.Body,
		"input":  in.Input,
		"result": in.Result,
		"ctx":    orEmpty(in.Ctx),
	}

	if d.ResourceIDExpr != "" {
		if v, ok := b.eval(op, "resourceIdExpr", d.ResourceIDExpr, scope); ok && v != nil {
			id := expr.Stringify(v)
			rec.ResourceID = &id
		}
	}

	if d.AfterExpr != "" {
		if v, ok := b.eval(op, "afterExpr", d.AfterExpr, scope); ok {
			rec.After = v
		}
	}

	return rec
}

func (b *Builder) eval(op, field, src string, scope expr.Scope) (any, bool) {
	prog, err := b.program(src)
	if err == nil {
		var v any
		v, err = prog.Eval(scope, b.funcs)
		if err == nil {
			return v, true
		}
	}

	b.logger.Warn("audit expression failed",
		zap.String("op", op),
		zap.String("field", field),
		zap.String("expr", src),
		zap.Error(err),
	)
	return nil, false
}

func (b *Builder) program(src string) (*expr.Program, error) {
	if cached, ok := b.programs.Load(src); ok {
		return cached.(*expr.Program), nil
	}
	prog, err := expr.Compile(src)
	if err != nil {
		return nil, err
	}
	actual, _ := b.programs.LoadOrStore(src, prog)
	return actual.(*expr.Program), nil
}

func ctxString(ctx map[string]any, key string) string {
	if v, ok := ctx[key].(string); ok {
		return v
	}
	return ""
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
