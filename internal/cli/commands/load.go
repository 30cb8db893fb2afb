package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"

	"github.com/conduit-lang/opmeta/internal/cli/ui"
	"github.com/conduit-lang/opmeta/internal/codegen"
	"github.com/conduit-lang/opmeta/pkg/audit"
	"github.com/conduit-lang/opmeta/pkg/config"
	"github.com/conduit-lang/opmeta/pkg/contract"
	"github.com/conduit-lang/opmeta/pkg/invalidate"
	"github.com/conduit-lang/opmeta/pkg/logging"
	"github.com/conduit-lang/opmeta/pkg/opmeta"
)

// errInvalid is returned after invalid metadata has been reported
var errInvalid = errors.New("contract has invalid operation metadata")

// loadConfig reads opmeta.yaml, reporting configuration errors on w
func loadConfig(flags *globalFlags, w io.Writer) (*config.Config, error) {
	cfg, err := config.Load(flags.configDir)
	if err != nil {
		ui.ConfigFailed(err, flags.noColor).Write(w)
		return nil, err
	}
	return cfg, nil
}

// cliLogger returns the logger commands use for gate warnings
func cliLogger(cfg *config.Config) *zap.Logger {
	level := cfg.Log.Level
	if level == "" {
		level = "warn"
	}
	return logging.Must(logging.Development, level)
}

// documentPath picks the contract document from args or the config
func documentPath(args []string, cfg *config.Config) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.Contract.Document
}

// loadDocument reads the OpenAPI contract at path
func loadDocument(ctx context.Context, path string) (*openapi3.T, error) {
	return contract.Load(ctx, path)
}

// report describes the outcome of checking a contract
type report struct {
	ops     []codegen.Operation
	skipped int
	invalid int
}

// check validates every route of doc through gate, writing a message per
// problem to w. In strict mode any problem fails the check; in warn mode
// invalid metadata is reported and kept.
func check(doc *openapi3.T, gate *opmeta.Gate, w io.Writer, noColor bool) (*report, error) {
	rep := &report{}
	strict := gate.Mode() == opmeta.ModeStrict

	for _, route := range contract.FromDocument(doc) {
		if !hasExtension(route) {
			rep.skipped++
			continue
		}

		// Report every problem, even in warn mode, before deciding.
		meta, err := contract.Checked(route, opmeta.NewGate(opmeta.ModeStrict, nil))
		if err != nil {
			rep.invalid++
			var verrs *opmeta.ValidationErrors
			if errors.As(err, &verrs) {
				msg := ui.ValidationFailed(route.String(), verrs, noColor)
				if !strict {
					msg.Level = ui.LevelWarning
				}
				msg.Write(w)
			} else {
				ui.Message{Context: "invalid metadata", Problem: fmt.Sprintf("%s: %v", route, err), NoColor: noColor}.Write(w)
			}
			if strict {
				continue
			}
			if meta, err = contract.Checked(route, gate); err != nil || meta == nil {
				continue
			}
		}
		rep.ops = append(rep.ops, codegen.Operation{Route: route, Meta: meta})
	}

	metas := make([]*opmeta.OpMeta, len(rep.ops))
	known := make([]string, len(rep.ops))
	for i, op := range rep.ops {
		metas[i] = op.Meta
		known[i] = op.Meta.Op
	}

	registry, err := invalidate.NewRegistry(metas...)
	if err != nil {
		ui.Message{Context: "duplicate operation", Problem: err.Error(), NoColor: noColor}.Write(w)
		return rep, errInvalid
	}
	for _, meta := range metas {
		for _, d := range meta.Invalidate {
			if d.Kind != opmeta.InvalidateOp {
				continue
			}
			if _, ok := registry.Rule(d.Target); ok {
				continue
			}
			rep.invalid++
			msg := ui.UnknownOp(d.Target, known, noColor)
			msg.Details = []string{fmt.Sprintf("invalidated by %s", meta.Op)}
			if !strict {
				msg.Level = ui.LevelWarning
			}
			msg.Write(w)
		}
	}

	builder := audit.NewBuilder()
	for _, op := range rep.ops {
		if err := builder.Prepare(op.Meta.Audit()); err != nil {
			rep.invalid++
			level := ui.LevelError
			if !strict {
				level = ui.LevelWarning
			}
			ui.Message{
				Level:   level,
				Context: "invalid audit expression",
				Problem: fmt.Sprintf("%s (%s)", op.Route, op.Meta.Op),
				Details: []string{err.Error()},
				NoColor: noColor,
			}.Write(w)
		}
	}

	if strict && rep.invalid > 0 {
		return rep, errInvalid
	}
	return rep, nil
}

func hasExtension(route contract.Route) bool {
	if route.Operation == nil {
		return false
	}
	_, ok := route.Operation.Extensions[contract.Extension]
	return ok
}
