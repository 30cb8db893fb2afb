package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/opmeta/internal/cli/ui"
	"github.com/conduit-lang/opmeta/pkg/opmeta"
)

// NewRoutesCommand creates the routes command
func NewRoutesCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "routes [document]",
		Short: "List the operations of a contract",
		Long: `List every operation with its authorization, backend, cache rule
and invalidation targets. Invalid metadata is reported on stderr and the
operation is listed as declared.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			doc, err := loadDocument(cmd.Context(), documentPath(args, cfg))
			if err != nil {
				return err
			}

			rep, err := check(doc, opmeta.NewGate(opmeta.ModeWarn, cliLogger(cfg)), cmd.ErrOrStderr(), flags.noColor)
			if err != nil {
				return err
			}

			table := ui.NewTable(cmd.OutOrStdout(), flags.noColor, "METHOD", "PATH", "OP", "AUTH", "BACKEND", "CACHE", "INVALIDATES")
			for _, op := range rep.ops {
				table.AddRow(
					op.Route.Method,
					op.Route.Path,
					op.Meta.Op,
					authSummary(op.Meta),
					backendSummary(op.Meta.Service),
					cacheSummary(op.Meta),
					invalidateSummary(op.Meta.Invalidate),
				)
			}
			table.Render()
			return nil
		},
	}
}

func authSummary(meta *opmeta.OpMeta) string {
	var parts []string
	switch {
	case !meta.NeedsUser():
		parts = append(parts, "public")
	case meta.NeedsSuperAdmin():
		parts = append(parts, "super admin")
	case meta.Perm != "":
		parts = append(parts, meta.Perm)
	default:
		parts = append(parts, "user")
	}
	if meta.NeedsTenantMatch() {
		parts = append(parts, "tenant")
	}
	return strings.Join(parts, "+")
}

func backendSummary(s *opmeta.ServiceBinding) string {
	if s == nil {
		return "-"
	}
	if s.Raw {
		return "raw:" + s.Factory
	}
	loc := s.Locator()
	if s.InvokeMode() == opmeta.InvokePositional {
		loc += " (positional)"
	}
	return loc
}

func cacheSummary(meta *opmeta.OpMeta) string {
	if meta.Cache == nil {
		return "-"
	}
	key := strings.Join(meta.CacheKeyPrefix(), ":")
	for _, v := range meta.Cache.Vary {
		key += ":{" + v + "}"
	}
	if meta.Cache.TTL != "" {
		key += " " + meta.Cache.TTL
	}
	return key
}

func invalidateSummary(directives []opmeta.InvalidationDirective) string {
	if len(directives) == 0 {
		return "-"
	}
	out := make([]string, len(directives))
	for i, d := range directives {
		switch d.Kind {
		case opmeta.InvalidateOp:
			out[i] = "op:" + d.Target
		case opmeta.InvalidatePrefix:
			out[i] = strings.Join(d.Key, ":") + ":*"
		default:
			out[i] = strings.Join(d.Key, ":")
		}
	}
	return strings.Join(out, ", ")
}
