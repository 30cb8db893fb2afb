package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/opmeta/internal/cli/ui"
	"github.com/conduit-lang/opmeta/pkg/opmeta"
)

// NewValidateCommand creates the validate command
func NewValidateCommand(flags *globalFlags) *cobra.Command {
	var lenient bool

	cmd := &cobra.Command{
		Use:   "validate [document]",
		Short: "Validate the operation metadata of a contract",
		Long: `Validate every x-opmeta extension of an OpenAPI contract.

Metadata is decoded closed-world: unknown fields are errors. Invalidation
targets must name declared operations and audit expressions must compile.
Validation is strict by default; --lenient reports problems as warnings
and exits successfully.

Examples:
  opmeta validate
  opmeta validate api/openapi.yaml --lenient`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := loadConfig(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			path := documentPath(args, cfg)
			doc, err := loadDocument(cmd.Context(), path)
			if err != nil {
				return err
			}

			mode := opmeta.ModeStrict
			if lenient {
				mode = opmeta.ModeWarn
			}
			rep, err := check(doc, opmeta.NewGate(mode, cliLogger(cfg)), out, flags.noColor)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			summary := fmt.Sprintf("%d operations valid in %s", len(rep.ops), path)
			if rep.invalid > 0 {
				ui.Warning(fmt.Sprintf("%d problems found in %s", rep.invalid, path), flags.noColor).Write(out)
				return nil
			}
			if rep.skipped > 0 {
				summary += fmt.Sprintf(" (%d routes without metadata)", rep.skipped)
			}
			ui.WriteSuccess(out, summary, flags.noColor)
			return nil
		},
	}

	cmd.Flags().BoolVar(&lenient, "lenient", false, "report invalid metadata as warnings")
	return cmd
}
