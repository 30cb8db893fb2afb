package commands

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/opmeta/internal/cli/ui"
	"github.com/conduit-lang/opmeta/internal/codegen"
	"github.com/conduit-lang/opmeta/internal/watch"
	"github.com/conduit-lang/opmeta/pkg/contract"
	"github.com/conduit-lang/opmeta/pkg/opmeta"
)

type generateOptions struct {
	output  string
	pkg     string
	watch   bool
	noColor bool
}

// NewGenerateCommand creates the generate command
func NewGenerateCommand(flags *globalFlags) *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:     "generate [document]",
		Aliases: []string{"g"},
		Short:   "Generate Go bindings for a contract",
		Long: `Generate opmeta_gen.go and openapi.json from a contract.

The generated file holds the metadata of every operation, adapters that
call the bound backend functions, a Backends() table and a Mount helper.
Generation always validates strictly and writes nothing on failure.

Examples:
  opmeta generate
  opmeta generate api/openapi.yaml -o internal/api --package api
  opmeta g --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("output") {
				opts.output = cfg.Generate.Output
			}
			if !cmd.Flags().Changed("package") {
				opts.pkg = cfg.Generate.Package
			}
			opts.noColor = flags.noColor

			path := documentPath(args, cfg)
			logger := cliLogger(cfg)
			out := cmd.OutOrStdout()

			if err := runGenerate(cmd.Context(), path, opts, logger, out); err != nil {
				if !opts.watch {
					return err
				}
				color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "%v\n", err)
			}
			if !opts.watch {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			color.New(color.FgCyan).Fprintf(out, "Watching %s for changes (Ctrl+C to stop)\n", path)
			return watch.Run(ctx, []string{path}, func([]string) error {
				return runGenerate(ctx, path, opts, logger, out)
			}, logger)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output directory (default from opmeta.yaml)")
	cmd.Flags().StringVar(&opts.pkg, "package", "", "Go package name (default from opmeta.yaml)")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "regenerate when the contract changes")
	return cmd
}

// runGenerate validates the contract at path and writes the generated files
func runGenerate(ctx context.Context, path string, opts *generateOptions, logger *zap.Logger, out io.Writer) error {
	doc, err := loadDocument(ctx, path)
	if err != nil {
		return err
	}

	gate := opmeta.NewGate(opmeta.ModeStrict, logger)
	if _, err := check(doc, gate, out, opts.noColor); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	ops, err := codegen.Collect(contract.FromDocument(doc), gate)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	title, version := "API", "1.0.0"
	if doc.Info != nil {
		if doc.Info.Title != "" {
			title = doc.Info.Title
		}
		if doc.Info.Version != "" {
			version = doc.Info.Version
		}
	}

	files, err := codegen.NewGenerator().Generate(ops, codegen.Options{
		Package: opts.pkg,
		Title:   title,
		Version: version,
	})
	if err != nil {
		return err
	}

	written, err := codegen.WriteFiles(opts.output, files)
	if err != nil {
		return err
	}
	for _, f := range written {
		ui.WriteSuccess(out, "Generated "+f, opts.noColor)
	}
	logger.Debug("generated bindings", zap.String("document", path), zap.Int("operations", len(ops)))
	return nil
}
