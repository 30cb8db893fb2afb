package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/opmeta/internal/codegen"
	"github.com/conduit-lang/opmeta/pkg/opmeta"
)

// NewOpenAPICommand creates the openapi command
func NewOpenAPICommand(flags *globalFlags) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "openapi [document]",
		Short: "Print the normalized OpenAPI document",
		Long: `Print the contract as an OpenAPI 3 document with operation IDs, bearer
security and path parameters filled in from the metadata.

Examples:
  opmeta openapi --format yaml
  opmeta openapi api/openapi.yaml -o build/openapi.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported format %q (want json or yaml)", format)
			}

			cfg, err := loadConfig(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			doc, err := loadDocument(cmd.Context(), documentPath(args, cfg))
			if err != nil {
				return err
			}
			rep, err := check(doc, opmeta.NewGate(opmeta.ModeStrict, cliLogger(cfg)), cmd.ErrOrStderr(), flags.noColor)
			if err != nil {
				return err
			}

			title, version := "", ""
			if doc.Info != nil {
				title, version = doc.Info.Title, doc.Info.Version
			}
			data, err := codegen.GenerateDocument(rep.ops, title, version)
			if err != nil {
				return err
			}

			out := []byte(data)
			if format == "yaml" {
				if out, err = jsonToYAML(out); err != nil {
					return err
				}
			}

			if output != "" {
				return os.WriteFile(output, out, 0o644)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

// jsonToYAML re-encodes a JSON document as block-style YAML, keeping key order
func jsonToYAML(data []byte) ([]byte, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	blockStyle(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return nil, fmt.Errorf("failed to encode yaml: %w", err)
	}
	return out, nil
}

// blockStyle clears the flow style JSON input leaves on collections
func blockStyle(n *yaml.Node) {
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style &^= yaml.FlowStyle
	}
	if n.Kind == yaml.ScalarNode && n.Style&yaml.DoubleQuotedStyle != 0 && n.Tag == "!!str" {
		n.Style &^= yaml.DoubleQuotedStyle
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}
