package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/opmeta/internal/cli/ui"
	"github.com/conduit-lang/opmeta/pkg/audit"
)

// NewAuditCommand creates the audit command
func NewAuditCommand(flags *globalFlags) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "audit [op]",
		Short: "Show recent audit records",
		Long: `Show the newest audit records from the store configured under audit in
opmeta.yaml, optionally for a single operation.

Examples:
  opmeta audit
  opmeta audit billing.subscribe --limit 50`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}

			var dialect audit.Dialect
			switch cfg.Audit.Driver {
			case "postgres":
				dialect = audit.DialectPostgres
			case "sqlite":
				dialect = audit.DialectSQLite
			default:
				return fmt.Errorf("audit.driver is %q: records are only logged, not stored", cfg.Audit.Driver)
			}

			store, err := audit.OpenSQLStore(cmd.Context(), dialect, cfg.Audit.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			op := ""
			if len(args) > 0 {
				op = args[0]
			}
			records, err := store.Recent(cmd.Context(), op, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			table := ui.NewTable(out, flags.noColor, "TIME", "OP", "RESOURCE", "ACTOR", "TENANT", "REQUEST")
			for _, rec := range records {
				resource := rec.ResourceType
				if rec.ResourceID != nil {
					resource += "/" + *rec.ResourceID
				}
				table.AddRow(
					rec.CreatedAt.UTC().Format(time.RFC3339),
					rec.Op,
					resource,
					orDash(rec.ActorID),
					orDash(rec.TenantID),
					orDash(rec.RequestID),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of records")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
