package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/opmeta/pkg/web/auth"
)

// NewTokenCommand creates the token command
func NewTokenCommand(flags *globalFlags) *cobra.Command {
	var (
		session auth.Session
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <user>",
		Short: "Issue a bearer token for local testing",
		Long: `Issue a bearer token signed with auth.jwt_secret from opmeta.yaml.

Examples:
  opmeta token u_123 --tenant t_1 --role editor
  opmeta token admin --super-admin --ttl 10m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not set")
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}

			session.UserID = args[0]
			token, err := auth.NewTokenService(cfg.Auth.JWTSecret, ttl).Issue(&session)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&session.TenantID, "tenant", "", "tenant ID")
	cmd.Flags().StringSliceVar(&session.Roles, "role", nil, "role (repeatable)")
	cmd.Flags().StringSliceVar(&session.Permissions, "perm", nil, "permission (repeatable)")
	cmd.Flags().BoolVar(&session.SuperAdmin, "super-admin", false, "grant super admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.token_ttl)")
	return cmd
}
