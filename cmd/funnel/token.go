package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/mealplan-funnel/internal/auth"
)

var tokenTTL time.Duration

var adminTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Mint an admin bearer token",
	Long: `Mint an admin bearer token signed with ADMIN_JWT_SECRET, for operators
and scripts that cannot go through the dashboard login.

Examples:
  funnel admin-token
  funnel admin-token --ttl 1h`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ttl := cfg.Admin.TokenTTL
		if tokenTTL > 0 {
			ttl = tokenTTL
		}
		token, exp, err := auth.NewTokens(cfg.Admin.JWTKey, ttl, nil).Issue()
		if err != nil {
			return fmt.Errorf("issue token (is ADMIN_JWT_SECRET set?): %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
		return nil
	},
}

func init() {
	adminTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default ADMIN_TOKEN_TTL)")
}
