package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/haulboard/api/middleware"
	"github.com/kilianp07/haulboard/core/model"
)

var (
	tokenUser string
	tokenRole string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token signed with the configured secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		role := model.Role(tokenRole)
		switch role {
		case model.RoleAdmin, model.RolePlanner, model.RoleViewer:
		default:
			return fmt.Errorf("unknown role %q", tokenRole)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		tok, err := middleware.IssueToken([]byte(cfg.HTTP.JWTSecret), tokenUser, role, tokenTTL)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
		return err
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "cli", "subject of the token")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(model.RolePlanner), "admin, planner or viewer")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
