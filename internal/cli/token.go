package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"multi-org-integration-platform/internal/config"
	"multi-org-integration-platform/internal/middleware"
)

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var organisationID string

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an API token",
		Long: `Issue a bearer token for the platform's API, signed with auth.api_secret
(AUTH_API_SECRET) from the platform configuration.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			auth := middleware.NewAuthenticationMiddleware(cfg, quietLogger(cmd.ErrOrStderr()))
			token, err := auth.IssueToken(args[0], organisationID)
			if err != nil {
				return err
			}

			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"token": token})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "\nUse this token in the Authorization header:\nAuthorization: Bearer %s\n", token)
			return nil
		},
	}

	cmd.Flags().StringVar(&organisationID, "org", "", "organisation the token is scoped to")

	return cmd
}
