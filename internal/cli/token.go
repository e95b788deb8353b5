package cli

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sourpie/gitknow/internal/app"
	"github.com/sourpie/gitknow/internal/middleware"
	"github.com/sourpie/gitknow/pkg/config"
)

// newTokenCmd mints an API token for the current user, signed with JWT_SECRET.
func newTokenCmd(opts *options) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print an API token for the HTTP and MCP servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg := config.Load()

			user := opts.user()
			user.Email = email
			token, err := middleware.GenerateJWT(user, app.JWTConfig(cfg))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email recorded in the token")
	return cmd
}
