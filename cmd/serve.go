package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Starts the website on server.port. When markets.refresh_interval_minutes is
set, prices are refreshed in the background. Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), env.cfg, env.logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			// Run closes the application on the way out.
			return a.Run(cmd.Context())
		},
	}
}
