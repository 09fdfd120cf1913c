package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canalenergetico/canal-web/internal/app"
)

var migrateDB = app.MigrateDatabase

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			if env.cfg.DB.Driver != "postgres" {
				return fmt.Errorf("migrate needs db.driver postgres, got %q", env.cfg.DB.Driver)
			}
			version, err := migrateDB(cmd.Context(), env.cfg.DB, env.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database at version %d\n", version)
			return nil
		},
	}
}
