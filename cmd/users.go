package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canalenergetico/canal-web/internal/store"
)

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Account administration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "role <email> <admin|colaborador|lector>",
		Short: "Change the role of an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, ok := store.ParseRole(args[1])
			if !ok {
				return fmt.Errorf("unknown role %q", args[1])
			}
			return withApp(cmd, func(a App, _ runtimeEnv) error {
				if err := a.Auth().SetRole(cmd.Context(), args[0], role); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], role)
				return nil
			})
		},
	})
	return cmd
}
