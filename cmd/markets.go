package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/canalenergetico/canal-web/internal/markets"
)

func newMarketsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "markets",
		Short: "Market price maintenance",
	}
	cmd.AddCommand(newMarketsRefreshCmd())
	return cmd
}

func newMarketsRefreshCmd() *cobra.Command {
	var symbols string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the latest closes from the EIA API once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a App, _ runtimeEnv) error {
				report, err := a.Markets().Refresh(cmd.Context(), markets.SplitSymbols(symbols))
				if err != nil {
					return fmt.Errorf("refresh markets: %w", err)
				}
				out := cmd.OutOrStdout()
				for _, r := range report.Results {
					switch {
					case r.Stale:
						fmt.Fprintf(out, "%s\tstale\t%v\n", r.Symbol, r.Err)
					case r.Err != nil:
						fmt.Fprintf(out, "%s\terror\t%v\n", r.Symbol, r.Err)
					default:
						fmt.Fprintf(out, "%s\tok\tpoints=%d evicted=%d latest=%g\n", r.Symbol, r.Points, r.Evicted, r.Latest)
					}
				}
				if failed := report.Failed(); len(failed) > 0 {
					return fmt.Errorf("refresh failed for %s", strings.Join(failed, ", "))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&symbols, "symbols", "", "comma separated symbols (default: markets.symbols)")
	return cmd
}
