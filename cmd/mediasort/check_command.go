package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mediasort/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check directories, the device map and external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			failed := preflight.Failed(results)
			if jsonOutput {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					state := "ok"
					if !r.Passed {
						state = "FAIL"
					}
					rows = append(rows, []string{r.Name, state, r.Detail})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{
					{header: "Check"},
					{header: "Status"},
					{header: "Detail", maxWidth: 80},
				}, rows))
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	return cmd
}
