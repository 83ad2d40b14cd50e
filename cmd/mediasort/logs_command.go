package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"mediasort/internal/daemonrun"
	"mediasort/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, daemonrun.LogFile)
			tail, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	return cmd
}
