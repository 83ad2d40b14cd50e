package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mediasort/internal/daemon"
	"mediasort/internal/ledger"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or reset the daemon ledger",
	}
	ledgerCmd.AddCommand(newLedgerShowCommand(ctx))
	ledgerCmd.AddCommand(newLedgerResetCommand(ctx))
	return ledgerCmd
}

func newLedgerShowCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List the most recent ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			entries, err := ledger.ReadEntries(cfg.LedgerPath())
			if err != nil {
				return err
			}
			total := len(entries)
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			if jsonOutput {
				return writeJSON(cmd, entries)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ledger: %s (%d entries)\n", cfg.LedgerPath(), total)
			if len(entries) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					entry.RecordedAt.Local().Format(time.DateTime),
					entry.Outcome,
					entry.Source,
					entry.Destination,
					strconv.FormatInt(entry.Size, 10),
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				{header: "Recorded"},
				{header: "Outcome"},
				{header: "Source", maxWidth: pathColumnWidth},
				{header: "Destination", maxWidth: pathColumnWidth},
				{header: "Size", align: alignRight},
			}, rows))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print entries as JSON")
	return cmd
}

func newLedgerResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget every recorded file so the next cycle re-plans them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			entries, err := ledger.ReadEntries(cfg.LedgerPath())
			if err != nil {
				return err
			}
			if err := daemon.ResetLedger(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ledger reset (%d entries removed)\n", len(entries))
			return nil
		},
	}
}
