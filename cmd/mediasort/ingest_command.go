package main

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"mediasort/internal/ingest"
	"mediasort/internal/ledger"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var jsonOutput bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "ingest [mount...]",
		Short: "Copy removable media into the source tree, then organize",
		Long: "Copy every file from each mount into the ingest staging directory with\n" +
			"SHA-256 verification, then run an organize pass. Files recorded in the\n" +
			"ledger are skipped. Without arguments every volume under daemon.mount_roots\n" +
			"is ingested.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			mounts := args
			if len(mounts) == 0 {
				mounts = ingest.Candidates(afero.NewOsFs(), cfg.Daemon.MountRoots)
			}
			if len(mounts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No mounted volumes found")
				return nil
			}

			logger, err := cliLogger(cfg, verbose)
			if err != nil {
				return err
			}
			journal, err := ledger.Open(cfg.LedgerPath())
			if err != nil {
				return err
			}
			ingester, err := ingest.New(cfg, ingest.WithLedger(journal), ingest.WithLogger(logger))
			if err != nil {
				return err
			}

			var results []*ingest.Result
			var errs []error
			for _, mount := range mounts {
				result, err := ingester.Ingest(cmd.Context(), mount, dryRun)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", mount, err))
				}
				if result == nil {
					continue
				}
				results = append(results, result)
				if !jsonOutput {
					renderIngest(cmd.OutOrStdout(), result, dryRun)
				}
				if result.Failed > 0 {
					errs = append(errs, fmt.Errorf("%s: %d file(s) failed to copy", mount, result.Failed))
				}
			}
			if jsonOutput {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "List what would be copied without copying")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every file")
	return cmd
}
