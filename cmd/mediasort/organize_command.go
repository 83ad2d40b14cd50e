package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"mediasort/internal/config"
	"mediasort/internal/ledger"
	"mediasort/internal/logging"
	"mediasort/internal/organizer"
)

func newOrganizeCommand(ctx *commandContext) *cobra.Command {
	var sourceFlag string
	var outputFlag string
	var dryRun bool
	var useLedger bool
	var jsonOutput bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "organize",
		Short: "Run one organize pass over the source directory",
		Long: "Scan the source directory, group sidecars with their primaries and move every\n" +
			"set to <output>/<date>/<kind>/<device>/. With --dry-run nothing is touched and\n" +
			"the report lists exactly the moves an execute pass would perform.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCfg := *cfg
			if err := applyPathOverride(&runCfg.Paths.SourceDir, sourceFlag); err != nil {
				return err
			}
			if err := applyPathOverride(&runCfg.Paths.OutputDir, outputFlag); err != nil {
				return err
			}

			logger, err := cliLogger(&runCfg, verbose)
			if err != nil {
				return err
			}
			opts := []organizer.Option{organizer.WithLogger(logger)}
			if useLedger {
				journal, err := ledger.Open(runCfg.LedgerPath())
				if err != nil {
					return err
				}
				opts = append(opts, organizer.WithLedger(journal))
			}
			bar := newProgress(cmd.ErrOrStderr(), jsonOutput, "organizing")
			if bar != nil {
				opts = append(opts, organizer.WithProgress(func(done, total int, _ organizer.Operation) {
					bar.ChangeMax(total)
					_ = bar.Set(done)
				}))
			}

			report, runErr := organizer.Run(cmd.Context(), &runCfg, dryRun, opts...)
			if bar != nil {
				_ = bar.Finish()
			}
			if report == nil {
				return runErr
			}
			if jsonOutput {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				renderReport(cmd.OutOrStdout(), report)
			}
			if runErr != nil {
				return runErr
			}
			if report.Summary.Failed > 0 {
				return fmt.Errorf("%d set(s) failed; see report", report.Summary.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceFlag, "source", "", "Source directory (overrides paths.source_dir)")
	cmd.Flags().StringVar(&outputFlag, "output", "", "Output directory (overrides paths.output_dir)")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Plan every move without touching any file")
	cmd.Flags().BoolVar(&useLedger, "ledger", false, "Skip files recorded in the daemon ledger and record new moves")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every operation")
	return cmd
}

func applyPathOverride(target *string, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	expanded, err := config.ExpandPath(value)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", value, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", value, err)
	}
	*target = abs
	return nil
}

// cliLogger logs to stderr. Per-operation info lines are only shown with
// --verbose since the report already lists them.
func cliLogger(cfg *config.Config, verbose bool) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if !verbose && (level == "" || strings.EqualFold(level, "info")) {
		level = "warn"
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
}

// newProgress returns a progress bar when w is an interactive terminal and
// the output is meant for humans.
func newProgress(w io.Writer, jsonOutput bool, description string) *progressbar.ProgressBar {
	if jsonOutput {
		return nil
	}
	f, ok := w.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return nil
	}
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetPredictTime(false),
	)
}
