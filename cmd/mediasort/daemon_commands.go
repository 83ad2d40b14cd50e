package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mediasort/internal/config"
	"mediasort/internal/daemon"
	"mediasort/internal/daemonrun"
)

const apiTimeout = 5 * time.Second

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the organize loop in the foreground",
		Long: "Run a cycle at start, then every daemon.interval_seconds or whenever the\n" +
			"source tree changes, removable media is inserted, or POST /api/cycle is\n" +
			"received. Stops on SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			err = daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
			if errors.Is(err, daemon.ErrAlreadyRunning) {
				return fmt.Errorf("%w (lock %s)", err, cfg.LockPath())
			}
			return err
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !cfg.Daemon.APIEnabled {
				pid, err := daemonrun.ReadPID(cfg)
				running := err == nil
				if jsonOutput {
					return writeJSON(cmd, map[string]any{"running": running, "pid": pid})
				}
				fmt.Fprintf(out, "Daemon running: %s\n", yesNo(running))
				if running {
					fmt.Fprintf(out, "PID: %d\n", pid)
				}
				fmt.Fprintln(out, "Enable daemon.api_enabled for cycle details")
				return nil
			}

			var status daemon.Status
			if err := callAPI(cmd.Context(), cfg, http.MethodGet, "/api/status", &status); err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}
			rows := [][]string{
				{"Running", yesNo(status.Running)},
				{"PID", strconv.Itoa(status.PID)},
				{"Lock", status.LockFilePath},
				{"Ledger", status.LedgerPath},
				{"Ledger entries", strconv.Itoa(status.LedgerEntries)},
				{"Cycles", strconv.FormatInt(status.Cycles, 10)},
				{"Interval", status.Interval.String()},
				{"Watching source", yesNo(status.Watching)},
				{"Media monitor", yesNo(status.MediaMonitor)},
			}
			if last := status.LastCycle; last != nil {
				rows = append(rows,
					[]string{"Last cycle", last.FinishedAt.Local().Format(time.DateTime)},
					[]string{"Last trigger", last.Trigger},
					[]string{"Last result", fmt.Sprintf("seen %d, moved %d, skipped %d, failed %d, ledgered %d",
						last.Seen, last.Moved, last.Skipped, last.Failed, last.Ledgered)},
				)
				if last.Error != "" {
					rows = append(rows, []string{"Last error", last.Error})
				}
			}
			fmt.Fprintln(out, keyValueTable(rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print status as JSON")
	return cmd
}

func newCycleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Ask the running daemon to start a cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Daemon.APIEnabled {
				return errors.New("daemon.api_enabled is off; the daemon cannot be reached")
			}
			var resp struct {
				Queued bool `json:"queued"`
			}
			if err := callAPI(cmd.Context(), cfg, http.MethodPost, "/api/cycle", &resp); err != nil {
				return err
			}
			if resp.Queued {
				fmt.Fprintln(cmd.OutOrStdout(), "Cycle requested")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "A cycle is already pending")
			}
			return nil
		},
	}
}

func callAPI(ctx context.Context, cfg *config.Config, method, path string, into any) error {
	reqCtx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, apiBaseURL(cfg)+path, bytes.NewReader(nil))
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w; is `mediasort daemon` running?", cfg.Daemon.APIBind, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read daemon response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("daemon returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if into == nil {
		return nil
	}
	if err := json.Unmarshal(body, into); err != nil {
		return fmt.Errorf("decode daemon response: %w", err)
	}
	return nil
}

func apiBaseURL(cfg *config.Config) string {
	bind := strings.TrimSpace(cfg.Daemon.APIBind)
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	if strings.HasPrefix(bind, "0.0.0.0:") {
		bind = "127.0.0.1" + strings.TrimPrefix(bind, "0.0.0.0")
	}
	return "http://" + bind
}
