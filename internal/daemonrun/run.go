// Package daemonrun boots the daemon process: signal handling, logging,
// preflight reporting and the pid file.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"mediasort/internal/config"
	"mediasort/internal/daemon"
	"mediasort/internal/logging"
	"mediasort/internal/preflight"
)

// LogFile is the daemon log name under log_dir.
const LogFile = "mediasort.log"

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the mediasort daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	logger, err := logging.NewFromConfig(cfg, LogFile)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logPreflight(signalCtx, logger, cfg)

	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Run(signalCtx); err != nil {
		logger.Error("daemon exited", logging.Error(err))
		return err
	}
	logger.Info("mediasort daemon shutting down")
	return nil
}

// PIDPath returns the pid file written while the daemon runs.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StateDir, "mediasort.pid")
}

// ReadPID returns the pid recorded by a running daemon.
func ReadPID(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(PIDPath(cfg))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	results := preflight.RunAll(ctx, cfg)
	for _, r := range preflight.Failed(results) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "run mediasort check for details"),
		)
	}
	logger.Info("preflight complete",
		logging.String(logging.FieldEventType, "preflight_complete"),
		logging.Int("checks", len(results)),
		logging.Int("failed", len(preflight.Failed(results))),
	)
}
