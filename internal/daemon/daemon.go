package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"mediasort/internal/config"
	"mediasort/internal/faults"
	"mediasort/internal/ingest"
	"mediasort/internal/ledger"
	"mediasort/internal/logging"
	"mediasort/internal/organizer"
	"mediasort/internal/staging"
)

// Trigger names recorded on cycle summaries.
const (
	TriggerStartup  = "startup"
	TriggerInterval = "interval"
	TriggerWatch    = "watch"
	TriggerMedia    = "removable_media"
	TriggerAPI      = "api"
)

// stalePartialAge is how old an in-progress copy must be before startup
// treats it as abandoned.
const stalePartialAge = time.Hour

// ErrAlreadyRunning reports that another daemon holds the state directory lock.
var ErrAlreadyRunning = errors.New("another mediasort daemon instance is already running")

// CycleSummary is the outcome of one daemon cycle.
type CycleSummary struct {
	CycleID    string    `json:"cycle_id"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Seen       int       `json:"seen"`
	Moved      int       `json:"moved"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Ledgered   int       `json:"ledgered"`
	Ingested   int       `json:"ingested"`
	Error      string    `json:"error,omitempty"`
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool          `json:"running"`
	PID           int           `json:"pid"`
	LockFilePath  string        `json:"lock_path"`
	LedgerPath    string        `json:"ledger_path"`
	LedgerEntries int           `json:"ledger_entries"`
	Cycles        int64         `json:"cycles"`
	Watching      bool          `json:"watching"`
	MediaMonitor  bool          `json:"media_monitor"`
	Interval      time.Duration `json:"interval_ns"`
	LastCycle     *CycleSummary `json:"last_cycle,omitempty"`
}

// Option customises a Daemon.
type Option func(*Daemon)

// WithFs replaces the filesystem used for ingest and organize passes.
func WithFs(fs afero.Fs) Option {
	return func(d *Daemon) { d.fs = fs }
}

// WithOrganizerOptions appends options to every organize pass.
func WithOrganizerOptions(opts ...organizer.Option) Option {
	return func(d *Daemon) { d.organizeOpts = append(d.organizeOpts, opts...) }
}

// Daemon runs organize cycles on a schedule and on triggers, holding the
// single-instance lock for its lifetime.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	fs           afero.Fs
	organizeOpts []organizer.Option

	lockPath string
	lock     *flock.Flock
	triggers chan string

	watcher *sourceWatcher
	media   *netlinkMonitor
	api     *apiServer

	running atomic.Bool
	cycles  atomic.Int64

	mu            sync.Mutex
	last          *CycleSummary
	ledgerEntries int
}

// New constructs a daemon. Configuration problems are returned here so the
// process exits before taking the lock.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, faults.Wrap(faults.ErrConfigInvalid, "daemon", "init", "configuration required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateSource(); err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:      cfg,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
		triggers: make(chan string, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.fs == nil {
		d.fs = afero.NewOsFs()
	}
	d.logger = logging.NewComponentLogger(logger, "daemon")
	d.watcher = newSourceWatcher(cfg, d.logger, d.Trigger)
	d.media = newNetlinkMonitor(cfg, d.logger, d.Trigger)
	d.api = newAPIServer(cfg, d, d.logger)
	return d, nil
}

// Run acquires the lock, runs a cycle immediately, then one per interval or
// trigger until ctx is canceled. Cancellation aborts the wait at once; a
// cycle in progress stops between sets.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	if err := os.MkdirAll(d.cfg.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("ensure state dir: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	if err := d.watcher.Start(ctx); err != nil {
		logging.WarnWithContext(d.logger, "source watch unavailable", "watch_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check inotify limits (fs.inotify.max_user_watches)"),
			logging.String(logging.FieldImpact, "new files are picked up on the interval only"),
		)
	}
	defer d.watcher.Stop()
	if err := d.media.Start(ctx); err != nil {
		return err
	}
	defer d.media.Stop()
	if err := d.api.start(ctx); err != nil {
		return err
	}
	defer d.api.stop()

	staging.CleanStalePartials(ctx, d.fs, []string{d.cfg.Paths.SourceDir, d.cfg.OutputRoot()}, stalePartialAge, d.logger)

	interval := d.cfg.DaemonInterval()
	d.logger.Info("mediasort daemon started",
		logging.String("lock", d.lockPath),
		logging.String("source", d.cfg.Paths.SourceDir),
		logging.String("output", d.cfg.OutputRoot()),
		logging.Duration("interval", interval),
		logging.Bool("watch", d.watcher.Running()),
		logging.Bool("removable_media", d.media.Running()),
	)

	trigger := TriggerStartup
	for {
		d.RunCycle(ctx, trigger)
		next, err := d.wait(ctx, interval)
		if err != nil {
			d.logger.Info("mediasort daemon stopped")
			return nil
		}
		trigger = next
	}
}

// wait blocks until the interval elapses, a trigger arrives or ctx ends.
func (d *Daemon) wait(ctx context.Context, interval time.Duration) (string, error) {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return TriggerInterval, nil
	case reason := <-d.triggers:
		return reason, nil
	}
}

// Trigger requests an early cycle. Requests arriving while one is already
// pending are coalesced; the return value reports whether this one queued.
func (d *Daemon) Trigger(reason string) bool {
	select {
	case d.triggers <- reason:
		return true
	default:
		return false
	}
}

// RunCycle runs one ingest-then-organize cycle. Errors are logged and
// recorded on the summary; the next cycle retries whatever failed.
func (d *Daemon) RunCycle(ctx context.Context, trigger string) CycleSummary {
	cycleID := uuid.NewString()
	ctx = logging.WithCycleID(ctx, cycleID)
	logger := logging.WithContext(ctx, d.logger)

	summary := CycleSummary{
		CycleID:   cycleID,
		Trigger:   trigger,
		StartedAt: time.Now(),
	}
	defer func() {
		summary.FinishedAt = time.Now()
		d.cycles.Add(1)
		d.mu.Lock()
		last := summary
		d.last = &last
		d.mu.Unlock()
	}()

	// The journal is reopened every cycle so an external reset takes effect.
	journal, err := ledger.Open(d.cfg.LedgerPath())
	if err != nil {
		logging.ErrorWithContext(logger, "ledger unavailable", "ledger_open_failed",
			logging.String("ledger", d.cfg.LedgerPath()),
			logging.String(logging.FieldErrorHint, "check state_dir permissions"),
			logging.Error(err),
		)
		summary.Error = err.Error()
		return summary
	}

	if d.cfg.Ingest.Enabled {
		summary.Ingested = d.ingestMounts(ctx, logger, journal)
	}

	opts := append([]organizer.Option{
		organizer.WithFs(d.fs),
		organizer.WithLogger(d.logger),
		organizer.WithLedger(journal),
	}, d.organizeOpts...)
	report, err := organizer.Run(ctx, d.cfg, false, opts...)
	if report != nil {
		summary.Seen = report.Summary.Seen
		summary.Moved = report.Summary.Executed
		summary.Skipped = report.Summary.Skipped
		summary.Failed = report.Summary.Failed
		summary.Ledgered = report.Summary.Ledgered
	}
	d.mu.Lock()
	d.ledgerEntries = journal.Len()
	d.mu.Unlock()
	if d.cfg.Ingest.Enabled && err == nil {
		staging.PruneEmpty(d.fs, d.cfg.IngestStagingDir(), logger)
	}

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		summary.Error = err.Error()
		logger.Info("cycle interrupted by shutdown")
	default:
		summary.Error = err.Error()
		logging.ErrorWithContext(logger, "organize pass failed", "cycle_failed",
			logging.String("source", d.cfg.Paths.SourceDir),
			logging.String(logging.FieldErrorHint, "check that the source volume is mounted"),
			logging.Error(err),
		)
	}

	logger.Info("cycle summary",
		logging.String(logging.FieldEventType, "cycle_summary"),
		logging.String("trigger", trigger),
		logging.Int("seen", summary.Seen),
		logging.Int("moved", summary.Moved),
		logging.Int("skipped", summary.Skipped),
		logging.Int("failed", summary.Failed),
		logging.Int("ledgered", summary.Ledgered),
		logging.Int("ingested", summary.Ingested),
		logging.Duration("duration", time.Since(summary.StartedAt)),
	)
	return summary
}

func (d *Daemon) ingestMounts(ctx context.Context, logger *slog.Logger, journal *ledger.Ledger) int {
	ingester, err := ingest.New(d.cfg,
		ingest.WithFs(d.fs),
		ingest.WithLedger(journal),
		ingest.WithLogger(d.logger),
		ingest.WithoutOrganize(),
	)
	if err != nil {
		logging.WarnWithContext(logger, "ingest unavailable", "ingest_init_failed", logging.Error(err))
		return 0
	}
	copied := 0
	for _, mount := range ingest.Candidates(d.fs, d.cfg.Daemon.MountRoots) {
		if ctx.Err() != nil {
			break
		}
		result, err := ingester.Ingest(ctx, mount, false)
		if result != nil {
			copied += result.Copied + result.Other
		}
		if err != nil && ctx.Err() == nil {
			logging.WarnWithContext(logger, "ingest failed", "ingest_failed",
				logging.String("mount", mount),
				logging.String(logging.FieldImpact, "mount is retried next cycle"),
				logging.Error(err),
			)
		}
	}
	return copied
}

// Status reports runtime information for the CLI and status API.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	status := Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		LockFilePath:  d.lockPath,
		LedgerPath:    d.cfg.LedgerPath(),
		LedgerEntries: d.ledgerEntries,
		Cycles:        d.cycles.Load(),
		Watching:      d.watcher.Running(),
		MediaMonitor:  d.media.Running(),
		Interval:      d.cfg.DaemonInterval(),
	}
	if d.last != nil {
		last := *d.last
		status.LastCycle = &last
	}
	return status
}

// ResetLedger truncates the journal so the next cycle re-plans every file.
func ResetLedger(cfg *config.Config) error {
	if cfg == nil {
		return faults.Wrap(faults.ErrConfigInvalid, "daemon", "reset ledger", "configuration required", nil)
	}
	return ledger.Reset(cfg.LedgerPath())
}
