package daemon_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediasort/internal/config"
	"mediasort/internal/daemon"
	"mediasort/internal/faults"
	"mediasort/internal/ledger"
	"mediasort/internal/logging"
	"mediasort/internal/testsupport"
)

var shot = time.Date(2023, 7, 1, 12, 0, 0, 0, time.Local)

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewRejectsMissingSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.SourceDir = ""
	if _, err := daemon.New(cfg, logging.NewNop()); !errors.Is(err, faults.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
	if _, err := daemon.New(nil, nil); !errors.Is(err, faults.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid for nil config, got %v", err)
	}
}

func TestRunCycleOrganizesAndSummarises(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clip := filepath.Join(cfg.Paths.SourceDir, "clip.mov")
	testsupport.WriteFile(t, clip, 64)
	testsupport.SetModTime(t, clip, shot)

	d := newDaemon(t, cfg)
	summary := d.RunCycle(context.Background(), daemon.TriggerStartup)

	if summary.Error != "" {
		t.Fatalf("unexpected cycle error: %s", summary.Error)
	}
	if summary.Seen != 1 || summary.Moved != 1 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.CycleID == "" || summary.Trigger != daemon.TriggerStartup {
		t.Fatalf("summary missing identity: %+v", summary)
	}
	got := testsupport.ListFiles(t, cfg.Paths.OutputDir)
	if len(got) != 1 || got[0] != "2023-07-01/视频/未知设备/clip.mov" {
		t.Fatalf("unexpected output tree: %v", got)
	}

	status := d.Status()
	if status.Cycles != 1 || status.LastCycle == nil || status.LastCycle.CycleID != summary.CycleID {
		t.Fatalf("status does not reflect the cycle: %+v", status)
	}
	if status.LedgerEntries != 1 {
		t.Fatalf("expected one ledger record, got %d", status.LedgerEntries)
	}
}

func TestRepeatedCyclesFilterLedgeredFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithInPlace())
	clip := filepath.Join(cfg.Paths.SourceDir, "clip.mov")
	testsupport.WriteFile(t, clip, 64)
	testsupport.SetModTime(t, clip, shot)

	d := newDaemon(t, cfg)
	first := d.RunCycle(context.Background(), daemon.TriggerStartup)
	if first.Moved != 1 {
		t.Fatalf("first cycle should move the clip: %+v", first)
	}

	second := d.RunCycle(context.Background(), daemon.TriggerInterval)
	if second.Seen != 1 || second.Ledgered != 1 || second.Moved != 0 || second.Skipped != 0 {
		t.Fatalf("second cycle should only see a ledgered file: %+v", second)
	}
	if !testsupport.Exists(filepath.Join(cfg.Paths.SourceDir, "2023-07-01", "视频", "未知设备", "clip.mov")) {
		t.Fatal("organized clip missing after second cycle")
	}
}

func TestRunCycleIngestsMountedCards(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Ingest.Enabled = true
	card := filepath.Join(cfg.Daemon.MountRoots[0], "CARD")
	photo := filepath.Join(card, "DCIM", "100CANON", "IMG_0001.JPG")
	testsupport.WriteFile(t, photo, 128)
	testsupport.SetModTime(t, photo, shot)

	d := newDaemon(t, cfg)
	summary := d.RunCycle(context.Background(), daemon.TriggerMedia)
	if summary.Ingested != 1 || summary.Moved != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	got := testsupport.ListFiles(t, cfg.Paths.OutputDir)
	if len(got) != 1 || got[0] != "2023-07-01/图片/未知设备/IMG_0001.JPG" {
		t.Fatalf("unexpected output tree: %v", got)
	}
	if !testsupport.Exists(photo) {
		t.Fatal("ingest must leave the card untouched")
	}
	if testsupport.Exists(filepath.Join(cfg.IngestStagingDir(), "CARD")) {
		t.Fatal("drained staging tree should be pruned")
	}

	again := d.RunCycle(context.Background(), daemon.TriggerInterval)
	if again.Ingested != 0 {
		t.Fatalf("card file should be ledgered on the second cycle: %+v", again)
	}
}

func TestRunRemovesStalePartialCopies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stale := filepath.Join(cfg.Paths.OutputDir, "2023-07-01", "图片", ".mediasort-a.jpg.part")
	testsupport.WriteFile(t, stale, 16)
	testsupport.SetModTime(t, stale, time.Now().Add(-2*time.Hour))

	d := newDaemon(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	waitFor(t, "startup cycle", func() bool { return d.Status().Cycles >= 1 })
	cancel()
	<-done

	if testsupport.Exists(stale) {
		t.Fatal("stale partial copy should be removed at startup")
	}
}

func TestRunCycleReportsUnavailableSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.SourceDir = filepath.Join(testsupport.BaseDir(cfg), "unmounted")

	d := newDaemon(t, cfg)
	summary := d.RunCycle(context.Background(), daemon.TriggerStartup)
	if summary.Error == "" {
		t.Fatal("expected cycle error for a missing source")
	}
}

func TestRunHoldsLockAndStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitFor(t, "startup cycle", func() bool { return d.Status().Cycles >= 1 })
	if !d.Status().Running {
		t.Fatal("expected daemon to report running")
	}

	other := newDaemon(t, cfg)
	if err := other.Run(context.Background()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	if !d.Trigger(daemon.TriggerAPI) {
		t.Fatal("expected trigger to queue")
	}
	waitFor(t, "triggered cycle", func() bool {
		last := d.Status().LastCycle
		return last != nil && last.Trigger == daemon.TriggerAPI
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if d.Status().Running {
		t.Fatal("expected daemon to report stopped")
	}
}

func TestTriggerCoalesces(t *testing.T) {
	d := newDaemon(t, testsupport.NewConfig(t))
	if !d.Trigger(daemon.TriggerWatch) {
		t.Fatal("first trigger should queue")
	}
	if d.Trigger(daemon.TriggerWatch) {
		t.Fatal("second trigger should coalesce with the pending one")
	}
}

func TestResetLedger(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	journal, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	if err := journal.Append(ledger.Entry{Source: "/src/a.jpg", Size: 1, Outcome: "executed"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := daemon.ResetLedger(cfg); err != nil {
		t.Fatalf("ResetLedger: %v", err)
	}
	entries, err := ledger.ReadEntries(cfg.LedgerPath())
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty ledger, got %d entries", len(entries))
	}
	if err := daemon.ResetLedger(nil); err == nil || !strings.Contains(err.Error(), "configuration required") {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
