package main

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediasort/internal/daemon"
	"mediasort/internal/faults"
	"mediasort/internal/ledger"
	"mediasort/internal/logging"
	"mediasort/internal/organizer"
	"mediasort/internal/testsupport"
)

var clipTime = time.Date(2023, 7, 1, 12, 0, 0, 0, time.Local)

func writeClip(t *testing.T, dir string) string {
	t.Helper()
	clip := filepath.Join(dir, "clip.mov")
	testsupport.WriteFile(t, clip, 64)
	testsupport.SetModTime(t, clip, clipTime)
	return clip
}

func TestRootHelpListsCommands(t *testing.T) {
	out, _, err := runCLI(t, "", "--help")
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	for _, name := range []string{"organize", "ingest", "daemon", "status", "cycle", "ledger", "config", "check", "logs"} {
		requireContains(t, out, name)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.cfg.Paths.SourceDir)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestOrganizeDryRunMatchesExecute(t *testing.T) {
	env := setupCLITestEnv(t)
	clip := writeClip(t, env.cfg.Paths.SourceDir)
	want := filepath.Join(env.cfg.Paths.OutputDir, "2023-07-01", "视频", "未知设备", "clip.mov")

	out, _, err := runCLI(t, env.configPath, "organize", "--dry-run", "--json")
	if err != nil {
		t.Fatalf("organize --dry-run: %v", err)
	}
	var report organizer.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if len(report.Operations) != 1 {
		t.Fatalf("expected one operation, got %+v", report.Operations)
	}
	op := report.Operations[0]
	if op.Outcome != organizer.OutcomeSkipped || op.Reason != faults.ReasonDryRun {
		t.Fatalf("unexpected dry-run outcome %s/%s", op.Outcome, op.Reason)
	}
	if len(op.Moves) != 1 || op.Moves[0].Destination != want {
		t.Fatalf("unexpected planned moves %+v", op.Moves)
	}
	if !testsupport.Exists(clip) {
		t.Fatal("dry run must not move the clip")
	}

	out, _, err = runCLI(t, env.configPath, "organize")
	if err != nil {
		t.Fatalf("organize: %v", err)
	}
	requireContains(t, out, "executed")
	requireContains(t, out, "2023-07-01/视频/未知设备/clip.mov")
	if !testsupport.Exists(want) || testsupport.Exists(clip) {
		t.Fatal("execute pass did not move the clip to the planned destination")
	}
}

func TestOrganizePathOverrides(t *testing.T) {
	env := setupCLITestEnv(t)
	other := filepath.Join(env.baseDir, "camera-dump")
	target := filepath.Join(env.baseDir, "library")
	writeClip(t, other)

	if _, _, err := runCLI(t, env.configPath, "organize", "--source", other, "--output", target); err != nil {
		t.Fatalf("organize with overrides: %v", err)
	}
	if !testsupport.Exists(filepath.Join(target, "2023-07-01", "视频", "未知设备", "clip.mov")) {
		t.Fatalf("clip not organized into override output: %v", testsupport.ListFiles(t, target))
	}
}

func TestOrganizeRejectsMissingSource(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, env.configPath, "organize", "--source", filepath.Join(env.baseDir, "missing"))
	if err == nil {
		t.Fatal("expected error for a missing source")
	}
}

func TestLedgerShowAndReset(t *testing.T) {
	env := setupCLITestEnv(t)
	writeClip(t, env.cfg.Paths.SourceDir)

	if _, _, err := runCLI(t, env.configPath, "organize", "--ledger"); err != nil {
		t.Fatalf("organize --ledger: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "ledger", "show", "--json")
	if err != nil {
		t.Fatalf("ledger show: %v", err)
	}
	var entries []ledger.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode entries: %v\n%s", err, out)
	}
	if len(entries) != 1 || filepath.Base(entries[0].Destination) != "clip.mov" {
		t.Fatalf("unexpected ledger entries %+v", entries)
	}

	out, _, err = runCLI(t, env.configPath, "ledger", "reset")
	if err != nil {
		t.Fatalf("ledger reset: %v", err)
	}
	requireContains(t, out, "1 entries removed")

	out, _, err = runCLI(t, env.configPath, "ledger", "show")
	if err != nil {
		t.Fatalf("ledger show after reset: %v", err)
	}
	requireContains(t, out, "(0 entries)")
}

func TestCheckCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env.configPath, "check")
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	requireContains(t, out, "Source directory")
	requireContains(t, out, "ok")
}

func TestIngestDryRun(t *testing.T) {
	env := setupCLITestEnv(t)
	mount := filepath.Join(env.cfg.Daemon.MountRoots[0], "CARD")
	testsupport.WriteFile(t, filepath.Join(mount, "DCIM", "100CANON", "IMG_0001.JPG"), 32)

	out, _, err := runCLI(t, env.configPath, "ingest", "--dry-run")
	if err != nil {
		t.Fatalf("ingest --dry-run: %v", err)
	}
	requireContains(t, out, "Dry run")
	requireContains(t, out, mount)
	if files := testsupport.ListFiles(t, env.cfg.IngestStagingDir()); len(files) != 0 {
		t.Fatalf("dry run copied files: %v", files)
	}
}

func TestStatusWithoutAPI(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env.configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon running: no")
}

func TestStatusAndCycleThroughAPI(t *testing.T) {
	env := setupCLITestEnv(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()
	env.cfg.Daemon.APIEnabled = true
	env.cfg.Daemon.APIBind = addr
	writeTestConfig(t, env.configPath, env.cfg)

	d, err := daemon.New(env.cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	waitFor(t, 5*time.Second, func() bool { return d.Status().Cycles >= 1 })

	out, _, err := runCLI(t, env.configPath, "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var status daemon.Status
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if !status.Running || status.LastCycle == nil || status.LastCycle.Trigger != daemon.TriggerStartup {
		t.Fatalf("unexpected status %+v", status)
	}

	out, _, err = runCLI(t, env.configPath, "cycle")
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	requireContains(t, out, "Cycle requested")
	waitFor(t, 5*time.Second, func() bool {
		last := d.Status().LastCycle
		return last != nil && last.Trigger == daemon.TriggerAPI
	})
}

func TestLogsPrintsTrailingLines(t *testing.T) {
	env := setupCLITestEnv(t)
	logPath := filepath.Join(env.cfg.Paths.LogDir, "mediasort.log")
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir log dir: %v", err)
	}
	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "logs", "-n", "2")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "second\nthird\n" {
		t.Fatalf("unexpected output %q", out)
	}
}
