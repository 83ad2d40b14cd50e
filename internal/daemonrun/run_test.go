package daemonrun

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"mediasort/internal/testsupport"
)

func TestRunStopsOnCancelAndRemovesPID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.Format = "json"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, Options{LogLevel: "error"}) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if pid, err := ReadPID(cfg); err == nil {
			if pid != os.Getpid() {
				t.Fatalf("unexpected pid %d", pid)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pid file never written")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	if _, err := os.Stat(PIDPath(cfg)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("pid file should be removed, stat err = %v", err)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}
