package staging

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"

	"mediasort/internal/logging"
)

func writeAged(t *testing.T, fs afero.Fs, path string, age time.Duration) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	when := time.Now().Add(-age)
	if err := fs.Chtimes(path, when, when); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func TestCleanStalePartialsInvalidRoots(t *testing.T) {
	fs := afero.NewMemMapFs()
	result := CleanStalePartials(context.Background(), fs, []string{"", "   ", "/nonexistent/path"}, time.Hour, logging.NewNop())
	if len(result.Removed) != 0 || len(result.Errors) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestCleanStalePartialsRemovesOldCopies(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeAged(t, fs, "/out/2024-01-15/图片/.mediasort-a.jpg.part", 2*time.Hour)
	writeAged(t, fs, "/out/2024-01-15/图片/.mediasort-b.jpg.part", time.Minute)
	writeAged(t, fs, "/out/2024-01-15/图片/c.jpg", 2*time.Hour)
	writeAged(t, fs, "/out/2024-01-15/图片/.mediasort-d.jpg.bak", 2*time.Hour)

	result := CleanStalePartials(context.Background(), fs, []string{"/out", "/out/"}, time.Hour, nil)

	if len(result.Removed) != 1 || result.Removed[0] != "/out/2024-01-15/图片/.mediasort-a.jpg.part" {
		t.Fatalf("unexpected removals: %v", result.Removed)
	}
	if len(result.Backups) != 1 {
		t.Fatalf("expected backup to be reported, got %v", result.Backups)
	}
	for _, keep := range []string{
		"/out/2024-01-15/图片/.mediasort-b.jpg.part",
		"/out/2024-01-15/图片/c.jpg",
		"/out/2024-01-15/图片/.mediasort-d.jpg.bak",
	} {
		if ok, _ := afero.Exists(fs, keep); !ok {
			t.Errorf("%s should be kept", keep)
		}
	}
}

func TestCleanStalePartialsStopsOnCancel(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeAged(t, fs, "/out/.mediasort-a.jpg.part", 2*time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := CleanStalePartials(ctx, fs, []string{"/out"}, time.Hour, nil)
	if len(result.Removed) != 0 {
		t.Fatalf("canceled pass removed %v", result.Removed)
	}
}

func TestPruneEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, dir := range []string{"/src/_ingest/CARD/DCIM/100CANON", "/src/_ingest/PHONE/DCIM"} {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	writeAged(t, fs, "/src/_ingest/PHONE/DCIM/IMG_0002.JPG", 0)

	result := PruneEmpty(fs, "/src/_ingest", nil)
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	if len(result.Removed) != 3 {
		t.Fatalf("expected the CARD tree to be removed, got %v", result.Removed)
	}
	if ok, _ := afero.DirExists(fs, "/src/_ingest/CARD"); ok {
		t.Fatal("empty card tree should be pruned")
	}
	if ok, _ := afero.DirExists(fs, "/src/_ingest"); !ok {
		t.Fatal("staging root must be kept")
	}
	if ok, _ := afero.Exists(fs, "/src/_ingest/PHONE/DCIM/IMG_0002.JPG"); !ok {
		t.Fatal("non-empty tree must be kept")
	}
}

func TestPruneEmptyMissingDir(t *testing.T) {
	result := PruneEmpty(afero.NewMemMapFs(), "/absent", nil)
	if len(result.Removed) != 0 || len(result.Errors) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}
