package scan_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"mediasort/internal/logging"
	"mediasort/internal/media"
	"mediasort/internal/scan"
	"mediasort/internal/testsupport"
)

func names(root string, files []media.File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		rel, _ := filepath.Rel(root, f.Path)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestWalkOrderAndClassification(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := cfg.Paths.SourceDir
	for _, name := range []string{"b/clip.MOV", "a/IMG_2.jpg", "a/IMG_1.jpg", "a/IMG_1.xmp", "a/project.op", "song.mp3", "notes.txt"} {
		testsupport.WriteFile(t, filepath.Join(src, name), 4)
	}

	scanner := scan.NewFromConfig(cfg, media.NewClassifierFromConfig(cfg), logging.NewNop())
	files, err := scanner.Walk(context.Background(), src)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	want := []string{"a/IMG_1.jpg", "a/IMG_2.jpg", "a/project.op", "b/clip.MOV", "song.mp3"}
	if got := names(src, files); !equal(got, want) {
		t.Fatalf("files = %v, want %v", got, want)
	}
	if files[0].Size != 4 || files[0].ModTime.IsZero() {
		t.Fatalf("stat fields missing: %+v", files[0])
	}
	if !files[2].LeaveInPlace {
		t.Fatalf("project.op should be leave-in-place")
	}
}

func TestEachStreamsAndStops(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := cfg.Paths.SourceDir
	for _, name := range []string{"a/IMG_1.jpg", "a/IMG_2.jpg", "b/clip.mov"} {
		testsupport.WriteFile(t, filepath.Join(src, name), 4)
	}
	scanner := scan.NewFromConfig(cfg, media.NewClassifierFromConfig(cfg), logging.NewNop())

	var seen []media.File
	err := scanner.Each(context.Background(), src, func(file media.File) error {
		seen = append(seen, file)
		if len(seen) == 2 {
			return scan.ErrStop
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Each: %v", err)
	}
	if got := names(src, seen); !equal(got, []string{"a/IMG_1.jpg", "a/IMG_2.jpg"}) {
		t.Fatalf("files before stop = %v", got)
	}

	// A second enumeration starts over.
	count := 0
	if err := scanner.Each(context.Background(), src, func(media.File) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("Each again: %v", err)
	}
	if count != 3 {
		t.Fatalf("restarted scan saw %d files, want 3", count)
	}
}

func TestWalkSurvivesSymlinkCycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := cfg.Paths.SourceDir
	testsupport.WriteFile(t, filepath.Join(src, "a", "IMG_1.jpg"), 4)
	if err := os.Symlink(src, filepath.Join(src, "a", "loop")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Symlink(filepath.Join(src, "a", "IMG_1.jpg"), filepath.Join(src, "link.jpg")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	scanner := scan.NewFromConfig(cfg, media.NewClassifierFromConfig(cfg), logging.NewNop())
	files, err := scanner.Walk(context.Background(), src)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if got := names(src, files); !equal(got, []string{"a/IMG_1.jpg"}) {
		t.Fatalf("files = %v", got)
	}
}

func TestWalkPrunesNestedOutputAndStaging(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := cfg.Paths.SourceDir
	cfg.Paths.OutputDir = filepath.Join(src, "sorted")
	testsupport.WriteFile(t, filepath.Join(src, "sorted", "2024-01-01", "图片", "x.jpg"), 4)
	testsupport.WriteFile(t, filepath.Join(src, ".mediasort-copy", "y.jpg"), 4)
	testsupport.WriteFile(t, filepath.Join(src, "z.jpg"), 4)

	scanner := scan.NewFromConfig(cfg, media.NewClassifierFromConfig(cfg), logging.NewNop())
	files, err := scanner.Walk(context.Background(), src)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if got := names(src, files); !equal(got, []string{"z.jpg"}) {
		t.Fatalf("files = %v", got)
	}
}

func TestWalkMissingRoot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	scanner := scan.NewFromConfig(cfg, media.NewClassifierFromConfig(cfg), logging.NewNop())
	if _, err := scanner.Walk(context.Background(), filepath.Join(cfg.Paths.SourceDir, "missing")); err == nil {
		t.Fatalf("expected error for missing root")
	}
}

func TestWalkHonoursCancellation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.SourceDir, "a.jpg"), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scanner := scan.NewFromConfig(cfg, media.NewClassifierFromConfig(cfg), logging.NewNop())
	if _, err := scanner.Walk(ctx, cfg.Paths.SourceDir); err == nil {
		t.Fatalf("expected context error")
	}
}
