package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"mediasort/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// External metadata tools are disabled so results depend only on fixtures.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.SourceDir = filepath.Join(base, "source")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "state", "logs")
	cfgVal.Tools.UseExiftool = false
	cfgVal.Tools.UseFFprobe = false
	cfgVal.Daemon.APIBind = "127.0.0.1:0"
	cfgVal.Daemon.Watch = false
	cfgVal.Daemon.MountRoots = []string{filepath.Join(base, "media")}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	for _, dir := range []string{cfgVal.Paths.SourceDir, cfgVal.Paths.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return builder.cfg
}

// WithInPlace clears the output directory so files are organized under the
// source root.
func WithInPlace() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.OutputDir = ""
	}
}

// WithDuplicateStrategy sets organize.duplicate_strategy.
func WithDuplicateStrategy(strategy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Organize.DuplicateStrategy = strategy
	}
}

// WithStubbedBinary writes an executable shell script named name with the
// given body and prepends its directory to PATH. It returns the script path.
func WithStubbedBinary(name, body string) ConfigOption {
	return func(b *configBuilder) {
		StubBinary(b.t, filepath.Join(b.baseDir, "bin"), name, body)
	}
}

// StubBinary writes an executable script into dir and prepends dir to PATH
// for the duration of the test.
func StubBinary(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	if body == "" {
		body = "exit 0\n"
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
	return target
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.SourceDir)
}
