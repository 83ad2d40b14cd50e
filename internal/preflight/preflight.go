package preflight

import (
	"context"
	"path/filepath"
	"strings"

	"mediasort/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Source directory", cfg.Paths.SourceDir))

	output := cfg.OutputRoot()
	if filepath.Clean(output) != filepath.Clean(cfg.Paths.SourceDir) {
		results = append(results, CheckCreatableDirectory("Output directory", output))
		results = append(results, CheckFilesystemRelation("Move strategy", cfg.Paths.SourceDir, output, cfg.Organize.MoveFiles))
	}

	results = append(results, CheckCreatableDirectory("State directory", cfg.Paths.StateDir))

	if path := cfg.DeviceMapPath(); strings.TrimSpace(path) != "" {
		results = append(results, CheckDeviceMap(path))
	}

	if cfg.Ingest.Enabled {
		for _, root := range cfg.Daemon.MountRoots {
			results = append(results, CheckDirectoryReadable("Mount root", root))
		}
	}

	for _, status := range CheckSystemDeps(ctx, cfg) {
		detail := status.Detail
		if status.Available {
			detail = status.Path
			if status.Version != "" {
				detail += " (" + status.Version + ")"
			}
		}
		results = append(results, Result{Name: status.Name, Passed: status.Satisfied(), Detail: detail})
	}
	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
