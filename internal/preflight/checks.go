package preflight

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"mediasort/internal/config"
	"mediasort/internal/deps"
	"mediasort/internal/metadata"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckDirectoryReadable verifies that the directory exists and can be listed.
func CheckDirectoryReadable(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "readable")
}

func checkDirectory(name, path string, mode uint32, okDetail string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, okDetail)}
}

// CheckCreatableDirectory passes when path is an accessible directory, or when
// it is missing but its nearest existing ancestor is writable.
func CheckCreatableDirectory(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	if _, err := os.Stat(path); err == nil || !errors.Is(err, fs.ErrNotExist) {
		return CheckDirectoryAccess(name, path)
	}
	parent := filepath.Dir(path)
	for {
		if _, err := os.Stat(parent); err == nil {
			break
		}
		next := filepath.Dir(parent)
		if next == parent {
			break
		}
		parent = next
	}
	if err := unix.Access(parent, unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: cannot create under %s: %v)", path, parent, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
}

// CheckFilesystemRelation reports whether moves can be plain renames. A
// cross-device layout still passes; files are then copied, verified and
// removed.
func CheckFilesystemRelation(name, source, output string, move bool) Result {
	if !move {
		return Result{Name: name, Passed: true, Detail: "copy mode (sources are kept)"}
	}
	src, err := deviceOf(source)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("stat source: %v", err)}
	}
	dst, err := deviceOf(output)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("stat output: %v", err)}
	}
	if src == dst {
		return Result{Name: name, Passed: true, Detail: "same filesystem (atomic rename)"}
	}
	return Result{Name: name, Passed: true, Detail: "different filesystems (verified copy, then delete)"}
}

// deviceOf returns the device of path or of its nearest existing ancestor.
func deviceOf(path string) (uint64, error) {
	for {
		var st unix.Stat_t
		err := unix.Stat(path, &st)
		if err == nil {
			return uint64(st.Dev), nil
		}
		parent := filepath.Dir(path)
		if !errors.Is(err, unix.ENOENT) || parent == path {
			return 0, err
		}
		path = parent
	}
}

// CheckDeviceMap verifies that the device-suffix mapping document parses.
func CheckDeviceMap(path string) Result {
	const name = "Device map"
	devices, err := metadata.LoadDeviceMap(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, devices)}
}

// CheckSystemDeps evaluates the external metadata readers enabled in cfg.
// Both are optional: the resolver falls back to the remaining readers.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	var requirements []deps.Requirement
	if cfg.Tools.UseExiftool {
		requirements = append(requirements, deps.Requirement{
			Name:        "ExifTool",
			Command:     cfg.Tools.ExiftoolBinary,
			Description: "Reads capture dates and camera models from RAW and HEIC files",
			Optional:    true,
			VersionArgs: []string{"-ver"},
		})
	}
	if cfg.Tools.UseFFprobe {
		requirements = append(requirements, deps.Requirement{
			Name:        "FFprobe",
			Command:     cfg.Tools.FFprobeBinary,
			Description: "Reads creation time, device and projection from video and audio",
			Optional:    true,
			VersionArgs: []string{"-version"},
		})
	}
	return deps.CheckBinaries(ctx, requirements)
}
