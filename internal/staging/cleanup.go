package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"mediasort/internal/fileutil"
	"mediasort/internal/logging"
)

const (
	partialSuffix = ".part"
	backupSuffix  = ".bak"
)

// CleanResult contains the outcome of a cleanup pass.
type CleanResult struct {
	Removed []string
	// Backups lists overwrite backups left by an interrupted move. They hold
	// the only copy of the replaced file and are never removed automatically.
	Backups []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStalePartials removes in-progress copies older than maxAge under each
// root. A copy interrupted by a crash or power loss leaves a hidden
// .mediasort-<name>.part file next to its destination; nothing else reads
// it. Missing roots are skipped.
func CleanStalePartials(ctx context.Context, fs afero.Fs, roots []string, maxAge time.Duration, logger *slog.Logger) CleanResult {
	if logger == nil {
		logger = logging.NewNop()
	}
	result := CleanResult{}
	cutoff := time.Now().Add(-maxAge)
	seen := make(map[string]struct{}, len(roots))

	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		if _, dup := seen[root]; dup {
			continue
		}
		seen[root] = struct{}{}

		err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				if !os.IsNotExist(err) {
					result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
				}
				if info != nil && info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if info.IsDir() {
				return nil
			}
			name := info.Name()
			if !strings.HasPrefix(name, fileutil.PartialPrefix) {
				return nil
			}
			switch {
			case strings.HasSuffix(name, backupSuffix):
				result.Backups = append(result.Backups, path)
				logging.WarnWithContext(logger, "overwrite backup left behind", "staging_backup_found",
					logging.String(logging.FieldPath, path),
					logging.String(logging.FieldErrorHint, "restore or delete the backup by hand"),
					logging.String(logging.FieldImpact, "backup occupies disk space"),
				)
			case strings.HasSuffix(name, partialSuffix) && info.ModTime().Before(cutoff):
				if err := fs.Remove(path); err != nil {
					result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
					logging.WarnWithContext(logger, "failed to remove stale partial copy", "staging_cleanup_failed",
						logging.String(logging.FieldPath, path),
						logging.Error(err),
						logging.String(logging.FieldErrorHint, "check output directory permissions"),
						logging.String(logging.FieldImpact, "disk space not reclaimed"),
					)
					return nil
				}
				result.Removed = append(result.Removed, path)
				logger.Info("removed stale partial copy",
					logging.String(logging.FieldPath, path),
					logging.Duration("age", time.Since(info.ModTime())),
					logging.String(logging.FieldEventType, "staging_cleanup"),
				)
			}
			return nil
		})
		if err != nil && ctx.Err() != nil {
			return result
		}
		if err != nil && !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: root, Error: err})
		}
	}
	return result
}

// PruneEmpty removes every empty directory below dir, deepest first. dir
// itself is kept. A missing dir is not an error.
func PruneEmpty(fs afero.Fs, dir string, logger *slog.Logger) CleanResult {
	if logger == nil {
		logger = logging.NewNop()
	}
	result := CleanResult{}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return result
	}
	dir = filepath.Clean(dir)

	var dirs []string
	err := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() && path != dir {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
		return result
	}

	sort.Slice(dirs, func(i, j int) bool {
		di := strings.Count(dirs[i], string(filepath.Separator))
		dj := strings.Count(dirs[j], string(filepath.Separator))
		if di != dj {
			return di > dj
		}
		return dirs[i] < dirs[j]
	})
	for _, path := range dirs {
		empty, err := afero.IsEmpty(fs, path)
		if err != nil || !empty {
			continue
		}
		if err := fs.Remove(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			continue
		}
		result.Removed = append(result.Removed, path)
	}
	if len(result.Removed) > 0 {
		logger.Debug("pruned empty staging directories",
			logging.String("dir", dir),
			logging.Int("removed", len(result.Removed)),
		)
	}
	return result
}
