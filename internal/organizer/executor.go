package organizer

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"

	"mediasort/internal/faults"
	"mediasort/internal/fileutil"
	"mediasort/internal/logging"
)

// executor applies planned operations one set at a time.
type executor struct {
	fs     afero.Fs
	copy   bool
	logger *slog.Logger
}

type appliedMove struct {
	move   Move
	backup string
}

// apply moves every member in order, primary first. On any failure the
// members already moved are restored in reverse order and the error is
// returned; the set is then reported as failed.
func (e *executor) apply(op Operation) error {
	var done []appliedMove
	var created []string

	for _, move := range op.Moves {
		if !move.Transfers() {
			continue
		}
		dirs, err := e.ensureDir(filepath.Dir(move.Destination))
		created = append(created, dirs...)
		if err != nil {
			e.rollback(done, created)
			return faults.Wrap(faults.ErrMoveIO, "executor", "create directory", filepath.Dir(move.Destination), err)
		}

		backup := ""
		if exists, _ := afero.Exists(e.fs, move.Destination); exists {
			if !op.Overwrite {
				e.rollback(done, created)
				return faults.Wrap(faults.ErrMoveIO, "executor", "guard destination", move.Destination, faults.ErrDestinationCollision)
			}
			backup = backupPath(move.Destination)
			if err := e.fs.Rename(move.Destination, backup); err != nil {
				e.rollback(done, created)
				return faults.Wrap(faults.ErrMoveIO, "executor", "set aside existing", move.Destination, err)
			}
		}

		if err := e.transfer(move.Source, move.Destination); err != nil {
			if backup != "" {
				if restoreErr := e.fs.Rename(backup, move.Destination); restoreErr != nil {
					e.logger.Error("restore overwritten file failed",
						logging.String(logging.FieldPath, move.Destination),
						logging.Error(restoreErr),
					)
				}
			}
			e.rollback(done, created)
			attrs := []logging.Attr{
				logging.String(logging.FieldPath, move.Source),
				logging.String("destination", move.Destination),
				logging.Error(err),
			}
			if destinationUnavailable(err) {
				attrs = append(attrs, logging.String(logging.FieldErrorHint, "destination filesystem unavailable; check the mount"))
			}
			logging.WarnWithContext(e.logger, "member transfer failed; set rolled back", "move_failed", attrs...)
			return faults.Wrap(faults.ErrMoveIO, "executor", "transfer", move.Source, err)
		}
		done = append(done, appliedMove{move: move, backup: backup})
	}

	for _, applied := range done {
		if applied.backup != "" {
			if err := e.fs.Remove(applied.backup); err != nil {
				e.logger.Warn("remove overwritten backup failed",
					logging.String(logging.FieldPath, applied.backup),
					logging.Error(err),
				)
			}
		}
	}
	return nil
}

func (e *executor) transfer(src, dst string) error {
	if e.copy {
		return fileutil.CopyFileVerified(e.fs, src, dst)
	}
	return fileutil.MoveFile(e.fs, src, dst)
}

// rollback undoes done in reverse order and removes directories created for
// the set when they are empty again. Failures are logged, never returned.
func (e *executor) rollback(done []appliedMove, created []string) {
	for i := len(done) - 1; i >= 0; i-- {
		applied := done[i]
		var err error
		if e.copy {
			err = e.fs.Remove(applied.move.Destination)
		} else {
			err = fileutil.MoveFile(e.fs, applied.move.Destination, applied.move.Source)
		}
		if err != nil {
			logging.ErrorWithContext(e.logger, "rollback failed", "rollback_failed",
				logging.String(logging.FieldPath, applied.move.Source),
				logging.String("destination", applied.move.Destination),
				logging.String(logging.FieldErrorHint, "file left at destination; move it back manually"),
				logging.Error(err),
			)
			continue
		}
		if applied.backup != "" {
			if err := e.fs.Rename(applied.backup, applied.move.Destination); err != nil {
				e.logger.Error("restore overwritten file failed",
					logging.String(logging.FieldPath, applied.move.Destination),
					logging.Error(err),
				)
			}
		}
	}
	for i := len(created) - 1; i >= 0; i-- {
		if empty, err := afero.IsEmpty(e.fs, created[i]); err == nil && empty {
			_ = e.fs.Remove(created[i])
		}
	}
}

// ensureDir creates dir and returns the directories that did not exist
// before, outermost first.
func (e *executor) ensureDir(dir string) ([]string, error) {
	var missing []string
	for current := dir; ; current = filepath.Dir(current) {
		if exists, _ := afero.DirExists(e.fs, current); exists {
			break
		}
		missing = append([]string{current}, missing...)
		if parent := filepath.Dir(current); parent == current {
			break
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}
	if err := e.fs.MkdirAll(dir, 0o755); err != nil {
		return missing, err
	}
	return missing, nil
}

func backupPath(dest string) string {
	return filepath.Join(filepath.Dir(dest), fileutil.PartialPrefix+filepath.Base(dest)+".bak")
}

var unavailableErrors = []error{
	syscall.ENODEV,
	syscall.ENOTCONN,
	syscall.EHOSTDOWN,
	syscall.ETIMEDOUT,
	syscall.EIO,
	syscall.ESTALE,
	syscall.ENOSPC,
}

// destinationUnavailable reports errors that point at the target mount
// rather than the individual file.
func destinationUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	for _, target := range unavailableErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
