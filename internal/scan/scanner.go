package scan

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"mediasort/internal/config"
	"mediasort/internal/faults"
	"mediasort/internal/logging"
	"mediasort/internal/media"
)

// StagingPrefix marks hidden working directories that are never scanned.
const StagingPrefix = ".mediasort-"

// Scanner walks a source tree and classifies every recognised file.
type Scanner struct {
	classifier *media.Classifier
	excludes   map[string]struct{}
	logger     *slog.Logger
}

// New returns a scanner that prunes the given directories.
func New(classifier *media.Classifier, excludes []string, logger *slog.Logger) *Scanner {
	s := &Scanner{
		classifier: classifier,
		excludes:   make(map[string]struct{}, len(excludes)),
		logger:     logging.NewComponentLogger(logger, "scan"),
	}
	for _, dir := range excludes {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		s.excludes[canonical(dir)] = struct{}{}
	}
	return s
}

// NewFromConfig prunes the state directory and, when it is nested inside
// the source tree, the output root.
func NewFromConfig(cfg *config.Config, classifier *media.Classifier, logger *slog.Logger) *Scanner {
	excludes := []string{cfg.Paths.StateDir}
	source := canonical(cfg.Paths.SourceDir)
	output := canonical(cfg.OutputRoot())
	if output != source && within(source, output) {
		excludes = append(excludes, output)
	}
	return New(classifier, excludes, logger)
}

// ErrStop ends Each early. Each then returns nil.
var ErrStop = errors.New("scan stopped")

// Each calls fn for every recognised file under root as directories are
// read, depth-first in lexical order. Directory symlinks are followed once
// per real directory, so cycles terminate. Unreadable subdirectories are
// logged and skipped. Every call starts a fresh enumeration.
func (s *Scanner) Each(ctx context.Context, root string, fn func(media.File) error) error {
	info, err := os.Stat(root)
	if err != nil {
		return faults.Wrap(faults.ErrConfigInvalid, "scan", "stat root", root, err)
	}
	if !info.IsDir() {
		return faults.Wrap(faults.ErrConfigInvalid, "scan", "stat root", root+" is not a directory", nil)
	}

	w := walker{scanner: s, visited: make(map[string]struct{}), emit: fn}
	if err := w.walk(ctx, filepath.Clean(root)); err != nil && !errors.Is(err, ErrStop) {
		return err
	}
	return nil
}

// Walk collects the files Each produces. Grouping needs whole directories,
// so the organizer scans this way.
func (s *Scanner) Walk(ctx context.Context, root string) ([]media.File, error) {
	var files []media.File
	err := s.Each(ctx, root, func(file media.File) error {
		files = append(files, file)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

type walker struct {
	scanner *Scanner
	visited map[string]struct{}
	emit    func(media.File) error
}

func (w *walker) walk(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		w.scanner.logger.Warn("directory unresolvable; skipping",
			logging.String(logging.FieldPath, dir),
			logging.Error(err),
		)
		return nil
	}
	if _, seen := w.visited[resolved]; seen {
		w.scanner.logger.Debug("directory already visited", logging.String(logging.FieldPath, dir), logging.String("real_path", resolved))
		return nil
	}
	w.visited[resolved] = struct{}{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.scanner.logger.Warn("directory unreadable; skipping",
			logging.String(logging.FieldPath, dir),
			logging.Error(err),
		)
		return nil
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		mode := entry.Type()

		if mode&fs.ModeSymlink != 0 {
			target, err := os.Stat(path)
			if err != nil {
				w.scanner.logger.Debug("dangling symlink", logging.String(logging.FieldPath, path), logging.Error(err))
				continue
			}
			if !target.IsDir() {
				// Moving a link would leave the content behind.
				continue
			}
			mode = fs.ModeDir
		}

		if mode.IsDir() {
			if w.scanner.pruned(path, entry.Name()) {
				continue
			}
			if err := w.walk(ctx, path); err != nil {
				return err
			}
			continue
		}
		if !mode.IsRegular() {
			continue
		}

		file, ok := w.scanner.classifier.Classify(path)
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			w.scanner.logger.Debug("stat failed", logging.String(logging.FieldPath, path), logging.Error(err))
			continue
		}
		file.Size = info.Size()
		file.ModTime = info.ModTime()
		if err := w.emit(file); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) pruned(path, name string) bool {
	if strings.HasPrefix(name, StagingPrefix) {
		return true
	}
	_, excluded := s.excludes[canonical(path)]
	return excluded
}

func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
