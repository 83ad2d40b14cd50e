package daemon

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mediasort/internal/config"
	"mediasort/internal/logging"
)

// sourceWatcher turns filesystem activity under the source tree into
// debounced cycle triggers. inotify is not recursive, so every directory is
// added individually and new directories are added as they appear.
type sourceWatcher struct {
	root     string
	ignore   []string
	debounce time.Duration
	logger   *slog.Logger
	notify   func(reason string) bool

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	quit    chan struct{}
	done    chan struct{}
	running bool
}

func newSourceWatcher(cfg *config.Config, logger *slog.Logger, notify func(string) bool) *sourceWatcher {
	if cfg == nil || !cfg.Daemon.Watch {
		return nil
	}
	ignore := []string{cfg.Paths.StateDir, cfg.Paths.LogDir}
	if out := cfg.OutputRoot(); filepath.Clean(out) != filepath.Clean(cfg.Paths.SourceDir) {
		ignore = append(ignore, out)
	}
	return &sourceWatcher{
		root:     cfg.Paths.SourceDir,
		ignore:   ignore,
		debounce: cfg.WatchDebounce(),
		logger:   logging.NewComponentLogger(logger, "source-watch"),
		notify:   notify,
	}
}

// Start adds the source tree and begins forwarding events.
func (w *sourceWatcher) Start(ctx context.Context) error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher
	if err := w.addTree(w.root); err != nil {
		_ = watcher.Close()
		w.watcher = nil
		return err
	}

	w.quit = make(chan struct{})
	w.done = make(chan struct{})
	w.running = true
	go w.loop(ctx, watcher, w.quit, w.done)

	w.logger.Info("source watch started",
		logging.String(logging.FieldEventType, "watch_started"),
		logging.String("root", w.root),
		logging.Duration("debounce", w.debounce),
		logging.Int("directories", len(watcher.WatchList())),
	)
	return nil
}

// Stop closes the watcher and waits for the event loop to exit.
func (w *sourceWatcher) Stop() {
	if w == nil {
		return
	}

	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.quit)
	done := w.done
	watcher := w.watcher
	w.watcher = nil
	w.running = false
	w.mu.Unlock()

	<-done
	_ = watcher.Close()
	w.logger.Info("source watch stopped",
		logging.String(logging.FieldEventType, "watch_stopped"),
	)
}

// Running reports whether the watcher is active.
func (w *sourceWatcher) Running() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *sourceWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher, quit, done chan struct{}) {
	defer close(done)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.mu.Lock()
					if err := w.addTree(event.Name); err != nil {
						w.logger.Debug("watch add failed", logging.String(logging.FieldPath, event.Name), logging.Error(err))
					}
					w.mu.Unlock()
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "source watch error", "watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some changes may only be picked up on the interval"),
			)
		case <-fire:
			fire = nil
			if w.notify != nil && w.notify(TriggerWatch) {
				w.logger.Debug("cycle requested by source activity")
			}
		}
	}
}

// relevant filters out attribute-only changes, hidden names (including the
// organizer's own temporary files) and ignored subtrees.
func (w *sourceWatcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return !w.ignored(event.Name)
}

func (w *sourceWatcher) ignored(path string) bool {
	for _, root := range w.ignore {
		if root == "" {
			continue
		}
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// addTree registers dir and every non-hidden directory below it. The caller
// holds w.mu.
func (w *sourceWatcher) addTree(dir string) error {
	if w.watcher == nil {
		return errors.New("watcher closed")
	}
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if path != dir && (strings.HasPrefix(entry.Name(), ".") || w.ignored(path)) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}
