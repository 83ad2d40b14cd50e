package logs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Last returns up to n trailing complete lines of path and the offset just
// past them. A missing file yields no lines and offset 0. n <= 0 returns no
// lines and the current end of file.
func Last(path string, n int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}

	lines, end, err := readLines(file, 0)
	if err != nil {
		return nil, 0, err
	}
	if n <= 0 {
		return nil, end, nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, end, nil
}

// Follow emits every complete line appended to path after offset until ctx
// is cancelled. Truncation or replacement of the file restarts reading from
// the beginning. Follow returns nil on cancellation.
func Follow(ctx context.Context, path string, offset int64, emit func(string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create log watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so rotation and late creation are both seen.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch log dir %q: %w", dir, err)
	}

	drain := func() error {
		next, err := emitFrom(path, offset, emit)
		if err != nil {
			return err
		}
		offset = next
		return nil
	}
	if err := drain(); err != nil {
		return err
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch log file: %w", err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				offset = 0
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				if err := drain(); err != nil {
					return err
				}
			}
		}
	}
}

func emitFrom(path string, offset int64, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	lines, next, err := readLines(file, offset)
	if err != nil {
		return offset, err
	}
	for _, line := range lines {
		emit(line)
	}
	return next, nil
}

// readLines returns the complete lines from offset onward. A trailing
// fragment without a newline is left for the next read.
func readLines(file *os.File, offset int64) ([]string, int64, error) {
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}
	reader := bufio.NewReader(file)
	var lines []string
	for {
		chunk, err := reader.ReadBytes('\n')
		if len(chunk) > 0 && chunk[len(chunk)-1] == '\n' {
			offset += int64(len(chunk))
			lines = append(lines, string(bytes.TrimRight(chunk, "\r\n")))
		}
		if errors.Is(err, io.EOF) {
			return lines, offset, nil
		}
		if err != nil {
			return lines, offset, fmt.Errorf("read log file: %w", err)
		}
	}
}
