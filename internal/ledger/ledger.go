package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"mediasort/internal/faults"
)

// Signature identifies one file state.
type Signature struct {
	Path    string
	Size    int64
	ModTime int64
}

// SignatureOf builds a signature from a path and its stat values.
func SignatureOf(path string, size int64, modTime time.Time) Signature {
	return Signature{Path: filepath.Clean(path), Size: size, ModTime: modTime.UnixNano()}
}

// Entry is one journal record. Destination is empty when the file stayed in
// place.
type Entry struct {
	Source      string    `json:"source"`
	Destination string    `json:"destination,omitempty"`
	Size        int64     `json:"size"`
	ModTime     int64     `json:"mtime_ns"`
	Outcome     string    `json:"outcome"`
	RunID       string    `json:"run_id,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Ledger is an in-memory index backed by the journal file.
type Ledger struct {
	path string
	lock *flock.Flock

	mu      sync.Mutex
	index   map[Signature]struct{}
	entries int
	skipped int
	torn    bool
}

// Open loads the journal at path, creating its directory when needed. A
// missing journal is an empty ledger.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrMoveIO, "ledger", "ensure dir", path, err)
	}
	l := &Ledger{
		path:  path,
		lock:  flock.New(path + ".lock"),
		index: make(map[Signature]struct{}),
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the journal location.
func (l *Ledger) Path() string { return l.path }

func (l *Ledger) load() error {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return faults.Wrap(faults.ErrMoveIO, "ledger", "read", l.path, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			l.skipped++
			continue
		}
		l.indexEntry(entry)
	}
	if err := scanner.Err(); err != nil {
		return faults.Wrap(faults.ErrMoveIO, "ledger", "scan", l.path, err)
	}
	l.torn = len(data) > 0 && data[len(data)-1] != '\n'
	return nil
}

// Skipped returns the number of unreadable records ignored during load.
func (l *Ledger) Skipped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.skipped
}

func (l *Ledger) indexEntry(entry Entry) {
	l.index[Signature{Path: filepath.Clean(entry.Source), Size: entry.Size, ModTime: entry.ModTime}] = struct{}{}
	if entry.Destination != "" {
		l.index[Signature{Path: filepath.Clean(entry.Destination), Size: entry.Size, ModTime: entry.ModTime}] = struct{}{}
	}
	l.entries++
}

// Contains reports whether sig was recorded.
func (l *Ledger) Contains(sig Signature) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.index[sig]
	return ok
}

// Len returns the number of records loaded or appended.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries
}

// Append writes entries as one durable append. Entries are indexed only
// after the write is synced.
func (l *Ledger) Append(entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	var buf bytes.Buffer
	now := time.Now().UTC()
	for i := range entries {
		if entries[i].RecordedAt.IsZero() {
			entries[i].RecordedAt = now
		}
		line, err := json.Marshal(entries[i])
		if err != nil {
			return faults.Wrap(faults.ErrMoveIO, "ledger", "encode", entries[i].Source, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lock.Lock(); err != nil {
		return faults.Wrap(faults.ErrMoveIO, "ledger", "lock", l.path, err)
	}
	defer func() {
		_ = l.lock.Unlock()
	}()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return faults.Wrap(faults.ErrMoveIO, "ledger", "open", l.path, err)
	}
	defer f.Close()

	if l.torn {
		// Terminate a torn line so the next record starts cleanly.
		if _, err := f.Write([]byte{'\n'}); err != nil {
			return faults.Wrap(faults.ErrMoveIO, "ledger", "append", l.path, err)
		}
		l.torn = false
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return faults.Wrap(faults.ErrMoveIO, "ledger", "append", l.path, err)
	}
	if err := f.Sync(); err != nil {
		return faults.Wrap(faults.ErrMoveIO, "ledger", "sync", l.path, err)
	}
	for _, entry := range entries {
		l.indexEntry(entry)
	}
	return nil
}

// Entries re-reads the journal and returns every intact record in order.
func (l *Ledger) Entries() ([]Entry, error) {
	return ReadEntries(l.path)
}

// ReadEntries returns the intact records of the journal at path.
func ReadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, faults.Wrap(faults.ErrMoveIO, "ledger", "open", path, err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, faults.Wrap(faults.ErrMoveIO, "ledger", "scan", path, err)
	}
	return entries, nil
}

// Reset atomically replaces the journal at path with an empty one.
func Reset(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return faults.Wrap(faults.ErrMoveIO, "ledger", "ensure dir", path, err)
	}
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return faults.Wrap(faults.ErrMoveIO, "ledger", "lock", path, err)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".ledger-*.tmp")
	if err != nil {
		return faults.Wrap(faults.ErrMoveIO, "ledger", "reset", path, err)
	}
	tmpName := tmp.Name()
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return faults.Wrap(faults.ErrMoveIO, "ledger", "reset", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return faults.Wrap(faults.ErrMoveIO, "ledger", "reset", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return faults.Wrap(faults.ErrMoveIO, "ledger", "reset", path, err)
	}
	return nil
}

// Reset clears both the journal and the in-memory index.
func (l *Ledger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := Reset(l.path); err != nil {
		return err
	}
	l.index = make(map[Signature]struct{})
	l.entries = 0
	l.skipped = 0
	l.torn = false
	return nil
}
