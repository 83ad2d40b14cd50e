package ledger_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediasort/internal/ledger"
)

func TestAppendAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "ledger.jsonl")
	mtime := time.Date(2024, 1, 15, 10, 0, 0, 123, time.UTC)

	l, err := ledger.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())

	entry := ledger.Entry{
		Source:      "/src/IMG_1.JPG",
		Destination: "/out/2024-01-15/图片/Canon/IMG_1.JPG",
		Size:        42,
		ModTime:     mtime.UnixNano(),
		Outcome:     "executed",
		RunID:       "run-1",
	}
	require.NoError(t, l.Append(entry))
	assert.True(t, l.Contains(ledger.SignatureOf("/src/IMG_1.JPG", 42, mtime)))
	assert.True(t, l.Contains(ledger.SignatureOf("/out/2024-01-15/图片/Canon/IMG_1.JPG", 42, mtime)))
	assert.False(t, l.Contains(ledger.SignatureOf("/src/IMG_1.JPG", 43, mtime)))

	reopened, err := ledger.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Len())
	assert.True(t, reopened.Contains(ledger.SignatureOf("/src/IMG_1.JPG", 42, mtime)))

	entries, err := reopened.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run-1", entries[0].RunID)
	assert.False(t, entries[0].RecordedAt.IsZero())
}

func TestDuplicatesAndTornTrailingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	line := `{"source":"/a.jpg","size":1,"mtime_ns":5,"outcome":"executed","recorded_at":"2024-01-01T00:00:00Z"}`
	content := line + "\n" + line + "\n" + `{"source":"/b.jpg","si`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	l, err := ledger.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 1, l.Skipped())
	assert.True(t, l.Contains(ledger.Signature{Path: "/a.jpg", Size: 1, ModTime: 5}))

	require.NoError(t, l.Append(ledger.Entry{Source: "/c.jpg", Size: 2, ModTime: 6, Outcome: "executed"}))

	reopened, err := ledger.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 3, reopened.Len())
	assert.True(t, reopened.Contains(ledger.Signature{Path: "/c.jpg", Size: 2, ModTime: 6}))
}

func TestReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l, err := ledger.Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(ledger.Entry{Source: "/a.jpg", Size: 1, ModTime: 1, Outcome: "executed"}))

	require.NoError(t, l.Reset())
	assert.Equal(t, 0, l.Len())
	assert.False(t, l.Contains(ledger.Signature{Path: "/a.jpg", Size: 1, ModTime: 1}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestResetMissingJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.jsonl")
	require.NoError(t, ledger.Reset(path))

	entries, err := ledger.ReadEntries(path)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
