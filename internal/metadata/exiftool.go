package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"mediasort/internal/faults"
	"mediasort/internal/media"
)

var exiftoolDateTags = []string{"DateTimeOriginal", "CreateDate", "MediaCreateDate"}

// ExiftoolReader invokes `exiftool -s -json` for the tags the embedded
// readers could not supply.
type ExiftoolReader struct {
	binary    string
	timeout   time.Duration
	available bool
}

// NewExiftoolReader resolves binary on PATH once.
func NewExiftoolReader(binary string, timeout time.Duration) *ExiftoolReader {
	_, err := exec.LookPath(binary)
	return &ExiftoolReader{binary: binary, timeout: timeout, available: err == nil}
}

func (r *ExiftoolReader) Name() string { return "exiftool" }

func (r *ExiftoolReader) Supports(kind media.Kind) bool { return kind.IsMedia() }

// Available reports whether the binary was found.
func (r *ExiftoolReader) Available() bool { return r.available }

func (r *ExiftoolReader) Read(ctx context.Context, path string) (Fields, error) {
	if !r.available {
		return Fields{}, faults.Wrap(faults.ErrExternalToolUnavailable, "exiftool", "lookup", r.binary, nil)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	args := []string{"-s", "-json"}
	for _, tag := range append(append([]string{}, exiftoolDateTags...), "Make", "Model", "ProjectionType") {
		args = append(args, "-"+tag)
	}
	args = append(args, "--", path)

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.WaitDelay = time.Second
	output, err := cmd.Output()
	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return Fields{}, faults.Wrap(faults.ErrTimeout, "exiftool", "run", fmt.Sprintf("%s after %s", path, r.timeout), err)
		case errors.Is(err, exec.ErrNotFound):
			return Fields{}, faults.Wrap(faults.ErrExternalToolUnavailable, "exiftool", "run", r.binary, err)
		}
		// exiftool exits non-zero for unreadable files but may still print JSON.
		if len(output) == 0 {
			return Fields{}, faults.Wrap(faults.ErrMetadataUnavailable, "exiftool", "run", path, err)
		}
	}
	return parseExiftoolJSON(output)
}

func parseExiftoolJSON(data []byte) (Fields, error) {
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return Fields{}, faults.Wrap(faults.ErrMetadataUnavailable, "exiftool", "parse", "", err)
	}
	if len(records) == 0 {
		return Fields{}, faults.Wrap(faults.ErrMetadataUnavailable, "exiftool", "parse", "empty result", nil)
	}
	record := records[0]

	var fields Fields
	for _, tag := range exiftoolDateTags {
		if ts, ok := parseMetadataDate(stringValue(record[tag])); ok {
			fields.CaptureTime = ts
			break
		}
	}
	fields.Device = joinDevice(stringValue(record["Make"]), stringValue(record["Model"]))
	fields.Projection = stringValue(record["ProjectionType"])
	return fields, nil
}

func stringValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
