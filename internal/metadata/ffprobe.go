package metadata

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"mediasort/internal/faults"
	"mediasort/internal/media"
	"mediasort/internal/media/ffprobe"
)

// FFprobeReader reads container tags through the ffprobe binary.
type FFprobeReader struct {
	binary    string
	timeout   time.Duration
	available bool
}

// NewFFprobeReader resolves binary on PATH once. An unavailable binary turns
// every Read into ErrExternalToolUnavailable.
func NewFFprobeReader(binary string, timeout time.Duration) *FFprobeReader {
	_, err := exec.LookPath(binary)
	return &FFprobeReader{binary: binary, timeout: timeout, available: err == nil}
}

func (r *FFprobeReader) Name() string { return "ffprobe" }

func (r *FFprobeReader) Supports(kind media.Kind) bool {
	return kind.IsVideo() || kind == media.KindAudio
}

// Available reports whether the binary was found.
func (r *FFprobeReader) Available() bool { return r.available }

func (r *FFprobeReader) Read(ctx context.Context, path string) (Fields, error) {
	if !r.available {
		return Fields{}, faults.Wrap(faults.ErrExternalToolUnavailable, "ffprobe", "lookup", r.binary, nil)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	result, err := ffprobe.Inspect(ctx, r.binary, path)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Fields{}, faults.Wrap(faults.ErrTimeout, "ffprobe", "inspect", path, err)
		}
		return Fields{}, faults.Wrap(faults.ErrMetadataUnavailable, "ffprobe", "inspect", path, err)
	}
	var fields Fields
	if ts, ok := result.CreationTime(); ok {
		fields.CaptureTime = ts.Local()
	}
	fields.Device = result.Device()
	fields.Projection = result.Projection()
	return fields, nil
}
