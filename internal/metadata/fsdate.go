package metadata

import (
	"context"
	"time"

	"golang.org/x/sys/unix"

	"mediasort/internal/config"
	"mediasort/internal/faults"
	"mediasort/internal/media"
)

// FilesystemDate supplies the date-only fallback from a file timestamp.
type FilesystemDate struct {
	Policy string
}

func (f FilesystemDate) Name() string { return "filesystem:" + f.Policy }

func (f FilesystemDate) Supports(media.Kind) bool { return f.Policy != config.DateFallbackNone }

func (f FilesystemDate) Read(_ context.Context, path string) (Fields, error) {
	ts, err := fileTimestamp(path, f.Policy)
	if err != nil {
		return Fields{}, faults.Wrap(faults.ErrMetadataUnavailable, "filesystem", f.Policy, path, err)
	}
	return Fields{CaptureTime: ts}, nil
}

func fileTimestamp(path, policy string) (time.Time, error) {
	if policy == config.DateFallbackBirth {
		var stx unix.Statx_t
		if err := unix.Statx(unix.AT_FDCWD, path, 0, unix.STATX_BTIME|unix.STATX_MTIME, &stx); err != nil {
			return time.Time{}, err
		}
		// Filesystems without birth time fall back to mtime.
		if stx.Mask&unix.STATX_BTIME != 0 {
			return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)), nil
		}
		return time.Unix(stx.Mtime.Sec, int64(stx.Mtime.Nsec)), nil
	}

	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return time.Time{}, err
	}
	switch policy {
	case config.DateFallbackCtime:
		return time.Unix(st.Ctim.Unix()), nil
	case config.DateFallbackAtime:
		return time.Unix(st.Atim.Unix()), nil
	default:
		return time.Unix(st.Mtim.Unix()), nil
	}
}
