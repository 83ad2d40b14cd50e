package media

import (
	"path/filepath"
	"strings"
	"time"
)

// Kind is the resolved media category of a file.
type Kind int

const (
	KindUnknown Kind = iota
	KindImage
	KindVideo
	KindPanoramicVideo
	KindAudio
	KindLeaveInPlace
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindPanoramicVideo:
		return "panoramic_video"
	case KindAudio:
		return "audio"
	case KindLeaveInPlace:
		return "leave_in_place"
	default:
		return "unknown"
	}
}

// IsMedia reports whether files of this kind can be primaries of a related set.
func (k Kind) IsMedia() bool {
	switch k {
	case KindImage, KindVideo, KindPanoramicVideo, KindAudio:
		return true
	default:
		return false
	}
}

// IsVideo reports whether k is a plain or panoramic video.
func (k Kind) IsVideo() bool {
	return k == KindVideo || k == KindPanoramicVideo
}

// HasDeviceFolder reports whether the destination tree carries a device level
// for this kind. Audio is grouped by date only.
func (k Kind) HasDeviceFolder() bool {
	switch k {
	case KindImage, KindVideo, KindPanoramicVideo:
		return true
	default:
		return false
	}
}

// File is one scanned file plus everything resolved about it during a pass.
// A zero CaptureTime means undated and an empty Device means unknown.
type File struct {
	Path         string
	Ext          string
	Kind         Kind
	LeaveInPlace bool
	Size         int64
	ModTime      time.Time

	CaptureTime  time.Time
	Device       string
	DateSource   string
	DeviceSource string

	Sidecars []string
}

// Name returns the base file name.
func (f File) Name() string {
	return filepath.Base(f.Path)
}

// Dir returns the containing directory.
func (f File) Dir() string {
	return filepath.Dir(f.Path)
}

// Stem returns the file name without its final extension.
func (f File) Stem() string {
	return Stem(f.Path)
}

// Undated reports whether no capture date could be resolved.
func (f File) Undated() bool {
	return f.CaptureTime.IsZero()
}

// Stem returns the base name of path without its final extension.
func Stem(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Ext returns the lowercase final extension of path including the dot.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
