package metadata

import (
	"context"
	"strings"
	"time"

	"mediasort/internal/media"
)

// Fields is the optional result of one reader. Zero values mean "not found".
type Fields struct {
	CaptureTime time.Time
	Device      string
	Projection  string
}

// Empty reports whether the reader found nothing.
func (f Fields) Empty() bool {
	return f.CaptureTime.IsZero() && strings.TrimSpace(f.Device) == "" && strings.TrimSpace(f.Projection) == ""
}

// Reader extracts metadata fields from one source. Errors are never fatal:
// the resolver logs them and moves on to the next reader.
type Reader interface {
	Name() string
	Supports(kind media.Kind) bool
	Read(ctx context.Context, path string) (Fields, error)
}

// Metadata is the merged result for one file.
type Metadata struct {
	CaptureTime  time.Time
	Device       string
	Projection   string
	DateSource   string
	DeviceSource string
}

// Markers returns the panorama signals carried by m.
func (m Metadata) Markers() media.Markers {
	return media.Markers{Device: m.Device, Projection: m.Projection}
}

// Apply copies the resolved values onto file.
func (m Metadata) Apply(file media.File) media.File {
	file.CaptureTime = m.CaptureTime
	file.Device = m.Device
	file.DateSource = m.DateSource
	file.DeviceSource = m.DeviceSource
	return file
}

const metadataDateLayout = "2006:01:02 15:04:05"

// parseMetadataDate parses EXIF style "YYYY:MM:DD HH:MM:SS" values, ignoring
// sub-second and zone suffixes. Placeholder dates such as 0000:00:00 fail.
func parseMetadataDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(strings.Trim(value, "\x00"))
	if len(value) < len(metadataDateLayout) {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(metadataDateLayout, value[:len(metadataDateLayout)], time.Local)
	if err != nil || ts.Year() < 1971 {
		return time.Time{}, false
	}
	return ts, true
}

// joinDevice composes "Make Model" without repeating the make when the model
// already starts with it.
func joinDevice(maker, model string) string {
	maker = strings.TrimSpace(strings.Trim(maker, "\x00"))
	model = strings.TrimSpace(strings.Trim(model, "\x00"))
	switch {
	case maker == "":
		return model
	case model == "":
		return maker
	case strings.HasPrefix(strings.ToLower(model), strings.ToLower(maker)):
		return model
	default:
		return maker + " " + model
	}
}
