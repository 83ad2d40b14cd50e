package pathbuild

import (
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"mediasort/internal/config"
	"mediasort/internal/media"
	"mediasort/internal/textutil"
)

// Builder maps resolved files to their destination directory.
type Builder struct {
	root          string
	labels        config.Labels
	deviceFolders bool
}

// New returns a builder rooted at root.
func New(root string, labels config.Labels, deviceFolders bool) *Builder {
	return &Builder{root: filepath.Clean(root), labels: labels, deviceFolders: deviceFolders}
}

// NewFromConfig roots the builder at cfg.OutputRoot().
func NewFromConfig(cfg *config.Config) *Builder {
	return New(cfg.OutputRoot(), cfg.Labels, cfg.Organize.DeviceFolders)
}

// Root returns the output root.
func (b *Builder) Root() string { return b.root }

// DateBucket returns the date folder name for file.
func (b *Builder) DateBucket(file media.File) string {
	if file.Undated() {
		return textutil.SanitizeSegment(b.labels.Undated, "undated")
	}
	return textutil.SanitizeSegment(file.CaptureTime.Local().Format(b.labels.DateLayout), b.labels.Undated)
}

// KindFolder returns the label for kind.
func (b *Builder) KindFolder(kind media.Kind) string {
	var label string
	switch kind {
	case media.KindImage:
		label = b.labels.Image
	case media.KindVideo:
		label = b.labels.Video
	case media.KindPanoramicVideo:
		label = b.labels.Panoramic
	case media.KindAudio:
		label = b.labels.Audio
	default:
		label = b.labels.Other
	}
	return textutil.SanitizeSegment(label, kind.String())
}

// DeviceFolder returns the device segment, or "" when the kind carries none.
func (b *Builder) DeviceFolder(file media.File) string {
	if !b.deviceFolders || !file.Kind.HasDeviceFolder() {
		return ""
	}
	unknown := textutil.SanitizeSegment(b.labels.UnknownDevice, "unknown")
	return textutil.SanitizeSegment(file.Device, unknown)
}

// Dir returns the destination directory for file.
func (b *Builder) Dir(file media.File) string {
	parts := []string{b.root, b.DateBucket(file), b.KindFolder(file.Kind)}
	if device := b.DeviceFolder(file); device != "" {
		parts = append(parts, device)
	}
	return filepath.Join(parts...)
}

// Destination joins Dir(file) with a sanitised name.
func (b *Builder) Destination(file media.File, name string) string {
	return filepath.Join(b.Dir(file), SanitizeName(name))
}

// OtherDir is where unrecognised files are collected under root.
func (b *Builder) OtherDir(root string) string {
	return filepath.Join(root, textutil.SanitizeSegment(b.labels.Other, "other"))
}

// SanitizeName cleans a file name while keeping its extension when the stem
// has to be shortened.
func SanitizeName(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if utf8.RuneCountInString(ext) >= textutil.MaxSegmentRunes/2 {
		return textutil.SanitizeSegment(name, "file")
	}
	ext = textutil.SanitizeSegment(ext, "")
	if ext != "" {
		ext = "." + strings.TrimLeft(ext, ".")
	}
	stem = textutil.SanitizeSegment(stem, "file")
	if limit := textutil.MaxSegmentRunes - utf8.RuneCountInString(ext); utf8.RuneCountInString(stem) > limit {
		stem = strings.TrimRight(string([]rune(stem)[:limit]), " .")
	}
	return stem + ext
}

// WithSuffix inserts "_n" between the stem and extension of name.
func WithSuffix(name string, n int) string {
	if n <= 0 {
		return name
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + strconv.Itoa(n) + ext
}

// AlignedSuffix inserts "_n" right after stem when name starts with it, so
// "IMG_1.JPG.xmp" follows "IMG_1.JPG" to "IMG_1_2.JPG.xmp". Other names fall
// back to WithSuffix.
func AlignedSuffix(name, stem string, n int) string {
	if n <= 0 {
		return name
	}
	if stem != "" && len(name) > len(stem) && strings.EqualFold(name[:len(stem)], stem) {
		return name[:len(stem)] + "_" + strconv.Itoa(n) + name[len(stem):]
	}
	return WithSuffix(name, n)
}
