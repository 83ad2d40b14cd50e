package media

import (
	"strings"

	"mediasort/internal/config"
)

// Markers carries the non-filename signals used to detect panoramic video.
type Markers struct {
	Device     string
	Projection string
}

// Classifier maps files to kinds using the configured extension sets.
type Classifier struct {
	kinds    map[string]Kind
	suffixes []string
	panorama PanoramaPredicate
}

// NewClassifier builds a classifier from the configured extension sets. A
// nil predicate disables the panoramic upgrade.
func NewClassifier(ext config.Extensions, panorama PanoramaPredicate) *Classifier {
	kinds := make(map[string]Kind)
	add := func(values []string, kind Kind) {
		for _, value := range config.NormalizeExtensions(values) {
			kinds[value] = kind
		}
	}
	add(ext.Image, KindImage)
	add(ext.Video, KindVideo)
	add(ext.Audio, KindAudio)
	add(ext.LeaveInPlace, KindLeaveInPlace)
	return &Classifier{
		kinds:    kinds,
		suffixes: config.NormalizeExtensions(ext.LeaveInPlaceSuffixes),
		panorama: panorama,
	}
}

// NewClassifierFromConfig wires the extension sets and the default panorama
// predicate from cfg.
func NewClassifierFromConfig(cfg *config.Config) *Classifier {
	return NewClassifier(cfg.Extensions, DefaultPanorama(cfg.Panorama))
}

// KindOf returns the base kind for a file path, or KindUnknown when the
// extension is not recognised.
func (c *Classifier) KindOf(path string) Kind {
	lower := strings.ToLower(path)
	for _, suffix := range c.suffixes {
		if strings.HasSuffix(lower, suffix) {
			return KindLeaveInPlace
		}
	}
	return c.kinds[Ext(path)]
}

// Recognized reports whether path belongs to any configured set.
func (c *Classifier) Recognized(path string) bool {
	return c.KindOf(path) != KindUnknown
}

// Classify returns the base classification of path. The boolean is false
// for unrecognised extensions, which never enter the pipeline.
func (c *Classifier) Classify(path string) (File, bool) {
	kind := c.KindOf(path)
	if kind == KindUnknown {
		return File{}, false
	}
	return File{
		Path:         path,
		Ext:          Ext(path),
		Kind:         kind,
		LeaveInPlace: kind == KindLeaveInPlace,
	}, true
}

// Upgrade promotes a video to panoramic video when the predicate matches.
// Any other kind, including an already panoramic video, is returned as is.
func (c *Classifier) Upgrade(file File, markers Markers) File {
	if file.Kind != KindVideo || c.panorama == nil {
		return file
	}
	if c.panorama(file, markers) {
		file.Kind = KindPanoramicVideo
	}
	return file
}
