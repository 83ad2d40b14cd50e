package media

import (
	"strings"
	"unicode"

	"mediasort/internal/config"
)

// PanoramaPredicate decides whether a video is spherical. It must be a pure
// function of the file name, extension and markers.
type PanoramaPredicate func(file File, markers Markers) bool

// PanoramaRule matches panoramic video by extension, filename token, device
// token or container projection.
type PanoramaRule struct {
	Extensions      []string
	FilenameMarkers []string
	DeviceMarkers   []string
	Projections     []string
}

// DefaultPanorama returns the rule-based predicate for the configured markers.
func DefaultPanorama(cfg config.Panorama) PanoramaPredicate {
	rule := PanoramaRule{
		Extensions:      config.NormalizeExtensions(cfg.Extensions),
		FilenameMarkers: cfg.FilenameMarkers,
		DeviceMarkers:   cfg.DeviceMarkers,
		Projections:     cfg.Projections,
	}
	return rule.Match
}

// Match implements PanoramaPredicate.
func (r PanoramaRule) Match(file File, markers Markers) bool {
	ext := file.Ext
	if ext == "" {
		ext = Ext(file.Path)
	}
	for _, candidate := range r.Extensions {
		if ext == candidate {
			return true
		}
	}
	if projection := strings.ToLower(strings.TrimSpace(markers.Projection)); projection != "" {
		for _, candidate := range r.Projections {
			if projection == candidate {
				return true
			}
		}
	}
	if matchTokens(tokenize(Stem(file.Path)), r.FilenameMarkers) {
		return true
	}
	return matchTokens(tokenize(markers.Device), r.DeviceMarkers)
}

// AnyPanorama combines predicates; the first match wins.
func AnyPanorama(predicates ...PanoramaPredicate) PanoramaPredicate {
	return func(file File, markers Markers) bool {
		for _, predicate := range predicates {
			if predicate != nil && predicate(file, markers) {
				return true
			}
		}
		return false
	}
}

func tokenize(value string) []string {
	return strings.FieldsFunc(strings.ToLower(value), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchTokens treats all-digit markers as whole tokens so counters such as
// IMG_3601 do not read as "360"; other markers match inside a token.
func matchTokens(tokens, markers []string) bool {
	for _, marker := range markers {
		if marker == "" {
			continue
		}
		numeric := strings.IndexFunc(marker, func(r rune) bool { return !unicode.IsDigit(r) }) < 0
		for _, token := range tokens {
			if numeric && token == marker {
				return true
			}
			if !numeric && strings.Contains(token, marker) {
				return true
			}
		}
	}
	return false
}
