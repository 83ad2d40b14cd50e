package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v2"

	"mediasort/internal/faults"
	"mediasort/internal/media"
	"mediasort/internal/textutil"
)

// DJIDevice is the folder name assigned to DJI footage.
const DJIDevice = "大疆"

// DevicePattern identifies a device from the file name when metadata is
// missing, or unconditionally when Override is set.
type DevicePattern struct {
	Name             string   `json:"-" yaml:"-"`
	FilenamePrefixes []string `json:"filename_prefixes" yaml:"filename_prefixes"`
	FilenameContains []string `json:"filename_contains" yaml:"filename_contains"`
	Extensions       []string `json:"extensions" yaml:"extensions"`
	Override         bool     `json:"override" yaml:"override"`
}

// Match reports whether file name and extension satisfy the pattern. A
// pattern with only extensions matches on extension alone.
func (p DevicePattern) Match(path string) bool {
	ext := media.Ext(path)
	if len(p.Extensions) > 0 && !containsFold(p.Extensions, ext) {
		return false
	}
	stem := strings.ToUpper(media.Stem(path))
	if len(p.FilenamePrefixes) == 0 && len(p.FilenameContains) == 0 {
		return len(p.Extensions) > 0
	}
	for _, prefix := range p.FilenamePrefixes {
		if prefix != "" && strings.HasPrefix(stem, strings.ToUpper(prefix)) {
			return true
		}
	}
	for _, sub := range p.FilenameContains {
		if sub != "" && strings.Contains(stem, strings.ToUpper(sub)) {
			return true
		}
	}
	return false
}

// DeviceMap canonicalises device strings. It is immutable after load.
type DeviceMap struct {
	aliases  map[string]string
	patterns []DevicePattern
}

type deviceDocument struct {
	Aliases  map[string]string        `json:"aliases" yaml:"aliases"`
	Patterns map[string]DevicePattern `json:"device_patterns" yaml:"device_patterns"`
}

// DefaultDeviceMap returns the built-in rules: DJI in the file name, or a
// .lrf proxy, means DJI footage regardless of embedded metadata.
func DefaultDeviceMap() *DeviceMap {
	return &DeviceMap{
		aliases:  map[string]string{},
		patterns: defaultPatterns(),
	}
}

func defaultPatterns() []DevicePattern {
	return []DevicePattern{
		{Name: DJIDevice, FilenameContains: []string{"DJI", DJIDevice}, Override: true},
		{Name: DJIDevice, Extensions: []string{".lrf"}, Override: true},
	}
}

// LoadDeviceMap reads a JSON or YAML document chosen by extension. An empty
// path yields the defaults. Patterns named in the document replace the
// built-in rules of the same name.
func LoadDeviceMap(path string) (*DeviceMap, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultDeviceMap(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.Wrap(faults.ErrConfigInvalid, "devices", "read", path, err)
	}
	var doc deviceDocument
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, faults.Wrap(faults.ErrConfigInvalid, "devices", "parse", path, err)
	}
	return newDeviceMap(doc), nil
}

func newDeviceMap(doc deviceDocument) *DeviceMap {
	m := &DeviceMap{aliases: make(map[string]string, len(doc.Aliases))}
	for raw, canonical := range doc.Aliases {
		key := aliasKey(raw)
		if key == "" || strings.TrimSpace(canonical) == "" {
			continue
		}
		m.aliases[key] = normalizeDevice(canonical)
	}

	names := make([]string, 0, len(doc.Patterns))
	for name := range doc.Patterns {
		if strings.TrimSpace(name) != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, builtin := range defaultPatterns() {
		if _, replaced := doc.Patterns[builtin.Name]; !replaced {
			m.patterns = append(m.patterns, builtin)
		}
	}
	for _, name := range names {
		pattern := doc.Patterns[name]
		pattern.Name = normalizeDevice(name)
		m.patterns = append(m.patterns, pattern)
	}
	return m
}

// Canonical normalises raw and applies the alias table.
func (m *DeviceMap) Canonical(raw string) string {
	device := normalizeDevice(raw)
	if device == "" || m == nil {
		return device
	}
	if alias, ok := m.aliases[aliasKey(device)]; ok {
		return alias
	}
	return device
}

// FromFilename returns the first pattern matching path.
func (m *DeviceMap) FromFilename(path string) (string, bool, bool) {
	if m == nil {
		return "", false, false
	}
	for _, pattern := range m.patterns {
		if pattern.Match(path) {
			return pattern.Name, pattern.Override, true
		}
	}
	return "", false, false
}

// Patterns returns a copy of the configured filename rules.
func (m *DeviceMap) Patterns() []DevicePattern {
	if m == nil {
		return nil
	}
	return append([]DevicePattern(nil), m.patterns...)
}

func (m *DeviceMap) String() string {
	if m == nil {
		return "devices(nil)"
	}
	return fmt.Sprintf("devices(aliases=%d patterns=%d)", len(m.aliases), len(m.patterns))
}

func normalizeDevice(raw string) string {
	return textutil.CollapseSpaces(norm.NFC.String(strings.Trim(raw, "\x00")))
}

func aliasKey(raw string) string {
	return strings.ToLower(normalizeDevice(raw))
}

func containsFold(values []string, target string) bool {
	for _, value := range values {
		if strings.EqualFold(value, target) {
			return true
		}
	}
	return false
}
