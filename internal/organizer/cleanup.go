package organizer

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"mediasort/internal/logging"
)

// pruneEmptyDirs removes directories left empty by moved sources, walking
// upward until root. root itself is never removed.
func (o *Organizer) pruneEmptyDirs(root string, dirs map[string]struct{}) int {
	root = filepath.Clean(root)
	ordered := make([]string, 0, len(dirs))
	for dir := range dirs {
		ordered = append(ordered, dir)
	}
	// Deepest first so parents are examined after their children.
	sort.Slice(ordered, func(i, j int) bool {
		di, dj := strings.Count(ordered[i], string(filepath.Separator)), strings.Count(ordered[j], string(filepath.Separator))
		if di != dj {
			return di > dj
		}
		return ordered[i] < ordered[j]
	})

	removed := 0
	for _, dir := range ordered {
		for current := filepath.Clean(dir); current != root && within(root, current); current = filepath.Dir(current) {
			empty, err := afero.IsEmpty(o.fs, current)
			if err != nil || !empty {
				break
			}
			if err := o.fs.Remove(current); err != nil {
				o.logger.Debug("remove empty directory failed", logging.String(logging.FieldPath, current), logging.Error(err))
				break
			}
			removed++
			o.logger.Debug("removed empty directory", logging.String(logging.FieldPath, current))
		}
	}
	return removed
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
