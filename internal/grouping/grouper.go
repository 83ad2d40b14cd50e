package grouping

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/cases"

	"mediasort/internal/config"
	"mediasort/internal/logging"
	"mediasort/internal/media"
)

// Set is one primary file and the sidecars that move with it.
type Set struct {
	Primary media.File
}

// Members returns the primary path followed by its sidecars.
func (s Set) Members() []string {
	members := make([]string, 0, 1+len(s.Primary.Sidecars))
	members = append(members, s.Primary.Path)
	return append(members, s.Primary.Sidecars...)
}

// LeaveInPlace reports whether the set must never be moved.
func (s Set) LeaveInPlace() bool {
	return s.Primary.LeaveInPlace
}

// Options selects the matching rules.
type Options struct {
	SameStem bool
	Prefix   bool
}

// Grouper builds sets from scanner output.
type Grouper struct {
	fs         afero.Fs
	classifier *media.Classifier
	opts       Options
	fold       cases.Caser
	logger     *slog.Logger
}

// New returns a grouper reading directory listings from fs.
func New(fs afero.Fs, classifier *media.Classifier, opts Options, logger *slog.Logger) *Grouper {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Grouper{
		fs:         fs,
		classifier: classifier,
		opts:       opts,
		fold:       cases.Fold(),
		logger:     logging.NewComponentLogger(logger, "grouping"),
	}
}

// NewFromConfig applies the [organize] related_* switches.
func NewFromConfig(cfg *config.Config, fs afero.Fs, classifier *media.Classifier, logger *slog.Logger) *Grouper {
	return New(fs, classifier, Options{
		SameStem: cfg.Organize.RelatedSameStem,
		Prefix:   cfg.Organize.RelatedPrefix,
	}, logger)
}

type candidate struct {
	path   string
	stem   string
	folded string
	ext    string
	media  bool
}

// Group returns sets in scanner order. The first media file of a folded
// (directory, stem) pair becomes the primary. It claims same-stem media
// files of other extensions (a live photo's .MOV next to its .JPG) and
// non-media sidecars in its directory, each claimed by the first primary
// that matches it. Leave-in-place files are never claimed.
func (g *Grouper) Group(files []media.File) []Set {
	claimed := make(map[string]struct{})
	listings := make(map[string][]candidate)
	sets := make([]Set, 0, len(files))
	scanned := make(map[string]struct{}, len(files))
	for _, file := range files {
		scanned[file.Path] = struct{}{}
	}

	for _, file := range files {
		if _, ok := claimed[file.Path]; ok {
			continue
		}
		file.Sidecars = nil
		if file.LeaveInPlace || !file.Kind.IsMedia() || !g.opts.SameStem {
			sets = append(sets, Set{Primary: file})
			continue
		}

		dir := file.Dir()
		listing, ok := listings[dir]
		if !ok {
			listing = g.list(dir)
			listings[dir] = listing
		}

		stem := g.fold.String(file.Stem())
		name := g.fold.String(file.Name())
		ext := g.fold.String(file.Ext)
		for _, c := range listing {
			if c.path == file.Path {
				continue
			}
			if _, taken := claimed[c.path]; taken {
				continue
			}
			if c.media {
				// Only files this pass scanned, by exact stem, never the
				// primary's own extension.
				if _, ok := scanned[c.path]; !ok || c.folded != stem || c.ext == ext {
					continue
				}
			} else if c.folded != stem && c.folded != name && !(g.opts.Prefix && prefixRelated(stem, c.folded)) {
				continue
			}
			file.Sidecars = append(file.Sidecars, c.path)
			claimed[c.path] = struct{}{}
		}
		claimed[file.Path] = struct{}{}
		sets = append(sets, Set{Primary: file})
	}
	return sets
}

// list returns the sidecar candidates of dir: regular, non-hidden files
// that are not leave-in-place, sorted by name.
func (g *Grouper) list(dir string) []candidate {
	entries, err := afero.ReadDir(g.fs, dir)
	if err != nil {
		g.logger.Debug("sidecar listing failed", logging.String(logging.FieldPath, dir), logging.Error(err))
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	out := make([]candidate, 0, len(entries))
	for _, entry := range entries {
		if !isRegular(entry) || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		kind := g.classifier.KindOf(path)
		if kind == media.KindLeaveInPlace {
			continue
		}
		stem := media.Stem(path)
		out = append(out, candidate{
			path:   path,
			stem:   stem,
			folded: g.fold.String(stem),
			ext:    g.fold.String(media.Ext(path)),
			media:  kind.IsMedia(),
		})
	}
	return out
}

func isRegular(info os.FileInfo) bool {
	return info.Mode().IsRegular()
}

func prefixRelated(stem, other string) bool {
	for _, sep := range []string{"_", " "} {
		if strings.HasPrefix(other, stem+sep) || strings.HasPrefix(stem, other+sep) {
			return true
		}
	}
	return false
}
