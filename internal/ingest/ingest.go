package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"mediasort/internal/config"
	"mediasort/internal/faults"
	"mediasort/internal/fileutil"
	"mediasort/internal/ledger"
	"mediasort/internal/logging"
	"mediasort/internal/media"
	"mediasort/internal/organizer"
	"mediasort/internal/pathbuild"
	"mediasort/internal/textutil"
)

// OutcomeIngested marks ledger records written for copied card files.
const OutcomeIngested = "ingested"

// ProgressFunc observes each copied file.
type ProgressFunc func(done, total int, path string)

// Option customises an Ingester.
type Option func(*Ingester)

// WithFs replaces the filesystem.
func WithFs(fs afero.Fs) Option {
	return func(i *Ingester) { i.fs = fs }
}

// WithLedger skips card files already copied and records new copies.
func WithLedger(l *ledger.Ledger) Option {
	return func(i *Ingester) { i.ledger = l }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingester) { i.logger = logger }
}

// WithProgress registers a per-file callback.
func WithProgress(fn ProgressFunc) Option {
	return func(i *Ingester) { i.progress = fn }
}

// WithOrganizerOptions forwards options to the organize pass.
func WithOrganizerOptions(opts ...organizer.Option) Option {
	return func(i *Ingester) { i.organizeOpts = append(i.organizeOpts, opts...) }
}

// WithoutOrganize stops Ingest after the copy. The daemon uses it to run a
// single organize pass per cycle across all mounts.
func WithoutOrganize() Option {
	return func(i *Ingester) { i.skipOrganize = true }
}

// Ingester copies one mount at a time.
type Ingester struct {
	cfg          *config.Config
	fs           afero.Fs
	ledger       *ledger.Ledger
	logger       *slog.Logger
	progress     ProgressFunc
	organizeOpts []organizer.Option
	skipOrganize bool
	classifier   *media.Classifier
	builder      *pathbuild.Builder
}

// Result summarises one ingest.
type Result struct {
	RunID    string           `json:"run_id"`
	Mount    string           `json:"mount"`
	Staging  string           `json:"staging"`
	Seen     int              `json:"seen"`
	Copied   int              `json:"copied"`
	Other    int              `json:"other"`
	Ledgered int              `json:"ledgered"`
	Skipped  int              `json:"skipped"`
	Failed   int              `json:"failed"`
	Bytes    int64            `json:"bytes"`
	Failures []string         `json:"failures,omitempty"`
	Organize *organizer.Report `json:"organize,omitempty"`
}

// New validates cfg and returns an Ingester.
func New(cfg *config.Config, opts ...Option) (*Ingester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateSource(); err != nil {
		return nil, err
	}
	i := &Ingester{cfg: cfg}
	for _, opt := range opts {
		opt(i)
	}
	if i.fs == nil {
		i.fs = afero.NewOsFs()
	}
	i.logger = logging.NewComponentLogger(i.logger, "ingest")
	i.classifier = media.NewClassifierFromConfig(cfg)
	i.builder = pathbuild.NewFromConfig(cfg)
	return i, nil
}

type pending struct {
	src  string
	rel  string
	info os.FileInfo
}

// Ingest copies every file under mount, then runs an organize pass unless
// dryRun is set. Per-file failures are counted and never abort the copy.
func (i *Ingester) Ingest(ctx context.Context, mount string, dryRun bool) (*Result, error) {
	mount = filepath.Clean(mount)
	if ok, err := afero.DirExists(i.fs, mount); err != nil || !ok {
		return nil, faults.Wrap(faults.ErrConfigInvalid, "ingest", "open mount", mount, err)
	}
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, i.logger)

	volume := textutil.SanitizeSegment(filepath.Base(mount), "volume")
	result := &Result{
		RunID:   runID,
		Mount:   mount,
		Staging: filepath.Join(i.cfg.IngestStagingDir(), volume),
	}

	files, err := i.collect(mount)
	if err != nil {
		return result, err
	}
	result.Seen = len(files)
	logger.Info("ingest starting",
		logging.String("mount", mount),
		logging.String("staging", result.Staging),
		logging.Int("files", len(files)),
		logging.Bool("dry_run", dryRun),
	)

	otherRoot := i.builder.OtherDir(i.cfg.OutputRoot())
	for n, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if i.progress != nil {
			i.progress(n+1, len(files), file.src)
		}
		if i.ledger != nil && i.ledger.Contains(ledger.SignatureOf(file.src, file.info.Size(), file.info.ModTime())) {
			result.Ledgered++
			continue
		}

		targetRoot := result.Staging
		other := !i.classifier.KindOf(file.src).IsMedia() && !i.hasMediaSibling(file)
		if other {
			targetRoot = filepath.Join(otherRoot, volume)
		}
		target := filepath.Join(targetRoot, file.rel)

		if dryRun {
			if other {
				result.Other++
			} else {
				result.Copied++
			}
			result.Bytes += file.info.Size()
			continue
		}

		copied, err := i.copy(file, target)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, file.src)
			logging.WarnWithContext(logger, "ingest copy failed", "ingest_copy_failed",
				logging.String(logging.FieldPath, file.src),
				logging.String("target", target),
				logging.String(logging.FieldImpact, "file stays on the card and is retried next time"),
				logging.Error(err),
			)
			continue
		}
		switch {
		case !copied:
			result.Skipped++
		case other:
			result.Other++
		default:
			result.Copied++
		}
		result.Bytes += file.info.Size()
		i.record(logger, file, runID)
	}

	logger.Info("ingest copy finished",
		logging.Int("copied", result.Copied),
		logging.Int("other", result.Other),
		logging.Int("ledgered", result.Ledgered),
		logging.Int("skipped", result.Skipped),
		logging.Int("failed", result.Failed),
		logging.Int64("bytes", result.Bytes),
	)
	if dryRun || i.skipOrganize || result.Copied == 0 {
		return result, nil
	}

	opts := append([]organizer.Option{
		organizer.WithFs(i.fs),
		organizer.WithLogger(i.logger),
	}, i.organizeOpts...)
	if i.ledger != nil {
		opts = append(opts, organizer.WithLedger(i.ledger))
	}
	report, err := organizer.Run(ctx, i.cfg, false, opts...)
	result.Organize = report
	return result, err
}

// collect lists regular files under mount in lexical order, skipping hidden
// entries such as .Trashes and .Spotlight-V100.
func (i *Ingester) collect(mount string) ([]pending, error) {
	var files []pending
	err := afero.Walk(i.fs, mount, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			i.logger.Debug("walk error", logging.String(logging.FieldPath, path), logging.Error(err))
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path != mount && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, relErr := filepath.Rel(mount, path)
		if relErr != nil {
			return nil
		}
		files = append(files, pending{src: path, rel: rel, info: info})
		return nil
	})
	if err != nil {
		return nil, faults.Wrap(faults.ErrMoveIO, "ingest", "walk mount", mount, err)
	}
	sort.Slice(files, func(a, b int) bool { return files[a].rel < files[b].rel })
	return files, nil
}

// hasMediaSibling reports whether an unrecognised file shares its stem with
// a media file in the same card directory, making it a sidecar.
func (i *Ingester) hasMediaSibling(file pending) bool {
	dir := filepath.Dir(file.src)
	stem := strings.ToLower(media.Stem(file.src))
	entries, err := afero.ReadDir(i.fs, dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if path == file.src || !entry.Mode().IsRegular() {
			continue
		}
		if kind := i.classifier.KindOf(path); kind.IsMedia() && strings.ToLower(media.Stem(path)) == stem {
			return true
		}
	}
	return false
}

// copy stages file at target. It returns false when an identical copy is
// already there; a different file at target gets a numeric suffix.
func (i *Ingester) copy(file pending, target string) (bool, error) {
	if err := i.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return false, err
	}
	for n := 0; n <= 9999; n++ {
		candidate := pathbuild.WithSuffix(target, n)
		exists, err := afero.Exists(i.fs, candidate)
		if err != nil {
			return false, err
		}
		if !exists {
			return true, fileutil.CopyFileVerified(i.fs, file.src, candidate)
		}
		same, err := fileutil.Identical(i.fs, file.src, candidate, false)
		if err != nil {
			return false, err
		}
		if same {
			return false, nil
		}
	}
	return false, faults.Wrap(faults.ErrDestinationCollision, "ingest", "stage", target, nil)
}

func (i *Ingester) record(logger *slog.Logger, file pending, runID string) {
	if i.ledger == nil {
		return
	}
	err := i.ledger.Append(ledger.Entry{
		Source:     file.src,
		Size:       file.info.Size(),
		ModTime:    file.info.ModTime().UnixNano(),
		Outcome:    OutcomeIngested,
		RunID:      runID,
		RecordedAt: time.Now().UTC(),
	})
	if err != nil {
		logger.Warn("ledger append failed", logging.String(logging.FieldPath, file.src), logging.Error(err))
	}
}

// Candidates lists mounted volumes under roots: every first-level directory
// that holds files or a DCIM folder, otherwise its own subdirectories (the
// /media/<user>/<volume> layout).
func Candidates(fs afero.Fs, roots []string) []string {
	var out []string
	for _, root := range roots {
		entries, err := afero.ReadDir(fs, root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			dir := filepath.Join(root, entry.Name())
			if looksLikeVolume(fs, dir) {
				out = append(out, dir)
				continue
			}
			children, err := afero.ReadDir(fs, dir)
			if err != nil {
				continue
			}
			for _, child := range children {
				if child.IsDir() && !strings.HasPrefix(child.Name(), ".") {
					out = append(out, filepath.Join(dir, child.Name()))
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

func looksLikeVolume(fs afero.Fs, dir string) bool {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.Mode().IsRegular() || (entry.IsDir() && strings.EqualFold(entry.Name(), "DCIM")) {
			return true
		}
	}
	return false
}
