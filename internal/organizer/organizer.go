package organizer

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"mediasort/internal/config"
	"mediasort/internal/faults"
	"mediasort/internal/grouping"
	"mediasort/internal/ledger"
	"mediasort/internal/logging"
	"mediasort/internal/media"
	"mediasort/internal/metadata"
	"mediasort/internal/pathbuild"
	"mediasort/internal/scan"
)

// MetadataResolver supplies capture time and device for a primary file.
type MetadataResolver interface {
	Resolve(ctx context.Context, path string, kind media.Kind) metadata.Metadata
}

// ProgressFunc observes each finished set.
type ProgressFunc func(done, total int, op Operation)

// Option customises an Organizer.
type Option func(*Organizer)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Organizer) { o.logger = logger }
}

// WithFs replaces the filesystem used for planning and moving.
func WithFs(fs afero.Fs) Option {
	return func(o *Organizer) { o.fs = fs }
}

// WithResolver replaces the metadata resolver built from config.
func WithResolver(resolver MetadataResolver) Option {
	return func(o *Organizer) { o.resolver = resolver }
}

// WithLedger filters already-handled files and records new outcomes.
func WithLedger(l *ledger.Ledger) Option {
	return func(o *Organizer) { o.ledger = l }
}

// WithProgress registers a per-set callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Organizer) { o.progress = fn }
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(o *Organizer) { o.runID = id }
}

// WithPanorama replaces the panoramic video predicate.
func WithPanorama(predicate media.PanoramaPredicate) Option {
	return func(o *Organizer) { o.panorama = predicate }
}

// Organizer runs organize passes for one configuration.
type Organizer struct {
	cfg        *config.Config
	fs         afero.Fs
	logger     *slog.Logger
	resolver   MetadataResolver
	ledger     *ledger.Ledger
	progress   ProgressFunc
	runID      string
	panorama   media.PanoramaPredicate
	classifier *media.Classifier
	scanner    *scan.Scanner
	grouper    *grouping.Grouper
	builder    *pathbuild.Builder
}

// New validates cfg and wires the pipeline. Configuration problems are
// returned before any file is touched.
func New(cfg *config.Config, opts ...Option) (*Organizer, error) {
	if cfg == nil {
		return nil, faults.Wrap(faults.ErrConfigInvalid, "organizer", "init", "configuration required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateSource(); err != nil {
		return nil, err
	}

	o := &Organizer{cfg: cfg}
	for _, opt := range opts {
		opt(o)
	}
	if o.fs == nil {
		o.fs = afero.NewOsFs()
	}
	o.logger = logging.NewComponentLogger(o.logger, "organizer")
	if o.panorama == nil {
		o.panorama = media.DefaultPanorama(cfg.Panorama)
	}
	if o.resolver == nil {
		resolver, err := metadata.NewResolverFromConfig(cfg, o.logger)
		if err != nil {
			return nil, err
		}
		o.resolver = resolver
	}
	o.classifier = media.NewClassifier(cfg.Extensions, o.panorama)
	o.scanner = scan.NewFromConfig(cfg, o.classifier, o.logger)
	o.grouper = grouping.NewFromConfig(cfg, o.fs, o.classifier, o.logger)
	o.builder = pathbuild.NewFromConfig(cfg)
	return o, nil
}

// Run executes one pass over cfg.Paths.SourceDir.
func Run(ctx context.Context, cfg *config.Config, dryRun bool, opts ...Option) (*Report, error) {
	o, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, dryRun)
}

// Run scans, groups, plans and, unless dryRun, applies every set in scanner
// order. Cancellation is observed between sets; the partial report is
// returned together with the context error.
func (o *Organizer) Run(ctx context.Context, dryRun bool) (*Report, error) {
	runID := o.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, o.logger)

	report := &Report{
		RunID:     runID,
		Mode:      ModeExecute,
		Source:    o.cfg.Paths.SourceDir,
		Output:    o.builder.Root(),
		StartedAt: time.Now(),
	}
	if dryRun {
		report.Mode = ModeDryRun
	}
	logger.Info("organize pass starting",
		logging.String("mode", report.Mode),
		logging.String("source", report.Source),
		logging.String("output", report.Output),
	)

	files, err := o.scanner.Walk(ctx, o.cfg.Paths.SourceDir)
	if err != nil {
		report.FinishedAt = time.Now()
		return report, err
	}
	report.Summary.Seen = len(files)
	files = o.filterLedgered(files, report)

	sets := o.grouper.Group(files)
	planner := newPlanner(o.fs, o.builder, o.cfg)
	exec := &executor{fs: o.fs, copy: !o.cfg.Organize.MoveFiles, logger: logger}
	vacated := make(map[string]struct{})

	for i, set := range sets {
		if !set.LeaveInPlace() && ctx.Err() == nil {
			set.Primary = o.resolve(ctx, set.Primary)
		}
		// Metadata read under a canceled context may be partial, so the set
		// is abandoned before anything moves.
		if err := ctx.Err(); err != nil {
			report.Canceled = true
			report.FinishedAt = time.Now()
			logger.Info("organize pass canceled", logging.Int("remaining_sets", len(sets)-i))
			return report, err
		}
		op := planner.plan(set)

		if op.Outcome == OutcomePlanned {
			if dryRun {
				op = skipped(op, faults.ReasonDryRun)
			} else if err := exec.apply(op); err != nil {
				op = failed(op, err)
			} else {
				op.Outcome = OutcomeExecuted
				if o.cfg.Organize.MoveFiles {
					for _, move := range op.Moves {
						if move.Transfers() {
							vacated[filepath.Dir(move.Source)] = struct{}{}
						}
					}
				}
			}
		}
		if !dryRun {
			o.recordLedger(logger, op, runID)
		}
		o.logOperation(logger, op)
		report.record(op)
		if o.progress != nil {
			o.progress(i+1, len(sets), op)
		}
	}

	if !dryRun && o.cfg.Organize.DeleteEmptyDirs && len(vacated) > 0 {
		report.Summary.Pruned = o.pruneEmptyDirs(o.cfg.Paths.SourceDir, vacated)
	}

	report.FinishedAt = time.Now()
	logger.Info("organize pass finished",
		logging.Int("seen", report.Summary.Seen),
		logging.Int("ledgered", report.Summary.Ledgered),
		logging.Int("executed", report.Summary.Executed),
		logging.Int("skipped", report.Summary.Skipped),
		logging.Int("failed", report.Summary.Failed),
		logging.Duration("duration", report.Duration()),
	)
	return report, nil
}

func (o *Organizer) resolve(ctx context.Context, file media.File) media.File {
	md := o.resolver.Resolve(ctx, file.Path, file.Kind)
	file = md.Apply(file)
	return o.classifier.Upgrade(file, md.Markers())
}

func (o *Organizer) filterLedgered(files []media.File, report *Report) []media.File {
	if o.ledger == nil {
		return files
	}
	kept := files[:0]
	for _, file := range files {
		if o.ledger.Contains(ledger.SignatureOf(file.Path, file.Size, file.ModTime)) {
			report.Summary.Ledgered++
			continue
		}
		kept = append(kept, file)
	}
	return kept
}

// recordLedger appends one entry per member of executed and
// already-organized sets. Failed and leave-in-place sets are not recorded.
func (o *Organizer) recordLedger(logger *slog.Logger, op Operation, runID string) {
	if o.ledger == nil {
		return
	}
	if op.Outcome != OutcomeExecuted && op.Reason != faults.ReasonAlreadyOrganized {
		return
	}
	entries := make([]ledger.Entry, 0, len(op.Moves))
	for _, move := range op.Moves {
		entry := ledger.Entry{
			Source:  move.Source,
			Size:    move.Size,
			ModTime: move.ModTime.UnixNano(),
			Outcome: string(op.Outcome),
			RunID:   runID,
		}
		if op.Outcome == OutcomeSkipped {
			entry.Outcome = op.Reason
		}
		if !move.InPlace() {
			entry.Destination = move.Destination
		}
		entries = append(entries, entry)
	}
	if err := o.ledger.Append(entries...); err != nil {
		logging.WarnWithContext(logger, "ledger append failed", "ledger_append_failed",
			logging.String(logging.FieldPath, op.Primary),
			logging.String(logging.FieldImpact, "set will be re-examined next cycle"),
			logging.Error(err),
		)
	}
}

func (o *Organizer) logOperation(logger *slog.Logger, op Operation) {
	attrs := []logging.Attr{
		logging.String(logging.FieldPath, op.Primary),
		logging.String("kind", op.Kind.String()),
		logging.String("outcome", string(op.Outcome)),
	}
	if op.Reason != "" {
		attrs = append(attrs, logging.String("reason", op.Reason))
	}
	if len(op.Moves) > 0 {
		attrs = append(attrs,
			logging.String("destination", op.Moves[0].Destination),
			logging.Int("members", len(op.Moves)),
		)
	}
	if op.Suffix > 0 {
		attrs = append(attrs, logging.Int("rename_suffix", op.Suffix))
	}
	switch op.Outcome {
	case OutcomeFailed:
		logging.WarnWithContext(logger, "set failed", "set_failed",
			append(attrs,
				logging.String("error", op.Error),
				logging.String(logging.FieldImpact, "files left at source; retried next pass"),
			)...,
		)
	case OutcomeExecuted:
		logger.Info("set organized", logging.Args(attrs...)...)
	default:
		logger.Debug("set skipped", logging.Args(attrs...)...)
	}
}
