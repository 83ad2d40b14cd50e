package organizer

import (
	"time"

	"mediasort/internal/media"
)

// Outcome is the terminal state of one planned set.
type Outcome string

const (
	OutcomePlanned  Outcome = "planned"
	OutcomeExecuted Outcome = "executed"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// Run modes recorded on reports.
const (
	ModeDryRun  = "dry_run"
	ModeExecute = "execute"
)

// Move is one member of a set and where it goes.
type Move struct {
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"mtime"`
	// Present marks a member whose destination already holds identical
	// content. It is neither transferred nor removed from the source.
	Present bool `json:"present,omitempty"`
}

// InPlace reports whether the member is already at its destination.
func (m Move) InPlace() bool {
	return m.Source == m.Destination
}

// Transfers reports whether applying the move touches the filesystem.
func (m Move) Transfers() bool {
	return !m.InPlace() && !m.Present
}

// Operation records everything decided about one set.
type Operation struct {
	Primary      string     `json:"primary"`
	Kind         media.Kind `json:"-"`
	KindName     string     `json:"kind"`
	CaptureTime  time.Time  `json:"capture_time,omitempty"`
	Device       string     `json:"device,omitempty"`
	DateSource   string     `json:"date_source,omitempty"`
	DeviceSource string     `json:"device_source,omitempty"`
	Moves        []Move     `json:"moves,omitempty"`
	Suffix       int        `json:"rename_suffix,omitempty"`
	Overwrite    bool       `json:"overwrite,omitempty"`
	Outcome      Outcome    `json:"outcome"`
	Reason       string     `json:"reason,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Summary holds the per-pass counters.
type Summary struct {
	Seen     int `json:"seen"`
	Ledgered int `json:"ledgered"`
	Sets     int `json:"sets"`
	Executed int `json:"executed"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	Moved    int `json:"moved_files"`
	Pruned   int `json:"pruned_dirs"`
}

// Report is the ordered result of one pass.
type Report struct {
	RunID      string      `json:"run_id"`
	Mode       string      `json:"mode"`
	Source     string      `json:"source"`
	Output     string      `json:"output"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Canceled   bool        `json:"canceled,omitempty"`
	Operations []Operation `json:"operations"`
	Summary    Summary     `json:"summary"`
}

// DryRun reports whether the pass mutated nothing.
func (r *Report) DryRun() bool {
	return r.Mode == ModeDryRun
}

// Duration returns the elapsed wall time of the pass.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ReasonCounts tallies skipped and failed operations by reason code.
func (r *Report) ReasonCounts() map[string]int {
	counts := make(map[string]int)
	for _, op := range r.Operations {
		if op.Reason != "" {
			counts[op.Reason]++
		}
	}
	return counts
}

func (r *Report) record(op Operation) {
	op.KindName = op.Kind.String()
	r.Operations = append(r.Operations, op)
	r.Summary.Sets++
	switch op.Outcome {
	case OutcomeExecuted:
		r.Summary.Executed++
		for _, move := range op.Moves {
			if move.Transfers() {
				r.Summary.Moved++
			}
		}
	case OutcomeSkipped:
		r.Summary.Skipped++
	case OutcomeFailed:
		r.Summary.Failed++
	}
}
