package organizer

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"mediasort/internal/config"
	"mediasort/internal/faults"
	"mediasort/internal/fileutil"
	"mediasort/internal/grouping"
	"mediasort/internal/pathbuild"
)

const maxRenameSuffix = 9999

// planner turns sets into operations. Destinations claimed by earlier sets
// in the same pass stay reserved, so dry-run and execute agree.
type planner struct {
	fs       afero.Fs
	builder  *pathbuild.Builder
	strategy string
	byMtime  bool
	reserved map[string]string
}

func newPlanner(fs afero.Fs, builder *pathbuild.Builder, cfg *config.Config) *planner {
	return &planner{
		fs:       fs,
		builder:  builder,
		strategy: cfg.Organize.DuplicateStrategy,
		byMtime:  cfg.Organize.IdenticalCheck == config.IdenticalMtime,
		reserved: make(map[string]string),
	}
}

func (p *planner) plan(set grouping.Set) Operation {
	file := set.Primary
	op := Operation{
		Primary:      file.Path,
		Kind:         file.Kind,
		CaptureTime:  file.CaptureTime,
		Device:       file.Device,
		DateSource:   file.DateSource,
		DeviceSource: file.DeviceSource,
	}
	if set.LeaveInPlace() {
		return skipped(op, faults.ReasonLeaveInPlace)
	}

	dir := p.builder.Dir(file)
	moves, err := p.members(set, dir)
	if err != nil {
		return failed(op, err)
	}
	op.Moves = moves

	if allInPlace(moves) {
		return skipped(op, faults.ReasonAlreadyOrganized)
	}

	collisions, present, reservedHit := p.collisions(moves)
	if len(collisions) == 0 {
		if len(present) == movingCount(moves) {
			return skipped(op, faults.ReasonAlreadyOrganized)
		}
		for _, i := range present {
			op.Moves[i].Present = true
		}
		p.reserve(op)
		op.Outcome = OutcomePlanned
		return op
	}

	switch p.strategy {
	case config.DuplicateSkip:
		return skipped(op, faults.ReasonDuplicate)
	case config.DuplicateOverwrite:
		if !reservedHit {
			for _, i := range present {
				op.Moves[i].Present = true
			}
			op.Overwrite = true
			p.reserve(op)
			op.Outcome = OutcomePlanned
			return op
		}
	}

	suffix, ok := p.freeSuffix(moves, dir)
	if !ok {
		return failed(op, faults.Wrap(faults.ErrDestinationCollision, "planner", "rename", fmt.Sprintf("no free suffix for %s", file.Name()), nil))
	}
	op.Moves = withSuffix(moves, dir, suffix)
	op.Suffix = suffix
	p.reserve(op)
	op.Outcome = OutcomePlanned
	return op
}

// members stats every file of the set and computes its base destination.
func (p *planner) members(set grouping.Set, dir string) ([]Move, error) {
	paths := set.Members()
	moves := make([]Move, 0, len(paths))
	for _, src := range paths {
		info, err := p.fs.Stat(src)
		if err != nil {
			return nil, faults.Wrap(faults.ErrMoveIO, "planner", "stat member", src, err)
		}
		moves = append(moves, Move{
			Source:      src,
			Destination: filepath.Join(dir, pathbuild.SanitizeName(filepath.Base(src))),
			Size:        info.Size(),
			ModTime:     info.ModTime(),
		})
	}
	return moves, nil
}

// collisions sorts the moving members whose destination is taken. A member
// whose destination already holds identical content on disk is present;
// any other occupied or reserved destination is a collision.
func (p *planner) collisions(moves []Move) (collisions, present []int, reservedHit bool) {
	for i, move := range moves {
		if move.InPlace() {
			continue
		}
		if owner, ok := p.reserved[move.Destination]; ok && owner != moves[0].Source {
			collisions = append(collisions, i)
			reservedHit = true
			continue
		}
		if exists, _ := afero.Exists(p.fs, move.Destination); !exists {
			continue
		}
		if same, err := fileutil.Identical(p.fs, move.Source, move.Destination, p.byMtime); err == nil && same {
			present = append(present, i)
			continue
		}
		collisions = append(collisions, i)
	}
	return collisions, present, reservedHit
}

// freeSuffix finds the smallest n for which every member's suffixed
// destination is free.
func (p *planner) freeSuffix(moves []Move, dir string) (int, bool) {
	for n := 1; n <= maxRenameSuffix; n++ {
		free := true
		for _, move := range withSuffix(moves, dir, n) {
			if move.InPlace() {
				continue
			}
			if _, taken := p.reserved[move.Destination]; taken {
				free = false
				break
			}
			if exists, _ := afero.Exists(p.fs, move.Destination); exists {
				free = false
				break
			}
		}
		if free {
			return n, true
		}
	}
	return 0, false
}

func withSuffix(moves []Move, dir string, n int) []Move {
	primary := filepath.Base(moves[0].Destination)
	stem := strings.TrimSuffix(primary, filepath.Ext(primary))
	out := make([]Move, len(moves))
	for i, move := range moves {
		move.Destination = filepath.Join(dir, pathbuild.AlignedSuffix(filepath.Base(move.Destination), stem, n))
		out[i] = move
	}
	return out
}

func (p *planner) reserve(op Operation) {
	for _, move := range op.Moves {
		p.reserved[move.Destination] = op.Primary
	}
}

func allInPlace(moves []Move) bool {
	for _, move := range moves {
		if !move.InPlace() {
			return false
		}
	}
	return true
}

func movingCount(moves []Move) int {
	n := 0
	for _, move := range moves {
		if !move.InPlace() {
			n++
		}
	}
	return n
}

func skipped(op Operation, reason string) Operation {
	op.Outcome = OutcomeSkipped
	op.Reason = reason
	return op
}

func failed(op Operation, err error) Operation {
	op.Outcome = OutcomeFailed
	op.Reason = faults.Reason(err)
	op.Error = err.Error()
	return op
}
