// Package faults defines the error markers shared by the sorting pipeline.
//
// Every failure that crosses a package boundary is wrapped with one of the
// sentinel markers so callers can classify it with errors.Is:
//   - ErrMetadataUnavailable and ErrExternalToolUnavailable are non-fatal and
//     only drive the resolver to its next fallback.
//   - ErrDestinationCollision is resolved by the planner and never reaches
//     the report as a failure.
//   - ErrMoveIO fails a single related set and triggers its rollback.
//   - ErrConfigInvalid aborts a pass before any file is touched.
//
// Reason maps a wrapped error onto the reason code written to reports.
package faults
