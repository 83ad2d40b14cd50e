// Package organizer plans and applies the moves that sort a source tree into
// <output>/<date>/<kind>/[<device>/]<name>.
//
// A pass scans the source, groups sidecars with their primaries, resolves
// metadata, and then handles one set at a time: plan every member's
// destination, apply the moves, and roll back already-moved members when a
// later member fails. Dry-run stops after planning, so its report carries the
// same destinations an executed pass would use.
package organizer
