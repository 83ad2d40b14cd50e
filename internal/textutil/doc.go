// Package textutil provides the string cleanup helpers used when turning
// metadata values into directory names.
//
// SanitizeSegment is the single gate every generated path segment passes
// through: it replaces characters that are reserved on common filesystems,
// strips control runes and caps the segment length. SanitizeToken builds
// lowercase identifiers for log fields and lock names.
package textutil
