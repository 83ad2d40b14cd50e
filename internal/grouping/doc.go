// Package grouping binds each primary media file to the sidecar files that
// share its stem, producing the move sets the organizer plans and executes.
package grouping
