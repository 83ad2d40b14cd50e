// Package preflight provides readiness checks for the filesystem paths and
// external binaries mediasort depends on.
//
// The CLI "mediasort check" command prints RunAll's results, and the daemon
// logs any failing check at startup. Each check is gated by its config
// toggle; disabled features are skipped.
package preflight
