// Package main hosts the mediasort CLI entrypoint and command graph.
//
// The Cobra-based command tree runs one-shot organize passes, removable media
// ingest, the long-running daemon and its log, ledger maintenance, configuration
// scaffolding and preflight checks. It centralizes configuration resolution
// so subcommands only deal with flags and rendering; the work itself lives in
// the internal packages.
package main
