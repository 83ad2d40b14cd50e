// Package ledger persists the signatures of files the daemon has already
// handled so later cycles can skip them.
//
// The ledger is an append-only JSON Lines journal. Each Append is one
// O_APPEND write followed by fsync, serialised by a mutex and an advisory
// file lock. Loading tolerates duplicate records and a torn final line left
// by a crash mid-write.
package ledger
