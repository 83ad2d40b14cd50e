// Package daemon runs the long-lived mediasort process.
//
// A Daemon holds a flock on <state_dir>/mediasort.lock for its lifetime and
// runs one cycle at start, then one per interval. A cycle optionally copies
// removable media into the source tree, then runs a full organize pass with
// the ledger attached so files already handled are filtered right after the
// scan. Cycles can also be requested early by filesystem activity under the
// source tree (fsnotify, debounced), by a udev block device add event, or by
// POST /api/cycle on the optional status API. Concurrent requests coalesce
// into a single pending trigger.
//
// Cancelling the context passed to Run aborts the wait between cycles
// immediately; a cycle in progress stops between sets.
package daemon
