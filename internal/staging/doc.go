// Package staging reclaims space left by interrupted copies and drained
// ingest staging trees.
package staging
