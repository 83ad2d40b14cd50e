// Package ingest copies the contents of removable media into a staging
// directory under the source root and then organises them.
//
// Every file is copied with size and SHA256 verification. Recognised media
// and their sidecars are staged under <source>/<staging_dir>/<volume>/ so the
// regular organize pass picks them up; everything else lands in the
// "other files" folder of the output root. Copied card files are recorded in
// the ledger by their card signature, so re-inserting a card copies only new
// files.
package ingest
