// Package config loads, normalizes, and validates mediasort configuration data.
//
// It supplies repository defaults (extension sets, folder labels, daemon
// schedule), expands user paths including tilde shortcuts, reads TOML files,
// and honours the CONFIG_DIR environment variable that selects the state
// directory in container deployments. The Config type is loaded once per pass
// and passed read-only to the pipeline.
//
// Validation failures wrap faults.ErrConfigInvalid so a pass can refuse to
// start before any file is touched.
package config
