// Package config reads olcsync's TOML configuration.
//
// Load layers a file (explicit path, $OLCSYNC_CONFIG, the user config or
// ./olcsync.toml) over Default(), fills credentials and storage keys from
// OLC_USERNAME, OLC_PASSWORD, NTFY_TOPIC and the R2_* variables when the
// file leaves them empty, expands ~ in every path and validates the result.
// Commands take the returned *Config and never read the environment
// themselves.
package config
