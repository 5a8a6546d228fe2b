// Package config loads and validates TOML configuration for the meetscribe
// daemon and CLI. Defaults come from Default(); Load layers a config file on
// top, expands paths, and validates the result.
package config
