// Package logging provides slog-based structured logging with console and
// JSON output formats plus rotating file output for the daemon.
package logging
