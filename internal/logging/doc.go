// Package logging provides file-based structured logging with rotation for
// the memory server. Logs are JSON (slog) and written to ~/.openclaw/logs/ so
// the MCP stdio channel stays clean; stderr mirroring is opt-in for
// foreground runs.
package logging
