// Package logx configures the announcer's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - A safe no-op zero value so components never nil-check loggers
package logx
