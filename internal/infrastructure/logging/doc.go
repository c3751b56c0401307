// Package logging provides structured logging for the Wolf bridge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - Text output by default (human-readable, on stderr)
//   - JSON output for log shippers
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the logging section of the credentials file:
//
//	"logging": {
//	  "level": "info",     // debug, info, warn, error
//	  "format": "text",    // json, text
//	  "output": "stderr"   // stdout, stderr
//	}
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("refresh cycle finished", "parameters", 42)
//	logger.Error("failed to connect", "error", err)
//
// # Security
//
// Never log the portal password or access tokens.
// Use Redact for anything derived from them:
//
//	logger.Debug("token cached", "token", logging.Redact(tok.AccessToken))
package logging
