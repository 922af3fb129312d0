// Package logging provides structured logging for coolpanel.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, or a file path
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("panel connected", "vendor", "3633", "product", "0026")
//	logger.Error("panel write failed", "error", err)
//
// # Security
//
// Never log secrets, tokens, passwords, or API keys.
// Log identifiers, not credentials:
//
//	logger.Info("mqtt auth", "username", cfg.Auth.Username)
package logging
