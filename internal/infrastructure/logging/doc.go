// Package logging provides structured logging for the access gateway.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text for development, and service/version fields on every
// entry.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting service", "port", 8090)
//	logger.Error("terminal unreachable", "endpoint", ep, "error", err)
//
// # Security
//
// Attributes named comm_key, password, token, authorization or secret are
// replaced with [REDACTED] by the handler. terminal.Endpoint formats itself
// without the comm key, so logging an endpoint is safe.
package logging
