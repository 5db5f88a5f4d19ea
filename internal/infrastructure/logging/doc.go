// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Every coordinator component receives a named child logger, so a log line
// says which machine produced it:
//
//	logger := logging.New(logging.FromSettings(cfg.Logging.Level, cfg.Logging.Development))
//	machine := idle.New(bus, clk, idleCfg, logger.Component("idle"))
//
// Conventions:
//   - Debug: suppressed revalidation errors, scheduled retries
//   - Info: graphics context loss and restore, session lifecycle
//   - Warn: surfaced errors, surface creation failures, producer timeouts
//   - Error: recovered panics
package logging
