// Package config provides 12-factor configuration management for the
// coordinator daemon.
//
// Configuration is loaded from environment variables with sensible defaults.
// A flat YAML or TOML file of the same keys can sit underneath the
// environment; a key set in the environment always wins.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, h2c)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Idle: Idle threshold, visibility grace, ticker and debounce window
//   - Revalidation: Backoff, retry ceiling, focus throttle, idle window
//   - Producer: Default tool timeout
//   - Renderer: Frame interval and whether sessions mount a surface
//   - Fetch: Upstream for the HTTP fetcher
//
// Example Usage:
//
//	cfg, err := config.LoadFile("coordinator.yaml")
//	if err == nil {
//		err = cfg.Validate()
//	}
package config
