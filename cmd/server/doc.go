// Package main is the entry point of the coordinator daemon.
//
// The daemon hosts page sessions: browsers report activity and visibility,
// and each session runs its idle machine, renderer loop and revalidation
// policy server side. See internal/api for the routes.
//
// Configuration:
//   - Environment variables (12-factor)
//   - Optional flat YAML or TOML file (-config); the environment wins
//   - CLI flags override both
//
// Usage:
//
//	./server -port 8000
//	LOG_DEV=true FETCH_BASE_URL=http://localhost:9000 ./server -config coordinator.yaml
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
