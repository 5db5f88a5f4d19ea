/*
Package monitoring provides Prometheus metrics for the coordinator.

# Overview

Metrics are registered on a private registry per collector so several
coordinators (or tests) in one process never collide on registration.

# Features

- Idle transitions by kind and reason, idle period lengths
- Renderer state transitions, frames and context losses
- Revalidation verdicts by error source, backoff delays, throttled focus events
- Bounded producer outcomes and run time
- HTTP and WebSocket traffic

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	var m *monitoring.Metrics // nil is a valid no-op collector
	m.RecordIdleStart("inactivity")
*/
package monitoring
