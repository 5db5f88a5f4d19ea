/*
Package tracing provides request tracing for the coordinator daemon.

# Overview

Every API request gets a span. Trace and span IDs are UUIDs propagated in
the X-Trace-ID and X-Span-ID headers, so a client can correlate its own logs
with the daemon's. Finished spans are logged by a buffered collector.

# Usage

	tracer := tracing.New("coordinator", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	// Manual span creation
	span, ctx := tracer.StartSpan(ctx, "tool.run")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

# Performance

Spans are buffered (1000) and dropped with a warning when the collector
falls behind.
*/
package tracing
