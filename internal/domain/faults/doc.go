/*
Package faults holds the coordinator's error taxonomy and the global error
classifier.

# Taxonomy

Errors are tagged at their point of origin with a Kind:

  - GraphicsContextLoss: expected, auto-recoverable, never fatal
  - NetworkTransient: retryable, suppressible when idle-adjacent
  - ClientRequest: 4xx-class, never retried, always surfaced
  - TimeoutExceeded: distinguishable, surfaced to the caller of a bounded producer
  - StaleUIMismatch: recoverable by a full reset
  - DataRefresh: a revalidation-path failure
  - Aborted: intentional cancellation
  - Unknown: default, non-recoverable

# Classification

Classify resolves the structured tag first (errors.As against Kinded), then
context and net errors, and only then falls back to message substrings. It is
total: nil, typed-nil and non-error values classify as unknown.

	c := faults.Classify(err)
	if !c.IsRecoverable {
		// show generic message, offer reset
	}
*/
package faults
