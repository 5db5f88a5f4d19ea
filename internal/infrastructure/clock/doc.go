// Package clock abstracts the time source used by the coordinator's state
// machines.
//
// Production code uses New, which delegates to time.AfterFunc. Tests use
// Manual, a virtual clock whose callbacks fire synchronously inside Advance,
// so idle thresholds, debounce windows and backoff delays can be exercised
// to the millisecond without sleeping.
//
//	clk := clock.NewManual(time.Unix(0, 0))
//	clk.AfterFunc(30*time.Second, onIdle)
//	clk.Advance(30 * time.Second) // onIdle runs here
package clock
