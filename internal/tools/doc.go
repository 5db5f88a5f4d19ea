// Package tools runs JavaScript tool scripts through the bounded producer.
//
// Each run gets a fresh goja VM. Intermediate values reported with
// progress(v) are forwarded as they happen, and the script's return value
// is the final result. When the time budget runs out the VM is interrupted,
// the value being computed is discarded and the caller receives a
// producer.TimeoutError.
//
//	res, err := runner.Run(ctx, "summarise", `
//		progress("reading");
//		sleep(20);
//		progress("writing");
//		return {ok: true};
//	`, 5*time.Second)
package tools
