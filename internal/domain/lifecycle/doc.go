/*
Package lifecycle provides the idle lifecycle event bus.

# Overview

The bus decouples the idle state machine (the only producer) from the
components that pause or resume background work in reaction to it. It is an
explicit, injectable object: every page session owns its own bus, so sessions
and tests never observe each other's broadcasts.

# Guarantees

  - Listeners for one broadcast run synchronously, in registration order
  - No replay: a listener added after a transition never sees it
  - Unsubscribe is idempotent and takes effect immediately, even in the
    middle of a broadcast
  - A panicking listener is logged and does not stop delivery to the rest

# Usage

	bus := lifecycle.New(logger)
	stop, _ := bus.SubscribeIdle(
		func(lifecycle.Event) { worker.Pause() },
		func(lifecycle.Event) { worker.Resume() },
	)
	defer stop()
*/
package lifecycle
