/*
Package idle implements the session idle state machine.

# States

	Active --[no activity for Threshold]----------> Idle
	Active --[hidden longer than VisibilityGrace]--> Idle
	Idle   --[qualifying activity or visible]------> Active

Entering Idle records the idle start, starts a 1 Hz duration ticker and
broadcasts idle-start. Leaving Idle stops the ticker, resets the duration and
broadcasts idle-end. Each transition is broadcast exactly once; repeated input
while Active broadcasts nothing.

# Ownership

Start installs timers and returns the disposer that removes them. A second
Start before the disposer ran fails with ErrAlreadyStarted, so hot restarts
cannot duplicate timers. After the disposer returns no callback of that run
fires.

Listeners receive an immutable lifecycle.Event and must not call back into the
machine synchronously.

# Usage

	m := idle.New(bus, clock.New(), idle.DefaultConfig(), logger)
	stop, err := m.Start()
	if err != nil {
		return err
	}
	defer stop()

	m.RecordActivity()
	m.SetVisibility(idle.Hidden)
*/
package idle
