/*
Package renderer manages a GPU rendering surface across its lifecycle.

A Manager owns exactly one Surface built by a Provider. Mount creates the
surface, builds geometry and a shader program from the source Params, and
starts a clock-driven animation loop.

# States

	Initializing -> Running -> PausedIdle -> Running
	Running | PausedIdle -> ContextLost -> Initializing -> Running
	any -> Disposed

The loop pauses on idle-start and resumes on idle-end. Resuming resets the
frame timing baseline, so the first frame after a pause reports a normal
delta instead of the whole pause.

When the platform drops the GPU context the loop stops and the manager
waits; resources are rebuilt from Params when the context comes back.
Surface creation failure is logged and the manager renders nothing.

Unmount cancels the pending frame, detaches every listener it attached
(surface signals and bus subscriptions alike), disposes GPU resources and
releases the surface.

# Usage

	mgr := renderer.NewManager(provider, bus, clock.New(), params, renderer.DefaultConfig(), logger)
	unmount, err := mgr.Mount()
	defer unmount()
*/
package renderer
