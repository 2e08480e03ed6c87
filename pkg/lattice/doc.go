// Package lattice is the core of a retained-mode, declarative UI runtime:
// a per-frame recomposition engine with positional state memory, reactive
// invalidation, subtree replay, and an incrementally cached three-phase
// layout pipeline.
//
// # Model
//
// Hosts drive the runtime one frame at a time with Tick, supplying a
// user-authored root closure. Each frame runs three strictly gated
// phases:
//
//   - Build: component bodies execute top-down and declare layout specs.
//     Identity is allocated implicitly by call position; per-instance
//     state is addressed through that identity in an external slot table.
//   - Measure: a post-build traversal computes sizes through a memoized
//     layout cache keyed by constraints and dirtiness.
//   - Record: a post-measure traversal emits opaque draw/compute ops for
//     the external renderer.
//
// # Components and state
//
// Components are plain functions registered with Define and invoked with
// Call. The wrapper derives a stable identity for every call site, so
// state allocated with Remember sticks to the position across frames:
//
//	var counter = lattice.Define("counter", func(p lattice.NoProps) {
//	    n := lattice.Remember(func() int { return 0 })
//	    n.WithMut(func(v *int) { *v++ })
//	})
//
//	result, err := lattice.Tick(time.Now(), func() {
//	    counter.Call(lattice.NoProps{})
//	})
//
// Key groups identity under user keys for reorderable collections;
// Retain marks state that survives unmount. Reads during Build subscribe
// the reading component to the slot: a later write rebuilds exactly the
// readers on the next frame, everything else is served by replaying the
// previous frame's subtrees.
//
// # Collaborators
//
// The GPU target, text shaping, OS input sourcing, and the widget catalog
// are external. The runtime's boundary is Tick (ops + window requests
// out), DispatchInput (events in), the frame clock, and the redraw waker.
// Telemetry flows through the monitoring package; error reporting and
// profiling attach via hooks (see the observability and profiler
// packages).
//
// The runtime is single-threaded per frame by design: identity and phase
// state live in goroutine-local stacks, and only the goroutine driving
// Tick may call build-time APIs.
package lattice
