// Package latticeui provides a declarative, retained-mode UI runtime for
// Go.
//
// The heavy lifting lives in pkg/lattice: a per-frame recomposition
// engine with positional state memory (Remember/Retain), reactive
// rebuild tracking, whole-subtree replay, and a cached three-phase
// build/measure/record pipeline. This root package re-exports the most
// common surface for convenience.
//
// # Quick start
//
//	import (
//	    "time"
//
//	    latticeui "github.com/lattice-ui/lattice"
//	)
//
//	var counter = latticeui.Define("counter", func(p latticeui.NoProps) {
//	    n := latticeui.Remember(func() int { return 0 })
//	    n.WithMut(func(v *int) { *v++ })
//	})
//
//	func frame() {
//	    latticeui.Tick(time.Now(), func() {
//	        counter.Call(latticeui.NoProps{})
//	    })
//	}
//
// # Subpackages
//
// For additional functionality, import the subpackages directly:
//
//	import "github.com/lattice-ui/lattice/pkg/lattice"               // full runtime surface
//	import "github.com/lattice-ui/lattice/pkg/lattice/monitoring"    // prometheus metrics
//	import "github.com/lattice-ui/lattice/pkg/lattice/observability" // error reporting
//	import "github.com/lattice-ui/lattice/pkg/lattice/profiler"      // frame profiling
package latticeui

import (
	"time"

	"github.com/lattice-ui/lattice/pkg/lattice"
)

// Core types re-exported from pkg/lattice.
type (
	// Props is the equality-comparable component prop contract.
	Props = lattice.Props
	// NoProps is the prop type for components without inputs.
	NoProps = lattice.NoProps
	// Phase identifies the executing frame pass.
	Phase = lattice.Phase
	// FrameResult is Tick's per-frame output.
	FrameResult = lattice.FrameResult
	// FrameControl is a frame receiver's continuation decision.
	FrameControl = lattice.FrameControl
	// LayoutSpec describes how a node measures and places children.
	LayoutSpec = lattice.LayoutSpec
	// Constraints bound one measurement.
	Constraints = lattice.Constraints
	// ComputedSize is a measurement result.
	ComputedSize = lattice.ComputedSize
	// WindowRequests carries cursor, IME, and window-action requests.
	WindowRequests = lattice.WindowRequests
)

// Re-exported receiver continuation values.
const (
	Continue = lattice.Continue
	Stop     = lattice.Stop
)

// Define registers a component body. See lattice.Define.
func Define[P lattice.Props](name string, body func(P)) *lattice.ComponentDef[P] {
	return lattice.Define(name, body)
}

// Remember memoizes state by call position. See lattice.Remember.
func Remember[T any](init func() T) lattice.State[T] {
	return lattice.Remember(init)
}

// Retain memoizes state that survives unmount. See lattice.Retain.
func Retain[T any](init func() T) lattice.State[T] {
	return lattice.Retain(init)
}

// Key groups a block under a stable user key. See lattice.Key.
func Key(key any, block func()) {
	lattice.Key(key, block)
}

// Tick drives one frame. See lattice.Tick.
func Tick(now time.Time, root func()) (lattice.FrameResult, error) {
	return lattice.Tick(now, root)
}
