package lattice

import "fmt"

// Phase identifies which of the frame passes is currently executing.
// Phase-gated APIs consult the top of the goroutine's phase stack and fail
// with a PhaseViolationError when called from the wrong pass.
type Phase int

const (
	// PhaseNone means no frame pass is active on this goroutine.
	PhaseNone Phase = iota
	// PhaseBuild is the tree-construction pass where components execute,
	// declare layout specs, and allocate positional state.
	PhaseBuild
	// PhaseMeasure is the post-build traversal that computes sizes through
	// the layout cache.
	PhaseMeasure
	// PhaseRecord is the post-measure traversal that emits draw and compute
	// ops for the external renderer.
	PhaseRecord
	// PhaseInput is the host-driven input delivery pass that runs between
	// frames, before the next Build.
	PhaseInput
)

// String returns the phase name for diagnostics.
func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "None"
	case PhaseBuild:
		return "Build"
	case PhaseMeasure:
		return "Measure"
	case PhaseRecord:
		return "Record"
	case PhaseInput:
		return "Input"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// pushPhase pushes an execution phase for the current goroutine. The
// returned func pops it; callers defer it so the stack stays balanced on
// panic paths.
func pushPhase(p Phase) func() {
	st := currentScope()
	st.phases = append(st.phases, p)
	return popPhase
}

func popPhase() {
	st := currentScope()
	if len(st.phases) == 0 {
		panic(&RuntimeInvariantError{Op: "popPhase", Detail: "phase stack is empty"})
	}
	st.phases = st.phases[:len(st.phases)-1]
	releaseScopeIfIdle(st)
}

// currentPhase returns the active phase for this goroutine, or PhaseNone.
func currentPhase() Phase {
	st, ok := peekScope()
	if !ok || len(st.phases) == 0 {
		return PhaseNone
	}
	return st.phases[len(st.phases)-1]
}

// ensurePhase panics with a PhaseViolationError unless the current phase is
// one of allowed.
func ensurePhase(api string, allowed ...Phase) {
	phase := currentPhase()
	for _, p := range allowed {
		if phase == p {
			return
		}
	}
	panic(&PhaseViolationError{API: api, Phase: phase, Allowed: allowed})
}
