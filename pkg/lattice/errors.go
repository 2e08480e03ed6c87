package lattice

import (
	"errors"
	"fmt"
	"reflect"
)

// Runtime-level error kinds. Identity and phase errors are programmer bugs
// and fail fast (the offending call panics with one of the typed errors
// below). MeasurementError is the one recoverable kind: it propagates up the
// Measure traversal as an ordinary error value and is absorbed at the
// nearest boundary node.
var (
	// ErrPhaseViolation is returned when a phase-gated API is called outside
	// its permitted phase, e.g. Remember during Measure or a draw-op emit
	// during Build.
	ErrPhaseViolation = errors.New("phase violation")

	// ErrRuntimeInvariant is returned on stack imbalance, missing node
	// context, or an empty counter stack on pop. These always indicate a bug
	// in the runtime or in a component wrapper, never in user state.
	ErrRuntimeInvariant = errors.New("runtime invariant violated")

	// ErrHandleStale is returned when a State handle's generation no longer
	// matches its slot. The slot was recycled (or reinitialized) after the
	// handle was captured.
	ErrHandleStale = errors.New("state handle is stale")

	// ErrHandleTypeMismatch is returned when a State handle is used against
	// a slot whose stored type differs from the handle's type parameter.
	ErrHandleTypeMismatch = errors.New("state handle type mismatch")

	// ErrLockContention is returned on reentrant conflicting access to a
	// slot, e.g. calling WithMut from inside the very With closure that is
	// reading the same slot.
	ErrLockContention = errors.New("reentrant slot lock contention")

	// ErrFrameAborted wraps any error that aborted a frame. The partial
	// frame is discarded; the host keeps the previously rendered frame on
	// screen and the waker fires so the next input retries.
	ErrFrameAborted = errors.New("frame aborted")
)

// PhaseViolationError reports a phase-gated API called from the wrong phase.
type PhaseViolationError struct {
	// API is the name of the offending entry point, e.g. "Remember".
	API string
	// Phase is the phase the call happened in. PhaseNone means the call
	// happened outside any frame.
	Phase Phase
	// Allowed names the phases the API accepts.
	Allowed []Phase
}

// Error implements the error interface for PhaseViolationError.
func (e *PhaseViolationError) Error() string {
	if e.Phase == PhaseNone {
		return fmt.Sprintf("%s must be called inside a lattice component (no active phase); allowed phases: %v", e.API, e.Allowed)
	}
	return fmt.Sprintf("%s called during %v; allowed phases: %v", e.API, e.Phase, e.Allowed)
}

// Unwrap returns ErrPhaseViolation for errors.Is comparisons.
func (e *PhaseViolationError) Unwrap() error { return ErrPhaseViolation }

// RuntimeInvariantError reports an internal bookkeeping violation such as a
// stack underflow or an unbalanced guard.
type RuntimeInvariantError struct {
	// Op is the operation that detected the violation, e.g. "popGroup".
	Op string
	// Detail describes the expected and observed state.
	Detail string
}

// Error implements the error interface for RuntimeInvariantError.
func (e *RuntimeInvariantError) Error() string {
	return fmt.Sprintf("runtime invariant violated in %s: %s", e.Op, e.Detail)
}

// Unwrap returns ErrRuntimeInvariant for errors.Is comparisons.
func (e *RuntimeInvariantError) Unwrap() error { return ErrRuntimeInvariant }

// HandleStaleError reports access through a State handle whose slot has
// been recycled since the handle was created.
type HandleStaleError struct {
	Slot             SlotHandle
	HandleGeneration uint64
	SlotGeneration   uint64
}

// Error implements the error interface for HandleStaleError.
func (e *HandleStaleError) Error() string {
	return fmt.Sprintf("state handle is stale: slot %v holds generation %d, handle captured generation %d",
		e.Slot, e.SlotGeneration, e.HandleGeneration)
}

// Unwrap returns ErrHandleStale for errors.Is comparisons.
func (e *HandleStaleError) Unwrap() error { return ErrHandleStale }

// HandleTypeMismatchError reports a State handle whose type parameter does
// not match the type stored in its slot.
type HandleTypeMismatchError struct {
	Slot     SlotHandle
	Expected reflect.Type
	Stored   reflect.Type
}

// Error implements the error interface for HandleTypeMismatchError.
func (e *HandleTypeMismatchError) Error() string {
	return fmt.Sprintf("state handle type mismatch for slot %v: handle expects %v, slot stores %v",
		e.Slot, e.Expected, e.Stored)
}

// Unwrap returns ErrHandleTypeMismatch for errors.Is comparisons.
func (e *HandleTypeMismatchError) Unwrap() error { return ErrHandleTypeMismatch }

// LockContentionError reports a reentrant conflicting slot access: a write
// requested while the same goroutine already holds the slot for reading, or
// a nested access inside a mutating closure on the same slot.
type LockContentionError struct {
	Slot SlotHandle
	// Mode describes the conflicting request, "write-while-read",
	// "write-while-write" or "read-while-write".
	Mode string
}

// Error implements the error interface for LockContentionError.
func (e *LockContentionError) Error() string {
	return fmt.Sprintf("reentrant slot lock contention on %v (%s); do not access a slot from inside its own closure", e.Slot, e.Mode)
}

// Unwrap returns ErrLockContention for errors.Is comparisons.
func (e *LockContentionError) Unwrap() error { return ErrLockContention }

// MeasurementError is returned by a layout spec's Measure when it cannot
// produce a size (bad child count, unsatisfiable constraint). It propagates
// up the Measure traversal without corrupting the layout cache and is
// recovered at the nearest boundary node.
type MeasurementError struct {
	// SpecName names the failing layout spec.
	SpecName string
	// Reason describes why measurement failed.
	Reason string
	// Cause optionally carries a child failure this error wraps.
	Cause error
}

// Error implements the error interface for MeasurementError.
func (e *MeasurementError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("measurement failed in %s: %s: %v", e.SpecName, e.Reason, e.Cause)
	}
	return fmt.Sprintf("measurement failed in %s: %s", e.SpecName, e.Reason)
}

// Unwrap returns the wrapped child failure, if any.
func (e *MeasurementError) Unwrap() error { return e.Cause }

// FrameAbortError wraps the error (or recovered panic value) that aborted a
// frame. Tick returns it after discarding the partial frame.
type FrameAbortError struct {
	// Frame is the index of the aborted frame.
	Frame uint64
	// Phase is the phase that was active when the abort happened.
	Phase Phase
	// Cause is the underlying error. Recovered non-error panic values are
	// wrapped in a generic error.
	Cause error
}

// Error implements the error interface for FrameAbortError.
func (e *FrameAbortError) Error() string {
	return fmt.Sprintf("frame %d aborted during %v: %v", e.Frame, e.Phase, e.Cause)
}

// Unwrap exposes both ErrFrameAborted and the cause, so hosts can match
// either with errors.Is/errors.As.
func (e *FrameAbortError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrFrameAborted}
	}
	return []error{ErrFrameAborted, e.Cause}
}
