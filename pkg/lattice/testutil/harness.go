// Package testutil provides a deterministic frame harness for driving
// the lattice runtime in tests: a manual clock, fixed-step ticks, and
// guaranteed runtime reset between tests.
package testutil

import (
	"time"

	"github.com/lattice-ui/lattice/pkg/lattice"
)

// DefaultStep is the simulated frame interval (roughly 60 FPS).
const DefaultStep = 16 * time.Millisecond

// Harness drives the runtime with a manual clock so frame-timing
// behavior (receivers, deltas) is deterministic.
//
//	h := testutil.NewHarness(t)
//	result, err := h.Tick(func() { counter.Call(lattice.NoProps{}) })
type Harness struct {
	now  time.Time
	step time.Duration
}

// cleanuper is the subset of testing.TB the harness needs; keeping it an
// interface avoids importing testing into non-test builds.
type cleanuper interface {
	Cleanup(func())
	Helper()
}

// NewHarness resets the runtime, sets a default window size, and
// registers a cleanup that resets again when the test finishes.
func NewHarness(t cleanuper) *Harness {
	t.Helper()
	lattice.Reset()
	lattice.SetWindowSize(800, 600)
	t.Cleanup(lattice.Reset)
	return &Harness{
		now:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		step: DefaultStep,
	}
}

// SetStep overrides the simulated frame interval.
func (h *Harness) SetStep(step time.Duration) {
	if step > 0 {
		h.step = step
	}
}

// Now returns the harness clock's current time.
func (h *Harness) Now() time.Time { return h.now }

// Advance moves the clock without ticking.
func (h *Harness) Advance(d time.Duration) {
	h.now = h.now.Add(d)
}

// Tick advances the clock one step and runs a frame with the given root.
func (h *Harness) Tick(root func()) (lattice.FrameResult, error) {
	h.now = h.now.Add(h.step)
	return lattice.Tick(h.now, root)
}

// TickN runs n frames with the same root, returning the last result. It
// stops early on the first error.
func (h *Harness) TickN(n int, root func()) (lattice.FrameResult, error) {
	var result lattice.FrameResult
	var err error
	for i := 0; i < n; i++ {
		result, err = h.Tick(root)
		if err != nil {
			return result, err
		}
	}
	return result, nil
}
