package lattice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// frameDriver drives deterministic frames against the package internals.
type frameDriver struct {
	t   *testing.T
	now time.Time
}

func newFrameDriver(t *testing.T) *frameDriver {
	t.Helper()
	Reset()
	SetWindowSize(800, 600)
	t.Cleanup(Reset)
	return &frameDriver{
		t:   t,
		now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick advances the clock one 16ms step and runs a frame, failing the
// test on error.
func (d *frameDriver) tick(root func()) FrameResult {
	d.t.Helper()
	d.now = d.now.Add(16 * time.Millisecond)
	result, err := Tick(d.now, root)
	require.NoError(d.t, err)
	return result
}

// tickErr runs a frame and returns the error.
func (d *frameDriver) tickErr(root func()) (FrameResult, error) {
	d.t.Helper()
	d.now = d.now.Add(16 * time.Millisecond)
	return Tick(d.now, root)
}
