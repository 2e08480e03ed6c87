package lattice

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFrameAbortDiscardsPartialWork verifies the clean-abort contract: a
// panicking body aborts the frame, clears the tree, keeps the frame
// index, and leaves the runtime usable.
func TestFrameAbortDiscardsPartialWork(t *testing.T) {
	shouldPanic := true
	flaky := Define("flakyBody", func(NoProps) {
		if shouldPanic {
			panic("component exploded")
		}
		Layout(fixedSpec{w: 7, h: 7})
	})

	d := newFrameDriver(t)
	indexBefore := FrameIndex()
	_, err := d.tickErr(func() { flaky.Call(NoProps{}) })
	require.Error(t, err)

	var abort *FrameAbortError
	require.True(t, errors.As(err, &abort))
	assert.Equal(t, PhaseBuild, abort.Phase)
	assert.ErrorIs(t, err, ErrFrameAborted)
	assert.Equal(t, indexBefore, FrameIndex(), "aborted frames do not advance the index")
	assert.Nil(t, engine.currentTree(), "the partial tree is cleared")

	// The next frame restarts from scratch.
	shouldPanic = false
	result := d.tick(func() { flaky.Call(NoProps{}) })
	assert.Equal(t, ComputedSize{Width: 7, Height: 7}, result.RootSize)
	assert.Greater(t, FrameIndex(), indexBefore)
}

// TestFrameAbortFiresWaker verifies the host is woken to retry after an
// abort.
func TestFrameAbortFiresWaker(t *testing.T) {
	d := newFrameDriver(t)
	woken := 0
	InstallRedrawWaker(func() { woken++ })
	t.Cleanup(ClearRedrawWaker)

	bomb := Define("wakerBomb", func(NoProps) {
		panic("boom")
	})
	_, err := d.tickErr(func() { bomb.Call(NoProps{}) })
	require.Error(t, err)
	assert.Positive(t, woken, "abort must fire the waker so the next input retries")
}

// TestAbortReportsThroughPanicHook verifies the observability hook sees
// frame aborts.
func TestAbortReportsThroughPanicHook(t *testing.T) {
	var reports []PanicReport
	SetPanicHook(func(r PanicReport) { reports = append(reports, r) })
	t.Cleanup(func() { SetPanicHook(nil) })

	bomb := Define("hookBomb", func(NoProps) { panic("kaboom") })
	d := newFrameDriver(t)
	_, err := d.tickErr(func() { bomb.Call(NoProps{}) })
	require.Error(t, err)

	require.Len(t, reports, 1)
	assert.Equal(t, "frame", reports[0].Kind)
	assert.Equal(t, "kaboom", reports[0].Recovered)
}

// TestWriteWakesHostOnce verifies waker deduplication: a burst of writes
// produces a single wake until the redraw is consumed.
func TestWriteWakesHostOnce(t *testing.T) {
	var handle State[int]
	holder := Define("wakeHolder", func(NoProps) {
		handle = Remember(func() int { return 0 })
		_ = handle.Get()
	})

	d := newFrameDriver(t)
	d.tick(func() { holder.Call(NoProps{}) })

	woken := 0
	InstallRedrawWaker(func() { woken++ })
	t.Cleanup(ClearRedrawWaker)

	handle.Set(1)
	handle.Set(2)
	handle.Set(3)
	assert.Equal(t, 1, woken, "a pending batch dedupes waker calls")

	d.tick(func() { holder.Call(NoProps{}) })
	handle.Set(4)
	assert.Equal(t, 2, woken, "consuming the redraw re-arms the waker")
}

// TestResetSuspendsRuntime verifies Reset drops all state.
func TestResetSuspendsRuntime(t *testing.T) {
	var handle State[int]
	probe := Define("resetProbe", func(NoProps) {
		handle = Remember(func() int { return 41 })
	})
	d := newFrameDriver(t)
	d.tick(func() { probe.Call(NoProps{}) })
	handle.Set(99)

	Reset()

	assert.Panics(t, func() { handle.Get() }, "handles do not survive reset")
	assert.Zero(t, FrameIndex())

	// A fresh tick starts over: init runs again.
	d2 := newFrameDriver(t)
	d2.tick(func() { probe.Call(NoProps{}) })
	assert.Equal(t, 41, handle.Get())
}

// TestWindowRequestsFlowThroughTick verifies cursor, IME, and window
// action requests reach the frame result.
func TestWindowRequestsFlowThroughTick(t *testing.T) {
	widget := Define("requestWidget", func(NoProps) {
		SetCursorIcon(CursorText)
		RequestIME(IMERequest{Position: Position{X: 4, Y: 5}, Size: ComputedSize{Width: 10, Height: 1}})
		RequestWindowAction(WindowActionToggleMaximize)
	})

	d := newFrameDriver(t)
	result := d.tick(func() { widget.Call(NoProps{}) })

	assert.Equal(t, CursorText, result.WindowRequests.CursorIcon)
	require.NotNil(t, result.WindowRequests.IME)
	assert.Equal(t, Position{X: 4, Y: 5}, result.WindowRequests.IME.Position)
	assert.Equal(t, WindowActionToggleMaximize, result.WindowRequests.Action)

	// Requests are per-frame; a clean next frame carries none.
	result = d.tick(func() { widget.Call(NoProps{}) })
	assert.Equal(t, CursorDefault, result.WindowRequests.CursorIcon)
	assert.Nil(t, result.WindowRequests.IME)
}

// TestInputDispatchReachesHandlers verifies handler registration,
// delivery order, and the Input-phase identity restore.
func TestInputDispatchReachesHandlers(t *testing.T) {
	var received []string
	field := Define("inputField", func(NoProps) {
		OnInput(func(in *InputHandlerInput) {
			for _, ev := range in.Events {
				received = append(received, "field:"+ev.(string))
			}
			// Input-phase APIs work inside handlers.
			SetCursorIcon(CursorText)
			ReceiveFrameNanos(func(uint64) FrameControl { return Stop })
		})
	})

	d := newFrameDriver(t)
	d.tick(func() { field.Call(NoProps{}) })

	DispatchInput([]InputEvent{"a", "b"})
	assert.Equal(t, []string{"field:a", "field:b"}, received)
	assert.Equal(t, 1, receiverCount(), "handlers may register receivers")

	result := d.tick(func() { field.Call(NoProps{}) })
	assert.Equal(t, CursorText, result.WindowRequests.CursorIcon,
		"input-phase requests surface in the next frame result")
}

// TestInputHandlerPanicIsContained verifies one handler's panic does not
// stop delivery to the rest.
func TestInputHandlerPanicIsContained(t *testing.T) {
	var reports []PanicReport
	SetPanicHook(func(r PanicReport) { reports = append(reports, r) })
	t.Cleanup(func() { SetPanicHook(nil) })

	delivered := 0
	bad := Define("inputBad", func(NoProps) {
		OnInput(func(*InputHandlerInput) { panic("handler died") })
	})
	good := Define("inputGood", func(NoProps) {
		OnInput(func(*InputHandlerInput) { delivered++ })
	})

	d := newFrameDriver(t)
	d.tick(func() {
		bad.Call(NoProps{})
		good.Call(NoProps{})
	})

	DispatchInput([]InputEvent{"x"})
	assert.Equal(t, 1, delivered, "later handlers still run")
	require.Len(t, reports, 1)
	assert.Equal(t, "input handler", reports[0].Kind)
	assert.Equal(t, "inputBad", reports[0].ComponentName)
}

// TestInputWriteRebuildsReaderNextFrame verifies the write-before-Build
// ordering property for input handlers.
func TestInputWriteRebuildsReaderNextFrame(t *testing.T) {
	var observed []int
	var clicks State[int]
	button := Define("inputButton", func(NoProps) {
		clicks = Remember(func() int { return 0 })
		observed = append(observed, clicks.Get())
		OnInput(func(in *InputHandlerInput) {
			clicks.WithMut(func(v *int) { *v++ })
		})
	})

	d := newFrameDriver(t)
	d.tick(func() { button.Call(NoProps{}) })
	DispatchInput([]InputEvent{"click"})
	d.tick(func() { button.Call(NoProps{}) })

	assert.Equal(t, []int{0, 1}, observed,
		"a write before Build begins rebuilds the reader that frame")
}

// TestEmitOutsideRecordFails verifies op emission is Record-gated.
func TestEmitOutsideRecordFails(t *testing.T) {
	var ctx *RecordContext
	leak := Define("ctxLeak", func(NoProps) {
		Layout(fixedSpec{w: 1, h: 1})
		OnRecord(func(rc *RecordContext) { ctx = rc })
	})

	d := newFrameDriver(t)
	d.tick(func() { leak.Call(NoProps{}) })
	require.NotNil(t, ctx)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, ErrPhaseViolation)
	}()
	ctx.EmitDraw(testDrawOp{})
}
