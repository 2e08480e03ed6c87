package profiler

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-ui/lattice/pkg/lattice"
)

// TestProfilerCapturesFrameScopes verifies frames driven through the
// runtime land in the ring with phase and component timings.
func TestProfilerCapturesFrameScopes(t *testing.T) {
	lattice.Reset()
	t.Cleanup(lattice.Reset)
	lattice.SetWindowSize(100, 100)

	p := New(8)
	p.Install()
	t.Cleanup(func() { lattice.SetProfilerHooks(nil) })
	p.Enable()

	busy := lattice.Define("profiledBusy", func(lattice.NoProps) {
		n := lattice.Remember(func() int { return 0 })
		n.WithMut(func(v *int) { *v++ })
		_ = n.Get()
	})

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		now = now.Add(16 * time.Millisecond)
		_, err := lattice.Tick(now, func() { busy.Call(lattice.NoProps{}) })
		require.NoError(t, err)
	}

	frames := p.Frames()
	require.Len(t, frames, 3)
	assert.Equal(t, uint64(0), frames[0].FrameIndex)
	assert.NotEmpty(t, frames[0].Components, "component scopes are captured")
	assert.Equal(t, "profiledBusy", frames[0].Components[0].Name)

	stats, ok := p.Timings().GetStats("component.profiledBusy")
	require.True(t, ok)
	assert.Equal(t, int64(3), stats.Count, "self-dirty counter reruns every frame")

	_, ok = p.Timings().GetStats("phase.Build")
	assert.True(t, ok)
}

// TestProfilerDisabledIsSilent verifies no frames are recorded while
// disabled.
func TestProfilerDisabledIsSilent(t *testing.T) {
	p := New(4)
	p.BeginFrame(1)
	p.BeginPhaseScope(lattice.PhaseBuild)()
	p.EndFrame(1)
	assert.Empty(t, p.Frames())
}

// TestFrameRingEvictsOldest verifies the bounded ring keeps the newest
// frames.
func TestFrameRingEvictsOldest(t *testing.T) {
	p := New(2)
	p.Enable()
	for i := uint64(0); i < 4; i++ {
		p.BeginFrame(i)
		p.EndFrame(i)
	}
	frames := p.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, uint64(2), frames[0].FrameIndex)
	assert.Equal(t, uint64(3), frames[1].FrameIndex)
}

// TestExportJSONRoundTrips verifies the session export decodes with the
// expected identity and content.
func TestExportJSONRoundTrips(t *testing.T) {
	p := New(4)
	p.Enable()
	p.BeginFrame(0)
	p.BeginPhaseScope(lattice.PhaseBuild)()
	p.EndFrame(0)
	p.Timings().Record("component.widget", 3*time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, p.ExportJSON(&buf))

	var decoded SessionExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, p.SessionID(), decoded.SessionID)
	assert.Len(t, decoded.Frames, 1)
	assert.Contains(t, decoded.Operations, "component.widget")
}

// TestFrameStatsLogThrottled verifies the once-a-second stats line.
func TestFrameStatsLogThrottled(t *testing.T) {
	p := New(4)
	p.Enable()
	var buf bytes.Buffer
	p.SetLogWriter(&buf)

	p.BeginFrame(0)
	p.EndFrame(0)
	p.BeginFrame(1)
	p.EndFrame(1)

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"),
		"stats are throttled to one line per second")
	assert.Contains(t, buf.String(), "frame 0")
}

// TestFPSCalculatorStatistics covers the window statistics.
func TestFPSCalculatorStatistics(t *testing.T) {
	fc := NewFPSCalculatorWithWindowSize(4)
	for _, s := range []float64{60, 30, 60, 90} {
		fc.AddSample(s)
	}

	assert.InDelta(t, 60.0, fc.GetAverage(), 0.001)
	assert.Equal(t, 30.0, fc.GetMin())
	assert.Equal(t, 90.0, fc.GetMax())
	assert.Equal(t, 60.0, fc.GetPercentile(50))

	// Window slides: the oldest sample is evicted.
	fc.AddSample(120)
	assert.Equal(t, 4, fc.SampleCount())
	assert.Equal(t, 30.0, fc.GetMin())
}

// TestTimingTrackerPercentiles covers recording and snapshotting.
func TestTimingTrackerPercentiles(t *testing.T) {
	tt := NewTimingTracker()
	for i := 1; i <= 100; i++ {
		tt.Record("op", time.Duration(i)*time.Millisecond)
	}

	stats, ok := tt.GetStats("op")
	require.True(t, ok)
	assert.Equal(t, int64(100), stats.Count)
	assert.Equal(t, time.Millisecond, stats.Min)
	assert.Equal(t, 100*time.Millisecond, stats.Max)
	assert.InDelta(t, float64(50*time.Millisecond), float64(stats.P50), float64(2*time.Millisecond))
	assert.InDelta(t, float64(95*time.Millisecond), float64(stats.P95), float64(2*time.Millisecond))

	_, ok = tt.GetStats("missing")
	assert.False(t, ok)
}
