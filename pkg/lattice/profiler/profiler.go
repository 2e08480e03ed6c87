// Package profiler collects per-frame scope timings from the lattice
// runtime: build/measure/record durations, per-component body nanos, FPS
// statistics, and named operation timings. Sessions can be exported as
// JSON for external tooling; no report format is mandated by the core.
package profiler

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lattice-ui/lattice/pkg/lattice"
)

// DefaultFrameCapacity is how many frame records the profiler retains.
const DefaultFrameCapacity = 600

// ComponentSample is one component body execution within a frame.
type ComponentSample struct {
	Name        string `json:"name"`
	InstanceKey uint64 `json:"instance_key"`
	Nanos       int64  `json:"nanos"`
}

// FrameRecord is the captured timing of one frame.
type FrameRecord struct {
	FrameIndex uint64            `json:"frame_index"`
	Build      time.Duration     `json:"build_ns"`
	Measure    time.Duration     `json:"measure_ns"`
	Record     time.Duration     `json:"record_ns"`
	Total      time.Duration     `json:"total_ns"`
	Components []ComponentSample `json:"components,omitempty"`
}

// Profiler implements lattice.ProfilerHooks, retaining a bounded ring of
// frame records plus FPS and operation-timing statistics.
//
// The profiler is created disabled; all hook methods are cheap no-ops
// until Enable. Install wires it into the runtime:
//
//	p := profiler.New(0)
//	p.Install()
//	p.Enable()
type Profiler struct {
	enabled atomic.Bool

	mu         sync.Mutex
	sessionID  string
	startedAt  time.Time
	frames     []FrameRecord
	capacity   int
	next       int
	full       bool
	current    *FrameRecord
	frameStart time.Time

	fps     *FPSCalculator
	timings *TimingTracker

	logOut  io.Writer
	lastLog time.Time
}

// New creates a profiler retaining up to capacity frames; values <= 0 use
// DefaultFrameCapacity.
func New(capacity int) *Profiler {
	if capacity <= 0 {
		capacity = DefaultFrameCapacity
	}
	return &Profiler{
		sessionID: uuid.NewString(),
		startedAt: time.Now(),
		frames:    make([]FrameRecord, capacity),
		capacity:  capacity,
		fps:       NewFPSCalculator(),
		timings:   NewTimingTracker(),
	}
}

// Install registers this profiler as the runtime's hook sink.
func (p *Profiler) Install() {
	lattice.SetProfilerHooks(p)
}

// Enable starts collection.
func (p *Profiler) Enable() { p.enabled.Store(true) }

// Disable stops collection; retained data stays readable.
func (p *Profiler) Disable() { p.enabled.Store(false) }

// IsEnabled reports whether collection is active.
func (p *Profiler) IsEnabled() bool { return p.enabled.Load() }

// SessionID returns the unique id stamped on exports of this session.
func (p *Profiler) SessionID() string { return p.sessionID }

// BeginFrame implements lattice.ProfilerHooks.
func (p *Profiler) BeginFrame(frameIndex uint64) {
	if !p.enabled.Load() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = &FrameRecord{FrameIndex: frameIndex}
	p.frameStart = time.Now()
}

// SetLogWriter enables the per-second frame stats line (frame index,
// phase costs, FPS average), written at most once a second. Pass nil to
// disable.
func (p *Profiler) SetLogWriter(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logOut = w
}

// EndFrame implements lattice.ProfilerHooks.
func (p *Profiler) EndFrame(uint64) {
	if !p.enabled.Load() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return
	}
	p.current.Total = time.Since(p.frameStart)
	if seconds := p.current.Total.Seconds(); seconds > 0 {
		p.fps.AddSample(1.0 / seconds)
	}
	if p.logOut != nil && time.Since(p.lastLog) >= time.Second {
		p.lastLog = time.Now()
		fmt.Fprintf(p.logOut, "frame %d: build=%s measure=%s record=%s total=%s fps=%.1f\n",
			p.current.FrameIndex, p.current.Build, p.current.Measure,
			p.current.Record, p.current.Total, p.fps.GetAverage())
	}
	p.frames[p.next] = *p.current
	p.next++
	if p.next == p.capacity {
		p.next = 0
		p.full = true
	}
	p.current = nil
}

// BeginPhaseScope implements lattice.ProfilerHooks.
func (p *Profiler) BeginPhaseScope(phase lattice.Phase) func() {
	if !p.enabled.Load() {
		return func() {}
	}
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		p.timings.Record("phase."+phase.String(), elapsed)
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.current == nil {
			return
		}
		switch phase {
		case lattice.PhaseBuild:
			p.current.Build = elapsed
		case lattice.PhaseMeasure:
			p.current.Measure = elapsed
		case lattice.PhaseRecord:
			p.current.Record = elapsed
		}
	}
}

// BeginComponentScope implements lattice.ProfilerHooks.
func (p *Profiler) BeginComponentScope(name string, instanceKey uint64) func() {
	if !p.enabled.Load() {
		return func() {}
	}
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		p.timings.Record("component."+name, elapsed)
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.current == nil {
			return
		}
		p.current.Components = append(p.current.Components, ComponentSample{
			Name:        name,
			InstanceKey: instanceKey,
			Nanos:       elapsed.Nanoseconds(),
		})
	}
}

// Frames returns the retained frame records oldest-first.
func (p *Profiler) Frames() []FrameRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.full {
		out := make([]FrameRecord, p.next)
		copy(out, p.frames[:p.next])
		return out
	}
	out := make([]FrameRecord, 0, p.capacity)
	out = append(out, p.frames[p.next:]...)
	out = append(out, p.frames[:p.next]...)
	return out
}

// FPS returns the profiler's FPS calculator.
func (p *Profiler) FPS() *FPSCalculator { return p.fps }

// Timings returns the profiler's operation timing tracker.
func (p *Profiler) Timings() *TimingTracker { return p.timings }
