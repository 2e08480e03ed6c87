package lattice

import "sync"

// ProfilerHooks is the optional per-frame instrumentation surface. The
// core calls it at frame boundaries, around each phase, and around each
// executed component body. The default implementation is a no-op; install
// a real one with SetProfilerHooks (the profiler package provides an
// adapter).
type ProfilerHooks interface {
	BeginFrame(frameIndex uint64)
	EndFrame(frameIndex uint64)
	// BeginPhaseScope starts a timing scope for one phase; the returned
	// func ends it.
	BeginPhaseScope(phase Phase) func()
	// BeginComponentScope starts a timing scope for one component body;
	// the returned func ends it.
	BeginComponentScope(name string, instanceKey uint64) func()
}

type noopProfilerHooks struct{}

func (noopProfilerHooks) BeginFrame(uint64)                     {}
func (noopProfilerHooks) EndFrame(uint64)                       {}
func (noopProfilerHooks) BeginPhaseScope(Phase) func()          { return func() {} }
func (noopProfilerHooks) BeginComponentScope(string, uint64) func() {
	return func() {}
}

var (
	profilerHooksMu sync.RWMutex
	installedHooks  ProfilerHooks = noopProfilerHooks{}
)

// SetProfilerHooks installs the profiler sink. Passing nil restores the
// no-op default.
func SetProfilerHooks(h ProfilerHooks) {
	profilerHooksMu.Lock()
	defer profilerHooksMu.Unlock()
	if h == nil {
		installedHooks = noopProfilerHooks{}
		return
	}
	installedHooks = h
}

func profilerHooks() ProfilerHooks {
	profilerHooksMu.RLock()
	defer profilerHooksMu.RUnlock()
	return installedHooks
}

// PanicReport describes a panic the runtime recovered on behalf of the
// host: a frame abort, a frame-receiver panic, or an input-handler panic.
type PanicReport struct {
	// Kind labels the recovery site: "frame", "frame receiver", "input
	// handler".
	Kind string
	// ComponentName names the owning component when known.
	ComponentName string
	// InstanceKey identifies the owning instance when known.
	InstanceKey uint64
	// Phase is the phase that was active when the panic surfaced.
	Phase Phase
	// Recovered is the raw panic value.
	Recovered any
}

var (
	panicHookMu sync.RWMutex
	panicHook   func(PanicReport)
)

// SetPanicHook installs the error-reporting callback invoked for every
// recovered runtime panic. The observability package wires its reporters
// through this hook; when unset, a frame abort is reflected only in
// Tick's returned error, and recovered receiver and input-handler panics
// are not reported anywhere.
func SetPanicHook(f func(PanicReport)) {
	panicHookMu.Lock()
	defer panicHookMu.Unlock()
	panicHook = f
}

func reportRuntimePanic(report PanicReport) {
	if report.Phase == PhaseNone {
		report.Phase = currentPhase()
	}
	panicHookMu.RLock()
	hook := panicHook
	panicHookMu.RUnlock()
	if hook != nil {
		hook(report)
	}
}
