package lattice

import (
	"fmt"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/lattice-ui/lattice/pkg/lattice/monitoring"
)

// runtimeEngine is the process-wide runtime container: the current and
// previous component trees, window state, per-frame bookkeeping, and the
// rebuild-set stash carried between frames. Frame execution is serialized
// by tickMu; the inner mutex guards field access from build-time APIs.
type runtimeEngine struct {
	tickMu sync.Mutex
	mu     sync.RWMutex

	tree     *ComponentTree
	prevTree *ComponentTree

	frameIndex   uint64
	windowWidth  int
	windowHeight int
	minimized    bool

	// activePhase mirrors the phase stack for abort reporting; the
	// goroutine-local stack has already unwound by the time a frame panic
	// is recovered.
	activePhase Phase

	windowRequests WindowRequests

	executedLogicIDs mapset.Set[uint64]
	builtCount       int
	replayedCount    int

	// nextFrameDirty accumulates the reconcile pass outputs (layout
	// self-dirty, structural changes) that join the next frame's rebuild
	// set.
	nextFrameDirty mapset.Set[uint64]
}

var engine = &runtimeEngine{
	executedLogicIDs: mapset.NewThreadUnsafeSet[uint64](),
	nextFrameDirty:   mapset.NewThreadUnsafeSet[uint64](),
}

func (e *runtimeEngine) currentTree() *ComponentTree {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tree
}

func (e *runtimeEngine) previousTree() *ComponentTree {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.prevTree
}

func (e *runtimeEngine) windowSize() (int, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.windowWidth, e.windowHeight
}

func (e *runtimeEngine) setActivePhase(p Phase) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activePhase = p
}

func (e *runtimeEngine) noteComponentBuilt(instanceLogicID uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executedLogicIDs.Add(instanceLogicID)
	e.builtCount++
}

func (e *runtimeEngine) noteComponentReplayed() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replayedCount++
}

// beginFrame rotates the trees and clears per-frame bookkeeping.
func (e *runtimeEngine) beginFrame() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prevTree = e.tree
	e.tree = newComponentTree()
	e.executedLogicIDs = mapset.NewThreadUnsafeSet[uint64]()
	e.builtCount = 0
	e.replayedCount = 0
}

func (e *runtimeEngine) takeWindowRequests() WindowRequests {
	e.mu.Lock()
	defer e.mu.Unlock()
	requests := e.windowRequests
	e.windowRequests = WindowRequests{}
	return requests
}

// SetWindowSize records the window dimensions in physical units. Hosts
// call it before ticking; specs see it as the root constraints.
func SetWindowSize(width, height int) {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	engine.windowWidth = width
	engine.windowHeight = height
}

// WindowSize returns the recorded window dimensions. Readable from any
// phase.
func WindowSize() (width, height int) {
	return engine.windowSize()
}

// SetMinimized toggles the minimized flag. While minimized, Tick still
// runs Build (state keeps advancing) but skips Measure and Record.
func SetMinimized(minimized bool) {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	engine.minimized = minimized
}

// FrameStats summarizes one frame for hosts and tests.
type FrameStats struct {
	// BodiesExecuted counts component bodies that ran this Build.
	BodiesExecuted int
	// SubtreesReused counts components served by replay splice.
	SubtreesReused int

	BuildDuration   time.Duration
	MeasureDuration time.Duration
	RecordDuration  time.Duration
}

// FrameResult is what Tick hands back to the host: the buffered GPU ops,
// the accumulated window requests, the measured root size, and frame
// statistics.
type FrameResult struct {
	FrameIndex     uint64
	Ops            FrameOps
	WindowRequests WindowRequests
	RootSize       ComputedSize
	Stats          FrameStats
}

// Tick runs one frame: clock publish, receiver tick, dirty-set merge,
// Build (with replay), reconcile and stale cleanup, Measure through the
// layout cache, and Record.
//
// The root closure is the user-authored entry point; it calls component
// definitions, which do the rest. Tick is the only way to drive the three
// phases, and calls are serialized.
//
// On an unrecovered panic the partial frame is discarded, the tree is
// cleared, the waker fires so the next input retries, and Tick returns a
// FrameAbortError without advancing the frame index. An unrecovered
// MeasurementError is returned as-is: build-side state stays consistent
// and the cache is untouched by the failed subtree.
func Tick(now time.Time, root func()) (result FrameResult, err error) {
	engine.tickMu.Lock()
	defer engine.tickMu.Unlock()

	engine.mu.RLock()
	frameIndex := engine.frameIndex
	minimized := engine.minimized
	width, height := engine.windowWidth, engine.windowHeight
	engine.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			err = abortFrame(frameIndex, r)
			result = FrameResult{FrameIndex: frameIndex}
		}
	}()

	consumeScheduledRedraw()
	BeginFrameClock(now)
	TickReceivers()

	hooks := profilerHooks()
	hooks.BeginFrame(frameIndex)

	// C9: merge state-write invalidations with the previous frame's
	// layout and structural dirt into the rebuild set.
	dirty := takeBuildInvalidations()
	engine.mu.Lock()
	dirty = dirty.Union(engine.nextFrameDirty)
	engine.nextFrameDirty = mapset.NewThreadUnsafeSet[uint64]()
	engine.mu.Unlock()

	prevTree := engine.currentTree()
	subtreeDirty := computeAncestorSubtreeDirty(prevTree, dirty)

	slots.beginEpoch()
	beginFrameWriteTracking()
	beginFrameReplayTracking()
	beginFrameLayoutDirtyTracking()
	engine.beginFrame()
	tree := engine.currentTree()

	buildStart := time.Now()
	engine.setActivePhase(PhaseBuild)
	endBuild := hooks.BeginPhaseScope(PhaseBuild)
	func() {
		defer pushPhase(PhaseBuild)()
		// The synthetic root carries the zeroth counter layers so sibling
		// call order exists for top-level components.
		defer pushInstanceContext(tree.Root(), 0)()
		withBuildDirtyScope(dirty, subtreeDirty, root)
	}()
	endBuild()
	buildDuration := time.Since(buildStart)

	finalizeFrameLayoutDirtyTracking()
	finalizeFrameReplayTrackingPartial()

	structChanged, removedKeys := reconcileStructure(tree.childrenKeysByNode())

	var removedLogicIDs mapset.Set[uint64]
	if prevTree != nil {
		removedLogicIDs = prevTree.logicIDSet().Difference(tree.logicIDSet())
	} else {
		removedLogicIDs = mapset.NewThreadUnsafeSet[uint64]()
	}
	staleCleanup(removedKeys, removedLogicIDs)

	engine.mu.RLock()
	executed := engine.executedLogicIDs
	built, replayed := engine.builtCount, engine.replayedCount
	engine.mu.RUnlock()
	slots.recycleForLogicIDs(executed)

	layoutSelfDirty := takeLayoutSelfDirty()
	engine.mu.Lock()
	engine.nextFrameDirty = engine.nextFrameDirty.Union(layoutSelfDirty).Union(structChanged)
	engine.mu.Unlock()

	var ops FrameOps
	var rootSize ComputedSize
	var measureDuration, recordDuration time.Duration
	if !minimized {
		// Self-dirty for Measure is the rebuild set, not "every body that
		// executed": an ancestor that re-ran only because a descendant was
		// dirty keeps its cached measurement as long as the dirt stays
		// behind a boundary and sizes hold.
		measureSelf := dirty.Union(layoutSelfDirty).Union(structChanged)
		measureDirty := propagateMeasureDirty(tree, measureSelf)
		measurements.evict(measureDirty)

		measureStart := time.Now()
		engine.setActivePhase(PhaseMeasure)
		endMeasure := hooks.BeginPhaseScope(PhaseMeasure)
		pass := newMeasurePass(tree, measureDirty)
		var measureErr error
		func() {
			defer pushPhase(PhaseMeasure)()
			rootSize, measureErr = pass.measureNode(tree.Root(), Constraints{MaxWidth: width, MaxHeight: height})
		}()
		endMeasure()
		measureDuration = time.Since(measureStart)
		if measureErr != nil {
			hooks.EndFrame(frameIndex)
			engine.mu.Lock()
			engine.frameIndex++
			engine.mu.Unlock()
			return FrameResult{FrameIndex: frameIndex}, measureErr
		}

		recordStart := time.Now()
		engine.setActivePhase(PhaseRecord)
		endRecord := hooks.BeginPhaseScope(PhaseRecord)
		rp := &recordPass{tree: tree, measured: pass}
		func() {
			defer pushPhase(PhaseRecord)()
			ops = rp.run(tree.Root())
		}()
		endRecord()
		recordDuration = time.Since(recordStart)
	}

	hooks.EndFrame(frameIndex)
	engine.setActivePhase(PhaseNone)

	metrics := monitoring.Global()
	metrics.RecordPhaseDuration("build", buildDuration)
	metrics.RecordPhaseDuration("measure", measureDuration)
	metrics.RecordPhaseDuration("record", recordDuration)
	metrics.RecordFrameComponents(built, replayed)
	metrics.RecordLiveSlots(slots.liveSlotCount())
	metrics.RecordFrameReceivers(receiverCount())

	// Animations need another frame even without state writes.
	if hasPendingFrameReceivers() {
		scheduleRuntimeRedraw()
	}

	engine.mu.Lock()
	engine.frameIndex++
	engine.mu.Unlock()

	return FrameResult{
		FrameIndex:     frameIndex,
		Ops:            ops,
		WindowRequests: engine.takeWindowRequests(),
		RootSize:       rootSize,
		Stats: FrameStats{
			BodiesExecuted:  built,
			SubtreesReused:  replayed,
			BuildDuration:   buildDuration,
			MeasureDuration: measureDuration,
			RecordDuration:  recordDuration,
		},
	}, nil
}

// staleCleanup purges every tracker of state owned by instances that left
// the tree: non-retained slots, read dependencies, frame receivers,
// replay snapshots, layout cache entries, spec history, and pending
// invalidations.
func staleCleanup(removedKeys, removedLogicIDs mapset.Set[uint64]) {
	if removedKeys.Cardinality() == 0 && removedLogicIDs.Cardinality() == 0 {
		return
	}
	slots.dropForLogicIDs(removedLogicIDs)
	removeStateReadDependencies(removedKeys)
	removeFrameReceivers(removedKeys)
	removeReplaySnapshots(removedKeys)
	measurements.drop(removedKeys)
	pruneLayoutTracking(removedKeys)
	removeBuildInvalidations(removedKeys)
}

// abortFrame discards the partial frame after a recovered panic: the tree
// is cleared, the current replay buffer is dropped, this goroutine's
// identity stacks are force-reset, and the waker fires so the next input
// retries. The frame index does not advance, which is how hosts observe
// persistent failure.
func abortFrame(frameIndex uint64, recovered any) error {
	engine.mu.RLock()
	phase := engine.activePhase
	engine.mu.RUnlock()

	cause, ok := recovered.(error)
	if !ok {
		cause = fmt.Errorf("panic: %v", recovered)
	}
	abort := &FrameAbortError{Frame: frameIndex, Phase: phase, Cause: cause}

	engine.mu.Lock()
	engine.tree = nil
	engine.prevTree = nil
	engine.activePhase = PhaseNone
	engine.mu.Unlock()
	beginFrameReplayTracking()

	gid := getGoroutineID()
	if _, loaded := scopes.states.LoadAndDelete(gid); loaded {
		scopes.active.Add(-1)
	}

	monitoring.Global().RecordFrameAbort()
	reportRuntimePanic(PanicReport{Kind: "frame", Phase: phase, Recovered: recovered})
	scheduleRuntimeRedraw()
	return abort
}

// Reset suspends the runtime: every slot, tracker, receiver, snapshot,
// and cache is dropped and the frame clock restarts from scratch. The
// next Tick behaves like the first.
func Reset() {
	engine.tickMu.Lock()
	defer engine.tickMu.Unlock()

	slots.reset()
	resetStateReadDependencies()
	resetBuildInvalidations()
	resetReplayTracking()
	resetLayoutDirtyTracking()
	measurements.reset()
	resetFrameClock()
	clearFrameReceivers()
	ClearRedrawWaker()

	engine.mu.Lock()
	engine.tree = nil
	engine.prevTree = nil
	engine.frameIndex = 0
	engine.minimized = false
	engine.windowRequests = WindowRequests{}
	engine.executedLogicIDs = mapset.NewThreadUnsafeSet[uint64]()
	engine.nextFrameDirty = mapset.NewThreadUnsafeSet[uint64]()
	engine.mu.Unlock()
}

// FrameIndex returns the index of the next frame to run. A host that sees
// the index stop advancing across redraws is observing persistent frame
// aborts.
func FrameIndex() uint64 {
	engine.mu.RLock()
	defer engine.mu.RUnlock()
	return engine.frameIndex
}
