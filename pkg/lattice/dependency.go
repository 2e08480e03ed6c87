package lattice

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// stateReadKey identifies one observed state cell. The generation stays in
// the key to avoid ABA when a slot is recycled and later reused for a
// different value.
type stateReadKey struct {
	slot       SlotHandle
	generation uint64
}

// readDependencyTracker records which component instance keys read which
// slots during Build, and answers "who do I invalidate" when a slot is
// written. It is the whole of the reactive system: components and slots
// form a bipartite graph, slots are passive, so no cycles can form.
type readDependencyTracker struct {
	mu             sync.RWMutex
	readersByState map[stateReadKey]mapset.Set[uint64]
	statesByReader map[uint64]mapset.Set[stateReadKey]
}

var readDeps = &readDependencyTracker{
	readersByState: make(map[stateReadKey]mapset.Set[uint64]),
	statesByReader: make(map[uint64]mapset.Set[stateReadKey]),
}

// trackStateRead records (slot, generation) -> reader for the component
// scope currently executing. Reads outside Build, or outside any component
// scope, are not tracked.
func trackStateRead(slot SlotHandle, generation uint64) {
	if currentPhase() != PhaseBuild {
		return
	}
	reader, ok := componentInstanceKeyInScope()
	if !ok {
		return
	}
	key := stateReadKey{slot: slot, generation: generation}

	readDeps.mu.Lock()
	defer readDeps.mu.Unlock()
	readers, ok := readDeps.readersByState[key]
	if !ok {
		readers = mapset.NewThreadUnsafeSet[uint64]()
		readDeps.readersByState[key] = readers
	}
	readers.Add(reader)
	states, ok := readDeps.statesByReader[reader]
	if !ok {
		states = mapset.NewThreadUnsafeSet[stateReadKey]()
		readDeps.statesByReader[reader] = states
	}
	states.Add(key)

	if wasWrittenThisFrame(key) {
		recordComponentInvalidation(reader)
	}
}

// frameWrittenSlots records cells written during the current Build. A
// component that reads a cell written earlier in the same frame is
// enqueued for the next frame: the write is published, this frame is not
// rebuilt, the next one is. (Immediate rebuild is explicitly disallowed;
// it could loop within a frame.)
var frameWritten = struct {
	mu    sync.Mutex
	slots map[stateReadKey]struct{}
}{slots: make(map[stateReadKey]struct{})}

func beginFrameWriteTracking() {
	frameWritten.mu.Lock()
	defer frameWritten.mu.Unlock()
	frameWritten.slots = make(map[stateReadKey]struct{})
}

func noteFrameWrite(key stateReadKey) {
	frameWritten.mu.Lock()
	defer frameWritten.mu.Unlock()
	frameWritten.slots[key] = struct{}{}
}

func wasWrittenThisFrame(key stateReadKey) bool {
	frameWritten.mu.Lock()
	defer frameWritten.mu.Unlock()
	_, ok := frameWritten.slots[key]
	return ok
}

// stateReadSubscribers returns the instance keys subscribed to a cell. The
// set is copied out so user-visible logic invoked afterwards cannot mutate
// what is being iterated.
func stateReadSubscribers(slot SlotHandle, generation uint64) []uint64 {
	key := stateReadKey{slot: slot, generation: generation}
	readDeps.mu.RLock()
	defer readDeps.mu.RUnlock()
	readers, ok := readDeps.readersByState[key]
	if !ok {
		return nil
	}
	return readers.ToSlice()
}

// publishStateWrite enqueues every subscriber of the written cell as
// build-dirty for the next frame. During Build the cell is also marked
// frame-written so later readers in the same pass self-enqueue.
func publishStateWrite(slot SlotHandle, generation uint64) {
	if currentPhase() == PhaseBuild {
		noteFrameWrite(stateReadKey{slot: slot, generation: generation})
	}
	for _, instanceKey := range stateReadSubscribers(slot, generation) {
		recordComponentInvalidation(instanceKey)
	}
}

// removeStateReadDependencies drops every dependency whose reader
// disappeared from the tree.
func removeStateReadDependencies(instanceKeys mapset.Set[uint64]) {
	if instanceKeys.Cardinality() == 0 {
		return
	}
	readDeps.mu.Lock()
	defer readDeps.mu.Unlock()
	for instanceKey := range instanceKeys.Iter() {
		states, ok := readDeps.statesByReader[instanceKey]
		if !ok {
			continue
		}
		delete(readDeps.statesByReader, instanceKey)
		for stateKey := range states.Iter() {
			readers, ok := readDeps.readersByState[stateKey]
			if !ok {
				continue
			}
			readers.Remove(instanceKey)
			if readers.Cardinality() == 0 {
				delete(readDeps.readersByState, stateKey)
			}
		}
	}
}

func resetStateReadDependencies() {
	readDeps.mu.Lock()
	defer readDeps.mu.Unlock()
	readDeps.readersByState = make(map[stateReadKey]mapset.Set[uint64])
	readDeps.statesByReader = make(map[uint64]mapset.Set[stateReadKey])
}

// buildInvalidationTracker accumulates instance keys that must rebuild on
// the next Build pass: state-write subscribers plus explicit Invalidate
// calls.
type buildInvalidationTracker struct {
	mu    sync.Mutex
	dirty mapset.Set[uint64]
}

var buildInvalidations = &buildInvalidationTracker{dirty: mapset.NewThreadUnsafeSet[uint64]()}

// recordComponentInvalidation marks one instance key build-dirty and fires
// the redraw waker if this is a new entry.
func recordComponentInvalidation(instanceKey uint64) {
	buildInvalidations.mu.Lock()
	inserted := buildInvalidations.dirty.Add(instanceKey)
	buildInvalidations.mu.Unlock()
	if inserted {
		scheduleRuntimeRedraw()
	}
}

// Invalidate schedules a rebuild of the component identified by
// instanceKey on the next frame, regardless of its props or state reads.
// Hosts use it to force a refresh from outside the reactive path.
func Invalidate(instanceKey uint64) {
	recordComponentInvalidation(instanceKey)
}

// takeBuildInvalidations drains the pending set.
func takeBuildInvalidations() mapset.Set[uint64] {
	buildInvalidations.mu.Lock()
	defer buildInvalidations.mu.Unlock()
	dirty := buildInvalidations.dirty
	buildInvalidations.dirty = mapset.NewThreadUnsafeSet[uint64]()
	return dirty
}

func removeBuildInvalidations(instanceKeys mapset.Set[uint64]) {
	if instanceKeys.Cardinality() == 0 {
		return
	}
	buildInvalidations.mu.Lock()
	defer buildInvalidations.mu.Unlock()
	buildInvalidations.dirty = buildInvalidations.dirty.Difference(instanceKeys)
}

func resetBuildInvalidations() {
	buildInvalidations.mu.Lock()
	defer buildInvalidations.mu.Unlock()
	buildInvalidations.dirty = mapset.NewThreadUnsafeSet[uint64]()
}

func hasPendingBuildInvalidations() bool {
	buildInvalidations.mu.Lock()
	defer buildInvalidations.mu.Unlock()
	return buildInvalidations.dirty.Cardinality() > 0
}
