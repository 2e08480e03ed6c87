package lattice

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// Props is the erased-but-comparable contract every component prop type
// implements. Equality drives the replay decision: when a snapshot's props
// equal the incoming props and the subtree is clean, the previous subtree
// is reused instead of re-executing the body.
//
// Implementations must be frame-stable: comparing the same two values
// twice yields the same answer, and comparing against a value of a
// different type reports false.
//
//	type RowProps struct{ Label string }
//
//	func (p RowProps) PropsEqual(other any) bool {
//	    o, ok := other.(RowProps)
//	    return ok && o == p
//	}
type Props interface {
	PropsEqual(other any) bool
}

// NoProps is the prop type for components that take no inputs. Two NoProps
// values always compare equal, so such components replay whenever their
// subtree is clean.
type NoProps struct{}

// PropsEqual implements Props.
func (NoProps) PropsEqual(other any) bool {
	_, ok := other.(NoProps)
	return ok
}

// ComponentReplayData captures what is needed to re-run a component: a
// type-erased runner over the prop snapshot taken at registration time.
// The runner is the single execution path for component bodies; a full
// build invokes it too, so "replay" and "first run" cannot drift apart.
type ComponentReplayData struct {
	runner func(props Props)
	props  Props
}

// newComponentReplayData snapshots props behind an erased runner.
func newComponentReplayData(runner func(props Props), props Props) *ComponentReplayData {
	return &ComponentReplayData{runner: runner, props: props}
}

// run executes the component body against the captured prop snapshot.
func (d *ComponentReplayData) run() {
	d.runner(d.props)
}

// propsEqual reports whether the captured snapshot equals other.
func (d *ComponentReplayData) propsEqual(other Props) bool {
	return d.props.PropsEqual(other)
}

// replayNodeSnapshot is the persisted per-instance record consulted at the
// next frame's replay decision.
type replayNodeSnapshot struct {
	instanceKey       uint64
	parentInstanceKey uint64
	instanceLogicID   uint64
	groupPath         []uint64
	fnName            string
	replay            *ComponentReplayData
}

// componentReplayTracker holds the previous frame's snapshots and
// accumulates the current frame's. At frame end the current buffer merges
// into the previous one: with partial replay, reused components keep their
// prior snapshots while rebuilt ones overwrite.
type componentReplayTracker struct {
	mu       sync.RWMutex
	previous map[uint64]*replayNodeSnapshot
	current  map[uint64]*replayNodeSnapshot
}

var replayTracker = &componentReplayTracker{
	previous: make(map[uint64]*replayNodeSnapshot),
	current:  make(map[uint64]*replayNodeSnapshot),
}

func beginFrameReplayTracking() {
	replayTracker.mu.Lock()
	defer replayTracker.mu.Unlock()
	replayTracker.current = make(map[uint64]*replayNodeSnapshot)
}

// finalizeFrameReplayTrackingPartial merges the current buffer into the
// previous one.
func finalizeFrameReplayTrackingPartial() {
	replayTracker.mu.Lock()
	defer replayTracker.mu.Unlock()
	for key, snapshot := range replayTracker.current {
		replayTracker.previous[key] = snapshot
	}
	replayTracker.current = make(map[uint64]*replayNodeSnapshot)
}

func resetReplayTracking() {
	replayTracker.mu.Lock()
	defer replayTracker.mu.Unlock()
	replayTracker.previous = make(map[uint64]*replayNodeSnapshot)
	replayTracker.current = make(map[uint64]*replayNodeSnapshot)
}

func previousReplaySnapshot(instanceKey uint64) (*replayNodeSnapshot, bool) {
	replayTracker.mu.RLock()
	defer replayTracker.mu.RUnlock()
	snapshot, ok := replayTracker.previous[instanceKey]
	return snapshot, ok
}

func recordReplaySnapshot(snapshot *replayNodeSnapshot) {
	replayTracker.mu.Lock()
	defer replayTracker.mu.Unlock()
	replayTracker.current[snapshot.instanceKey] = snapshot
}

// removeReplaySnapshots purges snapshots for removed instance keys from
// both buffers.
func removeReplaySnapshots(instanceKeys mapset.Set[uint64]) {
	replayTracker.mu.Lock()
	defer replayTracker.mu.Unlock()
	for key := range replayTracker.previous {
		if instanceKeys.Contains(key) {
			delete(replayTracker.previous, key)
		}
	}
	for key := range replayTracker.current {
		if instanceKeys.Contains(key) {
			delete(replayTracker.current, key)
		}
	}
}
