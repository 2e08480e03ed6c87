package lattice

import (
	"slices"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// layoutDirtyTracker compares each node's layout spec against the previous
// frame's and keeps the structural children snapshot for reconciliation.
// Spec inequality marks the owning node layout self-dirty; the ready set
// feeds the same frame's Measure dirty-prepare and the next frame's
// rebuild set.
type layoutDirtyTracker struct {
	mu               sync.Mutex
	previousSpecs    map[uint64]LayoutSpec
	frameSpecs       map[uint64]LayoutSpec
	pendingSelfDirty mapset.Set[uint64]
	readySelfDirty   mapset.Set[uint64]
	previousChildren map[uint64][]uint64
}

var layoutDirty = &layoutDirtyTracker{
	previousSpecs:    make(map[uint64]LayoutSpec),
	frameSpecs:       make(map[uint64]LayoutSpec),
	pendingSelfDirty: mapset.NewThreadUnsafeSet[uint64](),
	readySelfDirty:   mapset.NewThreadUnsafeSet[uint64](),
	previousChildren: make(map[uint64][]uint64),
}

// recordLayoutSpecForFrame records a built node's final spec and flags the
// node when it compares unequal to its previous recorded spec. Only nodes
// whose body executed are recorded. A node with no recorded history is
// not flagged: it was just built for the first time and has no cache
// entry to invalidate.
func recordLayoutSpecForFrame(instanceKey uint64, spec LayoutSpec) {
	if currentPhase() != PhaseBuild {
		return
	}
	layoutDirty.mu.Lock()
	defer layoutDirty.mu.Unlock()
	previous, ok := layoutDirty.previousSpecs[instanceKey]
	if ok && !previous.DynEq(spec) {
		layoutDirty.pendingSelfDirty.Add(instanceKey)
	}
	layoutDirty.frameSpecs[instanceKey] = spec
}

func beginFrameLayoutDirtyTracking() {
	layoutDirty.mu.Lock()
	defer layoutDirty.mu.Unlock()
	layoutDirty.frameSpecs = make(map[uint64]LayoutSpec)
	layoutDirty.pendingSelfDirty = mapset.NewThreadUnsafeSet[uint64]()
}

// finalizeFrameLayoutDirtyTracking publishes the pending set and merges
// the frame's specs into the previous map. Merging (not replacing) keeps
// spec history for nodes that were reused this frame, so a later rebuild
// with an unchanged spec does not oscillate dirty.
func finalizeFrameLayoutDirtyTracking() {
	layoutDirty.mu.Lock()
	defer layoutDirty.mu.Unlock()
	layoutDirty.readySelfDirty = layoutDirty.pendingSelfDirty
	layoutDirty.pendingSelfDirty = mapset.NewThreadUnsafeSet[uint64]()
	for key, spec := range layoutDirty.frameSpecs {
		layoutDirty.previousSpecs[key] = spec
	}
	layoutDirty.frameSpecs = make(map[uint64]LayoutSpec)
}

func takeLayoutSelfDirty() mapset.Set[uint64] {
	layoutDirty.mu.Lock()
	defer layoutDirty.mu.Unlock()
	ready := layoutDirty.readySelfDirty
	layoutDirty.readySelfDirty = mapset.NewThreadUnsafeSet[uint64]()
	return ready
}

// reconcileStructure diffs the current children-by-node snapshot against
// the previous frame's.
//
// A node is "changed" when it existed before with a different ordered
// child list; brand-new nodes were just built and need no extra dirt.
// Nodes present before and absent now are "removed" and feed stale
// cleanup.
func reconcileStructure(currentChildren map[uint64][]uint64) (changed, removed mapset.Set[uint64]) {
	layoutDirty.mu.Lock()
	defer layoutDirty.mu.Unlock()

	changed = mapset.NewThreadUnsafeSet[uint64]()
	removed = mapset.NewThreadUnsafeSet[uint64]()

	for node, children := range currentChildren {
		previous, ok := layoutDirty.previousChildren[node]
		if ok && !slices.Equal(previous, children) {
			changed.Add(node)
		}
	}
	for node := range layoutDirty.previousChildren {
		if _, ok := currentChildren[node]; !ok {
			removed.Add(node)
		}
	}

	layoutDirty.previousChildren = currentChildren
	return changed, removed
}

// pruneLayoutTracking forgets spec history for removed nodes.
func pruneLayoutTracking(instanceKeys mapset.Set[uint64]) {
	if instanceKeys.Cardinality() == 0 {
		return
	}
	layoutDirty.mu.Lock()
	defer layoutDirty.mu.Unlock()
	for key := range instanceKeys.Iter() {
		delete(layoutDirty.previousSpecs, key)
	}
}

func resetLayoutDirtyTracking() {
	layoutDirty.mu.Lock()
	defer layoutDirty.mu.Unlock()
	layoutDirty.previousSpecs = make(map[uint64]LayoutSpec)
	layoutDirty.frameSpecs = make(map[uint64]LayoutSpec)
	layoutDirty.pendingSelfDirty = mapset.NewThreadUnsafeSet[uint64]()
	layoutDirty.readySelfDirty = mapset.NewThreadUnsafeSet[uint64]()
	layoutDirty.previousChildren = make(map[uint64][]uint64)
}

// computeAncestorSubtreeDirty marks, for every dirty key, the chain of
// ancestors in the previous tree. Ancestors of a dirty descendant must
// execute their bodies (a spliced reuse would freeze the dirty descendant)
// while their own clean children remain individually reusable.
func computeAncestorSubtreeDirty(prev *ComponentTree, dirty mapset.Set[uint64]) mapset.Set[uint64] {
	subtree := mapset.NewThreadUnsafeSet[uint64]()
	if prev == nil || dirty.Cardinality() == 0 {
		return subtree
	}
	for key := range dirty.Iter() {
		id, ok := prev.nodeByInstanceKey(key)
		if !ok {
			continue
		}
		for p := prev.parent(id); p != invalidNode; p = prev.parent(p) {
			subtree.Add(prev.node(p).instanceKey)
		}
	}
	return subtree
}

// propagateMeasureDirty expands the self-dirty set upward for the Measure
// pass: each self-dirty node dirties its ancestors up to (and including)
// the nearest constraint-opaque boundary.
func propagateMeasureDirty(tree *ComponentTree, selfDirty mapset.Set[uint64]) mapset.Set[uint64] {
	dirty := selfDirty.Clone()
	for key := range selfDirty.Iter() {
		id, ok := tree.nodeByInstanceKey(key)
		if !ok {
			continue
		}
		for p := tree.parent(id); p != invalidNode; p = tree.parent(p) {
			node := tree.node(p)
			dirty.Add(node.instanceKey)
			if opaque, ok := node.layoutSpec.(ConstraintOpaqueSpec); ok && opaque.ConstraintOpaque() {
				break
			}
		}
	}
	return dirty
}
