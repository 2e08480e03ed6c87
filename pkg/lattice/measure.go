package lattice

import (
	"errors"

	mapset "github.com/deckarep/golang-set/v2"
)

// measurePass walks the tree computing sizes through the layout cache. It
// owns the per-frame results (sizes and placements by node) that the
// Record pass consumes.
type measurePass struct {
	tree       *ComponentTree
	dirty      mapset.Set[uint64]
	sizes      map[NodeID]ComputedSize
	placements map[NodeID][]ChildPlacement
	// dirtyBelow marks every ancestor of a dirty node, with no boundary
	// stop: it does not invalidate their entries, it only tells a
	// cache-holding node which subtrees still need descending into.
	dirtyBelow mapset.Set[uint64]
	// changed marks nodes whose re-measurement produced a different output
	// size than their previous one. Parents use it to tell "child was
	// dirty but settled at the same size" apart from "child actually
	// changed size"; only the latter invalidates an entry above a
	// boundary.
	changed map[uint64]bool
}

func newMeasurePass(tree *ComponentTree, dirty mapset.Set[uint64]) *measurePass {
	m := &measurePass{
		tree:       tree,
		dirty:      dirty,
		sizes:      make(map[NodeID]ComputedSize),
		placements: make(map[NodeID][]ChildPlacement),
		dirtyBelow: mapset.NewThreadUnsafeSet[uint64](),
		changed:    make(map[uint64]bool),
	}
	for key := range dirty.Iter() {
		id, ok := tree.nodeByInstanceKey(key)
		if !ok {
			continue
		}
		for p := tree.parent(id); p != invalidNode; p = tree.parent(p) {
			parentKey := tree.node(p).instanceKey
			if !m.dirtyBelow.Add(parentKey) {
				break
			}
		}
	}
	return m
}

func (m *measurePass) specOf(n *treeNode) LayoutSpec {
	if n.layoutSpec == nil {
		return defaultSpec{}
	}
	return n.layoutSpec
}

// revalidateDirtyChildren descends from a cache-holding node into every
// direct child whose subtree holds dirt, re-measuring each under its
// cached constraints, and reports whether the node's entry is still
// valid: true when every such child settled at its previous output size.
// This is what lets a constraint-opaque boundary absorb dirtiness — the
// boundary re-measures, and as long as its size holds, ancestors above it
// are served from cache untouched.
//
// A child re-measure error is swallowed here: the entry is reported
// invalid and the parent's full measure re-encounters the error through
// its own spec, where the normal boundary recovery applies.
func (m *measurePass) revalidateDirtyChildren(id NodeID, entry *layoutCacheEntry) bool {
	valid := true
	for i, child := range m.tree.children(id) {
		childKey := m.tree.node(child).instanceKey
		if !m.dirty.Contains(childKey) && !m.dirtyBelow.Contains(childKey) {
			continue
		}
		if i >= len(entry.childMeasured) || !entry.childMeasured[i] {
			// The cached measurement never visited this child; there are no
			// constraints to replay it under.
			valid = false
			continue
		}
		if _, err := m.measureNode(child, entry.childConstraints[i]); err != nil {
			valid = false
			continue
		}
		if m.changed[childKey] {
			valid = false
		}
	}
	return valid
}

// adoptCachedSubtree restores descendant geometry from the cache when a
// node is served without a full re-measure. Nodes already measured this
// pass (revalidated subtrees) keep their fresh results.
func (m *measurePass) adoptCachedSubtree(id NodeID) {
	for _, child := range m.tree.children(id) {
		if _, ok := m.sizes[child]; ok {
			continue
		}
		key := m.tree.node(child).instanceKey
		if size, ok := measurements.lastSizeOf(key); ok {
			m.sizes[child] = size
		}
		if entry, ok := measurements.anyEntry(key); ok {
			m.placements[child] = entry.placements
		}
		m.adoptCachedSubtree(child)
	}
}

// measureNode measures one node under the given constraints, serving from
// the cache when sound.
//
// Direct hit: exact fingerprint match, node clean, and every dirt-holding
// child subtree revalidates to its previous size. Boundary hit:
// fingerprint differs but the spec opted into constraint-invariant
// sizing. Everything else re-invokes the spec, with child measurement
// recursing through this same cache-mediated path.
func (m *measurePass) measureNode(id NodeID, c Constraints) (ComputedSize, error) {
	node := m.tree.node(id)
	key := node.instanceKey
	spec := m.specOf(node)
	fp := fingerprintOf(c)

	if !m.dirty.Contains(key) {
		if entry, ok := measurements.lookup(key, fp); ok {
			if m.revalidateDirtyChildren(id, entry) {
				noteLayoutCacheDirectHit()
				m.sizes[id] = entry.size
				m.placements[id] = entry.placements
				m.adoptCachedSubtree(id)
				return entry.size, nil
			}
			noteLayoutCacheMiss(missChildSizeChanged)
		} else {
			if !m.dirtyBelow.Contains(key) {
				if invariant, ok := spec.(ConstraintInvariantSpec); ok && invariant.SizeInvariantUnderConstraints() {
					if entry, ok := measurements.anyEntry(key); ok {
						noteLayoutCacheBoundaryHit()
						m.sizes[id] = entry.size
						m.placements[id] = entry.placements
						m.adoptCachedSubtree(id)
						return entry.size, nil
					}
				}
			}
			if _, ok := measurements.anyEntry(key); ok {
				noteLayoutCacheMiss(missConstraintMismatch)
			} else {
				noteLayoutCacheMiss(missNoEntry)
			}
		}
	} else {
		noteLayoutCacheMiss(missSelfDirty)
	}

	children := m.tree.children(id)
	placements := make([]ChildPlacement, len(children))
	for i := range placements {
		placements[i] = ChildPlacement{Index: i}
	}
	childConstraints := make([]Constraints, len(children))
	childMeasured := make([]bool, len(children))
	in := &LayoutInput{
		Constraints: c,
		childCount:  len(children),
		measureChild: func(i int, cc Constraints) (ComputedSize, error) {
			if i < 0 || i >= len(children) {
				return ComputedSize{}, &MeasurementError{SpecName: spec.SpecName(), Reason: "child index out of range"}
			}
			childConstraints[i] = cc
			childMeasured[i] = true
			return m.measureNode(children[i], cc)
		},
		placeChild: func(i, x, y int) {
			if i >= 0 && i < len(placements) {
				placements[i].X = x
				placements[i].Y = y
			}
		},
	}

	size, err := spec.Measure(in)
	if err != nil {
		// A boundary spec may absorb a descendant failure here; otherwise
		// the error climbs without touching the cache for this node.
		if boundary, ok := spec.(MeasureFailureBoundary); ok {
			if recovered, handled := boundary.RecoverChildMeasure(err); handled {
				size = recovered
				err = nil
			}
		}
		if err != nil {
			var me *MeasurementError
			if !errors.As(err, &me) {
				err = &MeasurementError{SpecName: spec.SpecName(), Reason: "measure failed", Cause: err}
			}
			return ComputedSize{}, err
		}
	}

	sizeChanged := measurements.store(key, fp, &layoutCacheEntry{
		size:             size,
		placements:       placements,
		childConstraints: childConstraints,
		childMeasured:    childMeasured,
		clipped:          node.clip,
	})
	if sizeChanged {
		m.changed[key] = true
	}
	m.sizes[id] = size
	m.placements[id] = placements
	return size, nil
}
