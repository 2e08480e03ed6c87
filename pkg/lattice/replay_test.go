package lattice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bodyCounts tallies component body executions without touching slot
// state (slot reads would perturb the dirty tracking under test).
type bodyCounts map[string]int

func (b bodyCounts) bump(name string) { b[name]++ }

type idProps struct {
	ID string
}

func (p idProps) PropsEqual(other any) bool {
	o, ok := other.(idProps)
	return ok && o == p
}

// TestCleanSubtreeExecutesZeroTimes verifies the replay fast path: with
// unchanged props and a clean subtree, bodies do not run.
func TestCleanSubtreeExecutesZeroTimes(t *testing.T) {
	counts := bodyCounts{}
	child := Define("replayChild", func(idProps) {
		counts.bump("child")
	})
	parent := Define("replayParent", func(NoProps) {
		counts.bump("parent")
		child.Call(idProps{ID: "static"})
	})

	d := newFrameDriver(t)
	d.tick(func() { parent.Call(NoProps{}) })
	require.Equal(t, bodyCounts{"parent": 1, "child": 1}, counts)

	result := d.tick(func() { parent.Call(NoProps{}) })
	assert.Equal(t, bodyCounts{"parent": 1, "child": 1}, counts,
		"clean frame must execute zero bodies")
	assert.Equal(t, 1, result.Stats.SubtreesReused,
		"the parent subtree should be served by one splice")
	assert.Zero(t, result.Stats.BodiesExecuted)
}

// TestPropsChangeExecutesExactlyOnce verifies changed props rebuild the
// component exactly once per frame.
func TestPropsChangeExecutesExactlyOnce(t *testing.T) {
	counts := bodyCounts{}
	leaf := Define("onceLeaf", func(idProps) {
		counts.bump("leaf")
	})

	id := "a"
	d := newFrameDriver(t)
	d.tick(func() { leaf.Call(idProps{ID: id}) })
	id = "b"
	d.tick(func() { leaf.Call(idProps{ID: id}) })

	assert.Equal(t, 2, counts["leaf"], "one execution per frame, never more")
}

// TestDirtyPropagation is the A/B scenario: a write to a slot read by A
// rebuilds A on the next frame while B is replayed.
func TestDirtyPropagation(t *testing.T) {
	counts := bodyCounts{}
	var shared State[int]

	childA := Define("dirtyChildA", func(NoProps) {
		counts.bump("A")
		_ = shared.Get()
	})
	childB := Define("dirtyChildB", func(NoProps) {
		counts.bump("B")
	})
	parent := Define("dirtyParent", func(NoProps) {
		counts.bump("parent")
		shared = Remember(func() int { return 0 })
		childA.Call(NoProps{})
		childB.Call(NoProps{})
	})

	d := newFrameDriver(t)
	d.tick(func() { parent.Call(NoProps{}) })
	require.Equal(t, bodyCounts{"parent": 1, "A": 1, "B": 1}, counts)

	// External mutation between frames.
	shared.Set(42)

	d.tick(func() { parent.Call(NoProps{}) })
	assert.Equal(t, bodyCounts{"parent": 2, "A": 2, "B": 1}, counts,
		"parent and A rebuild, B is reused")
}

// TestKeyedIdentityStableUnderReorder is the keyed-list scenario: state
// sticks to item ids across reorder, and the structural change rebuilds
// the whole list on the following frame.
func TestKeyedIdentityStableUnderReorder(t *testing.T) {
	items := []string{"a", "b", "c"}
	handles := make(map[string]State[int])

	item := Define("reorderItem", func(p idProps) {
		h := RememberWith(p.ID, func() int { return 0 })
		h.WithMut(func(v *int) { *v++ })
		handles[p.ID] = h
	})
	list := Define("reorderList", func(p listPropsTest) {
		for _, id := range p.Items {
			Key(id, func() {
				item.Call(idProps{ID: id})
			})
		}
	})

	d := newFrameDriver(t)
	d.tick(func() { list.Call(listPropsTest{Items: items}) })
	assert.Equal(t, 1, handles["a"].Get())
	assert.Equal(t, 1, handles["b"].Get())
	assert.Equal(t, 1, handles["c"].Get())

	// Reorder: children are reused this frame, so values hold.
	items = []string{"c", "a", "b"}
	d.tick(func() { list.Call(listPropsTest{Items: items}) })
	assert.Equal(t, 1, handles["a"].Get(), "value sticks to id, not position")
	assert.Equal(t, 1, handles["b"].Get())
	assert.Equal(t, 1, handles["c"].Get())

	// The structural change lands in the next frame's rebuild set; every
	// item increments uniformly.
	d.tick(func() { list.Call(listPropsTest{Items: items}) })
	assert.Equal(t, 2, handles["a"].Get())
	assert.Equal(t, 2, handles["b"].Get())
	assert.Equal(t, 2, handles["c"].Get())
}

type listPropsTest struct {
	Items []string
}

func (p listPropsTest) PropsEqual(other any) bool {
	o, ok := other.(listPropsTest)
	if !ok || len(o.Items) != len(p.Items) {
		return false
	}
	for i := range p.Items {
		if o.Items[i] != p.Items[i] {
			return false
		}
	}
	return true
}

// TestExplicitInvalidateForcesSubtreeRebuild verifies Invalidate rebuilds
// the target and its descendants.
func TestExplicitInvalidateForcesSubtreeRebuild(t *testing.T) {
	counts := bodyCounts{}
	var parentKey uint64
	child := Define("invChild", func(NoProps) {
		counts.bump("child")
	})
	parent := Define("invParent", func(NoProps) {
		counts.bump("parent")
		parentKey = currentInstanceKey()
		child.Call(NoProps{})
	})

	d := newFrameDriver(t)
	d.tick(func() { parent.Call(NoProps{}) })
	d.tick(func() { parent.Call(NoProps{}) })
	require.Equal(t, bodyCounts{"parent": 1, "child": 1}, counts)

	Invalidate(parentKey)
	d.tick(func() { parent.Call(NoProps{}) })
	assert.Equal(t, bodyCounts{"parent": 2, "child": 2}, counts,
		"a node in the rebuild set rebuilds its entire subtree")
}

// TestReplaySnapshotDiscardedOnRemoval verifies a removed component gets
// a fresh full build when it returns.
func TestReplaySnapshotDiscardedOnRemoval(t *testing.T) {
	counts := bodyCounts{}
	mounted := true
	leaf := Define("removalLeaf", func(NoProps) {
		counts.bump("leaf")
	})
	keepAlive := Define("removalKeepAlive", func(NoProps) {
		rebuildEachFrame()
	})

	d := newFrameDriver(t)
	root := func() {
		keepAlive.Call(NoProps{})
		if mounted {
			leaf.Call(NoProps{})
		}
	}
	d.tick(root)
	mounted = false
	d.tick(root)
	mounted = true
	d.tick(root)

	assert.Equal(t, 2, counts["leaf"],
		"a remount after removal is a full build, not a replay")
}
