package lattice

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// componentTypeCounter disambiguates two Define calls that happen to use
// the same display name.
var componentTypeCounter atomic.Uint64

// ComponentDef is a registered component: a display name, a stable type
// id, and the typed body. Definitions are created once (package or app
// init) and invoked with Call during Build; the Call wrapper is what the
// runtime arranges around every body — establish identity, run the replay
// decision, execute or splice, snapshot, pop.
//
//	type CounterProps struct{ Step int }
//
//	func (p CounterProps) PropsEqual(other any) bool {
//	    o, ok := other.(CounterProps)
//	    return ok && o == p
//	}
//
//	var counter = lattice.Define("counter", func(p CounterProps) {
//	    n := lattice.Remember(func() int { return 0 })
//	    n.WithMut(func(v *int) { *v += p.Step })
//	})
//
//	// inside a Build root or a parent component body:
//	counter.Call(CounterProps{Step: 1})
type ComponentDef[P Props] struct {
	name   string
	typeID uint64
	body   func(P)
}

// Define registers a component body under a display name. The returned
// definition is safe for concurrent use; define it once and call it from
// any number of call sites.
func Define[P Props](name string, body func(P)) *ComponentDef[P] {
	return &ComponentDef[P]{
		name:   name,
		typeID: hashU64s(xxhash.Sum64String(name), componentTypeCounter.Add(1)),
		body:   body,
	}
}

// Name returns the component's display name.
func (c *ComponentDef[P]) Name() string { return c.name }

// Call invokes the component at the current call site during Build.
//
// The wrapper derives the identity triple for this call position, then
// decides between a full build and subtree reuse:
//
//  1. No snapshot for the instance key -> full build.
//  2. Snapshot's logic id differs -> full build.
//  3. Props unequal under the erased equality contract -> full build.
//  4. Instance key in the rebuild set, or an ancestor of a dirty
//     descendant -> the body executes (descendants decide individually).
//  5. Otherwise the previous frame's subtree is spliced under the current
//     parent and the body does not run.
//
// Call panics with PhaseViolation outside Build.
func (c *ComponentDef[P]) Call(props P) {
	ensurePhase(c.name, PhaseBuild)

	tree := engine.currentTree()
	if tree == nil {
		panic(&RuntimeInvariantError{Op: c.name, Detail: "no component tree; Call is only valid inside Tick's root closure"})
	}
	parent, ok := currentNodeID()
	if !ok {
		parent = tree.Root()
	}

	instanceLogicID := deriveInstanceLogicID(c.typeID)
	nodeID := tree.addChild(parent, c.name)
	defer pushInstanceContext(nodeID, instanceLogicID)()

	instanceKey := currentInstanceKey()
	tree.setIdentity(nodeID, instanceKey, instanceLogicID)
	node := tree.node(nodeID)
	node.groupPath = currentGroupPath()

	defer pushComponentInstanceKey(instanceKey)()

	prev, hasPrev := previousReplaySnapshot(instanceKey)
	propsMatch := hasPrev &&
		prev.instanceLogicID == instanceLogicID &&
		prev.replay.propsEqual(props)
	selfDirty := isInstanceKeyBuildDirty(instanceKey)
	forced := selfDirty || currentScope().forcedRebuildDepth > 0
	clean := !forced && !isInstanceKeySubtreeDirty(instanceKey)

	if propsMatch && clean {
		if prevTree := engine.previousTree(); prevTree != nil {
			if prevNode, ok := prevTree.nodeByInstanceKey(instanceKey); ok {
				node.replay = prev.replay
				node.propsUnchanged = true
				tree.spliceSubtree(prevTree, prevNode, nodeID)
				engine.noteComponentReplayed()
				return
			}
		}
	}

	// Full build. Keep the previous replay data when props are equal so the
	// snapshot (and its prop identity) stays stable across dirty rebuilds.
	var replay *ComponentReplayData
	if propsMatch {
		replay = prev.replay
		node.propsUnchanged = true
	} else {
		replay = newComponentReplayData(func(p Props) { c.body(p.(P)) }, props)
	}
	node.replay = replay

	parentKey := tree.node(parent).instanceKey
	recordReplaySnapshot(&replayNodeSnapshot{
		instanceKey:       instanceKey,
		parentInstanceKey: parentKey,
		instanceLogicID:   instanceLogicID,
		groupPath:         node.groupPath,
		fnName:            c.name,
		replay:            replay,
	})

	engine.noteComponentBuilt(instanceLogicID)

	// A node in the rebuild set rebuilds its entire subtree; descendants
	// skip the replay decision while the depth is positive.
	if selfDirty {
		st := currentScope()
		st.forcedRebuildDepth++
		defer func() { currentScope().forcedRebuildDepth-- }()
	}

	endScope := profilerHooks().BeginComponentScope(c.name, instanceKey)
	replay.run()
	endScope()

	finalizeNodeLayoutSpec(tree, node)
}

// finalizeNodeLayoutSpec records the node's final layout spec for the
// frame's spec-inequality comparison, assigning the default spec to nodes
// whose body declared none.
func finalizeNodeLayoutSpec(tree *ComponentTree, node *treeNode) {
	if node.layoutSpec == nil {
		node.layoutSpec = defaultSpec{}
	}
	recordLayoutSpecForFrame(node.instanceKey, node.layoutSpec)
}

// SetClip marks the current node's subtree for clipping during Record.
// Build-phase only.
func SetClip(clip bool) {
	ensurePhase("SetClip", PhaseBuild)
	mutateCurrentNode("SetClip", func(n *treeNode) { n.clip = clip })
}

// SetAccessibility attaches accessibility metadata to the current node.
// The core only records it; the host serializes the accessibility tree.
// Build-phase only.
func SetAccessibility(info AccessibilityInfo) {
	ensurePhase("SetAccessibility", PhaseBuild)
	mutateCurrentNode("SetAccessibility", func(n *treeNode) { n.access = info })
}

// mutateCurrentNode applies f to the node owning the executing body.
func mutateCurrentNode(api string, f func(n *treeNode)) {
	tree := engine.currentTree()
	nodeID, ok := currentNodeID()
	if tree == nil || !ok {
		panic(&RuntimeInvariantError{Op: api, Detail: "no current component node"})
	}
	f(tree.node(nodeID))
}
