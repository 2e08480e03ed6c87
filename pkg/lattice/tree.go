package lattice

import (
	"reflect"

	mapset "github.com/deckarep/golang-set/v2"
)

// NodeID indexes a node within one frame's component tree. Ids are only
// meaningful within the tree that produced them; cross-frame identity goes
// through instance keys.
type NodeID int

// invalidNode marks "no node", e.g. the root's parent.
const invalidNode NodeID = -1

// AccessibilityInfo is the per-node hook into the host's accessibility
// tree. The core records it; serialization is the host's concern.
type AccessibilityInfo struct {
	Label string
	Role  string
}

// treeNode is the hierarchical record of one invoked component: identity,
// cached replay data, the declared layout spec, ordered children, and the
// auxiliary per-node state consumed by Measure, Record, and input
// delivery.
type treeNode struct {
	id       NodeID
	parent   NodeID
	children []NodeID

	instanceKey     uint64
	instanceLogicID uint64
	fnName          string

	layoutSpec     LayoutSpec
	replay         *ComponentReplayData
	propsUnchanged bool

	clip   bool
	access AccessibilityInfo

	// groupPath captures the control-flow path active at the call site so
	// identity can be restored outside Build (input delivery, receivers).
	groupPath []uint64

	provided map[reflect.Type]any

	recordFns []func(*RecordContext)
	inputFns  []func(*InputHandlerInput)
}

// ComponentTree is the per-frame hierarchy of invoked components, rooted
// at a synthetic wrapper node. Insertion order within a parent is
// preserved and mirrored by Measure and Record traversal order.
type ComponentTree struct {
	nodes []*treeNode
	root  NodeID
	byKey map[uint64]NodeID
}

func newComponentTree() *ComponentTree {
	t := &ComponentTree{byKey: make(map[uint64]NodeID)}
	root := &treeNode{id: 0, parent: invalidNode, fnName: "root"}
	t.nodes = append(t.nodes, root)
	t.root = 0
	t.byKey[0] = t.root
	return t
}

// Root returns the synthetic wrapper node.
func (t *ComponentTree) Root() NodeID { return t.root }

func (t *ComponentTree) node(id NodeID) *treeNode {
	if id < 0 || int(id) >= len(t.nodes) {
		panic(&RuntimeInvariantError{Op: "tree.node", Detail: "node id out of range"})
	}
	return t.nodes[id]
}

// addChild appends a fresh node under parent and returns its id.
func (t *ComponentTree) addChild(parent NodeID, fnName string) NodeID {
	n := &treeNode{
		id:     NodeID(len(t.nodes)),
		parent: parent,
		fnName: fnName,
	}
	t.nodes = append(t.nodes, n)
	p := t.node(parent)
	p.children = append(p.children, n.id)
	return n.id
}

// setIdentity writes the identity pair derived by the identity stack onto
// a node and indexes it for cross-frame lookup.
func (t *ComponentTree) setIdentity(id NodeID, instanceKey, instanceLogicID uint64) {
	n := t.node(id)
	n.instanceKey = instanceKey
	n.instanceLogicID = instanceLogicID
	t.byKey[instanceKey] = id
}

// nodeByInstanceKey resolves an instance key to this frame's node.
func (t *ComponentTree) nodeByInstanceKey(instanceKey uint64) (NodeID, bool) {
	id, ok := t.byKey[instanceKey]
	return id, ok
}

// children returns the ordered child ids of a node.
func (t *ComponentTree) children(id NodeID) []NodeID {
	return t.node(id).children
}

// parent returns the parent id, or invalidNode for the root.
func (t *ComponentTree) parent(id NodeID) NodeID {
	return t.node(id).parent
}

// walk visits the subtree under id pre-order, parent before children.
func (t *ComponentTree) walk(id NodeID, visit func(n *treeNode)) {
	n := t.node(id)
	visit(n)
	for _, child := range n.children {
		t.walk(child, visit)
	}
}

// childrenKeysByNode builds the structural snapshot consumed by the
// reconcile pass: for every node, the ordered instance keys of its
// children.
func (t *ComponentTree) childrenKeysByNode() map[uint64][]uint64 {
	out := make(map[uint64][]uint64, len(t.nodes))
	for _, n := range t.nodes {
		keys := make([]uint64, len(n.children))
		for i, child := range n.children {
			keys[i] = t.node(child).instanceKey
		}
		out[n.instanceKey] = keys
	}
	return out
}

// instanceKeySet collects every instance key in the tree, root included.
func (t *ComponentTree) instanceKeySet() mapset.Set[uint64] {
	keys := mapset.NewThreadUnsafeSet[uint64]()
	for _, n := range t.nodes {
		keys.Add(n.instanceKey)
	}
	return keys
}

// logicIDSet collects every instance logic id in the tree.
func (t *ComponentTree) logicIDSet() mapset.Set[uint64] {
	ids := mapset.NewThreadUnsafeSet[uint64]()
	for _, n := range t.nodes {
		ids.Add(n.instanceLogicID)
	}
	return ids
}

// spliceSubtree deep-copies the subtree rooted at src in prev into t under
// the already-created node dst. The reused descendants keep their
// identity, layout specs, replay data, record and input callbacks, and
// provided context values; only NodeIDs are reassigned to the new arena.
func (t *ComponentTree) spliceSubtree(prev *ComponentTree, src NodeID, dst NodeID) {
	srcNode := prev.node(src)
	dstNode := t.node(dst)

	dstNode.layoutSpec = srcNode.layoutSpec
	dstNode.clip = srcNode.clip
	dstNode.access = srcNode.access
	dstNode.groupPath = srcNode.groupPath
	dstNode.provided = srcNode.provided
	dstNode.recordFns = srcNode.recordFns
	dstNode.inputFns = srcNode.inputFns

	for _, prevChild := range srcNode.children {
		pc := prev.node(prevChild)
		childID := t.addChild(dst, pc.fnName)
		t.setIdentity(childID, pc.instanceKey, pc.instanceLogicID)
		child := t.node(childID)
		child.replay = pc.replay
		child.propsUnchanged = true
		t.spliceSubtree(prev, prevChild, childID)
	}
}
