package lattice

import "reflect"

// Provide makes a value available to the current subtree, keyed by its Go
// type. Descendants read it with Use.
//
// The provider's value lives in a context slot addressed through a
// dedicated call counter, so interleaving Provide with Remember never
// shifts either one's slot identity. On a full rebuild the provided value
// is re-evaluated; a replay-reused subtree inherits the recorded value
// verbatim.
//
// Build-phase only.
func Provide[T any](value T) {
	ensurePhase("Provide", PhaseBuild)

	st := currentScope()
	counter := nextCounter("Provide", &st.contextCounters)
	slotKey := SlotKey{
		InstanceLogicID: currentInstanceLogicID(),
		SlotHash:        hashU64s(currentGroupPathHash(), counter),
		Type:            reflect.TypeFor[T](),
	}
	handle, generation := slots.lookupOrCreate(slotKey, func() any {
		v := value
		return &v
	}, false)
	s := State[T]{slot: handle, generation: generation}
	// Refresh without publishing: context consumers re-read when they
	// themselves rebuild, they are not write-subscribers of the provider.
	s.setSilent(value)

	mutateCurrentNode("Provide", func(n *treeNode) {
		if n.provided == nil {
			n.provided = make(map[reflect.Type]any)
		}
		n.provided[reflect.TypeFor[T]()] = s
	})
}

// Use reads the nearest provided value of type T, walking from the
// current node up through its ancestors. The second result reports
// whether any provider was found.
//
// Build-phase only.
func Use[T any]() (T, bool) {
	ensurePhase("Use", PhaseBuild)

	var zero T
	tree := engine.currentTree()
	nodeID, ok := currentNodeID()
	if tree == nil || !ok {
		return zero, false
	}
	want := reflect.TypeFor[T]()
	for id := nodeID; id != invalidNode; id = tree.parent(id) {
		n := tree.node(id)
		if n.provided == nil {
			continue
		}
		if v, ok := n.provided[want]; ok {
			s := v.(State[T])
			return s.Get(), true
		}
	}
	return zero, false
}

// setSilent replaces the stored value without publishing the write to
// read-subscribers. Only the context layer uses it.
func (s State[T]) setSilent(value T) {
	ptr, lock := s.resolve()
	gid := getGoroutineID()
	lock.acquireWrite(gid, s.slot)
	defer lock.releaseWrite()
	*ptr = value
}
