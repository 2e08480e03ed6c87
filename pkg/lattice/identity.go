package lattice

import (
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
)

// scopeState holds every per-goroutine identity stack: the group path, the
// instance logic id chain, the per-component call counters, the key
// overrides, the execution phase stack, and the active build-dirty scope.
//
// One scopeState belongs to exactly one goroutine and is only ever touched
// from it, so no locking is needed inside the struct. The runtime is
// single-threaded per frame; helper goroutines never call build-time APIs
// and therefore never allocate one of these.
//
// The counter stacks for remember, context providers, child instances, and
// frame receivers are deliberately independent sequences. If they shared
// state, calling Provide between two Remember calls would shift the second
// Remember's slot identity.
type scopeState struct {
	// nodeStack mirrors the component tree nesting during a pass.
	nodeStack []NodeID
	// logicIDs is the instance logic id chain, parent first.
	logicIDs []uint64
	// groupPath is the ordered control-flow grouping, pushed by Key blocks.
	groupPath []uint64
	// keyOverrides carries the active Key hash for instance identity.
	keyOverrides []uint64
	// componentKeys is the stack of executing component instance keys. It
	// stays stable for a whole component body even when nested groups are
	// entered, so dependency ownership never shifts inside Key blocks.
	componentKeys []uint64

	rememberCounters []uint64
	contextCounters  []uint64
	instanceCounters []uint64
	receiverCounters []uint64

	phases []Phase

	// dirtyScopes stacks the active rebuild sets so nested recompositions
	// stay isolated.
	dirtyScopes []*dirtyScope

	// nextLogicIDOverride is a one-shot logic-id override consumed by the
	// next pushCurrentNode, used when identity must be restored from a
	// recorded snapshot instead of derived from call order.
	nextLogicIDOverride    uint64
	hasNextLogicIDOverride bool

	// forcedRebuildDepth is positive while executing inside a component
	// that is itself in the rebuild set; replay is disabled for the whole
	// subtree of such a component.
	forcedRebuildDepth int
}

// dirtyScope is one level of the rebuild-set stack consulted by the replay
// engine during Build.
type dirtyScope struct {
	// dirty holds instance keys that must fully rebuild.
	dirty mapset.Set[uint64]
	// subtree holds instance keys whose body must execute because some
	// descendant is dirty; the descendants themselves are reconsidered
	// individually.
	subtree mapset.Set[uint64]
}

// scopeRegistry maps goroutine ids to their scopeState. The atomic counter
// is a fast-path filter: when zero, no goroutine anywhere holds identity
// state and lookups can skip the (comparatively expensive) goroutine-id
// parse.
type scopeRegistry struct {
	states sync.Map // map[uint64]*scopeState
	active atomic.Int32
}

var scopes = &scopeRegistry{}

// currentScope returns the identity state for the calling goroutine,
// creating it on first use.
func currentScope() *scopeState {
	gid := getGoroutineID()
	if st, ok := scopes.states.Load(gid); ok {
		return st.(*scopeState)
	}
	st := &scopeState{}
	actual, loaded := scopes.states.LoadOrStore(gid, st)
	if !loaded {
		scopes.active.Add(1)
	}
	return actual.(*scopeState)
}

// peekScope returns the identity state for the calling goroutine without
// creating one.
func peekScope() (*scopeState, bool) {
	if scopes.active.Load() == 0 {
		return nil, false
	}
	st, ok := scopes.states.Load(getGoroutineID())
	if !ok {
		return nil, false
	}
	return st.(*scopeState), true
}

// releaseScopeIfIdle drops the goroutine's state once every stack has
// drained, so short-lived goroutines do not leak registry entries.
func releaseScopeIfIdle(st *scopeState) {
	if len(st.nodeStack) != 0 || len(st.logicIDs) != 0 || len(st.groupPath) != 0 ||
		len(st.keyOverrides) != 0 || len(st.componentKeys) != 0 ||
		len(st.phases) != 0 || len(st.dirtyScopes) != 0 || st.hasNextLogicIDOverride {
		return
	}
	gid := getGoroutineID()
	if _, ok := scopes.states.LoadAndDelete(gid); ok {
		scopes.active.Add(-1)
	}
}

// --- group path ---

func pushGroupID(groupID uint64) {
	st := currentScope()
	st.groupPath = append(st.groupPath, groupID)
}

func popGroupID(expectedGroupID uint64) {
	st := currentScope()
	if len(st.groupPath) == 0 {
		panic(&RuntimeInvariantError{Op: "popGroupID", Detail: "group path stack is empty"})
	}
	popped := st.groupPath[len(st.groupPath)-1]
	st.groupPath = st.groupPath[:len(st.groupPath)-1]
	if popped != expectedGroupID {
		panic(&RuntimeInvariantError{
			Op:     "popGroupID",
			Detail: "unbalanced group stack: popped id does not match the pushed id",
		})
	}
}

func currentGroupPath() []uint64 {
	st, ok := peekScope()
	if !ok {
		return nil
	}
	path := make([]uint64, len(st.groupPath))
	copy(path, st.groupPath)
	return path
}

func currentGroupPathHash() uint64 {
	st, ok := peekScope()
	if !ok {
		return hashGroupPath(nil)
	}
	return hashGroupPath(st.groupPath)
}

// --- key override ---

func pushKeyOverride(keyHash uint64) {
	st := currentScope()
	st.keyOverrides = append(st.keyOverrides, keyHash)
	// Key blocks reset sibling call order for the duration of the block.
	st.instanceCounters = append(st.instanceCounters, 0)
}

func popKeyOverride(keyHash uint64) {
	st := currentScope()
	if len(st.instanceCounters) == 0 {
		panic(&RuntimeInvariantError{Op: "popKeyOverride", Detail: "instance counter stack is empty"})
	}
	st.instanceCounters = st.instanceCounters[:len(st.instanceCounters)-1]
	if len(st.keyOverrides) == 0 {
		panic(&RuntimeInvariantError{Op: "popKeyOverride", Detail: "key override stack is empty"})
	}
	popped := st.keyOverrides[len(st.keyOverrides)-1]
	st.keyOverrides = st.keyOverrides[:len(st.keyOverrides)-1]
	if popped != keyHash {
		panic(&RuntimeInvariantError{Op: "popKeyOverride", Detail: "unbalanced key override stack"})
	}
}

func currentKeyOverride() (uint64, bool) {
	st, ok := peekScope()
	if !ok || len(st.keyOverrides) == 0 {
		return 0, false
	}
	return st.keyOverrides[len(st.keyOverrides)-1], true
}

// Key groups the execution of block under a stable user key.
//
// Use it in dynamic lists or loops where item order can change: state
// allocated inside the block sticks to the key, not to the call position.
//
//	for _, item := range items {
//	    lattice.Key(item.ID, func() {
//	        itemRow.Call(RowProps{Item: item})
//	    })
//	}
//
// Key blocks may appear anywhere during Build and nest arbitrarily. The
// group push and the identity override are both restored when the block
// returns, including on panic.
func Key(key any, block func()) {
	keyHash := hashKey(key)
	pushGroupID(keyHash)
	pushKeyOverride(keyHash)
	defer func() {
		popKeyOverride(keyHash)
		popGroupID(keyHash)
	}()
	block()
}

// --- node identity ---

// takeNextLogicIDOverride consumes the one-shot logic id override, if set.
func takeNextLogicIDOverride() (uint64, bool) {
	st := currentScope()
	if !st.hasNextLogicIDOverride {
		return 0, false
	}
	st.hasNextLogicIDOverride = false
	override := st.nextLogicIDOverride
	st.nextLogicIDOverride = 0
	return override, true
}

// deriveInstanceLogicID computes the stable logic id for the component
// being entered and advances the parent's sibling counter.
//
// The id combines the component type id, the parent's logic id, and the
// parent call index (salted by the active Key override) so that:
//  1. foo(); foo() at the same level get distinct ids via the call index.
//  2. The same component under different container instances gets distinct
//     ids via the parent logic id.
//  3. Keyed calls keep their id when list order changes.
func deriveInstanceLogicID(componentTypeID uint64) uint64 {
	st := currentScope()

	var parentCallIndex uint64
	if n := len(st.instanceCounters); n > 0 {
		parentCallIndex = st.instanceCounters[n-1]
		st.instanceCounters[n-1]++
	}
	var parentLogicID uint64
	if n := len(st.logicIDs); n > 0 {
		parentLogicID = st.logicIDs[n-1]
	}

	if override, ok := takeNextLogicIDOverride(); ok {
		return override
	}

	keyOverride, hasKey := currentKeyOverride()
	if parentCallIndex == 0 && parentLogicID == 0 && !hasKey {
		// Root component: its type id alone is the stable identity.
		return componentTypeID
	}
	salt := parentCallIndex
	if hasKey {
		salt = hashU64s(keyOverride, parentCallIndex)
	}
	return hashU64s(componentTypeID, parentLogicID, salt)
}

// pushInstanceContext pushes the logic id and a zeroed layer onto every
// per-component counter stack. The returned func pops everything; callers
// defer it so the stacks stay balanced even when a body panics.
func pushInstanceContext(nodeID NodeID, instanceLogicID uint64) func() {
	st := currentScope()
	st.nodeStack = append(st.nodeStack, nodeID)
	st.logicIDs = append(st.logicIDs, instanceLogicID)
	st.rememberCounters = append(st.rememberCounters, 0)
	st.contextCounters = append(st.contextCounters, 0)
	st.instanceCounters = append(st.instanceCounters, 0)
	st.receiverCounters = append(st.receiverCounters, 0)
	return popInstanceContext
}

func popInstanceContext() {
	st := currentScope()
	pop := func(name string, stack *[]uint64) {
		if len(*stack) == 0 {
			panic(&RuntimeInvariantError{Op: "popInstanceContext", Detail: name + " stack is empty"})
		}
		*stack = (*stack)[:len(*stack)-1]
	}
	if len(st.nodeStack) == 0 {
		panic(&RuntimeInvariantError{Op: "popInstanceContext", Detail: "node stack is empty"})
	}
	st.nodeStack = st.nodeStack[:len(st.nodeStack)-1]
	pop("logic id", &st.logicIDs)
	pop("remember counter", &st.rememberCounters)
	pop("context counter", &st.contextCounters)
	pop("instance counter", &st.instanceCounters)
	pop("receiver counter", &st.receiverCounters)
	releaseScopeIfIdle(st)
}

// currentNodeID returns the node at the top of the goroutine's component
// stack.
func currentNodeID() (NodeID, bool) {
	st, ok := peekScope()
	if !ok || len(st.nodeStack) == 0 {
		return 0, false
	}
	return st.nodeStack[len(st.nodeStack)-1], true
}

// currentInstanceLogicID returns the logic id of the executing component.
// It panics with a RuntimeInvariantError outside a component context.
func currentInstanceLogicID() uint64 {
	st, ok := peekScope()
	if !ok || len(st.logicIDs) == 0 {
		panic(&RuntimeInvariantError{Op: "currentInstanceLogicID", Detail: "no component context on this goroutine"})
	}
	return st.logicIDs[len(st.logicIDs)-1]
}

// currentInstanceKey derives the dirty-tracking key for the current call
// site: hash(instance logic id, group path).
func currentInstanceKey() uint64 {
	return hashU64s(currentInstanceLogicID(), currentGroupPathHash())
}

// --- component instance scope ---

// pushComponentInstanceKey records the instance key of the component whose
// body is executing. Unlike currentInstanceKey it does not shift when Key
// blocks are entered, so read-dependency ownership stays with the
// component.
func pushComponentInstanceKey(instanceKey uint64) func() {
	st := currentScope()
	st.componentKeys = append(st.componentKeys, instanceKey)
	return popComponentInstanceKey
}

func popComponentInstanceKey() {
	st := currentScope()
	if len(st.componentKeys) == 0 {
		panic(&RuntimeInvariantError{Op: "popComponentInstanceKey", Detail: "component instance stack is empty"})
	}
	st.componentKeys = st.componentKeys[:len(st.componentKeys)-1]
	releaseScopeIfIdle(st)
}

func componentInstanceKeyInScope() (uint64, bool) {
	st, ok := peekScope()
	if !ok || len(st.componentKeys) == 0 {
		return 0, false
	}
	return st.componentKeys[len(st.componentKeys)-1], true
}

// --- counters ---

// nextCounter bumps the top of one of the per-component counter stacks and
// returns the pre-increment value.
func nextCounter(api string, stack *[]uint64) uint64 {
	if len(*stack) == 0 {
		panic(&PhaseViolationError{API: api, Phase: currentPhase(), Allowed: []Phase{PhaseBuild}})
	}
	counter := (*stack)[len(*stack)-1]
	(*stack)[len(*stack)-1]++
	return counter
}

// --- dirty scope ---

// withBuildDirtyScope runs f with the given rebuild sets active for replay
// decisions. Nested calls stack; the inner scope wins.
func withBuildDirtyScope(dirty, subtree mapset.Set[uint64], f func()) {
	st := currentScope()
	st.dirtyScopes = append(st.dirtyScopes, &dirtyScope{dirty: dirty, subtree: subtree})
	defer func() {
		st := currentScope()
		if len(st.dirtyScopes) == 0 {
			panic(&RuntimeInvariantError{Op: "withBuildDirtyScope", Detail: "dirty scope stack underflow"})
		}
		st.dirtyScopes = st.dirtyScopes[:len(st.dirtyScopes)-1]
		releaseScopeIfIdle(st)
	}()
	f()
}

func isInstanceKeyBuildDirty(instanceKey uint64) bool {
	st, ok := peekScope()
	if !ok || len(st.dirtyScopes) == 0 {
		return false
	}
	return st.dirtyScopes[len(st.dirtyScopes)-1].dirty.Contains(instanceKey)
}

func isInstanceKeySubtreeDirty(instanceKey uint64) bool {
	st, ok := peekScope()
	if !ok || len(st.dirtyScopes) == 0 {
		return false
	}
	return st.dirtyScopes[len(st.dirtyScopes)-1].subtree.Contains(instanceKey)
}

// --- replay scope ---

// withReplayScope runs f with the group path restored from a recorded
// snapshot and a one-shot logic-id override armed for the next node push.
// Both are restored afterwards, including on panic. This is how identity is
// reconstructed outside normal call order, e.g. when input handlers run
// against nodes recorded in a previous Build.
func withReplayScope(instanceLogicID uint64, groupPath []uint64, f func()) {
	st := currentScope()

	prevPath := st.groupPath
	st.groupPath = append([]uint64(nil), groupPath...)

	prevOverride, hadOverride := st.nextLogicIDOverride, st.hasNextLogicIDOverride
	st.nextLogicIDOverride = instanceLogicID
	st.hasNextLogicIDOverride = true

	defer func() {
		st := currentScope()
		st.groupPath = prevPath
		st.nextLogicIDOverride = prevOverride
		st.hasNextLogicIDOverride = hadOverride
		releaseScopeIfIdle(st)
	}()
	f()
}
