package lattice

// InputEvent is an opaque host event delivered to registered input
// handlers. The core never interprets events; it only routes them through
// the tree in node order.
type InputEvent any

// InputHandlerInput is passed to every input handler during dispatch.
type InputHandlerInput struct {
	// Events are the host events accumulated since the last dispatch.
	Events []InputEvent
	// WindowWidth and WindowHeight are the current window dimensions.
	WindowWidth  int
	WindowHeight int
}

// OnInput registers an input handler on the current node. Build-phase
// only (registration; delivery happens in the Input phase). The host
// delivers events to the tree with DispatchInput before the next Build.
func OnInput(f func(in *InputHandlerInput)) {
	ensurePhase("OnInput", PhaseBuild)
	mutateCurrentNode("OnInput", func(n *treeNode) {
		n.inputFns = append(n.inputFns, f)
	})
}

// DispatchInput delivers host events to every input handler registered in
// the last built tree, in node insertion order.
//
// Handlers run in the Input phase with their component identity restored
// from the recorded node, so phase-gated Input APIs (ReceiveFrameNanos,
// SetCursorIcon, slot writes) behave exactly as they would during Build. A
// handler panic is reported through the panic hook and dispatch continues
// with the remaining handlers.
func DispatchInput(events []InputEvent) {
	engine.tickMu.Lock()
	defer engine.tickMu.Unlock()

	tree := engine.currentTree()
	if tree == nil {
		return
	}
	width, height := engine.windowSize()
	in := &InputHandlerInput{Events: events, WindowWidth: width, WindowHeight: height}

	defer pushPhase(PhaseInput)()
	tree.walk(tree.Root(), func(n *treeNode) {
		if len(n.inputFns) == 0 {
			return
		}
		withReplayScope(n.instanceLogicID, n.groupPath, func() {
			defer pushInstanceContext(n.id, n.instanceLogicID)()
			// Consume the one-shot override armed by the replay scope; input
			// runs against recorded identity, not derived call order.
			takeNextLogicIDOverride()
			defer pushComponentInstanceKey(n.instanceKey)()
			for _, f := range n.inputFns {
				func() {
					defer func() {
						if r := recover(); r != nil {
							reportRuntimePanic(PanicReport{
								Kind:          "input handler",
								ComponentName: n.fnName,
								InstanceKey:   n.instanceKey,
								Recovered:     r,
							})
						}
					}()
					f(in)
				}()
			}
		})
	})
}
