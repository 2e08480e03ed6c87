package lattice

// CursorIcon is the cursor hint a component may request for the frame.
type CursorIcon int

const (
	CursorDefault CursorIcon = iota
	CursorPointer
	CursorText
	CursorGrab
	CursorGrabbing
	CursorResizeEW
	CursorResizeNS
	CursorNotAllowed
)

// WindowAction is a window-management request raised from the tree.
type WindowAction int

const (
	WindowActionNone WindowAction = iota
	WindowActionClose
	WindowActionMinimize
	WindowActionMaximize
	WindowActionToggleMaximize
	WindowActionDrag
)

// IMERequest asks the host to open an input-method editor anchored at a
// rectangle in window coordinates.
type IMERequest struct {
	Position Position
	Size     ComputedSize
}

// WindowRequests is the per-frame accumulation of host-facing requests,
// returned from Tick. Later writers win within a frame.
type WindowRequests struct {
	CursorIcon CursorIcon
	IME        *IMERequest
	Action     WindowAction
}

// SetCursorIcon requests a cursor icon for the frame. Allowed during Build
// and Input.
func SetCursorIcon(icon CursorIcon) {
	ensurePhase("SetCursorIcon", PhaseBuild, PhaseInput)
	engine.mu.Lock()
	defer engine.mu.Unlock()
	engine.windowRequests.CursorIcon = icon
}

// RequestIME asks the host to show the IME at the given rectangle.
// Allowed during Build and Input.
func RequestIME(req IMERequest) {
	ensurePhase("RequestIME", PhaseBuild, PhaseInput)
	engine.mu.Lock()
	defer engine.mu.Unlock()
	r := req
	engine.windowRequests.IME = &r
}

// RequestWindowAction raises a window-management action for the host to
// apply after the frame. Allowed during Build and Input.
func RequestWindowAction(action WindowAction) {
	ensurePhase("RequestWindowAction", PhaseBuild, PhaseInput)
	engine.mu.Lock()
	defer engine.mu.Unlock()
	engine.windowRequests.Action = action
}
