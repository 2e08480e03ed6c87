package lattice

import (
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// FrameControl is the continuation decision of a frame-nanos receiver.
type FrameControl int

const (
	// Continue keeps the receiver registered for the next frame.
	Continue FrameControl = iota
	// Stop unregisters the receiver after the current tick.
	Stop
)

// frameReceiverKey addresses a receiver by call site: the owning instance
// logic id plus a hash of (group path, per-component receiver counter).
// Identical call positions across frames re-bind the same key, which is
// what makes registration idempotent.
type frameReceiverKey struct {
	instanceLogicID uint64
	receiverHash    uint64
}

type frameReceiver struct {
	ownerInstanceKey uint64
	callback         func(nanos uint64) FrameControl
}

// frameClockTracker is the per-frame time source plus the receiver map.
// Guarded by a single mutex; accessed from Build, Input, and the host's
// frame-clock update.
type frameClockTracker struct {
	mu sync.Mutex

	hasOrigin         bool
	frameOrigin       time.Time
	hasCurrent        bool
	currentFrameTime  time.Time
	currentFrameNanos uint64
	hasPrevious       bool
	previousFrameTime time.Time
	frameDelta        time.Duration

	receivers map[frameReceiverKey]*frameReceiver
}

var frameClock = &frameClockTracker{receivers: make(map[frameReceiverKey]*frameReceiver)}

// BeginFrameClock publishes the frame timestamp. The first call pins the
// runtime origin; every call updates the current frame time, the nanos
// since origin, and the delta since the previous frame. Hosts call it once
// per frame before TickReceivers; Tick does both internally.
func BeginFrameClock(now time.Time) {
	frameClock.mu.Lock()
	defer frameClock.mu.Unlock()
	if !frameClock.hasOrigin {
		frameClock.frameOrigin = now
		frameClock.hasOrigin = true
	}
	if frameClock.hasCurrent {
		frameClock.previousFrameTime = frameClock.currentFrameTime
		frameClock.hasPrevious = true
	}
	frameClock.currentFrameTime = now
	frameClock.hasCurrent = true
	if elapsed := now.Sub(frameClock.frameOrigin); elapsed > 0 {
		frameClock.currentFrameNanos = uint64(elapsed.Nanoseconds())
	} else {
		frameClock.currentFrameNanos = 0
	}
	if frameClock.hasPrevious {
		if delta := now.Sub(frameClock.previousFrameTime); delta > 0 {
			frameClock.frameDelta = delta
		} else {
			frameClock.frameDelta = 0
		}
	}
}

// CurrentFrameTime returns the timestamp of the current frame.
func CurrentFrameTime() (time.Time, bool) {
	frameClock.mu.Lock()
	defer frameClock.mu.Unlock()
	return frameClock.currentFrameTime, frameClock.hasCurrent
}

// CurrentFrameNanos returns the current frame timestamp in nanoseconds
// from the runtime origin.
func CurrentFrameNanos() uint64 {
	frameClock.mu.Lock()
	defer frameClock.mu.Unlock()
	return frameClock.currentFrameNanos
}

// FrameDelta returns the elapsed time since the previous frame.
func FrameDelta() time.Duration {
	frameClock.mu.Lock()
	defer frameClock.mu.Unlock()
	return frameClock.frameDelta
}

// TickReceivers invokes every registered receiver with the current frame
// nanos and removes those that return Stop. The receiver list is copied
// out before any callback runs, so receivers writing state (the normal
// case for animations) never mutate the map being iterated.
func TickReceivers() {
	frameClock.mu.Lock()
	nanos := frameClock.currentFrameNanos
	type pending struct {
		key      frameReceiverKey
		receiver *frameReceiver
	}
	batch := make([]pending, 0, len(frameClock.receivers))
	for key, receiver := range frameClock.receivers {
		batch = append(batch, pending{key: key, receiver: receiver})
	}
	frameClock.mu.Unlock()

	var stopped []frameReceiverKey
	for _, p := range batch {
		control := func() (c FrameControl) {
			defer func() {
				if r := recover(); r != nil {
					reportRuntimePanic(PanicReport{
						Kind:        "frame receiver",
						InstanceKey: p.receiver.ownerInstanceKey,
						Recovered:   r,
					})
					c = Stop
				}
			}()
			return p.receiver.callback(nanos)
		}()
		if control == Stop {
			stopped = append(stopped, p.key)
		}
	}

	if len(stopped) > 0 {
		frameClock.mu.Lock()
		for _, key := range stopped {
			delete(frameClock.receivers, key)
		}
		frameClock.mu.Unlock()
	}
}

// ReceiveFrameNanos registers a per-frame callback driven by the frame
// clock, keyed by the current call-site identity. Repeated calls from the
// same position keep the existing callback until it returns Stop, so a
// component re-registering every Build observes "already running"
// idempotence.
//
// Allowed during Build and Input. Receivers are cancelled when they return
// Stop, when their owning subtree is removed, and on runtime reset.
func ReceiveFrameNanos(callback func(nanos uint64) FrameControl) {
	ensurePhase("ReceiveFrameNanos", PhaseBuild, PhaseInput)

	owner, ok := componentInstanceKeyInScope()
	if !ok {
		panic(&RuntimeInvariantError{Op: "ReceiveFrameNanos", Detail: "no active component node context"})
	}

	instanceLogicID := currentInstanceLogicID()
	groupPathHash := currentGroupPathHash()
	st := currentScope()
	counter := nextCounter("ReceiveFrameNanos", &st.receiverCounters)
	key := frameReceiverKey{
		instanceLogicID: instanceLogicID,
		receiverHash:    hashU64s(groupPathHash, counter),
	}

	frameClock.mu.Lock()
	defer frameClock.mu.Unlock()
	if _, exists := frameClock.receivers[key]; exists {
		return
	}
	frameClock.receivers[key] = &frameReceiver{ownerInstanceKey: owner, callback: callback}
}

// hasPendingFrameReceivers reports whether any receiver wants another
// frame; the waker consults it at frame end.
func hasPendingFrameReceivers() bool {
	frameClock.mu.Lock()
	defer frameClock.mu.Unlock()
	return len(frameClock.receivers) > 0
}

func receiverCount() int {
	frameClock.mu.Lock()
	defer frameClock.mu.Unlock()
	return len(frameClock.receivers)
}

// removeFrameReceivers drops receivers owned by removed instance keys.
func removeFrameReceivers(instanceKeys mapset.Set[uint64]) {
	if instanceKeys.Cardinality() == 0 {
		return
	}
	frameClock.mu.Lock()
	defer frameClock.mu.Unlock()
	for key, receiver := range frameClock.receivers {
		if instanceKeys.Contains(receiver.ownerInstanceKey) {
			delete(frameClock.receivers, key)
		}
	}
}

func clearFrameReceivers() {
	frameClock.mu.Lock()
	defer frameClock.mu.Unlock()
	frameClock.receivers = make(map[frameReceiverKey]*frameReceiver)
}

func resetFrameClock() {
	frameClock.mu.Lock()
	defer frameClock.mu.Unlock()
	frameClock.hasOrigin = false
	frameClock.frameOrigin = time.Time{}
	frameClock.hasCurrent = false
	frameClock.currentFrameTime = time.Time{}
	frameClock.currentFrameNanos = 0
	frameClock.hasPrevious = false
	frameClock.previousFrameTime = time.Time{}
	frameClock.frameDelta = 0
	frameClock.receivers = make(map[frameReceiverKey]*frameReceiver)
}
