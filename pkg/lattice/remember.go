package lattice

import "reflect"

// computeSlotKey derives the positional slot key for the next remember
// call at the current call site: the owning instance logic id plus a hash
// of (group path, user key, per-component remember counter).
func computeSlotKey(typ reflect.Type, key any) SlotKey {
	instanceLogicID := currentInstanceLogicID()
	groupPathHash := currentGroupPathHash()
	keyHash := hashKey(key)

	st := currentScope()
	counter := nextCounter("Remember", &st.rememberCounters)

	return SlotKey{
		InstanceLogicID: instanceLogicID,
		SlotHash:        hashU64s(groupPathHash, keyHash, counter),
		Type:            typ,
	}
}

func rememberImpl[T any](api string, key any, init func() T, retained bool) State[T] {
	ensurePhase(api, PhaseBuild)
	slotKey := computeSlotKey(reflect.TypeFor[T](), key)
	handle, generation := slots.lookupOrCreate(slotKey, func() any {
		v := init()
		return &v
	}, retained)
	return State[T]{slot: handle, generation: generation}
}

// Remember memoizes a value across frames by call position.
//
// The init function runs once, when the call site is first reached; every
// later frame returns a handle to the same slot. Identity is positional:
// the component's instance logic id, the active group path, and a
// per-component call counter. Two Remember calls in the same body get two
// slots; the same call reached through a different Key block gets its own
// slot.
//
//	func counterBody(p CounterProps) {
//	    n := lattice.Remember(func() int { return 0 })
//	    n.WithMut(func(v *int) { *v++ })
//	}
//
// State created with Remember is recycled when its component stops calling
// it; use Retain for state that must outlive unmounts.
//
// Remember must be called during Build; any other phase fails with
// PhaseViolation.
func Remember[T any](init func() T) State[T] {
	return rememberImpl("Remember", nil, init, false)
}

// RememberWith memoizes a value across frames under an explicit key.
//
// The key is hashed together with the group path and the component's
// remember-call counter, so distinct keys at the same call position get
// distinct slots. The key does not pin a slot across a change of call
// order: when the counter at which a key is remembered changes, the slot
// is not carried over and init runs again.
func RememberWith[T any](key any, init func() T) State[T] {
	return rememberImpl("RememberWith", key, init, false)
}

// Retain memoizes a value across frames by call position and marks the
// slot retained: it survives recycling and stale-instance cleanup even
// when the component unmounts. Scroll positions and route-scoped state are
// the intended use; the value reappears when the component is next built.
//
// Retention is per-slot, not per-component, so a body can freely mix
// Remember and Retain.
func Retain[T any](init func() T) State[T] {
	return rememberImpl("Retain", nil, init, true)
}

// RetainWith is Retain with an explicit key, for retained state allocated
// in loops or dynamic collections.
func RetainWith[T any](key any, init func() T) State[T] {
	return rememberImpl("RetainWith", key, init, true)
}
