package lattice

import (
	"fmt"
	"reflect"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// SlotHandle addresses one cell in the slot table. Handles are generational
// at the arena level: a freed cell bumps its version, so handles into freed
// cells never alias a later tenant.
type SlotHandle struct {
	index   uint32
	version uint32
}

// String formats the handle for diagnostics.
func (h SlotHandle) String() string {
	return fmt.Sprintf("slot(%d.%d)", h.index, h.version)
}

// SlotKey is the positional identity of a slot: the owning component's
// instance logic id, the slot hash (group path + user key + per-component
// call counter), and the stored Go type.
type SlotKey struct {
	InstanceLogicID uint64
	SlotHash        uint64
	Type            reflect.Type
}

// slotLock is a reader/writer lock that knows which goroutines hold it, so
// reentrant conflicting access fails with LockContention instead of
// deadlocking. Cross-goroutine contention blocks normally.
type slotLock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	readers map[uint64]int
	writer  uint64
	writing bool
}

func newSlotLock() *slotLock {
	l := &slotLock{readers: make(map[uint64]int)}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *slotLock) acquireRead(gid uint64, h SlotHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writing && l.writer == gid {
		panic(&LockContentionError{Slot: h, Mode: "read-while-write"})
	}
	for l.writing {
		l.cond.Wait()
	}
	l.readers[gid]++
}

func (l *slotLock) releaseRead(gid uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readers[gid]--
	if l.readers[gid] <= 0 {
		delete(l.readers, gid)
	}
	l.cond.Broadcast()
}

func (l *slotLock) acquireWrite(gid uint64, h SlotHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writing && l.writer == gid {
		panic(&LockContentionError{Slot: h, Mode: "write-while-write"})
	}
	if l.readers[gid] > 0 {
		panic(&LockContentionError{Slot: h, Mode: "write-while-read"})
	}
	for l.writing || len(l.readers) > 0 {
		l.cond.Wait()
	}
	l.writing = true
	l.writer = gid
}

func (l *slotLock) releaseWrite() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writing = false
	l.writer = 0
	l.cond.Broadcast()
}

// slotEntry is one cell of user state.
type slotEntry struct {
	key            SlotKey
	generation     uint64
	value          any // *T, nil until initialized
	lock           *slotLock
	lastAliveEpoch uint64
	retained       bool

	occupied bool
	version  uint32
}

// instanceSlotCursor remembers last frame's slot visitation order for one
// instance logic id, turning the common same-order case into O(1) indexed
// lookups with the key map as fallback.
type instanceSlotCursor struct {
	previousOrder []SlotHandle
	currentOrder  []SlotHandle
	cursor        int
	epoch         uint64
}

func (c *instanceSlotCursor) beginEpoch(epoch uint64) {
	if c.epoch == epoch {
		return
	}
	c.previousOrder = c.currentOrder
	c.currentOrder = nil
	c.cursor = 0
	c.epoch = epoch
}

func (c *instanceSlotCursor) fastCandidate() (SlotHandle, bool) {
	if c.cursor < len(c.previousOrder) {
		return c.previousOrder[c.cursor], true
	}
	return SlotHandle{}, false
}

func (c *instanceSlotCursor) recordFastMatch(slot SlotHandle) {
	c.cursor++
	c.currentOrder = append(c.currentOrder, slot)
}

func (c *instanceSlotCursor) recordSlowMatch(slot SlotHandle) {
	if c.cursor < len(c.previousOrder) {
		for offset, candidate := range c.previousOrder[c.cursor:] {
			if candidate == slot {
				c.cursor += offset + 1
				break
			}
		}
	}
	c.currentOrder = append(c.currentOrder, slot)
}

// slotTable is the process-wide positional memory. The outer RWMutex guards
// the arena and the lookup structures; value access goes through per-slot
// locks so independent slots do not contend.
type slotTable struct {
	mu       sync.RWMutex
	entries  []slotEntry
	freeList []uint32
	keyTo    map[SlotKey]SlotHandle
	cursors  map[uint64]*instanceSlotCursor
	epoch    uint64
}

var slots = newSlotTable()

func newSlotTable() *slotTable {
	return &slotTable{
		keyTo:   make(map[SlotKey]SlotHandle),
		cursors: make(map[uint64]*instanceSlotCursor),
	}
}

func (t *slotTable) beginEpoch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.epoch++
}

func (t *slotTable) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
	t.freeList = nil
	t.keyTo = make(map[SlotKey]SlotHandle)
	t.cursors = make(map[uint64]*instanceSlotCursor)
	t.epoch = 0
}

// entryAt resolves a handle under the caller-held lock. The bool reports
// whether the cell is live and the versions match.
func (t *slotTable) entryAt(h SlotHandle) (*slotEntry, bool) {
	if int(h.index) >= len(t.entries) {
		return nil, false
	}
	e := &t.entries[h.index]
	if !e.occupied || e.version != h.version {
		return nil, false
	}
	return e, true
}

// tryFastLookup consults the instance cursor for the next expected slot.
func (t *slotTable) tryFastLookup(key SlotKey) (SlotHandle, bool) {
	cursor, ok := t.cursors[key.InstanceLogicID]
	if !ok {
		cursor = &instanceSlotCursor{}
		t.cursors[key.InstanceLogicID] = cursor
	}
	cursor.beginEpoch(t.epoch)
	candidate, ok := cursor.fastCandidate()
	if !ok {
		return SlotHandle{}, false
	}
	entry, live := t.entryAt(candidate)
	if !live || entry.key != key {
		return SlotHandle{}, false
	}
	cursor.recordFastMatch(candidate)
	return candidate, true
}

func (t *slotTable) recordSlowUsage(instanceLogicID uint64, slot SlotHandle) {
	cursor, ok := t.cursors[instanceLogicID]
	if !ok {
		cursor = &instanceSlotCursor{}
		t.cursors[instanceLogicID] = cursor
	}
	cursor.beginEpoch(t.epoch)
	cursor.recordSlowMatch(slot)
}

func (t *slotTable) allocate(key SlotKey, value any, retained bool) SlotHandle {
	var idx uint32
	if n := len(t.freeList); n > 0 {
		idx = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
	} else {
		t.entries = append(t.entries, slotEntry{})
		idx = uint32(len(t.entries) - 1)
	}
	e := &t.entries[idx]
	e.key = key
	e.generation = 1
	e.value = value
	e.lock = newSlotLock()
	e.lastAliveEpoch = t.epoch
	e.retained = retained
	e.occupied = true
	h := SlotHandle{index: idx, version: e.version}
	t.keyTo[key] = h
	t.recordSlowUsage(key.InstanceLogicID, h)
	return h
}

func (t *slotTable) free(h SlotHandle) {
	e := &t.entries[h.index]
	delete(t.keyTo, e.key)
	*e = slotEntry{version: e.version + 1}
	t.freeList = append(t.freeList, h.index)
}

// lookupOrCreate is the shared body of Remember and Retain: fast-path
// cursor lookup first, key map fallback, allocation on miss. On a hit the
// entry's alive epoch is touched; a retained lookup upgrades the entry to
// retained.
func (t *slotTable) lookupOrCreate(key SlotKey, init func() any, retained bool) (SlotHandle, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	touch := func(h SlotHandle) uint64 {
		e := &t.entries[h.index]
		if e.key.Type != key.Type {
			panic(&HandleTypeMismatchError{Slot: h, Expected: key.Type, Stored: e.key.Type})
		}
		e.lastAliveEpoch = t.epoch
		if retained {
			e.retained = true
		}
		if e.value == nil {
			e.value = init()
			e.generation++
		}
		return e.generation
	}

	if h, ok := t.tryFastLookup(key); ok {
		return h, touch(h)
	}
	if h, ok := t.keyTo[key]; ok {
		t.recordSlowUsage(key.InstanceLogicID, h)
		return h, touch(h)
	}
	h := t.allocate(key, init(), retained)
	return h, 1
}

// recycleForLogicIDs frees non-retained slots of the given logic ids that
// were not touched this epoch. Callers pass the logic ids whose bodies
// actually executed this Build; reused subtrees never had the chance to
// touch their slots and must not be swept.
func (t *slotTable) recycleForLogicIDs(instanceLogicIDs mapset.Set[uint64]) {
	if instanceLogicIDs.Cardinality() == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		e := &t.entries[i]
		if !e.occupied || e.retained || e.lastAliveEpoch == t.epoch {
			continue
		}
		if !instanceLogicIDs.Contains(e.key.InstanceLogicID) {
			continue
		}
		t.free(SlotHandle{index: uint32(i), version: e.version})
	}
}

// dropForLogicIDs removes every non-retained slot owned by logic ids that
// left the tree. Retained slots survive subtree removal and route switches.
func (t *slotTable) dropForLogicIDs(instanceLogicIDs mapset.Set[uint64]) {
	if instanceLogicIDs.Cardinality() == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		e := &t.entries[i]
		if !e.occupied || e.retained {
			continue
		}
		if !instanceLogicIDs.Contains(e.key.InstanceLogicID) {
			continue
		}
		t.free(SlotHandle{index: uint32(i), version: e.version})
	}
	for id := range instanceLogicIDs.Iter() {
		delete(t.cursors, id)
	}
}

// liveLogicIDs reports the instance logic ids that still own slots.
func (t *slotTable) liveLogicIDs() mapset.Set[uint64] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := mapset.NewThreadUnsafeSet[uint64]()
	for i := range t.entries {
		if t.entries[i].occupied {
			ids.Add(t.entries[i].key.InstanceLogicID)
		}
	}
	return ids
}

func (t *slotTable) liveSlotCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries) - len(t.freeList)
}

// State is a handle to memoized state created by Remember, RememberWith,
// Retain, or RetainWith.
//
// A State is a small copyable value; it can be captured by closures,
// stored in props, and shared across frames. Access goes through With,
// WithMut, Get, and Set, which validate the slot generation so stale
// handles fail fast rather than silently aliasing recycled state.
//
//	count := lattice.Remember(func() int { return 0 })
//	count.WithMut(func(v *int) { *v++ })
//	current := count.Get()
type State[T any] struct {
	slot       SlotHandle
	generation uint64
}

// Slot returns the underlying handle, for diagnostics.
func (s State[T]) Slot() SlotHandle { return s.slot }

// Generation returns the generation this handle was captured at.
func (s State[T]) Generation() uint64 { return s.generation }

// resolve validates the handle and returns the typed value pointer plus
// the slot lock. The table lock is released before the slot lock is taken,
// so independent slots never contend on the table.
func (s State[T]) resolve() (*T, *slotLock) {
	slots.mu.RLock()
	entry, live := slots.entryAt(s.slot)
	if !live {
		slots.mu.RUnlock()
		panic(&HandleStaleError{Slot: s.slot, HandleGeneration: s.generation})
	}
	if entry.generation != s.generation {
		err := &HandleStaleError{Slot: s.slot, HandleGeneration: s.generation, SlotGeneration: entry.generation}
		slots.mu.RUnlock()
		panic(err)
	}
	want := reflect.TypeFor[T]()
	if entry.key.Type != want {
		err := &HandleTypeMismatchError{Slot: s.slot, Expected: want, Stored: entry.key.Type}
		slots.mu.RUnlock()
		panic(err)
	}
	value, ok := entry.value.(*T)
	lock := entry.lock
	slots.mu.RUnlock()
	if !ok {
		panic(&HandleTypeMismatchError{Slot: s.slot, Expected: want, Stored: reflect.TypeOf(entry.value).Elem()})
	}
	return value, lock
}

// With executes f with a shared view of the stored value. The value must
// not be mutated through the pointer; use WithMut for writes.
//
// During Build, With records a read dependency from the executing
// component to this slot, so later writes rebuild exactly the readers.
func (s State[T]) With(f func(v *T)) {
	trackStateRead(s.slot, s.generation)
	value, lock := s.resolve()
	gid := getGoroutineID()
	lock.acquireRead(gid, s.slot)
	defer lock.releaseRead(gid)
	f(value)
}

// WithMut executes f with exclusive access to the stored value and then
// publishes the write: every component that read this slot during the last
// Build is enqueued build-dirty for the next frame.
//
// Calling WithMut from inside this slot's own With closure fails with
// LockContention; the write-publish contract deliberately does not rebuild
// the writer within the same frame.
func (s State[T]) WithMut(f func(v *T)) {
	value, lock := s.resolve()
	gid := getGoroutineID()
	lock.acquireWrite(gid, s.slot)
	func() {
		defer lock.releaseWrite()
		f(value)
	}()
	publishStateWrite(s.slot, s.generation)
}

// Get returns a copy of the stored value.
func (s State[T]) Get() T {
	var out T
	s.With(func(v *T) { out = *v })
	return out
}

// Set replaces the stored value and publishes the write.
func (s State[T]) Set(value T) {
	s.WithMut(func(v *T) { *v = value })
}
