package lattice

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/lattice-ui/lattice/pkg/lattice/monitoring"
)

// constraintFingerprint is the cache key component derived from incoming
// constraints: min/max along each axis.
type constraintFingerprint struct {
	minW, maxW, minH, maxH int
}

func fingerprintOf(c Constraints) constraintFingerprint {
	return constraintFingerprint{minW: c.MinWidth, maxW: c.MaxWidth, minH: c.MinHeight, maxH: c.MaxHeight}
}

// layoutCacheEntry memoizes one measurement: the computed size, the child
// placements relative to the node, the constraints each child was
// measured under (so a dirty child can be revalidated without re-running
// the parent spec), and whether the subtree required clipping at the time
// of caching.
type layoutCacheEntry struct {
	size             ComputedSize
	placements       []ChildPlacement
	childConstraints []Constraints
	childMeasured    []bool
	clipped          bool
}

// layoutCacheMissReason labels why a lookup did not direct-hit, for
// telemetry.
type layoutCacheMissReason int

const (
	missNoEntry layoutCacheMissReason = iota
	missConstraintMismatch
	missSelfDirty
	missChildSizeChanged
)

func (r layoutCacheMissReason) String() string {
	switch r {
	case missNoEntry:
		return "no_entry"
	case missConstraintMismatch:
		return "constraint_mismatch"
	case missSelfDirty:
		return "self_dirty"
	case missChildSizeChanged:
		return "child_size_changed"
	default:
		return "unknown"
	}
}

// layoutCache is the process-wide memoized measurement store, keyed by
// node instance key plus constraint fingerprint. Entries survive across
// frames until invalidated by the dirty-prepare step or stale cleanup.
type layoutCache struct {
	mu      sync.RWMutex
	entries map[uint64]map[constraintFingerprint]*layoutCacheEntry
	// lastSize remembers each node's most recent measured size so child
	// output changes can be detected by parents.
	lastSize map[uint64]ComputedSize
}

var measurements = &layoutCache{
	entries:  make(map[uint64]map[constraintFingerprint]*layoutCacheEntry),
	lastSize: make(map[uint64]ComputedSize),
}

// lookup returns the entry for an exact (node, fingerprint) match.
func (c *layoutCache) lookup(instanceKey uint64, fp constraintFingerprint) (*layoutCacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byFP, ok := c.entries[instanceKey]
	if !ok {
		return nil, false
	}
	entry, ok := byFP[fp]
	return entry, ok
}

// anyEntry returns an arbitrary cached entry for the node, used by
// boundary hits where the fingerprint differs but the size is declared
// constraint-invariant.
func (c *layoutCache) anyEntry(instanceKey uint64) (*layoutCacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, entry := range c.entries[instanceKey] {
		return entry, true
	}
	return nil, false
}

// lastSizeOf returns the node's most recent measured size.
func (c *layoutCache) lastSizeOf(instanceKey uint64) (ComputedSize, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	size, ok := c.lastSize[instanceKey]
	return size, ok
}

// store writes a measurement back and reports whether the node's output
// size changed relative to its previous measurement.
func (c *layoutCache) store(instanceKey uint64, fp constraintFingerprint, entry *layoutCacheEntry) (sizeChanged bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byFP, ok := c.entries[instanceKey]
	if !ok {
		byFP = make(map[constraintFingerprint]*layoutCacheEntry)
		c.entries[instanceKey] = byFP
	}
	byFP[fp] = entry
	previous, had := c.lastSize[instanceKey]
	c.lastSize[instanceKey] = entry.size
	return !had || previous != entry.size
}

// evict drops every entry for the given nodes; the next measurement is a
// guaranteed miss.
func (c *layoutCache) evict(instanceKeys mapset.Set[uint64]) {
	if instanceKeys.Cardinality() == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range instanceKeys.Iter() {
		delete(c.entries, key)
	}
}

// drop removes entries and size history for removed nodes.
func (c *layoutCache) drop(instanceKeys mapset.Set[uint64]) {
	if instanceKeys.Cardinality() == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range instanceKeys.Iter() {
		delete(c.entries, key)
		delete(c.lastSize, key)
	}
}

func (c *layoutCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]map[constraintFingerprint]*layoutCacheEntry)
	c.lastSize = make(map[uint64]ComputedSize)
}

// telemetry wrappers; the metrics backend is pluggable and defaults to a
// no-op.

func noteLayoutCacheDirectHit() {
	monitoring.Global().RecordLayoutCacheHit("direct")
}

func noteLayoutCacheBoundaryHit() {
	monitoring.Global().RecordLayoutCacheHit("boundary")
}

func noteLayoutCacheMiss(reason layoutCacheMissReason) {
	monitoring.Global().RecordLayoutCacheMiss(reason.String())
}
