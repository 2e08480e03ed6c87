package lattice

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// hashU64s combines 64-bit identity parts into a single 64-bit hash.
// All identity derivation (instance logic ids, instance keys, group path
// hashes, slot hashes) funnels through this function so the combining rule
// stays uniform across the runtime.
func hashU64s(parts ...uint64) uint64 {
	var d xxhash.Digest
	d.Reset()
	var buf [8]byte
	for _, part := range parts {
		binary.LittleEndian.PutUint64(buf[:], part)
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

// hashGroupPath hashes the ordered group path. The empty path hashes to a
// fixed, non-zero value so "no groups" is still a distinct identity input.
func hashGroupPath(path []uint64) uint64 {
	var d xxhash.Digest
	d.Reset()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(path)))
	_, _ = d.Write(buf[:])
	for _, id := range path {
		binary.LittleEndian.PutUint64(buf[:], id)
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

// hashKey hashes a user-provided key value. Common key types hash their
// raw representation directly; everything else falls back to the Go-syntax
// representation, which is stable for comparable values across frames.
func hashKey(key any) uint64 {
	switch k := key.(type) {
	case nil:
		return hashU64s(0x9e3779b97f4a7c15)
	case string:
		return xxhash.Sum64String(k)
	case int:
		return hashU64s(1, uint64(k))
	case int64:
		return hashU64s(1, uint64(k))
	case uint64:
		return hashU64s(2, k)
	case uint32:
		return hashU64s(2, uint64(k))
	case bool:
		if k {
			return hashU64s(3, 1)
		}
		return hashU64s(3, 0)
	case float64:
		return hashU64s(4, math.Float64bits(k))
	default:
		return xxhash.Sum64String(fmt.Sprintf("%T:%#v", key, key))
	}
}
