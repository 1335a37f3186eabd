package helper

import (
	"math"

	"github.com/jordyorel/orus-lang-sub000/ir"
)

// toStringCacheSize is the fixed table size for the open-addressed
// ToString Inline Cache (§3 "ToString Inline Cache").
const toStringCacheSize = 256

type toStringCacheKey struct {
	kind ir.ValueKind
	bits uint64
}

type toStringCacheEntry struct {
	used bool
	key  toStringCacheKey
	str  string
}

// ToStringCache is a fixed-size open-addressed map from (kind, bit
// pattern) to an interned string. It is single-writer from the helper
// path and read-mostly, matching §3's contract: "no guarantees across GC
// cycles other than the interning contract." Interning itself is the
// VM's job (out of scope); this cache only avoids re-formatting.
type ToStringCache struct {
	entries [toStringCacheSize]toStringCacheEntry
}

func bitsOf(v Value) uint64 {
	switch v.Kind {
	case ir.KindF64:
		return math.Float64bits(v.F64)
	default:
		return uint64(v.I64)
	}
}

func (c *ToStringCache) slot(key toStringCacheKey) int {
	h := uint64(key.kind)*1099511628211 + key.bits
	return int(h % toStringCacheSize)
}

// Lookup returns the cached string for v, if present.
func (c *ToStringCache) Lookup(v Value) (string, bool) {
	key := toStringCacheKey{kind: v.Kind, bits: bitsOf(v)}
	e := &c.entries[c.slot(key)]
	if e.used && e.key == key {
		return e.str, true
	}
	return "", false
}

// Store records v's string form, evicting whatever previously occupied
// the slot (open addressing with a single bucket per slot keeps this
// cache allocation-free and bounded).
func (c *ToStringCache) Store(v Value, s string) {
	key := toStringCacheKey{kind: v.Kind, bits: bitsOf(v)}
	c.entries[c.slot(key)] = toStringCacheEntry{used: true, key: key, str: s}
}

// ToString implements the ToString op: consult the cache, else format and
// populate it, per §4.3.
func (vm *VM) ToString(cache *ToStringCache, v Value) (string, bool) {
	if s, ok := cache.Lookup(v); ok {
		return s, true
	}
	s, ok := v.ToGoString()
	if !ok {
		return "", false
	}
	cache.Store(v, s)
	return s, true
}
