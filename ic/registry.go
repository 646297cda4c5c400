package ic

import lru "github.com/hashicorp/golang-lru/v2"

// Registry is a bounded, non-authoritative diagnostic index of recently
// touched inline-cache sites, keyed by an opaque site id (a code
// block's cache-site table index combined with its code block id). It
// exists for tooling — e.g. reporting which sites just went
// megamorphic — and is never consulted on the interpreter's hot path:
// the interpreter always holds its own direct *Site reference from the
// code block's cache-site table (see the bytecode package), so an
// entry lost to LRU eviction here has no correctness consequence.
type Registry struct {
	cache *lru.Cache[uint64, *Site]
}

// NewRegistry constructs a diagnostic registry bounded to capacity
// entries.
func NewRegistry(capacity int) *Registry {
	if capacity < 1 {
		capacity = 1024
	}
	c, _ := lru.New[uint64, *Site](capacity)
	return &Registry{cache: c}
}

// Touch records that siteID was just consulted, for later inspection.
func (r *Registry) Touch(siteID uint64, s *Site) {
	r.cache.Add(siteID, s)
}

// Recent returns the most recently touched Site for siteID, if it has
// not been evicted.
func (r *Registry) Recent(siteID uint64) (*Site, bool) {
	return r.cache.Get(siteID)
}

// Len reports the number of entries currently retained.
func (r *Registry) Len() int { return r.cache.Len() }
