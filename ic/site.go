// Package ic implements the engine's inline caches: per-bytecode-site
// caches for property access, global-variable access, and method calls
// (spec §4.5). All three share one Site implementation, differing only
// in the metrics label they report under and in whether they record a
// callee cell (method sites do; property and global sites pass nil).
//
// Invalidation (spec §4.5's "a generation counter on the Structure is
// bumped... caches referencing that Structure are treated as misses on
// next consult") needs no separate mechanism here: the object package
// never mutates a Structure in place — every transition (property add,
// delete, prototype change) produces a distinct *Structure — so an
// entry's cached pointer simply stops matching the receiver's current
// Structure the moment that Structure changes. Lookup's pointer
// comparison already implements lazy, on-consult invalidation for free.
package ic

import (
	"github.com/lumenjs/core/heap"
	"github.com/lumenjs/core/metrics"
	"github.com/lumenjs/core/object"
)

type entry struct {
	structure *object.Structure
	slot      int
	callee    heap.Cell // non-nil only for method-call sites
	lastUsed  uint64
}

// Site is one bytecode instruction's inline cache. Capacity is
// typically 4 (spec §4.5); once the table would overflow, the
// least-recently-used entry is evicted, and a site that keeps
// thrashing through its whole capacity without a repeat hit gives up
// and goes megamorphic.
type Site struct {
	kind        metrics.SiteKind
	entries     []entry
	capacity    int
	megamorphic bool
	clock       uint64
	thrash      int
	metrics     *metrics.Set
}

// thrashMultiplier times the site's capacity is how many consecutive
// capacity-exhausting evictions a site tolerates before giving up on
// monomorphism/polymorphism and transitioning to megamorphic. Chosen as
// 2, i.e. 2x capacity: a site cycling
// through two full rotations of its entries without a repeat hit is
// not converging.
const thrashMultiplier = 2

func newSite(kind metrics.SiteKind, capacity int, m *metrics.Set) *Site {
	if capacity < 1 {
		capacity = 4
	}
	return &Site{kind: kind, capacity: capacity, metrics: m}
}

// NewPropertySite constructs a cache for a get/set/delete-by-name or
// by-index site.
func NewPropertySite(capacity int, m *metrics.Set) *Site {
	return newSite(metrics.SiteProperty, capacity, m)
}

// NewGlobalSite constructs a cache for a load-global/store-global site,
// whose receiver is always the engine's global object.
func NewGlobalSite(capacity int, m *metrics.Set) *Site {
	return newSite(metrics.SiteGlobal, capacity, m)
}

// NewMethodSite constructs a cache for a method-call site, which
// additionally remembers the resolved callee function cell.
func NewMethodSite(capacity int, m *metrics.Set) *Site {
	return newSite(metrics.SiteMethod, capacity, m)
}

// Lookup is the hit path (spec §4.5): an O(entries) scan for an entry
// whose Structure matches the receiver's current one.
func (s *Site) Lookup(structure *object.Structure) (slot int, callee heap.Cell, ok bool) {
	if s.megamorphic {
		return 0, nil, false
	}
	s.clock++
	for i := range s.entries {
		if s.entries[i].structure == structure {
			s.entries[i].lastUsed = s.clock
			s.thrash = 0
			if s.metrics != nil {
				s.metrics.ObserveICHit(s.kind)
			}
			return s.entries[i].slot, s.entries[i].callee, true
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveICMiss(s.kind)
	}
	return 0, nil, false
}

// Record installs (or refreshes) an entry after the miss path's full
// lookup discovers (structure, slot[, callee]). A call on an already
// megamorphic site is a no-op — once megamorphic, a site never reverts
// (spec §4.5).
func (s *Site) Record(structure *object.Structure, slot int, callee heap.Cell) {
	if s.megamorphic {
		return
	}
	s.clock++
	for i := range s.entries {
		if s.entries[i].structure == structure {
			s.entries[i].slot = slot
			s.entries[i].callee = callee
			s.entries[i].lastUsed = s.clock
			return
		}
	}
	if len(s.entries) < s.capacity {
		s.entries = append(s.entries, entry{structure: structure, slot: slot, callee: callee, lastUsed: s.clock})
		s.thrash = 0
		return
	}
	lru := 0
	for i := 1; i < len(s.entries); i++ {
		if s.entries[i].lastUsed < s.entries[lru].lastUsed {
			lru = i
		}
	}
	s.entries[lru] = entry{structure: structure, slot: slot, callee: callee, lastUsed: s.clock}
	s.thrash++
	if s.thrash >= s.capacity*thrashMultiplier {
		s.Megamorphic()
	}
}

// Megamorphic transitions the site to bypass the cache entirely. It is
// idempotent and, once called, the site never reverts to caching.
func (s *Site) Megamorphic() {
	if s.megamorphic {
		return
	}
	s.megamorphic = true
	s.entries = nil
	if s.metrics != nil {
		s.metrics.ObserveICMegamorphic(s.kind)
	}
}

func (s *Site) IsMegamorphic() bool { return s.megamorphic }
func (s *Site) Len() int            { return len(s.entries) }
