// Package heap implements the engine's managed heap: a block-segregated
// allocator for small cells, a separate large-object space, and a
// mark-and-sweep collector with conservative stack scanning layered over
// precise shadow-stack and persistent-root scanning.
//
// Dynamic dispatch on a cell's type is realised by a TypeDescriptor
// pointer carried in the cell's Header rather than by a Go type switch:
// every GC-managed type registers one, providing Trace and (optionally)
// Finalize. This mirrors how the object model dispatches property
// storage through a Structure rather than through reflection.
package heap

import "sync/atomic"

// MarkState is the tri-state mark carried by every cell header.
type MarkState uint8

const (
	// Unmarked cells are swept unless reached during the next mark phase.
	Unmarked MarkState = iota
	// Marked cells were reached from a precise root (shadow stack,
	// persistent registry) or from tracing another marked cell.
	Marked
	// Pinned cells were marked first by the conservative scan during root
	// seeding: a machine word that looked like a pointer to a live cell.
	// Precise and conservative sources are seeded concurrently, so a cell
	// that is also precisely reachable may end up Pinned rather than Marked. They
	// survive the cycle exactly like Marked cells; the distinct state
	// exists so diagnostics can tell a precise root from a conservative
	// one (see Heap.PinnedThisCycle).
	Pinned
)

func (m MarkState) String() string {
	switch m {
	case Unmarked:
		return "unmarked"
	case Marked:
		return "marked"
	case Pinned:
		return "pinned"
	default:
		return "invalid"
	}
}

// TypeDescriptor is the dynamic-dispatch table for one cell type. Trace
// must report every outgoing Cell reference to visit; visit may be
// called zero or more times and must not be retained past the call.
// Finalize, if non-nil, runs during sweep for cells found unmarked; it
// MUST NOT access any other heap cell (sweep order is unspecified).
type TypeDescriptor struct {
	Name     string
	Trace    func(c Cell, visit func(Cell))
	Finalize func(c Cell)
}

// Header is embedded (as a named field, not anonymously, to keep the
// exported Header() accessor unambiguous) by every heap-managed type.
// It carries the type descriptor, mark state, and declared size used
// for accounting; the allocator additionally threads a cell's position
// in its owning block's free list through nextFree while the cell is
// free.
//
// mark is an atomic.Uint32 rather than a plain MarkState field: spec §5
// requires "mark-bit updates, which are CAS operations on per-cell
// header bytes", since the parallel marking workers of heap.Collect
// race on shared children (two objects tracing into a common prototype
// is the normal case, not an edge case) and a read-then-write would let
// two workers both observe Unmarked and both enqueue the same cell.
type Header struct {
	typ      *TypeDescriptor
	mark     atomic.Uint32
	size     uint32
	nextFree int32 // index+1 of next free cell in owning block; 0 means none
	alive    bool  // true while allocated and in use
}

// NewHeader constructs a Header for a freshly allocated cell of the
// given type and byte size.
func NewHeader(typ *TypeDescriptor, size uint32) Header {
	return Header{typ: typ, size: size}
}

func (h *Header) Type() *TypeDescriptor { return h.typ }
func (h *Header) Mark() MarkState       { return MarkState(h.mark.Load()) }
func (h *Header) Size() uint32          { return h.size }
func (h *Header) Alive() bool           { return h.alive }

func (h *Header) setMark(m MarkState) { h.mark.Store(uint32(m)) }

// tryMark atomically transitions the mark state from from to to,
// reporting whether this call made the transition. Exactly one of
// however many goroutines race to mark the same cell observes true;
// every other caller — including ones that would otherwise have
// redundantly retraced an already-marked cell — observes false and
// does nothing further with it.
func (h *Header) tryMark(from, to MarkState) bool {
	return h.mark.CompareAndSwap(uint32(from), uint32(to))
}

// Cell is implemented by every heap-managed Go type. A cell is
// addressable only through the value package's tagged pointer encoding
// or through a rooted slot (shadow stack or persistent registry); this
// package never exposes a bare *Header to callers outside the heap.
type Cell interface {
	Header() *Header
}
