package heap

import (
	"reflect"
	"sync"
	"time"

	"github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"

	"github.com/lumenjs/core/log"
	"github.com/lumenjs/core/metrics"
)

// RootSource is implemented by anything the collector must treat as a
// precise root set: the roots package's shadow stack and persistent
// handle registry both satisfy this.
type RootSource interface {
	ScanRoots(visit func(Cell))
}

// CellResolver turns a decoded cell address back into the live Cell
// registered at it. Type descriptors for cell types that store boxed
// value.Value payloads (rather than direct Cell pointers) need one of
// these to trace outgoing references; Heap.ResolveAddress implements it.
type CellResolver func(addr uintptr) (Cell, bool)

// ConservativeSource supplies raw machine words that might be cell
// pointers, per spec §4.2's conservative scan. Go gives no API to walk
// a goroutine's real machine stack and registers, so this engine points
// the conservative scan at its own operand/shadow-stack Value arrays
// instead: any tagged Value whose bit pattern decodes as a heap pointer
// is treated exactly like a stray stack word would be in a native VM.
type ConservativeSource interface {
	ScanWords(visit func(uint64))
}

// Heap owns every Pool (one per size class), the large-object space, the
// address index used for conservative scanning, and the registered root
// sources. It is not safe for concurrent use by multiple mutator
// goroutines — the engine's single-threaded execution model (spec §5)
// means Collect always runs with the mutator suspended at a safepoint.
type Heap struct {
	mu      sync.Mutex
	pools   []*Pool
	large   *LargeObjectSpace
	index   *AddressIndex
	roots   []RootSource
	conserv []ConservativeSource

	workers int
	metrics *metrics.Set
	log     *log.Logger

	pinned mapset.Set[Cell]
}

// NewHeap constructs an empty heap. workers bounds the parallel marking
// fan-out (EngineParams.GCWorkers); expectedCells sizes the conservative
// scan's address index.
func NewHeap(workers int, expectedCells uint64, m *metrics.Set, lg *log.Logger) *Heap {
	if workers < 1 {
		workers = 1
	}
	if lg == nil {
		lg = log.Default()
	}
	return &Heap{
		large:   NewLargeObjectSpace(),
		index:   NewAddressIndex(expectedCells),
		workers: workers,
		metrics: m,
		log:     lg.With("gc"),
		pinned:  mapset.NewSet[Cell](),
	}
}

// RegisterPool adds a size-class pool to the heap's sweep traversal.
func (h *Heap) RegisterPool(p *Pool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pools = append(h.pools, p)
}

// AddRootSource registers a precise root provider.
func (h *Heap) AddRootSource(r RootSource) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.roots = append(h.roots, r)
}

// AddConservativeSource registers a conservative word provider.
func (h *Heap) AddConservativeSource(c ConservativeSource) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conserv = append(h.conserv, c)
}

// TrackAllocation indexes a freshly allocated small-pool cell for the
// conservative scan. Callers allocate via Pool.Allocate and must pass
// the result here before handing it out; large objects are indexed
// by Heap.TrackLarge instead, since a stray word can
// only ever alias the base address of a cell, never an interior one,
// matching the "cell base address" test in spec §4.2 step 2(c).
func (h *Heap) TrackAllocation(c Cell) {
	h.index.Register(cellAddr(c), c)
}

// TrackLarge allocates c into the large-object space and indexes it.
func (h *Heap) TrackLarge(c Cell) {
	h.large.Track(c)
	h.index.Register(cellAddr(c), c)
}

func cellAddr(c Cell) uintptr {
	return reflect.ValueOf(c).Pointer()
}

// ResolveAddress turns a decoded cell address back into the live Cell
// registered at it, if any. Precise root sources outside this package
// (the roots package's shadow stack and persistent registry) use this
// to implement RootSource without reaching into heap internals.
func (h *Heap) ResolveAddress(addr uintptr) (Cell, bool) {
	return h.index.Resolve(addr)
}

// PinnedThisCycle returns the cells the conservative scan marked first
// during the most recent Collect's root seeding, for diagnostics.
func (h *Heap) PinnedThisCycle() []Cell {
	return h.pinned.ToSlice()
}

// LiveBytes sums live bytes across every pool and the large-object
// space as of the most recent sweep.
func (h *Heap) LiveBytes() uint64 {
	var total uint64
	h.mu.Lock()
	pools := append([]*Pool(nil), h.pools...)
	h.mu.Unlock()
	for _, p := range pools {
		total += p.LiveBytes()
	}
	return total + h.large.LiveBytes()
}

// Collect runs one full stop-the-world mark-and-sweep cycle: seed from
// every precise and conservative root, trace to a fixed point with a
// bounded worker pool, then sweep every pool and the large-object
// space. Returns the number of cells freed and the pause duration.
func (h *Heap) Collect() (freed int, pause time.Duration) {
	start := time.Now()
	h.pinned.Clear()

	seed := h.seedRoots()
	h.markAll(seed)

	h.mu.Lock()
	pools := append([]*Pool(nil), h.pools...)
	h.mu.Unlock()

	var live int
	for _, p := range pools {
		f, l := p.Sweep()
		freed += f
		live += l
	}
	lf, ll := h.large.Sweep(nil)
	freed += lf
	live += ll

	pause = time.Since(start)
	if h.metrics != nil {
		h.metrics.ObserveGCCycle(pause, h.LiveBytes())
	}
	h.log.Debug("collection cycle complete", "freed", freed, "live", live, "pause", pause)
	return freed, pause
}

// seedRoots scans every registered root and conservative source
// concurrently, marking what each finds and collecting the initial BFS
// frontier into one queue.
func (h *Heap) seedRoots() []Cell {
	h.mu.Lock()
	roots := append([]RootSource(nil), h.roots...)
	conserv := append([]ConservativeSource(nil), h.conserv...)
	h.mu.Unlock()

	q := newMarkQueue(1024)
	var wg sync.WaitGroup
	wg.Add(len(roots) + len(conserv))

	for _, r := range roots {
		r := r
		go func() {
			defer wg.Done()
			r.ScanRoots(func(c Cell) {
				if c == nil {
					return
				}
				if c.Header().tryMark(Unmarked, Marked) {
					q.push(c)
				}
			})
		}()
	}
	for _, c := range conserv {
		c := c
		go func() {
			defer wg.Done()
			c.ScanWords(func(word uint64) {
				cell, ok := h.index.ScanWord(word)
				if !ok {
					return
				}
				if cell.Header().tryMark(Unmarked, Pinned) {
					h.pinned.Add(cell)
					q.push(cell)
				}
			})
		}()
	}
	wg.Wait()
	return q.drain()
}

// markAll traces the reachability graph breadth-first from seed,
// fanning each frontier level out across h.workers goroutines via
// errgroup. A cell is only ever pushed once: Header.tryMark's
// CompareAndSwap(Unmarked, Marked) succeeds for exactly one racing
// goroutine even when two cells in the same frontier trace into a
// shared child (e.g. two objects sharing a prototype), so no cell is
// ever traced twice.
func (h *Heap) markAll(seed []Cell) {
	frontier := seed
	for len(frontier) > 0 {
		var mu sync.Mutex
		var next []Cell
		g := new(errgroup.Group)
		g.SetLimit(h.workers)
		for _, c := range frontier {
			c := c
			g.Go(func() error {
				typ := c.Header().Type()
				if typ == nil || typ.Trace == nil {
					return nil
				}
				var local []Cell
				typ.Trace(c, func(ref Cell) {
					if ref == nil {
						return
					}
					if ref.Header().tryMark(Unmarked, Marked) {
						local = append(local, ref)
					}
				})
				if len(local) > 0 {
					mu.Lock()
					next = append(next, local...)
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait() // Trace never returns an error; workers never cancel the group.
		frontier = next
	}
}
