package heap

import (
	"sync"

	"github.com/holiman/bloomfilter/v2"
)

// AddressIndex accelerates the conservative stack scan's range test: "a
// word is interpreted as a potential cell pointer iff it lies within the
// address range of any live block and equals the base address of a cell
// in that block." A Bloom filter is a natural fit for the accelerator
// half of that test, since the collector is explicitly permitted to
// over-approximate liveness (spec invariant (d)) but never to
// under-approximate it: a filter never produces a false negative, so a
// genuine cell address is always found; a false positive only costs one
// wasted exact-map lookup. The exact map resolves a filter hit to the
// actual Cell to mark.
type AddressIndex struct {
	mu     sync.RWMutex
	filter *bloomfilter.Filter
	exact  map[uintptr]Cell
}

// NewAddressIndex builds an index sized for approximately expectedCells
// live cells at a 1% false-positive rate.
func NewAddressIndex(expectedCells uint64) *AddressIndex {
	if expectedCells == 0 {
		expectedCells = 1024
	}
	f, err := bloomfilter.NewOptimal(expectedCells, 0.01)
	if err != nil {
		// NewOptimal only fails on a zero maxN/invalid p, which cannot
		// happen given the guard above; fall back to a small fixed filter.
		f, _ = bloomfilter.New(1<<16, 4)
	}
	return &AddressIndex{filter: f, exact: make(map[uintptr]Cell)}
}

// addrHash adapts a uintptr to the hash.Hash64 the filter expects.
type addrHash uintptr

func (addrHash) Write(p []byte) (int, error) { return len(p), nil }
func (addrHash) Sum(b []byte) []byte         { return b }
func (addrHash) Reset()                      {}
func (addrHash) Size() int                   { return 8 }
func (addrHash) BlockSize() int              { return 8 }
func (a addrHash) Sum64() uint64             { return uint64(a) }

// Register records addr as a live cell base address.
func (a *AddressIndex) Register(addr uintptr, c Cell) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filter.Add(addrHash(addr))
	a.exact[addr] = c
}

// Unregister drops addr from the exact table. The Bloom filter itself
// supports no deletion; a stale positive afterwards just costs one
// harmless exact-lookup miss, which is the documented over-approximation
// the conservative scan already tolerates.
func (a *AddressIndex) Unregister(addr uintptr) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.exact, addr)
}

// MaybeLive reports whether addr might be a registered cell base; false
// means it definitely is not.
func (a *AddressIndex) MaybeLive(addr uintptr) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.filter.Contains(addrHash(addr))
}

// Resolve returns the Cell registered at addr, if any.
func (a *AddressIndex) Resolve(addr uintptr) (Cell, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.exact[addr]
	return c, ok
}

// ScanWord applies the conservative range test described in spec §4.2
// step 2(c) to a single machine word, returning the cell it pins, if
// any.
func (a *AddressIndex) ScanWord(word uint64) (Cell, bool) {
	addr := uintptr(word)
	if !a.MaybeLive(addr) {
		return nil, false
	}
	return a.Resolve(addr)
}
