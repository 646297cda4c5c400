package roots

import (
	"testing"
	"unsafe"

	"github.com/lumenjs/core/heap"
	"github.com/lumenjs/core/value"
)

type stubCell struct {
	hdr heap.Header
}

func (c *stubCell) Header() *heap.Header { return &c.hdr }

// stubResolver is a tiny CellResolver backed by a fixed address->cell
// map, standing in for heap.Heap.ResolveAddress in these unit tests.
type stubResolver map[uintptr]heap.Cell

func (r stubResolver) resolve(addr uintptr) (heap.Cell, bool) {
	c, ok := r[addr]
	return c, ok
}

func TestShadowStackScanRootsVisitsCellSlots(t *testing.T) {
	c := &stubCell{}
	addr := uintptr(unsafe.Pointer(c))
	resolver := stubResolver{addr: c}

	ss := NewShadowStack(resolver.resolve)
	f := NewFrame(4)
	f.Set(0, value.FromInt32(7))
	f.Set(1, value.FromCellPointer(unsafe.Pointer(c)))
	ss.Push(f)

	var visited []heap.Cell
	ss.ScanRoots(func(cell heap.Cell) { visited = append(visited, cell) })

	if len(visited) != 1 || visited[0] != heap.Cell(c) {
		t.Fatalf("expected exactly the cell slot visited, got %v", visited)
	}
}

func TestShadowStackPopReturnsLIFO(t *testing.T) {
	ss := NewShadowStack(stubResolver{}.resolve)
	first := NewFrame(1)
	second := NewFrame(1)
	ss.Push(first)
	ss.Push(second)

	got, ok := ss.Pop()
	if !ok || got != second {
		t.Fatalf("expected second frame popped first")
	}
	got, ok = ss.Pop()
	if !ok || got != first {
		t.Fatalf("expected first frame popped second")
	}
	if ss.Depth() != 0 {
		t.Fatalf("depth = %d, want 0", ss.Depth())
	}
}

func TestRegistryCreateReadWriteDestroy(t *testing.T) {
	r := NewRegistry(stubResolver{}.resolve)

	h := r.Create(value.FromInt32(42))
	got, ok := r.Read(h)
	if !ok || got.AsInt32() != 42 {
		t.Fatalf("Read = %v, %v; want 42, true", got, ok)
	}

	if !r.Write(h, value.FromInt32(99)) {
		t.Fatal("Write reported failure on live handle")
	}
	got, _ = r.Read(h)
	if got.AsInt32() != 99 {
		t.Fatalf("after Write, Read = %d, want 99", got.AsInt32())
	}

	if !r.Destroy(h) {
		t.Fatal("Destroy reported failure on live handle")
	}
	if _, ok := r.Read(h); ok {
		t.Fatal("Read succeeded on destroyed handle")
	}
	if r.Destroy(h) {
		t.Fatal("double Destroy reported success")
	}
}

func TestRegistryHandleReuseBumpsGeneration(t *testing.T) {
	r := NewRegistry(stubResolver{}.resolve)

	h1 := r.Create(value.FromInt32(1))
	r.Destroy(h1)
	h2 := r.Create(value.FromInt32(2))

	if h1.index != h2.index {
		t.Fatalf("expected slot reuse: h1.index=%d h2.index=%d", h1.index, h2.index)
	}
	if h1.gen == h2.gen {
		t.Fatal("expected generation to change across reuse")
	}
	if _, ok := r.Read(h1); ok {
		t.Fatal("stale handle from before reuse still reads successfully")
	}
	got, ok := r.Read(h2)
	if !ok || got.AsInt32() != 2 {
		t.Fatalf("Read(h2) = %v, %v; want 2, true", got, ok)
	}
}

func TestRegistryScanRootsVisitsLiveCellsOnly(t *testing.T) {
	c := &stubCell{}
	addr := uintptr(unsafe.Pointer(c))
	resolver := stubResolver{addr: c}
	r := NewRegistry(resolver.resolve)

	live := r.Create(value.FromCellPointer(unsafe.Pointer(c)))
	destroyed := r.Create(value.FromCellPointer(unsafe.Pointer(c)))
	r.Destroy(destroyed)
	r.Create(value.FromInt32(5)) // non-cell slot, must not be visited

	var visited []heap.Cell
	r.ScanRoots(func(cell heap.Cell) { visited = append(visited, cell) })

	if len(visited) != 1 || visited[0] != heap.Cell(c) {
		t.Fatalf("expected exactly one live cell root, got %v", visited)
	}
	_ = live
}
