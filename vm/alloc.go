package vm

import (
	"unsafe"

	"github.com/lumenjs/core/bytecode"
	"github.com/lumenjs/core/heap"
	"github.com/lumenjs/core/object"
	"github.com/lumenjs/core/value"
)

// maybeCollect accounts for a pending allocation of approxBytes and
// runs a full collection first if the configured trigger threshold has
// been crossed (spec §5: "allocation, which may invoke the GC" is the
// interpreter's one mutator-visible suspension point besides a
// host-callback return).
func (m *VM) maybeCollect(approxBytes uint64) {
	m.allocatedSinceGC += approxBytes
	if m.allocatedSinceGC < m.params.GCTriggerBytes {
		return
	}
	m.allocatedSinceGC = 0
	m.h.Collect()
}

// allocString boxes s as a fresh StringCell.
func (m *VM) allocString(s string) (value.Value, error) {
	m.maybeCollect(uint64(len(s)) + 16)
	c := &StringCell{hdr: heap.NewHeader(m.stringType, uint32(len(s))), s: s}
	m.h.TrackLarge(c)
	return value.FromCellPointer(unsafe.Pointer(c)), nil
}

// allocObject allocates a fresh Object rooted at structure.
func (m *VM) allocObject(structure *object.Structure) *object.Object {
	m.maybeCollect(64)
	o := object.NewObject(m.objectType, structure)
	m.h.TrackLarge(o)
	return o
}

// allocUpvalue boxes v into a fresh Upvalue cell.
func (m *VM) allocUpvalue(v value.Value) *Upvalue {
	m.maybeCollect(16)
	u := &Upvalue{hdr: heap.NewHeader(m.upvalueType, 16), val: v}
	m.h.TrackLarge(u)
	return u
}

// allocClosure bundles proto with upvalues into a fresh Closure cell
// (spec §4.6's new-closure), allocating its default "prototype" object
// up front so construct always has something to bind a new instance's
// own prototype to.
func (m *VM) allocClosure(proto *bytecode.CodeBlock, upvalues []*Upvalue) *Closure {
	m.maybeCollect(32)
	c := &Closure{hdr: heap.NewHeader(m.closureType, 32), Proto: proto, Upvalues: upvalues, Name: proto.Name}
	c.Prototype = m.allocObject(m.globalStructure0)
	m.h.TrackLarge(c)
	return c
}

// objectValue boxes o as a cell-tagged Value.
func objectValue(o *object.Object) value.Value {
	return value.FromCellPointer(unsafe.Pointer(o))
}

// closureValue boxes c as a cell-tagged Value.
func closureValue(c *Closure) value.Value {
	return value.FromCellPointer(unsafe.Pointer(c))
}
