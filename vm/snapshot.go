package vm

import (
	"unsafe"

	"github.com/lumenjs/core/bytecode"
	"github.com/lumenjs/core/heap"
	"github.com/lumenjs/core/object"
	"github.com/lumenjs/core/value"
)

// RootCells returns the VM's own precise root set, in a stable order:
// the global object first, then every live persistent handle, then
// every cell currently visible on the interpreter's shadow stack. The
// snapshot package walks from exactly this set when serializing (spec's
// snapshot contract: "produced by walking every reachable cell from the
// roots").
func (m *VM) RootCells() []heap.Cell {
	out := []heap.Cell{m.globals}
	m.persistent.ScanRoots(func(c heap.Cell) { out = append(out, c) })
	m.shadow.ScanRoots(func(c heap.Cell) { out = append(out, c) })
	return out
}

// StringValue boxes a StringCell as a cell-tagged Value.
func StringValue(c *StringCell) value.Value { return value.FromCellPointer(unsafe.Pointer(c)) }

// ClosureValue boxes a Closure as a cell-tagged Value.
func ClosureValue(c *Closure) value.Value { return closureValue(c) }

// NativeFunctionValue boxes a NativeFunction as a cell-tagged Value.
func NativeFunctionValue(c *NativeFunction) value.Value {
	return value.FromCellPointer(unsafe.Pointer(c))
}

// RestoreString allocates a StringCell with content s. Strings carry no
// outgoing references (StringTypeDescriptor traces nothing), so unlike
// the cell types below they need no separate prepare/finish split: a
// string can never be part of a reference cycle.
func (m *VM) RestoreString(s string) *StringCell {
	c := &StringCell{hdr: heap.NewHeader(m.stringType, uint32(len(s))), s: s}
	m.h.TrackLarge(c)
	return c
}

// PrepareUpvalue allocates an empty Upvalue cell; call Set on the
// result once the value it boxes (which may itself be a reference back
// into a cycle this very cell participates in — a closure capturing
// its own upvalue slot via recursion, for instance) has been allocated.
func (m *VM) PrepareUpvalue() *Upvalue {
	u := &Upvalue{hdr: heap.NewHeader(m.upvalueType, 16)}
	m.h.TrackLarge(u)
	return u
}

// PrepareClosure allocates a Closure cell with its code block and name
// already known but its Upvalues and Prototype left nil — both are
// exported fields a snapshot loader assigns directly once their own
// cells exist, the same two-step shape PrepareObject/PrepareStructure
// use for the same reason (a closure's prototype can reference the
// closure itself, e.g. a constructor's prototype.constructor link).
func (m *VM) PrepareClosure(proto *bytecode.CodeBlock, name string) *Closure {
	c := &Closure{hdr: heap.NewHeader(m.closureType, 32), Proto: proto, Name: name}
	m.h.TrackLarge(c)
	return c
}

// PrepareNativeFunction allocates a NativeFunction cell with its name
// and call handler already known but its Prototype left nil, assigned
// directly by a loader once the prototype object's own cell exists.
func (m *VM) PrepareNativeFunction(name string, fn NativeFunc) *NativeFunction {
	c := &NativeFunction{hdr: heap.NewHeader(m.nativeType, 32), Name: name, Fn: fn}
	m.h.TrackLarge(c)
	return c
}

// PrepareStructure allocates a Structure cell, tracked on this VM's
// heap, with its real layout installed later via object.Structure.Finish.
func (m *VM) PrepareStructure() *object.Structure {
	s := object.PrepareStructure(m.structureType)
	m.h.TrackLarge(s)
	return s
}

// PrepareObject allocates an Object cell, tracked on this VM's heap,
// with its real layout installed later via object.Object.Finish.
func (m *VM) PrepareObject() *object.Object {
	o := object.PrepareObject(m.objectType)
	m.h.TrackLarge(o)
	return o
}

// AdoptGlobals replaces this VM's global object with g, for a snapshot
// loader that has just reconstructed a previously serialized global
// object and wants script evaluation to see it from here on. The VM's
// original global object (and everything only it kept alive) becomes
// eligible for collection at the next cycle.
func (m *VM) AdoptGlobals(g *object.Object) { m.globals = g }
