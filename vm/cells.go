package vm

import (
	"github.com/lumenjs/core/bytecode"
	"github.com/lumenjs/core/heap"
	"github.com/lumenjs/core/object"
	"github.com/lumenjs/core/value"
)

// StringCell boxes a Go string as a heap cell. Strings are not one of
// value.Value's inline-payload tags (spec §4.1 reserves the tag space
// for double/int32/bool/null/undefined/empty/cell only), so every
// string, however short, lives on the heap and is referenced the same
// way any other object is: through a cell-tagged Value.
type StringCell struct {
	hdr heap.Header
	s   string
}

func (c *StringCell) Header() *heap.Header { return &c.hdr }
func (c *StringCell) String() string       { return c.s }

// StringTypeDescriptor returns the GC type descriptor for StringCell.
// A string carries no outgoing heap references.
func StringTypeDescriptor() *heap.TypeDescriptor {
	return &heap.TypeDescriptor{Name: "String"}
}

// Upvalue is a boxed variable cell a closure captures by reference
// (spec §4.6's load-upvalue/store-upvalue). Indirection through a
// heap-allocated cell, rather than copying the value at closure-creation
// time, is what lets two closures over the same enclosing scope observe
// each other's writes.
type Upvalue struct {
	hdr heap.Header
	val value.Value
}

func (u *Upvalue) Header() *heap.Header { return &u.hdr }
func (u *Upvalue) Get() value.Value     { return u.val }
func (u *Upvalue) Set(v value.Value)    { u.val = v }

// UpvalueTypeDescriptor returns the GC type descriptor for Upvalue
// cells. The boxed value may itself be a cell reference, so tracing
// needs a resolver to turn its decoded address back into a heap.Cell.
func UpvalueTypeDescriptor(resolve heap.CellResolver) *heap.TypeDescriptor {
	return &heap.TypeDescriptor{
		Name: "Upvalue",
		Trace: func(c heap.Cell, visit func(heap.Cell)) {
			u := c.(*Upvalue)
			if !u.val.IsCell() {
				return
			}
			if cell, ok := resolve(uintptr(u.val.AsCellPointer())); ok {
				visit(cell)
			}
		},
	}
}

// Closure bundles a compiled function body with the upvalues it closed
// over at creation time (spec §4.6's new-closure: "bundling a code
// block with the current environment"). CodeBlock itself is compiler
// output kept alive by the engine for the program's lifetime, not a
// GC-managed cell; only the per-instantiation upvalue bindings need
// tracing.
type Closure struct {
	hdr      heap.Header
	Proto    *bytecode.CodeBlock
	Upvalues []*Upvalue
	Name     string
	// Prototype backs the closure's own "prototype" property (every
	// function is constructible per spec §4.6, and construct binds the
	// freshly created `this`'s own prototype to this object). Allocated
	// eagerly alongside the closure itself, the same way a freshly
	// declared function gets a default prototype object before any
	// script code runs.
	Prototype *object.Object
}

func (c *Closure) Header() *heap.Header { return &c.hdr }

// ClosureTypeDescriptor returns the GC type descriptor for Closure
// cells.
func ClosureTypeDescriptor() *heap.TypeDescriptor {
	return &heap.TypeDescriptor{
		Name: "Closure",
		Trace: func(c heap.Cell, visit func(heap.Cell)) {
			cl := c.(*Closure)
			for _, u := range cl.Upvalues {
				if u != nil {
					visit(u)
				}
			}
			if cl.Prototype != nil {
				visit(cl.Prototype)
			}
		},
	}
}

// NativeFunc is a host-provided call handler (spec §6's built-in
// library contract): "(engine, this, argv, argc) → Value or throw",
// realized here as a Go function returning an error instead of a raw
// throw signal; Call wraps a returned error into a thrown exception
// value the same way a script-level throw would.
type NativeFunc func(vm *VM, this value.Value, args []value.Value) (value.Value, error)

// NativeFunction is a callee cell whose call is dispatched straight to
// a Go function rather than through the bytecode interpreter loop
// (spec §4.6: "if callee is a native function, invoke it directly with
// a lightweight native frame").
type NativeFunction struct {
	hdr  heap.Header
	Name string
	Fn   NativeFunc
	// Prototype backs a native constructor's own "prototype" property,
	// the same role Closure.Prototype plays for a script-defined
	// function. Left nil for a native function never used with
	// construct (most of them).
	Prototype *object.Object
}

func (c *NativeFunction) Header() *heap.Header { return &c.hdr }

// NativeFunctionTypeDescriptor returns the GC type descriptor for
// NativeFunction cells. A native function's Go closure may capture
// heap references, but Go gives no reflective way to trace into a
// closed-over func value; native functions that need to keep heap
// state alive are expected to do so through the persistent-root
// registry (roots.Registry) rather than bare Go captures.
func NativeFunctionTypeDescriptor() *heap.TypeDescriptor {
	return &heap.TypeDescriptor{
		Name: "NativeFunction",
		Trace: func(c heap.Cell, visit func(heap.Cell)) {
			if nf := c.(*NativeFunction); nf.Prototype != nil {
				visit(nf.Prototype)
			}
		},
	}
}
