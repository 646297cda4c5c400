package vm

import (
	"sync/atomic"
	"unsafe"

	"github.com/lumenjs/core/bytecode"
	"github.com/lumenjs/core/errs"
	"github.com/lumenjs/core/heap"
	"github.com/lumenjs/core/ic"
	"github.com/lumenjs/core/log"
	"github.com/lumenjs/core/metrics"
	"github.com/lumenjs/core/object"
	"github.com/lumenjs/core/params"
	"github.com/lumenjs/core/roots"
	"github.com/lumenjs/core/value"
)

// VM is one engine's interpreter: the shared operand stack, the call
// frame stack, the global object, the two root sets of spec §4.3, and
// the type descriptors every heap cell this package allocates carries.
// One VM belongs to exactly one engine instance and is never shared
// across goroutines (spec §5's single-threaded execution model).
type VM struct {
	h      *heap.Heap
	params params.EngineParams
	metrics *metrics.Set
	log    *log.Logger

	globals          *object.Object
	globalStructure0 *object.Structure

	shadow     *roots.ShadowStack
	persistent *roots.Registry
	resolve    heap.CellResolver

	operand *stack
	frames  []*Frame

	allocatedSinceGC uint64

	interruptFlag   int32
	interruptReason atomic.Value // string

	stringType   *heap.TypeDescriptor
	objectType   *heap.TypeDescriptor
	structureType *heap.TypeDescriptor
	closureType  *heap.TypeDescriptor
	upvalueType  *heap.TypeDescriptor
	nativeType   *heap.TypeDescriptor

	errorPrototypes map[errs.Kind]*object.Object
	arrayPrototype  *object.Object

	globalSites map[object.SymbolID]*ic.Site
}

// New constructs a VM over a fresh heap. p supplies the operand-stack
// and call-stack limits, IC capacity, and GC tuning (spec §4.7).
func New(p params.EngineParams, m *metrics.Set, lg *log.Logger) *VM {
	if lg == nil {
		lg = log.Default()
	}
	h := heap.NewHeap(p.GCWorkers, 4096, m, lg)

	vm := &VM{
		h:           h,
		params:      p,
		metrics:     m,
		log:         lg.With("vm"),
		operand:     newStack(int(p.OperandStackLimit)),
		globalSites: make(map[object.SymbolID]*ic.Site),
	}
	vm.resolve = h.ResolveAddress
	vm.operand.setResolver(resolver(vm.resolve))

	vm.shadow = roots.NewShadowStack(roots.CellResolver(vm.resolve))
	vm.persistent = roots.NewRegistry(roots.CellResolver(vm.resolve))
	h.AddRootSource(vm.shadow)
	h.AddRootSource(vm.persistent)
	h.AddRootSource(vm.operand)
	h.AddConservativeSource(vm.shadow)
	h.AddConservativeSource(vm.operand)

	vm.stringType = StringTypeDescriptor()
	vm.objectType = object.ObjectTypeDescriptor(vm.resolve)
	vm.structureType = object.StructureTypeDescriptor()
	vm.closureType = ClosureTypeDescriptor()
	vm.upvalueType = UpvalueTypeDescriptor(vm.resolve)
	vm.nativeType = NativeFunctionTypeDescriptor()

	vm.globalStructure0 = object.NewRootStructure(vm.structureType, nil)
	vm.globals = vm.allocObject(vm.globalStructure0)

	return vm
}

// Heap returns the VM's managed heap, for host-level diagnostics and
// the engine package's snapshot integration.
func (m *VM) Heap() *heap.Heap { return m.h }

// Globals returns the engine's global object.
func (m *VM) Globals() *object.Object { return m.globals }

// Resolve turns a decoded cell address back into a heap.Cell.
func (m *VM) Resolve(addr uintptr) (heap.Cell, bool) { return m.resolve(addr) }

// Pin creates a persistent root for v, independent of the call stack
// (spec §4.3's handle-addressed rooting primitive).
func (m *VM) Pin(v value.Value) roots.Handle { return m.persistent.Create(v) }

// Unpin releases a handle created by Pin.
func (m *VM) Unpin(h roots.Handle) bool { return m.persistent.Destroy(h) }

// NewObject allocates an object whose prototype is proto (nil for no
// prototype), starting from the engine's shared root Structure.
func (m *VM) NewObject(proto *object.Object) *object.Object {
	base := m.globalStructure0
	if proto != nil {
		base = base.WithPrototype(proto)
	}
	return m.allocObject(base)
}

// NewString boxes s as a fresh StringCell Value.
func (m *VM) NewString(s string) (value.Value, error) { return m.allocString(s) }

// NewClosure bundles proto with upvalues (nil for a top-level script or
// any function that captures nothing) into a callable Value, for a host
// that has already compiled source into a code block (spec §6's
// compiler contract hands the host exactly this) and now wants a
// callee to pass to Call.
func (m *VM) NewClosure(proto *bytecode.CodeBlock, upvalues []*Upvalue) value.Value {
	return closureValue(m.allocClosure(proto, upvalues))
}

// ObjectValue boxes o as a cell-tagged Value, for a host embedding an
// *object.Object (e.g. the global object) into a Call/Construct
// argument list or return value.
func ObjectValue(o *object.Object) value.Value { return objectValue(o) }

// NewNativeFunction allocates a callee cell dispatching directly to fn
// (spec §6's built-in library contract).
func (m *VM) NewNativeFunction(name string, fn NativeFunc) value.Value {
	m.maybeCollect(32)
	c := &NativeFunction{hdr: heap.NewHeader(m.nativeType, 32), Name: name, Fn: fn}
	m.h.TrackLarge(c)
	return value.FromCellPointer(unsafe.Pointer(c))
}

// NewConstructor is NewNativeFunction plus a prototype object, for a
// native function a host (or the built-in library) intends to be
// usable with construct (spec §6): `new SomeBuiltin(...)` binds the
// freshly created `this`'s prototype to proto.
func (m *VM) NewConstructor(name string, fn NativeFunc, proto *object.Object) value.Value {
	m.maybeCollect(32)
	c := &NativeFunction{hdr: heap.NewHeader(m.nativeType, 32), Name: name, Fn: fn, Prototype: proto}
	m.h.TrackLarge(c)
	return value.FromCellPointer(unsafe.Pointer(c))
}

// Interrupt sets the host-cancellation flag (spec §5); the interpreter
// throws a synthesised InterruptError at the next jump (conditional or
// not, forward or backward) or call instruction.
func (m *VM) Interrupt(reason string) {
	m.interruptReason.Store(reason)
	atomic.StoreInt32(&m.interruptFlag, 1)
}

func (m *VM) checkInterrupt() error {
	if atomic.CompareAndSwapInt32(&m.interruptFlag, 1, 0) {
		reason, _ := m.interruptReason.Load().(string)
		return errs.NewInterruptError(reason)
	}
	return nil
}

// SetErrorPrototype wires the prototype object the host's built-in
// library uses for errors of kind k, so that exceptions the
// interpreter raises internally chain to the script-visible error
// constructor's prototype (spec §7).
func (m *VM) SetErrorPrototype(k errs.Kind, proto *object.Object) {
	if m.errorPrototypes == nil {
		m.errorPrototypes = make(map[errs.Kind]*object.Object)
	}
	m.errorPrototypes[k] = proto
}

func (m *VM) globalSite(name object.SymbolID) *ic.Site {
	if s, ok := m.globalSites[name]; ok {
		return s
	}
	s := ic.NewGlobalSite(m.params.ICCapacity, m.metrics)
	m.globalSites[name] = s
	return s
}
