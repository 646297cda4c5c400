package vm

import (
	"unsafe"

	"github.com/lumenjs/core/bytecode"
	"github.com/lumenjs/core/roots"
	"github.com/lumenjs/core/value"
)

// Local slot layout convention for every Frame (spec §6 leaves the
// compiler external and silent on exact slot numbering, so the VM
// fixes one): slot 0 holds `this`, slot 1 holds the running closure
// (boxed as a cell-tagged Value so the shadow stack roots it for the
// whole activation), slots 2..2+ParamCount hold parameters, and the
// remaining slots hold declared locals.
const (
	thisSlot    = 0
	closureSlot = 1
	firstLocal  = 2
)

// activeHandler is one live enter-try region: the static handler record
// plus the operand-stack depth captured when enter-try ran it.
type activeHandler struct {
	rec       bytecode.ExceptionHandler
	stackBase int
}

// Frame is one call activation (spec §4.6): a code block, an
// instruction pointer into it, a window of the shared operand stack,
// and a precise root set for its locals (backed by roots.Frame).
type Frame struct {
	closure     *Closure
	code        *bytecode.CodeBlock
	ip          int
	locals      *roots.Frame
	boxed       map[int]*Upvalue
	operandBase int
	handlers    []activeHandler
}

// newFrame allocates a Frame for invoking closure with this bound to
// thisVal, the operand stack currently at depth operandBase. Every
// local slot the proto's CapturedLocals names is boxed into its own
// Upvalue cell up front, so a nested new-closure instruction can borrow
// it directly and a write through either the local or the closure that
// captured it is visible to the other (spec §4.6's shared-upvalue
// requirement).
func newFrame(m *VM, closure *Closure, thisVal value.Value, operandBase int) *Frame {
	code := closure.Proto
	f := &Frame{
		closure:     closure,
		code:        code,
		locals:      roots.NewFrame(firstLocal + code.ParamCount + code.LocalCount),
		operandBase: operandBase,
	}
	f.locals.Set(thisSlot, thisVal)
	f.locals.Set(closureSlot, value.FromCellPointer(unsafe.Pointer(closure)))
	if len(code.CapturedLocals) > 0 {
		f.boxed = make(map[int]*Upvalue, len(code.CapturedLocals))
		for _, slot := range code.CapturedLocals {
			f.boxed[int(slot)] = m.allocUpvalue(value.Empty())
		}
	}
	return f
}

func (f *Frame) this() value.Value { return f.locals.Get(thisSlot) }

// getLocal and setLocal are OpLoadLocal/OpStoreLocal's implementation:
// a boxed slot reads/writes through its Upvalue cell, an unboxed slot
// reads/writes the frame's own root-scanned slot array directly.
func (f *Frame) getLocal(slot int) value.Value {
	if u, ok := f.boxed[slot]; ok {
		return u.Get()
	}
	return f.locals.Get(slot)
}

func (f *Frame) setLocal(slot int, v value.Value) {
	if u, ok := f.boxed[slot]; ok {
		u.Set(v)
		return
	}
	f.locals.Set(slot, v)
}

// capturedUpvalue returns the boxed cell backing one of this frame's
// own local slots, for a nested new-closure instruction's CaptureLocal
// entries. The compiler is responsible for only emitting CaptureLocal
// against slots it also added to CapturedLocals.
func (f *Frame) capturedUpvalue(slot int32) *Upvalue { return f.boxed[int(slot)] }

// pushHandler activates the try region at code.Handlers[idx]. The
// operand stack position a catch unwind truncates to is the frame's
// own base plus the handler's statically recorded within-frame depth
// (ExceptionHandler.StackDepth), not just the frame's base — a throw
// inside an expression with operands already pushed above the try's
// entry must still discard exactly those, no more and no less.
func (f *Frame) pushHandler(idx int32) {
	rec := f.code.Handlers[idx]
	f.handlers = append(f.handlers, activeHandler{rec: rec, stackBase: f.operandBase + rec.StackDepth})
}

func (f *Frame) popHandler() {
	if len(f.handlers) == 0 {
		return
	}
	f.handlers = f.handlers[:len(f.handlers)-1]
}

// findHandler pops handlers that have gone out of scope (their try
// region no longer encloses ip) and returns the innermost one still
// covering the current ip, if any.
func (f *Frame) findHandler() (activeHandler, bool) {
	for len(f.handlers) > 0 {
		h := f.handlers[len(f.handlers)-1]
		if f.ip >= h.rec.TryStart && f.ip < h.rec.TryEnd {
			return h, true
		}
		f.handlers = f.handlers[:len(f.handlers)-1]
	}
	return activeHandler{}, false
}
