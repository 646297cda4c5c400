// Package engine implements the host-facing entry point spec §6
// describes: create_engine, destroy_engine, evaluate, call,
// global_object, rooting primitives, and property accessors, layered
// directly on the vm package's interpreter and heap. Everything below
// is a thin, intentionally stateless wrapper — the VM already does the
// real work; this package exists so a host never has to import the vm
// package's lower-level cell types directly.
package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/lumenjs/core/bytecode"
	"github.com/lumenjs/core/errs"
	"github.com/lumenjs/core/log"
	"github.com/lumenjs/core/metrics"
	"github.com/lumenjs/core/object"
	"github.com/lumenjs/core/params"
	"github.com/lumenjs/core/roots"
	"github.com/lumenjs/core/value"
	"github.com/lumenjs/core/vm"
)

// Compiler is the external bytecode compiler spec §6 names: source
// text in, a compiled code block out, or a syntax error. This package
// carries no compiler of its own; a host wires one in at New.
type Compiler interface {
	Compile(source, filename string) (*bytecode.CodeBlock, error)
}

// Engine is one host-visible script execution context, create_engine's
// result. Every Engine owns exactly one vm.VM and therefore exactly
// one heap; engines never share mutable state across threads (spec
// §5) beyond the process-wide symbol table the object package itself
// guards with a reader-writer lock.
type Engine struct {
	ID       uuid.UUID
	vm       *vm.VM
	compiler Compiler
	log      *log.Logger
}

// New is create_engine: builds a fresh VM from p, wires the standard
// error and array prototypes the interpreter consults when it raises
// its own exceptions or allocates an array literal (spec §7), and
// returns a ready-to-run Engine. compiler may be nil if the host only
// ever drives the VM with pre-compiled code blocks (via NewClosure on
// the returned VM) and never calls Evaluate.
func New(p params.EngineParams, compiler Compiler, m *metrics.Set, lg *log.Logger) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid params: %w", err)
	}
	if lg == nil {
		lg = log.Default()
	}
	e := &Engine{
		ID:       uuid.New(),
		vm:       vm.New(p, m, lg),
		compiler: compiler,
		log:      lg.With("engine"),
	}
	installBuiltins(e.vm)
	e.log.Info("engine created", "id", e.ID)
	return e, nil
}

// Close is destroy_engine. The VM and heap are ordinary Go values
// collected once unreferenced; Close exists so a host's resource
// teardown has a symmetric call to make and a point to log from.
func (e *Engine) Close() {
	e.log.Debug("engine closed", "id", e.ID)
}

// Evaluate is evaluate: compiles source with the engine's configured
// compiler and runs the result as a top-level call with the global
// object bound as `this` (spec §6).
func (e *Engine) Evaluate(source string) (value.Value, error) {
	return e.EvaluateFile(source, "<evaluate>")
}

// EvaluateFile is Evaluate with an explicit filename, threaded through
// to the compiler for its own diagnostics.
func (e *Engine) EvaluateFile(source, filename string) (value.Value, error) {
	if e.compiler == nil {
		return value.Undefined(), errs.NewInternalError("compiler", "engine has no compiler configured")
	}
	code, err := e.compiler.Compile(source, filename)
	if err != nil {
		return value.Undefined(), errs.NewSyntaxError(err.Error())
	}
	closure := e.vm.NewClosure(code, nil)
	return e.vm.Call(closure, e.GlobalObjectValue(), nil)
}

// Call is call: invoke fn with this and args bound (spec §6).
func (e *Engine) Call(fn, this value.Value, args []value.Value) (value.Value, error) {
	return e.vm.Call(fn, this, args)
}

// Construct drives `new` from outside script code, the same mechanism
// Call exposes for ordinary invocation — a host embedding this engine
// sometimes needs to build a built-in instance before handing it to a
// script.
func (e *Engine) Construct(fn value.Value, args []value.Value) (value.Value, error) {
	return e.vm.Construct(fn, args)
}

// GlobalObject is global_object, returning the raw object so a host can
// use GetProperty/SetProperty below without re-boxing it.
func (e *Engine) GlobalObject() *object.Object { return e.vm.Globals() }

// GlobalObjectValue is GlobalObject boxed as a Value, the form Call's
// `this` argument needs.
func (e *Engine) GlobalObjectValue() value.Value { return vm.ObjectValue(e.vm.Globals()) }

// Pin and Unpin are the rooting primitives of spec §6: a handle that
// keeps v reachable across GC cycles independent of any call frame.
func (e *Engine) Pin(v value.Value) roots.Handle { return e.vm.Pin(v) }
func (e *Engine) Unpin(h roots.Handle) bool       { return e.vm.Unpin(h) }

// GetProperty and SetProperty are the property accessors of spec §6,
// interning name through the process-wide symbol table (spec §3) so a
// host never interns symbols itself.
func (e *Engine) GetProperty(obj *object.Object, name string) (value.Value, bool) {
	return obj.GetProperty(object.Symbols.Intern(name))
}

func (e *Engine) SetProperty(obj *object.Object, name string, v value.Value) {
	obj.SetProperty(object.Symbols.Intern(name), object.AttrWritable|object.AttrEnumerable|object.AttrConfigurable, v)
}

// NewNativeFunction exposes the built-in library contract of spec §6
// at the host boundary, so an embedder can register its own native
// functions on the global object without importing the vm package.
func (e *Engine) NewNativeFunction(name string, fn vm.NativeFunc) value.Value {
	return e.vm.NewNativeFunction(name, fn)
}

// NewString boxes s as a fresh script-visible string value.
func (e *Engine) NewString(s string) (value.Value, error) { return e.vm.NewString(s) }

// NewObject allocates a plain object whose prototype is proto (nil for
// none).
func (e *Engine) NewObject(proto *object.Object) *object.Object { return e.vm.NewObject(proto) }

// Interrupt sets the host-cancellation flag spec §5 describes; the
// running script throws a synthesised interrupt exception at its next
// backward branch or call.
func (e *Engine) Interrupt(reason string) { e.vm.Interrupt(reason) }

// VM exposes the underlying interpreter for packages that need lower-
// level access than the host API surface gives (the snapshot package's
// serializer walks e.VM().Heap() directly, for instance).
func (e *Engine) VM() *vm.VM { return e.vm }
