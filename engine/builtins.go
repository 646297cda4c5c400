package engine

import (
	"sort"

	"github.com/lumenjs/core/errs"
	"github.com/lumenjs/core/object"
	"github.com/lumenjs/core/value"
	"github.com/lumenjs/core/vm"
)

var errorKinds = []struct {
	kind errs.Kind
	name string
}{
	{errs.KindType, "TypeError"},
	{errs.KindRange, "RangeError"},
	{errs.KindReference, "ReferenceError"},
	{errs.KindSyntax, "SyntaxError"},
	{errs.KindInternal, "InternalError"},
	{errs.KindInterrupt, "InterruptError"},
}

// installBuiltins wires the minimal built-in library spec §7's error
// hierarchy and spec §4.6's array literals need: one prototype per
// error kind, chained under a common Error.prototype, bound via
// SetErrorPrototype so an exception the interpreter raises internally
// carries the same prototype a script's own `new TypeError(...)` would
// get; and a shared array prototype wired via SetArrayPrototype.
// Grounded on go-ethereum's internal/jsre binding a handful of named
// globals onto the runtime at construction time rather than lazily on
// first reference.
func installBuiltins(m *vm.VM) {
	attrs := object.AttrWritable | object.AttrEnumerable | object.AttrConfigurable

	errorProto := m.NewObject(nil)
	setString(m, errorProto, attrs, "name", "Error")
	errorCtor := m.NewConstructor("Error", errorConstructor(), errorProto)
	m.Globals().SetProperty(object.Symbols.Intern("Error"), attrs, errorCtor)

	for _, ek := range errorKinds {
		proto := m.NewObject(errorProto)
		setString(m, proto, attrs, "name", ek.name)
		ctor := m.NewConstructor(ek.name, errorConstructor(), proto)
		m.Globals().SetProperty(object.Symbols.Intern(ek.name), attrs, ctor)
		m.SetErrorPrototype(ek.kind, proto)
	}

	arrayProto := m.NewObject(nil)
	setNativeMethod(m, arrayProto, attrs, "push", arrayPush)
	setNativeMethod(m, arrayProto, attrs, "sort", arraySort)
	m.SetArrayPrototype(arrayProto)

	// Object is exposed as a plain namespace object rather than a
	// callable constructor: NativeFunction carries no property storage
	// of its own (see DESIGN.md's "Closure prototype ownership" entry —
	// the same reasoning rules out static methods hanging off a callee
	// cell here), so `Object.create` lives on an ordinary object instead.
	objectNamespace := m.NewObject(nil)
	setNativeMethod(m, objectNamespace, attrs, "create", objectCreate)
	m.Globals().SetProperty(object.Symbols.Intern("Object"), attrs, vm.ObjectValue(objectNamespace))

	m.Globals().SetProperty(object.Symbols.Intern("globalThis"), attrs, vm.ObjectValue(m.Globals()))
}

// objectCreate implements Object.create(proto): a new object whose
// prototype is exactly the argument given (spec §8's scenario 2, the
// prototype-chain read/write test), or null-prototype when called with
// null/undefined.
func objectCreate(m *vm.VM, this value.Value, args []value.Value) (value.Value, error) {
	if len(args) == 0 || !args[0].IsCell() {
		return vm.ObjectValue(m.NewObject(nil)), nil
	}
	proto, err := receiverObject(m, args[0])
	if err != nil {
		return value.Undefined(), err
	}
	return vm.ObjectValue(m.NewObject(proto)), nil
}

func setString(m *vm.VM, obj *object.Object, attrs object.Attribute, key, s string) {
	v, _ := m.NewString(s)
	obj.SetProperty(object.Symbols.Intern(key), attrs, v)
}

func setNativeMethod(m *vm.VM, obj *object.Object, attrs object.Attribute, name string, fn vm.NativeFunc) {
	obj.SetProperty(object.Symbols.Intern(name), attrs, m.NewNativeFunction(name, fn))
}

// errorConstructor is the call handler shared by Error and every
// error-kind constructor: set `message` on `this` from the first
// argument, if any. By the time it runs, `this` already carries the
// right prototype — Construct binds a fresh object rooted at the
// callee's own Prototype before calling.
func errorConstructor() vm.NativeFunc {
	return func(m *vm.VM, this value.Value, args []value.Value) (value.Value, error) {
		obj, err := receiverObject(m, this)
		if err != nil {
			return value.Undefined(), err
		}
		if len(args) > 0 {
			attrs := object.AttrWritable | object.AttrEnumerable | object.AttrConfigurable
			setString(m, obj, attrs, "message", m.DisplayString(args[0]))
		}
		return this, nil
	}
}

func receiverObject(m *vm.VM, v value.Value) (*object.Object, error) {
	if !v.IsCell() {
		return nil, errs.NewTypeError("receiver", v.Tag().String())
	}
	cell, ok := m.Resolve(uintptr(v.AsCellPointer()))
	if !ok {
		return nil, errs.NewTypeError("receiver", "cell")
	}
	obj, ok := cell.(*object.Object)
	if !ok {
		return nil, errs.NewTypeError("receiver", "cell")
	}
	return obj, nil
}

// arrayPush implements Array.prototype.push: append each argument past
// the receiver's current Length, returning the new length.
func arrayPush(m *vm.VM, this value.Value, args []value.Value) (value.Value, error) {
	obj, err := receiverObject(m, this)
	if err != nil {
		return value.Undefined(), err
	}
	n := obj.Length()
	for i, a := range args {
		obj.SetIndexed(n+uint32(i), a)
	}
	return value.FromFloat64(float64(obj.Length())), nil
}

// arraySort implements Array.prototype.sort(comparator): reads every
// indexed element up to Length, sorts them by invoking comparator back
// through Call for each comparison (spec's scenario 3), and writes the
// result back over the same indices. The comparator's own thrown error,
// if any, aborts the sort and propagates to the caller — sort.Slice
// itself cannot report an error mid-sort, so the first one observed is
// stashed and replayed after sort.SliceStable returns.
func arraySort(m *vm.VM, this value.Value, args []value.Value) (value.Value, error) {
	obj, err := receiverObject(m, this)
	if err != nil {
		return value.Undefined(), err
	}
	if len(args) == 0 || !args[0].IsCell() {
		return value.Undefined(), errs.NewTypeError("sort", "comparator")
	}
	comparator := args[0]

	n := int(obj.Length())
	elems := make([]value.Value, n)
	for i := 0; i < n; i++ {
		elems[i], _ = obj.GetIndexed(uint32(i))
	}

	var sortErr error
	sort.SliceStable(elems, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		result, err := m.Call(comparator, value.Undefined(), []value.Value{elems[i], elems[j]})
		if err != nil {
			sortErr = err
			return false
		}
		return result.NumberValue() < 0
	})
	if sortErr != nil {
		return value.Undefined(), sortErr
	}

	for i, v := range elems {
		obj.SetIndexed(uint32(i), v)
	}
	return this, nil
}
