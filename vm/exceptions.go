package vm

import (
	"github.com/lumenjs/core/errs"
	"github.com/lumenjs/core/object"
	"github.com/lumenjs/core/value"
)

// thrownError carries a JavaScript exception value across Go return
// boundaries as it propagates up the call stack (spec §4.6: "throw
// walks frames from the top, consulting each frame's handler stack").
// Every error the interpreter loop returns once a throw has left the
// frame that raised it is a *thrownError, so a caller's handler search
// always has the exact value a catch clause would see.
type thrownError struct {
	v value.Value
}

func (e *thrownError) Error() string { return "uncaught exception: " + e.v.Tag().String() }

func throwValue(v value.Value) error { return &thrownError{v: v} }

// valueOfError unwraps err to the JavaScript value a catch clause
// should see: the carried value for a thrownError, or a freshly
// constructed error object for any other Go error the interpreter or
// a native function returned (spec §4.11's typed error hierarchy,
// surfaced as first-class exceptions per spec §7).
func (m *VM) valueOfError(err error) value.Value {
	if te, ok := err.(*thrownError); ok {
		return te.v
	}
	return m.errorToValue(err)
}

func kindOf(err error) errs.Kind {
	switch err.(type) {
	case *errs.TypeError:
		return errs.KindType
	case *errs.RangeError:
		return errs.KindRange
	case *errs.ReferenceError:
		return errs.KindReference
	case *errs.SyntaxError:
		return errs.KindSyntax
	case *errs.InterruptError:
		return errs.KindInterrupt
	default:
		return errs.KindInternal
	}
}

// errorToValue builds the object a script-visible exception of kind
// err carries: a plain object (prototype set to the host's registered
// constructor prototype for that kind, if any, via SetErrorPrototype)
// with `name` and `message` own properties.
func (m *VM) errorToValue(err error) value.Value {
	kind := kindOf(err)
	obj := m.allocObject(m.globalStructure0)
	if proto := m.errorPrototypes[kind]; proto != nil {
		obj.SetPrototype(proto)
	}
	nameVal, _ := m.allocString(kind.String())
	msgVal, _ := m.allocString(err.Error())
	attrs := object.AttrWritable | object.AttrEnumerable | object.AttrConfigurable
	obj.SetProperty(object.Symbols.Intern("name"), attrs, nameVal)
	obj.SetProperty(object.Symbols.Intern("message"), attrs, msgVal)
	return objectValue(obj)
}

// dispatch looks for a handler covering f's current ip; if one exists
// it truncates the operand stack to the handler's recorded depth,
// pushes the exception value, and redirects ip to the handler target
// (spec §4.6's exception mechanics), reporting true. If none exists,
// the caller is responsible for propagating err to its own caller.
func (m *VM) dispatch(f *Frame, err error) bool {
	h, ok := f.findHandler()
	if !ok {
		return false
	}
	m.operand.truncateTo(h.stackBase)
	_ = m.operand.push(m.valueOfError(err))
	f.ip = h.rec.TargetIP
	return true
}
