package vm

import (
	"github.com/lumenjs/core/bytecode"
	"github.com/lumenjs/core/errs"
	"github.com/lumenjs/core/object"
	"github.com/lumenjs/core/value"
)

// SetArrayPrototype wires the prototype object new-array/new-array-
// with-elements assigns to freshly created arrays.
func (m *VM) SetArrayPrototype(proto *object.Object) { m.arrayPrototype = proto }

// Call invokes callee (a Closure or NativeFunction cell) with this and
// args bound, per spec §4.6's call mechanics. A non-callable callee is
// a TypeError.
func (m *VM) Call(callee value.Value, this value.Value, args []value.Value) (value.Value, error) {
	if !callee.IsCell() {
		return value.Undefined(), errs.NewTypeError("call", typeErrorTag(callee))
	}
	cell, ok := m.resolve(uintptr(callee.AsCellPointer()))
	if !ok {
		return value.Undefined(), errs.NewTypeError("call", "cell")
	}
	switch c := cell.(type) {
	case *NativeFunction:
		v, err := c.Fn(m, this, args)
		if err != nil {
			if _, isThrown := err.(*thrownError); isThrown {
				return value.Undefined(), err
			}
			return value.Undefined(), throwValue(m.errorToValue(err))
		}
		return v, nil
	case *Closure:
		return m.callClosure(c, this, args)
	default:
		return value.Undefined(), errs.NewTypeError("call", "cell")
	}
}

// Construct implements `construct`: this is bound to a freshly created
// object whose prototype is the callee's own "prototype" property; if
// the callee returns a non-object value, the freshly created `this` is
// yielded instead (spec §4.6).
func (m *VM) Construct(callee value.Value, args []value.Value) (value.Value, error) {
	if !callee.IsCell() {
		return value.Undefined(), errs.NewTypeError("construct", typeErrorTag(callee))
	}
	cell, ok := m.resolve(uintptr(callee.AsCellPointer()))
	if !ok {
		return value.Undefined(), errs.NewTypeError("construct", "cell")
	}
	var proto *object.Object
	switch c := cell.(type) {
	case *Closure:
		proto = c.Prototype
	case *NativeFunction:
		proto = c.Prototype
	default:
		return value.Undefined(), errs.NewTypeError("construct", "cell")
	}
	freshThis := m.allocObject(m.structureBase(proto))
	result, err := m.Call(callee, objectValue(freshThis), args)
	if err != nil {
		return value.Undefined(), err
	}
	if result.IsCell() {
		if c, ok := m.resolve(uintptr(result.AsCellPointer())); ok {
			if _, isStr := c.(*StringCell); !isStr {
				return result, nil
			}
		}
	}
	return objectValue(freshThis), nil
}

func (m *VM) structureBase(proto *object.Object) *object.Structure {
	if proto == nil {
		return m.globalStructure0
	}
	return m.globalStructure0.WithPrototype(proto)
}

func (m *VM) callClosure(c *Closure, this value.Value, args []value.Value) (value.Value, error) {
	if len(m.frames) >= int(m.params.CallStackDepth) {
		return value.Undefined(), errs.NewInternalError("call-stack-depth", "maximum call depth exceeded")
	}
	f := newFrame(m, c, this, m.operand.len())
	for i := 0; i < c.Proto.ParamCount; i++ {
		v := value.Undefined()
		if i < len(args) {
			v = args[i]
		}
		f.setLocal(firstLocal+i, v)
	}
	m.frames = append(m.frames, f)
	m.shadow.Push(f.locals)
	if m.metrics != nil {
		m.metrics.CallFrameDepth.Set(float64(len(m.frames)))
	}
	v, err := m.run(f)
	m.shadow.Pop()
	m.frames = m.frames[:len(m.frames)-1]
	m.operand.truncateTo(f.operandBase)
	return v, err
}

func (m *VM) receiverObject(v value.Value, op string) (*object.Object, error) {
	if !v.IsCell() {
		return nil, errs.NewTypeError(op, typeErrorTag(v))
	}
	cell, ok := m.resolve(uintptr(v.AsCellPointer()))
	if !ok {
		return nil, errs.NewTypeError(op, "cell")
	}
	obj, ok := cell.(*object.Object)
	if !ok {
		return nil, errs.NewTypeError(op, "cell")
	}
	return obj, nil
}

// run executes f's bytecode from its current ip until a return or an
// unhandled throw (spec §4.6's execution model).
func (m *VM) run(f *Frame) (value.Value, error) {
	code := f.code
	for {
		if f.ip >= code.Len() {
			return value.Undefined(), nil
		}
		instr := code.At(f.ip)
		op, operand := instr.Op, instr.Operand
		f.ip++

		if op.IsBackwardBranchSafepoint() {
			if err := m.checkInterrupt(); err != nil {
				if m.dispatch(f, err) {
					continue
				}
				return value.Undefined(), err
			}
		}

		var stepErr error
		switch op {
		case bytecode.OpPushConstant:
			_, stepErr = m.pushConstant(code, operand)

		case bytecode.OpPushUndefined:
			stepErr = m.operand.push(value.Undefined())
		case bytecode.OpPushNull:
			stepErr = m.operand.push(value.Null())
		case bytecode.OpPushThis:
			stepErr = m.operand.push(f.this())
		case bytecode.OpPop:
			m.operand.pop()
		case bytecode.OpDup:
			stepErr = m.operand.dup()
		case bytecode.OpSwap:
			m.operand.swap()

		case bytecode.OpLoadLocal:
			stepErr = m.operand.push(f.getLocal(int(operand)))
		case bytecode.OpStoreLocal:
			f.setLocal(int(operand), m.operand.pop())
		case bytecode.OpLoadUpvalue:
			stepErr = m.operand.push(f.closure.Upvalues[operand].Get())
		case bytecode.OpStoreUpvalue:
			f.closure.Upvalues[operand].Set(m.operand.pop())
		case bytecode.OpDeclareBinding:
			f.setLocal(int(operand), value.Empty())

		case bytecode.OpLoadGlobal:
			stepErr = m.execLoadGlobal(code, operand)
		case bytecode.OpStoreGlobal:
			stepErr = m.execStoreGlobal(code, operand)

		case bytecode.OpGetByName:
			stepErr = m.execGetByName(code, operand)
		case bytecode.OpSetByName:
			stepErr = m.execSetByName(code, operand)
		case bytecode.OpGetByIndex:
			stepErr = m.execGetByIndex()
		case bytecode.OpSetByIndex:
			stepErr = m.execSetByIndex()
		case bytecode.OpDeleteByName:
			stepErr = m.execDeleteByName(code, operand)

		case bytecode.OpAdd:
			stepErr = m.binaryOp(m.add)
		case bytecode.OpSub:
			stepErr = m.binaryOp(m.sub)
		case bytecode.OpMul:
			stepErr = m.binaryOp(m.mul)
		case bytecode.OpDiv:
			stepErr = m.binaryOp(m.div)
		case bytecode.OpRem:
			stepErr = m.binaryOp(m.rem)
		case bytecode.OpNeg:
			a := m.operand.pop()
			v, _ := m.neg(a)
			stepErr = m.operand.push(v)
		case bytecode.OpShl:
			b, a := m.operand.pop(), m.operand.pop()
			stepErr = m.operand.push(m.shl(a, b))
		case bytecode.OpShr:
			b, a := m.operand.pop(), m.operand.pop()
			stepErr = m.operand.push(m.shr(a, b))
		case bytecode.OpUShr:
			b, a := m.operand.pop(), m.operand.pop()
			stepErr = m.operand.push(m.ushr(a, b))
		case bytecode.OpAnd:
			b, a := m.operand.pop(), m.operand.pop()
			stepErr = m.operand.push(m.bitwise(func(x, y int32) int32 { return x & y })(a, b))
		case bytecode.OpOr:
			b, a := m.operand.pop(), m.operand.pop()
			stepErr = m.operand.push(m.bitwise(func(x, y int32) int32 { return x | y })(a, b))
		case bytecode.OpXor:
			b, a := m.operand.pop(), m.operand.pop()
			stepErr = m.operand.push(m.bitwise(func(x, y int32) int32 { return x ^ y })(a, b))
		case bytecode.OpNot:
			a := m.operand.pop()
			stepErr = m.operand.push(value.FromBool(!truthy(a)))

		case bytecode.OpLess:
			stepErr = m.compareOp(m.less)
		case bytecode.OpLessEqual:
			stepErr = m.compareOp(m.lessEqual)
		case bytecode.OpGreater:
			stepErr = m.compareOp(m.greater)
		case bytecode.OpGreaterEqual:
			stepErr = m.compareOp(m.greaterEqual)
		case bytecode.OpEqual:
			stepErr = m.compareOp(m.equals)
		case bytecode.OpNotEqual:
			stepErr = m.compareOp(func(a, b value.Value) bool { return !m.equals(a, b) })
		case bytecode.OpStrictEqual:
			stepErr = m.compareOp(m.strictEquals)
		case bytecode.OpStrictNotEqual:
			stepErr = m.compareOp(func(a, b value.Value) bool { return !m.strictEquals(a, b) })

		case bytecode.OpJump:
			f.ip = int(operand)
		case bytecode.OpJumpIfTrue:
			if truthy(m.operand.pop()) {
				f.ip = int(operand)
			}
		case bytecode.OpJumpIfFalse:
			if !truthy(m.operand.pop()) {
				f.ip = int(operand)
			}

		case bytecode.OpReturn:
			return m.operand.pop(), nil
		case bytecode.OpThrow:
			exc := m.operand.pop()
			if m.dispatch(f, throwValue(exc)) {
				continue
			}
			return value.Undefined(), throwValue(exc)

		case bytecode.OpCall:
			stepErr = m.execCall(f, int(operand), false)
		case bytecode.OpConstruct:
			stepErr = m.execCall(f, int(operand), true)
		case bytecode.OpSpreadCall:
			stepErr = m.execSpreadCall(f, int(operand))

		case bytecode.OpNewObject:
			stepErr = m.operand.push(objectValue(m.allocObject(m.globalStructure0)))
		case bytecode.OpNewArray:
			stepErr = m.operand.push(objectValue(m.allocObject(m.structureBase(m.arrayPrototype))))
		case bytecode.OpNewArrayWithElements:
			stepErr = m.execNewArrayWithElements(int(operand))
		case bytecode.OpNewClosure:
			stepErr = m.execNewClosure(f, code, int(operand))

		case bytecode.OpEnterTry:
			f.pushHandler(operand)
		case bytecode.OpLeaveTry:
			f.popHandler()

		default:
			stepErr = errs.NewInternalError("opcode", "unrecognized instruction "+op.String())
		}

		if stepErr != nil {
			if m.dispatch(f, stepErr) {
				continue
			}
			return value.Undefined(), stepErr
		}
	}
}

func (m *VM) pushConstant(code *bytecode.CodeBlock, idx int32) (value.Value, error) {
	c := code.Constants[idx]
	switch c.Kind {
	case bytecode.ConstNumber:
		v := value.FromFloat64(c.Number)
		return v, m.operand.push(v)
	case bytecode.ConstString:
		v, err := m.allocString(c.Str)
		if err != nil {
			return v, err
		}
		return v, m.operand.push(v)
	default:
		return value.Undefined(), m.operand.push(value.Undefined())
	}
}

func (m *VM) binaryOp(fn func(a, b value.Value) (value.Value, error)) error {
	b, a := m.operand.pop(), m.operand.pop()
	v, err := fn(a, b)
	if err != nil {
		return err
	}
	return m.operand.push(v)
}

func (m *VM) compareOp(fn func(a, b value.Value) bool) error {
	b, a := m.operand.pop(), m.operand.pop()
	return m.operand.push(value.FromBool(fn(a, b)))
}

func (m *VM) execLoadGlobal(code *bytecode.CodeBlock, siteIdx int32) error {
	site := code.CacheSites[siteIdx]
	name := code.CacheNames[siteIdx]
	structure := m.globals.Structure()
	if slot, _, ok := site.Lookup(structure); ok {
		return m.operand.push(m.globals.SlotValue(slot))
	}
	v, ok := m.globals.GetProperty(name)
	if !ok {
		return errs.NewReferenceError(object.Symbols.Name(name))
	}
	if slot, _, ok := structure.Lookup(name); ok {
		site.Record(structure, slot, nil)
	}
	return m.operand.push(v)
}

func (m *VM) execStoreGlobal(code *bytecode.CodeBlock, siteIdx int32) error {
	site := code.CacheSites[siteIdx]
	name := code.CacheNames[siteIdx]
	v := m.operand.pop()
	m.globals.SetProperty(name, object.AttrWritable|object.AttrEnumerable|object.AttrConfigurable, v)
	if slot, _, ok := m.globals.Structure().Lookup(name); ok {
		site.Record(m.globals.Structure(), slot, nil)
	}
	return nil
}

func (m *VM) execGetByName(code *bytecode.CodeBlock, siteIdx int32) error {
	recv := m.operand.pop()
	obj, err := m.receiverObject(recv, "get-by-name")
	if err != nil {
		return err
	}
	site := code.CacheSites[siteIdx]
	name := code.CacheNames[siteIdx]
	if obj.Structure() != nil {
		if slot, _, ok := site.Lookup(obj.Structure()); ok {
			return m.operand.push(obj.SlotValue(slot))
		}
	}
	v, _ := obj.GetProperty(name)
	if slot, _, ok := obj.Structure().Lookup(name); ok {
		site.Record(obj.Structure(), slot, nil)
	}
	return m.operand.push(v)
}

func (m *VM) execSetByName(code *bytecode.CodeBlock, siteIdx int32) error {
	v := m.operand.pop()
	recv := m.operand.pop()
	obj, err := m.receiverObject(recv, "set-by-name")
	if err != nil {
		return err
	}
	site := code.CacheSites[siteIdx]
	name := code.CacheNames[siteIdx]
	if slot, _, ok := site.Lookup(obj.Structure()); ok {
		obj.SetSlotValue(slot, v)
		return nil
	}
	obj.SetProperty(name, object.AttrWritable|object.AttrEnumerable|object.AttrConfigurable, v)
	if slot, _, ok := obj.Structure().Lookup(name); ok {
		site.Record(obj.Structure(), slot, nil)
	}
	return nil
}

func (m *VM) execDeleteByName(code *bytecode.CodeBlock, siteIdx int32) error {
	recv := m.operand.pop()
	obj, err := m.receiverObject(recv, "delete")
	if err != nil {
		return err
	}
	name := code.CacheNames[siteIdx]
	obj.DeleteProperty(name)
	return nil
}

func (m *VM) execGetByIndex() error {
	idx := m.operand.pop()
	recv := m.operand.pop()
	obj, err := m.receiverObject(recv, "get-by-index")
	if err != nil {
		return err
	}
	v, ok := obj.GetIndexed(uint32(m.toNumber(idx)))
	if !ok {
		v = value.Undefined()
	}
	return m.operand.push(v)
}

func (m *VM) execSetByIndex() error {
	v := m.operand.pop()
	idx := m.operand.pop()
	recv := m.operand.pop()
	obj, err := m.receiverObject(recv, "set-by-index")
	if err != nil {
		return err
	}
	obj.SetIndexed(uint32(m.toNumber(idx)), v)
	return nil
}

func (m *VM) execNewArrayWithElements(count int) error {
	elems := make([]value.Value, count)
	for i := count - 1; i >= 0; i-- {
		elems[i] = m.operand.pop()
	}
	arr := m.allocObject(m.structureBase(m.arrayPrototype))
	for i, v := range elems {
		arr.SetIndexed(uint32(i), v)
	}
	return m.operand.push(objectValue(arr))
}

// execNewClosure implements new-closure (spec §4.6): bundling the
// nested code block at Nested[nestedIdx] with the upvalues its own
// UpvalueCaptures table says to pull from this (the enclosing) frame —
// either a local this frame already boxed (CaptureLocal) or a cell
// this frame's own closure already captured one level further out
// (CaptureEnclosing), letting capture chains of arbitrary depth share
// the same backing cell as the binding's original scope.
func (m *VM) execNewClosure(f *Frame, code *bytecode.CodeBlock, nestedIdx int) error {
	proto := code.Nested[nestedIdx]
	upvalues := make([]*Upvalue, len(proto.UpvalueCaptures))
	for i, capture := range proto.UpvalueCaptures {
		switch capture.Kind {
		case bytecode.CaptureLocal:
			upvalues[i] = f.capturedUpvalue(capture.Index)
		case bytecode.CaptureEnclosing:
			upvalues[i] = f.closure.Upvalues[capture.Index]
		}
	}
	cl := m.allocClosure(proto, upvalues)
	return m.operand.push(closureValue(cl))
}

func (m *VM) execCall(f *Frame, argc int, construct bool) error {
	args := make([]value.Value, argc)
	for i := argc - 1; i >= 0; i-- {
		args[i] = m.operand.pop()
	}
	thisVal := m.operand.pop()
	callee := m.operand.pop()
	var (
		result value.Value
		err    error
	)
	if construct {
		result, err = m.Construct(callee, args)
	} else {
		result, err = m.Call(callee, thisVal, args)
	}
	if err != nil {
		return err
	}
	return m.operand.push(result)
}

func (m *VM) execSpreadCall(f *Frame, argc int) error {
	// The last of the argc operand-stack values is itself an array-like
	// object to be spread; everything before it is passed positionally.
	raw := make([]value.Value, argc)
	for i := argc - 1; i >= 0; i-- {
		raw[i] = m.operand.pop()
	}
	thisVal := m.operand.pop()
	callee := m.operand.pop()
	if argc == 0 {
		result, err := m.Call(callee, thisVal, nil)
		if err != nil {
			return err
		}
		return m.operand.push(result)
	}
	fixed := raw[:len(raw)-1]
	spreadObj, err := m.receiverObject(raw[len(raw)-1], "spread-call")
	if err != nil {
		return err
	}
	var args []value.Value
	args = append(args, fixed...)
	for i := uint32(0); i < spreadObj.Length(); i++ {
		v, ok := spreadObj.GetIndexed(i)
		if !ok {
			v = value.Undefined()
		}
		args = append(args, v)
	}
	result, callErr := m.Call(callee, thisVal, args)
	if callErr != nil {
		return callErr
	}
	return m.operand.push(result)
}
