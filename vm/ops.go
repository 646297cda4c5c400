package vm

import (
	"fmt"
	"math"

	"github.com/lumenjs/core/value"
)

// toNumber implements a deliberately narrow ToNumber (spec's tie-break
// paragraph only names the number/string split for `+` and IEEE-754
// comparison for the rest; full ECMAScript ToPrimitive/ToNumber is the
// external compiler and built-ins library's concern, not the core's).
func (m *VM) toNumber(v value.Value) float64 {
	switch {
	case v.IsDouble():
		return v.AsFloat64()
	case v.IsInt32():
		return float64(v.AsInt32())
	case v.IsBool():
		if v.AsBool() {
			return 1
		}
		return 0
	case v.IsNull():
		return 0
	case v.IsUndefined(), v.IsEmpty():
		return math.NaN()
	case v.IsCell():
		if s, ok := m.asStringCell(v); ok {
			var f float64
			if _, err := fmt.Sscanf(s.s, "%g", &f); err == nil {
				return f
			}
			return math.NaN()
		}
		return math.NaN()
	default:
		return math.NaN()
	}
}

// asStringCell resolves v to its *StringCell if v is a cell-tagged
// string, using the VM's heap resolver (spec §4.1: strings live on the
// heap, never in a Value's inline payload).
func (m *VM) asStringCell(v value.Value) (*StringCell, bool) {
	if !v.IsCell() {
		return nil, false
	}
	c, ok := m.resolve(uintptr(v.AsCellPointer()))
	if !ok {
		return nil, false
	}
	s, ok := c.(*StringCell)
	return s, ok
}

// displayString renders v the way string concatenation and the print
// channel do.
func (m *VM) displayString(v value.Value) string {
	switch {
	case v.IsUndefined():
		return "undefined"
	case v.IsNull():
		return "null"
	case v.IsBool():
		if v.AsBool() {
			return "true"
		}
		return "false"
	case v.IsInt32():
		return fmt.Sprintf("%d", v.AsInt32())
	case v.IsDouble():
		f := v.AsFloat64()
		if math.IsNaN(f) {
			return "NaN"
		}
		if math.IsInf(f, 1) {
			return "Infinity"
		}
		if math.IsInf(f, -1) {
			return "-Infinity"
		}
		return fmt.Sprintf("%g", f)
	case v.IsCell():
		if s, ok := m.asStringCell(v); ok {
			return s.s
		}
		return "[object Object]"
	default:
		return ""
	}
}

// DisplayString renders v the way string concatenation and a built-in
// like console.log's argument formatting do, exposed for native
// functions and host code outside this package (spec §6: the built-in
// library contract includes "value conversion").
func (m *VM) DisplayString(v value.Value) string { return m.displayString(v) }

// add implements the `+` tie-break: string concatenation if either
// operand is a string, numeric addition otherwise.
func (m *VM) add(a, b value.Value) (value.Value, error) {
	_, aIsStr := m.asStringCell(a)
	_, bIsStr := m.asStringCell(b)
	if aIsStr || bIsStr {
		s := m.displayString(a) + m.displayString(b)
		return m.allocString(s)
	}
	return value.FromFloat64(m.toNumber(a) + m.toNumber(b)), nil
}

func (m *VM) arith(op func(x, y float64) float64) func(a, b value.Value) (value.Value, error) {
	return func(a, b value.Value) (value.Value, error) {
		return value.FromFloat64(op(m.toNumber(a), m.toNumber(b))), nil
	}
}

func (m *VM) sub(a, b value.Value) (value.Value, error) { return m.arith(func(x, y float64) float64 { return x - y })(a, b) }
func (m *VM) mul(a, b value.Value) (value.Value, error) { return m.arith(func(x, y float64) float64 { return x * y })(a, b) }
func (m *VM) div(a, b value.Value) (value.Value, error) { return m.arith(func(x, y float64) float64 { return x / y })(a, b) }
func (m *VM) rem(a, b value.Value) (value.Value, error) {
	return m.arith(math.Mod)(a, b)
}

func (m *VM) neg(a value.Value) (value.Value, error) {
	return value.FromFloat64(-m.toNumber(a)), nil
}

func toInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int32(uint32(int64(f)))
}

func (m *VM) bitwise(op func(x, y int32) int32) func(a, b value.Value) value.Value {
	return func(a, b value.Value) value.Value {
		return value.FromInt32(op(toInt32(m.toNumber(a)), toInt32(m.toNumber(b))))
	}
}

func (m *VM) shl(a, b value.Value) value.Value {
	return value.FromInt32(toInt32(m.toNumber(a)) << (uint32(toInt32(m.toNumber(b))) & 31))
}
func (m *VM) shr(a, b value.Value) value.Value {
	return value.FromInt32(toInt32(m.toNumber(a)) >> (uint32(toInt32(m.toNumber(b))) & 31))
}
func (m *VM) ushr(a, b value.Value) value.Value {
	return value.FromInt32(int32(uint32(toInt32(m.toNumber(a))) >> (uint32(toInt32(m.toNumber(b))) & 31)))
}

// relational implements ECMAScript abstract-relational-comparison
// semantics: strings compare lexicographically by code unit (Go string
// byte comparison stands in for that here, since UTF-16 code units are
// outside this core's scope), numbers compare per IEEE-754 with NaN
// comparing false to everything.
func (m *VM) relational(a, b value.Value) (less, equal, ok bool) {
	as, aIsStr := m.asStringCell(a)
	bs, bIsStr := m.asStringCell(b)
	if aIsStr && bIsStr {
		if as.s == bs.s {
			return false, true, true
		}
		return as.s < bs.s, false, true
	}
	x, y := m.toNumber(a), m.toNumber(b)
	if math.IsNaN(x) || math.IsNaN(y) {
		return false, false, false
	}
	return x < y, x == y, true
}

func (m *VM) less(a, b value.Value) bool {
	lt, _, ok := m.relational(a, b)
	return ok && lt
}
func (m *VM) lessEqual(a, b value.Value) bool {
	lt, eq, ok := m.relational(a, b)
	return ok && (lt || eq)
}
func (m *VM) greater(a, b value.Value) bool {
	lt, eq, ok := m.relational(a, b)
	return ok && !lt && !eq
}
func (m *VM) greaterEqual(a, b value.Value) bool {
	lt, _, ok := m.relational(a, b)
	return ok && !lt
}

// strictEquals implements `===`: same tag and same payload, except that
// the two numeric tags (double, int32) compare by numeric value, and
// two string cells compare by content rather than cell identity —
// JavaScript strings are a value type even though this engine boxes
// them on the heap.
func (m *VM) strictEquals(a, b value.Value) bool {
	if a.IsNumber() && b.IsNumber() {
		return m.toNumber(a) == m.toNumber(b)
	}
	if a.Tag() != b.Tag() {
		return false
	}
	switch {
	case a.IsBool():
		return a.AsBool() == b.AsBool()
	case a.IsNull(), a.IsUndefined(), a.IsEmpty():
		return true
	case a.IsCell():
		as, aIsStr := m.asStringCell(a)
		bs, bIsStr := m.asStringCell(b)
		if aIsStr || bIsStr {
			return aIsStr && bIsStr && as.s == bs.s
		}
		return a.AsCellPointer() == b.AsCellPointer()
	default:
		return false
	}
}

// equals implements `==`. This core does not implement the full
// ToPrimitive/ToNumber coercion ladder (external compiler/built-ins
// territory per spec §6); the one coercion it does apply — null and
// undefined compare equal to each other and to nothing else — is
// exactly the rule value.Value.IsNullOrUndefined already encodes.
func (m *VM) equals(a, b value.Value) bool {
	if a.IsNullOrUndefined() || b.IsNullOrUndefined() {
		return a.IsNullOrUndefined() == b.IsNullOrUndefined() && a.IsNullOrUndefined()
	}
	return m.strictEquals(a, b)
}

func truthy(v value.Value) bool {
	switch {
	case v.IsBool():
		return v.AsBool()
	case v.IsUndefined(), v.IsNull(), v.IsEmpty():
		return false
	case v.IsDouble():
		f := v.AsFloat64()
		return f != 0 && !math.IsNaN(f)
	case v.IsInt32():
		return v.AsInt32() != 0
	default:
		return true
	}
}

func typeErrorTag(v value.Value) string { return v.Tag().String() }
