package bytecode

import (
	"testing"

	"github.com/lumenjs/core/ic"
	"github.com/lumenjs/core/object"
)

func TestEmitAndDecodeRoundTrip(t *testing.T) {
	b := NewCodeBlock("f", 1, 2)
	idx := b.Emit(OpAdd, 0)
	if idx != 0 {
		t.Fatalf("first instruction index = %d, want 0", idx)
	}
	b.Emit(OpJump, -1)

	if got := b.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	if got := b.At(0); got.Op != OpAdd || got.Operand != 0 {
		t.Fatalf("At(0) = %+v", got)
	}
	if got := b.At(1); got.Op != OpJump || got.Operand != -1 {
		t.Fatalf("At(1) = %+v", got)
	}
}

func TestPatchRewritesOperandInPlace(t *testing.T) {
	b := NewCodeBlock("f", 0, 0)
	jumpIdx := b.Emit(OpJumpIfFalse, -1)
	b.Emit(OpPushUndefined, 0)
	target := b.Emit(OpReturn, 0)

	b.Patch(jumpIdx, int32(target))

	if got := b.At(jumpIdx); got.Operand != int32(target) {
		t.Fatalf("patched operand = %d, want %d", got.Operand, target)
	}
	// Patching must not disturb neighboring instructions.
	if got := b.At(1); got.Op != OpPushUndefined {
		t.Fatalf("neighboring instruction corrupted: %+v", got)
	}
}

func TestNegativeOperandRoundTrips(t *testing.T) {
	b := NewCodeBlock("f", 0, 0)
	b.Emit(OpLoadUpvalue, -12345)
	if got := b.At(0).Operand; got != -12345 {
		t.Fatalf("Operand = %d, want -12345", got)
	}
}

func TestAddConstantReturnsStablePoolIndex(t *testing.T) {
	b := NewCodeBlock("f", 0, 0)
	i0 := b.AddConstant(Constant{Kind: ConstNumber, Number: 3.5})
	i1 := b.AddConstant(Constant{Kind: ConstString, Str: "hi"})
	if i0 != 0 || i1 != 1 {
		t.Fatalf("constant indices = %d, %d, want 0, 1", i0, i1)
	}
	if b.Constants[i1].Str != "hi" {
		t.Fatalf("Constants[%d].Str = %q, want hi", i1, b.Constants[i1].Str)
	}
}

func TestAddCacheSiteIndexesIntoCacheSiteTable(t *testing.T) {
	b := NewCodeBlock("f", 0, 0)
	site := ic.NewPropertySite(4, nil)
	name := object.Symbols.Intern("x")
	idx := b.AddCacheSite(site, name)
	if idx != 0 {
		t.Fatalf("cache site index = %d, want 0", idx)
	}
	if b.CacheSites[idx] != site {
		t.Fatal("CacheSites table does not hold back the recorded site pointer")
	}
	if b.CacheNames[idx] != name {
		t.Fatal("CacheNames table does not hold back the recorded name")
	}
}

func TestAddNestedRegistersClosureTarget(t *testing.T) {
	outer := NewCodeBlock("outer", 0, 0)
	inner := NewCodeBlock("inner", 1, 0)
	idx := outer.AddNested(inner)
	outer.Emit(OpNewClosure, idx)

	if got := outer.At(0); got.Op != OpNewClosure || got.Operand != idx {
		t.Fatalf("new-closure instruction = %+v", got)
	}
	if outer.Nested[idx] != inner {
		t.Fatal("Nested table does not hold back the registered code block")
	}
}

func TestPushHandlerRecordsTryRegion(t *testing.T) {
	b := NewCodeBlock("f", 0, 0)
	enter := b.Emit(OpEnterTry, 0)
	b.Emit(OpPushUndefined, 0)
	leave := b.Emit(OpLeaveTry, 0)
	handlerTarget := b.Emit(OpReturn, 0)

	hIdx := b.PushHandler(ExceptionHandler{
		TryStart:   enter,
		TryEnd:     leave,
		TargetIP:   handlerTarget,
		StackDepth: 0,
	})
	if hIdx != 0 {
		t.Fatalf("handler index = %d, want 0", hIdx)
	}
	h := b.Handlers[hIdx]
	if h.TryStart != enter || h.TryEnd != leave || h.TargetIP != handlerTarget {
		t.Fatalf("handler record = %+v", h)
	}
}

func TestOpcodeStringAndClassification(t *testing.T) {
	if OpGetByName.String() != "get-by-name" {
		t.Fatalf("String() = %q", OpGetByName.String())
	}
	if !OpGetByName.IsCacheable() {
		t.Fatal("get-by-name should be cacheable")
	}
	if OpAdd.IsCacheable() {
		t.Fatal("add should not be cacheable")
	}
	if !OpCall.IsBackwardBranchSafepoint() {
		t.Fatal("call should be a safepoint")
	}
	if OpPop.IsBackwardBranchSafepoint() {
		t.Fatal("pop should not be a safepoint")
	}
	if got := Op(250).String(); got != "invalid" {
		t.Fatalf("String() on out-of-range op = %q, want invalid", got)
	}
}
