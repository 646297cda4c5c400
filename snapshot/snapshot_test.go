package snapshot

import (
	"testing"

	"github.com/lumenjs/core/bytecode"
	"github.com/lumenjs/core/object"
	"github.com/lumenjs/core/params"
	"github.com/lumenjs/core/value"
	"github.com/lumenjs/core/vm"
)

func newTestVM(t *testing.T) *vm.VM {
	t.Helper()
	return vm.New(params.Defaults(), nil, nil)
}

func noCode(string) (*bytecode.CodeBlock, bool) { return nil, false }
func noNative(string) (vm.NativeFunc, bool)     { return nil, false }

func TestRoundTripPreservesGlobalProperties(t *testing.T) {
	m := newTestVM(t)
	answer := object.Symbols.Intern("answer")
	greeting := object.Symbols.Intern("greeting")

	s, err := m.NewString("hello")
	if err != nil {
		t.Fatal(err)
	}
	m.Globals().SetProperty(answer, object.AttrWritable|object.AttrEnumerable|object.AttrConfigurable, value.FromInt32(42))
	m.Globals().SetProperty(greeting, object.AttrWritable|object.AttrEnumerable|object.AttrConfigurable, s)

	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	m2 := newTestVM(t)
	roots, err := Load(data, m2, noCode, noNative)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(roots) != 1 {
		t.Fatalf("len(roots) = %d, want 1", len(roots))
	}

	v, ok := m2.Globals().GetProperty(answer)
	if !ok || v.AsInt32() != 42 {
		t.Fatalf("restored globals.answer = %v, %v, want 42, true", v, ok)
	}
	gv, ok := m2.Globals().GetProperty(greeting)
	if !ok {
		t.Fatal("restored globals.greeting missing")
	}
	cell, ok := m2.Resolve(uintptr(gv.AsCellPointer()))
	if !ok {
		t.Fatal("restored greeting value does not resolve to a live cell")
	}
	sc, ok := cell.(*vm.StringCell)
	if !ok || sc.String() != "hello" {
		t.Fatalf("restored greeting = %v, want StringCell(\"hello\")", cell)
	}
}

func TestRoundTripPreservesSelfReferentialPrototype(t *testing.T) {
	m := newTestVM(t)
	// The global object is its own prototype: a one-cell reference cycle
	// that forward- or reverse-order single-pass reconstruction cannot
	// handle, exactly the case the two-phase prepare/finish split exists
	// for.
	m.Globals().SetPrototype(m.Globals())

	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	m2 := newTestVM(t)
	if _, err := Load(data, m2, noCode, noNative); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m2.Globals().Prototype() != m2.Globals() {
		t.Fatal("restored global object must be its own prototype")
	}
}

func TestLoadRejectsVersionMismatchBeforeAllocating(t *testing.T) {
	m := newTestVM(t)
	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	corrupted := append([]byte(nil), data...)
	corrupted[4] = byte(Version + 1)

	m2 := newTestVM(t)
	before := m2.Heap().LiveBytes()
	if _, err := Load(corrupted, m2, noCode, noNative); err != ErrVersionMismatch {
		t.Fatalf("Load(mismatched version) error = %v, want ErrVersionMismatch", err)
	}
	if after := m2.Heap().LiveBytes(); after != before {
		t.Fatalf("Load allocated before rejecting the header: live bytes %d -> %d", before, after)
	}
}

func TestLoadRejectsHashMismatch(t *testing.T) {
	m := newTestVM(t)
	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	corrupted := append([]byte(nil), data...)
	corrupted[len(corrupted)-1] ^= 0xff

	m2 := newTestVM(t)
	if _, err := Load(corrupted, m2, noCode, noNative); err == nil {
		t.Fatal("Load(corrupted body) should fail")
	}
}
