package object

import (
	"testing"

	"github.com/lumenjs/core/heap"
	"github.com/lumenjs/core/value"
)

func noopResolver(uintptr) (heap.Cell, bool) { return nil, false }

func newTestObject(proto *Object) *Object {
	return NewObject(ObjectTypeDescriptor(noopResolver), NewRootStructure(StructureTypeDescriptor(), proto))
}

func TestSiblingObjectsShareTransitionStructure(t *testing.T) {
	a := newTestObject(nil)
	b := newTestObject(nil)
	name := Symbols.Intern("x")

	a.SetProperty(name, AttrWritable, value.FromInt32(1))
	b.SetProperty(name, AttrWritable, value.FromInt32(2))

	if a.Structure() != b.Structure() {
		t.Fatal("identical property addition from the same root structure did not produce a shared Structure")
	}
}

func TestDivergentAdditionsProduceDifferentStructures(t *testing.T) {
	a := newTestObject(nil)
	b := newTestObject(nil)

	a.SetProperty(Symbols.Intern("x"), AttrWritable, value.FromInt32(1))
	b.SetProperty(Symbols.Intern("y"), AttrWritable, value.FromInt32(2))

	if a.Structure() == b.Structure() {
		t.Fatal("different property names produced the same Structure")
	}
}

func TestPropertyUpdateInPlaceKeepsStructure(t *testing.T) {
	o := newTestObject(nil)
	name := Symbols.Intern("x")
	o.SetProperty(name, AttrWritable, value.FromInt32(1))
	s := o.Structure()

	o.SetProperty(name, AttrWritable, value.FromInt32(2))
	if o.Structure() != s {
		t.Fatal("updating an existing property's value changed the Structure")
	}
	got, ok := o.GetProperty(name)
	if !ok || got.AsInt32() != 2 {
		t.Fatalf("GetProperty after update = %v, %v; want 2, true", got, ok)
	}
}

func TestPrototypeChainLookup(t *testing.T) {
	proto := newTestObject(nil)
	proto.SetProperty(Symbols.Intern("inherited"), AttrWritable, value.FromInt32(7))

	child := newTestObject(proto)
	got, ok := child.GetProperty(Symbols.Intern("inherited"))
	if !ok || got.AsInt32() != 7 {
		t.Fatalf("prototype lookup = %v, %v; want 7, true", got, ok)
	}
	if child.HasOwnProperty(Symbols.Intern("inherited")) {
		t.Fatal("inherited property reported as own")
	}
}

func TestMissingPropertyLookupFails(t *testing.T) {
	o := newTestObject(nil)
	if _, ok := o.GetProperty(Symbols.Intern("absent")); ok {
		t.Fatal("lookup of an absent property succeeded")
	}
}

func TestDeletePropertyEntersDictionaryMode(t *testing.T) {
	o := newTestObject(nil)
	keep := Symbols.Intern("keep")
	drop := Symbols.Intern("drop")
	o.SetProperty(keep, AttrWritable, value.FromInt32(1))
	o.SetProperty(drop, AttrWritable, value.FromInt32(2))

	o.DeleteProperty(drop)

	if !o.Structure().Dictionary() {
		t.Fatal("expected dictionary-mode Structure after deletion")
	}
	if _, ok := o.GetProperty(drop); ok {
		t.Fatal("deleted property still readable")
	}
	got, ok := o.GetProperty(keep)
	if !ok || got.AsInt32() != 1 {
		t.Fatalf("surviving property = %v, %v; want 1, true", got, ok)
	}

	// Dictionary-mode objects mutate in place rather than transitioning.
	o.SetProperty(Symbols.Intern("extra"), AttrWritable, value.FromInt32(3))
	got, ok = o.GetProperty(Symbols.Intern("extra"))
	if !ok || got.AsInt32() != 3 {
		t.Fatalf("post-dictionary addition = %v, %v; want 3, true", got, ok)
	}
}

func TestSetPrototypeTransitionsStructure(t *testing.T) {
	o := newTestObject(nil)
	o.SetProperty(Symbols.Intern("x"), AttrWritable, value.FromInt32(1))
	before := o.Structure()

	proto := newTestObject(nil)
	o.SetPrototype(proto)

	if o.Structure() == before {
		t.Fatal("SetPrototype did not change Structure identity")
	}
	if o.Prototype() != proto {
		t.Fatal("SetPrototype did not update Object.prototype")
	}
	got, ok := o.GetProperty(Symbols.Intern("x"))
	if !ok || got.AsInt32() != 1 {
		t.Fatal("own property lost across prototype change")
	}
}

func TestIndexedStorageDenseThenSparse(t *testing.T) {
	o := newTestObject(nil)
	o.SetIndexed(0, value.FromInt32(10))
	o.SetIndexed(1, value.FromInt32(11))
	if o.Length() != 2 {
		t.Fatalf("length = %d, want 2", o.Length())
	}
	got, ok := o.GetIndexed(1)
	if !ok || got.AsInt32() != 11 {
		t.Fatalf("GetIndexed(1) = %v, %v; want 11, true", got, ok)
	}

	// A single far-out index at low density must migrate to sparse
	// storage rather than allocating a huge dense vector.
	o.SetIndexed(1000, value.FromInt32(99))
	if o.Length() != 1001 {
		t.Fatalf("length after sparse write = %d, want 1001", o.Length())
	}
	got, ok = o.GetIndexed(1000)
	if !ok || got.AsInt32() != 99 {
		t.Fatalf("GetIndexed(1000) = %v, %v; want 99, true", got, ok)
	}
	got, ok = o.GetIndexed(1)
	if !ok || got.AsInt32() != 11 {
		t.Fatal("dense values lost across migration to sparse storage")
	}
}

func TestSymbolTableInternIsStable(t *testing.T) {
	t1 := Symbols.Intern("stable-name")
	t2 := Symbols.Intern("stable-name")
	if t1 != t2 {
		t.Fatal("interning the same string twice produced different ids")
	}
	if Symbols.Name(t1) != "stable-name" {
		t.Fatalf("Name(%d) = %q, want %q", t1, Symbols.Name(t1), "stable-name")
	}
}
