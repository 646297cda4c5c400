package ic

import (
	"testing"

	"github.com/lumenjs/core/heap"
	"github.com/lumenjs/core/object"
)

func rootStructure() *object.Structure {
	return object.NewRootStructure(object.StructureTypeDescriptor(), nil)
}

func TestMonomorphicSiteStaysAtCapacityOne(t *testing.T) {
	s := NewPropertySite(4, nil)
	structure := rootStructure().Transition(object.Symbols.Intern("x"), object.AttrWritable)

	for i := 0; i < 1000; i++ {
		if _, _, ok := s.Lookup(structure); !ok {
			s.Record(structure, 0, nil)
		}
	}
	if s.Len() != 1 {
		t.Fatalf("entries = %d, want 1 for a monomorphic site", s.Len())
	}
	if s.IsMegamorphic() {
		t.Fatal("monomorphic site incorrectly went megamorphic")
	}
}

func TestPolymorphicSiteWithinCapacityNeverGoesMegamorphic(t *testing.T) {
	s := NewPropertySite(4, nil)
	root := rootStructure()
	var structures []*object.Structure
	for i := 0; i < 4; i++ {
		structures = append(structures, root.Transition(object.SymbolID(i+1000), object.AttrWritable))
	}

	for round := 0; round < 100; round++ {
		for i, st := range structures {
			if _, _, ok := s.Lookup(st); !ok {
				s.Record(st, i, nil)
			}
		}
	}
	if s.IsMegamorphic() {
		t.Fatal("4 distinct structures within a capacity-4 site went megamorphic")
	}
	if s.Len() != 4 {
		t.Fatalf("entries = %d, want 4", s.Len())
	}
}

func TestEvictionIsLeastRecentlyUsed(t *testing.T) {
	s := NewPropertySite(2, nil)
	a := rootStructure().Transition(object.Symbols.Intern("a"), object.AttrWritable)
	b := rootStructure().Transition(object.Symbols.Intern("b"), object.AttrWritable)
	c := rootStructure().Transition(object.Symbols.Intern("c"), object.AttrWritable)

	s.Record(a, 0, nil)
	s.Record(b, 1, nil)
	// Touch a again so b becomes the least recently used entry.
	s.Lookup(a)
	s.Record(c, 2, nil)

	if _, _, ok := s.Lookup(b); ok {
		t.Fatal("expected b (least recently used) to have been evicted")
	}
	if _, _, ok := s.Lookup(a); !ok {
		t.Fatal("expected a (recently touched) to survive eviction")
	}
	if _, _, ok := s.Lookup(c); !ok {
		t.Fatal("expected c (just inserted) to be present")
	}
}

func TestThrashingSiteGoesMegamorphic(t *testing.T) {
	s := NewPropertySite(2, nil)
	root := rootStructure()
	for i := 0; i < 20; i++ {
		st := root.Transition(object.SymbolID(2000+i), object.AttrWritable)
		if _, _, ok := s.Lookup(st); !ok {
			s.Record(st, i, nil)
		}
	}
	if !s.IsMegamorphic() {
		t.Fatal("a site cycling through many distinct structures never went megamorphic")
	}
	if _, _, ok := s.Lookup(root); ok {
		t.Fatal("megamorphic site reported a hit")
	}
}

func TestStructureChangeInvalidatesEntryByIdentity(t *testing.T) {
	s := NewPropertySite(4, nil)
	root := rootStructure()
	name := object.Symbols.Intern("p")
	s1 := root.Transition(name, object.AttrWritable)
	s.Record(s1, 0, nil)

	// A structurally different Structure (sharing the same single
	// property name, but added with different attributes) must not match
	// the cached entry's pointer.
	s2 := root.Transition(name, object.AttrEnumerable)
	if _, _, ok := s.Lookup(s2); ok {
		t.Fatal("cache hit across genuinely different Structures")
	}
	if _, _, ok := s.Lookup(s1); !ok {
		t.Fatal("expected the originally recorded Structure to still hit")
	}
}

func TestMethodSiteRecordsCallee(t *testing.T) {
	s := NewMethodSite(4, nil)
	structure := rootStructure().Transition(object.Symbols.Intern("m"), object.AttrWritable)
	callee := &stubCell{}
	s.Record(structure, 0, callee)

	_, gotCallee, ok := s.Lookup(structure)
	if !ok {
		t.Fatal("expected hit on recorded method site")
	}
	if gotCallee != heap.Cell(callee) {
		t.Fatal("method site did not return the recorded callee cell")
	}
}

type stubCell struct{ hdr heap.Header }

func (c *stubCell) Header() *heap.Header { return &c.hdr }
