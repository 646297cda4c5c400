package object

import "github.com/lumenjs/core/heap"

// Attribute is the per-property attribute-bit set spec §3 names
// ("attribute-bits").
type Attribute uint8

const (
	AttrWritable Attribute = 1 << iota
	AttrEnumerable
	AttrConfigurable
)

type propEntry struct {
	name  SymbolID
	attrs Attribute
	slot  int
}

type transitionKey struct {
	name  SymbolID
	attrs Attribute
}

// Structure is the engine's hidden class (spec §3/§4.4): an ordered,
// content-addressed property layout. Every transition (property
// addition, deletion, or prototype change) produces a fresh Structure
// rather than mutating an existing one in place, so two Structures are
// the same layout if and only if they are the same pointer — inline
// caches exploit exactly this by keying entries on Structure identity.
// Because every mutation here is a content-addressed replacement rather
// than an in-place edit, the per-structure generation counter spec
// §4.5 describes for invalidation collapses to "the structure pointer
// changed," which the ic package already detects via identity
// comparison; Generation is retained for diagnostics rather than being
// load-bearing.
type Structure struct {
	hdr heap.Header

	props []propEntry
	index map[SymbolID]int

	transitions      map[transitionKey]*Structure
	deletions        map[SymbolID]*Structure
	protoTransitions map[*Object]*Structure

	prototype  *Object
	dictionary bool
	generation uint32
}

// StructureTypeDescriptor returns the GC type descriptor for Structure
// cells. Structure's outgoing references (prototype, cached child
// structures) are already typed *Object/*Structure pointers, so unlike
// Object it needs no CellResolver.
func StructureTypeDescriptor() *heap.TypeDescriptor {
	return &heap.TypeDescriptor{
		Name: "Structure",
		Trace: func(c heap.Cell, visit func(heap.Cell)) {
			s := c.(*Structure)
			if s.prototype != nil {
				visit(s.prototype)
			}
			for _, child := range s.transitions {
				visit(child)
			}
			for _, child := range s.deletions {
				visit(child)
			}
			for _, child := range s.protoTransitions {
				visit(child)
			}
		},
	}
}

func newStructure(typ *heap.TypeDescriptor, prototype *Object) *Structure {
	s := &Structure{
		index:            make(map[SymbolID]int),
		transitions:      make(map[transitionKey]*Structure),
		deletions:        make(map[SymbolID]*Structure),
		protoTransitions: make(map[*Object]*Structure),
		prototype:        prototype,
		generation:        1,
	}
	s.hdr = heap.NewHeader(typ, 0)
	return s
}

// NewRootStructure returns the empty Structure new objects with the
// given prototype start from.
func NewRootStructure(typ *heap.TypeDescriptor, prototype *Object) *Structure {
	return newStructure(typ, prototype)
}

// PropertyDecl is one (name, attrs) declaration, the unit a snapshot
// loader works in when it already knows the exact layout a serialized
// Structure or dictionary-mode Object described and wants it
// reproduced verbatim rather than re-derived transition by transition.
type PropertyDecl struct {
	Name  SymbolID
	Attrs Attribute
}

// PrepareStructure allocates a bare Structure shell with no properties
// or prototype yet. A snapshot loader needs every cell in its table
// allocated before it can resolve any reference between them — a
// Structure's own prototype, or an Object's own Structure, may
// (rarely, but validly: e.g. an object set as its own prototype)
// participate in a reference cycle, so construction and wiring must be
// separate steps. Finish installs the real layout afterward.
func PrepareStructure(typ *heap.TypeDescriptor) *Structure {
	return newStructure(typ, nil)
}

// Finish installs a previously Prepare'd Structure's real layout:
// exactly the given property declarations (in slot order) and
// prototype. Unlike Transition, the result is never cached into any
// other Structure's transition table, since nothing built it by
// transitioning from one — a snapshot's Structure entries are already
// fully formed layouts, not incremental additions.
func (s *Structure) Finish(prototype *Object, dictionary bool, props []PropertyDecl) {
	s.prototype = prototype
	s.dictionary = dictionary
	if !dictionary {
		s.props = make([]propEntry, len(props))
		s.index = make(map[SymbolID]int, len(props))
		for i, p := range props {
			s.props[i] = propEntry{name: p.Name, attrs: p.Attrs, slot: i}
			s.index[p.Name] = i
		}
	}
}

func (s *Structure) Header() *heap.Header { return &s.hdr }
func (s *Structure) Dictionary() bool     { return s.dictionary }
func (s *Structure) Prototype() *Object   { return s.prototype }
func (s *Structure) Generation() uint32   { return s.generation }
func (s *Structure) SlotCount() int       { return len(s.props) }

// ForEachProperty offers every declared (name, attrs) pair to fn, in
// slot order. A dictionary-mode Structure declares no properties of
// its own (see Object.dict, where a dictionary object's own properties
// actually live), so calling this on one is a no-op.
func (s *Structure) ForEachProperty(fn func(name SymbolID, attrs Attribute)) {
	for _, e := range s.props {
		fn(e.name, e.attrs)
	}
}

// Lookup returns the declared slot and attributes for name on a
// non-dictionary Structure.
func (s *Structure) Lookup(name SymbolID) (slot int, attrs Attribute, ok bool) {
	idx, ok := s.index[name]
	if !ok {
		return 0, 0, false
	}
	e := s.props[idx]
	return e.slot, e.attrs, true
}

// Transition returns the Structure reached by adding (name, attrs) to
// s, creating and caching a new one the first time this exact addition
// is observed from s so that sibling objects making the same addition
// share the resulting Structure (spec §4.4 step 3's hidden-class
// monomorphization).
func (s *Structure) Transition(name SymbolID, attrs Attribute) *Structure {
	key := transitionKey{name: name, attrs: attrs}
	if next, ok := s.transitions[key]; ok {
		return next
	}
	next := &Structure{
		props:            append(append([]propEntry(nil), s.props...), propEntry{name: name, attrs: attrs, slot: len(s.props)}),
		index:            make(map[SymbolID]int, len(s.props)+1),
		transitions:      make(map[transitionKey]*Structure),
		deletions:        make(map[SymbolID]*Structure),
		protoTransitions: make(map[*Object]*Structure),
		prototype:        s.prototype,
		generation:        1,
	}
	next.hdr = heap.NewHeader(s.hdr.Type(), 0)
	for k, v := range s.index {
		next.index[k] = v
	}
	next.index[name] = len(s.props)
	s.transitions[key] = next
	return next
}

// Delete returns the dictionary-mode Structure reached by deleting name
// from a non-dictionary Structure (spec §4.4's deletion transition). The
// returned Structure carries no property storage of its own — objects
// reaching dictionary mode keep their own properties in a private map
// (see Object.DeleteProperty) — so sharing one dictionary Structure
// across every object that deletes the same property from the same
// base layout is safe: it is used only as a "this object's layout is
// now a dictionary" marker plus prototype/generation bookkeeping.
func (s *Structure) Delete(name SymbolID) *Structure {
	if next, ok := s.deletions[name]; ok {
		return next
	}
	next := newStructure(s.hdr.Type(), s.prototype)
	next.dictionary = true
	next.generation = s.generation + 1
	s.deletions[name] = next
	return next
}

// WithPrototype returns the Structure reached by reassigning s's
// prototype (spec §4.4's "prototype changes"), sharing s's own property
// layout but a fresh, independent transition table — transitions
// cached under the old prototype were derived assuming that prototype,
// so they cannot be reused after a reparent.
func (s *Structure) WithPrototype(proto *Object) *Structure {
	if s.prototype == proto {
		return s
	}
	if next, ok := s.protoTransitions[proto]; ok {
		return next
	}
	next := &Structure{
		props:            append([]propEntry(nil), s.props...),
		index:            make(map[SymbolID]int, len(s.index)),
		transitions:      make(map[transitionKey]*Structure),
		deletions:        make(map[SymbolID]*Structure),
		protoTransitions: make(map[*Object]*Structure),
		prototype:        proto,
		dictionary:       s.dictionary,
		generation:        s.generation + 1,
	}
	next.hdr = heap.NewHeader(s.hdr.Type(), 0)
	for k, v := range s.index {
		next.index[k] = v
	}
	s.protoTransitions[proto] = next
	return next
}
