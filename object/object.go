package object

import (
	"github.com/lumenjs/core/heap"
	"github.com/lumenjs/core/value"
)

type dictSlot struct {
	value value.Value
	attrs Attribute
}

// Object is a heap cell with a Structure-described named-property
// layout, optional indexed storage, and a prototype reference (spec
// §3). Its own-property storage is either a slot vector (while its
// Structure is a normal hidden class) or a private map (once its
// Structure has transitioned to dictionary mode) — never both.
type Object struct {
	hdr heap.Header

	structure *Structure
	prototype *Object

	slots []value.Value
	dict  map[SymbolID]dictSlot

	indexed indexedStorage
}

// ObjectTypeDescriptor returns the GC type descriptor for Object cells.
// Unlike Structure, an Object's outgoing references may be hidden
// inside boxed value.Value payloads (slots, dictionary entries, indexed
// storage), so tracing needs resolve to turn a decoded cell address
// back into the heap.Cell to visit.
func ObjectTypeDescriptor(resolve heap.CellResolver) *heap.TypeDescriptor {
	return &heap.TypeDescriptor{
		Name: "Object",
		Trace: func(c heap.Cell, visit func(heap.Cell)) {
			o := c.(*Object)
			if o.structure != nil {
				visit(o.structure)
			}
			if o.prototype != nil {
				visit(o.prototype)
			}
			traceValue := func(v value.Value) {
				if !v.IsCell() {
					return
				}
				if cell, ok := resolve(uintptr(v.AsCellPointer())); ok {
					visit(cell)
				}
			}
			for _, v := range o.slots {
				traceValue(v)
			}
			for _, d := range o.dict {
				traceValue(d.value)
			}
			o.indexed.trace(traceValue)
		},
	}
}

// NewObject allocates an object starting from structure, with an empty
// slot vector (structure declares no properties yet for a fresh root
// structure).
func NewObject(typ *heap.TypeDescriptor, structure *Structure) *Object {
	o := &Object{structure: structure, prototype: structure.Prototype()}
	o.hdr = heap.NewHeader(typ, 0)
	if !structure.dictionary {
		o.slots = make([]value.Value, structure.SlotCount())
	} else {
		o.dict = make(map[SymbolID]dictSlot)
	}
	return o
}

// PrepareObject allocates a bare Object shell with no Structure,
// prototype, or property storage yet. See PrepareStructure for why a
// snapshot loader needs this two-step allocate-then-wire shape instead
// of a single constructor: an object's own prototype (or, through a
// property value, the object itself) may be part of a reference cycle
// that isn't fully allocated yet when this shell is created.
func PrepareObject(typ *heap.TypeDescriptor) *Object {
	return &Object{hdr: heap.NewHeader(typ, 0)}
}

// Finish installs a previously Prepare'd Object's real structure,
// prototype, own properties, and indexed storage. props and values are
// parallel slices in the same order ForEachOwnProperty would offer
// them; for a non-dictionary structure, values must additionally be in
// structure's own slot order, and props is not read at all —
// a dictionary-mode structure carries no property list of its own
// (see Object.dict), so props supplies the names and attrs that would
// otherwise be missing.
func (o *Object) Finish(structure *Structure, prototype *Object, props []PropertyDecl, values []value.Value, indexed map[uint32]value.Value, length uint32) {
	o.structure = structure
	o.prototype = prototype
	if structure.dictionary {
		o.dict = make(map[SymbolID]dictSlot, len(props))
		for i, p := range props {
			o.dict[p.Name] = dictSlot{value: values[i], attrs: p.Attrs}
		}
	} else {
		o.slots = append([]value.Value(nil), values...)
	}
	for idx, v := range indexed {
		o.indexed.Set(idx, v)
	}
	// indexed.Set only ever raises length up to the highest explicit
	// index plus one; widen it the rest of the way for a sparse trailing
	// range or an array whose length was extended past its last element.
	if length > o.indexed.length {
		o.indexed.length = length
	}
}

func (o *Object) Header() *heap.Header   { return &o.hdr }
func (o *Object) Structure() *Structure  { return o.structure }
func (o *Object) Prototype() *Object     { return o.prototype }

// GetProperty implements lookup per spec §4.4: check o's own Structure,
// then ascend the prototype chain. Returns ok=false only if the chain
// ends at null without finding p — callers doing a JS read coerce that
// to undefined themselves.
func (o *Object) GetProperty(name SymbolID) (value.Value, bool) {
	for cur := o; cur != nil; cur = cur.prototype {
		if v, ok := cur.ownProperty(name); ok {
			return v, true
		}
	}
	return value.Undefined(), false
}

// SlotValue and SetSlotValue give the inline-cache hit path (ic.Site,
// consulted by the vm package) direct slot access once it has already
// confirmed the receiver's Structure matches the cached one, skipping
// the name lookup Lookup/GetProperty would otherwise repeat.
func (o *Object) SlotValue(slot int) value.Value     { return o.slots[slot] }
func (o *Object) SetSlotValue(slot int, v value.Value) { o.slots[slot] = v }

func (o *Object) ownProperty(name SymbolID) (value.Value, bool) {
	if o.structure.dictionary {
		d, ok := o.dict[name]
		if !ok {
			return value.Value(0), false
		}
		return d.value, true
	}
	slot, _, ok := o.structure.Lookup(name)
	if !ok {
		return value.Value(0), false
	}
	return o.slots[slot], true
}

// HasOwnProperty reports whether name is declared directly on o,
// without walking the prototype chain.
func (o *Object) HasOwnProperty(name SymbolID) bool {
	_, ok := o.ownProperty(name)
	return ok
}

// SetProperty implements property addition/update (spec §4.4 steps
// 1-3): update in place if already declared on o's own Structure,
// otherwise transition (reusing a shared Structure if this exact
// addition has been observed before) and extend the slot vector.
func (o *Object) SetProperty(name SymbolID, attrs Attribute, v value.Value) {
	if o.structure.dictionary {
		o.dict[name] = dictSlot{value: v, attrs: attrs}
		return
	}
	if slot, _, ok := o.structure.Lookup(name); ok {
		o.slots[slot] = v
		return
	}
	o.structure = o.structure.Transition(name, attrs)
	o.slots = append(o.slots, v)
}

// DeleteProperty implements spec §4.4's deletion transition: o moves to
// a dictionary-mode Structure and its remaining own properties move
// into a private map.
func (o *Object) DeleteProperty(name SymbolID) {
	if o.structure.dictionary {
		delete(o.dict, name)
		return
	}
	if _, _, ok := o.structure.Lookup(name); !ok {
		return
	}
	next := o.structure.Delete(name)
	dict := make(map[SymbolID]dictSlot, len(o.structure.props))
	for _, e := range o.structure.props {
		if e.name == name {
			continue
		}
		dict[e.name] = dictSlot{value: o.slots[e.slot], attrs: e.attrs}
	}
	o.structure = next
	o.dict = dict
	o.slots = nil
}

// SetPrototype reassigns o's prototype, transitioning to a Structure
// built against the new prototype (spec §4.4's "prototype changes").
// Inline-cache entries keyed on o's old Structure miss automatically on
// next consult, since that Structure's identity — which caches key on
// — no longer matches.
func (o *Object) SetPrototype(proto *Object) {
	o.structure = o.structure.WithPrototype(proto)
	o.prototype = proto
}

// GetIndexed, SetIndexed, DeleteIndexed, and Length expose o's indexed
// (integer-keyed) storage (spec §4.4).
func (o *Object) GetIndexed(idx uint32) (value.Value, bool) { return o.indexed.Get(idx) }
func (o *Object) SetIndexed(idx uint32, v value.Value)       { o.indexed.Set(idx, v) }
func (o *Object) DeleteIndexed(idx uint32)                   { o.indexed.Delete(idx) }
func (o *Object) Length() uint32                             { return o.indexed.Length() }

// ForEachOwnProperty offers every named property declared directly on
// o (not walking the prototype chain) to fn, in declaration order for
// a non-dictionary Structure. Built for a caller that needs o's own
// property set as data rather than through GetProperty's by-name
// lookup — a snapshot writer serializing an object's own properties,
// or a future for-in built-in.
func (o *Object) ForEachOwnProperty(fn func(name SymbolID, attrs Attribute, v value.Value)) {
	if o.structure.dictionary {
		for name, d := range o.dict {
			fn(name, d.attrs, d.value)
		}
		return
	}
	for _, e := range o.structure.props {
		fn(e.name, e.attrs, o.slots[e.slot])
	}
}

// ForEachIndexed offers every occupied integer-keyed property to fn.
// See indexedStorage.forEach for the ordering guarantee.
func (o *Object) ForEachIndexed(fn func(idx uint32, v value.Value)) {
	o.indexed.forEach(fn)
}
