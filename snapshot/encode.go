package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"

	"github.com/lumenjs/core/heap"
	"github.com/lumenjs/core/object"
	"github.com/lumenjs/core/value"
	"github.com/lumenjs/core/vm"
)

// Encode walks m's heap from its own roots (vm.VM.RootCells) and
// returns a fully framed snapshot: Header.encode() followed by a
// snappy-compressed body (spec's snapshot contract's "length-prefixed,
// type-tagged stream", framed per SPEC_FULL.md §4.10). The header's
// Hash is the sha256 of the uncompressed body, computed before
// compression; Load inflates the stream and checks it against this hash
// before decoding any cell.
func Encode(m *vm.VM) ([]byte, error) {
	roots := m.RootCells()
	order := reachable(roots)

	index := make(map[heap.Cell]uint32, len(order))
	for i, c := range order {
		index[c] = uint32(i)
	}

	e := &encoder{m: m, index: index, buf: &bytes.Buffer{}}
	binary.Write(e.buf, binary.LittleEndian, uint32(len(order)))
	binary.Write(e.buf, binary.LittleEndian, uint32(len(roots)))
	for _, r := range roots {
		idx, ok := index[r]
		if !ok {
			return nil, fmt.Errorf("snapshot: root cell missing from its own reachable set")
		}
		binary.Write(e.buf, binary.LittleEndian, idx)
	}
	for _, c := range order {
		if err := e.encodeCell(c); err != nil {
			return nil, err
		}
	}

	body := e.buf.Bytes()
	hash := sha256.Sum256(body)
	compressed := snappy.Encode(nil, body)

	h := Header{Version: Version, CellCount: uint32(len(order)), RootCount: uint32(len(roots)), Hash: hash}
	out := make([]byte, 0, headerSize+len(compressed))
	out = appendHeader(out, h)
	out = append(out, compressed...)
	return out, nil
}

func appendHeader(dst []byte, h Header) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], magic)
	dst = append(dst, tmp[:]...)
	binary.LittleEndian.PutUint32(tmp[:], h.Version)
	dst = append(dst, tmp[:]...)
	binary.LittleEndian.PutUint32(tmp[:], h.CellCount)
	dst = append(dst, tmp[:]...)
	binary.LittleEndian.PutUint32(tmp[:], h.RootCount)
	dst = append(dst, tmp[:]...)
	dst = append(dst, h.Hash[:]...)
	return dst
}

type encoder struct {
	m     *vm.VM
	index map[heap.Cell]uint32
	buf   *bytes.Buffer
}

func (e *encoder) writeByte(b byte) { e.buf.WriteByte(b) }
func (e *encoder) writeU32(v uint32) {
	binary.Write(e.buf, binary.LittleEndian, v)
}
func (e *encoder) writeString(s string) {
	e.writeU32(uint32(len(s)))
	e.buf.WriteString(s)
}

// writeCellRef writes a cell reference as its table index, or the
// sentinel index ^uint32(0) for nil.
func (e *encoder) writeCellRef(c heap.Cell) error {
	if c == nil {
		e.writeU32(^uint32(0))
		return nil
	}
	idx, ok := e.index[c]
	if !ok {
		return fmt.Errorf("snapshot: reference to a cell outside the walked set")
	}
	e.writeU32(idx)
	return nil
}

// writeObjectRef writes a reference to a possibly-nil *object.Object.
// Passing a typed nil pointer straight to writeCellRef would box it
// into a non-nil heap.Cell interface value (the classic Go typed-nil
// pitfall), so every *object.Object reference site goes through this
// instead.
func (e *encoder) writeObjectRef(o *object.Object) error {
	if o == nil {
		return e.writeCellRef(nil)
	}
	return e.writeCellRef(o)
}

// writeUpvalueRef is writeObjectRef's counterpart for *vm.Upvalue.
func (e *encoder) writeUpvalueRef(u *vm.Upvalue) error {
	if u == nil {
		return e.writeCellRef(nil)
	}
	return e.writeCellRef(u)
}

// writeValue encodes one value.Value: raw bits for every non-cell tag
// (value.Value's underlying type is uint64, so this is a direct
// conversion, not a per-tag encode), or a cell-table index for a
// cell-tagged value.
func (e *encoder) writeValue(v value.Value) error {
	if !v.IsCell() {
		e.writeByte(byte(valueRaw))
		binary.Write(e.buf, binary.LittleEndian, uint64(v))
		return nil
	}
	cell, ok := e.m.Resolve(uintptr(v.AsCellPointer()))
	if !ok {
		return fmt.Errorf("snapshot: cell-tagged value does not resolve to a live cell")
	}
	idx, ok := e.index[cell]
	if !ok {
		return fmt.Errorf("snapshot: cell-tagged value resolves outside the walked set")
	}
	e.writeByte(byte(valueRef))
	e.writeU32(idx)
	return nil
}

func (e *encoder) encodeCell(c heap.Cell) error {
	switch cell := c.(type) {
	case *vm.StringCell:
		e.writeByte(byte(kindString))
		e.writeString(cell.String())
		return nil

	case *object.Structure:
		e.writeByte(byte(kindStructure))
		if err := e.writeObjectRef(cell.Prototype()); err != nil {
			return err
		}
		dict := cell.Dictionary()
		e.writeByte(boolByte(dict))
		if dict {
			e.writeU32(0)
			return nil
		}
		e.writeU32(uint32(cell.SlotCount()))
		var err error
		cell.ForEachProperty(func(name object.SymbolID, attrs object.Attribute) {
			if err != nil {
				return
			}
			e.writeString(object.Symbols.Name(name))
			e.writeByte(byte(attrs))
		})
		return err

	case *object.Object:
		e.writeByte(byte(kindObject))
		if err := e.writeCellRef(cell.Structure()); err != nil {
			return err
		}
		if err := e.writeObjectRef(cell.Prototype()); err != nil {
			return err
		}
		var names []object.SymbolID
		var attrs []object.Attribute
		var values []value.Value
		cell.ForEachOwnProperty(func(name object.SymbolID, a object.Attribute, v value.Value) {
			names = append(names, name)
			attrs = append(attrs, a)
			values = append(values, v)
		})
		e.writeU32(uint32(len(names)))
		for i, name := range names {
			e.writeString(object.Symbols.Name(name))
			e.writeByte(byte(attrs[i]))
			if err := e.writeValue(values[i]); err != nil {
				return err
			}
		}
		var idxKeys []uint32
		idxVals := make(map[uint32]value.Value)
		cell.ForEachIndexed(func(idx uint32, v value.Value) {
			idxKeys = append(idxKeys, idx)
			idxVals[idx] = v
		})
		e.writeU32(uint32(len(idxKeys)))
		for _, idx := range idxKeys {
			e.writeU32(idx)
			if err := e.writeValue(idxVals[idx]); err != nil {
				return err
			}
		}
		e.writeU32(cell.Length())
		return nil

	case *vm.Closure:
		e.writeByte(byte(kindClosure))
		e.writeString(cell.Proto.Name)
		e.writeString(cell.Name)
		e.writeU32(uint32(len(cell.Upvalues)))
		for _, u := range cell.Upvalues {
			if err := e.writeUpvalueRef(u); err != nil {
				return err
			}
		}
		return e.writeObjectRef(cell.Prototype)

	case *vm.Upvalue:
		e.writeByte(byte(kindUpvalue))
		return e.writeValue(cell.Get())

	case *vm.NativeFunction:
		e.writeByte(byte(kindNativeFunction))
		e.writeString(cell.Name)
		return e.writeObjectRef(cell.Prototype)

	default:
		return fmt.Errorf("snapshot: unrecognized cell type %T", c)
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
