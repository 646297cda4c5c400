package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"

	"github.com/lumenjs/core/bytecode"
	"github.com/lumenjs/core/heap"
	"github.com/lumenjs/core/object"
	"github.com/lumenjs/core/value"
	"github.com/lumenjs/core/vm"
)

// nilRef is the sentinel cell-table index a nil reference encodes as.
const nilRef = ^uint32(0)

// CodeLookup resolves a Closure's serialized code-block name back to
// the compiled code a host's external compiler produced it from. A
// loader cannot re-derive this from the wire format: bytecode.CodeBlock
// is compiler output the core never owns (see vm.Closure's own doc
// comment), so the host must supply the same compiled program the
// snapshot was taken against.
type CodeLookup func(name string) (*bytecode.CodeBlock, bool)

// NativeLookup resolves a NativeFunction's serialized name back to its
// Go call handler: the native library the snapshot was taken against.
type NativeLookup func(name string) (vm.NativeFunc, bool)

// ParseHeader reads and validates data's fixed-size header without
// touching the compressed body that follows, for a caller (the Store
// layer, typically) that wants to reject a corrupt or foreign-version
// blob before paying for decompression. Returns the header and the
// still-compressed body.
func ParseHeader(data []byte) (Header, []byte, error) {
	if len(data) < headerSize {
		return Header{}, nil, fmt.Errorf("snapshot: truncated header (%d bytes)", len(data))
	}
	if binary.LittleEndian.Uint32(data[0:4]) != magic {
		return Header{}, nil, ErrBadMagic
	}
	h := Header{
		Version:   binary.LittleEndian.Uint32(data[4:8]),
		CellCount: binary.LittleEndian.Uint32(data[8:12]),
		RootCount: binary.LittleEndian.Uint32(data[12:16]),
	}
	copy(h.Hash[:], data[16:16+hashSize])
	if h.Version != Version {
		return h, nil, ErrVersionMismatch
	}
	return h, data[headerSize:], nil
}

// Load validates data's header and content hash, then reconstructs
// every cell the body describes into m and adopts the restored global
// object as m's own (spec's snapshot contract: "allocate cells, fix up
// intra-heap references via a post-pass index"). Returns the restored
// root values in the same order vm.VM.RootCells produced when the
// snapshot was taken — index 0 is always the global object, already
// adopted into m; a caller that still cares about any of the others (a
// persistent handle it held before the snapshot) must Pin it again
// itself, since a handle is a host-chosen identifier no snapshot can
// replay across processes.
func Load(data []byte, m *vm.VM, codeOf CodeLookup, nativeOf NativeLookup) ([]value.Value, error) {
	h, compressed, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	body, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("snapshot: decompressing body: %w", err)
	}
	if sha256.Sum256(body) != h.Hash {
		return nil, ErrHashMismatch
	}

	d := &decoder{r: bytes.NewReader(body), codeOf: codeOf, nativeOf: nativeOf}
	cellCount, err := d.readU32()
	if err != nil {
		return nil, err
	}
	rootCount, err := d.readU32()
	if err != nil {
		return nil, err
	}
	rootIdx := make([]uint32, rootCount)
	for i := range rootIdx {
		rootIdx[i], err = d.readU32()
		if err != nil {
			return nil, err
		}
	}

	shells := make([]heap.Cell, cellCount)
	pendings := make([]interface{}, cellCount)
	for i := uint32(0); i < cellCount; i++ {
		shell, pending, err := d.decodeCell(m)
		if err != nil {
			return nil, fmt.Errorf("snapshot: decoding cell %d: %w", i, err)
		}
		shells[i] = shell
		pendings[i] = pending
	}

	resolveObj := func(idx uint32) (*object.Object, error) {
		if idx == nilRef {
			return nil, nil
		}
		o, ok := shells[idx].(*object.Object)
		if !ok {
			return nil, fmt.Errorf("snapshot: cell %d is not an object", idx)
		}
		return o, nil
	}
	resolveUpvalue := func(idx uint32) (*vm.Upvalue, error) {
		if idx == nilRef {
			return nil, nil
		}
		u, ok := shells[idx].(*vm.Upvalue)
		if !ok {
			return nil, fmt.Errorf("snapshot: cell %d is not an upvalue", idx)
		}
		return u, nil
	}
	resolveValue := func(rv rawValue) (value.Value, error) {
		if rv.kind == valueRaw {
			return value.Value(rv.raw), nil
		}
		return boxCell(shells[rv.ref])
	}

	for i, p := range pendings {
		switch pend := p.(type) {
		case nil:
			// *vm.StringCell: fully constructed at decode time, nothing to fix up.

		case *pendingStructure:
			proto, err := resolveObj(pend.protoIdx)
			if err != nil {
				return nil, err
			}
			shells[i].(*object.Structure).Finish(proto, pend.dictionary, pend.props)

		case *pendingObject:
			structure, ok := shells[pend.structureIdx].(*object.Structure)
			if !ok {
				return nil, fmt.Errorf("snapshot: cell %d's structure ref is not a structure", i)
			}
			proto, err := resolveObj(pend.protoIdx)
			if err != nil {
				return nil, err
			}
			values := make([]value.Value, len(pend.values))
			for j, rv := range pend.values {
				if values[j], err = resolveValue(rv); err != nil {
					return nil, err
				}
			}
			indexed := make(map[uint32]value.Value, len(pend.indexed))
			for idx, rv := range pend.indexed {
				v, err := resolveValue(rv)
				if err != nil {
					return nil, err
				}
				indexed[idx] = v
			}
			shells[i].(*object.Object).Finish(structure, proto, pend.props, values, indexed, pend.length)

		case *pendingClosure:
			upvalues := make([]*vm.Upvalue, len(pend.upvalueIdx))
			for j, idx := range pend.upvalueIdx {
				if upvalues[j], err = resolveUpvalue(idx); err != nil {
					return nil, err
				}
			}
			proto, err := resolveObj(pend.protoIdx)
			if err != nil {
				return nil, err
			}
			cl := shells[i].(*vm.Closure)
			cl.Upvalues = upvalues
			cl.Prototype = proto

		case *pendingUpvalue:
			v, err := resolveValue(pend.val)
			if err != nil {
				return nil, err
			}
			shells[i].(*vm.Upvalue).Set(v)

		case *pendingNative:
			proto, err := resolveObj(pend.protoIdx)
			if err != nil {
				return nil, err
			}
			shells[i].(*vm.NativeFunction).Prototype = proto

		default:
			return nil, fmt.Errorf("snapshot: unrecognized pending kind for cell %d", i)
		}
	}

	roots := make([]value.Value, len(rootIdx))
	for i, idx := range rootIdx {
		v, err := boxCell(shells[idx])
		if err != nil {
			return nil, err
		}
		roots[i] = v
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("snapshot: no roots recorded")
	}
	globalObj, ok := shells[rootIdx[0]].(*object.Object)
	if !ok {
		return nil, fmt.Errorf("snapshot: first root is not an object")
	}
	m.AdoptGlobals(globalObj)

	return roots, nil
}

// boxCell converts a reconstructed cell back into the cell-tagged
// value.Value form script code and Call/Construct arguments use.
// Structure and Upvalue cells are never boxed this way in live
// execution (a Value's cell tag only ever points at a string, object,
// closure, or native function), so a reference to one here indicates a
// corrupted or hand-crafted snapshot.
func boxCell(c heap.Cell) (value.Value, error) {
	switch cell := c.(type) {
	case *vm.StringCell:
		return vm.StringValue(cell), nil
	case *object.Object:
		return vm.ObjectValue(cell), nil
	case *vm.Closure:
		return vm.ClosureValue(cell), nil
	case *vm.NativeFunction:
		return vm.NativeFunctionValue(cell), nil
	default:
		return value.Undefined(), fmt.Errorf("snapshot: cell type %T cannot appear as a value", c)
	}
}

type rawValue struct {
	kind valueKind
	raw  uint64
	ref  uint32
}

type pendingStructure struct {
	protoIdx   uint32
	dictionary bool
	props      []object.PropertyDecl
}

type pendingObject struct {
	structureIdx uint32
	protoIdx     uint32
	props        []object.PropertyDecl
	values       []rawValue
	indexed      map[uint32]rawValue
	length       uint32
}

type pendingClosure struct {
	upvalueIdx []uint32
	protoIdx   uint32
}

type pendingUpvalue struct {
	val rawValue
}

type pendingNative struct {
	protoIdx uint32
}

type decoder struct {
	r        *bytes.Reader
	codeOf   CodeLookup
	nativeOf NativeLookup
}

func (d *decoder) readByte() (byte, error) { return d.r.ReadByte() }

func (d *decoder) readU32() (uint32, error) {
	var v uint32
	if err := binary.Read(d.r, binary.LittleEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (d *decoder) readU64() (uint64, error) {
	var v uint64
	if err := binary.Read(d.r, binary.LittleEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (d *decoder) readString() (string, error) {
	n, err := d.readU32()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (d *decoder) readValue() (rawValue, error) {
	kb, err := d.readByte()
	if err != nil {
		return rawValue{}, err
	}
	switch valueKind(kb) {
	case valueRaw:
		raw, err := d.readU64()
		return rawValue{kind: valueRaw, raw: raw}, err
	case valueRef:
		ref, err := d.readU32()
		return rawValue{kind: valueRef, ref: ref}, err
	default:
		return rawValue{}, fmt.Errorf("snapshot: unrecognized value tag %d", kb)
	}
}

func (d *decoder) readPropertyDecl() (object.PropertyDecl, error) {
	name, err := d.readString()
	if err != nil {
		return object.PropertyDecl{}, err
	}
	attrs, err := d.readByte()
	if err != nil {
		return object.PropertyDecl{}, err
	}
	return object.PropertyDecl{Name: object.Symbols.Intern(name), Attrs: object.Attribute(attrs)}, nil
}

// decodeCell reads one cell-table entry and returns its freshly
// allocated (but, for every kind except string, not yet wired) shell
// cell plus the pending reference data Load's second pass resolves.
func (d *decoder) decodeCell(m *vm.VM) (heap.Cell, interface{}, error) {
	kb, err := d.readByte()
	if err != nil {
		return nil, nil, err
	}
	switch cellKind(kb) {
	case kindString:
		s, err := d.readString()
		if err != nil {
			return nil, nil, err
		}
		return m.RestoreString(s), nil, nil

	case kindStructure:
		protoIdx, err := d.readU32()
		if err != nil {
			return nil, nil, err
		}
		dictByte, err := d.readByte()
		if err != nil {
			return nil, nil, err
		}
		n, err := d.readU32()
		if err != nil {
			return nil, nil, err
		}
		props := make([]object.PropertyDecl, 0, n)
		if dictByte == 0 {
			for i := uint32(0); i < n; i++ {
				p, err := d.readPropertyDecl()
				if err != nil {
					return nil, nil, err
				}
				props = append(props, p)
			}
		}
		return m.PrepareStructure(), &pendingStructure{protoIdx: protoIdx, dictionary: dictByte != 0, props: props}, nil

	case kindObject:
		structureIdx, err := d.readU32()
		if err != nil {
			return nil, nil, err
		}
		protoIdx, err := d.readU32()
		if err != nil {
			return nil, nil, err
		}
		nProps, err := d.readU32()
		if err != nil {
			return nil, nil, err
		}
		props := make([]object.PropertyDecl, nProps)
		values := make([]rawValue, nProps)
		for i := uint32(0); i < nProps; i++ {
			if props[i], err = d.readPropertyDecl(); err != nil {
				return nil, nil, err
			}
			if values[i], err = d.readValue(); err != nil {
				return nil, nil, err
			}
		}
		nIndexed, err := d.readU32()
		if err != nil {
			return nil, nil, err
		}
		indexed := make(map[uint32]rawValue, nIndexed)
		for i := uint32(0); i < nIndexed; i++ {
			idx, err := d.readU32()
			if err != nil {
				return nil, nil, err
			}
			v, err := d.readValue()
			if err != nil {
				return nil, nil, err
			}
			indexed[idx] = v
		}
		length, err := d.readU32()
		if err != nil {
			return nil, nil, err
		}
		return m.PrepareObject(), &pendingObject{
			structureIdx: structureIdx, protoIdx: protoIdx,
			props: props, values: values, indexed: indexed, length: length,
		}, nil

	case kindClosure:
		codeName, err := d.readString()
		if err != nil {
			return nil, nil, err
		}
		name, err := d.readString()
		if err != nil {
			return nil, nil, err
		}
		nUp, err := d.readU32()
		if err != nil {
			return nil, nil, err
		}
		upvalueIdx := make([]uint32, nUp)
		for i := range upvalueIdx {
			if upvalueIdx[i], err = d.readU32(); err != nil {
				return nil, nil, err
			}
		}
		protoIdx, err := d.readU32()
		if err != nil {
			return nil, nil, err
		}
		code, ok := d.codeOf(codeName)
		if !ok {
			return nil, nil, fmt.Errorf("snapshot: no compiled code block named %q available", codeName)
		}
		return m.PrepareClosure(code, name), &pendingClosure{upvalueIdx: upvalueIdx, protoIdx: protoIdx}, nil

	case kindUpvalue:
		v, err := d.readValue()
		if err != nil {
			return nil, nil, err
		}
		return m.PrepareUpvalue(), &pendingUpvalue{val: v}, nil

	case kindNativeFunction:
		name, err := d.readString()
		if err != nil {
			return nil, nil, err
		}
		protoIdx, err := d.readU32()
		if err != nil {
			return nil, nil, err
		}
		fn, ok := d.nativeOf(name)
		if !ok {
			return nil, nil, fmt.Errorf("snapshot: no native function named %q available", name)
		}
		return m.PrepareNativeFunction(name, fn), &pendingNative{protoIdx: protoIdx}, nil

	default:
		return nil, nil, fmt.Errorf("snapshot: unrecognized cell kind %d", kb)
	}
}
