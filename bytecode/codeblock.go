package bytecode

import (
	"encoding/binary"

	"github.com/lumenjs/core/ic"
	"github.com/lumenjs/core/object"
)

// instrWidth is the fixed byte width of every encoded instruction: one
// opcode byte followed by a 4-byte big-endian operand, used whether or
// not a given opcode needs the operand. Fixed width trades code density
// for O(1) instruction indexing, which jump targets and exception
// handler records both rely on.
const instrWidth = 5

// Instruction is a decoded (opcode, operand) pair.
type Instruction struct {
	Op      Op
	Operand int32
}

// ConstantKind classifies an entry in a CodeBlock's constant pool.
// Numbers box directly into a value.Value; strings need heap allocation
// (interning or a String cell) that only the vm package, with access to
// the running heap, can perform — the constant pool just carries the
// raw string until then.
type ConstantKind uint8

const (
	ConstNumber ConstantKind = iota
	ConstString
)

// Constant is one constant-pool entry.
type Constant struct {
	Kind   ConstantKind
	Number float64
	Str    string
}

// ExceptionHandler records one enter-try/leave-try region (spec §4.6):
// a throw occurring between TryStart and TryEnd with the call stack at
// or above this frame transfers control to TargetIP after truncating
// the operand stack to StackDepth.
type ExceptionHandler struct {
	TryStart   int
	TryEnd     int
	TargetIP   int
	StackDepth int
}

// CodeBlock is one compiled function's bytecode body and the static
// data it references: the constant pool, nested function code blocks
// (for new-closure), per-site inline caches, and exception handler
// records (spec §4.6, and the compiler contract of spec §6).
type CodeBlock struct {
	Name         string
	ParamCount   int
	LocalCount   int
	UpvalueCount int

	Code       []byte
	Constants  []Constant
	Nested     []*CodeBlock
	CacheSites []*ic.Site
	// CacheNames holds the property/global/method name each CacheSites
	// entry at the same index resolves against on a cache miss. A cache
	// site's key (a Structure, per ic.Site) is only known at the
	// receiver's runtime type; the name it was compiled against has to
	// come from here instead.
	CacheNames []object.SymbolID
	Handlers   []ExceptionHandler

	// CapturedLocals holds this block's own local-slot indices that some
	// nested block closes over. A frame boxes exactly these slots into
	// Upvalue cells at creation time, rather than every local, so that
	// the common case of an uncaptured local never pays heap-allocation
	// cost.
	CapturedLocals []int32

	// UpvalueCaptures describes how this block's own new-closure
	// instruction populates each upvalue slot it captures, indexed the
	// same as the resulting Closure.Upvalues: either from a slot already
	// boxed in the enclosing frame (CaptureLocal) or forwarded from the
	// enclosing closure's own upvalue array (CaptureEnclosing).
	UpvalueCaptures []UpvalueCapture
}

// UpvalueCaptureKind distinguishes where a captured upvalue's backing
// cell comes from when a new-closure instruction runs.
type UpvalueCaptureKind uint8

const (
	CaptureLocal UpvalueCaptureKind = iota
	CaptureEnclosing
)

// UpvalueCapture is one entry of a CodeBlock's UpvalueCaptures.
type UpvalueCapture struct {
	Kind  UpvalueCaptureKind
	Index int32
}

// NewCodeBlock constructs an empty code block for a function taking
// paramCount parameters and declaring localCount local bindings.
func NewCodeBlock(name string, paramCount, localCount int) *CodeBlock {
	return &CodeBlock{Name: name, ParamCount: paramCount, LocalCount: localCount}
}

// AddCapturedLocal records that slot (one of b's own locals) must be
// heap-boxed because some nested block closes over it, returning the
// capture's position for diagnostics.
func (b *CodeBlock) AddCapturedLocal(slot int32) int {
	b.CapturedLocals = append(b.CapturedLocals, slot)
	return len(b.CapturedLocals) - 1
}

// AddUpvalueCapture appends a capture descriptor to b (the nested block
// being defined), sets b's UpvalueCount to the new number of captures,
// and returns the capture's upvalue index: the slot new-closure
// populates at Upvalues[idx].
func (b *CodeBlock) AddUpvalueCapture(kind UpvalueCaptureKind, index int32) int32 {
	b.UpvalueCaptures = append(b.UpvalueCaptures, UpvalueCapture{Kind: kind, Index: index})
	b.UpvalueCount = len(b.UpvalueCaptures)
	return int32(len(b.UpvalueCaptures) - 1)
}

// Emit appends one instruction and returns its instruction index, for
// later use as a jump target or Patch argument.
func (b *CodeBlock) Emit(op Op, operand int32) int {
	idx := b.Len()
	buf := make([]byte, instrWidth)
	buf[0] = byte(op)
	binary.BigEndian.PutUint32(buf[1:], uint32(operand))
	b.Code = append(b.Code, buf...)
	return idx
}

// Patch overwrites the operand of the instruction at idx. Used to
// back-patch a forward jump once its destination instruction index is
// known.
func (b *CodeBlock) Patch(idx int, operand int32) {
	off := idx * instrWidth
	binary.BigEndian.PutUint32(b.Code[off+1:off+instrWidth], uint32(operand))
}

// At decodes the instruction at instruction index idx.
func (b *CodeBlock) At(idx int) Instruction {
	off := idx * instrWidth
	return Instruction{
		Op:      Op(b.Code[off]),
		Operand: int32(binary.BigEndian.Uint32(b.Code[off+1 : off+instrWidth])),
	}
}

// Len reports the number of instructions in the block.
func (b *CodeBlock) Len() int { return len(b.Code) / instrWidth }

// AddConstant appends c to the constant pool and returns its index.
func (b *CodeBlock) AddConstant(c Constant) int32 {
	b.Constants = append(b.Constants, c)
	return int32(len(b.Constants) - 1)
}

// AddCacheSite appends a fresh inline-cache site keyed to name and
// returns its index, used as the operand of the cacheable instruction
// it serves (spec §4.5).
func (b *CodeBlock) AddCacheSite(s *ic.Site, name object.SymbolID) int32 {
	b.CacheSites = append(b.CacheSites, s)
	b.CacheNames = append(b.CacheNames, name)
	return int32(len(b.CacheSites) - 1)
}

// AddNested registers a nested function's CodeBlock; the returned index
// is used as the operand of new-closure.
func (b *CodeBlock) AddNested(nested *CodeBlock) int32 {
	b.Nested = append(b.Nested, nested)
	return int32(len(b.Nested) - 1)
}

// PushHandler records an enter-try region and returns its index.
func (b *CodeBlock) PushHandler(h ExceptionHandler) int {
	b.Handlers = append(b.Handlers, h)
	return len(b.Handlers) - 1
}
