// Package vm is the stack-based bytecode interpreter: call frames, the
// operand stack, lexical environments (locals and upvalues), exception
// unwinding, and cache-site maintenance (spec §4.6). The bytecode it
// executes is produced by an external compiler (spec §6) into the
// bytecode package's CodeBlock container.
package vm

import (
	"github.com/lumenjs/core/errs"
	"github.com/lumenjs/core/heap"
	"github.com/lumenjs/core/value"
)

// stack is the engine's operand stack: one contiguous value.Value slice
// shared across the whole call stack, with each Frame owning a base
// offset into it (spec §4.6: "operand values live in the frame's
// operand stack above the fixed metadata"). Grounded on go-ethereum's
// core/vm Stack — a capacity-bounded slice with push/pop/peek/dup/swap
// methods — generalized from that type's fixed 1024-word EVM limit to
// the configurable OperandStackLimit of EngineParams.
type stack struct {
	data    []value.Value
	limit   int
	resolve resolver
}

func newStack(limit int) *stack {
	return &stack{data: make([]value.Value, 0, 64), limit: limit}
}

func (s *stack) len() int { return len(s.data) }

func (s *stack) push(v value.Value) error {
	if len(s.data) >= s.limit {
		return errs.NewRangeError("operand stack", uint64(len(s.data)+1), uint64(s.limit))
	}
	s.data = append(s.data, v)
	return nil
}

func (s *stack) pop() value.Value {
	n := len(s.data)
	v := s.data[n-1]
	s.data[n-1] = value.Value(0)
	s.data = s.data[:n-1]
	return v
}

func (s *stack) peek() value.Value { return s.data[len(s.data)-1] }

func (s *stack) peekAt(fromTop int) value.Value { return s.data[len(s.data)-1-fromTop] }

func (s *stack) dup() error { return s.push(s.peek()) }

func (s *stack) swap() {
	n := len(s.data)
	s.data[n-1], s.data[n-2] = s.data[n-2], s.data[n-1]
}

// truncateTo shrinks the stack to exactly n elements, used to unwind the
// operand stack to an exception handler's recorded depth.
func (s *stack) truncateTo(n int) {
	for i := n; i < len(s.data); i++ {
		s.data[i] = value.Value(0)
	}
	s.data = s.data[:n]
}

// slice returns the live portion of the stack for conservative scanning
// and for slicing out a call's argument list; callers must not retain
// it past the next push/pop.
func (s *stack) slice() []value.Value { return s.data }

// resolver is satisfied by heap.Heap.ResolveAddress; the operand stack
// is handed one at construction via VM.New so it can implement
// heap.RootSource itself instead of routing through a roots.Frame —
// unlike per-call locals, the operand stack is one contiguous region
// shared by the whole call stack, so rooting it directly avoids
// pushing and popping a shadow-stack frame on every instruction.
type resolver func(addr uintptr) (heap.Cell, bool)

func (s *stack) setResolver(r resolver) { s.resolve = r }

// ScanRoots implements heap.RootSource over the live operand stack.
func (s *stack) ScanRoots(visit func(heap.Cell)) {
	if s.resolve == nil {
		return
	}
	for _, v := range s.data {
		if !v.IsCell() {
			continue
		}
		if c, ok := s.resolve(uintptr(v.AsCellPointer())); ok {
			visit(c)
		}
	}
}

// conservativeAddressBits mirrors roots.ShadowStack's masking constant:
// the address width value.FromCellPointer encodes into.
const conservativeAddressBits = 48

// ScanWords implements heap.ConservativeSource, the same defense-in-
// depth backstop roots.ShadowStack provides for shadow-stack frames,
// applied here to the operand stack.
func (s *stack) ScanWords(visit func(uint64)) {
	mask := uint64(1)<<conservativeAddressBits - 1
	for _, v := range s.data {
		visit(uint64(v) & mask)
	}
}
