// Package bytecode defines the engine's instruction set and the code
// block container the compiler emits into and the vm package executes
// (spec §4.6). Opcode numbering is implementation-defined — only the
// instruction classes and their operands are part of the compiler
// contract (spec §6).
package bytecode

// Op is one bytecode instruction.
type Op uint8

const (
	// Stack manipulation
	OpPushConstant Op = iota
	OpPushUndefined
	OpPushNull
	OpPushThis
	OpPop
	OpDup
	OpSwap

	// Environment access
	OpLoadLocal
	OpStoreLocal
	OpLoadUpvalue
	OpStoreUpvalue
	OpDeclareBinding

	// Global access (cached)
	OpLoadGlobal
	OpStoreGlobal

	// Property access (cached)
	OpGetByName
	OpSetByName
	OpGetByIndex
	OpSetByIndex
	OpDeleteByName

	// Arithmetic and logic
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpNeg
	OpShl
	OpShr
	OpUShr
	OpAnd
	OpOr
	OpXor
	OpNot
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpEqual
	OpNotEqual
	OpStrictEqual
	OpStrictNotEqual

	// Control flow
	OpJump
	OpJumpIfTrue
	OpJumpIfFalse
	OpReturn
	OpThrow

	// Call and construct
	OpCall
	OpConstruct
	OpSpreadCall

	// Object/array construction
	OpNewObject
	OpNewArray
	OpNewArrayWithElements
	OpNewClosure

	// Exception
	OpEnterTry
	OpLeaveTry

	opCount
)

var opNames = [opCount]string{
	OpPushConstant:         "push-constant",
	OpPushUndefined:        "push-undefined",
	OpPushNull:             "push-null",
	OpPushThis:             "push-this",
	OpPop:                  "pop",
	OpDup:                  "dup",
	OpSwap:                 "swap",
	OpLoadLocal:            "load-local",
	OpStoreLocal:           "store-local",
	OpLoadUpvalue:          "load-upvalue",
	OpStoreUpvalue:         "store-upvalue",
	OpDeclareBinding:       "declare-binding",
	OpLoadGlobal:           "load-global",
	OpStoreGlobal:          "store-global",
	OpGetByName:            "get-by-name",
	OpSetByName:            "set-by-name",
	OpGetByIndex:           "get-by-index",
	OpSetByIndex:           "set-by-index",
	OpDeleteByName:         "delete-by-name",
	OpAdd:                  "add",
	OpSub:                  "sub",
	OpMul:                  "mul",
	OpDiv:                  "div",
	OpRem:                  "rem",
	OpNeg:                  "neg",
	OpShl:                  "shl",
	OpShr:                  "shr",
	OpUShr:                 "ushr",
	OpAnd:                  "and",
	OpOr:                   "or",
	OpXor:                  "xor",
	OpNot:                  "not",
	OpLess:                 "lt",
	OpLessEqual:            "le",
	OpGreater:              "gt",
	OpGreaterEqual:         "ge",
	OpEqual:                "eq",
	OpNotEqual:             "ne",
	OpStrictEqual:          "seq",
	OpStrictNotEqual:       "sne",
	OpJump:                 "jump",
	OpJumpIfTrue:           "jump-if-true",
	OpJumpIfFalse:          "jump-if-false",
	OpReturn:               "return",
	OpThrow:                "throw",
	OpCall:                 "call",
	OpConstruct:            "construct",
	OpSpreadCall:           "spread-call",
	OpNewObject:            "new-object",
	OpNewArray:             "new-array",
	OpNewArrayWithElements: "new-array-with-elements",
	OpNewClosure:           "new-closure",
	OpEnterTry:             "enter-try",
	OpLeaveTry:             "leave-try",
}

func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "invalid"
}

// IsCacheable reports whether op is resolved through an inline-cache
// site (spec §4.5): global and property access instructions.
func (op Op) IsCacheable() bool {
	switch op {
	case OpLoadGlobal, OpStoreGlobal, OpGetByName, OpSetByName, OpGetByIndex, OpSetByIndex, OpDeleteByName:
		return true
	default:
		return false
	}
}

// IsBackwardBranchSafepoint reports whether op is one of the interrupt-
// flag check points (spec §5: "checked at backward branches and
// calls").
func (op Op) IsBackwardBranchSafepoint() bool {
	switch op {
	case OpJump, OpJumpIfTrue, OpJumpIfFalse, OpCall, OpConstruct, OpSpreadCall:
		return true
	default:
		return false
	}
}
