// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

// Opcode identifies the operation an Instruction performs. The grouping
// below follows the opcode groups enumerated in the backend specification:
// loads, moves, arithmetic, compares, conversions, string ops, array/enum,
// iteration, builtins, control flow, fused loops and safepoints.
type Opcode uint8

const (
	OpInvalid Opcode = iota

	// Load constants.
	OpLoadI32Const
	OpLoadI64Const
	OpLoadU32Const
	OpLoadU64Const
	OpLoadF64Const
	OpLoadBoolConst
	OpLoadStringConst
	OpLoadValueConst

	// Moves.
	OpMoveTyped
	OpMoveBoxed

	// Arithmetic: Add/Sub/Mul for I32/I64/U32/U64/F64, Div/Mod for same.
	OpAddI32
	OpSubI32
	OpMulI32
	OpDivI32
	OpModI32
	OpAddI64
	OpSubI64
	OpMulI64
	OpDivI64
	OpModI64
	OpAddU32
	OpSubU32
	OpMulU32
	OpDivU32
	OpModU32
	OpAddU64
	OpSubU64
	OpMulU64
	OpDivU64
	OpModU64
	OpAddF64
	OpSubF64
	OpMulF64
	OpDivF64
	OpModF64

	// Compare: LT/LE/GT/GE/EQ/NE per numeric kind, EQ/NE for Bool.
	OpCmpLT
	OpCmpLE
	OpCmpGT
	OpCmpGE
	OpCmpEQ
	OpCmpNE

	// Conversions, one opcode covers all 17 pairs; the pair is carried in
	// the Instruction's FromKind/ValueKind fields.
	OpConvert

	// String ops.
	OpConcatString
	OpToString
	OpTypeOf
	OpIsType

	// Array/enum.
	OpMakeArray
	OpArrayPush
	OpArrayPop
	OpEnumNew

	// Iteration.
	OpGetIter
	OpIterNext

	// Builtins.
	OpRange
	OpPrint
	OpAssertEq
	OpTimeStamp
	OpCallNative
	OpCallForeign

	// Control flow.
	OpJumpShort
	OpJumpBackShort
	OpJumpIfNotShort
	OpLoopBack
	OpReturn

	// Fused loops.
	OpIncCmpJump
	OpDecCmpJump

	// Safepoint.
	OpSafepoint

	opcodeCount
)

var opcodeNames = [opcodeCount]string{
	OpInvalid:         "invalid",
	OpLoadI32Const:    "load.i32.const",
	OpLoadI64Const:    "load.i64.const",
	OpLoadU32Const:    "load.u32.const",
	OpLoadU64Const:    "load.u64.const",
	OpLoadF64Const:    "load.f64.const",
	OpLoadBoolConst:   "load.bool.const",
	OpLoadStringConst: "load.string.const",
	OpLoadValueConst:  "load.value.const",
	OpMoveTyped:       "move.typed",
	OpMoveBoxed:       "move.boxed",
	OpAddI32:          "add.i32", OpSubI32: "sub.i32", OpMulI32: "mul.i32", OpDivI32: "div.i32", OpModI32: "mod.i32",
	OpAddI64: "add.i64", OpSubI64: "sub.i64", OpMulI64: "mul.i64", OpDivI64: "div.i64", OpModI64: "mod.i64",
	OpAddU32: "add.u32", OpSubU32: "sub.u32", OpMulU32: "mul.u32", OpDivU32: "div.u32", OpModU32: "mod.u32",
	OpAddU64: "add.u64", OpSubU64: "sub.u64", OpMulU64: "mul.u64", OpDivU64: "div.u64", OpModU64: "mod.u64",
	OpAddF64: "add.f64", OpSubF64: "sub.f64", OpMulF64: "mul.f64", OpDivF64: "div.f64", OpModF64: "mod.f64",
	OpCmpLT: "cmp.lt", OpCmpLE: "cmp.le", OpCmpGT: "cmp.gt", OpCmpGE: "cmp.ge", OpCmpEQ: "cmp.eq", OpCmpNE: "cmp.ne",
	OpConvert:      "convert",
	OpConcatString: "concat.string",
	OpToString:     "to.string",
	OpTypeOf:       "type.of",
	OpIsType:       "is.type",
	OpMakeArray:    "make.array",
	OpArrayPush:    "array.push",
	OpArrayPop:     "array.pop",
	OpEnumNew:      "enum.new",
	OpGetIter:      "get.iter",
	OpIterNext:     "iter.next",
	OpRange:        "range",
	OpPrint:        "print",
	OpAssertEq:     "assert.eq",
	OpTimeStamp:    "time.stamp",
	OpCallNative:   "call.native",
	OpCallForeign:  "call.foreign",
	OpJumpShort:      "jump.short",
	OpJumpBackShort:  "jump.back.short",
	OpJumpIfNotShort: "jump.if.not.short",
	OpLoopBack:       "loop.back",
	OpReturn:         "return",
	OpIncCmpJump:     "inc.cmp.jump",
	OpDecCmpJump:     "dec.cmp.jump",
	OpSafepoint:      "safepoint",
}

// String returns the human readable mnemonic for the opcode, used by the
// disassembly publisher and by error messages.
func (o Opcode) String() string {
	if int(o) < len(opcodeNames) && opcodeNames[o] != "" {
		return opcodeNames[o]
	}
	return "unknown"
}

// IsArithmetic reports whether op is one of the Add/Sub/Mul/Div/Mod family.
func (o Opcode) IsArithmetic() bool {
	return o >= OpAddI32 && o <= OpModF64
}

// IsCompare reports whether op is one of the comparison family.
func (o Opcode) IsCompare() bool {
	return o >= OpCmpLT && o <= OpCmpNE
}

// IsFusedLoop reports whether op is one of the fused counter/compare/jump ops.
func (o Opcode) IsFusedLoop() bool {
	return o == OpIncCmpJump || o == OpDecCmpJump
}

// IsControlFlow reports whether op transfers control.
func (o Opcode) IsControlFlow() bool {
	switch o {
	case OpJumpShort, OpJumpBackShort, OpJumpIfNotShort, OpLoopBack, OpReturn, OpIncCmpJump, OpDecCmpJump:
		return true
	}
	return false
}
