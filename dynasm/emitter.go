package dynasm

import (
	"encoding/binary"
	"fmt"

	"github.com/jordyorel/orus-lang-sub000/ir"
)

// AssemblyError reports a program shape this emitter does not recognize.
// Unlike emitamd64/emitarm64's AssemblyError (an internal-inconsistency
// signal for an otherwise-supported program), this one is the routine,
// expected outcome for most programs: the backend's strategy cascade
// treats it as "try the next strategy," not a bug.
type AssemblyError struct {
	Detail string
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("dynasm: %s", e.Detail)
}

// Emitter compiles the narrow set of IR programs this package recognizes
// directly into x86-64 machine code, without a builder library: every
// instruction is a raw byte template with its immediate operands patched
// in place, following launix-de/memcp's scm-jit pattern.
type Emitter struct{}

// New constructs a dynasm Emitter.
func New() *Emitter { return &Emitter{} }

// x86-64 register encodings used by this package's byte templates.
const (
	regRAX = 0
	regRCX = 1
	regRDX = 2
	regRDI = 7
)

// Compile recognizes exactly two program shapes, both ending in Return:
//
//   - a bare Return, or a single LoadI64Const followed by Return (the
//     teacher's jitReturnLiteral case, generalized to the typed register
//     file instead of a Scmer return pair);
//   - two LoadI64Const loads feeding one Add/Sub/MulI64 followed by
//     Return (the teacher's "single scalar arithmetic" scope - the
//     smallest expression jitCompileExprBody composes above a bare
//     literal).
//
// Any other program shape is declined with an *AssemblyError so the
// backend's strategy cascade falls through to the next strategy.
func (em *Emitter) Compile(prog *ir.Program) ([]byte, error) {
	if len(prog.Instructions) == 0 {
		return nil, &AssemblyError{Detail: "empty program"}
	}
	last := prog.Instructions[len(prog.Instructions)-1]
	if last.Op != ir.OpReturn {
		return nil, &AssemblyError{Detail: "program does not end in Return"}
	}
	body := prog.Instructions[:len(prog.Instructions)-1]

	switch len(body) {
	case 0:
		return em.compileReturnOnly(), nil
	case 1:
		if body[0].Op == ir.OpLoadI64Const {
			return em.compileLiteralReturn(prog, &body[0])
		}
	case 3:
		if body[0].Op == ir.OpLoadI64Const && body[1].Op == ir.OpLoadI64Const &&
			isI64Arith(body[2].Op) &&
			body[2].Lhs == body[0].Dst && body[2].Rhs == body[1].Dst {
			return em.compileScalarArithmetic(prog, body)
		}
	}
	return nil, &AssemblyError{Detail: "program shape not recognized"}
}

func isI64Arith(op ir.Opcode) bool {
	switch op {
	case ir.OpAddI64, ir.OpSubI64, ir.OpMulI64:
		return true
	}
	return false
}

type byteBuf struct {
	code []byte
}

func (b *byteBuf) append(bs ...byte) { b.code = append(b.code, bs...) }

func (b *byteBuf) appendDisp32(disp int32) {
	var d [4]byte
	binary.LittleEndian.PutUint32(d[:], uint32(disp))
	b.code = append(b.code, d[:]...)
}

// rex builds a REX prefix byte. w selects the 64-bit operand size; r/b
// extend the ModRM reg/rm fields past 7 for registers R8-R15.
func rex(w, r, b bool) byte {
	out := byte(0x40)
	if w {
		out |= 0x08
	}
	if r {
		out |= 0x04
	}
	if b {
		out |= 0x01
	}
	return out
}

// emitMovLoad encodes "mov dst, [base+disp32]" (opcode 8B /r, mod=10).
func (b *byteBuf) emitMovLoad(dst, base int, disp int32) {
	b.append(rex(true, dst >= 8, base >= 8), 0x8B, 0x80|byte((dst&7)<<3)|byte(base&7))
	b.appendDisp32(disp)
}

// emitMovStore encodes "mov [base+disp32], src" (opcode 89 /r, mod=10).
func (b *byteBuf) emitMovStore(base int, disp int32, src int) {
	b.append(rex(true, src >= 8, base >= 8), 0x89, 0x80|byte((src&7)<<3)|byte(base&7))
	b.appendDisp32(disp)
}

// emitMovImm64 encodes "movabs dst, imm64" (opcode B8+r io).
func (b *byteBuf) emitMovImm64(dst int, imm uint64) {
	b.append(rex(true, false, dst >= 8), 0xB8|byte(dst&7))
	var d [8]byte
	binary.LittleEndian.PutUint64(d[:], imm)
	b.code = append(b.code, d[:]...)
}

// emitAddReg encodes "add dst, src" (opcode 01 /r, mod=11).
func (b *byteBuf) emitAddReg(dst, src int) {
	b.append(rex(true, src >= 8, dst >= 8), 0x01, 0xC0|byte((src&7)<<3)|byte(dst&7))
}

// emitSubReg encodes "sub dst, src" (opcode 29 /r, mod=11).
func (b *byteBuf) emitSubReg(dst, src int) {
	b.append(rex(true, src >= 8, dst >= 8), 0x29, 0xC0|byte((src&7)<<3)|byte(dst&7))
}

// emitImulReg encodes "imul dst, src" (opcode 0F AF /r, mod=11).
func (b *byteBuf) emitImulReg(dst, src int) {
	b.append(rex(true, dst >= 8, src >= 8), 0x0F, 0xAF, 0xC0|byte((dst&7)<<3)|byte(src&7))
}

// emitStoreByteImm encodes "mov byte [base+disp32], imm8" (opcode C6 /0).
func (b *byteBuf) emitStoreByteImm(base int, disp int32, imm8 byte) {
	b.append(rex(false, false, base >= 8), 0xC6, 0x80|byte(base&7))
	b.appendDisp32(disp)
	b.append(imm8)
}

func (b *byteBuf) emitRet() { b.append(0xC3) }

// storeKindAndDirty writes the Kind/Dirty byte for reg, mirroring
// TypedWindow.StoreI64's side effects, the same bookkeeping emitamd64
// and emitarm64 perform after every typed register write.
func (b *byteBuf) storeKindAndDirty(reg int) {
	b.emitMovLoad(regRCX, regRDI, ctxOffKind)
	b.emitStoreByteImm(regRCX, int32(reg), byte(ir.KindI64))
	b.emitMovLoad(regRCX, regRDI, ctxOffDirty)
	b.emitStoreByteImm(regRCX, int32(reg), 1)
}

// compileReturnOnly emits the minimal success epilogue: "return 1"
// (rdi, the NativeContext pointer, is unused).
func (em *Emitter) compileReturnOnly() []byte {
	b := &byteBuf{}
	b.emitMovImm64(regRAX, 1)
	b.emitRet()
	return b.code
}

// compileLiteralReturn materializes a single constant into the I64
// register file then returns success, the teacher's jitReturnLiteral
// generalized from a fixed Scmer return pair to an arbitrary destination
// typed register.
func (em *Emitter) compileLiteralReturn(prog *ir.Program, load *ir.Instruction) ([]byte, error) {
	if load.ConstIndex < 0 || load.ConstIndex >= len(prog.SourceConstants) {
		return nil, &AssemblyError{Detail: "const index out of range"}
	}
	c := prog.SourceConstants[load.ConstIndex]

	b := &byteBuf{}
	b.emitMovLoad(regRCX, regRDI, ctxOffI64)
	b.emitMovImm64(regRDX, c.Bits)
	b.emitMovStore(regRCX, int32(load.Dst*8), regRDX)
	b.storeKindAndDirty(load.Dst)
	b.emitMovImm64(regRAX, 1)
	b.emitRet()
	return b.code, nil
}

// compileScalarArithmetic materializes two constants, applies one
// Add/Sub/Mul, stores the result, and returns success - the teacher's
// smallest non-literal jitCompileExprBody shape (one JITEmit call over
// two already-materialized operands), generalized the same way.
func (em *Emitter) compileScalarArithmetic(prog *ir.Program, body []ir.Instruction) ([]byte, error) {
	lhsLoad, rhsLoad, arith := &body[0], &body[1], &body[2]
	if lhsLoad.ConstIndex < 0 || lhsLoad.ConstIndex >= len(prog.SourceConstants) ||
		rhsLoad.ConstIndex < 0 || rhsLoad.ConstIndex >= len(prog.SourceConstants) {
		return nil, &AssemblyError{Detail: "const index out of range"}
	}
	lhsConst := prog.SourceConstants[lhsLoad.ConstIndex]
	rhsConst := prog.SourceConstants[rhsLoad.ConstIndex]

	b := &byteBuf{}
	b.emitMovLoad(regRCX, regRDI, ctxOffI64)
	b.emitMovImm64(regRAX, lhsConst.Bits)
	b.emitMovStore(regRCX, int32(lhsLoad.Dst*8), regRAX)
	b.emitMovImm64(regRDX, rhsConst.Bits)
	b.emitMovStore(regRCX, int32(rhsLoad.Dst*8), regRDX)
	b.storeKindAndDirty(lhsLoad.Dst)
	b.storeKindAndDirty(rhsLoad.Dst)
	// storeKindAndDirty leaves the Dirty base in rcx; reload the I64 base.
	b.emitMovLoad(regRCX, regRDI, ctxOffI64)

	b.emitMovLoad(regRAX, regRCX, int32(lhsLoad.Dst*8))
	b.emitMovLoad(regRDX, regRCX, int32(rhsLoad.Dst*8))
	switch arith.Op {
	case ir.OpAddI64:
		b.emitAddReg(regRAX, regRDX)
	case ir.OpSubI64:
		b.emitSubReg(regRAX, regRDX)
	case ir.OpMulI64:
		b.emitImulReg(regRAX, regRDX)
	}
	b.emitMovStore(regRCX, int32(arith.Dst*8), regRAX)
	b.storeKindAndDirty(arith.Dst)

	b.emitMovImm64(regRAX, 1)
	b.emitRet()
	return b.code, nil
}
