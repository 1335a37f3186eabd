package emitamd64

import (
	"fmt"

	asm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/jordyorel/orus-lang-sub000/ir"
)

// AssemblyError reports an (opcode, value_kind) pair, or a branch
// target, the emitter declined to handle. The caller treats this as a
// signal to try the next compilation strategy (§4.4 step 1).
type AssemblyError struct {
	Index  int
	Detail string
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("emitamd64: instruction %d: %s", e.Index, e.Detail)
}

// Emitter is the x86-64 Linear Emitter. It inlines the hot-path subset
// of the IR (I32/I64/F64 load/move/arithmetic/compare, the fused loop
// ops, control flow and safepoints) and lowers everything else -- every
// (opcode, value_kind) pair §4.4 itself assigns to "emit a call to the
// runtime helper", plus U32/U64 and Bool arithmetic/compare, which this
// emitter chooses not to hand-encode -- through a single uniform
// helper-call sequence that invokes the exact interpreter logic
// (helper.Executor.CallOp), so coverage narrower than the full inline
// set never produces incorrect results, only a slower path (see
// DESIGN.md).
type Emitter struct{}

// New constructs an x86-64 Emitter.
func New() *Emitter { return &Emitter{} }

// ctxReg is the reserved register holding the *NativeContext for the
// duration of the compiled function, loaded once in the prologue and
// never spilled, mirroring the teacher's single reserved wasm-stack
// pointer (R10) generalized to this spec's typed-register-window
// pointer struct.
const ctxReg = x86.REG_R15

// statusReg tracks the 0/1 exit status, set to 1 at entry and cleared
// at the exit label's bailout predecessor; the epilogue writes it to
// the result slot.
const statusReg = x86.REG_BX

// Compile assembles prog into straight-line x86-64 machine code,
// returning an *AssemblyError if any branch target is unresolved
// (§4.4 steps 1-4).
func (em *Emitter) Compile(prog *ir.Program) ([]byte, error) {
	builder, err := asm.NewBuilder("amd64", 64)
	if err != nil {
		return nil, err
	}

	table := ir.BuildSideTable(prog)

	labels := make([]*obj.Prog, len(prog.Instructions))
	for i := range labels {
		labels[i] = builder.NewProg()
		labels[i].As = obj.ANOP
	}

	// exitLabel is the single epilogue entry point. A Return instruction
	// jumps straight here with status untouched (still 1, set in the
	// prologue); emitBailout clears status to 0 immediately before
	// jumping here.
	exitLabel := builder.NewProg()
	exitLabel.As = obj.ANOP

	em.emitPrologue(builder)
	em.emitNullWindowGuard(builder, exitLabel)

	for i := range prog.Instructions {
		builder.AddInstruction(labels[i])
		inst := &prog.Instructions[i]
		if err := em.emitInst(builder, prog, table, labels, exitLabel, i, inst); err != nil {
			return nil, err
		}
	}

	builder.AddInstruction(exitLabel)
	em.emitEpilogue(builder)

	return builder.Assemble(), nil
}

// CompileHelperStub assembles the thin stub this emitter publishes when
// the backend's "helper stub" strategy is selected (ORUS_JIT_FORCE_HELPER_STUB,
// or as the fallback when the linear emitter is disabled): a single call
// into stubTrampoline, which interprets the whole program via
// helper.Executor.Run, skipping per-instruction codegen entirely.
func (em *Emitter) CompileHelperStub() []byte {
	builder, err := asm.NewBuilder("amd64", 64)
	if err != nil {
		// asm.NewBuilder only fails on an unrecognized GOARCH string,
		// which "amd64" never is; a panic here would indicate a broken
		// build, not a runtime condition callers should handle.
		panic(err)
	}

	p := builder.NewProg()
	p.As = x86.AMOVQ
	p.To.Type = obj.TYPE_REG
	p.To.Reg = ctxReg
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = x86.REG_SP
	p.From.Offset = 8
	builder.AddInstruction(p)

	// stubTrampoline takes one argument (ctx) and returns one int64,
	// both passed on the stack under the same ABI0 convention
	// emitCallSequence assumes for the two-argument helperTrampoline:
	// args occupy the low offsets, the return value sits immediately
	// above them.
	sub := builder.NewProg()
	sub.As = x86.ASUBQ
	sub.From.Type = obj.TYPE_CONST
	sub.From.Offset = 16
	sub.To.Type = obj.TYPE_REG
	sub.To.Reg = x86.REG_SP
	builder.AddInstruction(sub)

	arg0 := builder.NewProg()
	arg0.As = x86.AMOVQ
	arg0.To.Type = obj.TYPE_MEM
	arg0.To.Reg = x86.REG_SP
	arg0.To.Offset = 0
	arg0.From.Type = obj.TYPE_REG
	arg0.From.Reg = ctxReg
	builder.AddInstruction(arg0)

	loadFn := builder.NewProg()
	loadFn.As = x86.AMOVQ
	loadFn.To.Type = obj.TYPE_REG
	loadFn.To.Reg = scratchPtrReg
	loadFn.From.Type = obj.TYPE_CONST
	loadFn.From.Offset = int64(stubTrampolineAddr())
	builder.AddInstruction(loadFn)

	call := builder.NewProg()
	call.As = obj.ACALL
	call.To.Type = obj.TYPE_REG
	call.To.Reg = scratchPtrReg
	builder.AddInstruction(call)

	result := builder.NewProg()
	result.As = x86.AMOVQ
	result.To.Type = obj.TYPE_REG
	result.To.Reg = statusReg
	result.From.Type = obj.TYPE_MEM
	result.From.Reg = x86.REG_SP
	result.From.Offset = 8
	builder.AddInstruction(result)

	add := builder.NewProg()
	add.As = x86.AADDQ
	add.From.Type = obj.TYPE_CONST
	add.From.Offset = 16
	add.To.Type = obj.TYPE_REG
	add.To.Reg = x86.REG_SP
	builder.AddInstruction(add)

	em.emitEpilogue(builder)

	return builder.Assemble()
}

// emitPrologue loads the NativeContext pointer (passed as the sole
// stack-based argument under the ABI0 convention the teacher's own
// emitPreamble assumes) into ctxReg, and initializes the status
// register to success.
func (em *Emitter) emitPrologue(b *asm.Builder) {
	p := b.NewProg()
	p.As = x86.AMOVQ
	p.To.Type = obj.TYPE_REG
	p.To.Reg = ctxReg
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = x86.REG_SP
	p.From.Offset = 8
	b.AddInstruction(p)

	p = b.NewProg()
	p.As = x86.AMOVQ
	p.To.Type = obj.TYPE_REG
	p.To.Reg = statusReg
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = 1
	b.AddInstruction(p)
}

// emitEpilogue writes the status register to the result slot and
// returns.
func (em *Emitter) emitEpilogue(b *asm.Builder) {
	p := b.NewProg()
	p.As = x86.AMOVQ
	p.From.Type = obj.TYPE_REG
	p.From.Reg = statusReg
	p.To.Type = obj.TYPE_MEM
	p.To.Reg = x86.REG_SP
	p.To.Offset = 16
	b.AddInstruction(p)

	ret := b.NewProg()
	ret.As = obj.ARET
	b.AddInstruction(ret)
}

// emitNullWindowGuard guards that the typed-register base pointer is
// non-null before the body runs (§4.4 step 2: "guard that both pointers
// are non-null (any null => jump to the bailout label)"). A null window
// can never satisfy a typed access; like every other pure-inline guard
// the failure edge deopts via emitBailoutDeopt.
func (em *Emitter) emitNullWindowGuard(b *asm.Builder, exitLabel *obj.Prog) {
	p := b.NewProg()
	p.As = x86.AMOVQ
	p.To.Type = obj.TYPE_REG
	p.To.Reg = scratchPtrReg2
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = ctxReg
	p.From.Offset = ctxOffI32
	b.AddInstruction(p)

	test := b.NewProg()
	test.As = x86.ATESTQ
	test.From.Type = obj.TYPE_REG
	test.From.Reg = scratchPtrReg2
	test.To.Type = obj.TYPE_REG
	test.To.Reg = scratchPtrReg2
	b.AddInstruction(test)

	skip := b.NewProg()
	skip.As = x86.AJNE
	b.AddInstruction(skip)
	em.emitBailoutDeopt(b, exitLabel)
	okLabel := b.NewProg()
	okLabel.As = obj.ANOP
	skip.To.Type = obj.TYPE_BRANCH
	skip.To.Val = okLabel
	b.AddInstruction(okLabel)
}

// emitBailout clears the status register and jumps to exitLabel, which
// falls straight through to the epilogue (§4.4 step 4: "the bailout
// label ... falls through to the epilogue").
func (em *Emitter) emitBailout(b *asm.Builder, exitLabel *obj.Prog) {
	p := b.NewProg()
	p.As = x86.AMOVQ
	p.To.Type = obj.TYPE_REG
	p.To.Reg = statusReg
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = 0
	b.AddInstruction(p)

	jmp := b.NewProg()
	jmp.As = obj.AJMP
	jmp.To.Type = obj.TYPE_BRANCH
	jmp.To.Val = exitLabel
	b.AddInstruction(jmp)
}

// emitCallBailoutTrampoline calls bailoutTrampoline(ctx), discarding its
// result, following the same single-argument ABI0 stack convention
// CompileHelperStub uses for stubTrampoline.
func (em *Emitter) emitCallBailoutTrampoline(b *asm.Builder) {
	sub := b.NewProg()
	sub.As = x86.ASUBQ
	sub.From.Type = obj.TYPE_CONST
	sub.From.Offset = 16
	sub.To.Type = obj.TYPE_REG
	sub.To.Reg = x86.REG_SP
	b.AddInstruction(sub)

	arg0 := b.NewProg()
	arg0.As = x86.AMOVQ
	arg0.To.Type = obj.TYPE_MEM
	arg0.To.Reg = x86.REG_SP
	arg0.To.Offset = 0
	arg0.From.Type = obj.TYPE_REG
	arg0.From.Reg = ctxReg
	b.AddInstruction(arg0)

	loadFn := b.NewProg()
	loadFn.As = x86.AMOVQ
	loadFn.To.Type = obj.TYPE_REG
	loadFn.To.Reg = scratchPtrReg
	loadFn.From.Type = obj.TYPE_CONST
	loadFn.From.Offset = int64(bailoutTrampolineAddr())
	b.AddInstruction(loadFn)

	call := b.NewProg()
	call.As = obj.ACALL
	call.To.Type = obj.TYPE_REG
	call.To.Reg = scratchPtrReg
	b.AddInstruction(call)

	add := b.NewProg()
	add.As = x86.AADDQ
	add.From.Type = obj.TYPE_CONST
	add.From.Offset = 16
	add.To.Type = obj.TYPE_REG
	add.To.Reg = x86.REG_SP
	b.AddInstruction(add)
}

// emitBailoutDeopt is emitBailout for a guard the emitter checks
// entirely inline, with no preceding helper call to have already
// invoked bailout_and_deopt (§4.4/§4.6): the inline kind guards, the
// null-window guard and the fused-loop overflow check in
// emitGuardJNE_JO. It must call into Go itself, unlike emitBailout's
// other caller emitGuardJNE,
// which sits immediately after a helper call whose CallOp has already
// deopted -- calling the trampoline there too would deopt twice.
func (em *Emitter) emitBailoutDeopt(b *asm.Builder, exitLabel *obj.Prog) {
	em.emitCallBailoutTrampoline(b)
	em.emitBailout(b, exitLabel)
}

// emitGuardJNE emits a conditional jump to exitLabel (as a bailout) when
// the preceding compare's flags indicate "not equal" ("cmp ...; jne
// bailout"). Its caller is emitHelperCall; the bailout it emits does not
// call the bailout trampoline.
func (em *Emitter) emitGuardJNE(b *asm.Builder, exitLabel *obj.Prog) {
	// A guard failure must clear status before leaving, so this cannot
	// be a bare conditional branch to exitLabel; it branches to a small
	// inline bailout stub instead.
	skip := b.NewProg()
	skip.As = x86.AJEQ
	b.AddInstruction(skip)
	em.emitBailout(b, exitLabel)
	okLabel := b.NewProg()
	okLabel.As = obj.ANOP
	skip.To.Type = obj.TYPE_BRANCH
	skip.To.Val = okLabel
	b.AddInstruction(okLabel)
}
