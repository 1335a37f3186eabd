// Package tier implements the Tier/Deopt Controller (spec §4.6): per
// function tier state, the select_chunk hysteresis rule, bailout_and_deopt,
// and the invalidate/flush lifecycle over the native block registry.
//
// Grounded on zhubert-rush/jit.CodeCache's "deoptimizing" fallback inside
// CompiledCode.Execute (the only pack example that falls back from native
// code to an interpreter on failure) and CodeCache.Remove/Clear's
// find-then-release lifecycle shape, adapted from LRU cache eviction to the
// spec's exact hysteresis arithmetic (current >= ref/4).
package tier

import (
	"github.com/jordyorel/orus-lang-sub000/helper"
	"github.com/jordyorel/orus-lang-sub000/jitlog"
	"github.com/jordyorel/orus-lang-sub000/registry"
)

// Tier is a function's current specialization level.
type Tier int

const (
	Baseline Tier = iota
	Specialized
)

// SpecializationThreshold is the default reference hit count used when a
// function has never been specialized before, per §6.
const SpecializationThreshold = 512

// DemotionNumerator/DemotionDenominator encode the 25% hysteresis band:
// a function demotes only when current < ref/4.
const (
	DemotionNumerator   = 1
	DemotionDenominator = 4
)

// Chunk is the thing select_chunk hands back to the interpreter: either
// the function's specialized native entry or its baseline bytecode path.
// The backend package supplies the concrete entry; this package only
// needs to know whether a function is Specialized and which block (if
// any) backs it.
type Chunk struct {
	Tier  Tier
	Block *registry.NativeBlock
}

// DeoptHandler is invoked on demotion in place of the default stub, per
// §4.6: "invoke deopt_handler(function) if present".
type DeoptHandler func(functionIndex int)

// functionState is the per-function bookkeeping §4.6 requires: "tier,
// specialized_chunk?, specialization_hits, deopt_handler?, chunk".
type functionState struct {
	tier               Tier
	specializedChunk   *registry.NativeBlock
	baselineChunk      *registry.NativeBlock
	specializationHits uint64
	deoptHandler       DeoptHandler
}

// HitCounter reports a function's current profiling hit count, the
// external collaborator §1 keeps out of scope (the VM's profiler).
type HitCounter func(functionIndex int) uint64

// Controller owns tier state for every function plus the native block
// registry those tiers compile into; its BailoutAndDeopt is the
// BailoutFunc the caller wires the helper package's VM.Bailout hook to
// (helper must not import tier, so the dependency runs the other way).
type Controller struct {
	reg       *registry.Registry
	hitCount  HitCounter
	log       jitlog.Logger
	functions map[int]*functionState
	guardLog  *GuardExitLog
}

// defaultGuardLogCapacity bounds the guard-exit ring buffer's retention
// when New is called without an explicit one.
const defaultGuardLogCapacity = 256

// New constructs a Controller over reg. hitCount may be nil, in which
// case every function is treated as cold (current == 0).
func New(reg *registry.Registry, hitCount HitCounter, log jitlog.Logger) *Controller {
	if log == nil {
		log = jitlog.Discard
	}
	return &Controller{
		reg:       reg,
		hitCount:  hitCount,
		log:       log,
		functions: make(map[int]*functionState),
		guardLog:  NewGuardExitLog(defaultGuardLogCapacity),
	}
}

// GuardExits returns the controller's guard-exit debug log.
func (c *Controller) GuardExits() *GuardExitLog {
	return c.guardLog
}

func (c *Controller) stateFor(functionIndex int) *functionState {
	st, ok := c.functions[functionIndex]
	if !ok {
		st = &functionState{tier: Baseline}
		c.functions[functionIndex] = st
	}
	return st
}

// RegisterSpecialized records that block is the specialized native entry
// for its (FunctionIndex, LoopIndex), called once compile_ir publishes a
// new block, and marks the function Specialized with hits reset to the
// threshold so the very next select_chunk observes it as hot.
func (c *Controller) RegisterSpecialized(block *registry.NativeBlock) {
	st := c.stateFor(block.FunctionIndex)
	st.tier = Specialized
	st.specializedChunk = block
	if st.specializationHits == 0 {
		st.specializationHits = SpecializationThreshold
	}
}

func (c *Controller) hits(functionIndex int) uint64 {
	if c.hitCount == nil {
		return 0
	}
	return c.hitCount(functionIndex)
}

// SelectChunk returns the chunk the interpreter should execute for
// functionIndex, applying the §4.6 hysteresis rule:
//
//	ref = max(specialization_hits, SPECIALIZATION_THRESHOLD)
//	current == 0 && specialization_hits == 0  -> cold, demote
//	else specialized iff current >= ref / 4
func (c *Controller) SelectChunk(functionIndex int) Chunk {
	st := c.stateFor(functionIndex)
	if st.tier != Specialized || st.specializedChunk == nil {
		return Chunk{Tier: Baseline, Block: st.baselineChunk}
	}

	current := c.hits(functionIndex)
	if current == 0 && st.specializationHits == 0 {
		c.demote(functionIndex, st)
		return Chunk{Tier: Baseline, Block: st.baselineChunk}
	}

	ref := st.specializationHits
	if ref < SpecializationThreshold {
		ref = SpecializationThreshold
	}
	if current*DemotionDenominator >= ref*DemotionNumerator {
		return Chunk{Tier: Specialized, Block: st.specializedChunk}
	}

	c.demote(functionIndex, st)
	return Chunk{Tier: Baseline, Block: st.baselineChunk}
}

// SetDeoptHandler installs a non-default deopt handler for functionIndex.
func (c *Controller) SetDeoptHandler(functionIndex int, h DeoptHandler) {
	c.stateFor(functionIndex).deoptHandler = h
}

func (c *Controller) demote(functionIndex int, st *functionState) {
	if st.tier != Specialized {
		return
	}
	if st.deoptHandler != nil {
		st.deoptHandler(functionIndex)
		return
	}
	c.defaultDeoptStub(functionIndex, st)
}

// defaultDeoptStub is the fallback installed when a function has no
// deopt_handler: tier = Baseline, specialization_hits zeroed, logged.
func (c *Controller) defaultDeoptStub(functionIndex int, st *functionState) {
	st.tier = Baseline
	st.specializationHits = 0
	c.log.Logf("tier: function %d demoted to baseline (default deopt stub)", functionIndex)
}

// BailoutAndDeopt implements §4.6's bailout_and_deopt: invoked by helper
// ops (via vm.Bailout) when a guard fails. It records the deopt, arms the
// pending-invalidate trigger, blocklists the loop against immediate
// recompilation, installs the default deopt stub if none exists, and
// unwinds to the baseline interpreter.
func (c *Controller) BailoutAndDeopt(vm *helper.VM, block *registry.NativeBlock) {
	vm.TypeDeopts++
	c.guardLog.Record(block.FunctionIndex, block.LoopIndex)

	// The boxed file holds the last safepoint's snapshot; speculative
	// typed state written since is discarded so the baseline interpreter
	// resumes against a clean dirty mask (§8 bailout safety).
	vm.DiscardTypedState()

	if vm.LoopBlocklist != nil {
		vm.LoopBlocklist[block.LoopIndex] = true
	}

	vm.PendingTrigger = helper.DeoptTrigger{
		FunctionIndex: block.FunctionIndex,
		LoopIndex:     block.LoopIndex,
	}
	vm.PendingInvalidate = true

	st := c.stateFor(block.FunctionIndex)
	if st.deoptHandler == nil {
		c.defaultDeoptStub(block.FunctionIndex, st)
	} else {
		c.demote(block.FunctionIndex, st)
	}

	c.log.Logf("tier: bailout in function %d loop %d, deopting", block.FunctionIndex, block.LoopIndex)
}

// Invalidate releases the JITEntry for trigger.(FunctionIndex, LoopIndex):
// it removes the block from the registry (the backend's caller is
// responsible for releasing the underlying executable memory region,
// since the registry itself does not own memory.Arena).
func (c *Controller) Invalidate(trigger helper.DeoptTrigger) (released *registry.NativeBlock, ok bool) {
	block := c.reg.ForFunctionLoop(trigger.FunctionIndex, trigger.LoopIndex)
	if block == nil {
		return nil, false
	}
	if !c.reg.DestroyByCodePtr(block.CodePtr) {
		return nil, false
	}
	if st, exists := c.functions[trigger.FunctionIndex]; exists && st.specializedChunk == block {
		st.specializedChunk = nil
		st.tier = Baseline
	}
	return block, true
}

// Flush releases every entry currently in the registry, used on chunk
// replacement, function GC, and process shutdown. It returns the
// released blocks so the caller can release their backing memory
// regions.
func (c *Controller) Flush() []*registry.NativeBlock {
	var blocks []*registry.NativeBlock
	c.reg.Each(func(b *registry.NativeBlock) {
		blocks = append(blocks, b)
	})
	for _, b := range blocks {
		c.reg.DestroyByCodePtr(b.CodePtr)
	}
	for _, st := range c.functions {
		st.specializedChunk = nil
		st.tier = Baseline
	}
	return blocks
}
