package tier

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jordyorel/orus-lang-sub000/helper"
	"github.com/jordyorel/orus-lang-sub000/ir"
	"github.com/jordyorel/orus-lang-sub000/registry"
)

func newTestBlock(functionIndex, loopIndex int, codePtr uintptr) *registry.NativeBlock {
	return &registry.NativeBlock{
		Program:       &ir.Program{FunctionIndex: functionIndex, LoopIndex: loopIndex},
		CodePtr:       codePtr,
		FunctionIndex: functionIndex,
		LoopIndex:     loopIndex,
	}
}

func TestSelectChunkColdFunctionStaysBaseline(t *testing.T) {
	reg := registry.New()
	c := New(reg, nil, nil)

	chunk := c.SelectChunk(7)
	if chunk.Tier != Baseline {
		t.Fatalf("SelectChunk() tier = %v, want Baseline for an unregistered function", chunk.Tier)
	}
}

func TestSelectChunkStaysSpecializedAboveHysteresisBand(t *testing.T) {
	reg := registry.New()
	block := newTestBlock(1, 0, 0x1000)
	reg.Register(block)

	c := New(reg, func(int) uint64 { return 200 }, nil)
	c.RegisterSpecialized(block)
	// specialization_hits is seeded to SpecializationThreshold (512);
	// 200 >= 512/4 (128), so it should remain specialized.
	chunk := c.SelectChunk(1)
	if chunk.Tier != Specialized {
		t.Fatalf("SelectChunk() tier = %v, want Specialized (200 >= ref/4)", chunk.Tier)
	}
	if chunk.Block != block {
		t.Fatalf("SelectChunk() returned the wrong block")
	}
}

func TestSelectChunkDemotesBelowHysteresisBand(t *testing.T) {
	reg := registry.New()
	block := newTestBlock(2, 0, 0x2000)
	reg.Register(block)

	c := New(reg, func(int) uint64 { return 50 }, nil)
	c.RegisterSpecialized(block)
	// 50 < 512/4 (128): must demote exactly once.
	chunk := c.SelectChunk(2)
	if chunk.Tier != Baseline {
		t.Fatalf("SelectChunk() tier = %v, want Baseline (50 < ref/4)", chunk.Tier)
	}

	// A second call must not demote again (it is already Baseline); it
	// simply continues returning Baseline.
	chunk2 := c.SelectChunk(2)
	if chunk2.Tier != Baseline {
		t.Fatalf("SelectChunk() tier = %v, want Baseline on repeat call", chunk2.Tier)
	}
}

func TestSelectChunkDemotesWhenFullyCold(t *testing.T) {
	reg := registry.New()
	block := newTestBlock(3, 0, 0x3000)
	reg.Register(block)

	c := New(reg, func(int) uint64 { return 0 }, nil)
	// Force specialization_hits to 0 too by registering then manually
	// resetting, since RegisterSpecialized seeds it to the threshold.
	c.RegisterSpecialized(block)
	c.functions[3].specializationHits = 0

	chunk := c.SelectChunk(3)
	if chunk.Tier != Baseline {
		t.Fatalf("SelectChunk() tier = %v, want Baseline for a fully cold function", chunk.Tier)
	}
}

// TestHysteresisBandBoundary sweeps observed hit counts around the
// demotion boundary: a function specialized at hit count H demotes
// exactly once when the observation drops below H/4 and never demotes
// at or above it.
func TestHysteresisBandBoundary(t *testing.T) {
	const ref = uint64(SpecializationThreshold)
	cases := []struct {
		name        string
		current     uint64
		wantDemoted bool
	}{
		{"well above band", ref, false},
		{"exactly at band", ref / 4, false},
		{"one below band", ref/4 - 1, true},
		{"deep below band", 1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := registry.New()
			block := newTestBlock(1, 0, 0x1000)
			reg.Register(block)

			current := tc.current
			c := New(reg, func(int) uint64 { return current }, nil)
			c.RegisterSpecialized(block)

			demotions := 0
			c.SetDeoptHandler(1, func(functionIndex int) {
				demotions++
				c.functions[functionIndex].tier = Baseline
			})

			chunk := c.SelectChunk(1)
			if tc.wantDemoted {
				require.Equal(t, Baseline, chunk.Tier)
				require.Equal(t, 1, demotions, "must demote exactly once")
				// Repeated observations below the band must not demote again.
				c.SelectChunk(1)
				require.Equal(t, 1, demotions)
			} else {
				require.Equal(t, Specialized, chunk.Tier)
				require.Zero(t, demotions)
			}
		})
	}
}

func TestBailoutAndDeoptArmsPendingInvalidate(t *testing.T) {
	reg := registry.New()
	block := newTestBlock(4, 1, 0x4000)
	reg.Register(block)
	c := New(reg, nil, nil)
	c.RegisterSpecialized(block)

	vm := helper.NewVM(4)
	c.BailoutAndDeopt(vm, block)

	if !vm.PendingInvalidate {
		t.Fatal("BailoutAndDeopt() did not set PendingInvalidate")
	}
	if vm.PendingTrigger.FunctionIndex != 4 || vm.PendingTrigger.LoopIndex != 1 {
		t.Fatalf("BailoutAndDeopt() trigger = %+v, want {4 1 ...}", vm.PendingTrigger)
	}
	if vm.TypeDeopts != 1 {
		t.Fatalf("BailoutAndDeopt() TypeDeopts = %d, want 1", vm.TypeDeopts)
	}
	if !vm.LoopBlocklist[1] {
		t.Fatal("BailoutAndDeopt() did not blocklist the loop")
	}
	if c.SelectChunk(4).Tier != Baseline {
		t.Fatal("BailoutAndDeopt() did not demote the function to Baseline")
	}
	if c.GuardExits().Len() != 1 {
		t.Fatalf("GuardExits().Len() = %d, want 1", c.GuardExits().Len())
	}
}

func TestBailoutAndDeoptInvokesCustomHandler(t *testing.T) {
	reg := registry.New()
	block := newTestBlock(5, 0, 0x5000)
	reg.Register(block)
	c := New(reg, nil, nil)
	c.RegisterSpecialized(block)

	var invoked int
	c.SetDeoptHandler(5, func(functionIndex int) {
		invoked = functionIndex
	})

	vm := helper.NewVM(4)
	c.BailoutAndDeopt(vm, block)

	if invoked != 5 {
		t.Fatalf("custom deopt handler invoked with %d, want 5", invoked)
	}
}

func TestInvalidateRemovesBlockFromRegistry(t *testing.T) {
	reg := registry.New()
	block := newTestBlock(6, 2, 0x6000)
	reg.Register(block)
	c := New(reg, nil, nil)
	c.RegisterSpecialized(block)

	released, ok := c.Invalidate(helper.DeoptTrigger{FunctionIndex: 6, LoopIndex: 2})
	if !ok || released != block {
		t.Fatalf("Invalidate() = (%v, %v), want (block, true)", released, ok)
	}
	if reg.Len() != 0 {
		t.Fatalf("registry.Len() = %d, want 0 after invalidate", reg.Len())
	}
	if c.SelectChunk(6).Tier != Baseline {
		t.Fatal("Invalidate() did not reset the function's tier to Baseline")
	}
}

func TestInvalidateOnUnknownTriggerReportsFalse(t *testing.T) {
	reg := registry.New()
	c := New(reg, nil, nil)
	if _, ok := c.Invalidate(helper.DeoptTrigger{FunctionIndex: 99, LoopIndex: 0}); ok {
		t.Fatal("Invalidate() = true for a trigger with no live block")
	}
}

func TestFlushReleasesEveryBlock(t *testing.T) {
	reg := registry.New()
	b1 := newTestBlock(1, 0, 0x1000)
	b2 := newTestBlock(2, 0, 0x2000)
	reg.Register(b1)
	reg.Register(b2)
	c := New(reg, nil, nil)
	c.RegisterSpecialized(b1)
	c.RegisterSpecialized(b2)

	released := c.Flush()
	if len(released) != 2 {
		t.Fatalf("Flush() released %d blocks, want 2", len(released))
	}
	if reg.Len() != 0 {
		t.Fatalf("registry.Len() = %d, want 0 after Flush", reg.Len())
	}
	if c.SelectChunk(1).Tier != Baseline || c.SelectChunk(2).Tier != Baseline {
		t.Fatal("Flush() did not reset every function's tier to Baseline")
	}
}

func TestGuardExitLogEvictsOldestBeyondCapacity(t *testing.T) {
	log := NewGuardExitLog(2)
	log.Record(1, 0)
	log.Record(1, 1)
	log.Record(1, 2)

	recent := log.Recent()
	if len(recent) != 2 {
		t.Fatalf("Recent() returned %d events, want 2", len(recent))
	}
	if recent[0].LoopIndex != 1 || recent[1].LoopIndex != 2 {
		t.Fatalf("Recent() = %+v, want loop indices [1 2]", recent)
	}
}
