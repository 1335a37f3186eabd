package registry

import (
	"testing"

	"github.com/google/uuid"
)

func newBlock(codePtr uintptr) *NativeBlock {
	return &NativeBlock{ID: uuid.New(), CodePtr: codePtr}
}

func TestRegisterFindDestroyBijection(t *testing.T) {
	r := New()
	a := newBlock(0x1000)
	b := newBlock(0x2000)
	c := newBlock(0x3000)
	r.Register(a)
	r.Register(b)
	r.Register(c)

	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}

	found, _ := r.FindByCodePtr(0x2000)
	if found != b {
		t.Fatalf("FindByCodePtr(0x2000) = %v, want b", found)
	}

	if !r.DestroyByCodePtr(0x2000) {
		t.Fatal("DestroyByCodePtr(0x2000) = false, want true")
	}
	if r.Len() != 2 {
		t.Fatalf("Len() = %d after destroy, want 2", r.Len())
	}
	if found, _ := r.FindByCodePtr(0x2000); found != nil {
		t.Error("block still findable after Destroy")
	}
	// The other two blocks remain findable - bijection preserved.
	if found, _ := r.FindByCodePtr(0x1000); found != a {
		t.Error("a no longer findable after destroying b")
	}
	if found, _ := r.FindByCodePtr(0x3000); found != c {
		t.Error("c no longer findable after destroying b")
	}
}

func TestDestroyHeadAndTail(t *testing.T) {
	r := New()
	a := newBlock(1)
	b := newBlock(2)
	r.Register(a) // head after this: a
	r.Register(b) // head after this: b -> a

	// destroy head (b)
	block, pred := r.FindByCodePtr(2)
	r.Destroy(block, pred)
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	found, _ := r.FindByCodePtr(1)
	if found != a {
		t.Fatal("a missing after destroying head")
	}

	// destroy remaining tail (a, which is now also head)
	block, pred = r.FindByCodePtr(1)
	r.Destroy(block, pred)
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", r.Len())
	}
}

func TestForFunctionLoop(t *testing.T) {
	r := New()
	block := newBlock(0xAAAA)
	block.FunctionIndex = 7
	block.LoopIndex = 2
	r.Register(block)

	if got := r.ForFunctionLoop(7, 2); got != block {
		t.Fatalf("ForFunctionLoop(7,2) = %v, want block", got)
	}
	if got := r.ForFunctionLoop(7, 3); got != nil {
		t.Fatalf("ForFunctionLoop(7,3) = %v, want nil", got)
	}
}

func TestDestroyByCodePtrMissing(t *testing.T) {
	r := New()
	if r.DestroyByCodePtr(0xDEAD) {
		t.Error("DestroyByCodePtr on empty registry returned true")
	}
}
