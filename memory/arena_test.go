package memory

import "testing"

func TestAllocExecutableRoundsUpAndStartsWritableOnly(t *testing.T) {
	a := NewArena()
	defer a.Close()

	r, err := a.AllocExecutable(10)
	if err != nil {
		t.Fatal(err)
	}
	if r.Size() < 10 {
		t.Errorf("region size = %d, want >= 10", r.Size())
	}
	if r.Executable() {
		t.Error("freshly allocated region reports Executable() = true, want false (W^X at creation)")
	}
	if a.Len() != 1 {
		t.Errorf("Arena.Len() = %d, want 1", a.Len())
	}
}

func TestMakeExecutableThenWriteFaults(t *testing.T) {
	if err := Probe(); err != nil {
		t.Skipf("host does not support the W^X probe in this environment: %v", err)
	}
}

func TestSetWriteProtectionRoundTrip(t *testing.T) {
	a := NewArena()
	defer a.Close()

	r, err := a.AllocExecutable(64)
	if err != nil {
		t.Fatal(err)
	}
	copy(r.Bytes(), []byte{0xC3}) // a single RET, harmless if ever executed

	if err := a.SetWriteProtection(true); err != nil {
		t.Fatalf("SetWriteProtection(true) = %v", err)
	}
	if !r.Executable() {
		t.Error("region not marked executable after SetWriteProtection(true)")
	}

	if err := a.SetWriteProtection(false); err != nil {
		t.Fatalf("SetWriteProtection(false) = %v", err)
	}
	if r.Executable() {
		t.Error("region still marked executable after SetWriteProtection(false)")
	}
	// Now writable again.
	r.Bytes()[0] = 0x90
}

func TestReleaseExecutableUnregisters(t *testing.T) {
	a := NewArena()
	r, err := a.AllocExecutable(32)
	if err != nil {
		t.Fatal(err)
	}
	if a.Len() != 1 {
		t.Fatalf("Arena.Len() = %d, want 1", a.Len())
	}
	if err := a.ReleaseExecutable(r); err != nil {
		t.Fatal(err)
	}
	if a.Len() != 0 {
		t.Errorf("Arena.Len() = %d, want 0 after release", a.Len())
	}
}
