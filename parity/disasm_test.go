package parity

import (
	"strings"
	"testing"
)

func TestPublishDisassemblyRecognizesPrologueAndEpilogue(t *testing.T) {
	code := []byte{
		0x55,                   // push rbp
		0x48, 0x89, 0xe5,       // mov rbp, rsp
		0xc3,                   // ret
	}
	listing := PublishDisassembly(code, 0x1000)

	for _, want := range []string{"push rbp", "mov rbp, rsp", "ret"} {
		if !strings.Contains(listing, want) {
			t.Fatalf("PublishDisassembly() = %q, want it to contain %q", listing, want)
		}
	}
}

func TestPublishDisassemblyFallsBackToByteDump(t *testing.T) {
	code := []byte{0xf4} // hlt, not recognized by this decoder
	listing := PublishDisassembly(code, 0x2000)
	if !strings.Contains(listing, ".byte 0xf4") {
		t.Fatalf("PublishDisassembly() = %q, want a raw byte fallback", listing)
	}
}

func TestPublishDisassemblyCoversFullLength(t *testing.T) {
	code := []byte{0x55, 0x5d, 0xc3, 0x90}
	listing := PublishDisassembly(code, 0)
	if got := strings.Count(listing, "\n"); got != len(code) {
		t.Fatalf("PublishDisassembly() produced %d lines, want %d (one per single-byte op)", got, len(code))
	}
}
