package parity

import (
	"fmt"
	"strings"
)

// PublishDisassembly renders a best-effort, byte-pattern-matched listing
// of an x86-64 instruction stream, grounded on wudi-hey's
// JITDebugger.DisassembleMachineCode: a linear scan recognizing the
// handful of prologue/epilogue/ALU encodings this backend's emitters
// actually produce, falling back to a raw byte dump for anything it does
// not recognize. It is not a general x86-64 disassembler and does not
// try to be.
func PublishDisassembly(code []byte, baseAddr uintptr) string {
	var b strings.Builder
	i := 0
	for i < len(code) {
		addr := baseAddr + uintptr(i)
		mnemonic, width := decodeOne(code[i:])
		fmt.Fprintf(&b, "%#08x: % -24s %s\n", addr, hexBytes(code[i:i+width]), mnemonic)
		i += width
	}
	return b.String()
}

func hexBytes(bs []byte) string {
	var b strings.Builder
	for _, v := range bs {
		fmt.Fprintf(&b, "%02x ", v)
	}
	return b.String()
}

// decodeOne recognizes one instruction at the start of code and returns
// its mnemonic and byte width, defaulting to a single-byte ".byte" entry
// when nothing matches.
func decodeOne(code []byte) (mnemonic string, width int) {
	if len(code) == 0 {
		return "", 0
	}

	switch {
	case len(code) >= 1 && code[0] == 0x55:
		return "push rbp", 1
	case len(code) >= 1 && code[0] == 0x5d:
		return "pop rbp", 1
	case len(code) >= 1 && code[0] == 0xc3:
		return "ret", 1
	case len(code) >= 1 && code[0] == 0x90:
		return "nop", 1
	case len(code) >= 3 && code[0] == 0x48 && code[1] == 0x89 && code[2] == 0xe5:
		return "mov rbp, rsp", 3
	case len(code) >= 4 && code[0] == 0x48 && code[1] == 0x83 && code[2] == 0xec:
		return fmt.Sprintf("sub rsp, %#x", code[3]), 4
	case len(code) >= 4 && code[0] == 0x48 && code[1] == 0x83 && code[2] == 0xc4:
		return fmt.Sprintf("add rsp, %#x", code[3]), 4
	case len(code) >= 3 && code[0] == 0x48 && code[1] == 0x01:
		return fmt.Sprintf("add r%s, r%s", regName(modRMReg(code[2])), regName(modRMRM(code[2]))), 3
	case len(code) >= 3 && code[0] == 0x48 && code[1] == 0x29:
		return fmt.Sprintf("sub r%s, r%s", regName(modRMReg(code[2])), regName(modRMRM(code[2]))), 3
	case len(code) >= 3 && code[0] == 0x48 && code[1] == 0x89:
		return fmt.Sprintf("mov r%s, r%s", regName(modRMRM(code[2])), regName(modRMReg(code[2]))), 3
	case len(code) >= 3 && code[0] == 0x48 && code[1] == 0x8b:
		return fmt.Sprintf("mov r%s, r%s", regName(modRMReg(code[2])), regName(modRMRM(code[2]))), 3
	case len(code) >= 10 && (code[0]&0xF8) == 0x48 && code[1] == 0xB8:
		return "movabs reg, imm64", 10
	case len(code) >= 1:
		return fmt.Sprintf(".byte %#02x", code[0]), 1
	}
	return "", 0
}

func modRMReg(b byte) int { return int((b >> 3) & 7) }
func modRMRM(b byte) int  { return int(b & 7) }

func regName(n int) string {
	names := [8]string{"ax", "cx", "dx", "bx", "sp", "bp", "si", "di"}
	if n < 0 || n >= len(names) {
		return "?"
	}
	return names[n]
}
