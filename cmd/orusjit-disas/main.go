// Command orusjit-disas compiles one of a handful of built-in IR program
// fixtures through the JIT backend and reports which strategy was
// selected, its parity counts, and (when available) a disassembly
// listing. It exists for bootstrapping and manual inspection, not as a
// general bytecode-to-native tool (the translator that lifts programs
// out of live bytecode is out of scope, per spec.md §1).
//
// Grounded on tetratelabs-wazero's cmd/wazero: a thin main delegating to
// a doMain(args, stdout, stderr) int function so the CLI's behavior is
// unit-testable without touching os.Args/os.Exit.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/jordyorel/orus-lang-sub000/backend"
	"github.com/jordyorel/orus-lang-sub000/ir"
	"github.com/jordyorel/orus-lang-sub000/jitlog"
	"github.com/jordyorel/orus-lang-sub000/parity"
)

func main() {
	os.Exit(doMain(os.Args[1:], os.Stdout, os.Stderr))
}

func doMain(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("orusjit-disas", flag.ContinueOnError)
	flags.SetOutput(stderr)
	fixture := flags.String("fixture", "noop", "built-in IR fixture to compile: noop, literal, arith")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	prog, err := fixtureProgram(*fixture)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	b := backend.New(nil, jitlog.New(stderr))
	defer b.Close()

	avail := b.Availability()
	fmt.Fprintf(stdout, "target: %s status: %d\n", avail.Target, avail.Status)
	if avail.Status != backend.StatusOk {
		fmt.Fprintf(stdout, "unavailable: %s\n", avail.Message)
		return 1
	}

	entry, err := b.CompileIR(prog)
	if err != nil {
		fmt.Fprintf(stderr, "compile_ir: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "strategy: %s\n", entry.Strategy)
	fmt.Fprintf(stdout, "code_ptr: %#x code_size: %d\n", entry.CodePtr, entry.CodeSize)

	report, err := parity.CollectParity(prog, avail.Target.ParityTarget())
	if err != nil {
		fmt.Fprintf(stderr, "collect_parity: %v\n", err)
	} else {
		fmt.Fprintf(stdout, "parity: %+v (total=%d)\n", report, report.Total())
	}

	if listing, ok := b.Disassembly(entry); ok {
		fmt.Fprint(stdout, listing)
	} else {
		fmt.Fprintln(stdout, "disassembly: unavailable for this strategy/target")
	}

	if err := b.ReleaseEntry(entry); err != nil {
		fmt.Fprintf(stderr, "release_entry: %v\n", err)
		return 1
	}
	return 0
}

func fixtureProgram(name string) (*ir.Program, error) {
	switch name {
	case "noop":
		return &ir.Program{Instructions: []ir.Instruction{{Op: ir.OpReturn}}}, nil
	case "literal":
		return &ir.Program{
			Instructions: []ir.Instruction{
				{Op: ir.OpLoadI64Const, Dst: 0, ConstIndex: 0},
				{Op: ir.OpReturn},
			},
			SourceConstants: []ir.Constant{{Kind: ir.KindI64, Bits: 42}},
		}, nil
	case "arith":
		return &ir.Program{
			Instructions: []ir.Instruction{
				{Op: ir.OpLoadI64Const, Dst: 0, ConstIndex: 0},
				{Op: ir.OpLoadI64Const, Dst: 1, ConstIndex: 1},
				{Op: ir.OpAddI64, Dst: 2, Lhs: 0, Rhs: 1},
				{Op: ir.OpReturn},
			},
			SourceConstants: []ir.Constant{
				{Kind: ir.KindI64, Bits: 5},
				{Kind: ir.KindI64, Bits: 7},
			},
		}, nil
	default:
		return nil, fmt.Errorf("orusjit-disas: unknown fixture %q (want noop, literal, or arith)", name)
	}
}
