// Package asm is the layout & symbol-resolution stage plus the emitter
// (§4.4, §4.6, §4.7). Lowering has already turned the source program into a
// fully widthed, fully resolved sequence of IR ops — every jump, callproc,
// and call target already carries a concrete PC. What is left here is a
// two-pass assembler: a first pass that measures (here: sizing and placing
// the internal backend's dispatcher tables and writing their base addresses
// back into the shared stack config) and a second pass that renders (here:
// walking the IR and turning every op into its final target-instruction
// text, alongside a parallel annotation stream).
package asm

import (
	"fmt"

	"mflogic/pkg/compiler"
)

// Emit runs layout followed by emission and returns the two parallel output
// streams described by §6: the executable program, one target instruction
// per line, and an annotation stream of equal length describing where each
// line came from. cfg must be the same *StackConfig every op in ops holds a
// pointer to — Emit fills in its PushBase/PopBase/PokeBase fields (internal
// backend only) before rendering a single op, so every Render() call sees
// the resolved table addresses.
func Emit(ops []compiler.Op, cfg *compiler.StackConfig) ([]string, []string, error) {
	tableLines, tableNotes := pass1(ops, cfg)
	return pass2(ops, tableLines, tableNotes)
}

// pass1 sums every IR op's width to find the program's length, then — for
// the internal backend only — places the push/pop/poke dispatcher tables
// immediately after it (behind one guard "end" instruction, so execution
// never falls through into table code) and writes their base addresses
// into cfg. External-cell and disabled backends need no tables at all.
func pass1(ops []compiler.Op, cfg *compiler.StackConfig) (lines, notes []string) {
	progLen := 0
	for _, op := range ops {
		progLen += op.Width()
	}

	if cfg.Kind != compiler.BackendInternal {
		return nil, nil
	}

	lines = append(lines, "end")
	notes = append(notes, "dispatcher guard: halts fall-through into the stack tables")

	base := progLen + 1
	cfg.PushBase = base
	cfg.PopBase = base + compiler.PushTableEntryWidth*cfg.Size
	cfg.PokeBase = cfg.PopBase + compiler.StackTableEntryWidth*cfg.Size

	// Push entries self-increment MF_stack_sz; pop/poke entries do not,
	// because their caller always needs the pre-decrement index for its own
	// read — an asymmetry preserved bit-for-bit from the reference
	// implementation's dispatcher generator, not something to "fix" here.
	for i := 0; i < cfg.Size; i++ {
		cell := compiler.StackCellName(i)
		lines = append(lines,
			fmt.Sprintf("set %s MF_acc", cell),
			"op add MF_stack_sz MF_stack_sz 1",
			"set @counter MF_resume",
		)
		notes = append(notes,
			fmt.Sprintf("push table entry %d: store accumulator", i),
			fmt.Sprintf("push table entry %d: advance stack size", i),
			fmt.Sprintf("push table entry %d: resume caller", i),
		)
	}
	for i := 0; i < cfg.Size; i++ {
		cell := compiler.StackCellName(i)
		lines = append(lines,
			fmt.Sprintf("set MF_acc %s", cell),
			"set @counter MF_resume",
		)
		notes = append(notes,
			fmt.Sprintf("pop table entry %d: load accumulator", i),
			fmt.Sprintf("pop table entry %d: resume caller", i),
		)
	}
	for i := 0; i < cfg.Size; i++ {
		cell := compiler.StackCellName(i)
		lines = append(lines,
			fmt.Sprintf("set %s MF_acc", cell),
			"set @counter MF_resume",
		)
		notes = append(notes,
			fmt.Sprintf("poke table entry %d: store accumulator", i),
			fmt.Sprintf("poke table entry %d: resume caller", i),
		)
	}
	return lines, notes
}

// pass2 renders every IR op — now that pass1 has resolved any dispatcher
// table addresses — and appends the dispatcher table lines computed above,
// producing the program and annotation streams in lockstep.
func pass2(ops []compiler.Op, tableLines, tableNotes []string) ([]string, []string, error) {
	program := make([]string, 0, len(ops)+len(tableLines))
	annotation := make([]string, 0, len(ops)+len(tableLines))

	pc := 0
	for _, op := range ops {
		rendered := op.Render()
		for _, text := range rendered {
			program = append(program, text)
			annotation = append(annotation, fmt.Sprintf("source:%d %s", op.Line(), describe(op)))
			pc++
		}
		if w := op.Width(); w != len(rendered) {
			return nil, nil, fmt.Errorf("internal error: width %d disagrees with %d rendered line(s) for the op on line %d", w, len(rendered), op.Line())
		}
	}

	for i, text := range tableLines {
		program = append(program, text)
		annotation = append(annotation, tableNotes[i])
		pc++
	}

	return program, annotation, nil
}

// describe names the lowering decision behind an IR op, for the annotation
// stream (§4.7). Every line an op expands to shares its op's description —
// finer-grained per-line notes would need Render() itself to carry them,
// which is more machinery than the annotation stream's documented purpose
// (source line plus lowering rule) calls for.
func describe(op compiler.Op) string {
	switch op.(type) {
	case *compiler.RawOp:
		return "raw pass-through"
	case *compiler.LabelDefOp:
		return "label"
	case *compiler.JumpAbsOp:
		return "unconditional jump"
	case *compiler.JumpCondOp:
		return "conditional jump"
	case *compiler.SetOp:
		return "assignment"
	case *compiler.MathOp:
		return "arithmetic/comparison"
	case *compiler.PrintOp:
		return "print"
	case *compiler.CallProcOp:
		return "callproc"
	case *compiler.RetProcOp:
		return "ret"
	case *compiler.PushAccOp:
		return "push"
	case *compiler.PopAccOp:
		return "pop"
	case *compiler.PeekAccOp:
		return "peek"
	case *compiler.PokeAccOp:
		return "poke"
	case *compiler.GetStackOp:
		return "read stack variable"
	case *compiler.SetStackOp:
		return "write stack variable"
	case *compiler.CallFnOp:
		return "call"
	case *compiler.ReturnFnOp:
		return "return"
	case *compiler.FnEpilogueOp:
		return "function epilogue"
	default:
		return "instruction"
	}
}
