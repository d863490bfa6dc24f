package compiler

import (
	"strconv"
	"strings"
	"testing"

	"mflogic/pkg/vm"
)

// assertContains checks that one of program's lines holds expected as a
// substring.
func assertContains(t *testing.T, lines []string, expected string) {
	t.Helper()
	for _, l := range lines {
		if strings.Contains(l, expected) {
			return
		}
	}
	t.Errorf("program does not contain %q:\n%s", expected, strings.Join(lines, "\n"))
}

func mustCompile(t *testing.T, src string) []string {
	t.Helper()
	program, annotation, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile(%q) returned error: %v", src, err)
	}
	if len(program) != len(annotation) {
		t.Fatalf("program has %d lines but annotation has %d", len(program), len(annotation))
	}
	return program
}

func runVM(t *testing.T, program []string) *vm.VM {
	t.Helper()
	m := vm.New(program)
	if err := m.Run(); err != nil {
		t.Fatalf("VM run failed: %v\nprogram:\n%s", err, strings.Join(program, "\n"))
	}
	return m
}

// S1: a counted loop over a raw label and a raw jump.
func TestEndToEnd_CountedLoop(t *testing.T) {
	src := "set a 0\nmyloop:\nop add a a 1\njump myloop lessThan a 5\nend\n"
	m := runVM(t, mustCompile(t, src))
	if got := m.Globals["a"]; got != 5 {
		t.Errorf("a = %v, want 5", got)
	}
}

// S2: if/else picks the right branch.
func TestEndToEnd_IfElse(t *testing.T) {
	src := "if equal a 0 {\nset b 1\n} else {\nset b 2\n}\nend\n"

	m := vm.New(mustCompile(t, src))
	m.Globals["a"] = 0
	if err := m.Run(); err != nil {
		t.Fatal(err)
	}
	if m.Globals["b"] != 1 {
		t.Errorf("a=0: b = %v, want 1", m.Globals["b"])
	}

	m2 := vm.New(mustCompile(t, src))
	m2.Globals["a"] = 7
	if err := m2.Run(); err != nil {
		t.Fatal(err)
	}
	if m2.Globals["b"] != 2 {
		t.Errorf("a=7: b = %v, want 2", m2.Globals["b"])
	}
}

// S3: a while loop runs to completion.
func TestEndToEnd_While(t *testing.T) {
	src := "while lessThan a 10 {\nop add a a 2\n}\nend\n"
	m := runVM(t, mustCompile(t, src))
	if m.Globals["a"] != 10 {
		t.Errorf("a = %v, want 10", m.Globals["a"])
	}
}

// Property 6: continue inside a do/while jumps to the condition test, not
// back to the loop's top line. If it jumped to the top instead, the body
// would keep re-running past the point where the test should have stopped
// it, and the "unreachable" print below would fire.
func TestEndToEnd_ContinueInDoWhileTestsCondition(t *testing.T) {
	src := "set a 0\ndo {\nop add a a 1\nif lessThan a 5 {\ncontinue\n}\nprint \"unreachable\"\n} while lessThan a 3\nend\n"
	m := runVM(t, mustCompile(t, src))
	if m.Globals["a"] != 3 {
		t.Errorf("a = %v, want 3", m.Globals["a"])
	}
	if len(m.Output) != 0 {
		t.Errorf("output = %v, want none (continue must reach the condition test before the print)", m.Output)
	}
}

func TestEndToEnd_BreakExitsLoop(t *testing.T) {
	src := "loop {\nop add a a 1\nif equal a 3 {\nbreak\n}\n}\nend\n"
	m := runVM(t, mustCompile(t, src))
	if m.Globals["a"] != 3 {
		t.Errorf("a = %v, want 3", m.Globals["a"])
	}
}

const fibonacciSrc = `stack_config size 64
call recursive_fibonacci 6 -> x
end
fn recursive_fibonacci *n -> *result {
let *a
let *b
if lessThan *n 2 {
return *n
}
set *a *n
op sub *a *a 1
call recursive_fibonacci *a -> *a
set *b *n
op sub *b *b 2
call recursive_fibonacci *b -> *b
op add *a *a *b
return *a
}
`

// S5: the recursive_fibonacci call/return round trip under the internal
// jump-table stack backend.
func TestEndToEnd_RecursiveFibonacci_Internal(t *testing.T) {
	m := runVM(t, mustCompile(t, fibonacciSrc))
	if m.Globals["x"] != 8 {
		t.Errorf("fib(6) = %v, want 8", m.Globals["x"])
	}
}

// S6: the same program under the external-cell stack backend should reach
// the same observable result for the non-MF_* globals.
func TestEndToEnd_RecursiveFibonacci_External(t *testing.T) {
	src := strings.Replace(fibonacciSrc, "stack_config size 64", "stack_config cell bank1", 1)
	m := runVM(t, mustCompile(t, src))
	if m.Globals["x"] != 8 {
		t.Errorf("fib(6) = %v, want 8", m.Globals["x"])
	}
}

func TestEndToEnd_RecursiveFibonacciNine(t *testing.T) {
	src := strings.Replace(fibonacciSrc, "call recursive_fibonacci 6 -> x", "call recursive_fibonacci 9 -> x", 1)
	m := runVM(t, mustCompile(t, src))
	if m.Globals["x"] != 34 {
		t.Errorf("fib(9) = %v, want 34", m.Globals["x"])
	}
}

// Property 2: every jump in the emitted program targets a PC inside the
// program.
func TestEndToEnd_LabelSoundness(t *testing.T) {
	program := mustCompile(t, fibonacciSrc)
	for i, line := range program {
		toks := strings.Fields(line)
		if len(toks) == 0 || toks[0] != "jump" {
			continue
		}
		target, err := strconv.Atoi(toks[1])
		if err != nil {
			t.Fatalf("line %d: unresolved jump target %q", i, toks[1])
		}
		if target < 0 || target >= len(program) {
			t.Errorf("line %d: jump target %d outside [0, %d)", i, target, len(program))
		}
	}
}

// Property 4: unbalanced braces are rejected and produce no output at all.
func TestEndToEnd_UnbalancedBracesProduceNoOutput(t *testing.T) {
	program, annotation, err := Compile("if equal a 0 {\nset b 1\n")
	if err == nil {
		t.Fatal("expected an error for an unclosed if block")
	}
	if program != nil || annotation != nil {
		t.Errorf("expected nil output alongside an error, got program=%v annotation=%v", program, annotation)
	}
}

func TestCompile_DiagnosticCarriesLine(t *testing.T) {
	_, _, err := Compile("break\n")
	if err == nil {
		t.Fatal("expected an error for break outside any loop")
	}
	diag, ok := err.(*Diagnostic)
	if !ok {
		t.Fatalf("error is %T, want *Diagnostic", err)
	}
	if diag.Line != 1 {
		t.Errorf("Line = %d, want 1", diag.Line)
	}
}

func TestEndToEnd_RawPassthroughInstruction(t *testing.T) {
	program := mustCompile(t, "sensor result container1 @copper\nend\n")
	assertContains(t, program, "sensor result container1 @copper")
}
