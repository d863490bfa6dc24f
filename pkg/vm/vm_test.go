package vm

import "testing"

func TestVM_SetAndOp(t *testing.T) {
	m := New([]string{
		"set a 1",
		"op add a a 2",
		"end",
	})
	if err := m.Run(); err != nil {
		t.Fatal(err)
	}
	if m.Globals["a"] != 3 {
		t.Errorf("a = %v, want 3", m.Globals["a"])
	}
}

func TestVM_ConditionalJump(t *testing.T) {
	m := New([]string{
		"set a 0",          // 0
		"op add a a 1",     // 1
		"jump 1 lessThan a 3", // 2
		"end",               // 3
	})
	if err := m.Run(); err != nil {
		t.Fatal(err)
	}
	if m.Globals["a"] != 3 {
		t.Errorf("a = %v, want 3", m.Globals["a"])
	}
}

func TestVM_SetCounterJumpsDirectly(t *testing.T) {
	m := New([]string{
		"set @counter 2",
		"set a 99", // skipped
		"set a 1",
		"end",
	})
	if err := m.Run(); err != nil {
		t.Fatal(err)
	}
	if m.Globals["a"] != 1 {
		t.Errorf("a = %v, want 1 (the skipped line must not run)", m.Globals["a"])
	}
}

func TestVM_PrintLiteralAndGlobal(t *testing.T) {
	m := New([]string{
		`print "hello"`,
		"set a 5",
		"print a",
		"end",
	})
	if err := m.Run(); err != nil {
		t.Fatal(err)
	}
	want := []string{"hello", "5"}
	if len(m.Output) != 2 || m.Output[0] != want[0] || m.Output[1] != want[1] {
		t.Errorf("Output = %v, want %v", m.Output, want)
	}
}

func TestVM_ExternalCellReadWrite(t *testing.T) {
	m := New([]string{
		"write 42 bank1 0",
		"read a bank1 0",
		"end",
	})
	if err := m.Run(); err != nil {
		t.Fatal(err)
	}
	if m.Globals["a"] != 42 {
		t.Errorf("a = %v, want 42", m.Globals["a"])
	}
}

func TestVM_EndHaltsImmediately(t *testing.T) {
	m := New([]string{
		"end",
		"set a 1",
	})
	if err := m.Run(); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Globals["a"]; ok {
		t.Errorf("line after end must not execute, a = %v", m.Globals["a"])
	}
}

func TestVM_MaxStepsGuardsAgainstInfiniteLoops(t *testing.T) {
	m := New([]string{
		"jump 0 always x false",
	})
	m.MaxSteps = 1000
	if err := m.Run(); err == nil {
		t.Fatal("expected an error for a program that never halts")
	}
}

func TestVM_UnknownOpcodeIsANoOp(t *testing.T) {
	m := New([]string{
		"sensor result container1 @copper",
		"set a 1",
		"end",
	})
	if err := m.Run(); err != nil {
		t.Fatal(err)
	}
	if m.Globals["a"] != 1 {
		t.Errorf("a = %v, want 1", m.Globals["a"])
	}
}
