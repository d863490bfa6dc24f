package compiler

import (
	"fmt"
	"sort"
	"strings"
)

// FunctionRecord is the pre-scan's record of one fn definition: its entry
// label, ordered stack-name parameter list, return arity, and the frame
// offsets of every local stack name declared anywhere in its body (via a
// parameter or a "let"). All stack names are function-scoped regardless of
// where "let" appears; parameters occupy the lowest offsets.
type FunctionRecord struct {
	Name    string
	Params  []string // ordered stack-name parameters, '*' stripped
	Returns int       // arity only; return names need not be remembered
	// Locals maps every declared stack name (parameters and lets) to its
	// 0-based frame offset, parameters occupying the lowest offsets.
	Locals map[string]int
	// order preserves declaration order for deterministic diagnostics and
	// dumps; Locals alone does not iterate stably.
	order []string
}

func newFunctionRecord(name string) *FunctionRecord {
	return &FunctionRecord{Name: name, Locals: make(map[string]int)}
}

// declareLocal assigns the next free frame offset to name, unless it is
// already declared (duplicate let/parameter), in which case ok is false.
func (f *FunctionRecord) declareLocal(name string) (offset int, ok bool) {
	if _, exists := f.Locals[name]; exists {
		return 0, false
	}
	offset = len(f.order)
	f.Locals[name] = offset
	f.order = append(f.order, name)
	return offset, true
}

// FrameSize is the number of local stack slots (including parameters)
// reserved for one invocation of the function.
func (f *FunctionRecord) FrameSize() int {
	return len(f.order)
}

// Depth converts a stack name's 0-based frame offset into its depth: the
// distance from the current frame top, counting down, which is what the
// stack-cell accessor code and the internal dispatcher index by (see §4.5).
func (f *FunctionRecord) Depth(name string) (int, bool) {
	offset, ok := f.Locals[name]
	if !ok {
		return 0, false
	}
	return f.FrameSize() - offset, true
}

// String returns a deterministically ordered dump for debugging.
func (f *FunctionRecord) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "fn %s(%s) -> %d\n", f.Name, strings.Join(f.Params, " "), f.Returns)
	names := make([]string, 0, len(f.Locals))
	for name := range f.Locals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "  *%-16s offset %d\n", name, f.Locals[name])
	}
	return sb.String()
}

// FunctionTable is the pre-scan's complete set of function records, keyed
// by name, plus the set of top-level label names, used to reject duplicate
// labels. Jump and callproc targets are resolved against the PCs the
// lowering pass records as it walks the program.
type FunctionTable struct {
	Functions map[string]*FunctionRecord
	Labels    map[string]bool
}

func newFunctionTable() *FunctionTable {
	return &FunctionTable{
		Functions: make(map[string]*FunctionRecord),
		Labels:    make(map[string]bool),
	}
}
