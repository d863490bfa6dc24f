package compiler

import "fmt"

// StackBackendKind selects which stack ABI backend a program uses.
type StackBackendKind int

const (
	// BackendDisabled is the default: any stack-touching op is a compile
	// error, since there is nowhere for it to read or write.
	BackendDisabled StackBackendKind = iota
	BackendInternal
	BackendExternal
)

// PushTableEntryWidth and StackTableEntryWidth are the line counts of one
// dispatcher-table entry under the internal backend (push entries store the
// accumulator, advance MF_stack_sz, and resume the caller; pop/poke entries
// share the same two-line shape: store/load the accumulator, then resume).
// The layout stage (pkg/asm) spaces PushBase/PopBase/PokeBase by these
// widths, and every dispatch site must multiply a table index by the same
// constant before adding it to a table's base address — the two must never
// drift apart.
const (
	PushTableEntryWidth  = 3
	StackTableEntryWidth = 2
)

// StackConfig is the resolved stack-config policy for one compilation,
// chosen once from the pre-scan's single optional "stack_config" directive.
// A single instance is shared (by pointer) across every IR op of a
// compilation job; PushBase/PopBase/PokeBase start at zero during lowering
// and are filled in by the layout stage once the dispatcher tables'
// addresses are known (§4.6) — every op that needs them holds the same
// pointer, so there is nothing to re-thread once they're set.
type StackConfig struct {
	Kind StackBackendKind
	Size int    // meaningful for BackendInternal
	Cell string // meaningful for BackendExternal

	PushBase int
	PopBase  int
	PokeBase int
}

// Prescan performs the first linear pass over tokenised lines (§4.2): it
// collects the optional stack_config directive, every fn definition's
// parameter/return arity and declared stack-variable set, and the table of
// top-level labels, without producing any IR. Call-site expansion in the
// lowering pass depends on callee arity and on the stack backend, both of
// which must be known before lowering a call that appears earlier in the
// source than the callee's definition.
func Prescan(lines []Line) (*StackConfig, *FunctionTable, error) {
	cfg := StackConfig{Kind: BackendDisabled}
	sawConfig := false
	table := newFunctionTable()

	var cur *FunctionRecord // non-nil while inside a fn body
	depth := 0              // brace depth inside the current fn body

	for _, ln := range lines {
		op := ln.Op()

		// Label definitions: "NAME:" as the sole token.
		if cur == nil && len(ln.Tokens) == 1 && isLabelToken(ln.Tokens[0]) {
			name := ln.Tokens[0][:len(ln.Tokens[0])-1]
			if table.Labels[name] {
				return &cfg, nil, fmt.Errorf("duplicate label %q on line %d", name, ln.No)
			}
			table.Labels[name] = true
			continue
		}

		switch op {
		case "stack_config":
			if sawConfig {
				return &cfg, nil, fmt.Errorf("duplicate stack_config directive on line %d", ln.No)
			}
			sawConfig = true
			parsed, err := parseStackConfig(ln)
			if err != nil {
				return &cfg, nil, err
			}
			cfg = parsed

		case "fn":
			if cur != nil {
				return &cfg, nil, fmt.Errorf("nested fn definition on line %d", ln.No)
			}
			rec, err := preparseFunctionHeader(ln, table)
			if err != nil {
				return &cfg, nil, err
			}
			cur = rec
			depth = 1

		case "let":
			if cur == nil {
				return &cfg, nil, fmt.Errorf("let outside a function body on line %d", ln.No)
			}
			if len(ln.Tokens) != 2 || !IsStackName(ln.Tokens[1]) {
				return &cfg, nil, fmt.Errorf("malformed let on line %d", ln.No)
			}
			name := ln.Tokens[1][1:]
			if _, ok := cur.declareLocal(name); !ok {
				return &cfg, nil, fmt.Errorf("duplicate stack variable %q on line %d", name, ln.No)
			}

		default:
			if cur != nil {
				depth += braceDelta(ln)
				if depth <= 0 {
					table.Functions[cur.Name] = cur
					cur = nil
				}
			}
		}
	}

	if cur != nil {
		return &cfg, nil, fmt.Errorf("unterminated fn %q: missing closing brace", cur.Name)
	}
	return &cfg, table, nil
}

// isLabelToken reports whether tok has the shape NAME: (a trailing colon
// with at least one character before it).
func isLabelToken(tok string) bool {
	return len(tok) > 1 && tok[len(tok)-1] == ':'
}

// braceDelta counts net brace-opening across a line's tokens: "{" opens,
// "}" closes. Lines like "} else {" or "} while ..." net to zero or
// negative respectively, which is exactly what the pre-scan needs to know
// when a fn body has ended.
func braceDelta(ln Line) int {
	delta := 0
	for _, t := range ln.Tokens {
		switch t {
		case "{":
			delta++
		case "}":
			delta--
		}
	}
	return delta
}

// parseStackConfig parses "stack_config size N" or "stack_config cell NAME".
func parseStackConfig(ln Line) (StackConfig, error) {
	if len(ln.Tokens) != 3 {
		return StackConfig{}, fmt.Errorf("malformed stack_config on line %d", ln.No)
	}
	switch ln.Tokens[1] {
	case "size":
		n, err := parseUint(ln.Tokens[2])
		if err != nil {
			return StackConfig{}, fmt.Errorf("stack_config size must be a non-negative integer on line %d", ln.No)
		}
		return StackConfig{Kind: BackendInternal, Size: n}, nil
	case "cell":
		return StackConfig{Kind: BackendExternal, Cell: ln.Tokens[2]}, nil
	default:
		return StackConfig{}, fmt.Errorf("unknown stack_config kind %q on line %d", ln.Tokens[1], ln.No)
	}
}

func parseUint(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, fmt.Errorf("empty integer")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not an integer: %q", s)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// preparseFunctionHeader parses "fn NAME *p1 *p2 ... [-> *r1 *r2 ...] {" and
// registers the function's parameters as its first locals, in declaration
// order, occupying the lowest frame offsets.
func preparseFunctionHeader(ln Line, table *FunctionTable) (*FunctionRecord, error) {
	toks := ln.Tokens
	if len(toks) < 3 || toks[len(toks)-1] != "{" {
		return nil, fmt.Errorf("malformed fn header on line %d", ln.No)
	}
	name := toks[1]
	if _, exists := table.Functions[name]; exists {
		return nil, fmt.Errorf("duplicate function %q on line %d", name, ln.No)
	}

	rec := newFunctionRecord(name)
	body := toks[2 : len(toks)-1] // drop "fn", name, and the trailing "{"

	arrow := -1
	for i, t := range body {
		if t == "->" {
			arrow = i
			break
		}
	}

	params := body
	var returns []string
	if arrow >= 0 {
		params = body[:arrow]
		returns = body[arrow+1:]
	}

	for _, p := range params {
		if !IsStackName(p) {
			return nil, fmt.Errorf("fn %q parameter %q must be a stack name on line %d", name, p, ln.No)
		}
		pname := p[1:]
		if _, ok := rec.declareLocal(pname); !ok {
			return nil, fmt.Errorf("fn %q has duplicate parameter %q on line %d", name, pname, ln.No)
		}
		rec.Params = append(rec.Params, pname)
	}

	seen := make(map[string]bool, len(returns))
	for _, r := range returns {
		rname := r
		if IsStackName(r) {
			rname = r[1:]
		}
		if seen[rname] {
			return nil, fmt.Errorf("fn %q has duplicate return name %q on line %d", name, rname, ln.No)
		}
		seen[rname] = true
	}
	rec.Returns = len(returns)

	return rec, nil
}
