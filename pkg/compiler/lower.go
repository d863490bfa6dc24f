package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// scopeKind tags one open control construct on the lowering pass's scope
// stack (§3 "Scope frame"). Created at the opening line, patched at the
// matching close — no construct is ever revisited once its close has run.
type scopeKind int

const (
	scopeIf scopeKind = iota
	scopeElse
	scopeWhile
	scopeDoWhile
	scopeLoop
	scopeFn
)

func (k scopeKind) isLoop() bool {
	return k == scopeWhile || k == scopeDoWhile || k == scopeLoop
}

// scopeFrame holds whatever a construct's close needs to patch. Only the
// fields relevant to kind are ever populated.
type scopeFrame struct {
	kind scopeKind

	// if / else
	elseOrEnd resolvable // jump_cond patched when "} else {" or a bare "}" closes the if
	ifEnd     resolvable // jump_abs patched when the else block's "}" closes

	// while / do_while / loop
	loopTop         int          // continue target for while/loop; do_while's loop top
	pendingEnd      []resolvable // break jumps plus the loop's own exit jump_cond
	pendingContinue []resolvable // do_while only: continue jumps to the condition test

	// fn
	fn             *FunctionRecord
	pendingReturns []resolvable
}

// pendingSym is a symbolic jump/call target that cannot be resolved until
// the whole program has been lowered, because its target label may be
// defined later in the source (a forward reference to another function's
// entry point or to a top-level label, §4.3 "Symbolic holes").
type pendingSym struct {
	op   resolvable
	line int
}

// lowering carries the running state of the main lowering pass (§4.3): the
// running target PC, the accumulated IR, the open scope stack, and the
// bookkeeping for symbolic holes left for resolution after the pass.
type lowering struct {
	cfg   *StackConfig
	table *FunctionTable

	pc   int
	ops  []Op
	scopes []*scopeFrame

	labelPC map[string]int
	pending []pendingSym
}

// Lower runs the main lowering pass over a pre-scanned program, producing a
// fully resolved, linear IR (§4.3). cfg must be the same *StackConfig
// returned by Prescan for this program: every stack-touching IR op holds
// this pointer so that pkg/asm's layout stage can fill in the internal
// backend's dispatcher table bases after lowering without re-threading
// anything through already-built ops.
func Lower(lines []Line, cfg *StackConfig, table *FunctionTable) ([]Op, error) {
	lw := &lowering{cfg: cfg, table: table, labelPC: make(map[string]int)}

	for _, ln := range lines {
		if err := lw.line(ln); err != nil {
			return nil, err
		}
	}
	if n := len(lw.scopes); n != 0 {
		return nil, fmt.Errorf("unbalanced braces: %d block(s) still open at end of input", n)
	}
	if err := lw.resolvePending(); err != nil {
		return nil, err
	}
	return lw.ops, nil
}

func (lw *lowering) emit(ops ...Op) {
	for _, op := range ops {
		lw.ops = append(lw.ops, op)
		lw.pc += op.Width()
	}
}

func (lw *lowering) curFnFrame() *scopeFrame {
	for i := len(lw.scopes) - 1; i >= 0; i-- {
		if lw.scopes[i].kind == scopeFn {
			return lw.scopes[i]
		}
	}
	return nil
}

func (lw *lowering) curFn() *FunctionRecord {
	if f := lw.curFnFrame(); f != nil {
		return f.fn
	}
	return nil
}

// classifyOperand classifies one lexeme and validates it in context: a
// stack name must be inside a function, must name a local actually
// declared (via a parameter or "let"), and may only appear at all once a
// stack_config directive has chosen a backend.
func (lw *lowering) classifyOperand(lexeme string, lineNo int) (Term, error) {
	t := ClassifyTerm(lexeme)
	if t.Kind != TermStack {
		return t, nil
	}
	fn := lw.curFn()
	if fn == nil {
		return Term{}, fmt.Errorf("stack name %q used outside a function on line %d", lexeme, lineNo)
	}
	if _, ok := fn.Locals[t.Text]; !ok {
		return Term{}, fmt.Errorf("undeclared stack variable %q on line %d", t.Text, lineNo)
	}
	if lw.cfg.Kind == BackendDisabled {
		return Term{}, fmt.Errorf("stack variable %q used without a stack_config directive on line %d", lexeme, lineNo)
	}
	return t, nil
}

// depthOf returns the current function's depth (§4.5, §3 "Function record")
// for an already-validated local name.
func (lw *lowering) depthOf(name string) string {
	d, _ := lw.curFn().Depth(name)
	return strconv.Itoa(d)
}

func (lw *lowering) requireStack(ln Line) error {
	if lw.cfg.Kind == BackendDisabled {
		return fmt.Errorf("stack op without a stack_config directive on line %d", ln.No)
	}
	return nil
}

// readOperands turns a list of already-classified operands into text usable
// directly inside a target instruction, generalising §4.5's read/write
// helper (written there for one binary op's two operands) to any number of
// operands on one line: a global or literal operand passes through as-is; a
// stack operand is staged into a global, reusing the same destination when
// a later operand names the same slot as an earlier one already staged. The
// last distinct stack operand read lands in MF_acc; any earlier one lands in
// MF_operand_tmp, because every stack read itself overwrites MF_acc (the
// internal pop table loads it) and MF_stack_tmp (the index computation), so
// neither could hold the first value while the second is loaded.
func (lw *lowering) readOperands(lineNo int, terms []Term) ([]string, []Op) {
	const operandTmp = "MF_operand_tmp"
	var pre []Op
	texts := make([]string, len(terms))
	staged := make(map[string]string, len(terms))
	distinct := make(map[string]bool, len(terms))
	for _, t := range terms {
		if t.Kind == TermStack {
			distinct[t.Text] = true
		}
	}

	for i, t := range terms {
		if t.Kind != TermStack {
			texts[i] = t.Text
			continue
		}
		if dest, ok := staged[t.Text]; ok {
			texts[i] = dest
			continue
		}
		dest := GlobalAcc
		if len(staged) < len(distinct)-1 {
			dest = operandTmp
		}
		pre = append(pre, &GetStackOp{SrcLine: lineNo, Cfg: lw.cfg, Dest: dest, Depth: lw.depthOf(t.Text)})
		texts[i] = dest
		staged[t.Text] = dest
	}
	return texts, pre
}

// line dispatches one tokenised line to its lowering rule.
func (lw *lowering) line(ln Line) error {
	toks := ln.Tokens
	if len(toks) == 0 {
		return nil
	}

	if len(toks) == 1 && isLabelToken(toks[0]) {
		name := toks[0][:len(toks[0])-1]
		if _, dup := lw.labelPC[name]; dup {
			return fmt.Errorf("duplicate label %q on line %d", name, ln.No)
		}
		lw.labelPC[name] = lw.pc
		lw.emit(&LabelDefOp{SrcLine: ln.No, Name: name})
		return nil
	}

	if len(toks) == 1 && toks[0] == "}" {
		return lw.closeBlock(ln)
	}
	if len(toks) == 3 && toks[0] == "}" && toks[1] == "else" && toks[2] == "{" {
		return lw.closeElse(ln)
	}
	if len(toks) >= 2 && toks[0] == "}" && toks[1] == "while" {
		return lw.closeDoWhile(ln)
	}

	switch toks[0] {
	case "stack_config", "let":
		return nil // fully consumed by the pre-scan
	case "if":
		return lw.openIf(ln)
	case "while":
		return lw.openWhile(ln)
	case "do":
		return lw.openDo(ln)
	case "loop":
		return lw.openLoop(ln)
	case "fn":
		return lw.openFn(ln)
	case "break":
		return lw.lowerBreakContinue(ln, true)
	case "continue":
		return lw.lowerBreakContinue(ln, false)
	case "return":
		return lw.lowerReturn(ln)
	case "set":
		return lw.lowerSet(ln)
	case "op":
		return lw.lowerMath(ln)
	case "print":
		return lw.lowerPrint(ln)
	case "jump":
		return lw.lowerJump(ln)
	case "callproc":
		return lw.lowerCallproc(ln)
	case "ret":
		if err := lw.requireStack(ln); err != nil {
			return err
		}
		lw.emit(&RetProcOp{SrcLine: ln.No, Cfg: lw.cfg})
		return nil
	case "end":
		lw.emit(&RawOp{SrcLine: ln.No, Text: "end"})
		return nil
	case "push":
		if err := lw.requireStack(ln); err != nil {
			return err
		}
		lw.emit(&PushAccOp{SrcLine: ln.No, Cfg: lw.cfg})
		return nil
	case "pop":
		if err := lw.requireStack(ln); err != nil {
			return err
		}
		lw.emit(&PopAccOp{SrcLine: ln.No, Cfg: lw.cfg})
		return nil
	case "peek":
		return lw.lowerPeekPoke(ln, true)
	case "poke":
		return lw.lowerPeekPoke(ln, false)
	case "call":
		return lw.lowerCall(ln)
	default:
		lw.emit(&RawOp{SrcLine: ln.No, Text: strings.Join(toks, " ")})
		return nil
	}
}

// --- if / else ---------------------------------------------------------

func (lw *lowering) openIf(ln Line) error {
	toks := ln.Tokens
	if len(toks) != 5 || toks[4] != "{" {
		return fmt.Errorf("malformed if on line %d", ln.No)
	}
	t1, err := lw.classifyOperand(toks[2], ln.No)
	if err != nil {
		return err
	}
	t2, err := lw.classifyOperand(toks[3], ln.No)
	if err != nil {
		return err
	}
	texts, pre := lw.readOperands(ln.No, []Term{t1, t2})
	lw.emit(pre...)

	j := &JumpCondOp{SrcLine: ln.No, Cond: negateCond(toks[1]), Arg1: texts[0], Arg2: texts[1]}
	lw.emit(j)
	lw.scopes = append(lw.scopes, &scopeFrame{kind: scopeIf, elseOrEnd: j})
	return nil
}

func (lw *lowering) closeElse(ln Line) error {
	if len(lw.scopes) == 0 || lw.scopes[len(lw.scopes)-1].kind != scopeIf {
		return fmt.Errorf("'} else {' without a matching if on line %d", ln.No)
	}
	top := lw.scopes[len(lw.scopes)-1]

	j := &JumpAbsOp{SrcLine: ln.No}
	lw.emit(j)
	top.elseOrEnd.resolve(lw.pc)
	top.ifEnd = j
	top.kind = scopeElse
	return nil
}

// --- while ---------------------------------------------------------------

func (lw *lowering) openWhile(ln Line) error {
	toks := ln.Tokens
	if len(toks) != 5 || toks[4] != "{" {
		return fmt.Errorf("malformed while on line %d", ln.No)
	}
	loopTop := lw.pc
	t1, err := lw.classifyOperand(toks[2], ln.No)
	if err != nil {
		return err
	}
	t2, err := lw.classifyOperand(toks[3], ln.No)
	if err != nil {
		return err
	}
	texts, pre := lw.readOperands(ln.No, []Term{t1, t2})
	lw.emit(pre...)

	j := &JumpCondOp{SrcLine: ln.No, Cond: negateCond(toks[1]), Arg1: texts[0], Arg2: texts[1]}
	lw.emit(j)
	lw.scopes = append(lw.scopes, &scopeFrame{kind: scopeWhile, loopTop: loopTop, pendingEnd: []resolvable{j}})
	return nil
}

// --- do / while ------------------------------------------------------------

func (lw *lowering) openDo(ln Line) error {
	if len(ln.Tokens) != 2 || ln.Tokens[1] != "{" {
		return fmt.Errorf("malformed do on line %d", ln.No)
	}
	lw.scopes = append(lw.scopes, &scopeFrame{kind: scopeDoWhile, loopTop: lw.pc})
	return nil
}

func (lw *lowering) closeDoWhile(ln Line) error {
	if len(lw.scopes) == 0 || lw.scopes[len(lw.scopes)-1].kind != scopeDoWhile {
		return fmt.Errorf("'} while' without a matching do on line %d", ln.No)
	}
	top := lw.scopes[len(lw.scopes)-1]
	toks := ln.Tokens
	if len(toks) != 5 {
		return fmt.Errorf("malformed '} while' on line %d", ln.No)
	}

	// The condition test is the continue target: resolved to the PC it is
	// about to start at, before any of its own instructions are emitted.
	for _, p := range top.pendingContinue {
		p.resolve(lw.pc)
	}

	t1, err := lw.classifyOperand(toks[3], ln.No)
	if err != nil {
		return err
	}
	t2, err := lw.classifyOperand(toks[4], ln.No)
	if err != nil {
		return err
	}
	texts, pre := lw.readOperands(ln.No, []Term{t1, t2})
	lw.emit(pre...)

	j := &JumpCondOp{SrcLine: ln.No, Cond: toks[2], Arg1: texts[0], Arg2: texts[1]}
	j.resolve(top.loopTop)
	lw.emit(j)

	for _, p := range top.pendingEnd {
		p.resolve(lw.pc)
	}
	lw.scopes = lw.scopes[:len(lw.scopes)-1]
	return nil
}

// --- loop ------------------------------------------------------------------

func (lw *lowering) openLoop(ln Line) error {
	if len(ln.Tokens) != 2 || ln.Tokens[1] != "{" {
		return fmt.Errorf("malformed loop on line %d", ln.No)
	}
	lw.scopes = append(lw.scopes, &scopeFrame{kind: scopeLoop, loopTop: lw.pc})
	return nil
}

// closeBlock handles a bare "}", closing whichever construct is on top:
// if, else, while, loop, or fn. do_while's "}" always carries a trailing
// "while COND A B" and is handled by closeDoWhile instead.
func (lw *lowering) closeBlock(ln Line) error {
	if len(lw.scopes) == 0 {
		return fmt.Errorf("unmatched } on line %d", ln.No)
	}
	top := lw.scopes[len(lw.scopes)-1]

	switch top.kind {
	case scopeIf:
		top.elseOrEnd.resolve(lw.pc)
		lw.scopes = lw.scopes[:len(lw.scopes)-1]
		return nil

	case scopeElse:
		top.ifEnd.resolve(lw.pc)
		lw.scopes = lw.scopes[:len(lw.scopes)-1]
		return nil

	case scopeWhile, scopeLoop:
		j := &JumpAbsOp{SrcLine: ln.No}
		j.resolve(top.loopTop)
		lw.emit(j)
		for _, p := range top.pendingEnd {
			p.resolve(lw.pc)
		}
		lw.scopes = lw.scopes[:len(lw.scopes)-1]
		return nil

	case scopeFn:
		for _, p := range top.pendingReturns {
			p.resolve(lw.pc)
		}
		lw.emit(&FnEpilogueOp{SrcLine: ln.No, Cfg: lw.cfg, Frame: top.fn})
		lw.scopes = lw.scopes[:len(lw.scopes)-1]
		return nil

	case scopeDoWhile:
		return fmt.Errorf("do block must be closed with '} while COND A B' on line %d", ln.No)
	}
	return nil
}

// --- break / continue --------------------------------------------------

func (lw *lowering) lowerBreakContinue(ln Line, isBreak bool) error {
	for i := len(lw.scopes) - 1; i >= 0; i-- {
		f := lw.scopes[i]
		if !f.kind.isLoop() {
			continue
		}
		if isBreak {
			j := &JumpAbsOp{SrcLine: ln.No}
			lw.emit(j)
			f.pendingEnd = append(f.pendingEnd, j)
			return nil
		}
		// continue: do_while tests the condition rather than jumping to the
		// loop top (§8 property 6, matches C semantics).
		if f.kind == scopeDoWhile {
			j := &JumpAbsOp{SrcLine: ln.No}
			lw.emit(j)
			f.pendingContinue = append(f.pendingContinue, j)
			return nil
		}
		j := &JumpAbsOp{SrcLine: ln.No}
		j.resolve(f.loopTop)
		lw.emit(j)
		return nil
	}
	kw := "break"
	if !isBreak {
		kw = "continue"
	}
	return fmt.Errorf("%s outside any loop on line %d", kw, ln.No)
}

// --- fn / return / call -----------------------------------------------------

func (lw *lowering) openFn(ln Line) error {
	if lw.curFnFrame() != nil {
		return fmt.Errorf("nested fn definition on line %d", ln.No)
	}
	if len(ln.Tokens) < 3 {
		return fmt.Errorf("malformed fn header on line %d", ln.No)
	}
	name := ln.Tokens[1]
	rec, ok := lw.table.Functions[name]
	if !ok {
		return fmt.Errorf("internal error: fn %q missing from the pre-scan table on line %d", name, ln.No)
	}

	lw.labelPC[name] = lw.pc
	lw.emit(&LabelDefOp{SrcLine: ln.No, Name: name})
	lw.scopes = append(lw.scopes, &scopeFrame{kind: scopeFn, fn: rec})
	return nil
}

func (lw *lowering) lowerReturn(ln Line) error {
	fnFrame := lw.curFnFrame()
	if fnFrame == nil {
		return fmt.Errorf("return outside a function on line %d", ln.No)
	}
	if got, want := len(ln.Tokens)-1, fnFrame.fn.Returns; got != want {
		return fmt.Errorf("function %q returns %d value(s), return on line %d has %d", fnFrame.fn.Name, want, ln.No, got)
	}

	values := make([]CallArg, 0, fnFrame.fn.Returns)
	for _, tok := range ln.Tokens[1:] {
		t, err := lw.classifyOperand(tok, ln.No)
		if err != nil {
			return err
		}
		if t.Kind == TermStack {
			values = append(values, CallArg{IsStack: true, Text: lw.depthOf(t.Text)})
		} else {
			values = append(values, CallArg{IsStack: false, Text: t.Text})
		}
	}

	r := &ReturnFnOp{SrcLine: ln.No, Cfg: lw.cfg, Frame: fnFrame.fn, Values: values}
	lw.emit(r)
	fnFrame.pendingReturns = append(fnFrame.pendingReturns, r)
	return nil
}

func (lw *lowering) lowerCall(ln Line) error {
	toks := ln.Tokens[1:]
	if len(toks) == 0 {
		return fmt.Errorf("malformed call on line %d", ln.No)
	}
	if lw.cfg.Kind == BackendDisabled {
		return fmt.Errorf("call on line %d requires a stack_config directive", ln.No)
	}
	name := toks[0]
	callee, ok := lw.table.Functions[name]
	if !ok {
		return fmt.Errorf("call to undefined function %q on line %d", name, ln.No)
	}

	rest := toks[1:]
	arrow := -1
	for i, t := range rest {
		if t == "->" {
			arrow = i
			break
		}
	}
	argToks, retToks := rest, []string(nil)
	if arrow >= 0 {
		argToks, retToks = rest[:arrow], rest[arrow+1:]
	}
	if len(argToks) != len(callee.Params) {
		return fmt.Errorf("call to %q on line %d passes %d argument(s), wants %d", name, ln.No, len(argToks), len(callee.Params))
	}
	if len(retToks) != callee.Returns {
		return fmt.Errorf("call to %q on line %d captures %d return value(s), wants %d", name, ln.No, len(retToks), callee.Returns)
	}

	args, err := lw.lowerCallArgs(argToks, ln.No)
	if err != nil {
		return err
	}
	returns, err := lw.lowerCallArgs(retToks, ln.No)
	if err != nil {
		return err
	}

	c := &CallFnOp{SrcLine: ln.No, Cfg: lw.cfg, Callee: callee, Args: args, Returns: returns}
	c.Symbol = name
	lw.emit(c)
	lw.pending = append(lw.pending, pendingSym{op: c, line: ln.No})
	return nil
}

func (lw *lowering) lowerCallArgs(toks []string, lineNo int) ([]CallArg, error) {
	out := make([]CallArg, len(toks))
	for i, tok := range toks {
		t, err := lw.classifyOperand(tok, lineNo)
		if err != nil {
			return nil, err
		}
		if t.Kind == TermStack {
			out[i] = CallArg{IsStack: true, Text: lw.depthOf(t.Text)}
		} else {
			out[i] = CallArg{IsStack: false, Text: t.Text}
		}
	}
	return out, nil
}

func (lw *lowering) lowerCallproc(ln Line) error {
	if err := lw.requireStack(ln); err != nil {
		return err
	}
	if len(ln.Tokens) != 2 {
		return fmt.Errorf("malformed callproc on line %d", ln.No)
	}
	c := &CallProcOp{SrcLine: ln.No, Cfg: lw.cfg}
	c.Symbol = ln.Tokens[1]
	lw.emit(c)
	lw.pending = append(lw.pending, pendingSym{op: c, line: ln.No})
	return nil
}

// --- set / op / print / jump / peek / poke ----------------------------------

func (lw *lowering) lowerSet(ln Line) error {
	if len(ln.Tokens) < 2 {
		return fmt.Errorf("malformed set on line %d", ln.No)
	}
	destTerm, err := lw.classifyOperand(ln.Tokens[1], ln.No)
	if err != nil {
		return err
	}

	var srcTerm Term
	if ln.StringTail != nil {
		srcTerm = Term{Kind: TermLiteral, Text: *ln.StringTail}
	} else {
		if len(ln.Tokens) != 3 {
			return fmt.Errorf("malformed set on line %d", ln.No)
		}
		srcTerm, err = lw.classifyOperand(ln.Tokens[2], ln.No)
		if err != nil {
			return err
		}
	}

	switch {
	case destTerm.Kind != TermStack && srcTerm.Kind != TermStack:
		lw.emit(&SetOp{SrcLine: ln.No, Dest: destTerm.Text, Source: srcTerm.Text})
	case destTerm.Kind != TermStack:
		lw.emit(&GetStackOp{SrcLine: ln.No, Cfg: lw.cfg, Dest: destTerm.Text, Depth: lw.depthOf(srcTerm.Text)})
	case srcTerm.Kind != TermStack:
		lw.emit(&SetStackOp{SrcLine: ln.No, Cfg: lw.cfg, Source: srcTerm.Text, Depth: lw.depthOf(destTerm.Text)})
	default:
		lw.emit(&GetStackOp{SrcLine: ln.No, Cfg: lw.cfg, Dest: GlobalAcc, Depth: lw.depthOf(srcTerm.Text)})
		lw.emit(&SetStackOp{SrcLine: ln.No, Cfg: lw.cfg, Source: GlobalAcc, Depth: lw.depthOf(destTerm.Text)})
	}
	return nil
}

func (lw *lowering) lowerMath(ln Line) error {
	toks := ln.Rest()
	if len(toks) != 4 {
		return fmt.Errorf("malformed op on line %d", ln.No)
	}
	destTerm, err := lw.classifyOperand(toks[1], ln.No)
	if err != nil {
		return err
	}
	arg1, err := lw.classifyOperand(toks[2], ln.No)
	if err != nil {
		return err
	}
	arg2, err := lw.classifyOperand(toks[3], ln.No)
	if err != nil {
		return err
	}

	texts, pre := lw.readOperands(ln.No, []Term{arg1, arg2})
	lw.emit(pre...)

	destText := destTerm.Text
	if destTerm.Kind == TermStack {
		destText = GlobalAcc
	}
	lw.emit(&MathOp{SrcLine: ln.No, Operation: toks[0], Dest: destText, Arg1: texts[0], Arg2: texts[1]})
	if destTerm.Kind == TermStack {
		lw.emit(&SetStackOp{SrcLine: ln.No, Cfg: lw.cfg, Source: GlobalAcc, Depth: lw.depthOf(destTerm.Text)})
	}
	return nil
}

func (lw *lowering) lowerPrint(ln Line) error {
	if ln.StringTail != nil {
		lw.emit(&PrintOp{SrcLine: ln.No, Text: *ln.StringTail})
		return nil
	}
	if len(ln.Tokens) != 2 {
		return fmt.Errorf("malformed print on line %d", ln.No)
	}
	term, err := lw.classifyOperand(ln.Tokens[1], ln.No)
	if err != nil {
		return err
	}
	if term.Kind == TermStack {
		lw.emit(&GetStackOp{SrcLine: ln.No, Cfg: lw.cfg, Dest: GlobalAcc, Depth: lw.depthOf(term.Text)})
		lw.emit(&PrintOp{SrcLine: ln.No, Text: GlobalAcc})
		return nil
	}
	lw.emit(&PrintOp{SrcLine: ln.No, Text: term.Text})
	return nil
}

func (lw *lowering) lowerJump(ln Line) error {
	if len(ln.Tokens) != 5 {
		return fmt.Errorf("malformed jump on line %d", ln.No)
	}
	label, cond := ln.Tokens[1], ln.Tokens[2]
	a1, err := lw.classifyOperand(ln.Tokens[3], ln.No)
	if err != nil {
		return err
	}
	a2, err := lw.classifyOperand(ln.Tokens[4], ln.No)
	if err != nil {
		return err
	}
	texts, pre := lw.readOperands(ln.No, []Term{a1, a2})
	lw.emit(pre...)

	j := &JumpCondOp{SrcLine: ln.No, Cond: cond, Arg1: texts[0], Arg2: texts[1]}
	j.Symbol = label
	lw.emit(j)
	lw.pending = append(lw.pending, pendingSym{op: j, line: ln.No})
	return nil
}

func (lw *lowering) lowerPeekPoke(ln Line, isPeek bool) error {
	if err := lw.requireStack(ln); err != nil {
		return err
	}
	depth, literal := "0", true
	if len(ln.Tokens) >= 2 {
		depth = ln.Tokens[1]
		if _, err := strconv.Atoi(depth); err != nil {
			literal = false
		}
	}
	if isPeek {
		lw.emit(&PeekAccOp{SrcLine: ln.No, Cfg: lw.cfg, Depth: depth, Literal: literal})
	} else {
		lw.emit(&PokeAccOp{SrcLine: ln.No, Cfg: lw.cfg, Depth: depth, Literal: literal})
	}
	return nil
}

// --- label resolution --------------------------------------------------

// resolvePending patches every symbolic hole left by a raw jump, a callproc,
// or a call against the label table built while walking the program (§4.3
// "cross-function references ... left as symbolic holes", §4.4 "every
// symbolic hole is resolved against the label table").
func (lw *lowering) resolvePending() error {
	for _, p := range lw.pending {
		pc, ok := lw.labelPC[p.op.name()]
		if !ok {
			return fmt.Errorf("reference to undefined label %q on line %d", p.op.name(), p.line)
		}
		p.op.resolve(pc)
	}
	return nil
}

// negateCond inverts a target-VM jump condition, used to turn "if COND {"
// into a skip-when-not-COND branch (§4.3).
func negateCond(cond string) string {
	switch cond {
	case "equal":
		return "notEqual"
	case "notEqual":
		return "equal"
	case "lessThan":
		return "greaterThanEq"
	case "lessThanEq":
		return "greaterThan"
	case "greaterThan":
		return "lessThanEq"
	case "greaterThanEq":
		return "lessThan"
	default:
		return cond
	}
}
