package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"mflogic/pkg/asm"
)

// CompileErrorKind is the §7 error taxonomy. It names a category, not a Go
// type: every internal stage still returns a plain error built with
// fmt.Errorf, and Compile is the only place that classifies one into this
// taxonomy for a caller that wants the structured kind rather than just the
// message.
type CompileErrorKind int

const (
	ErrLexical CompileErrorKind = iota
	ErrSyntactic
	ErrSemantic
	ErrResolution
)

func (k CompileErrorKind) String() string {
	switch k {
	case ErrLexical:
		return "lexical"
	case ErrSyntactic:
		return "syntax"
	case ErrSemantic:
		return "semantic"
	case ErrResolution:
		return "resolution"
	default:
		return "compile"
	}
}

// Diagnostic is a compile failure's structured form: its taxonomy kind, the
// offending source line (0 if none applies — the only case today is an
// unbalanced-braces check that fires at end-of-input with no single line to
// blame), and the underlying error, wrapped so errors.As/errors.Is and
// fmt.Errorf's %w idiom work on it unchanged.
type Diagnostic struct {
	Kind CompileErrorKind
	Line int
	Err  error
}

func (d *Diagnostic) Error() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s error on line %d: %v", d.Kind, d.Line, d.Err)
	}
	return fmt.Sprintf("%s error: %v", d.Kind, d.Err)
}

func (d *Diagnostic) Unwrap() error { return d.Err }

var lineInErr = regexp.MustCompile(`\bline (\d+)\b`)

// diagnose wraps a plain stage error into a Diagnostic. stage distinguishes
// the one case the message text can't: an error surfacing from asm.Emit is
// always an internal width/layout inconsistency, not anything a well-formed
// source program could trigger, so it is classified Resolution regardless
// of wording.
func diagnose(stage string, err error) *Diagnostic {
	line := 0
	if m := lineInErr.FindStringSubmatch(err.Error()); m != nil {
		fmt.Sscanf(m[1], "%d", &line)
	}
	kind := classify(err)
	if stage == "emit" {
		kind = ErrResolution
	}
	return &Diagnostic{Kind: kind, Line: line, Err: err}
}

func classify(err error) CompileErrorKind {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "undefined") || strings.Contains(msg, "missing from the pre-scan table"):
		return ErrResolution
	case strings.Contains(msg, "malformed") ||
		strings.Contains(msg, "unbalanced") ||
		strings.Contains(msg, "unmatched") ||
		strings.Contains(msg, "without a matching"):
		return ErrSyntactic
	default:
		return ErrSemantic
	}
}

// Compile runs the full pipeline (§5): Tokenise → Prescan → Lower →
// asm.Emit, returning the primary program stream and its annotation stream
// in lockstep (§6), or the first error encountered, wrapped as a
// *Diagnostic. Per §7's policy the first error is fatal and no partial
// output is ever returned alongside one.
func Compile(src string) (program []string, annotation []string, err error) {
	lines := Tokenise(src)

	cfg, table, err := Prescan(lines)
	if err != nil {
		return nil, nil, diagnose("prescan", err)
	}

	ops, err := Lower(lines, cfg, table)
	if err != nil {
		return nil, nil, diagnose("lower", err)
	}

	program, annotation, err = asm.Emit(ops, cfg)
	if err != nil {
		return nil, nil, diagnose("emit", err)
	}
	return program, annotation, nil
}
