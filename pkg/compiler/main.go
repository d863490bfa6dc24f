// Package compiler turns structured assembly source for the MF target VM
// into its flat, line-oriented instruction set.
//
// Pipeline: source → Tokenise → Prescan → Lower → (pkg/asm) Layout → Emit.
package compiler
