// mfc is a thin command-line front end over pkg/compiler (§6): it reads a
// source file (or stdin), compiles it, and writes the resulting target
// program to stdout. It carries no logic of its own beyond flag parsing and
// I/O.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"mflogic/pkg/compiler"
)

func main() {
	ann := flag.Bool("ann", false, "print the annotated program (PC, instruction, source note) instead of the bare program")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-ann] [file]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	src, err := readSource(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, "read error:", err)
		os.Exit(1)
	}

	program, annotation, err := compiler.Compile(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	for pc, line := range program {
		if *ann {
			fmt.Printf("%d: %s // %s\n", pc, line, annotation[pc])
			continue
		}
		fmt.Println(line)
	}
}

func readSource(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", err
	}
	return string(data), nil
}
