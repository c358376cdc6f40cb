// Command nyx is the reference driver for the language: run a file,
// dump its bytecode, drop into a REPL, or typecheck without executing.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	nyx "github.com/nyxlang/nyx"
	"github.com/nyxlang/nyx/ascii"
)

func main() {
	flag.Usage = usage
	if len(os.Args) < 2 {
		usage()
		os.Exit(65)
	}

	switch os.Args[1] {
	case "run":
		runCmd(os.Args[2:])
	case "repl":
		replCmd(os.Args[2:])
	case "typecheck":
		typecheckCmd(os.Args[2:])
	default:
		// `<program> <file> [args...]` — bare-file invocation.
		runFile(os.Args[1], os.Args[2:], false)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: nyx <file> [args...]")
	fmt.Fprintln(os.Stderr, "       nyx run [--bytecode] <file>")
	fmt.Fprintln(os.Stderr, "       nyx repl")
	fmt.Fprintln(os.Stderr, "       nyx typecheck <file>")
}

func runCmd(argv []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	bytecode := fs.Bool("bytecode", false, "dump disassembled bytecode instead of running")
	fs.Parse(argv)
	if fs.NArg() < 1 {
		usage()
		os.Exit(65)
	}
	runFile(fs.Arg(0), fs.Args()[1:], *bytecode)
}

func runFile(path string, args []string, bytecodeOnly bool) {
	src, err := os.ReadFile(path)
	if err != nil {
		log.Printf("can't open input file: %s", err)
		os.Exit(74)
	}

	cfg := nyx.NewConfig()
	loader := nyx.NewRelativeImportLoader(packagePaths())
	vm := nyx.NewVM(cfg, loader, nyx.NewInterfaceRegistry())

	if bytecodeOnly {
		program, errs := nyx.Compile(path, src, cfg, nyx.NewInterfaceRegistry())
		for _, e := range errs {
			fmt.Fprint(os.Stderr, nyx.RenderDiagnostic(e, src, &ascii.DefaultTheme))
		}
		if program == nil {
			os.Exit(65)
		}
		fmt.Println(program.TopLevel.Chunk.Disassemble(path))
		if hasFatalErrors(errs) {
			os.Exit(65)
		}
		return
	}

	_ = args // argv forwarding to the script is reserved for a future builtin, not part of this surface yet
	_, err = vm.Run(path, src)
	if err != nil {
		if ne, ok := err.(*nyx.NyxError); ok {
			fmt.Fprint(os.Stderr, nyx.RenderDiagnostic(ne, src, &ascii.DefaultTheme))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(nyx.ExitCode(err))
	}
}

func typecheckCmd(argv []string) {
	fs := flag.NewFlagSet("typecheck", flag.ExitOnError)
	fs.Parse(argv)
	if fs.NArg() < 1 {
		usage()
		os.Exit(65)
	}
	path := fs.Arg(0)
	src, err := os.ReadFile(path)
	if err != nil {
		log.Printf("can't open input file: %s", err)
		os.Exit(74)
	}

	cfg := nyx.NewConfig()
	cfg.SetBool("compiler.typecheck", true)
	_, errs := nyx.Compile(path, src, cfg, nyx.NewInterfaceRegistry())
	hadTypeError := false
	for _, e := range errs {
		fmt.Fprint(os.Stderr, nyx.RenderDiagnostic(e, src, &ascii.DefaultTheme))
		if e.Kind == nyx.KindTypeError || e.Kind == nyx.KindLexError || e.Kind == nyx.KindParseError {
			hadTypeError = true
		}
	}
	if hadTypeError {
		os.Exit(65)
	}
}

// replCmd is a deliberately thin interactive loop, grounded on the
// teacher's own REPL: an empty read exits, a bare newline is skipped,
// everything else is compiled and run against one persistent VM so
// variables and functions survive across lines.
func replCmd(argv []string) {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	fs.Parse(argv)

	cfg := nyx.NewConfig()
	loader := nyx.NewRelativeImportLoader(packagePaths())
	vm := nyx.NewVM(cfg, loader, nyx.NewInterfaceRegistry())

	historyPath := os.Getenv("NYX_HISTORY")
	var history *os.File
	if historyPath != "" {
		f, err := os.OpenFile(historyPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			history = f
			defer history.Close()
		}
	}

	reader := bufio.NewReader(os.Stdin)
	line := 0
	for {
		fmt.Print("> ")
		text, err := reader.ReadString('\n')
		if text == "" && err != nil {
			fmt.Println()
			return
		}
		if text == "\n" {
			continue
		}
		if history != nil {
			fmt.Fprint(history, text)
		}
		line++
		path := fmt.Sprintf("<repl:%d>", line)
		_, runErr := vm.Eval(path, []byte(text))
		if runErr != nil {
			if ne, ok := runErr.(*nyx.NyxError); ok {
				fmt.Print(nyx.RenderDiagnostic(ne, []byte(text), &ascii.DefaultTheme))
			} else {
				fmt.Println("ERROR: " + runErr.Error())
			}
		}
	}
}

func packagePaths() []string {
	env := os.Getenv("NYX_PACKAGES")
	if env == "" {
		return nil
	}
	return strings.Split(env, string(os.PathListSeparator))
}

func hasFatalErrors(errs []*nyx.NyxError) bool {
	for _, e := range errs {
		if e.Kind == nyx.KindLexError || e.Kind == nyx.KindParseError {
			return true
		}
	}
	return false
}
