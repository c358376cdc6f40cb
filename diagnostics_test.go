package nyx

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisassembleListsMnemonicsAndConstants(t *testing.T) {
	chunk := compileUnoptimized(t, `let x = 1 + 2;`)
	dump := chunk.Disassemble("<test>")
	require.Contains(t, dump, "== <test> ==")
	require.Contains(t, dump, "CONSTANT")
	require.Contains(t, dump, "ADD")
	require.Contains(t, dump, "DEFINE_VAR")
	require.Contains(t, dump, "RETURN")
}

func TestRenderDiagnosticShowsCaretUnderSource(t *testing.T) {
	src := []byte("let x = nope;")
	vm, _ := newTestVM(t)
	_, err := vm.Run("<test>", src)
	require.Error(t, err)
	ne := err.(*NyxError)

	rendered := RenderDiagnostic(ne, src, nil)
	lines := strings.Split(strings.TrimRight(rendered, "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	require.Contains(t, lines[0], "<test>:")
	require.Contains(t, lines[0], "runtime-error")
	require.Equal(t, "let x = nope;", lines[1])
	require.Contains(t, lines[2], "^")
}

func TestRenderDiagnosticIncludesBacktraceFrames(t *testing.T) {
	src := []byte(`
fun f() { return 1 / 0; }
f();
`)
	vm, _ := newTestVM(t)
	_, err := vm.Run("<test>", src)
	require.Error(t, err)
	ne := err.(*NyxError)

	rendered := RenderDiagnostic(ne, src, nil)
	require.Contains(t, rendered, "at f (")
	require.Contains(t, rendered, "at <script> (")
}

func TestExitCodeMapping(t *testing.T) {
	require.Equal(t, 0, ExitCode(nil))
	require.Equal(t, 65, ExitCode(&NyxError{Kind: KindParseError}))
	require.Equal(t, 65, ExitCode(&NyxError{Kind: KindRuntimeError}))
	require.Equal(t, 74, ExitCode(errors.New("open: no such file")))
}
