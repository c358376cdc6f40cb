// Package ascii holds the ANSI color codes the CLI driver uses to
// highlight compiler diagnostics, grouped into a Theme so a plain-text
// render (non-tty output) is just a matter of passing a nil *Theme.
package ascii

import "fmt"

const (
	Reset = "\033[0m"
	Red   = "\033[1;31m"
	Green = "\033[1;32m"
	Cyan  = "\033[1;36m"
	Gray  = "\033[90m" // Bright black, actually
)

// Theme maps the three diagnostic roles RenderDiagnostic needs: the
// header/kind line, the caret underline under the offending span, and
// the backtrace frame list. Unlike the teacher's printer (which also
// themes AST/ASM syntax highlighting for its grammar dumps), nyx's
// bytecode disassembler is a plain mnemonic listing with nothing to
// tint, so there's no Operator/Operand/Literal/Comment set here.
type Theme struct {
	Error  string // the "<path>:<line>:<col>: <kind>:" header
	Accent string // the ^~~~~ caret underline
	Muted  string // "at <function> (<line>:<col>)" backtrace frames
}

// DefaultTheme is the color mapping RenderDiagnostic falls back to.
var DefaultTheme = Theme{
	Error:  Red,
	Accent: Cyan,
	Muted:  Gray,
}

func Color(color, format string, args ...any) string {
	return fmt.Sprintf(color+format+Reset, args...)
}
