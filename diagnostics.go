package nyx

import (
	"fmt"
	"strings"

	"github.com/nyxlang/nyx/ascii"
)

// RenderDiagnostic formats one NyxError in the "<path>:<line>:<col>:
// <kind>: <message>" plus source-line-and-caret shape spec.md §7
// describes. source is the Program's own retained source buffer so the
// caret line can be sliced back out regardless of how far the error
// traveled from its compile unit. theme selects the highlighting colors
// (e.g. &ascii.DefaultTheme); pass nil for a plain-text render (e.g. writing to a
// file or a non-tty pipe).
func RenderDiagnostic(e *NyxError, source []byte, theme *ascii.Theme) string {
	var b strings.Builder
	header := fmt.Sprintf("%s:%s: %s: %s", e.Path, e.Span.Start, e.Kind, e.Message)
	if theme != nil {
		header = ascii.Color(theme.Error, "%s", header)
	}
	b.WriteString(header)
	b.WriteByte('\n')

	if source != nil {
		li := NewLineIndex(source)
		line := li.LineText(e.Span.Start.Line)
		if line != "" {
			b.WriteString(line)
			b.WriteByte('\n')
			col := e.Span.Start.Column
			if col < 1 {
				col = 1
			}
			caret := strings.Repeat(" ", col-1) + "^"
			width := e.Span.End.Column - e.Span.Start.Column
			if e.Span.End.Line == e.Span.Start.Line && width > 1 {
				caret += strings.Repeat("~", width-1)
			}
			if theme != nil {
				caret = ascii.Color(theme.Accent, "%s", caret)
			}
			b.WriteString(caret)
			b.WriteByte('\n')
		}
	}

	for _, f := range e.Frames {
		line := fmt.Sprintf("  at %s (%s)", f.FunctionName, f.Span.Start)
		if theme != nil {
			line = ascii.Color(theme.Muted, "%s", line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// ExitCode maps an error to the process exit code spec.md §6/§7
// mandates: 0 for success, 65 for any language-level failure (lex,
// parse, type, runtime, or module error), 74 for an I/O-level failure
// (the file couldn't even be read) that never reached a NyxError.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if _, ok := err.(*NyxError); ok {
		return 65
	}
	return 74
}
