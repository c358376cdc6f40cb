package nyx

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Location is a single point in source text: 1-based line/column plus
// the absolute byte cursor, so diagnostics can both print "line:col"
// and slice the source buffer directly.
type Location struct {
	Line   int
	Column int
	Cursor int
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// Span is a half-open [Start, End) region of source text.
type Span struct {
	Start Location
	End   Location
}

func NewSpan(start, end Location) Span {
	return Span{Start: start, End: end}
}

func (s Span) String() string {
	if s.Start.Line == s.End.Line && s.Start.Column == s.End.Column {
		return s.Start.String()
	}
	if s.Start.Line == s.End.Line {
		return fmt.Sprintf("%d:%d..%d", s.Start.Line, s.Start.Column, s.End.Column)
	}
	return fmt.Sprintf("%s..%s", s.Start, s.End)
}

// LineIndex allows fast conversion from byte cursor offsets to
// line/column, so the lexer doesn't need to walk from the start of the
// file for every token.
//
// It stores the start byte offset of each line (0-based) and finds the
// containing line by binary search: O(log lines) per lookup,
// construction is a single O(n) pass over the source.
type LineIndex struct {
	input     []byte
	lineStart []int
}

func NewLineIndex(input []byte) *LineIndex {
	lineStart := make([]int, 1, 64)
	lineStart[0] = 0
	for i, b := range input {
		if b == '\n' {
			lineStart = append(lineStart, i+1)
		}
	}
	return &LineIndex{input: input, lineStart: lineStart}
}

func (li *LineIndex) LocationAt(cursor int) Location {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(li.input) {
		cursor = len(li.input)
	}
	lineIdx := sort.Search(len(li.lineStart), func(i int) bool {
		return li.lineStart[i] > cursor
	}) - 1
	if lineIdx < 0 {
		lineIdx = 0
	}
	lineStart := li.lineStart[lineIdx]
	col := utf8.RuneCount(li.input[lineStart:cursor]) + 1
	return Location{Line: lineIdx + 1, Column: col, Cursor: cursor}
}

// LineText returns the full source line (without its trailing
// newline) for the one-based line number line, for the "<source line>\n   ^~~~~"
// diagnostic rendering in the CLI driver.
func (li *LineIndex) LineText(line int) string {
	if line < 1 || line > len(li.lineStart) {
		return ""
	}
	start := li.lineStart[line-1]
	end := len(li.input)
	if line < len(li.lineStart) {
		end = li.lineStart[line] - 1
	}
	if end > len(li.input) {
		end = len(li.input)
	}
	if start > end {
		return ""
	}
	return string(li.input[start:end])
}
