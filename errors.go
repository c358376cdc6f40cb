package nyx

import "fmt"

// ErrorKind enumerates spec's error taxonomy (§7). The CLI driver
// switches on this to pick an exit code; the interpreter switches on it
// to decide whether an error unwinds to the module boundary
// (runtime-error, module-error) or halts code generation immediately
// (lex-error).
type ErrorKind int

const (
	KindLexError ErrorKind = iota
	KindParseError
	KindTypeError
	KindRuntimeError
	KindModuleError
	KindGCInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindLexError:
		return "lex-error"
	case KindParseError:
		return "parse-error"
	case KindTypeError:
		return "type-error"
	case KindRuntimeError:
		return "runtime-error"
	case KindModuleError:
		return "module-error"
	case KindGCInternal:
		return "gc-internal-error"
	default:
		return "error"
	}
}

// NyxError is the single error type surfaced across lexing, parsing,
// typechecking, and interpretation. It always carries a Span so the
// driver can render the "<path>:<line>:<col>: <kind>: <message>" plus
// source-line-and-caret format from spec §7.
type NyxError struct {
	Kind    ErrorKind
	Path    string
	Span    Span
	Message string

	// Frames holds the call-stack backtrace for runtime-errors:
	// innermost frame first. Empty for compile-time errors.
	Frames []FrameInfo
}

func (e *NyxError) Error() string {
	return fmt.Sprintf("%s:%s: %s: %s", e.Path, e.Span.Start, e.Kind, e.Message)
}

// FrameInfo captures one call frame for a runtime backtrace: function
// name, plus the source location active in that frame when the error
// was thrown.
type FrameInfo struct {
	FunctionName string
	Span         Span
}

func newLexError(path string, sp Span, format string, args ...any) *NyxError {
	return &NyxError{Kind: KindLexError, Path: path, Span: sp, Message: fmt.Sprintf(format, args...)}
}

func newParseError(path string, sp Span, format string, args ...any) *NyxError {
	return &NyxError{Kind: KindParseError, Path: path, Span: sp, Message: fmt.Sprintf(format, args...)}
}

func newTypeError(path string, sp Span, format string, args ...any) *NyxError {
	return &NyxError{Kind: KindTypeError, Path: path, Span: sp, Message: fmt.Sprintf(format, args...)}
}

func newRuntimeError(path string, sp Span, format string, args ...any) *NyxError {
	return &NyxError{Kind: KindRuntimeError, Path: path, Span: sp, Message: fmt.Sprintf(format, args...)}
}

func newModuleError(path string, sp Span, format string, args ...any) *NyxError {
	return &NyxError{Kind: KindModuleError, Path: path, Span: sp, Message: fmt.Sprintf(format, args...)}
}

// gcInternalPanic is raised instead of returned: spec §7 says a
// gc-internal-error "must never occur if invariants hold" and
// implementations should abort rather than try to recover.
type gcInternalPanic struct{ message string }

func (p gcInternalPanic) String() string { return "gc-internal-error: " + p.message }

func panicGCInvariant(format string, args ...any) {
	panic(gcInternalPanic{message: fmt.Sprintf(format, args...)})
}
