package lspdiag

import (
	nyx "github.com/nyxlang/nyx"
)

// Engine tracks open documents and recomputes diagnostics against the
// typechecker each time one opens or changes, the way the teacher's own
// lsp.Engine recomputes against its grammar database — trimmed to the
// one query Nyx's editor surface needs (spec.md doesn't ask for hover,
// completion, or go-to-definition, only "diagnostics on edit").
type Engine struct {
	docs     map[string][]byte
	registry *nyx.InterfaceRegistry
}

func NewEngine() *Engine {
	return &Engine{
		docs:     make(map[string][]byte),
		registry: nyx.NewInterfaceRegistry(),
	}
}

func (e *Engine) DidOpen(params DidOpenTextDocumentParams) PublishDiagnosticsParams {
	e.docs[params.TextDocument.URI] = []byte(params.TextDocument.Text)
	return e.publish(params.TextDocument.URI)
}

func (e *Engine) DidChange(params DidChangeTextDocumentParams) PublishDiagnosticsParams {
	uri := params.TextDocument.URI
	if len(params.ContentChanges) == 0 {
		return PublishDiagnosticsParams{URI: uri}
	}
	// Only full-document sync is supported: the last content change
	// replaces the buffer.
	last := params.ContentChanges[len(params.ContentChanges)-1]
	e.docs[uri] = []byte(last.Text)
	return e.publish(uri)
}

func (e *Engine) DidClose(params DidCloseTextDocumentParams) PublishDiagnosticsParams {
	delete(e.docs, params.URI)
	return PublishDiagnosticsParams{URI: params.URI, Diagnostics: []Diagnostic{}}
}

func (e *Engine) publish(uri string) PublishDiagnosticsParams {
	src, ok := e.docs[uri]
	if !ok {
		return PublishDiagnosticsParams{URI: uri, Diagnostics: []Diagnostic{}}
	}
	cfg := nyx.NewConfig()
	cfg.SetBool("compiler.typecheck", true)
	_, errs := nyx.Compile(uri, src, cfg, e.registry)
	diags := make([]Diagnostic, 0, len(errs))
	for _, err := range errs {
		diags = append(diags, toDiagnostic(err))
	}
	return PublishDiagnosticsParams{URI: uri, Diagnostics: diags}
}

func toDiagnostic(err *nyx.NyxError) Diagnostic {
	return Diagnostic{
		Range:    toLSPRange(err.Span),
		Severity: toLSPSeverity(err.Kind),
		Source:   "nyx",
		Message:  err.Message,
	}
}

func toLSPRange(s nyx.Span) Range {
	return Range{
		Start: toLSPPosition(s.Start),
		End:   toLSPPosition(s.End),
	}
}

// toLSPPosition converts Nyx's 1-based line/column to LSP's 0-based
// line/character. It does not attempt UTF-16 surrogate accounting for
// multi-byte runes; ASCII source columns are exact, which covers every
// diagnostic spec.md's own error-format examples show.
func toLSPPosition(l nyx.Location) Position {
	line := l.Line - 1
	if line < 0 {
		line = 0
	}
	col := l.Column - 1
	if col < 0 {
		col = 0
	}
	return Position{Line: line, Character: col}
}

func toLSPSeverity(k nyx.ErrorKind) DiagnosticSeverity {
	if k == nyx.KindTypeError {
		return SeverityWarning
	}
	return SeverityError
}
