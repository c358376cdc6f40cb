package lspdiag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDidOpenReportsParseError(t *testing.T) {
	e := NewEngine()
	pub := e.DidOpen(DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: "file:///bad.nyx", Text: "let x = ;", Version: 1},
	})
	require.Equal(t, "file:///bad.nyx", pub.URI)
	require.NotEmpty(t, pub.Diagnostics)
	require.Equal(t, SeverityError, pub.Diagnostics[0].Severity)
}

func TestDidChangeRecomputesOnFullSync(t *testing.T) {
	e := NewEngine()
	e.DidOpen(DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: "file:///ok.nyx", Text: "let x = ;", Version: 1},
	})
	pub := e.DidChange(DidChangeTextDocumentParams{
		TextDocument:   VersionedTextDocumentIdentifier{URI: "file:///ok.nyx", Version: 2},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: "let x = 1;"}},
	})
	require.Empty(t, pub.Diagnostics)
}

func TestDidCloseClearsDiagnostics(t *testing.T) {
	e := NewEngine()
	e.DidOpen(DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: "file:///x.nyx", Text: "let x = ;", Version: 1},
	})
	pub := e.DidClose(DidCloseTextDocumentParams{URI: "file:///x.nyx"})
	require.Equal(t, "file:///x.nyx", pub.URI)
	require.Empty(t, pub.Diagnostics)
}
