package lsp

import (
	"context"
	"errors"
	"fmt"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"

	"github.com/EmNudge/wat-lsp/internal/engine"
	"github.com/EmNudge/wat-lsp/internal/formatter"
)

// snapshot returns the current snapshot of a document. Requests for
// documents that are not open get an empty answer rather than an error.
func (s *Server) snapshot(id protocol.TextDocumentIdentifier) *engine.Snapshot {
	return s.session.Snapshot(string(id.URI))
}

// focus points the visualizer at the function under the cursor.
func (s *Server) focus(id protocol.TextDocumentIdentifier, pos protocol.Position) {
	if s.visualizer != nil {
		s.visualizer.SetFocus(string(id.URI), toPosition(pos))
	}
}

func (s *Server) Hover(ctx context.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	s.focus(params.TextDocument, params.Position)
	snap := s.snapshot(params.TextDocument)
	if snap == nil {
		return nil, nil
	}
	h := snap.Hover(toPosition(params.Position))
	if h == nil {
		return nil, nil
	}
	rng := fromRange(h.Range)
	return &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.Markdown, Value: h.Contents},
		Range:    &rng,
	}, nil
}

func (s *Server) Definition(ctx context.Context, params *protocol.DefinitionParams) ([]protocol.Location, error) {
	s.focus(params.TextDocument, params.Position)
	snap := s.snapshot(params.TextDocument)
	if snap == nil {
		return nil, nil
	}
	rng, ok := snap.Definition(toPosition(params.Position))
	if !ok {
		return nil, nil
	}
	return []protocol.Location{{URI: params.TextDocument.URI, Range: fromRange(rng)}}, nil
}

func (s *Server) References(ctx context.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	snap := s.snapshot(params.TextDocument)
	if snap == nil {
		return nil, nil
	}
	var locs []protocol.Location
	for _, r := range snap.References(toPosition(params.Position), params.Context.IncludeDeclaration) {
		locs = append(locs, protocol.Location{URI: params.TextDocument.URI, Range: fromRange(r)})
	}
	return locs, nil
}

func (s *Server) DocumentHighlight(ctx context.Context, params *protocol.DocumentHighlightParams) ([]protocol.DocumentHighlight, error) {
	snap := s.snapshot(params.TextDocument)
	if snap == nil {
		return nil, nil
	}
	var out []protocol.DocumentHighlight
	for _, r := range snap.DocumentHighlights(toPosition(params.Position)) {
		out = append(out, protocol.DocumentHighlight{Range: fromRange(r), Kind: protocol.DocumentHighlightKindText})
	}
	return out, nil
}

type PrepareRenameResult struct {
	Range       protocol.Range `json:"range"`
	Placeholder string         `json:"placeholder"`
}

func (s *Server) PrepareRename(ctx context.Context, params *protocol.PrepareRenameParams) (*PrepareRenameResult, error) {
	snap := s.snapshot(params.TextDocument)
	if snap == nil {
		return nil, nil
	}
	rng, name, err := snap.PrepareRename(toPosition(params.Position))
	if errors.Is(err, engine.ErrNoSymbol) {
		return nil, nil
	}
	if err != nil {
		return nil, jsonrpc2.NewError(jsonrpc2.InvalidRequest, err.Error())
	}
	return &PrepareRenameResult{Range: fromRange(rng), Placeholder: name}, nil
}

// WorkspaceEdit carries the edits of a rename, keyed by document URI.
type WorkspaceEdit struct {
	Changes map[protocol.DocumentURI][]protocol.TextEdit `json:"changes"`
}

func (s *Server) Rename(ctx context.Context, params *protocol.RenameParams) (*WorkspaceEdit, error) {
	snap := s.snapshot(params.TextDocument)
	if snap == nil {
		return nil, nil
	}
	edits, err := snap.Rename(toPosition(params.Position), params.NewName)
	if errors.Is(err, engine.ErrNoSymbol) {
		return nil, nil
	}
	if err != nil {
		return nil, jsonrpc2.NewError(jsonrpc2.InvalidParams, err.Error())
	}
	return &WorkspaceEdit{
		Changes: map[protocol.DocumentURI][]protocol.TextEdit{params.TextDocument.URI: fromEdits(edits)},
	}, nil
}

func (s *Server) SignatureHelp(ctx context.Context, params *protocol.SignatureHelpParams) (*protocol.SignatureHelp, error) {
	snap := s.snapshot(params.TextDocument)
	if snap == nil {
		return nil, nil
	}
	h := snap.SignatureHelp(toPosition(params.Position))
	if h == nil {
		return nil, nil
	}
	return fromSignatureHelp(h), nil
}

func (s *Server) Completion(ctx context.Context, params *protocol.CompletionParams) (*protocol.CompletionList, error) {
	snap := s.snapshot(params.TextDocument)
	if snap == nil {
		return nil, nil
	}
	items := snap.Completion(toPosition(params.Position))
	return &protocol.CompletionList{Items: fromCompletion(items)}, nil
}

// Formatting replaces the whole document with its formatted text. Source
// with syntax errors is left as it is.
func (s *Server) Formatting(ctx context.Context, params *protocol.DocumentFormattingParams) ([]protocol.TextEdit, error) {
	snap := s.snapshot(params.TextDocument)
	if snap == nil {
		return nil, nil
	}
	opts := formatter.Options{
		TabSize: int(params.Options.TabSize),
		UseTabs: !params.Options.InsertSpaces,
	}
	text := snap.Text()
	formatted, err := formatter.String(text, opts)
	if errors.Is(err, formatter.ErrSyntax) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("format %s: %w", params.TextDocument.URI, err)
	}
	if formatted == text {
		return []protocol.TextEdit{}, nil
	}
	end := snap.Tree.PositionOf(len(text))
	return []protocol.TextEdit{{
		Range:   protocol.Range{End: fromPosition(end)},
		NewText: formatted,
	}}, nil
}

func (s *Server) DocumentSymbol(ctx context.Context, params *protocol.DocumentSymbolParams) ([]protocol.DocumentSymbol, error) {
	snap := s.snapshot(params.TextDocument)
	if snap == nil {
		return nil, nil
	}
	return fromSymbols(snap.DocumentSymbols()), nil
}
