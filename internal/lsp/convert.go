package lsp

import (
	"strings"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/EmNudge/wat-lsp/internal/engine"
	"github.com/EmNudge/wat-lsp/internal/parser"
	"github.com/EmNudge/wat-lsp/internal/validator"
)

func toPosition(p protocol.Position) parser.Position {
	return parser.Position{Line: int(p.Line), Column: int(p.Character)}
}

func fromPosition(p parser.Position) protocol.Position {
	return protocol.Position{Line: uint32(p.Line), Character: uint32(p.Column)}
}

func toRange(r protocol.Range) parser.Range {
	return parser.Range{Start: toPosition(r.Start), End: toPosition(r.End)}
}

func fromRange(r parser.Range) protocol.Range {
	return protocol.Range{Start: fromPosition(r.Start), End: fromPosition(r.End)}
}

func fromEdits(edits []engine.TextEdit) []protocol.TextEdit {
	out := make([]protocol.TextEdit, len(edits))
	for i, e := range edits {
		out[i] = protocol.TextEdit{Range: fromRange(e.Range), NewText: e.NewText}
	}
	return out
}

// filename returns the local path of a file:// URI, or "" for any other
// scheme.
func filename(u protocol.DocumentURI) string {
	if !strings.HasPrefix(string(u), uri.FileScheme+"://") {
		return ""
	}
	return uri.URI(u).Filename()
}

func fromDiagnostics(diags []validator.Diagnostic) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(diags))
	for _, d := range diags {
		severity := protocol.DiagnosticSeverityError
		if d.Level == validator.LevelWarning {
			severity = protocol.DiagnosticSeverityWarning
		}
		out = append(out, protocol.Diagnostic{
			Range:    fromRange(d.Range),
			Severity: severity,
			Code:     d.Tag,
			Source:   d.Source,
			Message:  d.Message,
		})
	}
	return out
}

var completionKinds = map[engine.CompletionKind]protocol.CompletionItemKind{
	engine.CompletionKeyword:   protocol.CompletionItemKindKeyword,
	engine.CompletionFunction:  protocol.CompletionItemKindFunction,
	engine.CompletionVariable:  protocol.CompletionItemKindVariable,
	engine.CompletionConstant:  protocol.CompletionItemKindConstant,
	engine.CompletionSnippet:   protocol.CompletionItemKindSnippet,
	engine.CompletionOperator:  protocol.CompletionItemKindOperator,
	engine.CompletionType:      protocol.CompletionItemKindTypeParameter,
	engine.CompletionModule:    protocol.CompletionItemKindModule,
	engine.CompletionEvent:     protocol.CompletionItemKindEvent,
	engine.CompletionReference: protocol.CompletionItemKindReference,
	engine.CompletionStruct:    protocol.CompletionItemKindStruct,
}

func fromCompletion(items []engine.CompletionItem) []protocol.CompletionItem {
	out := make([]protocol.CompletionItem, 0, len(items))
	for _, it := range items {
		ci := protocol.CompletionItem{
			Label:            it.Label,
			Kind:             completionKinds[it.Kind],
			Detail:           it.Detail,
			InsertText:       it.InsertText,
			InsertTextFormat: protocol.InsertTextFormatPlainText,
			SortText:         it.SortText,
		}
		if it.Documentation != "" {
			ci.Documentation = protocol.MarkupContent{Kind: protocol.Markdown, Value: it.Documentation}
		}
		if it.TextEdit != nil {
			ci.TextEdit = &protocol.TextEdit{Range: fromRange(it.TextEdit.Range), NewText: it.TextEdit.NewText}
		}
		if it.Snippet {
			ci.InsertTextFormat = protocol.InsertTextFormatSnippet
		}
		out = append(out, ci)
	}
	return out
}

var symbolKinds = map[engine.SymbolKind]protocol.SymbolKind{
	engine.SymbolFunction: protocol.SymbolKindFunction,
	engine.SymbolVariable: protocol.SymbolKindVariable,
	engine.SymbolConstant: protocol.SymbolKindConstant,
	engine.SymbolArray:    protocol.SymbolKindArray,
	engine.SymbolClass:    protocol.SymbolKindClass,
	engine.SymbolStruct:   protocol.SymbolKindStruct,
	engine.SymbolEvent:    protocol.SymbolKindEvent,
	engine.SymbolKey:      protocol.SymbolKindKey,
	engine.SymbolModule:   protocol.SymbolKindModule,
}

func fromSymbols(syms []engine.DocumentSymbol) []protocol.DocumentSymbol {
	out := make([]protocol.DocumentSymbol, 0, len(syms))
	for _, s := range syms {
		out = append(out, protocol.DocumentSymbol{
			Name:           s.Name,
			Detail:         s.Detail,
			Kind:           symbolKinds[s.Kind],
			Range:          fromRange(s.Range),
			SelectionRange: fromRange(s.SelectionRange),
			Children:       fromSymbols(s.Children),
		})
	}
	return out
}

func fromSignatureHelp(h *engine.SignatureHelp) *protocol.SignatureHelp {
	out := &protocol.SignatureHelp{
		ActiveSignature: uint32(h.ActiveSignature),
		ActiveParameter: uint32(h.ActiveParameter),
	}
	for _, sig := range h.Signatures {
		info := protocol.SignatureInformation{Label: sig.Label}
		if sig.Documentation != "" {
			info.Documentation = protocol.MarkupContent{Kind: protocol.Markdown, Value: sig.Documentation}
		}
		for _, p := range sig.Parameters {
			info.Parameters = append(info.Parameters, protocol.ParameterInformation{Label: p.Label})
		}
		out.Signatures = append(out.Signatures, info)
	}
	return out
}
