package engine

import (
	"sort"

	"github.com/EmNudge/wat-lsp/internal/index"
	"github.com/EmNudge/wat-lsp/internal/parser"
)

func symbolKind(sym *index.Symbol) SymbolKind {
	switch sym.Kind {
	case index.KindFunction:
		return SymbolFunction
	case index.KindGlobal:
		if sym.Global.Mutable {
			return SymbolVariable
		}
		return SymbolConstant
	case index.KindMemory, index.KindTable:
		return SymbolArray
	case index.KindType:
		if sym.Type.Form == "struct" {
			return SymbolStruct
		}
		return SymbolClass
	case index.KindTag:
		return SymbolEvent
	case index.KindData, index.KindElem:
		return SymbolModule
	case index.KindLabel:
		return SymbolKey
	}
	return SymbolVariable
}

func outlineEntry(sym *index.Symbol) DocumentSymbol {
	rng := sym.Range
	if sym.Node != nil {
		rng = sym.Node.Range()
	}
	return DocumentSymbol{
		Name:           nameOrIndex(sym),
		Detail:         Signature(sym),
		Kind:           symbolKind(sym),
		Range:          rng,
		SelectionRange: sym.Range,
	}
}

// DocumentSymbols returns the module outline in source order. Functions
// list their parameters, locals and named blocks as children.
func (s *Snapshot) DocumentSymbols() []DocumentSymbol {
	var syms []*index.Symbol
	for _, k := range index.ModuleKinds {
		syms = append(syms, s.Symbols.Space(k).Symbols...)
	}
	sort.SliceStable(syms, func(i, j int) bool {
		return syms[i].Range.Start.Before(syms[j].Range.Start)
	})

	out := make([]DocumentSymbol, 0, len(syms))
	for _, sym := range syms {
		entry := outlineEntry(sym)
		if sym.Func != nil {
			for _, l := range sym.Func.Locals.Symbols {
				// Inherited from a type use; nothing to point at in the body.
				if l.Node != nil && l.Node.Kind == parser.KindTypeUse {
					continue
				}
				entry.Children = append(entry.Children, outlineEntry(l))
			}
			for _, l := range sym.Func.Labels {
				if !l.Label.Implicit {
					entry.Children = append(entry.Children, outlineEntry(l))
				}
			}
		}
		out = append(out, entry)
	}
	return out
}
