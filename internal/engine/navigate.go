package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/EmNudge/wat-lsp/internal/index"
	"github.com/EmNudge/wat-lsp/internal/parser"
)

// Definition returns the declaration range of the symbol referenced at
// pos. On a declaration it returns that declaration itself.
func (s *Snapshot) Definition(pos parser.Position) (parser.Range, bool) {
	if ref := s.Symbols.ReferenceAt(pos); ref != nil {
		if ref.Target == nil {
			return parser.Range{}, false
		}
		return ref.Target.Range, true
	}
	if sym := s.Symbols.SymbolAt(pos); sym != nil {
		return sym.Range, true
	}
	return parser.Range{}, false
}

// References returns every occurrence of the symbol at pos, by name or by
// index, in document order.
func (s *Snapshot) References(pos parser.Position, includeDeclaration bool) []parser.Range {
	sym := s.Symbols.Resolve(pos)
	if sym == nil {
		return nil
	}
	return s.Symbols.Occurrences(sym, includeDeclaration)
}

// DocumentHighlights is References with the declaration, used to mark
// every occurrence of the symbol under the cursor.
func (s *Snapshot) DocumentHighlights(pos parser.Position) []parser.Range {
	return s.References(pos, true)
}

var idPattern = regexp.MustCompile("^\\$[0-9A-Za-z!#$%&'*+\\-./:<=>?@\\\\^_`|~]+$")

// ValidName reports whether name is a well-formed $identifier.
func ValidName(name string) bool {
	return idPattern.MatchString(name)
}

// PrepareRename returns the token under pos and the current name of the
// symbol it denotes.
func (s *Snapshot) PrepareRename(pos parser.Position) (parser.Range, string, error) {
	sym := s.Symbols.Resolve(pos)
	if sym == nil {
		return parser.Range{}, "", ErrNoSymbol
	}
	if sym.Name == "" {
		return parser.Range{}, "", ErrUnnamedSymbol
	}
	if ref := s.Symbols.ReferenceAt(pos); ref != nil {
		return ref.Range(), sym.Name, nil
	}
	return sym.Range, sym.Name, nil
}

// Rename rewrites the declaration of the symbol at pos and every named
// reference to it. Numeric references keep pointing at the same ordinal
// and are left alone. A bare name gets its '$' added.
func (s *Snapshot) Rename(pos parser.Position, newName string) ([]TextEdit, error) {
	sym := s.Symbols.Resolve(pos)
	if sym == nil {
		return nil, ErrNoSymbol
	}
	if sym.Name == "" {
		return nil, ErrUnnamedSymbol
	}
	name := newName
	if !strings.HasPrefix(name, "$") {
		name = "$" + name
	}
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, newName)
	}
	if name != sym.Name {
		if existing := s.conflict(sym, name); existing != nil {
			return nil, &RenameConflictError{Name: name, Existing: existing}
		}
	}

	edits := []TextEdit{{Range: sym.Range, NewText: name}}
	for _, ref := range s.Symbols.ReferencesTo(sym) {
		if ref.Numeric {
			continue
		}
		edits = append(edits, TextEdit{Range: ref.Range(), NewText: name})
	}
	return edits, nil
}

// conflict finds a symbol already named name where sym lives. Labels are
// checked against the whole function: a clash could capture branches that
// target an outer label today.
func (s *Snapshot) conflict(sym *index.Symbol, name string) *index.Symbol {
	switch sym.Kind {
	case index.KindParam, index.KindLocal:
		if sym.Scope == nil {
			return nil
		}
		return sym.Scope.Func.Locals.Lookup(name)
	case index.KindLabel:
		if sym.Scope == nil {
			return nil
		}
		for _, l := range sym.Scope.Func.Labels {
			if l != sym && l.Name == name {
				return l
			}
		}
		return nil
	}
	return s.Symbols.Lookup(sym.Kind, name)
}
