package index

import (
	"sort"

	"github.com/EmNudge/wat-lsp/internal/parser"
)

// Reason explains why a reference did not resolve.
type Reason int

const (
	Resolved Reason = iota
	ReasonUnknownName
	ReasonOutOfBounds
	ReasonWrongScope
	ReasonLabelMismatch
)

func (r Reason) String() string {
	switch r {
	case ReasonUnknownName:
		return "unknown name"
	case ReasonOutOfBounds:
		return "index out of bounds"
	case ReasonWrongScope:
		return "wrong scope"
	case ReasonLabelMismatch:
		return "label mismatch"
	}
	return "resolved"
}

// Reference is one occurrence of a name or index in a position that
// addresses an index space.
type Reference struct {
	Name    string // identifier or numeric literal as written
	Node    *parser.Node
	Kind    Kind         // space consulted, KindLocal covers parameters
	Scope   *Symbol      // enclosing function, nil at module level
	Instr   *parser.Node // instruction or form holding the reference
	Target  *Symbol
	Reason  Reason
	Numeric bool
	// Depth is the number of labels on the stack at the reference site.
	Depth int
}

func (r *Reference) Range() parser.Range {
	return r.Node.Range()
}

func (r *Reference) Resolved() bool {
	return r.Target != nil
}

// Table is the symbol table derived from one tree. It is never modified
// after Build returns.
type Table struct {
	Tree       *parser.Tree
	Spaces     map[Kind]*Space
	References []*Reference
	Duplicates []*Symbol

	symbols []*Symbol
	byNode  map[*parser.Node]*Reference
	decls   map[*parser.Node]*Symbol
}

func newTable(tree *parser.Tree) *Table {
	t := &Table{
		Tree:   tree,
		Spaces: make(map[Kind]*Space),
		byNode: make(map[*parser.Node]*Reference),
		decls:  make(map[*parser.Node]*Symbol),
	}
	for _, k := range ModuleKinds {
		t.Spaces[k] = newSpace(k)
	}
	return t
}

func (t *Table) Space(k Kind) *Space {
	return t.Spaces[k]
}

func (t *Table) Functions() []*Symbol {
	return t.Spaces[KindFunction].Symbols
}

func (t *Table) Globals() []*Symbol {
	return t.Spaces[KindGlobal].Symbols
}

// Symbols returns every declared symbol in declaration order, module-level
// symbols first.
func (t *Table) Symbols() []*Symbol {
	return t.symbols
}

// Lookup finds a module-level symbol by name.
func (t *Table) Lookup(k Kind, name string) *Symbol {
	if s, ok := t.Spaces[k]; ok {
		return s.Lookup(name)
	}
	return nil
}

// Declaration returns the symbol declared by node: a field, a block or a
// function body.
func (t *Table) Declaration(n *parser.Node) *Symbol {
	return t.decls[n]
}

// LabelOf returns the label pushed by a block node.
func (t *Table) LabelOf(block *parser.Node) *Symbol {
	if s := t.decls[block]; s != nil && s.Kind == KindLabel {
		return s
	}
	return nil
}

// ReferenceFor returns the reference recorded for a leaf node.
func (t *Table) ReferenceFor(n *parser.Node) *Reference {
	return t.byNode[n]
}

// ReferenceAt returns the reference under pos.
func (t *Table) ReferenceAt(pos parser.Position) *Reference {
	leaf := t.Tree.LeafAt(pos)
	if leaf == nil {
		return nil
	}
	return t.byNode[leaf]
}

// SymbolAt returns the symbol whose declaration range is under pos.
func (t *Table) SymbolAt(pos parser.Position) *Symbol {
	var best *Symbol
	for _, s := range t.symbols {
		// Parameters inherited from a type use span the whole (type ...)
		// form; the type reference inside it takes precedence.
		if !s.Range.Touches(pos) || (s.Node != nil && s.Node.Kind == parser.KindTypeUse) {
			continue
		}
		if s.Range.Contains(pos) {
			return s
		}
		if best == nil {
			best = s
		}
	}
	return best
}

// Resolve returns the symbol a position denotes, through either a
// reference or a declaration.
func (t *Table) Resolve(pos parser.Position) *Symbol {
	if ref := t.ReferenceAt(pos); ref != nil {
		return ref.Target
	}
	return t.SymbolAt(pos)
}

// FunctionAt returns the function whose body or header contains pos.
func (t *Table) FunctionAt(pos parser.Position) *Symbol {
	n := t.Tree.NodeAt(pos)
	if n.Kind != parser.KindFunc {
		n = n.Ancestor(parser.KindFunc)
	}
	if n == nil {
		return nil
	}
	return t.decls[n]
}

// LabelsAt returns the labels visible at pos, innermost first. The stack is
// derived from the enclosing blocks each time it is asked for.
func (t *Table) LabelsAt(pos parser.Position) []*Symbol {
	var out []*Symbol
	for n := t.Tree.NodeAt(pos); n != nil; n = n.Parent {
		switch n.Kind {
		case parser.KindBlock:
			if l := t.LabelOf(n); l != nil && inLabelScope(n, pos) {
				out = append(out, l)
			}
		case parser.KindFunc:
			if fn := t.decls[n]; fn != nil && fn.Func != nil && len(fn.Func.Labels) > 0 {
				out = append(out, fn.Func.Labels[0])
			}
			return out
		}
	}
	return out
}

// inLabelScope reports whether pos is inside the part of a block where its
// label is visible: after the block header and, for folded if, inside a
// then or else branch.
func inLabelScope(block *parser.Node, pos parser.Position) bool {
	if !block.Folded || block.Keyword() != "if" {
		return true
	}
	for _, c := range block.Children {
		if (c.Kind == parser.KindThen || c.Kind == parser.KindElse) && c.Range().Touches(pos) {
			return true
		}
	}
	return false
}

// ReferencesTo returns every reference resolved to sym, in document order.
// Scope restrictions hold by construction: locals and labels only resolve
// from inside their own function and block.
func (t *Table) ReferencesTo(sym *Symbol) []*Reference {
	var out []*Reference
	for _, r := range t.References {
		if r.Target == sym {
			out = append(out, r)
		}
	}
	return out
}

// Occurrences returns the ranges of sym's references, preceded by its
// declaration range when includeDecl is set.
func (t *Table) Occurrences(sym *Symbol, includeDecl bool) []parser.Range {
	var out []parser.Range
	if includeDecl {
		out = append(out, sym.Range)
	}
	for _, r := range t.ReferencesTo(sym) {
		out = append(out, r.Range())
	}
	return out
}

// Unresolved returns every reference that did not resolve.
func (t *Table) Unresolved() []*Reference {
	var out []*Reference
	for _, r := range t.References {
		if r.Target == nil {
			out = append(out, r)
		}
	}
	return out
}

func (t *Table) addSymbol(s *Symbol) {
	t.symbols = append(t.symbols, s)
	if s.Node != nil {
		if _, ok := t.decls[s.Node]; !ok {
			t.decls[s.Node] = s
		}
	}
}

func (t *Table) addReference(r *Reference) {
	t.References = append(t.References, r)
	t.byNode[r.Node] = r
}

func (t *Table) sortReferences() {
	sort.SliceStable(t.References, func(i, j int) bool {
		return t.References[i].Node.StartByte < t.References[j].Node.StartByte
	})
}
