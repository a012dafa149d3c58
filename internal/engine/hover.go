package engine

import (
	"fmt"
	"strings"

	"github.com/EmNudge/wat-lsp/internal/index"
	"github.com/EmNudge/wat-lsp/internal/instr"
	"github.com/EmNudge/wat-lsp/internal/parser"
)

// Hover describes the token under pos: an instruction from the
// documentation table, or a symbol from its recorded attributes.
func (s *Snapshot) Hover(pos parser.Position) *Hover {
	if s.Tree.CommentAt(pos) != nil {
		return nil
	}
	leaf := s.Tree.LeafAt(pos)
	if leaf == nil || leaf.IsError() {
		return nil
	}

	if ref := s.Symbols.ReferenceFor(leaf); ref != nil {
		if ref.Target == nil {
			return nil
		}
		return &Hover{Contents: s.describe(ref.Target, ref), Range: leaf.Range()}
	}

	switch leaf.Kind {
	case parser.KindKeyword:
		if isMnemonicLeaf(leaf) {
			if text := s.instructionDoc(leaf.Text); text != "" {
				return &Hover{Contents: text, Range: leaf.Range()}
			}
			return nil
		}
		if p := leaf.Parent; p != nil && p.KeywordNode() == leaf {
			if sym := s.Symbols.Declaration(p); sym != nil {
				return &Hover{Contents: s.describe(sym, nil), Range: leaf.Range()}
			}
		}
	case parser.KindIdentifier:
		if sym := s.Symbols.SymbolAt(pos); sym != nil && sym.Range == leaf.Range() {
			return &Hover{Contents: s.describe(sym, nil), Range: leaf.Range()}
		}
	}
	return nil
}

// isMnemonicLeaf reports whether leaf is an instruction keyword: the head
// of an instruction or block, or a flat block's else/end.
func isMnemonicLeaf(leaf *parser.Node) bool {
	p := leaf.Parent
	if p == nil {
		return false
	}
	switch p.Kind {
	case parser.KindInstr:
		return p.KeywordNode() == leaf
	case parser.KindBlock, parser.KindThen, parser.KindElse:
		return p.KeywordNode() == leaf || leaf.Text == "end"
	}
	return false
}

func (s *Snapshot) instructionDoc(mnemonic string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "```wat\n%s\n```", mnemonic)
	if s.opts.Docs != nil {
		if e, ok := s.opts.Docs.Lookup(mnemonic); ok {
			b.WriteString("\n\n" + e.Description)
			if e.Signature != "" {
				fmt.Fprintf(&b, "\n\n**Signature:** `%s`", e.Signature)
			}
			if e.Example != "" {
				fmt.Fprintf(&b, "\n\n**Example:**\n```wat\n%s\n```", strings.TrimRight(e.Example, "\n"))
			}
			return b.String()
		}
	}
	if !instr.IsMnemonic(mnemonic) {
		return ""
	}
	return b.String()
}

// describe renders the hover text of sym. ref is the occurrence being
// hovered, nil on a declaration.
func (s *Snapshot) describe(sym *index.Symbol, ref *index.Reference) string {
	parts := []string{fmt.Sprintf("```wat\n%s\n```", Signature(sym))}

	switch sym.Kind {
	case index.KindLabel:
		if sym.Label.Implicit {
			parts = append(parts, fmt.Sprintf("Body of function %s", nameOrIndex(sym.Scope)))
		} else {
			parts = append(parts, fmt.Sprintf("Defined at line %d", sym.Range.Start.Line+1))
		}
		if ref != nil && ref.Instr != nil && ref.Instr.Kind != parser.KindBlock {
			parts = append(parts, fmt.Sprintf("Relative depth: %d", ref.Depth-1-sym.Label.Depth))
		}
	case index.KindGlobal:
		if sym.Global.Init != "" {
			parts = append(parts, fmt.Sprintf("Initial value: `%s`", sym.Global.Init))
		}
		parts = append(parts, fmt.Sprintf("Global index %d", sym.Index))
	case index.KindData:
		parts = append(parts, fmt.Sprintf("Length: %d bytes", sym.Segment.Length))
	default:
		parts = append(parts, fmt.Sprintf("%s index %d", capitalize(sym.Kind.String()), sym.Index))
	}

	if exports := exportsOf(sym); len(exports) > 0 {
		quoted := make([]string, len(exports))
		for i, e := range exports {
			quoted[i] = "`" + e + "`"
		}
		parts = append(parts, "Exported as "+strings.Join(quoted, ", "))
	}
	if sym.Duplicate {
		parts = append(parts, fmt.Sprintf("Duplicate of an earlier %s; references bind to the first one", sym.Kind))
	}
	if doc := s.Symbols.Doc(sym); doc != "" {
		parts = append(parts, doc)
	}
	return strings.Join(parts, "\n\n")
}
