package engine

import (
	"fmt"
	"strings"

	"github.com/EmNudge/wat-lsp/internal/index"
	"github.com/EmNudge/wat-lsp/internal/instr"
	"github.com/EmNudge/wat-lsp/internal/parser"
)

var docTags = []struct{ name, detail string }{
	{"param", "Parameter documentation"},
	{"result", "Result documentation"},
	{"function", "Function documentation"},
	{"todo", "TODO marker"},
}

var moduleKeywords = []struct{ name, detail string }{
	{"module", "Module"},
	{"func", "Function declaration"},
	{"global", "Global variable"},
	{"memory", "Linear memory"},
	{"table", "Table"},
	{"type", "Type definition"},
	{"import", "Import"},
	{"export", "Export"},
	{"data", "Data segment"},
	{"elem", "Element segment"},
	{"start", "Start function"},
	{"tag", "Exception tag"},
	{"rec", "Recursive type group"},
}

var bodyKeywords = []struct{ name, detail string }{
	{"param", "Function parameter"},
	{"result", "Function result"},
	{"local", "Local variable"},
	{"block", "Block statement"},
	{"loop", "Loop statement"},
	{"if", "Conditional statement"},
	{"then", "Then branch"},
	{"else", "Else branch"},
	{"end", "End of block"},
	{"try_table", "Exception handling block"},
}

// token is the shorthand or partial word ending at the cursor.
type token struct {
	text  string
	start int
	rng   parser.Range
}

func (s *Snapshot) tokenAt(pos parser.Position) token {
	text := s.Text()
	end := s.Tree.Offset(pos)
	start := end
	for start > 0 {
		c := text[start-1]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '(' || c == ')' || c == '"' || c == ';' {
			break
		}
		start--
	}
	return token{
		text:  text[start:end],
		start: start,
		rng:   parser.Range{Start: s.Tree.PositionOf(start), End: pos},
	}
}

// Completion lists candidates for the cursor position. Contexts are tried
// in order: doc tags in comments, expansion shorthands, dotted instruction
// stems, $name references, then plain keywords and mnemonics.
func (s *Snapshot) Completion(pos parser.Position) []CompletionItem {
	tok := s.tokenAt(pos)

	if s.Tree.CommentAt(pos) != nil {
		if strings.HasPrefix(tok.text, "@") {
			return keywordItems(docTags, CompletionKeyword)
		}
		return nil
	}
	if leaf := s.Tree.LeafAt(pos); leaf != nil && leaf.Kind == parser.KindString && s.Tree.Offset(pos) < leaf.EndByte {
		return nil
	}

	if s.opts.Expansion {
		if isNumberShorthand(tok.text) {
			return s.numberExpansion(tok)
		}
		if prefix, _, ok := accessPrefix(tok.text); ok {
			return s.accessExpansion(pos, tok, prefix)
		}
	}
	if i := strings.LastIndexByte(tok.text, '.'); i > 0 {
		if items := s.stemItems(tok.text[:i+1]); len(items) > 0 {
			return items
		}
	}
	if strings.HasPrefix(tok.text, "$") {
		return s.referenceItems(pos, tok)
	}

	if s.functionAt(pos) == nil {
		return keywordItems(moduleKeywords, CompletionKeyword)
	}
	items := keywordItems(bodyKeywords, CompletionKeyword)
	for _, m := range instr.Names() {
		items = append(items, s.mnemonicItem(m, m))
	}
	return items
}

func keywordItems(words []struct{ name, detail string }, kind CompletionKind) []CompletionItem {
	items := make([]CompletionItem, len(words))
	for i, w := range words {
		items[i] = CompletionItem{Label: w.name, Kind: kind, Detail: w.detail}
	}
	return items
}

func (s *Snapshot) mnemonicItem(label, mnemonic string) CompletionItem {
	item := CompletionItem{Label: label, Kind: CompletionOperator, InsertText: label}
	if s.opts.Docs != nil {
		if e, ok := s.opts.Docs.Lookup(mnemonic); ok {
			item.Detail = e.Signature
			item.Documentation = e.Description
		}
	}
	return item
}

// stemItems completes the rest of a mnemonic after a namespace such as
// "i32." or "memory.". Labels carry only the part after the stem.
func (s *Snapshot) stemItems(stem string) []CompletionItem {
	var items []CompletionItem
	for _, m := range instr.WithPrefix(stem) {
		items = append(items, s.mnemonicItem(strings.TrimPrefix(m, stem), m))
	}
	return items
}

func (s *Snapshot) numberExpansion(tok token) []CompletionItem {
	text, ok := Expand(tok.text)
	if !ok {
		return nil
	}
	return []CompletionItem{{
		Label:    tok.text,
		Kind:     CompletionSnippet,
		Detail:   "Expand to: " + text,
		TextEdit: &TextEdit{Range: tok.rng, NewText: text},
	}}
}

// accessExpansion offers l$/l=$ for the enclosing function's locals and
// g$/g=$ for globals. Setters only list mutable globals and leave the
// cursor at the value operand when snippets are enabled.
func (s *Snapshot) accessExpansion(pos parser.Position, tok token, prefix string) []CompletionItem {
	var candidates []*index.Symbol
	if prefix[0] == 'l' {
		if fn := s.functionAt(pos); fn != nil {
			candidates = fn.Func.Locals.Symbols
		}
	} else {
		for _, g := range s.Symbols.Globals() {
			if prefix == "g=" && !g.Global.Mutable {
				continue
			}
			candidates = append(candidates, g)
		}
	}

	var items []CompletionItem
	for _, sym := range candidates {
		if sym.Name == "" || sym.Duplicate {
			continue
		}
		text, ok := Expand(prefix + sym.Name)
		if !ok {
			continue
		}
		item := CompletionItem{
			Label:         prefix + sym.Name,
			Kind:          CompletionSnippet,
			Detail:        Signature(sym),
			Documentation: "Expands to: " + text,
			TextEdit:      &TextEdit{Range: tok.rng, NewText: text},
		}
		if strings.HasSuffix(prefix, "=") && s.opts.Snippets {
			item.TextEdit.NewText = snippetEscape(strings.TrimSuffix(text, ")")) + " $0)"
			item.Snippet = true
		}
		items = append(items, item)
	}
	return items
}

// functionAt is FunctionAt, falling back to the last function starting
// before pos so that a body still missing its ')' counts.
func (s *Snapshot) functionAt(pos parser.Position) *index.Symbol {
	if fn := s.Symbols.FunctionAt(pos); fn != nil {
		return fn
	}
	off := s.Tree.Offset(pos)
	fns := s.Symbols.Functions()
	for i := len(fns) - 1; i >= 0; i-- {
		fn := fns[i]
		if fn.Node == nil || fn.Node.Kind != parser.KindFunc || fn.Node.StartByte > off {
			continue
		}
		if off <= fn.Node.EndByte || unclosed(fn.Node) {
			return fn
		}
		return nil
	}
	return nil
}

// declarationKinds are the nodes whose leading $id declares a name rather
// than referring to one.
var declarationKinds = map[parser.Kind]bool{
	parser.KindFunc:   true,
	parser.KindGlobal: true,
	parser.KindMemory: true,
	parser.KindTable:  true,
	parser.KindType:   true,
	parser.KindData:   true,
	parser.KindElem:   true,
	parser.KindTag:    true,
	parser.KindParam:  true,
	parser.KindLocal:  true,
	parser.KindBlock:  true,
}

// referenceSpace picks the index space a $name at leaf refers to, from the
// instruction or form that holds it.
func referenceSpace(leaf *parser.Node) (instr.Imm, bool) {
	p := leaf.Parent
	if p == nil {
		return instr.ImmNone, true
	}
	if p.ID() == leaf && declarationKinds[p.Kind] {
		return instr.ImmNone, false
	}
	if p.Kind == parser.KindBlock || p.Kind == parser.KindElse {
		return instr.ImmLabel, true
	}
	count := 0
	for _, c := range p.Children[1:] {
		if c == leaf {
			break
		}
		if c.Kind == parser.KindIdentifier || c.Kind == parser.KindNumber {
			count++
		}
	}

	head := p.Keyword()
	if info, ok := instr.Lookup(head); ok {
		return info.Bind(count + 1)[count], true
	}
	switch head {
	case "func", "start", "elem":
		return instr.ImmFunc, true
	case "global":
		return instr.ImmGlobal, true
	case "memory":
		return instr.ImmMemory, true
	case "table":
		return instr.ImmTable, true
	case "type", "ref":
		return instr.ImmType, true
	case "tag":
		return instr.ImmTag, true
	case "catch", "catch_ref":
		if count == 0 {
			return instr.ImmTag, true
		}
		return instr.ImmLabel, true
	case "catch_all", "catch_all_ref":
		return instr.ImmLabel, true
	}
	return instr.ImmNone, true
}

func (s *Snapshot) referenceItems(pos parser.Position, tok token) []CompletionItem {
	imm := instr.ImmNone
	if leaf := s.Tree.LeafAt(pos); leaf != nil && leaf.Kind == parser.KindIdentifier && leaf.StartByte == tok.start {
		var ok bool
		if imm, ok = referenceSpace(leaf); !ok {
			return nil
		}
	}

	var items []CompletionItem
	add := func(sym *index.Symbol, kind CompletionKind, detail string) {
		if sym.Name == "" || sym.Duplicate {
			return
		}
		items = append(items, CompletionItem{
			Label:    sym.Name,
			Kind:     kind,
			Detail:   detail,
			TextEdit: &TextEdit{Range: tok.rng, NewText: sym.Name},
		})
	}
	module := func(k index.Kind, kind CompletionKind) {
		for _, sym := range s.Symbols.Space(k).Symbols {
			add(sym, kind, Signature(sym))
		}
	}
	locals := func() {
		if fn := s.functionAt(pos); fn != nil {
			for _, sym := range fn.Func.Locals.Symbols {
				add(sym, CompletionVariable, Signature(sym))
			}
		}
	}

	switch imm {
	case instr.ImmFunc:
		module(index.KindFunction, CompletionFunction)
	case instr.ImmGlobal:
		module(index.KindGlobal, CompletionVariable)
	case instr.ImmMemory:
		module(index.KindMemory, CompletionModule)
	case instr.ImmTable:
		module(index.KindTable, CompletionModule)
	case instr.ImmType:
		module(index.KindType, CompletionType)
	case instr.ImmData:
		module(index.KindData, CompletionReference)
	case instr.ImmElem:
		module(index.KindElem, CompletionReference)
	case instr.ImmTag:
		module(index.KindTag, CompletionEvent)
	case instr.ImmLocal:
		locals()
	case instr.ImmLabel:
		for depth, l := range s.Symbols.LabelsAt(pos) {
			add(l, CompletionReference, fmt.Sprintf("%s, depth %d", Signature(l), depth))
		}
	default:
		locals()
		module(index.KindFunction, CompletionFunction)
		module(index.KindGlobal, CompletionVariable)
	}
	return items
}
