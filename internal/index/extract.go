package index

import (
	"strconv"
	"strings"

	"github.com/EmNudge/wat-lsp/internal/parser"
)

type builder struct {
	t    *Table
	text string
}

// scope is the resolution context while walking instructions.
type scope struct {
	fn     *Symbol
	labels []*Symbol // innermost last
}

// Build extracts the symbol table from a tree. Fields that failed to parse
// contribute whatever structure was recovered; extraction itself never
// fails.
func Build(tree *parser.Tree) *Table {
	b := &builder{t: newTable(tree), text: tree.Text()}
	fields := b.fields(tree.Module())

	// Imports take the first ordinals of every space, wherever they appear.
	for _, f := range fields {
		if isImport(f) {
			b.declare(f)
		}
	}
	for _, f := range fields {
		if !isImport(f) {
			b.declare(f)
		}
	}
	// Signatures may come from the type space, which is complete only now.
	for _, s := range b.t.Spaces[KindFunction].Symbols {
		b.declareLocals(s)
	}
	for _, s := range b.t.Spaces[KindTag].Symbols {
		b.tagSignature(s)
	}
	for _, f := range fields {
		b.walkField(f)
	}
	b.t.sortReferences()
	return b.t
}

func (b *builder) fields(module *parser.Node) []*parser.Node {
	var out []*parser.Node
	for _, c := range module.Children {
		switch {
		case c.Kind == parser.KindRec:
			out = append(out, c.ChildrenOfKind(parser.KindType)...)
		case c.Kind.IsField():
			out = append(out, c)
		}
	}
	return out
}

func isImport(f *parser.Node) bool {
	switch f.Kind {
	case parser.KindImport:
		return true
	case parser.KindFunc, parser.KindGlobal, parser.KindMemory, parser.KindTable, parser.KindTag:
		return f.FirstChildOfKind(parser.KindImport) != nil
	}
	return false
}

func (b *builder) source(n *parser.Node) string {
	if n == nil || n.StartByte >= n.EndByte || n.EndByte > len(b.text) {
		return ""
	}
	return b.text[n.StartByte:n.EndByte]
}

func unquote(s string) string {
	return strings.TrimSuffix(strings.TrimPrefix(s, `"`), `"`)
}

func fieldKind(k parser.Kind) (Kind, bool) {
	switch k {
	case parser.KindFunc:
		return KindFunction, true
	case parser.KindGlobal:
		return KindGlobal, true
	case parser.KindMemory:
		return KindMemory, true
	case parser.KindTable:
		return KindTable, true
	case parser.KindType:
		return KindType, true
	case parser.KindData:
		return KindData, true
	case parser.KindElem:
		return KindElem, true
	case parser.KindTag:
		return KindTag, true
	}
	return 0, false
}

// nameOf returns the declared name and the range that stands for the
// declaration: the name itself, or the head keyword when unnamed.
func nameOf(n *parser.Node) (string, parser.Range) {
	if id := n.ID(); id != nil {
		return id.Text, id.Range()
	}
	if kw := n.KeywordNode(); kw != nil {
		return "", kw.Range()
	}
	return "", n.Range()
}

func (b *builder) declare(f *parser.Node) {
	decl := f
	var imp *ImportInfo
	if f.Kind == parser.KindImport {
		imp = importInfo(f)
		decl = nil
		for _, c := range f.Children {
			if _, ok := fieldKind(c.Kind); ok {
				decl = c
				break
			}
		}
		if decl == nil {
			return
		}
	} else if in := f.FirstChildOfKind(parser.KindImport); in != nil {
		imp = importInfo(in)
	}

	kind, ok := fieldKind(decl.Kind)
	if !ok {
		return
	}
	sym := &Symbol{Kind: kind, Node: decl, Imported: imp != nil}
	sym.Name, sym.Range = nameOf(decl)
	exports := exportNames(decl)

	switch kind {
	case KindFunction:
		sym.Func = &FuncInfo{Exports: exports, Import: imp, Locals: newSpace(KindLocal)}
	case KindGlobal:
		sym.Global = b.globalInfo(decl)
		sym.Global.Exports = exports
		sym.Global.Import = imp
	case KindMemory, KindTable:
		sym.Limits = b.limits(decl)
		sym.Limits.Exports = exports
		sym.Limits.Import = imp
	case KindType:
		sym.Type = b.typeInfo(decl)
	case KindTag:
		sym.Type = &TypeInfo{Form: "func"}
	case KindData:
		sym.Segment = dataInfo(decl)
	case KindElem:
		sym.Segment = elemInfo(decl)
	}

	if !b.t.Spaces[kind].append(sym) {
		b.t.Duplicates = append(b.t.Duplicates, sym)
	}
	b.t.addSymbol(sym)
}

func importInfo(n *parser.Node) *ImportInfo {
	strs := n.ChildrenOfKind(parser.KindString)
	info := &ImportInfo{}
	if len(strs) > 0 {
		info.Module = unquote(strs[0].Text)
	}
	if len(strs) > 1 {
		info.Name = unquote(strs[1].Text)
	}
	return info
}

func exportNames(n *parser.Node) []string {
	var out []string
	for _, e := range n.ChildrenOfKind(parser.KindExport) {
		if s := e.FirstChildOfKind(parser.KindString); s != nil {
			out = append(out, unquote(s.Text))
		}
	}
	return out
}

// valueTypes returns the type operands of a param, result or local form,
// skipping the keyword and an optional name.
func (b *builder) valueTypes(n *parser.Node) []*parser.Node {
	var out []*parser.Node
	for i, c := range n.Children {
		if i == 0 && c.Kind == parser.KindKeyword {
			continue
		}
		switch c.Kind {
		case parser.KindKeyword, parser.KindForm:
			out = append(out, c)
		}
	}
	return out
}

func (b *builder) types(n *parser.Node) []ValType {
	var out []ValType
	for _, v := range b.valueTypes(n) {
		out = append(out, ValType(b.source(v)))
	}
	return out
}

func (b *builder) resultsOf(n *parser.Node) []ValType {
	var out []ValType
	for _, r := range n.ChildrenOfKind(parser.KindResult) {
		out = append(out, b.types(r)...)
	}
	return out
}

func (b *builder) paramsOf(n *parser.Node) []Param {
	var out []Param
	for _, p := range n.ChildrenOfKind(parser.KindParam) {
		types := b.types(p)
		if id := p.ID(); id != nil {
			var t ValType
			if len(types) > 0 {
				t = types[0]
			}
			out = append(out, Param{Name: id.Text, Type: t})
			continue
		}
		for _, t := range types {
			out = append(out, Param{Type: t})
		}
	}
	return out
}

func (b *builder) globalInfo(n *parser.Node) *GlobalInfo {
	g := &GlobalInfo{}
	var init []string
	for i, c := range n.Children {
		switch c.Kind {
		case parser.KindGlobalType:
			g.Mutable = true
			if ts := b.types(c); len(ts) > 0 {
				g.Type = ts[0]
			}
		case parser.KindKeyword:
			if i > 0 && g.Type == "" {
				g.Type = ValType(c.Text)
			}
		case parser.KindForm:
			if c.Keyword() == "ref" && g.Type == "" {
				g.Type = ValType(b.source(c))
			}
		case parser.KindInstr, parser.KindBlock:
			init = append(init, b.source(c))
		}
	}
	g.Init = strings.Join(init, " ")
	return g
}

func (b *builder) limits(n *parser.Node) *Limits {
	l := &Limits{}
	for i, c := range n.Children {
		switch c.Kind {
		case parser.KindNumber:
			if l.Min == "" {
				l.Min = c.Text
			} else if l.Max == "" {
				l.Max = c.Text
			}
		case parser.KindKeyword:
			if i > 0 && strings.HasSuffix(c.Text, "ref") {
				l.RefType = ValType(c.Text)
			}
		case parser.KindForm:
			switch c.Keyword() {
			case "ref":
				l.RefType = ValType(b.source(c))
			case "elem":
				// (table funcref (elem ...)) sizes the table to its elements.
				count := 0
				for _, e := range c.Children[1:] {
					if e.Kind == parser.KindIdentifier || e.Kind == parser.KindNumber || e.Kind == parser.KindInstr {
						count++
					}
				}
				l.Min = strconv.Itoa(count)
				l.Max = l.Min
			}
		}
	}
	return l
}

func (b *builder) typeInfo(n *parser.Node) *TypeInfo {
	info := &TypeInfo{}
	var visit func(*parser.Node)
	visit = func(c *parser.Node) {
		switch {
		case c.Kind == parser.KindFuncType:
			info.Form = "func"
			info.Params = b.paramsOf(c)
			info.Results = b.resultsOf(c)
		case c.Kind == parser.KindForm && c.Keyword() == "sub":
			for _, cc := range c.Children {
				visit(cc)
			}
		case c.Kind == parser.KindForm && (c.Keyword() == "struct" || c.Keyword() == "array"):
			info.Form = c.Keyword()
			if c.Keyword() == "array" {
				info.Fields = append(info.Fields, b.fieldTypes(c)...)
				return
			}
			for _, f := range c.Children {
				if f.Kind == parser.KindForm && f.Keyword() == "field" {
					info.Fields = append(info.Fields, b.fieldTypes(f)...)
				}
			}
		}
	}
	for _, c := range n.Children {
		visit(c)
	}
	return info
}

func (b *builder) fieldTypes(n *parser.Node) []ValType {
	var out []ValType
	for i, c := range n.Children {
		if i == 0 {
			continue
		}
		switch c.Kind {
		case parser.KindKeyword:
			out = append(out, ValType(c.Text))
		case parser.KindForm, parser.KindGlobalType:
			out = append(out, ValType(b.source(c)))
		}
	}
	return out
}

// signature resolves the type use of a function or tag and returns its
// declared params and results. Inline params win over the referenced type.
func (b *builder) signature(owner *Symbol) ([]Param, []ValType, *Reference) {
	n := owner.Node
	params := b.paramsOf(n)
	results := b.resultsOf(n)
	var ref *Reference
	if tu := n.FirstChildOfKind(parser.KindTypeUse); tu != nil {
		ref = b.typeUseRef(tu, &scope{})
		if ref != nil && ref.Target != nil && ref.Target.Type != nil {
			if len(params) == 0 {
				params = ref.Target.Type.Params
			}
			if len(results) == 0 {
				results = ref.Target.Type.Results
			}
		}
	}
	return params, results, ref
}

func (b *builder) tagSignature(tag *Symbol) {
	params, results, _ := b.signature(tag)
	tag.Type.Params = params
	tag.Type.Results = results
}

// declareLocals fills the local index space of fn: parameters first, then
// locals, each in source order.
func (b *builder) declareLocals(fn *Symbol) {
	n := fn.Node
	info := fn.Func
	_, results, typeUse := b.signature(fn)
	info.Results = results
	info.TypeUse = typeUse

	add := func(sym *Symbol) {
		sym.Scope = fn
		if !info.Locals.append(sym) {
			b.t.Duplicates = append(b.t.Duplicates, sym)
		}
		b.t.addSymbol(sym)
	}

	if decls := n.ChildrenOfKind(parser.KindParam); len(decls) > 0 {
		for _, p := range decls {
			for _, sym := range b.localDecls(p, KindParam) {
				info.Params = append(info.Params, sym)
				add(sym)
			}
		}
	} else if typeUse != nil && typeUse.Target != nil && typeUse.Target.Type != nil {
		// Parameters inherited from the type have no declaration of their own.
		for _, p := range typeUse.Target.Type.Params {
			sym := &Symbol{Kind: KindParam, Value: p.Type, Node: typeUse.Instr, Range: typeUse.Instr.Range()}
			info.Params = append(info.Params, sym)
			add(sym)
		}
	}
	for _, l := range n.ChildrenOfKind(parser.KindLocal) {
		for _, sym := range b.localDecls(l, KindLocal) {
			add(sym)
		}
	}

	body := &Symbol{
		Kind:  KindLabel,
		Node:  n,
		Scope: fn,
		Label: &LabelInfo{Keyword: "func", Results: results, Implicit: true},
	}
	if kw := n.KeywordNode(); kw != nil {
		body.Range = kw.Range()
	} else {
		body.Range = n.Range()
	}
	info.Labels = append(info.Labels, body)
}

// localDecls turns one param or local form into symbols: a named form
// declares exactly one, an anonymous form one per listed type.
func (b *builder) localDecls(n *parser.Node, kind Kind) []*Symbol {
	types := b.valueTypes(n)
	if id := n.ID(); id != nil {
		sym := &Symbol{Kind: kind, Name: id.Text, Range: id.Range(), Node: n}
		if len(types) > 0 {
			sym.Value = ValType(b.source(types[0]))
		}
		return []*Symbol{sym}
	}
	var out []*Symbol
	for _, t := range types {
		out = append(out, &Symbol{Kind: kind, Value: ValType(b.source(t)), Range: t.Range(), Node: n})
	}
	return out
}

func dataInfo(n *parser.Node) *SegmentInfo {
	info := &SegmentInfo{}
	for _, c := range n.ChildrenOfKind(parser.KindString) {
		body := unquote(c.Text)
		info.Content += body
		info.Length += decodedLen(body)
	}
	return info
}

// decodedLen counts the bytes a string literal body stands for: \xx hex
// escapes and \u{...} code points expand, other escapes are one byte.
func decodedLen(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			n++
			continue
		}
		switch c := s[i+1]; {
		case c == 'u' && i+2 < len(s) && s[i+2] == '{':
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				n++
				i++
				continue
			}
			v, err := strconv.ParseUint(s[i+3:i+end], 16, 32)
			if err != nil {
				n++
			} else {
				n += len(string(rune(v)))
			}
			i += end
		case isHex(c) && i+2 < len(s) && isHex(s[i+2]):
			n++
			i += 2
		default:
			n++
			i++
		}
	}
	return n
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func elemInfo(n *parser.Node) *SegmentInfo {
	info := &SegmentInfo{}
	named := n.ID()
	n.Walk(func(c *parser.Node) bool {
		switch {
		case c == n:
			return true
		case c.Kind == parser.KindForm && (c.Keyword() == "table" || c.Keyword() == "ref"):
			return false
		case c.Kind == parser.KindOffset:
			return false
		case c.Kind == parser.KindInstr:
			if c.Keyword() == "ref.func" {
				for _, cc := range c.Children[1:] {
					if isIndex(cc) {
						info.Items = append(info.Items, cc.Text)
					}
				}
			}
			return false
		case isIndex(c) && c != named:
			info.Items = append(info.Items, c.Text)
		}
		return true
	})
	return info
}

// InlineSignature returns the parameters and results written directly in
// n's (param ...) and (result ...) forms, as used by call_indirect.
func (t *Table) InlineSignature(n *parser.Node) ([]Param, []ValType) {
	b := &builder{t: t, text: t.Tree.Text()}
	return b.paramsOf(n), b.resultsOf(n)
}
