package index

import (
	"strconv"
	"strings"

	"github.com/EmNudge/wat-lsp/internal/instr"
	"github.com/EmNudge/wat-lsp/internal/parser"
)

func isInstr(n *parser.Node) bool {
	return n.Kind == parser.KindInstr || n.Kind == parser.KindBlock
}

func isIndex(n *parser.Node) bool {
	return n.Kind == parser.KindIdentifier || n.Kind == parser.KindNumber
}

func (b *builder) walkField(f *parser.Node) {
	switch f.Kind {
	case parser.KindImport:
		for _, c := range f.Children {
			if c.Kind == parser.KindGlobal || c.Kind == parser.KindTable {
				b.walkField(c)
			} else if c.Kind == parser.KindFunc || c.Kind == parser.KindTag {
				b.walkTypeRefs(c, true)
			}
		}
	case parser.KindFunc:
		fn := b.t.Declaration(f)
		b.walkTypeRefs(f, true)
		if fn == nil || fn.Imported {
			return
		}
		sc := &scope{fn: fn, labels: []*Symbol{fn.Func.Labels[0]}}
		for _, c := range f.Children {
			if isInstr(c) {
				b.walkInstr(c, sc)
			}
		}
	case parser.KindGlobal:
		b.walkTypeRefs(f, false)
		b.walkConst(f)
	case parser.KindTag:
		b.walkTypeRefs(f, true)
	case parser.KindType:
		b.walkTypeRefs(f, false)
	case parser.KindExport:
		for _, c := range f.ChildrenOfKind(parser.KindForm) {
			b.exportRef(c, f)
		}
	case parser.KindStart:
		for _, c := range f.Children {
			if isIndex(c) {
				b.moduleRef(c, KindFunction, f, nil)
			}
		}
	case parser.KindTable:
		b.walkTypeRefs(f, false)
		for _, c := range f.Children {
			switch {
			case c.Kind == parser.KindForm && c.Keyword() == "elem":
				b.walkElemList(c)
			case isInstr(c):
				b.walkInstr(c, &scope{})
			}
		}
	case parser.KindElem:
		b.walkSegment(f, KindTable)
	case parser.KindData:
		b.walkSegment(f, KindMemory)
	}
}

// walkConst walks the constant expression children of f.
func (b *builder) walkConst(f *parser.Node) {
	for _, c := range f.Children {
		if isInstr(c) {
			b.walkInstr(c, &scope{})
		}
	}
}

func (b *builder) exportRef(desc, owner *parser.Node) {
	var kind Kind
	switch desc.Keyword() {
	case "func":
		kind = KindFunction
	case "global":
		kind = KindGlobal
	case "memory":
		kind = KindMemory
	case "table":
		kind = KindTable
	case "tag":
		kind = KindTag
	default:
		return
	}
	for _, c := range desc.Children {
		if isIndex(c) {
			b.moduleRef(c, kind, owner, nil)
		}
	}
}

// walkSegment handles elem and data fields. target is the space named by
// their (table ...) or (memory ...) clause.
func (b *builder) walkSegment(f *parser.Node, target Kind) {
	named := f.ID()
	for _, c := range f.Children {
		switch {
		case c.Kind == parser.KindForm && (c.Keyword() == "table" || c.Keyword() == "memory"):
			for _, cc := range c.Children {
				if isIndex(cc) {
					b.moduleRef(cc, target, f, nil)
				}
			}
		case c.Kind == parser.KindForm && c.Keyword() == "ref":
			b.refForm(c)
		case c.Kind == parser.KindOffset || c.Kind == parser.KindItem:
			b.walkConst(c)
		case isInstr(c):
			b.walkInstr(c, &scope{})
		case isIndex(c) && c != named && target == KindTable:
			// Function indices listed directly in an element segment.
			b.moduleRef(c, KindFunction, f, nil)
		}
	}
}

func (b *builder) walkElemList(list *parser.Node) {
	for _, c := range list.Children {
		switch {
		case isIndex(c):
			b.moduleRef(c, KindFunction, list, nil)
		case isInstr(c):
			b.walkInstr(c, &scope{})
		case c.Kind == parser.KindItem:
			b.walkConst(c)
		}
	}
}

// walkTypeRefs records type references made by value types such as
// (ref $t) and by type uses below n. Instruction bodies are skipped; they
// are walked with their label scope instead. A type use directly on n is
// skipped when headerDone is set because its signature pass recorded it.
func (b *builder) walkTypeRefs(n *parser.Node, headerDone bool) {
	for _, c := range n.Children {
		switch c.Kind {
		case parser.KindInstr, parser.KindBlock:
			continue
		case parser.KindTypeUse:
			if !headerDone {
				b.typeUseRef(c, &scope{})
			}
			continue
		case parser.KindForm:
			if c.Keyword() == "ref" {
				b.refForm(c)
				continue
			}
		}
		if !c.IsLeaf() {
			b.walkTypeRefs(c, false)
		}
	}
}

// refForm records the type index of a (ref null? $t) value type.
func (b *builder) refForm(c *parser.Node) {
	for _, cc := range c.Children {
		if isIndex(cc) {
			b.moduleRef(cc, KindType, c, nil)
		}
	}
}

// typeUseRef resolves (type $t) against the type space.
func (b *builder) typeUseRef(tu *parser.Node, sc *scope) *Reference {
	var ref *Reference
	for _, c := range tu.Children {
		if isIndex(c) && ref == nil {
			ref = b.moduleRef(c, KindType, tu, sc.fn)
		}
	}
	b.walkTypeRefs(tu, false)
	if ref != nil {
		ref.Instr = tu
	}
	return ref
}

func (b *builder) walkInstr(n *parser.Node, sc *scope) {
	switch n.Kind {
	case parser.KindBlock:
		b.walkBlock(n, sc)
	case parser.KindInstr:
		b.instrRefs(n, sc)
		for _, c := range n.Children {
			switch c.Kind {
			case parser.KindTypeUse:
				b.typeUseRef(c, sc)
			case parser.KindParam, parser.KindResult:
				b.walkTypeRefs(c, false)
			case parser.KindForm:
				if c.Keyword() == "ref" {
					b.refForm(c)
				}
			case parser.KindInstr, parser.KindBlock:
				b.walkInstr(c, sc)
			}
		}
	}
}

func (b *builder) instrRefs(n *parser.Node, sc *scope) {
	info, ok := instr.Lookup(n.Keyword())
	if !ok {
		return
	}
	var imms []*parser.Node
	for _, c := range n.Children[1:] {
		if isIndex(c) {
			imms = append(imms, c)
		}
	}
	for i, imm := range info.Bind(len(imms)) {
		leaf := imms[i]
		switch imm {
		case instr.ImmNone:
		case instr.ImmLocal:
			b.localRef(leaf, n, sc)
		case instr.ImmLabel:
			b.labelRef(leaf, n, sc)
		default:
			b.moduleRef(leaf, spaceOf(imm), n, sc.fn)
		}
	}
}

func spaceOf(imm instr.Imm) Kind {
	switch imm {
	case instr.ImmFunc:
		return KindFunction
	case instr.ImmTable:
		return KindTable
	case instr.ImmMemory:
		return KindMemory
	case instr.ImmGlobal:
		return KindGlobal
	case instr.ImmType:
		return KindType
	case instr.ImmData:
		return KindData
	case instr.ImmElem:
		return KindElem
	case instr.ImmTag:
		return KindTag
	case instr.ImmLabel:
		return KindLabel
	}
	return KindLocal
}

func (b *builder) walkBlock(n *parser.Node, sc *scope) {
	keyword := n.Keyword()
	foldedIf := n.Folded && keyword == "if"

	for _, c := range n.Children {
		switch c.Kind {
		case parser.KindTypeUse:
			b.typeUseRef(c, sc)
		case parser.KindParam, parser.KindResult:
			b.walkTypeRefs(c, false)
		case parser.KindForm:
			// try_table catch clauses branch to labels outside the block.
			b.catchRefs(c, sc)
		case parser.KindInstr, parser.KindBlock:
			// The condition of a folded if runs before the label exists.
			if foldedIf {
				b.walkInstr(c, sc)
			}
		}
	}

	label := b.declareLabel(n, sc)
	sc.labels = append(sc.labels, label)
	for _, c := range n.Children {
		switch c.Kind {
		case parser.KindInstr, parser.KindBlock:
			if !foldedIf {
				b.walkInstr(c, sc)
			}
		case parser.KindThen, parser.KindElse:
			for i, cc := range c.Children {
				switch {
				case isInstr(cc):
					b.walkInstr(cc, sc)
				case i == 1 && cc.Kind == parser.KindIdentifier:
					b.labelEcho(cc, n, label, sc)
				}
			}
		case parser.KindIdentifier:
			if c != n.ID() {
				b.labelEcho(c, n, label, sc)
			}
		}
	}
	sc.labels = sc.labels[:len(sc.labels)-1]
}

func (b *builder) catchRefs(c *parser.Node, sc *scope) {
	var idx []*parser.Node
	for _, cc := range c.Children {
		if isIndex(cc) {
			idx = append(idx, cc)
		}
	}
	switch c.Keyword() {
	case "catch", "catch_ref":
		if len(idx) > 0 {
			b.moduleRef(idx[0], KindTag, c, sc.fn)
			idx = idx[1:]
		}
	case "catch_all", "catch_all_ref":
	default:
		return
	}
	if len(idx) > 0 {
		b.labelRef(idx[0], c, sc)
	}
}

func (b *builder) declareLabel(n *parser.Node, sc *scope) *Symbol {
	label := &Symbol{
		Kind:  KindLabel,
		Node:  n,
		Scope: sc.fn,
		Label: &LabelInfo{
			Keyword: n.Keyword(),
			Depth:   len(sc.labels),
		},
	}
	label.Name, label.Range = nameOf(n)
	for _, c := range n.Children {
		switch c.Kind {
		case parser.KindParam:
			label.Label.Params = append(label.Label.Params, b.types(c)...)
		case parser.KindResult:
			label.Label.Results = append(label.Label.Results, b.types(c)...)
		}
	}
	if sc.fn != nil {
		label.Index = len(sc.fn.Func.Labels)
		sc.fn.Func.Labels = append(sc.fn.Func.Labels, label)
	}
	b.t.addSymbol(label)
	return label
}

// labelEcho records the optional label repeated after else or end. It must
// name the block it closes.
func (b *builder) labelEcho(leaf, block *parser.Node, label *Symbol, sc *scope) {
	ref := &Reference{
		Name:  leaf.Text,
		Node:  leaf,
		Kind:  KindLabel,
		Scope: sc.fn,
		Instr: block,
		Depth: len(sc.labels),
	}
	if label.Name != "" && label.Name == leaf.Text {
		ref.Target = label
	} else {
		ref.Reason = ReasonLabelMismatch
	}
	b.t.addReference(ref)
}

// ParseIndex parses a numeric index literal.
func ParseIndex(text string) (int, bool) {
	text = strings.ReplaceAll(text, "_", "")
	var (
		v   uint64
		err error
	)
	if strings.HasPrefix(text, "0x") {
		v, err = strconv.ParseUint(text[2:], 16, 32)
	} else {
		v, err = strconv.ParseUint(text, 10, 32)
	}
	if err != nil {
		return 0, false
	}
	return int(v), true
}

func (b *builder) newRef(leaf, owner *parser.Node, kind Kind, fn *Symbol) *Reference {
	return &Reference{
		Name:    leaf.Text,
		Node:    leaf,
		Kind:    kind,
		Scope:   fn,
		Instr:   owner,
		Numeric: leaf.Kind == parser.KindNumber,
	}
}

func (b *builder) moduleRef(leaf *parser.Node, kind Kind, owner *parser.Node, fn *Symbol) *Reference {
	ref := b.newRef(leaf, owner, kind, fn)
	space := b.t.Spaces[kind]
	if ref.Numeric {
		if i, ok := ParseIndex(leaf.Text); ok && space.At(i) != nil {
			ref.Target = space.At(i)
		} else {
			ref.Reason = ReasonOutOfBounds
		}
	} else if s := space.Lookup(leaf.Text); s != nil {
		ref.Target = s
	} else {
		ref.Reason = ReasonUnknownName
	}
	b.t.addReference(ref)
	return ref
}

func (b *builder) localRef(leaf, owner *parser.Node, sc *scope) {
	ref := b.newRef(leaf, owner, KindLocal, sc.fn)
	defer b.t.addReference(ref)
	if sc.fn == nil {
		ref.Reason = ReasonWrongScope
		return
	}
	locals := sc.fn.Func.Locals
	if ref.Numeric {
		if i, ok := ParseIndex(leaf.Text); ok && locals.At(i) != nil {
			ref.Target = locals.At(i)
		} else {
			ref.Reason = ReasonOutOfBounds
		}
		return
	}
	if s := locals.Lookup(leaf.Text); s != nil {
		ref.Target = s
		return
	}
	ref.Reason = ReasonUnknownName
	for _, fn := range b.t.Functions() {
		if fn != sc.fn && fn.Func.Locals.Lookup(leaf.Text) != nil {
			ref.Reason = ReasonWrongScope
			break
		}
	}
}

// labelRef resolves a branch target against the label stack as it is at
// this very instruction. Depth 0 is the innermost enclosing block.
func (b *builder) labelRef(leaf, owner *parser.Node, sc *scope) {
	ref := b.newRef(leaf, owner, KindLabel, sc.fn)
	ref.Depth = len(sc.labels)
	defer b.t.addReference(ref)
	if sc.fn == nil {
		ref.Reason = ReasonWrongScope
		return
	}
	if ref.Numeric {
		d, ok := ParseIndex(leaf.Text)
		if !ok || d >= len(sc.labels) {
			ref.Reason = ReasonOutOfBounds
			return
		}
		ref.Target = sc.labels[len(sc.labels)-1-d]
		return
	}
	for i := len(sc.labels) - 1; i >= 0; i-- {
		if sc.labels[i].Name == leaf.Text {
			ref.Target = sc.labels[i]
			return
		}
	}
	ref.Reason = ReasonUnknownName
	sc.fn.Node.Walk(func(n *parser.Node) bool {
		if n.Kind == parser.KindBlock {
			if id := n.ID(); id != nil && id.Text == leaf.Text {
				ref.Reason = ReasonWrongScope
				return false
			}
		}
		return ref.Reason == ReasonUnknownName
	})
}
