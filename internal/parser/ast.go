package parser

// Position is a zero-based line/column pair. Column counts UTF-16 code
// units, matching what editors send over the wire.
type Position struct {
	Line   int
	Column int
}

func (p Position) Before(o Position) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Column < o.Column
}

// Range is half-open: Start is inclusive, End is exclusive.
type Range struct {
	Start Position
	End   Position
}

func (r Range) Contains(p Position) bool {
	return !p.Before(r.Start) && p.Before(r.End)
}

// Touches is Contains but also accepts a position sitting right at End,
// which is where the cursor rests after typing a token.
func (r Range) Touches(p Position) bool {
	return r.Contains(p) || p == r.End
}

func (r Range) IsEmpty() bool {
	return r.Start == r.End
}

type Kind int

const (
	KindSourceFile Kind = iota
	KindModule
	KindFunc
	KindParam
	KindResult
	KindLocal
	KindTypeUse
	KindType
	KindRec
	KindFuncType
	KindImport
	KindExport
	KindGlobal
	KindGlobalType
	KindMemory
	KindTable
	KindElem
	KindData
	KindStart
	KindTag
	KindOffset
	KindItem
	KindBlock
	KindThen
	KindElse
	KindInstr
	KindForm
	KindKeyword
	KindIdentifier
	KindNumber
	KindString
	KindMemarg
	KindComment
	KindError
)

var kindNames = [...]string{
	KindSourceFile: "source_file",
	KindModule:     "module",
	KindFunc:       "func",
	KindParam:      "param",
	KindResult:     "result",
	KindLocal:      "local",
	KindTypeUse:    "type_use",
	KindType:       "type",
	KindRec:        "rec",
	KindFuncType:   "func_type",
	KindImport:     "import",
	KindExport:     "export",
	KindGlobal:     "global",
	KindGlobalType: "global_type",
	KindMemory:     "memory",
	KindTable:      "table",
	KindElem:       "elem",
	KindData:       "data",
	KindStart:      "start",
	KindTag:        "tag",
	KindOffset:     "offset",
	KindItem:       "item",
	KindBlock:      "block",
	KindThen:       "then",
	KindElse:       "else",
	KindInstr:      "instr",
	KindForm:       "form",
	KindKeyword:    "keyword",
	KindIdentifier: "identifier",
	KindNumber:     "number",
	KindString:     "string",
	KindMemarg:     "memarg",
	KindComment:    "comment",
	KindError:      "error",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

func kindByName(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// IsField reports whether nodes of this kind are module fields.
func (k Kind) IsField() bool {
	switch k {
	case KindFunc, KindType, KindRec, KindImport, KindExport, KindGlobal,
		KindMemory, KindTable, KindElem, KindData, KindStart, KindTag:
		return true
	}
	return false
}

// Node is one element of the concrete syntax tree. Leaves carry their
// source text; list nodes carry their children, starting with the head
// keyword.
type Node struct {
	Kind      Kind
	Text      string
	Message   string // error nodes only
	Start     Position
	End       Position
	StartByte int
	EndByte   int
	Folded    bool // written in parenthesised form
	Missing   bool // zero-width node standing in for absent syntax
	Parent    *Node
	Children  []*Node
}

func (n *Node) Range() Range {
	return Range{Start: n.Start, End: n.End}
}

func (n *Node) IsError() bool {
	return n.Kind == KindError
}

func (n *Node) IsLeaf() bool {
	switch n.Kind {
	case KindKeyword, KindIdentifier, KindNumber, KindString, KindMemarg, KindComment:
		return true
	case KindError:
		return len(n.Children) == 0
	}
	return false
}

func (n *Node) add(child *Node) {
	child.Parent = n
	n.Children = append(n.Children, child)
	if child.EndByte > n.EndByte || n.EndByte == 0 {
		n.End = child.End
		n.EndByte = child.EndByte
	}
}

// KeywordNode returns the head keyword of a list or instruction node.
func (n *Node) KeywordNode() *Node {
	if len(n.Children) > 0 && n.Children[0].Kind == KindKeyword {
		return n.Children[0]
	}
	return nil
}

func (n *Node) Keyword() string {
	if k := n.KeywordNode(); k != nil {
		return k.Text
	}
	return ""
}

// ID returns the identifier that names the node, if it has one. Only an
// identifier directly following the head keyword counts.
func (n *Node) ID() *Node {
	if len(n.Children) > 1 && n.Children[0].Kind == KindKeyword && n.Children[1].Kind == KindIdentifier {
		return n.Children[1]
	}
	return nil
}

func (n *Node) ChildrenOfKind(kinds ...Kind) []*Node {
	var out []*Node
	for _, c := range n.Children {
		for _, k := range kinds {
			if c.Kind == k {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func (n *Node) FirstChildOfKind(k Kind) *Node {
	for _, c := range n.Children {
		if c.Kind == k {
			return c
		}
	}
	return nil
}

// Ancestor returns the closest strict ancestor whose kind is one of kinds.
func (n *Node) Ancestor(kinds ...Kind) *Node {
	for p := n.Parent; p != nil; p = p.Parent {
		for _, k := range kinds {
			if p.Kind == k {
				return p
			}
		}
	}
	return nil
}

// Walk visits n and its descendants depth-first. Returning false from fn
// skips the children of the visited node.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}
