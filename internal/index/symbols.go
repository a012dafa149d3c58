package index

import (
	"strconv"

	"github.com/EmNudge/wat-lsp/internal/parser"
)

type Kind int

const (
	KindFunction Kind = iota
	KindGlobal
	KindMemory
	KindTable
	KindType
	KindData
	KindElem
	KindTag
	KindParam
	KindLocal
	KindLabel
)

// ModuleKinds are the kinds with a module-wide index space.
var ModuleKinds = []Kind{KindFunction, KindGlobal, KindMemory, KindTable, KindType, KindData, KindElem, KindTag}

func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindGlobal:
		return "global"
	case KindMemory:
		return "memory"
	case KindTable:
		return "table"
	case KindType:
		return "type"
	case KindData:
		return "data segment"
	case KindElem:
		return "element segment"
	case KindTag:
		return "tag"
	case KindParam:
		return "parameter"
	case KindLocal:
		return "local"
	case KindLabel:
		return "label"
	}
	return "symbol"
}

// Keyword is the field keyword that declares symbols of this kind.
func (k Kind) Keyword() string {
	switch k {
	case KindFunction:
		return "func"
	case KindGlobal:
		return "global"
	case KindMemory:
		return "memory"
	case KindTable:
		return "table"
	case KindType:
		return "type"
	case KindData:
		return "data"
	case KindElem:
		return "elem"
	case KindTag:
		return "tag"
	case KindParam:
		return "param"
	case KindLocal:
		return "local"
	}
	return "block"
}

// ValType is the source spelling of a value type, e.g. "i32" or "(ref null $t)".
type ValType string

// Symbol is one named or numbered entity. Kind selects which of the
// kind-specific fields is populated.
type Symbol struct {
	Kind      Kind
	Name      string // includes the leading '$'; empty when unnamed
	Index     int    // ordinal within its index space
	Range     parser.Range
	Node      *parser.Node // declaring node
	Scope     *Symbol      // owning function of params, locals and labels
	Imported  bool
	Duplicate bool

	Func   *FuncInfo   // KindFunction
	Global *GlobalInfo // KindGlobal
	Limits *Limits     // KindMemory, KindTable
	Type   *TypeInfo   // KindType, KindTag
	Value  ValType     // KindParam, KindLocal
	Label  *LabelInfo  // KindLabel

	Segment *SegmentInfo // KindData, KindElem
}

// DisplayName is the name when present, otherwise the ordinal.
func (s *Symbol) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return strconv.Itoa(s.Index)
}

type Param struct {
	Name string
	Type ValType
}

type FuncInfo struct {
	Params  []*Symbol
	Results []ValType
	// Locals is the local index space: parameters first, then declared locals.
	Locals *Space
	// Labels holds every label of the body in source order. The first one is
	// the implicit label of the function body itself.
	Labels  []*Symbol
	TypeUse *Reference
	Exports []string
	Import  *ImportInfo
}

type ImportInfo struct {
	Module string
	Name   string
}

type GlobalInfo struct {
	Type    ValType
	Mutable bool
	Init    string
	Exports []string
	Import  *ImportInfo
}

type Limits struct {
	Min     string
	Max     string
	RefType ValType // tables only
	Exports []string
	Import  *ImportInfo
}

type TypeInfo struct {
	Form    string // func, struct, array
	Params  []Param
	Results []ValType
	Fields  []ValType
}

type LabelInfo struct {
	Keyword  string // block, loop, if, try_table or func for the body label
	Params   []ValType
	Results  []ValType
	Depth    int // nesting depth, the body label sits at 0
	Implicit bool
}

type SegmentInfo struct {
	Content string   // data: concatenated string literals as written
	Length  int      // data: size in bytes once escapes are decoded
	Items   []string // elem: function references in order
}

// Space is one ordinal sequence of symbols.
type Space struct {
	Kind    Kind
	Symbols []*Symbol
	byName  map[string]*Symbol
}

func newSpace(kind Kind) *Space {
	return &Space{Kind: kind, byName: make(map[string]*Symbol)}
}

func (s *Space) Len() int {
	return len(s.Symbols)
}

func (s *Space) At(i int) *Symbol {
	if i < 0 || i >= len(s.Symbols) {
		return nil
	}
	return s.Symbols[i]
}

// Lookup returns the canonical (first declared) symbol named name.
func (s *Space) Lookup(name string) *Symbol {
	return s.byName[name]
}

// append assigns the next ordinal. It reports false when sym's name was
// already taken, in which case sym is kept but marked as a duplicate.
func (s *Space) append(sym *Symbol) bool {
	sym.Index = len(s.Symbols)
	s.Symbols = append(s.Symbols, sym)
	if sym.Name == "" {
		return true
	}
	if _, ok := s.byName[sym.Name]; ok {
		sym.Duplicate = true
		return false
	}
	s.byName[sym.Name] = sym
	return true
}
