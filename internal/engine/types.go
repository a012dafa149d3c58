package engine

import (
	"errors"
	"fmt"

	"github.com/EmNudge/wat-lsp/internal/index"
	"github.com/EmNudge/wat-lsp/internal/parser"
)

var (
	ErrNoSymbol      = errors.New("no symbol at this position")
	ErrUnnamedSymbol = errors.New("symbol has no name to rename; give it a $name first")
	ErrInvalidName   = errors.New("invalid identifier")
)

// RenameConflictError is returned when the new name is already taken in
// the renamed symbol's index space or scope.
type RenameConflictError struct {
	Name     string
	Existing *index.Symbol
}

func (e *RenameConflictError) Error() string {
	return fmt.Sprintf("%s '%s' already exists", e.Existing.Kind, e.Name)
}

type Hover struct {
	Contents string // markdown
	Range    parser.Range
}

type TextEdit struct {
	Range   parser.Range
	NewText string
}

type ParameterInfo struct {
	Label string
}

type SignatureInfo struct {
	Label         string
	Documentation string
	Parameters    []ParameterInfo
}

type SignatureHelp struct {
	Signatures      []SignatureInfo
	ActiveSignature int
	ActiveParameter int
}

type CompletionKind int

const (
	CompletionKeyword CompletionKind = iota
	CompletionFunction
	CompletionVariable
	CompletionConstant
	CompletionSnippet
	CompletionOperator
	CompletionType
	CompletionModule
	CompletionEvent
	CompletionReference
	CompletionStruct
)

type CompletionItem struct {
	Label         string
	Kind          CompletionKind
	Detail        string
	Documentation string
	// InsertText is used when TextEdit is nil.
	InsertText string
	TextEdit   *TextEdit
	// Snippet marks InsertText or TextEdit.NewText as snippet syntax.
	Snippet  bool
	SortText string
}

type SymbolKind int

const (
	SymbolFunction SymbolKind = iota
	SymbolVariable
	SymbolConstant
	SymbolArray
	SymbolClass
	SymbolStruct
	SymbolEvent
	SymbolKey
	SymbolModule
)

// DocumentSymbol is one outline entry.
type DocumentSymbol struct {
	Name           string
	Detail         string
	Kind           SymbolKind
	Range          parser.Range
	SelectionRange parser.Range
	Children       []DocumentSymbol
}
