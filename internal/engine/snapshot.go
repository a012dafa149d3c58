// Package engine answers position-based queries against one immutable
// parse of a document.
package engine

import (
	"github.com/EmNudge/wat-lsp/internal/docs"
	"github.com/EmNudge/wat-lsp/internal/index"
	"github.com/EmNudge/wat-lsp/internal/parser"
	"github.com/EmNudge/wat-lsp/internal/validator"
)

type Options struct {
	Docs docs.Lookup
	// Expansion enables shorthand completions such as 5i32 and l$x.
	Expansion bool
	// Snippets allows completion items with snippet placeholders.
	Snippets    bool
	Diagnostics validator.Options
}

func DefaultOptions() Options {
	return Options{
		Docs:        docs.Default(),
		Expansion:   true,
		Snippets:    true,
		Diagnostics: validator.DefaultOptions(),
	}
}

// Snapshot owns the tree and symbol table of one document version. Nothing
// in it changes after Parse returns, so queries may run concurrently.
type Snapshot struct {
	Version int32
	Tree    *parser.Tree
	Symbols *index.Table

	opts Options
}

func Parse(text string, version int32, opts Options) *Snapshot {
	tree := parser.Parse(text)
	return &Snapshot{
		Version: version,
		Tree:    tree,
		Symbols: index.Build(tree),
		opts:    opts,
	}
}

func (s *Snapshot) Text() string {
	return s.Tree.Text()
}

func (s *Snapshot) Options() Options {
	return s.opts
}

// Diagnostics collects syntax and resolution problems for the snapshot.
func (s *Snapshot) Diagnostics() []validator.Diagnostic {
	return validator.New(s.Tree, s.Symbols, s.opts.Diagnostics).Validate()
}
