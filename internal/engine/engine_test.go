package engine

import (
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmNudge/wat-lsp/internal/index"
	"github.com/EmNudge/wat-lsp/internal/parser"
)

func parse(t *testing.T, src string) *Snapshot {
	t.Helper()
	return Parse(src, 1, DefaultOptions())
}

// at returns the position of the n-th (0-based) occurrence of marker,
// shifted by offset columns.
func at(t *testing.T, src, marker string, n, offset int) parser.Position {
	t.Helper()
	idx := -1
	from := 0
	for i := 0; i <= n; i++ {
		j := strings.Index(src[from:], marker)
		require.GreaterOrEqual(t, j, 0, "marker %q #%d not found", marker, n)
		idx = from + j
		from = idx + 1
	}
	idx += offset
	line := strings.Count(src[:idx], "\n")
	col := idx - (strings.LastIndex(src[:idx], "\n") + 1)
	return parser.Position{Line: line, Column: col}
}

func applyEdits(t *testing.T, s *Snapshot, edits []TextEdit) string {
	t.Helper()
	sorted := append([]TextEdit(nil), edits...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[j].Range.Start.Before(sorted[i].Range.Start)
	})
	text := s.Text()
	for _, e := range sorted {
		start, end := s.Tree.Offset(e.Range.Start), s.Tree.Offset(e.Range.End)
		text = text[:start] + e.NewText + text[end:]
	}
	return text
}

func labels(items []CompletionItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Label
	}
	return out
}

const addModule = `(module
  ;; Adds two numbers.
  (func $add (param $a i32) (param $b i32) (result i32)
    (i32.add (local.get $a) (local.get 1)))
  (global $counter (mut i32) (i32.const 0))
  (func $main (export "main") (result i32)
    (call $add (i32.const 1) (i32.const 2))))`

func TestSignatureHelp(t *testing.T) {
	s := parse(t, addModule)

	tests := []struct {
		name   string
		pos    parser.Position
		active int
	}{
		{"on callee", at(t, addModule, "$add (i32", 0, 2), 0},
		{"inside first argument", at(t, addModule, "(i32.const 1)", 0, 5), 0},
		{"between arguments", at(t, addModule, " (i32.const 2)", 0, 0), 1},
		{"at second argument", at(t, addModule, "(i32.const 2)", 0, 0), 1},
		{"before closing paren", at(t, addModule, "(i32.const 2))", 0, len("(i32.const 2)")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			help := s.SignatureHelp(tt.pos)
			require.NotNil(t, help)
			require.Len(t, help.Signatures, 1)
			sig := help.Signatures[0]
			assert.Equal(t, "(func $add (param $a i32) (param $b i32) (result i32))", sig.Label)
			assert.Equal(t, []ParameterInfo{{"(param $a i32)"}, {"(param $b i32)"}}, sig.Parameters)
			assert.Equal(t, "Adds two numbers.", sig.Documentation)
			assert.Equal(t, tt.active, help.ActiveParameter)
		})
	}

	assert.Nil(t, s.SignatureHelp(at(t, addModule, "(i32.add", 0, 3)), "not a call")
}

func TestSignatureHelpUnclosedCall(t *testing.T) {
	src := "(module (func $f (param i32)) (func (call $f "
	s := parse(t, src)
	help := s.SignatureHelp(at(t, src, "(call $f ", 0, len("(call $f ")))
	require.NotNil(t, help)
	assert.Equal(t, "(func $f (param i32))", help.Signatures[0].Label)
	assert.Equal(t, 0, help.ActiveParameter)
}

func TestSignatureHelpIndirect(t *testing.T) {
	src := `(module
  (type $bin (func (param i32 i32) (result i32)))
  (table 1 funcref)
  (func (result i32)
    (call_indirect (type $bin) (i32.const 1) (i32.const 2) (i32.const 0))))`
	s := parse(t, src)
	help := s.SignatureHelp(at(t, src, "(i32.const 0)", 0, 1))
	require.NotNil(t, help)
	sig := help.Signatures[0]
	assert.Equal(t, "(call_indirect (type $bin) (param i32) (param i32) (param i32) (result i32))", sig.Label)
	assert.Len(t, sig.Parameters, 3)
	assert.Equal(t, 2, help.ActiveParameter)
}

func TestSignatureHelpUnresolvedCallee(t *testing.T) {
	src := `(module (func (call $missing (i32.const 1))))`
	s := parse(t, src)
	assert.Nil(t, s.SignatureHelp(at(t, src, "(i32.const", 0, 1)))
}

func TestHover(t *testing.T) {
	s := parse(t, addModule)

	t.Run("function reference", func(t *testing.T) {
		h := s.Hover(at(t, addModule, "$add (i32", 0, 1))
		require.NotNil(t, h)
		assert.Contains(t, h.Contents, "```wat\n(func $add (param $a i32) (param $b i32) (result i32))\n```")
		assert.Contains(t, h.Contents, "Function index 0")
		assert.Contains(t, h.Contents, "Adds two numbers.")
		assert.Equal(t, at(t, addModule, "$add (i32", 0, 0), h.Range.Start)
	})

	t.Run("numeric local", func(t *testing.T) {
		h := s.Hover(at(t, addModule, "(local.get 1)", 0, 11))
		require.NotNil(t, h)
		assert.Contains(t, h.Contents, "(param $b i32)")
		assert.Contains(t, h.Contents, "Parameter index 1")
	})

	t.Run("declaration", func(t *testing.T) {
		h := s.Hover(at(t, addModule, "$counter", 0, 2))
		require.NotNil(t, h)
		assert.Contains(t, h.Contents, "(global $counter (mut i32))")
		assert.Contains(t, h.Contents, "Initial value: `(i32.const 0)`")
		assert.Contains(t, h.Contents, "Global index 0")
	})

	t.Run("export", func(t *testing.T) {
		h := s.Hover(at(t, addModule, "$main", 0, 1))
		require.NotNil(t, h)
		assert.Contains(t, h.Contents, "Exported as `main`")
	})

	t.Run("instruction", func(t *testing.T) {
		h := s.Hover(at(t, addModule, "i32.add", 0, 2))
		require.NotNil(t, h)
		assert.Contains(t, h.Contents, "```wat\ni32.add\n```")
		assert.Contains(t, h.Contents, "**Signature:** `[i32 i32] -> [i32]`")
	})

	t.Run("comment", func(t *testing.T) {
		assert.Nil(t, s.Hover(at(t, addModule, "Adds two", 0, 2)))
	})
}

func TestHoverUnresolved(t *testing.T) {
	src := `(module (func (call $nope)))`
	s := parse(t, src)
	assert.Nil(t, s.Hover(at(t, src, "$nope", 0, 1)))
}

func TestHoverLabelDepth(t *testing.T) {
	src := `(module
  (func
    (block $a
      (block $b
        (br 1)))))`
	s := parse(t, src)
	h := s.Hover(at(t, src, "(br 1)", 0, 4))
	require.NotNil(t, h)
	assert.Contains(t, h.Contents, "(block $a)")
	assert.Contains(t, h.Contents, "Defined at line 3")
	assert.Contains(t, h.Contents, "Relative depth: 1")
}

func TestDefinition(t *testing.T) {
	src := `(module
  (func
    (block $a
      (block $b
        (br 1)))))`
	s := parse(t, src)

	r, ok := s.Definition(at(t, src, "(br 1)", 0, 4))
	require.True(t, ok)
	assert.Equal(t, at(t, src, "$a", 0, 0), r.Start)

	// A declaration is its own definition.
	again, ok := s.Definition(r.Start)
	require.True(t, ok)
	assert.Equal(t, r, again)
}

func TestDefinitionOutOfBounds(t *testing.T) {
	src := `(module (func (param i32) (local i32 i32)
  (drop (local.get 5))))`
	s := parse(t, src)
	_, ok := s.Definition(at(t, src, "5", 0, 0))
	assert.False(t, ok)
}

func TestDefinitionIsFixedPoint(t *testing.T) {
	s := parse(t, addModule)
	for _, ref := range s.Symbols.References {
		if !ref.Resolved() {
			continue
		}
		r, ok := s.Definition(ref.Range().Start)
		require.True(t, ok, ref.Name)
		again, ok := s.Definition(r.Start)
		require.True(t, ok, ref.Name)
		assert.Equal(t, r, again, ref.Name)
	}
}

func TestReferences(t *testing.T) {
	src := `(module
  (func $helper)
  (func $helper)
  (func
    (call $helper)
    (call 0)
    (call 1)))`
	s := parse(t, src)

	refs := s.References(at(t, src, "(call $helper)", 0, 7), true)
	assert.Equal(t, []parser.Range{
		{Start: at(t, src, "$helper", 0, 0), End: at(t, src, "$helper", 0, 7)},
		{Start: at(t, src, "$helper", 2, 0), End: at(t, src, "$helper", 2, 7)},
		{Start: at(t, src, "(call 0)", 0, 6), End: at(t, src, "(call 0)", 0, 7)},
	}, refs)

	second := s.References(at(t, src, "$helper", 1, 1), false)
	assert.Equal(t, []parser.Range{
		{Start: at(t, src, "(call 1)", 0, 6), End: at(t, src, "(call 1)", 0, 7)},
	}, second)

	assert.Nil(t, s.References(at(t, src, "module", 0, 1), true))
}

func TestRename(t *testing.T) {
	s := parse(t, addModule)

	edits, err := s.Rename(at(t, addModule, "(local.get $a)", 0, 12), "first")
	require.NoError(t, err)
	require.Len(t, edits, 2, "numeric references are left alone")
	for _, e := range edits {
		assert.Equal(t, "$first", e.NewText)
	}

	renamed := applyEdits(t, s, edits)
	assert.Contains(t, renamed, "(param $first i32)")
	assert.Contains(t, renamed, "(local.get $first)")
	assert.Contains(t, renamed, "(local.get 1)")

	// Renaming back restores the original text.
	s2 := Parse(renamed, 2, DefaultOptions())
	back, err := s2.Rename(at(t, renamed, "$first", 0, 1), "$a")
	require.NoError(t, err)
	assert.Equal(t, addModule, applyEdits(t, s2, back))
}

func TestRenameLabel(t *testing.T) {
	src := `(module (func
  block $l
    br $l
  end $l))`
	s := parse(t, src)
	edits, err := s.Rename(at(t, src, "br $l", 0, 4), "$done")
	require.NoError(t, err)
	assert.Len(t, edits, 3)
	assert.Equal(t, strings.ReplaceAll(src, "$l", "$done"), applyEdits(t, s, edits))
}

func TestRenameErrors(t *testing.T) {
	src := `(module
  (func $a (param $x i32) (param $y i32))
  (func $b)
  (func (call 0)))`
	s := parse(t, src)

	_, err := s.Rename(at(t, src, "$a", 0, 1), "$b")
	var conflict *RenameConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "$b", conflict.Existing.Name)
	assert.Equal(t, "function '$b' already exists", err.Error())

	_, err = s.Rename(at(t, src, "$x", 0, 1), "y")
	require.True(t, errors.As(err, &conflict))

	_, err = s.Rename(at(t, src, "$a", 0, 1), "not valid")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = s.Rename(at(t, src, "(func (call", 0, 2), "$c")
	assert.ErrorIs(t, err, ErrUnnamedSymbol)

	_, err = s.Rename(at(t, src, "module", 0, 2), "$c")
	assert.ErrorIs(t, err, ErrNoSymbol)

	edits, err := s.Rename(at(t, src, "$a", 0, 1), "$a")
	require.NoError(t, err, "renaming to the current name is allowed")
	assert.Equal(t, src, applyEdits(t, s, edits))
}

func TestPrepareRename(t *testing.T) {
	src := `(module (func $f) (func (call 0) (call $f)))`
	s := parse(t, src)

	r, name, err := s.PrepareRename(at(t, src, "(call $f)", 0, 7))
	require.NoError(t, err)
	assert.Equal(t, "$f", name)
	assert.Equal(t, at(t, src, "(call $f)", 0, 6), r.Start)

	_, name, err = s.PrepareRename(at(t, src, "(call 0)", 0, 6))
	require.NoError(t, err)
	assert.Equal(t, "$f", name)
}

func TestExpand(t *testing.T) {
	tests := []struct {
		in, out string
		ok      bool
	}{
		{"5i32", "(i32.const 5)", true},
		{"1_000i64", "(i64.const 1000)", true},
		{"1.5f32", "(f32.const 1.5)", true},
		{"-2f64", "(f64.const -2)", true},
		{"1.5i32", "", false},
		{"l$x", "(local.get $x)", true},
		{"l=$x", "(local.set $x)", true},
		{"g$count", "(global.get $count)", true},
		{"g=$count", "(global.set $count)", true},
		{"l$", "", false},
		{"i32", "", false},
		{"local", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			out, ok := Expand(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.out, out)
		})
	}
}

func TestCompletionNumberExpansion(t *testing.T) {
	src := "(module\n  (func (result i32)\n    5i32))"
	s := parse(t, src)
	items := s.Completion(at(t, src, "5i32", 0, 4))
	require.Len(t, items, 1)
	require.NotNil(t, items[0].TextEdit)
	assert.Equal(t, "(i32.const 5)", items[0].TextEdit.NewText)
	assert.Equal(t, at(t, src, "5i32", 0, 0), items[0].TextEdit.Range.Start)

	expanded := Parse(applyEdits(t, s, []TextEdit{*items[0].TextEdit}), 2, DefaultOptions())
	handWritten := parse(t, "(module\n  (func (result i32)\n    (i32.const 5)))")
	assert.Equal(t, handWritten.Text(), expanded.Text())
	assert.Empty(t, expanded.Tree.Errors)

	var consts []*parser.Node
	expanded.Tree.Walk(func(n *parser.Node) bool {
		if n.Kind == parser.KindInstr && n.Keyword() == "i32.const" {
			consts = append(consts, n)
		}
		return true
	})
	require.Len(t, consts, 1)
	assert.True(t, consts[0].Folded)
	assert.Equal(t, "5", consts[0].Children[1].Text)
}

func TestCompletionAccessExpansion(t *testing.T) {
	src := `(module
  (global $c i32 (i32.const 0))
  (global $m (mut i32) (i32.const 0))
  (func (param $a i32) (local $b i64)
    l$
    g=$
    g$))`
	s := parse(t, src)

	locals := s.Completion(at(t, src, "l$", 0, 2))
	assert.Equal(t, []string{"l$a", "l$b"}, labels(locals))
	assert.Equal(t, "(local.get $a)", locals[0].TextEdit.NewText)
	assert.False(t, locals[0].Snippet)

	setters := s.Completion(at(t, src, "g=$", 0, 3))
	require.Equal(t, []string{"g=$m"}, labels(setters))
	assert.True(t, setters[0].Snippet)
	assert.Equal(t, `(global.set \$m $0)`, setters[0].TextEdit.NewText)

	getters := s.Completion(at(t, src, "g$", 0, 2))
	assert.Equal(t, []string{"g$c", "g$m"}, labels(getters))
}

func TestCompletionStems(t *testing.T) {
	src := "(module (func\n  i32.\n  local.\n))"
	s := parse(t, src)

	ints := labels(s.Completion(at(t, src, "i32.", 0, 4)))
	assert.Contains(t, ints, "add")
	assert.Contains(t, ints, "div_s")
	assert.NotContains(t, ints, "sqrt")
	for _, l := range ints {
		assert.False(t, strings.Contains(l, "i32."), l)
	}

	assert.Equal(t, []string{"get", "set", "tee"}, labels(s.Completion(at(t, src, "local.", 0, 6))))
}

func TestCompletionReferences(t *testing.T) {
	src := `(module
  (global $g i32 (i32.const 0))
  (func $f1 (param $p i32))
  (func $f2 (local $l i32)
    (call $)
    (local.get $)
    (global.get $)
    (block $outer
      (loop $inner
        (br $)))
    (drop $)))`
	s := parse(t, src)

	assert.Equal(t, []string{"$f1", "$f2"}, labels(s.Completion(at(t, src, "(call $)", 0, 7))))
	assert.Equal(t, []string{"$l"}, labels(s.Completion(at(t, src, "(local.get $)", 0, 12))))
	assert.Equal(t, []string{"$g"}, labels(s.Completion(at(t, src, "(global.get $)", 0, 13))))

	branch := s.Completion(at(t, src, "(br $)", 0, 5))
	assert.Equal(t, []string{"$inner", "$outer"}, labels(branch))
	assert.Equal(t, "(loop $inner), depth 0", branch[0].Detail)

	all := labels(s.Completion(at(t, src, "(drop $)", 0, 7)))
	assert.Equal(t, []string{"$l", "$f1", "$f2", "$g"}, all)
}

func TestCompletionDeclarationName(t *testing.T) {
	src := "(module (func $"
	s := parse(t, src)
	assert.Empty(t, s.Completion(at(t, src, "$", 0, 1)))
}

func TestCompletionDocTags(t *testing.T) {
	src := "(module\n  ;; @\n  (func))"
	s := parse(t, src)
	assert.Equal(t, []string{"param", "result", "function", "todo"}, labels(s.Completion(at(t, src, "@", 0, 1))))
}

func TestCompletionFallback(t *testing.T) {
	src := "(module\n  \n  (func\n    \n  ))"
	s := parse(t, src)

	top := labels(s.Completion(parser.Position{Line: 1, Column: 2}))
	assert.Contains(t, top, "func")
	assert.NotContains(t, top, "i32.add")

	body := labels(s.Completion(parser.Position{Line: 3, Column: 4}))
	assert.Contains(t, body, "block")
	assert.Contains(t, body, "i32.add")
}

func TestCompletionExpansionDisabled(t *testing.T) {
	src := "(module (func 5i32))"
	opts := DefaultOptions()
	opts.Expansion = false
	s := Parse(src, 1, opts)
	for _, it := range s.Completion(at(t, src, "5i32", 0, 4)) {
		assert.Nil(t, it.TextEdit)
	}
}

func TestDocumentSymbols(t *testing.T) {
	src := `(module
  (global $g (mut i32) (i32.const 0))
  (func $f (param $a i32) (local $b i64)
    (block $l)))`
	s := parse(t, src)

	syms := s.DocumentSymbols()
	require.Len(t, syms, 2)
	assert.Equal(t, "$g", syms[0].Name)
	assert.Equal(t, SymbolVariable, syms[0].Kind)
	assert.Equal(t, "$f", syms[1].Name)
	assert.Equal(t, SymbolFunction, syms[1].Kind)

	var children []string
	for _, c := range syms[1].Children {
		children = append(children, c.Name)
	}
	assert.Equal(t, []string{"$a", "$b", "$l"}, children)
}

func TestCallGraph(t *testing.T) {
	src := `(module
  (import "env" "log" (func $log (param i32)))
  (func $helper (call $log (i32.const 1)))
  (func $main (export "main")
    (call $helper)
    (call $helper)
    (drop (ref.func $helper))
    (return_call $log (i32.const 2))))`
	s := parse(t, src)

	var edges []string
	for _, e := range s.CallGraph() {
		edges = append(edges, e.Caller.Name+" "+e.Instr+" "+e.Callee.Name)
	}
	assert.Equal(t, []string{
		"$helper call $log",
		"$main call $helper",
		"$main ref.func $helper",
		"$main return_call $log",
	}, edges)

	graph := s.Mermaid(nil)
	assert.Contains(t, graph, `f0[["$log"]]`)
	assert.Contains(t, graph, `f1["$helper"]`)
	assert.Contains(t, graph, `f2(["$main"])`)
	assert.Contains(t, graph, "f2 -->|call| f1")
	assert.Contains(t, graph, "class f0 imported")

	helper := s.Symbols.Lookup(index.KindFunction, "$helper")
	require.NotNil(t, helper)
	focused := s.Mermaid(helper)
	assert.Contains(t, focused, "f1 -->|call| f0")
	assert.Contains(t, focused, "f2 -->|ref.func| f1")
	assert.NotContains(t, focused, "return_call")
	assert.Contains(t, focused, "class f1 focus")
}
