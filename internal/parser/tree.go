package parser

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Tree is an immutable parse of one document version.
type Tree struct {
	Root     *Node
	Comments []*Node
	Errors   []*Node

	text       string
	lineStarts []int
}

func newTree(text string, root *Node, comments []*Node) *Tree {
	t := &Tree{Root: root, Comments: comments, text: text}
	t.lineStarts = append(t.lineStarts, 0)
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			t.lineStarts = append(t.lineStarts, i+1)
		}
	}
	root.Walk(func(n *Node) bool {
		if n.IsError() {
			t.Errors = append(t.Errors, n)
		}
		return true
	})
	sort.SliceStable(t.Errors, func(i, j int) bool {
		return t.Errors[i].StartByte < t.Errors[j].StartByte
	})
	return t
}

func (t *Tree) Text() string {
	return t.text
}

func (t *Tree) LineCount() int {
	return len(t.lineStarts)
}

// Line returns the text of line n without its terminator.
func (t *Tree) Line(n int) string {
	if n < 0 || n >= len(t.lineStarts) {
		return ""
	}
	end := len(t.text)
	if n+1 < len(t.lineStarts) {
		end = t.lineStarts[n+1]
	}
	return strings.TrimRight(t.text[t.lineStarts[n]:end], "\r\n")
}

// Offset converts a position to a byte offset, clamping to the line end.
func (t *Tree) Offset(pos Position) int {
	if pos.Line < 0 {
		return 0
	}
	if pos.Line >= len(t.lineStarts) {
		return len(t.text)
	}
	off := t.lineStarts[pos.Line]
	col := 0
	for off < len(t.text) && col < pos.Column {
		r, w := utf8.DecodeRuneInString(t.text[off:])
		if r == '\n' {
			break
		}
		col += utf16Len(r)
		off += w
	}
	return off
}

// PositionOf converts a byte offset to a position.
func (t *Tree) PositionOf(offset int) Position {
	if offset > len(t.text) {
		offset = len(t.text)
	}
	line := sort.Search(len(t.lineStarts), func(i int) bool {
		return t.lineStarts[i] > offset
	}) - 1
	col := 0
	for _, r := range t.text[t.lineStarts[line]:offset] {
		col += utf16Len(r)
	}
	return Position{Line: line, Column: col}
}

// NodeAt returns the deepest node whose range contains pos.
func (t *Tree) NodeAt(pos Position) *Node {
	off := t.Offset(pos)
	n := t.Root
	for {
		var next *Node
		for _, c := range n.Children {
			if c.StartByte <= off && off < c.EndByte {
				next = c
				break
			}
		}
		if next == nil {
			return n
		}
		n = next
	}
}

// LeafAt returns the token under pos. When pos sits just after a token
// (the usual cursor position while typing) that token is returned.
func (t *Tree) LeafAt(pos Position) *Node {
	off := t.Offset(pos)
	var found *Node
	t.Root.Walk(func(n *Node) bool {
		if found != nil || off < n.StartByte || off > n.EndByte {
			return false
		}
		if n.IsLeaf() && !n.Missing {
			if off < n.EndByte {
				found = n
				return false
			}
			if off == n.EndByte && n.StartByte < off {
				found = n
			}
		}
		return true
	})
	return found
}

// CommentAt returns the comment containing pos. A line comment extends to
// the end of its line.
func (t *Tree) CommentAt(pos Position) *Node {
	off := t.Offset(pos)
	for _, c := range t.Comments {
		if c.StartByte < off && off < c.EndByte {
			return c
		}
		if off == c.EndByte && strings.HasPrefix(c.Text, ";;") {
			return c
		}
	}
	return nil
}

// Module returns the first module node, or the source file itself when
// fields are written without an enclosing module.
func (t *Tree) Module() *Node {
	for _, c := range t.Root.Children {
		if c.Kind == KindModule {
			return c
		}
	}
	return t.Root
}

func (t *Tree) Walk(fn func(*Node) bool) {
	t.Root.Walk(fn)
}
