package index

import (
	"strings"

	"github.com/EmNudge/wat-lsp/internal/parser"
)

// Doc returns the text of the ';;' line comments written on the lines
// directly above the field that declares sym. Blank lines end the block.
func (t *Table) Doc(sym *Symbol) string {
	n := sym.Node
	if n == nil || (sym.Label != nil && sym.Label.Implicit) {
		return ""
	}
	target := n.Start.Line - 1

	var lines []string
	for i := len(t.Tree.Comments) - 1; i >= 0; i-- {
		c := t.Tree.Comments[i]
		if c.Start.Line > target {
			continue
		}
		if c.Start.Line < target || !strings.HasPrefix(c.Text, ";;") || !onlyComment(t.Tree.Line(c.Start.Line), c) {
			break
		}
		lines = append(lines, strings.TrimSpace(strings.TrimLeft(c.Text, ";")))
		target--
	}

	var b strings.Builder
	for i := len(lines) - 1; i >= 0; i-- {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(lines[i])
	}
	return b.String()
}

// onlyComment reports whether c is the only thing on its line.
func onlyComment(line string, c *parser.Node) bool {
	return strings.TrimSpace(line) == c.Text
}
