package parser

import (
	"bufio"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Capture is one node matched by a query pattern.
type Capture struct {
	Name string
	Node *Node
}

type pattern struct {
	kind    Kind
	text    *regexp.Regexp
	capture string
}

// Query is a compiled set of capture patterns. Each non-empty line of the
// source holds one pattern:
//
//	(kind) @capture
//	(kind "regexp") @capture
//
// Lines starting with ';' are comments.
type Query struct {
	patterns []pattern
}

var patternRe = regexp.MustCompile(`^\(\s*([a-z_]+)(?:\s+"((?:[^"\\]|\\.)*)")?\s*\)\s*@([A-Za-z_][A-Za-z0-9_.\-]*)$`)

func NewQuery(source string) (*Query, error) {
	q := &Query{}
	sc := bufio.NewScanner(strings.NewReader(source))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, ";") {
			continue
		}
		m := patternRe.FindStringSubmatch(text)
		if m == nil {
			return nil, fmt.Errorf("query line %d: invalid pattern %q", line, text)
		}
		kind, ok := kindByName(m[1])
		if !ok {
			return nil, fmt.Errorf("query line %d: unknown node kind %q", line, m[1])
		}
		pat := pattern{kind: kind, capture: m[3]}
		if m[2] != "" {
			re, err := regexp.Compile(strings.ReplaceAll(m[2], `\"`, `"`))
			if err != nil {
				return nil, fmt.Errorf("query line %d: %w", line, err)
			}
			pat.text = re
		}
		q.patterns = append(q.patterns, pat)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return q, nil
}

func (p pattern) match(n *Node) bool {
	if n.Kind != p.kind {
		return false
	}
	if p.text == nil {
		return true
	}
	text := n.Text
	if !n.IsLeaf() {
		text = n.Keyword()
	}
	return p.text.MatchString(text)
}

// Captures runs the query over the tree and its comments. Results are in
// document order; a node matched by several patterns is reported once per
// pattern, in pattern order.
func (q *Query) Captures(t *Tree) []Capture {
	var out []Capture
	visit := func(n *Node) {
		for _, p := range q.patterns {
			if p.match(n) {
				out = append(out, Capture{Name: p.capture, Node: n})
			}
		}
	}
	t.Walk(func(n *Node) bool {
		visit(n)
		return true
	})
	for _, c := range t.Comments {
		visit(c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Node.StartByte < out[j].Node.StartByte
	})
	return out
}
