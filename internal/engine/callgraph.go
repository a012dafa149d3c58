package engine

import (
	"fmt"
	"strings"

	"github.com/EmNudge/wat-lsp/internal/index"
)

// CallEdge is one function referencing another from its body, through
// call, return_call or ref.func.
type CallEdge struct {
	Caller *index.Symbol
	Callee *index.Symbol
	Instr  string
}

// CallGraph lists the resolved function references made inside function
// bodies, in document order. Repeated edges are reported once.
func (s *Snapshot) CallGraph() []CallEdge {
	type key struct {
		caller, callee *index.Symbol
		instr          string
	}
	seen := make(map[key]bool)
	var edges []CallEdge
	for _, ref := range s.Symbols.References {
		if ref.Kind != index.KindFunction || ref.Scope == nil || ref.Target == nil || ref.Instr == nil {
			continue
		}
		k := key{ref.Scope, ref.Target, ref.Instr.Keyword()}
		if seen[k] {
			continue
		}
		seen[k] = true
		edges = append(edges, CallEdge{Caller: ref.Scope, Callee: ref.Target, Instr: k.instr})
	}
	return edges
}

func mermaidID(sym *index.Symbol) string {
	return fmt.Sprintf("f%d", sym.Index)
}

func mermaidNode(sym *index.Symbol) string {
	label := strings.ReplaceAll(sym.DisplayName(), `"`, "#quot;")
	id := mermaidID(sym)
	switch {
	case sym.Func != nil && sym.Func.Import != nil:
		return fmt.Sprintf("%s[[\"%s\"]]", id, label)
	case sym.Func != nil && len(sym.Func.Exports) > 0:
		return fmt.Sprintf("%s([\"%s\"])", id, label)
	}
	return fmt.Sprintf("%s[\"%s\"]", id, label)
}

// Mermaid renders the call graph as a Mermaid flowchart. With a focus
// function only its callers and callees are drawn.
func (s *Snapshot) Mermaid(focus *index.Symbol) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	drawn := make(map[*index.Symbol]bool)
	node := func(sym *index.Symbol) {
		if !drawn[sym] {
			drawn[sym] = true
			fmt.Fprintf(&sb, "  %s\n", mermaidNode(sym))
		}
	}

	if focus == nil {
		for _, fn := range s.Symbols.Functions() {
			node(fn)
		}
	} else {
		node(focus)
	}
	for _, e := range s.CallGraph() {
		if focus != nil && e.Caller != focus && e.Callee != focus {
			continue
		}
		node(e.Caller)
		node(e.Callee)
		fmt.Fprintf(&sb, "  %s -->|%s| %s\n", mermaidID(e.Caller), e.Instr, mermaidID(e.Callee))
	}

	sb.WriteString("  classDef imported fill:#eef,stroke:#333;\n")
	sb.WriteString("  classDef focus fill:#f9f,stroke:#333,stroke-width:2px;\n")
	for _, sym := range s.Symbols.Functions() {
		if drawn[sym] && sym.Func != nil && sym.Func.Import != nil {
			fmt.Fprintf(&sb, "  class %s imported\n", mermaidID(sym))
		}
	}
	if focus != nil {
		fmt.Fprintf(&sb, "  class %s focus\n", mermaidID(focus))
	}
	return sb.String()
}
