package engine

import (
	"fmt"
	"strings"

	"github.com/EmNudge/wat-lsp/internal/index"
)

// nameOrIndex renders a symbol the way the text format prints unnamed
// entities: by an index annotation.
func nameOrIndex(s *index.Symbol) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("(;%d;)", s.Index)
}

func joinTypes(types []index.ValType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, " ")
}

func paramLabel(name string, t index.ValType) string {
	if name != "" {
		return fmt.Sprintf("(param %s %s)", name, t)
	}
	return fmt.Sprintf("(param %s)", t)
}

func importClause(imp *index.ImportInfo) string {
	if imp == nil {
		return ""
	}
	return fmt.Sprintf(" (import %q %q)", imp.Module, imp.Name)
}

func funcSignature(fn *index.Symbol) string {
	var b strings.Builder
	b.WriteString("(func ")
	b.WriteString(nameOrIndex(fn))
	b.WriteString(importClause(fn.Func.Import))
	for _, p := range fn.Func.Params {
		b.WriteString(" ")
		b.WriteString(paramLabel(p.Name, p.Value))
	}
	if len(fn.Func.Results) > 0 {
		fmt.Fprintf(&b, " (result %s)", joinTypes(fn.Func.Results))
	}
	b.WriteString(")")
	return b.String()
}

func typeBody(info *index.TypeInfo) string {
	var b strings.Builder
	switch info.Form {
	case "struct":
		b.WriteString("(struct")
		for _, f := range info.Fields {
			fmt.Fprintf(&b, " (field %s)", f)
		}
		b.WriteString(")")
	case "array":
		fmt.Fprintf(&b, "(array %s)", joinTypes(info.Fields))
	default:
		b.WriteString("(func")
		for _, p := range info.Params {
			b.WriteString(" ")
			b.WriteString(paramLabel(p.Name, p.Type))
		}
		if len(info.Results) > 0 {
			fmt.Fprintf(&b, " (result %s)", joinTypes(info.Results))
		}
		b.WriteString(")")
	}
	return b.String()
}

func limitsText(l *index.Limits) string {
	s := l.Min
	if l.Max != "" {
		s += " " + l.Max
	}
	return s
}

// Signature renders a symbol as the declaration it stands for.
func Signature(s *index.Symbol) string {
	switch s.Kind {
	case index.KindFunction:
		return funcSignature(s)
	case index.KindGlobal:
		t := string(s.Global.Type)
		if s.Global.Mutable {
			t = "(mut " + t + ")"
		}
		return fmt.Sprintf("(global %s%s %s)", nameOrIndex(s), importClause(s.Global.Import), t)
	case index.KindMemory:
		return fmt.Sprintf("(memory %s%s %s)", nameOrIndex(s), importClause(s.Limits.Import), limitsText(s.Limits))
	case index.KindTable:
		return fmt.Sprintf("(table %s%s %s %s)", nameOrIndex(s), importClause(s.Limits.Import), limitsText(s.Limits), s.Limits.RefType)
	case index.KindType:
		return fmt.Sprintf("(type %s %s)", nameOrIndex(s), typeBody(s.Type))
	case index.KindTag:
		var b strings.Builder
		fmt.Fprintf(&b, "(tag %s", nameOrIndex(s))
		for _, p := range s.Type.Params {
			b.WriteString(" ")
			b.WriteString(paramLabel(p.Name, p.Type))
		}
		b.WriteString(")")
		return b.String()
	case index.KindData:
		content := s.Segment.Content
		if len(content) > 32 {
			content = content[:32] + "..."
		}
		return fmt.Sprintf("(data %s \"%s\")", nameOrIndex(s), content)
	case index.KindElem:
		items := s.Segment.Items
		preview := strings.Join(items, " ")
		if len(items) > 4 {
			preview = fmt.Sprintf("%s ... (%d total)", strings.Join(items[:4], " "), len(items))
		}
		return fmt.Sprintf("(elem %s func %s)", nameOrIndex(s), preview)
	case index.KindParam:
		return paramLabel(s.Name, s.Value)
	case index.KindLocal:
		if s.Name != "" {
			return fmt.Sprintf("(local %s %s)", s.Name, s.Value)
		}
		return fmt.Sprintf("(local %s)", s.Value)
	case index.KindLabel:
		if s.Label.Implicit {
			return funcSignature(s.Scope)
		}
		var b strings.Builder
		b.WriteString("(")
		b.WriteString(s.Label.Keyword)
		if s.Name != "" {
			b.WriteString(" " + s.Name)
		}
		if len(s.Label.Params) > 0 {
			fmt.Fprintf(&b, " (param %s)", joinTypes(s.Label.Params))
		}
		if len(s.Label.Results) > 0 {
			fmt.Fprintf(&b, " (result %s)", joinTypes(s.Label.Results))
		}
		b.WriteString(")")
		return b.String()
	}
	return nameOrIndex(s)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func exportsOf(s *index.Symbol) []string {
	switch {
	case s.Func != nil:
		return s.Func.Exports
	case s.Global != nil:
		return s.Global.Exports
	case s.Limits != nil:
		return s.Limits.Exports
	}
	return nil
}
