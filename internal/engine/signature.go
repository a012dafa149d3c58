package engine

import (
	"fmt"
	"strings"

	"github.com/EmNudge/wat-lsp/internal/index"
	"github.com/EmNudge/wat-lsp/internal/parser"
)

var callKeywords = map[string]bool{
	"call":                 true,
	"return_call":          true,
	"call_indirect":        true,
	"return_call_indirect": true,
	"call_ref":             true,
	"return_call_ref":      true,
}

// SignatureHelp reports the parameters of the call enclosing pos and which
// of them the cursor is at, counted from the argument expressions that end
// before it.
func (s *Snapshot) SignatureHelp(pos parser.Position) *SignatureHelp {
	off := s.Tree.Offset(pos)
	call := enclosingCall(s.Tree.Root, off)
	if call == nil {
		return nil
	}
	sig, ok := s.calleeSignature(call)
	if !ok {
		return nil
	}

	active := 0
	for _, c := range call.Children {
		if (c.Kind == parser.KindInstr || c.Kind == parser.KindBlock) && c.EndByte <= off {
			active++
		}
	}
	if n := len(sig.Parameters); active >= n {
		active = max(n-1, 0)
	}
	return &SignatureHelp{Signatures: []SignatureInfo{sig}, ActiveParameter: active}
}

// enclosingCall returns the innermost folded call instruction around off.
// A call still missing its ')' extends to the end of the input.
func enclosingCall(n *parser.Node, off int) *parser.Node {
	var found *parser.Node
	for _, c := range n.Children {
		if c.StartByte >= off || (off >= c.EndByte && !unclosed(c)) {
			continue
		}
		if c.Kind == parser.KindInstr && c.Folded && callKeywords[c.Keyword()] {
			found = c
		}
		if inner := enclosingCall(c, off); inner != nil {
			found = inner
		}
	}
	return found
}

func unclosed(n *parser.Node) bool {
	if !n.Folded || len(n.Children) == 0 {
		return false
	}
	last := n.Children[len(n.Children)-1]
	return last.Missing && last.Message == "Missing ')'"
}

// firstRef returns the first resolved reference among n's direct children.
func (s *Snapshot) firstRef(n *parser.Node) *index.Symbol {
	for _, c := range n.Children {
		if ref := s.Symbols.ReferenceFor(c); ref != nil {
			return ref.Target
		}
	}
	return nil
}

func (s *Snapshot) calleeSignature(call *parser.Node) (SignatureInfo, bool) {
	kw := call.Keyword()
	switch kw {
	case "call", "return_call":
		fn := s.firstRef(call)
		if fn == nil || fn.Func == nil {
			return SignatureInfo{}, false
		}
		info := SignatureInfo{Label: funcSignature(fn), Documentation: s.Symbols.Doc(fn)}
		for _, p := range fn.Func.Params {
			info.Parameters = append(info.Parameters, ParameterInfo{Label: paramLabel(p.Name, p.Value)})
		}
		return info, true

	case "call_indirect", "return_call_indirect":
		var (
			params  []index.Param
			results []index.ValType
			header  string
		)
		if tu := call.FirstChildOfKind(parser.KindTypeUse); tu != nil {
			t := s.firstRef(tu)
			if t == nil || t.Type == nil {
				return SignatureInfo{}, false
			}
			params, results = t.Type.Params, t.Type.Results
			header = fmt.Sprintf(" (type %s)", nameOrIndex(t))
		} else {
			params, results = s.Symbols.InlineSignature(call)
		}
		params = append(params[:len(params):len(params)], index.Param{Type: "i32"})
		info := callInfo(kw+header, params, results)
		info.Documentation = "The last operand is the table index of the callee."
		return info, true

	case "call_ref", "return_call_ref":
		t := s.firstRef(call)
		if t == nil || t.Type == nil {
			return SignatureInfo{}, false
		}
		params := append(t.Type.Params[:len(t.Type.Params):len(t.Type.Params)],
			index.Param{Type: index.ValType(fmt.Sprintf("(ref null %s)", nameOrIndex(t)))})
		info := callInfo(fmt.Sprintf("%s %s", kw, nameOrIndex(t)), params, t.Type.Results)
		info.Documentation = "The last operand is the function reference."
		return info, true
	}
	return SignatureInfo{}, false
}

func callInfo(head string, params []index.Param, results []index.ValType) SignatureInfo {
	var b strings.Builder
	b.WriteString("(" + head)
	info := SignatureInfo{}
	for _, p := range params {
		label := paramLabel(p.Name, p.Type)
		info.Parameters = append(info.Parameters, ParameterInfo{Label: label})
		b.WriteString(" " + label)
	}
	if len(results) > 0 {
		fmt.Fprintf(&b, " (result %s)", joinTypes(results))
	}
	b.WriteString(")")
	info.Label = b.String()
	return info
}
