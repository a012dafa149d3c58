package parser

import (
	"fmt"
)

type Parser struct {
	lexer    *Lexer
	input    string
	buf      []Token
	comments []*Node
	errors   []error
}

func NewParser(input string) *Parser {
	return &Parser{
		lexer: NewLexer(input),
		input: input,
	}
}

// Parse builds a concrete syntax tree for the whole input. Malformed input
// never stops the parser: problems become error nodes inside the tree.
func Parse(input string) *Tree {
	t, _ := NewParser(input).Parse()
	return t
}

func (p *Parser) addError(pos Position, msg string) {
	p.errors = append(p.errors, fmt.Errorf("%d:%d: %s", pos.Line+1, pos.Column+1, msg))
}

func (p *Parser) next() Token {
	var t Token
	if len(p.buf) > 0 {
		t = p.buf[0]
		p.buf = p.buf[1:]
	} else {
		t = p.fetchToken()
	}
	return t
}

func (p *Parser) peek() Token {
	return p.peekN(0)
}

func (p *Parser) peekN(n int) Token {
	for len(p.buf) <= n {
		p.buf = append(p.buf, p.fetchToken())
	}
	return p.buf[n]
}

func (p *Parser) fetchToken() Token {
	for {
		tok := p.lexer.NextToken()
		switch tok.Type {
		case TokenLineComment, TokenBlockComment, TokenAnnotation:
			p.comments = append(p.comments, &Node{
				Kind:      KindComment,
				Text:      tok.Value,
				Start:     tok.Start,
				End:       tok.End,
				StartByte: tok.StartByte,
				EndByte:   tok.EndByte,
			})
		default:
			return tok
		}
	}
}

// peekKeyword returns the keyword following an opening paren, or "" when
// the next token is not '(' followed by a keyword.
func (p *Parser) peekKeyword() string {
	if p.peek().Type != TokenLParen {
		return ""
	}
	if t := p.peekN(1); t.Type == TokenKeyword {
		return t.Value
	}
	return ""
}

func (p *Parser) peekAtomKeyword() string {
	if t := p.peek(); t.Type == TokenKeyword {
		return t.Value
	}
	return ""
}

// Parse returns the tree along with the first syntax error, if any.
func (p *Parser) Parse() (*Tree, error) {
	root := &Node{Kind: KindSourceFile}
	for {
		tok := p.peek()
		if tok.Type == TokenEOF {
			root.End = tok.End
			root.EndByte = tok.EndByte
			break
		}
		if tok.Type == TokenLParen {
			root.add(p.parseTopLevel())
			continue
		}
		p.next()
		root.add(p.errorLeaf(tok, unexpected(tok)))
	}

	tree := newTree(p.input, root, p.comments)
	var err error
	if len(p.errors) > 0 {
		err = p.errors[0]
	}
	return tree, err
}

func unexpected(tok Token) string {
	if tok.Type == TokenError && tok.Message != "" {
		return tok.Message
	}
	return fmt.Sprintf("Unexpected '%s'", tok.Value)
}

func leaf(tok Token) *Node {
	n := &Node{
		Text:      tok.Value,
		Start:     tok.Start,
		End:       tok.End,
		StartByte: tok.StartByte,
		EndByte:   tok.EndByte,
	}
	switch tok.Type {
	case TokenKeyword:
		n.Kind = KindKeyword
	case TokenIdentifier:
		n.Kind = KindIdentifier
	case TokenNumber:
		n.Kind = KindNumber
	case TokenString:
		n.Kind = KindString
	case TokenMemarg:
		n.Kind = KindMemarg
	default:
		n.Kind = KindError
		n.Message = unexpected(tok)
	}
	return n
}

func (p *Parser) atom(tok Token) *Node {
	n := leaf(tok)
	if n.Kind == KindError {
		p.addError(n.Start, n.Message)
	}
	return n
}

func (p *Parser) errorLeaf(tok Token, msg string) *Node {
	n := leaf(tok)
	n.Kind = KindError
	n.Message = msg
	p.addError(n.Start, msg)
	return n
}

func (p *Parser) missing(at *Node, msg string) *Node {
	n := &Node{
		Kind:      KindError,
		Message:   msg,
		Missing:   true,
		Start:     at.End,
		End:       at.End,
		StartByte: at.EndByte,
		EndByte:   at.EndByte,
	}
	p.addError(n.Start, msg)
	return n
}

// open consumes '(' and the head keyword and returns the new list node.
func (p *Parser) open(kind Kind) *Node {
	lp := p.next()
	n := &Node{
		Kind:      kind,
		Folded:    true,
		Start:     lp.Start,
		End:       lp.End,
		StartByte: lp.StartByte,
		EndByte:   lp.EndByte,
	}
	if p.peek().Type == TokenKeyword {
		n.add(leaf(p.next()))
	}
	return n
}

func (p *Parser) close(n *Node) {
	if t := p.peek(); t.Type == TokenRParen {
		p.next()
		n.End = t.End
		n.EndByte = t.EndByte
		return
	}
	if n.Kind == KindError {
		return
	}
	n.add(p.missing(n, "Missing ')'"))
}

func (p *Parser) optionalID(n *Node) {
	if p.peek().Type == TokenIdentifier {
		n.add(leaf(p.next()))
	}
}

func (p *Parser) parseTopLevel() *Node {
	k := p.peekKeyword()
	if k == "module" {
		return p.parseModule()
	}
	if n := p.parseField(); n != nil {
		return n
	}
	n := p.parseForm(KindError)
	n.Message = "Expected module or module field"
	p.addError(n.Start, n.Message)
	return n
}

func (p *Parser) parseModule() *Node {
	n := p.open(KindModule)
	p.optionalID(n)
	for {
		tok := p.peek()
		switch tok.Type {
		case TokenRParen, TokenEOF:
			p.close(n)
			return n
		case TokenLParen:
			if f := p.parseField(); f != nil {
				n.add(f)
				continue
			}
			f := p.parseForm(KindError)
			f.Message = fmt.Sprintf("Unknown module field '%s'", f.Keyword())
			p.addError(f.Start, f.Message)
			n.add(f)
		case TokenString, TokenKeyword:
			// (module binary "...") and (module quote "...")
			n.add(p.atom(p.next()))
		default:
			p.next()
			n.add(p.errorLeaf(tok, unexpected(tok)))
		}
	}
}

// parseField parses one module field, or returns nil without consuming
// anything when the next form is not a field.
func (p *Parser) parseField() *Node {
	switch p.peekKeyword() {
	case "func":
		return p.parseFunc()
	case "global":
		return p.parseGlobal()
	case "memory":
		return p.parseLimited(KindMemory)
	case "table":
		return p.parseLimited(KindTable)
	case "type":
		return p.parseTypeDef()
	case "rec":
		return p.parseRec()
	case "import":
		return p.parseImport()
	case "export":
		n := p.open(KindExport)
		p.parseBody(n, nil)
		return n
	case "start":
		n := p.parseForm(KindStart)
		return n
	case "elem":
		return p.parseSegment(KindElem)
	case "data":
		return p.parseSegment(KindData)
	case "tag":
		return p.parseTag()
	}
	return nil
}

var formKinds = map[string]Kind{
	"param":  KindParam,
	"result": KindResult,
	"local":  KindLocal,
	"type":   KindTypeUse,
	"export": KindExport,
	"import": KindImport,
	"mut":    KindGlobalType,
	"offset": KindOffset,
	"item":   KindItem,
}

// parseForm parses a list generically: atoms become leaves and nested lists
// recurse. Used for declarations that hold no instructions.
func (p *Parser) parseForm(kind Kind) *Node {
	n := p.open(kind)
	p.parseBody(n, nil)
	return n
}

// parseBody consumes the rest of list n up to its closing paren. Nested
// lists go through form first; when form returns nil they are parsed
// generically.
func (p *Parser) parseBody(n *Node, form func(keyword string) *Node) {
	for {
		tok := p.peek()
		switch tok.Type {
		case TokenRParen, TokenEOF:
			p.close(n)
			return
		case TokenLParen:
			k := p.peekKeyword()
			if form != nil {
				if c := form(k); c != nil {
					n.add(c)
					continue
				}
			}
			kind, ok := formKinds[k]
			if !ok {
				kind = KindForm
			}
			n.add(p.parseForm(kind))
		default:
			n.add(p.atom(p.next()))
		}
	}
}

func (p *Parser) parseFunc() *Node {
	n := p.open(KindFunc)
	p.optionalID(n)
	p.parseHeader(n, "export", "import", "type", "param", "result", "local")
	p.parseInstrs(n, false)
	p.close(n)
	return n
}

func (p *Parser) parseTag() *Node {
	n := p.open(KindTag)
	p.optionalID(n)
	p.parseBody(n, nil)
	return n
}

// parseHeader consumes leading forms whose keyword is one of allowed.
func (p *Parser) parseHeader(n *Node, allowed ...string) {
	for {
		k := p.peekKeyword()
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			return
		}
		n.add(p.parseForm(formKinds[k]))
	}
}

func (p *Parser) parseGlobal() *Node {
	n := p.open(KindGlobal)
	p.optionalID(n)
	p.parseHeader(n, "export", "import")
	switch {
	case p.peekKeyword() == "mut":
		n.add(p.parseForm(KindGlobalType))
	case p.peekKeyword() == "ref":
		n.add(p.parseForm(KindForm))
	case p.peek().Type == TokenKeyword:
		n.add(leaf(p.next()))
	}
	p.parseInstrs(n, false)
	p.close(n)
	return n
}

func (p *Parser) parseLimited(kind Kind) *Node {
	n := p.open(kind)
	p.optionalID(n)
	p.parseBody(n, func(k string) *Node {
		switch k {
		case "export", "import", "ref":
			return nil
		case "elem", "data":
			return p.parseForm(KindForm)
		case "":
			return nil
		}
		return p.parseFoldedInstr()
	})
	return n
}

func (p *Parser) parseTypeDef() *Node {
	n := p.open(KindType)
	p.optionalID(n)
	p.parseBody(n, p.compositeType)
	return n
}

func (p *Parser) compositeType(k string) *Node {
	switch k {
	case "func":
		return p.parseForm(KindFuncType)
	case "sub":
		n := p.open(KindForm)
		p.parseBody(n, p.compositeType)
		return n
	}
	return nil
}

func (p *Parser) parseRec() *Node {
	n := p.open(KindRec)
	p.parseBody(n, func(k string) *Node {
		if k == "type" {
			return p.parseTypeDef()
		}
		return nil
	})
	return n
}

func (p *Parser) parseImport() *Node {
	n := p.open(KindImport)
	p.parseBody(n, func(k string) *Node {
		switch k {
		case "func":
			return p.parseFunc()
		case "global":
			return p.parseGlobal()
		case "memory":
			return p.parseLimited(KindMemory)
		case "table":
			return p.parseLimited(KindTable)
		case "tag":
			return p.parseTag()
		}
		return nil
	})
	return n
}

// parseSegment parses elem and data fields, whose offsets and items are
// constant expressions.
func (p *Parser) parseSegment(kind Kind) *Node {
	n := p.open(kind)
	p.optionalID(n)
	p.parseBody(n, func(k string) *Node {
		switch k {
		case "offset", "item":
			c := p.open(formKinds[k])
			p.parseInstrs(c, false)
			p.close(c)
			return c
		case "memory", "table", "ref", "":
			return nil
		}
		return p.parseFoldedInstr()
	})
	return n
}

var blockKeywords = map[string]bool{
	"block":     true,
	"loop":      true,
	"if":        true,
	"try_table": true,
}

// parseInstrs parses an instruction sequence into n, stopping at the
// closing paren of n. Inside flat blocks it also stops at 'end' and 'else'
// so the caller can attach them.
func (p *Parser) parseInstrs(n *Node, inBlock bool) {
	for {
		tok := p.peek()
		switch tok.Type {
		case TokenRParen, TokenEOF:
			return
		case TokenLParen:
			n.add(p.parseFoldedInstr())
		case TokenKeyword:
			switch {
			case tok.Value == "end" || tok.Value == "else":
				if inBlock {
					return
				}
				p.next()
				n.add(p.errorLeaf(tok, unexpected(tok)))
			case blockKeywords[tok.Value]:
				n.add(p.parseFlatBlock())
			default:
				n.add(p.parseFlatInstr())
			}
		default:
			p.next()
			n.add(p.errorLeaf(tok, unexpected(tok)))
		}
	}
}

var heapTypes = map[string]bool{
	"func": true, "extern": true, "any": true, "eq": true, "i31": true,
	"struct": true, "array": true, "none": true, "nofunc": true,
	"noextern": true, "exn": true, "noexn": true,
}

var typeUseInstrs = map[string]bool{
	"call_indirect":        true,
	"return_call_indirect": true,
	"select":               true,
}

// isImmediate reports whether tok continues the instruction mnemonic as
// one of its immediates.
func isImmediate(mnemonic string, tok Token, count int) bool {
	switch tok.Type {
	case TokenIdentifier, TokenNumber, TokenMemarg:
		return true
	case TokenKeyword:
		switch mnemonic {
		case "ref.null":
			return count == 0 && heapTypes[tok.Value]
		case "v128.const":
			return count == 0
		case "ref.test", "ref.cast", "br_on_cast", "br_on_cast_fail":
			return heapTypes[tok.Value] || tok.Value == "null"
		}
	}
	return false
}

func (p *Parser) parseImmediates(in *Node, mnemonic string) {
	count := 0
	for {
		tok := p.peek()
		if isImmediate(mnemonic, tok, count) {
			in.add(leaf(p.next()))
			count++
			continue
		}
		if typeUseInstrs[mnemonic] {
			switch k := p.peekKeyword(); k {
			case "type", "param", "result":
				in.add(p.parseForm(formKinds[k]))
				continue
			}
		}
		return
	}
}

func (p *Parser) parseFlatInstr() *Node {
	kw := p.next()
	in := &Node{Kind: KindInstr, Start: kw.Start, StartByte: kw.StartByte}
	in.add(leaf(kw))
	p.parseImmediates(in, kw.Value)
	return in
}

// parseBlockHeader parses the label and block type of a block, loop, if or
// try_table.
func (p *Parser) parseBlockHeader(b *Node, keyword string) {
	p.optionalID(b)
	for {
		k := p.peekKeyword()
		switch {
		case k == "type" || k == "param" || k == "result":
			b.add(p.parseForm(formKinds[k]))
		case keyword == "try_table" && (k == "catch" || k == "catch_ref" || k == "catch_all" || k == "catch_all_ref"):
			b.add(p.parseForm(KindForm))
		default:
			return
		}
	}
}

func (p *Parser) parseFlatBlock() *Node {
	kw := p.next()
	b := &Node{Kind: KindBlock, Start: kw.Start, StartByte: kw.StartByte}
	b.add(leaf(kw))
	p.parseBlockHeader(b, kw.Value)

	target := b
	var elseNode *Node
	for {
		p.parseInstrs(target, true)
		if p.peekAtomKeyword() != "else" {
			break
		}
		tok := p.next()
		if kw.Value == "if" && elseNode == nil {
			elseNode = &Node{Kind: KindElse, Start: tok.Start, StartByte: tok.StartByte}
			elseNode.add(leaf(tok))
			p.optionalID(elseNode)
			b.add(elseNode)
			target = elseNode
			continue
		}
		target.add(p.errorLeaf(tok, unexpected(tok)))
	}

	if p.peekAtomKeyword() == "end" {
		b.add(leaf(p.next()))
		p.optionalID(b)
		return b
	}
	b.add(p.missing(b, fmt.Sprintf("Missing 'end' for '%s'", kw.Value)))
	return b
}

// parseFoldedInstr parses a parenthesised instruction, including folded
// block, loop and if forms.
func (p *Parser) parseFoldedInstr() *Node {
	k := p.peekKeyword()
	switch {
	case blockKeywords[k]:
		return p.parseFoldedBlock()
	case k == "then":
		n := p.parseBranch(KindThen)
		n.Kind = KindError
		n.Message = "'then' outside of 'if'"
		p.addError(n.Start, n.Message)
		return n
	case k == "":
		n := p.parseForm(KindError)
		n.Message = "Expected instruction"
		p.addError(n.Start, n.Message)
		return n
	}
	if kind, ok := formKinds[k]; ok {
		return p.parseForm(kind)
	}
	if k == "ref" {
		return p.parseForm(KindForm)
	}

	in := p.open(KindInstr)
	p.parseImmediates(in, k)
	p.parseInstrs(in, false)
	p.close(in)
	return in
}

func (p *Parser) parseFoldedBlock() *Node {
	b := p.open(KindBlock)
	keyword := b.Keyword()
	p.parseBlockHeader(b, keyword)

	if keyword != "if" {
		p.parseInstrs(b, false)
		p.close(b)
		return b
	}

	for {
		tok := p.peek()
		switch tok.Type {
		case TokenRParen, TokenEOF:
			p.close(b)
			return b
		case TokenLParen:
			switch p.peekKeyword() {
			case "then":
				b.add(p.parseBranch(KindThen))
			case "else":
				b.add(p.parseBranch(KindElse))
			default:
				b.add(p.parseFoldedInstr())
			}
		case TokenKeyword:
			switch {
			case tok.Value == "end" || tok.Value == "else":
				p.next()
				b.add(p.errorLeaf(tok, unexpected(tok)))
			case blockKeywords[tok.Value]:
				b.add(p.parseFlatBlock())
			default:
				b.add(p.parseFlatInstr())
			}
		default:
			p.next()
			b.add(p.errorLeaf(tok, unexpected(tok)))
		}
	}
}

func (p *Parser) parseBranch(kind Kind) *Node {
	n := p.open(kind)
	p.optionalID(n)
	p.parseInstrs(n, false)
	p.close(n)
	return n
}
