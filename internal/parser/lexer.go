package parser

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

type TokenType int

const (
	TokenError TokenType = iota
	TokenEOF
	TokenLParen
	TokenRParen
	TokenKeyword
	TokenIdentifier // $name
	TokenNumber
	TokenString
	TokenMemarg // offset=N, align=N
	TokenLineComment
	TokenBlockComment
	TokenAnnotation // (@name ...)
)

type Token struct {
	Type      TokenType
	Value     string
	Message   string // set on TokenError
	Start     Position
	End       Position
	StartByte int
	EndByte   int
}

const eof = -1

type Lexer struct {
	input    string
	start    int
	pos      int
	line     int
	col      int
	startPos Position
}

func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.input) {
		return eof
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

func (l *Lexer) peekByte(off int) byte {
	if l.pos+off >= len(l.input) {
		return 0
	}
	return l.input[l.pos+off]
}

func (l *Lexer) next() rune {
	if l.pos >= len(l.input) {
		return eof
	}
	r, w := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += w
	if r == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col += utf16Len(r)
	}
	return r
}

func utf16Len(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

func (l *Lexer) ignore() {
	l.start = l.pos
	l.startPos = Position{Line: l.line, Column: l.col}
}

func (l *Lexer) emit(t TokenType) Token {
	tok := Token{
		Type:      t,
		Value:     l.input[l.start:l.pos],
		Start:     l.startPos,
		End:       Position{Line: l.line, Column: l.col},
		StartByte: l.start,
		EndByte:   l.pos,
	}
	l.ignore()
	return tok
}

func (l *Lexer) errorf(msg string) Token {
	tok := l.emit(TokenError)
	tok.Message = msg
	return tok
}

func (l *Lexer) NextToken() Token {
	for {
		r := l.peek()
		if r == eof {
			l.ignore()
			return l.emit(TokenEOF)
		}
		if isSpace(r) {
			l.next()
			l.ignore()
			continue
		}

		switch r {
		case '(':
			switch l.peekByte(1) {
			case ';':
				return l.lexBlockComment()
			case '@':
				return l.lexAnnotation()
			}
			l.next()
			return l.emit(TokenLParen)
		case ')':
			l.next()
			return l.emit(TokenRParen)
		case ';':
			if l.peekByte(1) == ';' {
				return l.lexLineComment()
			}
			l.next()
			return l.errorf("Unexpected ';'")
		case '"':
			return l.lexString()
		}
		return l.lexAtom()
	}
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func isDelimiter(r rune) bool {
	return r == eof || isSpace(r) || r == '(' || r == ')' || r == '"' || r == ';'
}

func (l *Lexer) lexAtom() Token {
	for !isDelimiter(l.peek()) {
		l.next()
	}
	return l.emit(classifyAtom(l.input[l.start:l.pos]))
}

func classifyAtom(s string) TokenType {
	switch {
	case strings.HasPrefix(s, "$"):
		return TokenIdentifier
	case strings.HasPrefix(s, "offset=") || strings.HasPrefix(s, "align="):
		return TokenMemarg
	case IsNumber(s):
		return TokenNumber
	}
	return TokenKeyword
}

// IsNumber reports whether s lexes as a numeric literal: decimal or hex
// integers and floats with optional sign and '_' separators, inf and nan.
func IsNumber(s string) bool {
	s = strings.TrimLeft(s, "+-")
	if s == "" {
		return false
	}
	if s == "inf" || s == "nan" || strings.HasPrefix(s, "nan:0x") {
		return true
	}
	return s[0] >= '0' && s[0] <= '9'
}

func (l *Lexer) lexLineComment() Token {
	for {
		r := l.peek()
		if r == '\n' || r == eof {
			return l.emit(TokenLineComment)
		}
		l.next()
	}
}

func (l *Lexer) lexBlockComment() Token {
	l.next() // (
	l.next() // ;
	depth := 1
	for depth > 0 {
		r := l.next()
		switch r {
		case eof:
			return l.errorf("Unterminated block comment")
		case '(':
			if l.peek() == ';' {
				l.next()
				depth++
			}
		case ';':
			if l.peek() == ')' {
				l.next()
				depth--
			}
		}
	}
	return l.emit(TokenBlockComment)
}

func (l *Lexer) lexAnnotation() Token {
	depth := 0
	for {
		r := l.next()
		switch r {
		case eof:
			return l.errorf("Unterminated annotation")
		case '"':
			l.skipString()
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return l.emit(TokenAnnotation)
			}
		}
	}
}

func (l *Lexer) skipString() {
	for {
		r := l.peek()
		if r == eof || r == '\n' {
			return
		}
		l.next()
		if r == '\\' {
			l.next()
			continue
		}
		if r == '"' {
			return
		}
	}
}

func (l *Lexer) lexString() Token {
	l.next()
	for {
		r := l.peek()
		switch r {
		case eof, '\n':
			return l.errorf("Unterminated string")
		case '\\':
			l.next()
			if l.peek() != eof && l.peek() != '\n' {
				l.next()
			}
			continue
		}
		l.next()
		if r == '"' {
			return l.emit(TokenString)
		}
	}
}
