// Package formatter re-indents WAT source. Tokens keep their order and
// line breaks; only the whitespace between them is rewritten.
package formatter

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/EmNudge/wat-lsp/internal/parser"
)

// ErrSyntax is returned for input the parser could not read cleanly.
// Reformatting it could move tokens across a recovery point.
var ErrSyntax = errors.New("cannot format source with syntax errors")

type Options struct {
	TabSize int
	UseTabs bool
}

func DefaultOptions() Options {
	return Options{TabSize: 2}
}

func (o Options) unit() string {
	if o.UseTabs {
		return "\t"
	}
	if o.TabSize <= 0 {
		return "  "
	}
	return strings.Repeat(" ", o.TabSize)
}

// Flat control instructions that open, split and close an indented body.
var (
	opens  = map[string]bool{"block": true, "loop": true, "if": true, "try": true, "try_table": true}
	splits = map[string]bool{"else": true, "catch": true, "catch_all": true}
	closes = map[string]bool{"end": true, "delegate": true}
)

type formatter struct {
	w      io.Writer
	indent string
	err    error
}

func (f *formatter) write(s string) {
	if f.err != nil {
		return
	}
	_, f.err = io.WriteString(f.w, s)
}

// Format writes text re-indented to w.
func Format(text string, w io.Writer, opts Options) error {
	tree := parser.Parse(text)
	if len(tree.Errors) > 0 {
		return ErrSyntax
	}

	var toks []parser.Token
	lex := parser.NewLexer(text)
	for {
		tok := lex.NextToken()
		if tok.Type == parser.TokenEOF {
			break
		}
		if tok.Type == parser.TokenError {
			return ErrSyntax
		}
		toks = append(toks, tok)
	}

	f := &formatter{w: w, indent: opts.unit()}
	depth := 0
	for i, tok := range toks {
		flat := isFlat(toks, i)

		if i > 0 {
			prev := toks[i-1]
			if gap := tok.Start.Line - prev.End.Line; gap > 0 {
				f.write("\n")
				if gap > 1 {
					f.write("\n")
				}
				f.write(strings.Repeat(f.indent, lineIndent(tok, flat, depth)))
			} else if prev.Type != parser.TokenLParen && tok.Type != parser.TokenRParen {
				f.write(" ")
			}
		}

		switch {
		case tok.Type == parser.TokenLParen:
			depth++
		case tok.Type == parser.TokenRParen:
			depth = max(depth-1, 0)
		case flat && opens[tok.Value]:
			depth++
		case flat && closes[tok.Value]:
			depth = max(depth-1, 0)
		}

		f.write(tokenText(tok))
	}
	if len(toks) > 0 {
		f.write("\n")
	}
	return f.err
}

// String is Format into a string.
func String(text string, opts Options) (string, error) {
	var buf bytes.Buffer
	if err := Format(text, &buf, opts); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// isFlat reports whether the keyword at i is written without a paren, as
// in "block $l ... end".
func isFlat(toks []parser.Token, i int) bool {
	return toks[i].Type == parser.TokenKeyword && (i == 0 || toks[i-1].Type != parser.TokenLParen)
}

func lineIndent(tok parser.Token, flat bool, depth int) int {
	switch {
	case tok.Type == parser.TokenRParen:
		depth--
	case flat && (splits[tok.Value] || closes[tok.Value]):
		depth--
	}
	return max(depth, 0)
}

func tokenText(tok parser.Token) string {
	if tok.Type != parser.TokenLineComment {
		return tok.Value
	}
	return fixComment(strings.TrimRight(tok.Value, " \t\r"))
}

// fixComment puts a space after ";;". Pragmas (";;!") and runs of
// semicolons are left alone.
func fixComment(text string) string {
	if len(text) > 2 && text[2] != ' ' && text[2] != '\t' && text[2] != ';' && text[2] != '!' {
		return ";; " + text[2:]
	}
	return text
}
