package validator

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/EmNudge/wat-lsp/internal/index"
	"github.com/EmNudge/wat-lsp/internal/instr"
	"github.com/EmNudge/wat-lsp/internal/parser"
)

// Source is reported with every diagnostic.
const Source = "wat-lsp"

type DiagnosticLevel int

const (
	LevelError DiagnosticLevel = iota
	LevelWarning
)

func (l DiagnosticLevel) String() string {
	if l == LevelWarning {
		return "WARNING"
	}
	return "ERROR"
}

// Tags name each class of diagnostic. They double as the diagnostic code
// and as the argument of allow(...) and ignore(...) pragmas.
const (
	TagSyntax     = "syntax"
	TagDuplicate  = "duplicate"
	TagUnresolved = "unresolved"
	TagArity      = "arity"
	TagUnknown    = "unknown"
	TagImmutable  = "immutable"
)

type Diagnostic struct {
	Level   DiagnosticLevel
	Message string
	Range   parser.Range
	Tag     string
	Source  string
	File    string
}

type Options struct {
	Syntax     bool
	Duplicates bool
	Unresolved bool
	Arity      bool
	Unknown    bool
	Immutable  bool
}

func DefaultOptions() Options {
	return Options{
		Syntax:     true,
		Duplicates: true,
		Unresolved: true,
		Arity:      true,
		Unknown:    true,
		Immutable:  true,
	}
}

type Validator struct {
	Diagnostics []Diagnostic
	Tree        *parser.Tree
	Symbols     *index.Table
	Options     Options

	allowed map[string]bool
	ignored map[int][]string // line -> tags
}

func New(tree *parser.Tree, symbols *index.Table, opts Options) *Validator {
	v := &Validator{
		Tree:    tree,
		Symbols: symbols,
		Options: opts,
		allowed: make(map[string]bool),
		ignored: make(map[int][]string),
	}
	v.collectPragmas()
	return v
}

// Validate runs every enabled check and returns the diagnostics in
// document order.
func (v *Validator) Validate() []Diagnostic {
	if v.Options.Syntax {
		v.CheckSyntax()
	}
	if v.Options.Duplicates {
		v.CheckDuplicates()
	}
	if v.Options.Unresolved {
		v.CheckUnresolved()
	}
	if v.Options.Arity || v.Options.Unknown || v.Options.Immutable {
		v.CheckInstructions()
	}
	sort.SliceStable(v.Diagnostics, func(i, j int) bool {
		return v.Diagnostics[i].Range.Start.Before(v.Diagnostics[j].Range.Start)
	})
	return v.Diagnostics
}

// ValidateFiles checks already indexed files in parallel. The result is
// aligned with files.
func ValidateFiles(ctx context.Context, files []*index.File, opts Options) ([][]Diagnostic, error) {
	out := make([][]Diagnostic, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			diags := New(f.Tree, f.Table, opts).Validate()
			for j := range diags {
				diags[j].File = f.Path
			}
			out[i] = diags
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// collectPragmas reads ";;! allow(tag, ...)" comments, which silence tags
// for the whole file, and ";;! ignore(tag, ...)" comments, which silence
// them on their own line and the line below.
func (v *Validator) collectPragmas() {
	for _, c := range v.Tree.Comments {
		text, ok := strings.CutPrefix(c.Text, ";;!")
		if !ok {
			continue
		}
		for _, m := range pragmaRe.FindAllStringSubmatch(text, -1) {
			for _, tag := range strings.Split(m[2], ",") {
				tag = strings.TrimSpace(tag)
				if tag == "" {
					continue
				}
				if m[1] == "allow" {
					v.allowed[tag] = true
					continue
				}
				v.ignored[c.Start.Line] = append(v.ignored[c.Start.Line], tag)
				v.ignored[c.Start.Line+1] = append(v.ignored[c.Start.Line+1], tag)
			}
		}
	}
}

var pragmaRe = regexp.MustCompile(`\b(allow|ignore)\s*\(([^)]*)\)`)

func (v *Validator) isSuppressed(tag string, line int) bool {
	if v.allowed[tag] || v.allowed["all"] {
		return true
	}
	for _, t := range v.ignored[line] {
		if t == tag || t == "all" {
			return true
		}
	}
	return false
}

func (v *Validator) report(tag string, level DiagnosticLevel, msg string, rng parser.Range) {
	if v.isSuppressed(tag, rng.Start.Line) {
		return
	}
	v.Diagnostics = append(v.Diagnostics, Diagnostic{
		Level:   level,
		Message: msg,
		Range:   rng,
		Tag:     tag,
		Source:  Source,
	})
}

// CheckSyntax reports every error node the parser recovered from.
func (v *Validator) CheckSyntax() {
	for _, n := range v.Tree.Errors {
		msg := n.Message
		if msg == "" {
			msg = "Syntax error"
		}
		v.report(TagSyntax, LevelError, msg, n.Range())
	}
}

// CheckDuplicates reports every declaration whose name was already taken
// in its index space. The first declaration stays canonical.
func (v *Validator) CheckDuplicates() {
	for _, sym := range v.Symbols.Duplicates {
		v.report(TagDuplicate, LevelError, fmt.Sprintf("Duplicate %s '%s'", sym.Kind, sym.Name), sym.Range)
	}
}

// CheckUnresolved reports every reference that did not resolve.
func (v *Validator) CheckUnresolved() {
	for _, ref := range v.Symbols.Unresolved() {
		v.report(TagUnresolved, LevelError, v.unresolvedMessage(ref), ref.Range())
	}
}

func spaceName(k index.Kind) string {
	if k == index.KindLocal {
		return "local or parameter"
	}
	return k.String()
}

func plural(k index.Kind) string {
	switch k {
	case index.KindMemory:
		return "memories"
	case index.KindLocal:
		return "locals"
	}
	return k.String() + "s"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (v *Validator) unresolvedMessage(ref *index.Reference) string {
	switch ref.Reason {
	case index.ReasonOutOfBounds:
		if ref.Kind == index.KindLabel {
			return fmt.Sprintf("Label depth %s out of bounds", ref.Name)
		}
		count := 0
		if ref.Kind == index.KindLocal {
			if ref.Scope != nil {
				count = ref.Scope.Func.Locals.Len()
			}
		} else if space := v.Symbols.Space(ref.Kind); space != nil {
			count = space.Len()
		}
		noun := plural(ref.Kind)
		if count == 1 {
			noun = ref.Kind.String()
		}
		return fmt.Sprintf("%s index %s out of bounds (%d %s defined)", capitalize(ref.Kind.String()), ref.Name, count, noun)

	case index.ReasonWrongScope:
		if ref.Scope == nil {
			return fmt.Sprintf("%s '%s' used outside of a function", capitalize(ref.Kind.String()), ref.Name)
		}
		if ref.Kind == index.KindLabel {
			return fmt.Sprintf("Label '%s' is not in scope here", ref.Name)
		}
		return fmt.Sprintf("Local '%s' belongs to another function", ref.Name)

	case index.ReasonLabelMismatch:
		if label := v.Symbols.LabelOf(ref.Instr); label != nil && label.Name != "" {
			return fmt.Sprintf("Label '%s' does not match '%s'", ref.Name, label.Name)
		}
		return fmt.Sprintf("Label '%s' does not match an unnamed block", ref.Name)
	}
	return fmt.Sprintf("Undefined %s '%s'", spaceName(ref.Kind), ref.Name)
}

// CheckInstructions walks every instruction for unknown mnemonics, operand
// counts of folded forms and writes to immutable globals.
func (v *Validator) CheckInstructions() {
	v.Tree.Walk(func(n *parser.Node) bool {
		if n.Kind == parser.KindInstr {
			v.checkInstr(n)
		}
		return true
	})
}

func (v *Validator) checkInstr(n *parser.Node) {
	kw := n.KeywordNode()
	if kw == nil {
		return
	}
	info, ok := instr.Lookup(kw.Text)
	if !ok {
		if v.Options.Unknown {
			v.report(TagUnknown, LevelWarning, fmt.Sprintf("Unknown instruction '%s'", kw.Text), kw.Range())
		}
		return
	}

	if v.Options.Immutable && kw.Text == "global.set" {
		for _, c := range n.Children[1:] {
			ref := v.Symbols.ReferenceFor(c)
			if ref == nil || ref.Target == nil {
				continue
			}
			if g := ref.Target.Global; g != nil && !g.Mutable {
				v.report(TagImmutable, LevelWarning, fmt.Sprintf("Cannot set immutable global '%s'", ref.Target.DisplayName()), ref.Range())
			}
		}
	}

	if v.Options.Arity && n.Folded {
		v.checkArity(n, info)
	}
}

// checkArity compares the folded operands of n with what the instruction
// consumes. Writing no operands at all is fine: they come from the stack.
func (v *Validator) checkArity(n *parser.Node, info instr.Info) {
	want := info.Operands
	if info.Name == "call" || info.Name == "return_call" {
		for _, c := range n.Children[1:] {
			if ref := v.Symbols.ReferenceFor(c); ref != nil && ref.Target != nil && ref.Target.Func != nil {
				want = len(ref.Target.Func.Params)
				break
			}
		}
	}
	if want < 0 {
		return
	}

	got := 0
	for _, c := range n.Children {
		if c.Kind == parser.KindInstr || c.Kind == parser.KindBlock {
			got++
		}
	}
	if got == 0 || got == want {
		return
	}
	noun := "operands"
	if want == 1 {
		noun = "operand"
	}
	v.report(TagArity, LevelWarning, fmt.Sprintf("Instruction '%s' expects %d %s, but got %d", info.Name, want, noun, got), n.Range())
}
