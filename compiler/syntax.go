// Package compiler implements the Passerine compilation pipeline:
// lexing, parsing, desugaring, hoisting, and bytecode generation.
package compiler

import (
	"fmt"
	"strings"

	"github.com/vrtbl/passerine/vm"
)

// ---------------------------------------------------------------------------
// Source: a named body of code
// ---------------------------------------------------------------------------

// Source is a named UTF-8 source text. The name only feeds diagnostics.
type Source struct {
	Name string
	Text string
}

// NewSource wraps a source text under a diagnostic name.
func NewSource(name, text string) *Source {
	return &Source{Name: name, Text: text}
}

// Slice returns the text a span covers.
func (s *Source) Slice(span Span) string {
	start := span.Start.Offset
	end := span.End.Offset
	if start < 0 || end > len(s.Text) || start > end {
		return ""
	}
	return s.Text[start:end]
}

// ---------------------------------------------------------------------------
// Positions and spans
// ---------------------------------------------------------------------------

// Position is a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span is a half-open source range [Start, End).
type Span struct {
	Start Position
	End   Position
}

// MakeSpan creates a span from start and end positions.
func MakeSpan(start, end Position) Span {
	return Span{Start: start, End: end}
}

// JoinSpans returns the smallest span covering both operands.
func JoinSpans(a, b Span) Span {
	out := a
	if b.Start.Offset < out.Start.Offset {
		out.Start = b.Start
	}
	if b.End.Offset > out.End.Offset {
		out.End = b.End
	}
	return out
}

// Length returns the byte length of the span.
func (s Span) Length() int {
	return s.End.Offset - s.Start.Offset
}

// ToVM converts the span into the runtime's (source, offset, length)
// form.
func (s Span) ToVM(source *Source) vm.Span {
	name := ""
	if source != nil {
		name = source.Name
	}
	return vm.Span{Source: name, Offset: s.Start.Offset, Length: s.Length()}
}

// ---------------------------------------------------------------------------
// Syntax: structured compile-stage diagnostics
// ---------------------------------------------------------------------------

// DiagKind classifies a compile-stage diagnostic.
type DiagKind int

const (
	// KindLex: bad byte, unterminated literal, unknown escape.
	KindLex DiagKind = iota
	// KindSyntax: unbalanced grouping, unexpected token, malformed
	// pattern.
	KindSyntax
	// KindResolution: undeclared name or non-symbol in binding position.
	KindResolution
)

var diagKindNames = map[DiagKind]string{
	KindLex:        "LexError",
	KindSyntax:     "SyntaxError",
	KindResolution: "ResolutionError",
}

func (k DiagKind) String() string {
	if name, ok := diagKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("DiagKind(%d)", int(k))
}

// Syntax is a structured compile error: a kind, a message, a primary
// span, and any number of secondary spans. Rendering is left to the
// caller; Error produces a plain one-line form.
type Syntax struct {
	DiagKind  DiagKind
	Message   string
	Primary   Span
	Secondary []Span
	Source    *Source
}

func (s *Syntax) Error() string {
	var sb strings.Builder
	sb.WriteString(s.DiagKind.String())
	if s.Source != nil {
		fmt.Fprintf(&sb, " in %s", s.Source.Name)
	}
	fmt.Fprintf(&sb, " at %d:%d: %s", s.Primary.Start.Line, s.Primary.Start.Column, s.Message)
	return sb.String()
}

// Note attaches a secondary span.
func (s *Syntax) Note(span Span) *Syntax {
	s.Secondary = append(s.Secondary, span)
	return s
}

func lexErrorf(source *Source, span Span, format string, args ...interface{}) *Syntax {
	return &Syntax{DiagKind: KindLex, Message: fmt.Sprintf(format, args...), Primary: span, Source: source}
}

func syntaxErrorf(source *Source, span Span, format string, args ...interface{}) *Syntax {
	return &Syntax{DiagKind: KindSyntax, Message: fmt.Sprintf(format, args...), Primary: span, Source: source}
}

func resolutionErrorf(source *Source, span Span, format string, args ...interface{}) *Syntax {
	return &Syntax{DiagKind: KindResolution, Message: fmt.Sprintf(format, args...), Primary: span, Source: source}
}
