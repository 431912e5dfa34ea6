package vm

import (
	"encoding/binary"
	"fmt"
)

// ---------------------------------------------------------------------------
// Span: source regions attached to bytecode
// ---------------------------------------------------------------------------

// Span is a source region: a byte offset and length within a named
// source.
type Span struct {
	Source string
	Offset int
	Length int
}

func (s Span) String() string {
	return fmt.Sprintf("%s:%d+%d", s.Source, s.Offset, s.Length)
}

// SpanEntry maps a bytecode offset to the source region the following
// instructions were generated from.
type SpanEntry struct {
	IP   int
	Span Span
}

// ---------------------------------------------------------------------------
// Capture descriptor
// ---------------------------------------------------------------------------

// CaptureSite tells the VM where the i-th captured cell of a closure is
// sourced when OpClosure executes: from a local slot of the constructing
// frame, or from a captured cell of the constructing closure.
type CaptureSite struct {
	FromLocal bool // true: Index is a stack slot; false: Index is a capture index
	Index     int
}

// LocalSite describes a capture sourced from the constructing frame's
// local slot.
func LocalSite(index int) CaptureSite {
	return CaptureSite{FromLocal: true, Index: index}
}

// NonlocalSite describes a capture sourced from the constructing
// closure's own captured cell.
func NonlocalSite(index int) CaptureSite {
	return CaptureSite{FromLocal: false, Index: index}
}

// ---------------------------------------------------------------------------
// Lambda: the immutable output of the bytecode generator
// ---------------------------------------------------------------------------

// Lambda is a compiled code object: bytecode, constant pool, capture
// descriptor, source-span table, and the arity of the leading parameter
// pattern.
type Lambda struct {
	Name      string // binding name when known, for diagnostics
	Code      []byte
	Constants []Value
	Captured  []CaptureSite
	Spans     []SpanEntry
	Arity     int // symbols bound by the parameter pattern
	NumSlots  int // total local slots, argument included
}

// NewLambda creates an empty lambda to be filled by a builder.
func NewLambda(name string) *Lambda {
	return &Lambda{
		Name:      name,
		Code:      make([]byte, 0, 32),
		Constants: make([]Value, 0, 8),
	}
}

// IndexConstant adds a value to the constant pool, reusing an existing
// entry when one is structurally equal, and returns its index.
// Lambda-valued constants are never merged.
func (l *Lambda) IndexConstant(v Value) int {
	if _, isClosure := v.(*Closure); !isClosure {
		for i, c := range l.Constants {
			if _, skip := c.(*Closure); skip {
				continue
			}
			if Equal(c, v) {
				return i
			}
		}
	}
	l.Constants = append(l.Constants, v)
	return len(l.Constants) - 1
}

// Constant returns the constant at index k.
func (l *Lambda) Constant(k int) (Value, *RuntimeError) {
	if k < 0 || k >= len(l.Constants) {
		return nil, internalErrorf("constant index %d out of range (len=%d)", k, len(l.Constants))
	}
	return l.Constants[k], nil
}

// Emit appends an opcode with no operands.
func (l *Lambda) Emit(op Opcode) {
	l.Code = append(l.Code, byte(op))
}

// EmitUint16 appends an opcode with one 16-bit operand.
func (l *Lambda) EmitUint16(op Opcode, operand uint16) {
	l.Code = append(l.Code, byte(op), 0, 0)
	binary.LittleEndian.PutUint16(l.Code[len(l.Code)-2:], operand)
}

// EmitUint16Pair appends an opcode with two 16-bit operands.
func (l *Lambda) EmitUint16Pair(op Opcode, a, b uint16) {
	l.Code = append(l.Code, byte(op), 0, 0, 0, 0)
	binary.LittleEndian.PutUint16(l.Code[len(l.Code)-4:], a)
	binary.LittleEndian.PutUint16(l.Code[len(l.Code)-2:], b)
}

// EmitByteUint16 appends an opcode with an 8-bit and a 16-bit operand.
func (l *Lambda) EmitByteUint16(op Opcode, a byte, b uint16) {
	l.Code = append(l.Code, byte(op), a, 0, 0)
	binary.LittleEndian.PutUint16(l.Code[len(l.Code)-2:], b)
}

// Len returns the current bytecode length.
func (l *Lambda) Len() int {
	return len(l.Code)
}

// PatchUint16 rewrites the 16-bit operand at the given code offset.
// Used to back-fill forward jump distances.
func (l *Lambda) PatchUint16(offset int, operand uint16) {
	binary.LittleEndian.PutUint16(l.Code[offset:], operand)
}

// MarkSpan records that bytecode emitted from here on originates from
// the given source region. Consecutive identical spans collapse.
func (l *Lambda) MarkSpan(span Span) {
	if n := len(l.Spans); n > 0 && l.Spans[n-1].Span == span {
		return
	}
	l.Spans = append(l.Spans, SpanEntry{IP: len(l.Code), Span: span})
}

// SpanAt returns the source region for a bytecode offset: the most
// recent entry at or before it.
func (l *Lambda) SpanAt(ip int) Span {
	var result Span
	for _, e := range l.Spans {
		if e.IP <= ip {
			result = e.Span
		} else {
			break
		}
	}
	return result
}

// Disassemble renders the lambda's bytecode for inspection.
func (l *Lambda) Disassemble() string {
	return Disassemble(l.Code, l.Constants)
}

func (l *Lambda) String() string {
	if l.Name != "" {
		return "lambda " + l.Name
	}
	return "lambda"
}

// Lambdas live in constant pools, so they satisfy Value; they never
// reach the user-visible stack (OpClosure converts them to closures).
func (*Lambda) Kind() Kind { return Kind(-2) }
func (*Lambda) value()     {}
