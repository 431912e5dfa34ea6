// Package vm implements the Passerine virtual machine: the runtime value
// model, bytecode lambdas, closures, fibers, and the dispatch loop.
package vm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Value: tagged runtime values
// ---------------------------------------------------------------------------

// Kind identifies the runtime kind of a Value.
type Kind int

const (
	KindUnit Kind = iota
	KindBoolean
	KindInteger
	KindReal
	KindString
	KindLabel
	KindTuple
	KindList
	KindRecord
	KindClosure
	KindFiber
)

var kindNames = map[Kind]string{
	KindUnit:    "Unit",
	KindBoolean: "Boolean",
	KindInteger: "Integer",
	KindReal:    "Real",
	KindString:  "String",
	KindLabel:   "Label",
	KindTuple:   "Tuple",
	KindList:    "List",
	KindRecord:  "Record",
	KindClosure: "Closure",
	KindFiber:   "Fiber",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Value is the interface implemented by all runtime values.
type Value interface {
	Kind() Kind
	value() // marker method
}

// Unit is the empty value ().
type Unit struct{}

func (Unit) Kind() Kind { return KindUnit }
func (Unit) value()     {}

// Boolean is true or false.
type Boolean bool

func (Boolean) Kind() Kind { return KindBoolean }
func (Boolean) value()     {}

// Integer is a 64-bit signed integer. Arithmetic wraps around.
type Integer int64

func (Integer) Kind() Kind { return KindInteger }
func (Integer) value()     {}

// Real is a 64-bit IEEE-754 float.
type Real float64

func (Real) Kind() Kind { return KindReal }
func (Real) value()     {}

// String is an immutable UTF-8 string.
type String string

func (String) Kind() Kind { return KindString }
func (String) value()     {}

// Label is a named wrapper around a value, the algebraic-constructor
// mechanism: `Some 1` is &Label{"Some", Integer(1)}.
type Label struct {
	Name  string
	Inner Value
}

func (*Label) Kind() Kind { return KindLabel }
func (*Label) value()     {}

// Tuple is a fixed-length ordered sequence of values.
type Tuple []Value

func (Tuple) Kind() Kind { return KindTuple }
func (Tuple) value()     {}

// List is a variable-length sequence of values. The VM does not enforce
// homogeneity.
type List []Value

func (List) Kind() Kind { return KindList }
func (List) value()     {}

// Record is an unordered mapping from field name to value.
type Record map[string]Value

func (Record) Kind() Kind { return KindRecord }
func (Record) value()     {}

// Cell is a single-slot mutable heap container holding one value, shared
// between a local binding and any closures that capture it.
type Cell struct {
	Value Value
}

// NewCell creates a cell holding v.
func NewCell(v Value) *Cell {
	return &Cell{Value: v}
}

// Closure pairs a Lambda with its captured cells. The cells slice always
// has exactly the length of the lambda's capture descriptor.
type Closure struct {
	Lambda *Lambda
	Cells  []*Cell
}

func (*Closure) Kind() Kind { return KindClosure }
func (*Closure) value()     {}

// boxed wraps a Cell so it can occupy a stack slot after a Heap lift. It
// is never visible to user code: Load and Save dereference it
// transparently.
type boxed struct {
	cell *Cell
}

func (*boxed) Kind() Kind { return Kind(-1) }
func (*boxed) value()     {}

// ---------------------------------------------------------------------------
// Truthiness and equality
// ---------------------------------------------------------------------------

// Truthy reports whether v counts as true in guards and conditionals.
// Boolean false and Unit are falsy; everything else is truthy.
func Truthy(v Value) bool {
	switch t := v.(type) {
	case Boolean:
		return bool(t)
	case Unit:
		return false
	default:
		return true
	}
}

// Equal reports structural equality. Values of distinct kinds are never
// equal; closures are equal iff they share the same lambda and identical
// captured cells; fibers are equal iff they are the same fiber.
func Equal(a, b Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case Unit:
		return true
	case Boolean:
		return x == b.(Boolean)
	case Integer:
		return x == b.(Integer)
	case Real:
		return x == b.(Real)
	case String:
		return x == b.(String)
	case *Label:
		y := b.(*Label)
		return x.Name == y.Name && Equal(x.Inner, y.Inner)
	case Tuple:
		return equalSlices(x, b.(Tuple))
	case List:
		return equalSlices(x, b.(List))
	case Record:
		y := b.(Record)
		if len(x) != len(y) {
			return false
		}
		for k, v := range x {
			w, ok := y[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	case *Closure:
		y := b.(*Closure)
		if x.Lambda != y.Lambda || len(x.Cells) != len(y.Cells) {
			return false
		}
		for i := range x.Cells {
			if x.Cells[i] != y.Cells[i] {
				return false
			}
		}
		return true
	case *Fiber:
		return x == b.(*Fiber)
	}
	return false
}

func equalSlices(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Printing
// ---------------------------------------------------------------------------

// Repr returns the canonical printed form of a value: the form the REPL
// shows and the snippet harness compares byte-exact against `expect`.
// Strings appear quoted.
func Repr(v Value) string {
	var sb strings.Builder
	writeRepr(&sb, v)
	return sb.String()
}

// Display is Repr except that a bare top-level string prints unquoted.
// Used by the println primitive.
func Display(v Value) string {
	if s, ok := v.(String); ok {
		return string(s)
	}
	return Repr(v)
}

func writeRepr(sb *strings.Builder, v Value) {
	switch t := v.(type) {
	case Unit:
		sb.WriteString("()")
	case Boolean:
		if t {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case Integer:
		sb.WriteString(strconv.FormatInt(int64(t), 10))
	case Real:
		s := strconv.FormatFloat(float64(t), 'g', -1, 64)
		// Reals always show a decimal point or exponent.
		if !strings.ContainsAny(s, ".eE") && !strings.Contains(s, "Inf") && !strings.Contains(s, "NaN") {
			s += ".0"
		}
		sb.WriteString(s)
	case String:
		sb.WriteString(strconv.Quote(string(t)))
	case *Label:
		sb.WriteString(t.Name)
		if _, isUnit := t.Inner.(Unit); !isUnit {
			sb.WriteByte(' ')
			writeLabelArg(sb, t.Inner)
		}
	case Tuple:
		sb.WriteByte('(')
		for i, e := range t {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeRepr(sb, e)
		}
		sb.WriteByte(')')
	case List:
		sb.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeRepr(sb, e)
		}
		sb.WriteByte(']')
	case Record:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString(": ")
			writeRepr(sb, t[k])
		}
		sb.WriteByte('}')
	case *Closure:
		sb.WriteString("<closure>")
	case *Fiber:
		sb.WriteString("<fiber ")
		sb.WriteString(t.Status.String())
		sb.WriteByte('>')
	case *Lambda:
		sb.WriteString("<")
		sb.WriteString(t.String())
		sb.WriteString(">")
	default:
		sb.WriteString("<invalid>")
	}
}

// writeLabelArg parenthesises label payloads that would otherwise
// reparse ambiguously (a label applied to another applied label).
func writeLabelArg(sb *strings.Builder, v Value) {
	if l, ok := v.(*Label); ok {
		if _, isUnit := l.Inner.(Unit); !isUnit {
			sb.WriteByte('(')
			writeRepr(sb, v)
			sb.WriteByte(')')
			return
		}
	}
	writeRepr(sb, v)
}
