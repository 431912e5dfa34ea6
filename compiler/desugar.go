package compiler

import (
	"github.com/vrtbl/passerine/vm"
)

// ---------------------------------------------------------------------------
// Desugarer: surface conveniences to the canonical core
// ---------------------------------------------------------------------------

// Built-in binary operators lowered to a single FFI primitive applied to
// an operand pair.
var binaryPrimitives = map[string]string{
	"+":  "add",
	"-":  "sub",
	"*":  "mul",
	"/":  "div",
	"%":  "rem",
	"==": "equal",
	"<":  "less",
	">":  "greater",
	"<=": "less_equal",
	">=": "greater_equal",
}

// Desugar lowers a parsed tree to the canonical core the generator
// consumes: operators become FFI calls, short-circuit logic becomes
// thunked conditionals, annotations drop to their expression, and
// single-expression blocks unwrap.
func Desugar(source *Source, expr Expr) (Expr, *Syntax) {
	d := &desugarer{source: source}
	return d.expr(expr)
}

type desugarer struct {
	source *Source
}

func (d *desugarer) expr(e Expr) (Expr, *Syntax) {
	switch n := e.(type) {
	case *Symbol, *LabelNode, *Literal:
		return e, nil

	case *Block:
		children := make([]Expr, len(n.Children))
		for i, c := range n.Children {
			out, err := d.expr(c)
			if err != nil {
				return nil, err
			}
			children[i] = out
		}
		if len(children) == 1 {
			return children[0], nil
		}
		return &Block{SpanVal: n.SpanVal, Children: children}, nil

	case *TupleNode:
		children, err := d.exprs(n.Children)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			return &Literal{SpanVal: n.SpanVal, Value: vm.Unit{}}, nil
		}
		return &TupleNode{SpanVal: n.SpanVal, Children: children}, nil

	case *ListNode:
		children := make([]Expr, len(n.Children))
		for i, c := range n.Children {
			if rest, isRest := c.(*RestNode); isRest {
				return nil, syntaxErrorf(d.source, rest.SpanVal, "..rest is only valid in a pattern")
			}
			out, err := d.expr(c)
			if err != nil {
				return nil, err
			}
			children[i] = out
		}
		return &ListNode{SpanVal: n.SpanVal, Children: children}, nil

	case *RecordNode:
		fields := make([]Field, len(n.Fields))
		for i, f := range n.Fields {
			out, err := d.expr(f.Value)
			if err != nil {
				return nil, err
			}
			fields[i] = Field{Name: f.Name, Value: out}
		}
		return &RecordNode{SpanVal: n.SpanVal, Fields: fields}, nil

	case *Call:
		fun, err := d.expr(n.Fun)
		if err != nil {
			return nil, err
		}
		arg, err := d.expr(n.Argument)
		if err != nil {
			return nil, err
		}
		return &Call{SpanVal: n.SpanVal, Fun: fun, Argument: arg}, nil

	case *LambdaNode:
		pat, err := d.pattern(n.Pattern)
		if err != nil {
			return nil, err
		}
		body, err := d.expr(n.Body)
		if err != nil {
			return nil, err
		}
		return &LambdaNode{SpanVal: n.SpanVal, Pattern: pat, Body: body}, nil

	case *Assign:
		pat, err := d.pattern(n.Pattern)
		if err != nil {
			return nil, err
		}
		value, err := d.expr(n.Expression)
		if err != nil {
			return nil, err
		}
		return &Assign{SpanVal: n.SpanVal, Pattern: pat, Expression: value}, nil

	case *Match:
		scrut, err := d.expr(n.Scrutinee)
		if err != nil {
			return nil, err
		}
		arms := make([]MatchArm, len(n.Arms))
		for i, arm := range n.Arms {
			pat, err := d.pattern(arm.Pattern)
			if err != nil {
				return nil, err
			}
			body, err := d.expr(arm.Body)
			if err != nil {
				return nil, err
			}
			arms[i] = MatchArm{SpanVal: arm.SpanVal, Pattern: pat, Body: body}
		}
		return &Match{SpanVal: n.SpanVal, Scrutinee: scrut, Arms: arms}, nil

	case *FFI:
		arg, err := d.expr(n.Argument)
		if err != nil {
			return nil, err
		}
		return &FFI{SpanVal: n.SpanVal, Name: n.Name, Argument: arg}, nil

	case *FiberNode:
		body, err := d.expr(n.Body)
		if err != nil {
			return nil, err
		}
		return &FiberNode{SpanVal: n.SpanVal, Body: body}, nil

	case *Yield:
		value, err := d.expr(n.Value)
		if err != nil {
			return nil, err
		}
		return &Yield{SpanVal: n.SpanVal, Value: value}, nil

	case *Try:
		body, err := d.expr(n.Body)
		if err != nil {
			return nil, err
		}
		return &Try{SpanVal: n.SpanVal, Body: body}, nil

	case *Loop:
		body, err := d.expr(n.Body)
		if err != nil {
			return nil, err
		}
		return &Loop{SpanVal: n.SpanVal, Body: body}, nil

	case *ErrorNode:
		value, err := d.expr(n.Value)
		if err != nil {
			return nil, err
		}
		return &ErrorNode{SpanVal: n.SpanVal, Value: value}, nil

	case *Annotation:
		// Dynamically typed: the annotation has no runtime meaning.
		return d.expr(n.Expr)

	case *Binary:
		return d.binary(n)

	case *RestNode:
		return nil, syntaxErrorf(d.source, n.SpanVal, "..rest is only valid in a pattern")

	default:
		return nil, syntaxErrorf(d.source, e.Span(), "cannot desugar node")
	}
}

func (d *desugarer) exprs(in []Expr) ([]Expr, *Syntax) {
	out := make([]Expr, len(in))
	for i, e := range in {
		lowered, err := d.expr(e)
		if err != nil {
			return nil, err
		}
		out[i] = lowered
	}
	return out, nil
}

// binary lowers an infix application: built-in operators become FFI
// pairs, && and || become thunked conditionals, and anything else is a
// curried call of a symbol named after the operator.
func (d *desugarer) binary(n *Binary) (Expr, *Syntax) {
	left, err := d.expr(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := d.expr(n.Right)
	if err != nil {
		return nil, err
	}
	span := n.SpanVal

	if prim, ok := binaryPrimitives[n.Op]; ok {
		return ffiPair(span, prim, left, right), nil
	}

	switch n.Op {
	case "!=":
		return &FFI{
			SpanVal:  span,
			Name:     "not",
			Argument: ffiPair(span, "equal", left, right),
		}, nil

	case "&&":
		// a && b  =>  (if (a, {b}, {false})) ()
		return selectThunk(span, left, thunk(span, right), thunk(span, &Literal{SpanVal: span, Value: vm.Boolean(false)})), nil

	case "||":
		// a || b  =>  (if (a, {true}, {b})) ()
		return selectThunk(span, left, thunk(span, &Literal{SpanVal: span, Value: vm.Boolean(true)}), thunk(span, right)), nil

	case "|":
		return nil, syntaxErrorf(d.source, span, "pattern guard outside a pattern")

	default:
		// User-defined operator: `a op b` is `(op) a b`.
		return &Call{
			SpanVal: span,
			Fun: &Call{
				SpanVal:  span,
				Fun:      &Symbol{SpanVal: span, Name: n.Op},
				Argument: left,
			},
			Argument: right,
		}, nil
	}
}

// ffiPair builds `magic "name" (a, b)`.
func ffiPair(span Span, name string, a, b Expr) Expr {
	return &FFI{
		SpanVal: span,
		Name:    name,
		Argument: &TupleNode{
			SpanVal:  span,
			Children: []Expr{a, b},
		},
	}
}

// thunk wraps an expression in a lambda that discards its argument.
func thunk(span Span, body Expr) Expr {
	return &LambdaNode{
		SpanVal: span,
		Pattern: &PatDiscard{SpanVal: span},
		Body:    body,
	}
}

// selectThunk builds `(if (cond, t, f)) ()`: the if primitive returns
// the selected thunk, and the call forces it.
func selectThunk(span Span, cond, t, f Expr) Expr {
	return &Call{
		SpanVal: span,
		Fun: &FFI{
			SpanVal: span,
			Name:    "if",
			Argument: &TupleNode{
				SpanVal:  span,
				Children: []Expr{cond, t, f},
			},
		},
		Argument: &Literal{SpanVal: span, Value: vm.Unit{}},
	}
}

func (d *desugarer) pattern(p Pattern) (Pattern, *Syntax) {
	switch n := p.(type) {
	case *PatSymbol, *PatDiscard, *PatLiteral:
		return p, nil

	case *PatLabel:
		inner, err := d.pattern(n.Inner)
		if err != nil {
			return nil, err
		}
		return &PatLabel{SpanVal: n.SpanVal, Name: n.Name, Inner: inner}, nil

	case *PatTuple:
		children := make([]Pattern, len(n.Children))
		for i, c := range n.Children {
			out, err := d.pattern(c)
			if err != nil {
				return nil, err
			}
			children[i] = out
		}
		if len(children) == 0 {
			return &PatLiteral{SpanVal: n.SpanVal, Value: vm.Unit{}}, nil
		}
		return &PatTuple{SpanVal: n.SpanVal, Children: children}, nil

	case *PatList:
		out := &PatList{SpanVal: n.SpanVal}
		for _, c := range n.Children {
			lowered, err := d.pattern(c)
			if err != nil {
				return nil, err
			}
			out.Children = append(out.Children, lowered)
		}
		if n.Rest != nil {
			rest, err := d.pattern(n.Rest)
			if err != nil {
				return nil, err
			}
			out.Rest = rest
		}
		return out, nil

	case *PatRecord:
		out := &PatRecord{SpanVal: n.SpanVal}
		for _, f := range n.Fields {
			lowered, err := d.pattern(f.Pattern)
			if err != nil {
				return nil, err
			}
			out.Fields = append(out.Fields, PatField{Name: f.Name, Pattern: lowered})
		}
		return out, nil

	case *PatAnnotation:
		pat, err := d.pattern(n.Pattern)
		if err != nil {
			return nil, err
		}
		typ, err := d.pattern(n.Type)
		if err != nil {
			return nil, err
		}
		return &PatAnnotation{SpanVal: n.SpanVal, Pattern: pat, Type: typ}, nil

	case *PatGuard:
		pat, err := d.pattern(n.Pattern)
		if err != nil {
			return nil, err
		}
		cond, err := d.expr(n.Condition)
		if err != nil {
			return nil, err
		}
		return &PatGuard{SpanVal: n.SpanVal, Pattern: pat, Condition: cond}, nil

	default:
		return nil, syntaxErrorf(d.source, p.Span(), "cannot desugar pattern")
	}
}
