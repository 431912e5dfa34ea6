package compiler

import "github.com/vrtbl/passerine/vm"

// ---------------------------------------------------------------------------
// CST: the canonical tree the generator consumes
// ---------------------------------------------------------------------------

// Node is the interface implemented by all tree nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// Symbol is a variable reference. ID is assigned by the hoister; before
// hoisting it is zero.
type Symbol struct {
	SpanVal Span
	Name    string
	ID      int
}

func (n *Symbol) Span() Span { return n.SpanVal }
func (n *Symbol) node()      {}
func (n *Symbol) expr()      {}

// LabelNode is an algebraic constructor reference. A bare label denotes
// the constructor wrapping Unit.
type LabelNode struct {
	SpanVal Span
	Name    string
}

func (n *LabelNode) Span() Span { return n.SpanVal }
func (n *LabelNode) node()      {}
func (n *LabelNode) expr()      {}

// Literal is a constant value: Unit, Boolean, Integer, Real, or String.
type Literal struct {
	SpanVal Span
	Value   vm.Value
}

func (n *Literal) Span() Span { return n.SpanVal }
func (n *Literal) node()      {}
func (n *Literal) expr()      {}

// Block is a sequence of expressions; the last one's value is the
// block's value.
type Block struct {
	SpanVal  Span
	Children []Expr
}

func (n *Block) Span() Span { return n.SpanVal }
func (n *Block) node()      {}
func (n *Block) expr()      {}

// TupleNode is a fixed-length sequence literal.
type TupleNode struct {
	SpanVal  Span
	Children []Expr
}

func (n *TupleNode) Span() Span { return n.SpanVal }
func (n *TupleNode) node()      {}
func (n *TupleNode) expr()      {}

// ListNode is a list literal.
type ListNode struct {
	SpanVal  Span
	Children []Expr
}

func (n *ListNode) Span() Span { return n.SpanVal }
func (n *ListNode) node()      {}
func (n *ListNode) expr()      {}

// Field is one entry of a record literal.
type Field struct {
	Name  string
	Value Expr
}

// RecordNode is a record literal. Field names are unique.
type RecordNode struct {
	SpanVal Span
	Fields  []Field
}

func (n *RecordNode) Span() Span { return n.SpanVal }
func (n *RecordNode) node()      {}
func (n *RecordNode) expr()      {}

// Call is unary function application; multi-argument calls are curried
// chains of Call.
type Call struct {
	SpanVal  Span
	Fun      Expr
	Argument Expr
}

func (n *Call) Span() Span { return n.SpanVal }
func (n *Call) node()      {}
func (n *Call) expr()      {}

// LambdaNode is a one-parameter function literal. Multi-parameter
// surface lambdas desugar to nested LambdaNodes.
type LambdaNode struct {
	SpanVal Span
	Pattern Pattern
	Body    Expr
}

func (n *LambdaNode) Span() Span { return n.SpanVal }
func (n *LambdaNode) node()      {}
func (n *LambdaNode) expr()      {}

// Assign binds a pattern to the value of an expression; its own value
// is Unit.
type Assign struct {
	SpanVal    Span
	Pattern    Pattern
	Expression Expr
}

func (n *Assign) Span() Span { return n.SpanVal }
func (n *Assign) node()      {}
func (n *Assign) expr()      {}

// MatchArm is one `pattern -> body` arm.
type MatchArm struct {
	SpanVal Span
	Pattern Pattern
	Body    Expr
}

// Match dispatches a scrutinee over guarded pattern arms.
type Match struct {
	SpanVal   Span
	Scrutinee Expr
	Arms      []MatchArm
}

func (n *Match) Span() Span { return n.SpanVal }
func (n *Match) node()      {}
func (n *Match) expr()      {}

// FFI invokes a named VM primitive: the `magic "name" arg` construct and
// the lowered form of the built-in operators.
type FFI struct {
	SpanVal  Span
	Name     string
	Argument Expr
}

func (n *FFI) Span() Span { return n.SpanVal }
func (n *FFI) node()      {}
func (n *FFI) expr()      {}

// FiberNode wraps its body in a fresh fiber value.
type FiberNode struct {
	SpanVal Span
	Body    Expr
}

func (n *FiberNode) Span() Span { return n.SpanVal }
func (n *FiberNode) node()      {}
func (n *FiberNode) expr()      {}

// Yield suspends the enclosing fiber, surfacing its operand.
type Yield struct {
	SpanVal Span
	Value   Expr
}

func (n *Yield) Span() Span { return n.SpanVal }
func (n *Yield) node()      {}
func (n *Yield) expr()      {}

// Try runs its body in a fresh fiber and reifies the outcome as
// Result.Ok or Result.Error.
type Try struct {
	SpanVal Span
	Body    Expr
}

func (n *Try) Span() Span { return n.SpanVal }
func (n *Try) node()      {}
func (n *Try) expr()      {}

// Loop repeats its body forever; it leaves only by yield or error.
type Loop struct {
	SpanVal Span
	Body    Expr
}

func (n *Loop) Span() Span { return n.SpanVal }
func (n *Loop) node()      {}
func (n *Loop) expr()      {}

// ErrorNode raises its operand as an uncaught exception in the current
// fiber: `error e`.
type ErrorNode struct {
	SpanVal Span
	Value   Expr
}

func (n *ErrorNode) Span() Span { return n.SpanVal }
func (n *ErrorNode) node()      {}
func (n *ErrorNode) expr()      {}

// RestNode marks a `..rest` element inside a list literal or pattern.
// It is only valid in the final position of a list.
type RestNode struct {
	SpanVal Span
	Inner   Expr
}

func (n *RestNode) Span() Span { return n.SpanVal }
func (n *RestNode) node()      {}
func (n *RestNode) expr()      {}

// Binary is an infix operator application. The desugarer lowers every
// Binary into FFI calls, thunked conditionals, or curried calls before
// the generator runs.
type Binary struct {
	SpanVal Span
	Op      string
	Left    Expr
	Right   Expr
}

func (n *Binary) Span() Span { return n.SpanVal }
func (n *Binary) node()      {}
func (n *Binary) expr()      {}

// Annotation is `expr : type-pattern`. Dynamically typed: the desugarer
// keeps only the expression.
type Annotation struct {
	SpanVal Span
	Expr    Expr
	Type    Expr
}

func (n *Annotation) Span() Span { return n.SpanVal }
func (n *Annotation) node()      {}
func (n *Annotation) expr()      {}

// ---------------------------------------------------------------------------
// Patterns
// ---------------------------------------------------------------------------

// Pattern is the interface for pattern nodes.
type Pattern interface {
	Node
	pattern() // marker method
}

// PatSymbol binds the subject to a name.
type PatSymbol struct {
	SpanVal Span
	Name    string
	ID      int
}

func (n *PatSymbol) Span() Span { return n.SpanVal }
func (n *PatSymbol) node()      {}
func (n *PatSymbol) pattern()   {}

// PatDiscard matches anything and binds nothing: `_`.
type PatDiscard struct {
	SpanVal Span
}

func (n *PatDiscard) Span() Span { return n.SpanVal }
func (n *PatDiscard) node()      {}
func (n *PatDiscard) pattern()   {}

// PatLiteral matches exactly one constant value.
type PatLiteral struct {
	SpanVal Span
	Value   vm.Value
}

func (n *PatLiteral) Span() Span { return n.SpanVal }
func (n *PatLiteral) node()      {}
func (n *PatLiteral) pattern()   {}

// PatLabel matches a label by name and destructures its payload.
type PatLabel struct {
	SpanVal Span
	Name    string
	Inner   Pattern
}

func (n *PatLabel) Span() Span { return n.SpanVal }
func (n *PatLabel) node()      {}
func (n *PatLabel) pattern()   {}

// PatTuple destructures a tuple of exactly len(Children) elements.
type PatTuple struct {
	SpanVal  Span
	Children []Pattern
}

func (n *PatTuple) Span() Span { return n.SpanVal }
func (n *PatTuple) node()      {}
func (n *PatTuple) pattern()   {}

// PatList destructures a list. Without Rest the length must match
// exactly; with Rest, Children match the head and Rest binds the tail.
type PatList struct {
	SpanVal  Span
	Children []Pattern
	Rest     Pattern // nil when absent
}

func (n *PatList) Span() Span { return n.SpanVal }
func (n *PatList) node()      {}
func (n *PatList) pattern()   {}

// PatField is one entry of a record pattern.
type PatField struct {
	Name    string
	Pattern Pattern
}

// PatRecord destructures named fields; a missing field is a match
// failure. Fields not named are ignored.
type PatRecord struct {
	SpanVal Span
	Fields  []PatField
}

func (n *PatRecord) Span() Span { return n.SpanVal }
func (n *PatRecord) node()      {}
func (n *PatRecord) pattern()   {}

// PatAnnotation matches the subject against both the pattern and the
// type pattern: `p : t`.
type PatAnnotation struct {
	SpanVal Span
	Pattern Pattern
	Type    Pattern
}

func (n *PatAnnotation) Span() Span { return n.SpanVal }
func (n *PatAnnotation) node()      {}
func (n *PatAnnotation) pattern()   {}

// PatGuard gates a pattern on a condition evaluated in the scope of the
// pattern's bindings: `p | e`. A falsy guard is a match failure.
type PatGuard struct {
	SpanVal   Span
	Pattern   Pattern
	Condition Expr
}

func (n *PatGuard) Span() Span { return n.SpanVal }
func (n *PatGuard) node()      {}
func (n *PatGuard) pattern()   {}
