package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vrtbl/passerine/vm"
)

// ---------------------------------------------------------------------------
// Printer: canonical tree back to source
// ---------------------------------------------------------------------------

// PrintExpr renders a tree as parseable source. Composite forms are
// fully parenthesised, so parsing the output reproduces the same tree
// modulo spans.
func PrintExpr(e Expr) string {
	var sb strings.Builder
	printExpr(&sb, e, true)
	return sb.String()
}

func printExpr(sb *strings.Builder, e Expr, topLevel bool) {
	switch n := e.(type) {
	case *Symbol:
		sb.WriteString(n.Name)

	case *LabelNode:
		sb.WriteString(n.Name)

	case *Literal:
		sb.WriteString(vm.Repr(n.Value))

	case *Block:
		if topLevel {
			for i, c := range n.Children {
				if i > 0 {
					sb.WriteString("; ")
				}
				printExpr(sb, c, false)
			}
			return
		}
		sb.WriteString("{ ")
		for i, c := range n.Children {
			if i > 0 {
				sb.WriteString("; ")
			}
			printExpr(sb, c, false)
		}
		sb.WriteString(" }")

	case *TupleNode:
		sb.WriteByte('(')
		for i, c := range n.Children {
			if i > 0 {
				sb.WriteString(", ")
			}
			printExpr(sb, c, false)
		}
		sb.WriteByte(')')

	case *ListNode:
		sb.WriteByte('[')
		for i, c := range n.Children {
			if i > 0 {
				sb.WriteString(", ")
			}
			printExpr(sb, c, false)
		}
		sb.WriteByte(']')

	case *RecordNode:
		sb.WriteByte('{')
		for i, f := range n.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(f.Name)
			sb.WriteString(": ")
			printExpr(sb, f.Value, false)
		}
		sb.WriteByte('}')

	case *Call:
		sb.WriteByte('(')
		printExpr(sb, n.Fun, false)
		sb.WriteByte(' ')
		printExpr(sb, n.Argument, false)
		sb.WriteByte(')')

	case *LambdaNode:
		sb.WriteByte('(')
		printPattern(sb, n.Pattern)
		sb.WriteString(" -> ")
		printExpr(sb, n.Body, false)
		sb.WriteByte(')')

	case *Assign:
		sb.WriteByte('(')
		printPattern(sb, n.Pattern)
		sb.WriteString(" = ")
		printExpr(sb, n.Expression, false)
		sb.WriteByte(')')

	case *Match:
		sb.WriteString("(match ")
		printExpr(sb, n.Scrutinee, false)
		sb.WriteString(" { ")
		for i, arm := range n.Arms {
			if i > 0 {
				sb.WriteString(", ")
			}
			printPattern(sb, arm.Pattern)
			sb.WriteString(" -> ")
			printExpr(sb, arm.Body, false)
		}
		sb.WriteString(" })")

	case *FFI:
		sb.WriteString("(magic ")
		sb.WriteString(strconv.Quote(n.Name))
		sb.WriteByte(' ')
		printExpr(sb, n.Argument, false)
		sb.WriteByte(')')

	case *FiberNode:
		sb.WriteString("(fiber ")
		printGrouped(sb, n.Body)
		sb.WriteByte(')')

	case *Try:
		sb.WriteString("(try ")
		printGrouped(sb, n.Body)
		sb.WriteByte(')')

	case *Loop:
		sb.WriteString("(loop ")
		printGrouped(sb, n.Body)
		sb.WriteByte(')')

	case *Yield:
		sb.WriteString("(yield ")
		printGrouped(sb, n.Value)
		sb.WriteByte(')')

	case *ErrorNode:
		sb.WriteString("(error ")
		printGrouped(sb, n.Value)
		sb.WriteByte(')')

	case *RestNode:
		sb.WriteString("..")
		printExpr(sb, n.Inner, false)

	case *Binary:
		sb.WriteByte('(')
		printExpr(sb, n.Left, false)
		sb.WriteByte(' ')
		sb.WriteString(n.Op)
		sb.WriteByte(' ')
		printExpr(sb, n.Right, false)
		sb.WriteByte(')')

	case *Annotation:
		sb.WriteByte('(')
		printExpr(sb, n.Expr, false)
		sb.WriteString(" : ")
		printExpr(sb, n.Type, false)
		sb.WriteByte(')')

	default:
		fmt.Fprintf(sb, "<%T>", e)
	}
}

// printGrouped prints a keyword operand, bracing blocks and
// parenthesising everything else so the keyword's reach is unambiguous.
func printGrouped(sb *strings.Builder, e Expr) {
	if _, isBlock := e.(*Block); isBlock {
		printExpr(sb, e, false)
		return
	}
	sb.WriteByte('(')
	printExpr(sb, e, false)
	sb.WriteByte(')')
}

func printPattern(sb *strings.Builder, p Pattern) {
	switch n := p.(type) {
	case *PatSymbol:
		sb.WriteString(n.Name)

	case *PatDiscard:
		sb.WriteByte('_')

	case *PatLiteral:
		sb.WriteString(vm.Repr(n.Value))

	case *PatLabel:
		if lit, ok := n.Inner.(*PatLiteral); ok {
			if _, isUnit := lit.Value.(vm.Unit); isUnit {
				sb.WriteString(n.Name)
				return
			}
		}
		sb.WriteByte('(')
		sb.WriteString(n.Name)
		sb.WriteByte(' ')
		printPattern(sb, n.Inner)
		sb.WriteByte(')')

	case *PatTuple:
		sb.WriteByte('(')
		for i, c := range n.Children {
			if i > 0 {
				sb.WriteString(", ")
			}
			printPattern(sb, c)
		}
		sb.WriteByte(')')

	case *PatList:
		sb.WriteByte('[')
		for i, c := range n.Children {
			if i > 0 {
				sb.WriteString(", ")
			}
			printPattern(sb, c)
		}
		if n.Rest != nil {
			if len(n.Children) > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("..")
			printPattern(sb, n.Rest)
		}
		sb.WriteByte(']')

	case *PatRecord:
		sb.WriteByte('{')
		for i, f := range n.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(f.Name)
			sb.WriteString(": ")
			printPattern(sb, f.Pattern)
		}
		sb.WriteByte('}')

	case *PatAnnotation:
		sb.WriteByte('(')
		printPattern(sb, n.Pattern)
		sb.WriteString(" : ")
		printPattern(sb, n.Type)
		sb.WriteByte(')')

	case *PatGuard:
		sb.WriteByte('(')
		printPattern(sb, n.Pattern)
		sb.WriteString(" | ")
		printExpr(sb, n.Condition, false)
		sb.WriteByte(')')

	default:
		fmt.Fprintf(sb, "<%T>", p)
	}
}
