package compiler

import (
	"github.com/vrtbl/passerine/vm"
)

// ---------------------------------------------------------------------------
// Codegen: canonical tree to bytecode
// ---------------------------------------------------------------------------

// localBinding pins a unique symbol to a frame slot.
type localBinding struct {
	id   int
	name string
}

// captureRef is one entry of a lambda's capture list: the symbol it
// satisfies and where the constructing frame sources its cell. Entries
// append in order of first reference and are never reordered, so
// LoadCap/SaveCap indexes emitted at compile time match the cells array
// the VM assembles at closure-construction time.
type captureRef struct {
	id   int
	name string
	site vm.CaptureSite
}

// genScope is the per-lambda generator context: its own locals, its
// capture list, and the set of locals already lifted to the heap.
type genScope struct {
	parent   *genScope
	lambda   *vm.Lambda
	locals   []localBinding
	captures []captureRef
	lifted   map[int]bool // slot index -> Heap already emitted
}

// Generator translates a hoisted tree into a Lambda.
type Generator struct {
	source *Source
	scope  *genScope
	hint   string // binding name for the next lambda, for diagnostics
}

// Generate compiles a desugared, hoisted tree into a top-level lambda.
func Generate(source *Source, expr Expr) (*vm.Lambda, *Syntax) {
	g := &Generator{source: source}
	g.scope = &genScope{
		lambda: vm.NewLambda("main"),
		locals: []localBinding{{id: -1}}, // slot 0 holds the (unit) argument
		lifted: make(map[int]bool),
	}
	if err := g.expr(expr); err != nil {
		return nil, err
	}
	g.cur().Emit(vm.OpReturn)
	g.scope.lambda.NumSlots = len(g.scope.locals)
	return g.scope.lambda, nil
}

// cur returns the lambda being emitted into.
func (g *Generator) cur() *vm.Lambda {
	return g.scope.lambda
}

func (g *Generator) mark(span Span) {
	g.cur().MarkSpan(span.ToVM(g.source))
}

// ---------------------------------------------------------------------------
// Symbol resolution (the closure-capture protocol)
// ---------------------------------------------------------------------------

// localSlot finds a symbol among the scope's own locals.
func (s *genScope) localSlot(id int) (int, bool) {
	for i, l := range s.locals {
		if l.id == id && id >= 0 {
			return i, true
		}
	}
	return 0, false
}

// captureIndex finds a symbol among the scope's existing captures.
func (s *genScope) captureIndex(id int) (int, bool) {
	for i, c := range s.captures {
		if c.id == id {
			return i, true
		}
	}
	return 0, false
}

// capture ensures the scope captures the symbol, walking outward
// through enclosing scopes. The declaring scope sources the capture
// from its local slot; every intermediate scope inserts the symbol into
// its own capture list and passes it down as a nonlocal site.
func (g *Generator) capture(s *genScope, id int, name string, span Span) (int, *Syntax) {
	if idx, ok := s.captureIndex(id); ok {
		return idx, nil
	}
	parent := s.parent
	if parent == nil {
		return 0, resolutionErrorf(g.source, span, "variable %s is not in scope", name)
	}
	var site vm.CaptureSite
	if slot, ok := parent.localSlot(id); ok {
		site = vm.LocalSite(slot)
	} else {
		idx, err := g.capture(parent, id, name, span)
		if err != nil {
			return 0, err
		}
		site = vm.NonlocalSite(idx)
	}
	s.captures = append(s.captures, captureRef{id: id, name: name, site: site})
	return len(s.captures) - 1, nil
}

// boundAnywhere reports whether the symbol already has a binding in
// this scope chain.
func (g *Generator) boundAnywhere(id int) bool {
	for s := g.scope; s != nil; s = s.parent {
		if _, ok := s.localSlot(id); ok {
			return true
		}
	}
	return false
}

// emitLoad pushes the value of a resolved symbol.
func (g *Generator) emitLoad(id int, name string, span Span) *Syntax {
	if slot, ok := g.scope.localSlot(id); ok {
		g.cur().EmitUint16(vm.OpLoad, uint16(slot))
		return nil
	}
	idx, err := g.capture(g.scope, id, name, span)
	if err != nil {
		return err
	}
	g.cur().EmitUint16(vm.OpLoadCap, uint16(idx))
	return nil
}

// emitStore pops the stack top into a resolved symbol.
func (g *Generator) emitStore(id int, name string, span Span) *Syntax {
	if slot, ok := g.scope.localSlot(id); ok {
		g.cur().EmitUint16(vm.OpSave, uint16(slot))
		return nil
	}
	idx, err := g.capture(g.scope, id, name, span)
	if err != nil {
		return err
	}
	g.cur().EmitUint16(vm.OpSaveCap, uint16(idx))
	return nil
}

// ---------------------------------------------------------------------------
// Expression generation
// ---------------------------------------------------------------------------

func (g *Generator) expr(e Expr) *Syntax {
	g.mark(e.Span())
	switch n := e.(type) {
	case *Symbol:
		return g.emitLoad(n.ID, n.Name, n.SpanVal)

	case *LabelNode:
		g.emitConstant(vm.Unit{})
		k := g.cur().IndexConstant(vm.String(n.Name))
		g.cur().EmitUint16(vm.OpLabel, uint16(k))
		return nil

	case *Literal:
		g.emitConstant(n.Value)
		return nil

	case *Block:
		for i, c := range n.Children {
			if err := g.expr(c); err != nil {
				return err
			}
			if i < len(n.Children)-1 {
				g.cur().Emit(vm.OpDel)
			}
		}
		return nil

	case *TupleNode:
		for _, c := range n.Children {
			if err := g.expr(c); err != nil {
				return err
			}
		}
		g.cur().EmitUint16(vm.OpTuple, uint16(len(n.Children)))
		return nil

	case *ListNode:
		for _, c := range n.Children {
			if err := g.expr(c); err != nil {
				return err
			}
		}
		g.cur().EmitUint16(vm.OpList, uint16(len(n.Children)))
		return nil

	case *RecordNode:
		names := make(vm.List, len(n.Fields))
		for i, f := range n.Fields {
			if err := g.expr(f.Value); err != nil {
				return err
			}
			names[i] = vm.String(f.Name)
		}
		k := g.cur().IndexConstant(names)
		g.cur().EmitUint16(vm.OpRecord, uint16(k))
		return nil

	case *Call:
		// Applying a constructor wraps directly.
		if label, ok := n.Fun.(*LabelNode); ok {
			if err := g.expr(n.Argument); err != nil {
				return err
			}
			k := g.cur().IndexConstant(vm.String(label.Name))
			g.cur().EmitUint16(vm.OpLabel, uint16(k))
			return nil
		}
		if err := g.expr(n.Fun); err != nil {
			return err
		}
		if err := g.expr(n.Argument); err != nil {
			return err
		}
		g.cur().Emit(vm.OpCall)
		return nil

	case *LambdaNode:
		name := g.hint
		g.hint = ""
		return g.lambda(name, n.Pattern, n.Body, n.SpanVal)

	case *Assign:
		return g.assign(n)

	case *Match:
		if err := g.expr(n.Scrutinee); err != nil {
			return err
		}
		for _, arm := range n.Arms {
			if err := g.lambda("", arm.Pattern, arm.Body, arm.SpanVal); err != nil {
				return err
			}
		}
		g.cur().EmitUint16(vm.OpMatch, uint16(len(n.Arms)))
		return nil

	case *FFI:
		if err := g.expr(n.Argument); err != nil {
			return err
		}
		k := g.cur().IndexConstant(vm.String(n.Name))
		g.cur().EmitUint16(vm.OpFFI, uint16(k))
		return nil

	case *FiberNode:
		if err := g.lambda("fiber", &PatDiscard{SpanVal: n.SpanVal}, n.Body, n.SpanVal); err != nil {
			return err
		}
		g.cur().Emit(vm.OpFiberNew)
		return nil

	case *Try:
		if err := g.lambda("try", &PatDiscard{SpanVal: n.SpanVal}, n.Body, n.SpanVal); err != nil {
			return err
		}
		g.cur().Emit(vm.OpTry)
		return nil

	case *Yield:
		if err := g.expr(n.Value); err != nil {
			return err
		}
		g.cur().Emit(vm.OpYield)
		return nil

	case *ErrorNode:
		if err := g.expr(n.Value); err != nil {
			return err
		}
		g.cur().Emit(vm.OpError)
		return nil

	case *Loop:
		start := g.cur().Len()
		if err := g.expr(n.Body); err != nil {
			return err
		}
		g.cur().Emit(vm.OpDel)
		// Distance measured from after the operand.
		distance := g.cur().Len() + 3 - start
		g.cur().EmitUint16(vm.OpJumpBack, uint16(distance))
		// Unreachable: keeps the expression's one-value stack shape.
		g.emitConstant(vm.Unit{})
		return nil

	default:
		return syntaxErrorf(g.source, e.Span(), "unexpected node survived desugaring")
	}
}

func (g *Generator) emitConstant(v vm.Value) {
	k := g.cur().IndexConstant(v)
	g.cur().EmitUint16(vm.OpCon, uint16(k))
}

// ---------------------------------------------------------------------------
// Assignment
// ---------------------------------------------------------------------------

// assign reserves slots for the pattern's new names, compiles the
// right-hand side, and destructures it. The whole expression's value is
// Unit.
func (g *Generator) assign(n *Assign) *Syntax {
	if g.hint == "" {
		if sym, ok := n.Pattern.(*PatSymbol); ok {
			g.hint = sym.Name
		}
	}

	// Reserve a slot for every name this pattern introduces, before the
	// right-hand side runs: self-references resolve to the placeholder.
	err := patternSymbols(n.Pattern, func(sym *PatSymbol) *Syntax {
		if g.boundAnywhere(sym.ID) {
			return nil
		}
		g.cur().EmitUint16(vm.OpNotInit, uint16(len(g.scope.locals)))
		g.scope.locals = append(g.scope.locals, localBinding{id: sym.ID, name: sym.Name})
		return nil
	})
	if err != nil {
		return err
	}

	if err := g.expr(n.Expression); err != nil {
		return err
	}
	g.hint = ""
	if err := g.destructure(n.Pattern); err != nil {
		return err
	}
	g.emitConstant(vm.Unit{})
	return nil
}

// patternSymbols visits the pattern's PatSymbols left to right.
func patternSymbols(p Pattern, visit func(*PatSymbol) *Syntax) *Syntax {
	switch n := p.(type) {
	case *PatSymbol:
		return visit(n)
	case *PatDiscard, *PatLiteral:
		return nil
	case *PatLabel:
		return patternSymbols(n.Inner, visit)
	case *PatTuple:
		for _, c := range n.Children {
			if err := patternSymbols(c, visit); err != nil {
				return err
			}
		}
		return nil
	case *PatList:
		for _, c := range n.Children {
			if err := patternSymbols(c, visit); err != nil {
				return err
			}
		}
		if n.Rest != nil {
			return patternSymbols(n.Rest, visit)
		}
		return nil
	case *PatRecord:
		for _, f := range n.Fields {
			if err := patternSymbols(f.Pattern, visit); err != nil {
				return err
			}
		}
		return nil
	case *PatAnnotation:
		if err := patternSymbols(n.Pattern, visit); err != nil {
			return err
		}
		return patternSymbols(n.Type, visit)
	case *PatGuard:
		return patternSymbols(n.Pattern, visit)
	}
	return nil
}

// countPatternSymbols counts the names a pattern binds.
func countPatternSymbols(p Pattern) int {
	count := 0
	patternSymbols(p, func(*PatSymbol) *Syntax {
		count++
		return nil
	})
	return count
}

// ---------------------------------------------------------------------------
// Destructuring
// ---------------------------------------------------------------------------

// destructure compiles a pattern match against the value on top of the
// stack, consuming it. Every subpattern observes its own subject on the
// stack top; bindings are written with Save/SaveCap; any shape mismatch
// raises MatchError at runtime.
func (g *Generator) destructure(p Pattern) *Syntax {
	g.mark(p.Span())
	switch n := p.(type) {
	case *PatSymbol:
		return g.emitStore(n.ID, n.Name, n.SpanVal)

	case *PatDiscard:
		g.cur().Emit(vm.OpDel)
		return nil

	case *PatLiteral:
		k := g.cur().IndexConstant(n.Value)
		g.cur().EmitUint16(vm.OpUnData, uint16(k))
		return nil

	case *PatLabel:
		k := g.cur().IndexConstant(vm.String(n.Name))
		g.cur().EmitUint16(vm.OpUnLabel, uint16(k))
		return g.destructure(n.Inner)

	case *PatTuple:
		for i, sub := range n.Children {
			g.cur().EmitUint16Pair(vm.OpUnTuple, uint16(i), uint16(len(n.Children)))
			if err := g.destructure(sub); err != nil {
				return err
			}
		}
		g.cur().Emit(vm.OpDel)
		return nil

	case *PatList:
		kind := vm.UnListExact
		if n.Rest != nil {
			kind = vm.UnListAtLeast
		}
		g.cur().EmitByteUint16(vm.OpUnList, kind, uint16(len(n.Children)))
		for i, sub := range n.Children {
			g.cur().EmitUint16(vm.OpUnElem, uint16(i))
			if err := g.destructure(sub); err != nil {
				return err
			}
		}
		if n.Rest != nil {
			g.cur().EmitUint16(vm.OpUnRest, uint16(len(n.Children)))
			if err := g.destructure(n.Rest); err != nil {
				return err
			}
		}
		g.cur().Emit(vm.OpDel)
		return nil

	case *PatRecord:
		for _, f := range n.Fields {
			k := g.cur().IndexConstant(vm.String(f.Name))
			g.cur().EmitUint16(vm.OpUnRecord, uint16(k))
			if err := g.destructure(f.Pattern); err != nil {
				return err
			}
		}
		g.cur().Emit(vm.OpDel)
		return nil

	case *PatAnnotation:
		g.cur().Emit(vm.OpCopy)
		if err := g.destructure(n.Type); err != nil {
			return err
		}
		return g.destructure(n.Pattern)

	case *PatGuard:
		if err := g.destructure(n.Pattern); err != nil {
			return err
		}
		if err := g.expr(n.Condition); err != nil {
			return err
		}
		g.cur().Emit(vm.OpGuard)
		return nil

	default:
		return syntaxErrorf(g.source, p.Span(), "unexpected pattern survived desugaring")
	}
}

// ---------------------------------------------------------------------------
// Lambda generation
// ---------------------------------------------------------------------------

// lambda compiles a nested lambda in its own generator context and
// emits the Heap lifts and Closure instruction in the enclosing one.
// The argument arrives in slot 0: a plain symbol parameter binds it
// directly, any other pattern reserves slots and destructures a copy.
func (g *Generator) lambda(name string, pattern Pattern, body Expr, span Span) *Syntax {
	child := &genScope{
		parent: g.scope,
		lambda: vm.NewLambda(name),
		lifted: make(map[int]bool),
	}
	g.scope = child
	g.mark(span)

	switch pat := pattern.(type) {
	case *PatSymbol:
		child.locals = []localBinding{{id: pat.ID, name: pat.Name}}
	case *PatDiscard:
		child.locals = []localBinding{{id: -1}}
	default:
		child.locals = []localBinding{{id: -1}}
		err := patternSymbols(pattern, func(sym *PatSymbol) *Syntax {
			child.lambda.EmitUint16(vm.OpNotInit, uint16(len(child.locals)))
			child.locals = append(child.locals, localBinding{id: sym.ID, name: sym.Name})
			return nil
		})
		if err != nil {
			return err
		}
		child.lambda.EmitUint16(vm.OpLoad, 0)
		if err := g.destructure(pattern); err != nil {
			return err
		}
	}

	if err := g.expr(body); err != nil {
		return err
	}
	child.lambda.Emit(vm.OpReturn)

	child.lambda.Arity = countPatternSymbols(pattern)
	child.lambda.NumSlots = len(child.locals)
	child.lambda.Captured = make([]vm.CaptureSite, len(child.captures))
	for i, c := range child.captures {
		child.lambda.Captured[i] = c.site
	}

	g.scope = child.parent

	// Lift any of this scope's locals the closure captures, once each.
	for _, site := range child.lambda.Captured {
		if site.FromLocal && !g.scope.lifted[site.Index] {
			g.cur().EmitUint16(vm.OpHeap, uint16(site.Index))
			g.scope.lifted[site.Index] = true
		}
	}
	k := g.cur().IndexConstant(child.lambda)
	g.cur().EmitUint16(vm.OpClosure, uint16(k))
	return nil
}
