package compiler

// ---------------------------------------------------------------------------
// Hoister: scope resolution
// ---------------------------------------------------------------------------
//
// The hoister rewrites every Symbol and PatSymbol with a unique ID so
// that shadowing is decided once, before generation. Lambda boundaries
// (including match arms, fiber bodies, and try bodies) open scopes;
// blocks and loops do not. Assignment to a name bound in any enclosing
// scope reuses that binding; assignment to an unbound name declares a
// fresh local in the current scope. A reference to a name with no
// binding in scope is a ResolutionError.

// Hoist resolves the tree in place and returns it.
func Hoist(source *Source, expr Expr) (Expr, *Syntax) {
	h := &hoister{
		source: source,
		scope:  &hoistScope{},
	}
	if err := h.expr(expr); err != nil {
		return nil, err
	}
	return expr, nil
}

type hoistScope struct {
	parent *hoistScope
	names  map[string]int
}

func (s *hoistScope) lookup(name string) (int, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if id, ok := cur.names[name]; ok {
			return id, true
		}
	}
	return 0, false
}

func (s *hoistScope) declare(name string, id int) {
	if s.names == nil {
		s.names = make(map[string]int)
	}
	s.names[name] = id
}

type hoister struct {
	source *Source
	scope  *hoistScope
	nextID int
}

func (h *hoister) fresh() int {
	h.nextID++
	return h.nextID
}

func (h *hoister) enter() {
	h.scope = &hoistScope{parent: h.scope}
}

func (h *hoister) exit() {
	h.scope = h.scope.parent
}

func (h *hoister) expr(e Expr) *Syntax {
	switch n := e.(type) {
	case *Symbol:
		if n.Name == "_" {
			return resolutionErrorf(h.source, n.SpanVal, "_ cannot be used as an expression")
		}
		id, ok := h.scope.lookup(n.Name)
		if !ok {
			return resolutionErrorf(h.source, n.SpanVal, "variable %s referenced before assignment", n.Name)
		}
		n.ID = id
		return nil

	case *LabelNode, *Literal:
		return nil

	case *Block:
		for _, c := range n.Children {
			if err := h.expr(c); err != nil {
				return err
			}
		}
		return nil

	case *TupleNode:
		return h.exprs(n.Children)

	case *ListNode:
		return h.exprs(n.Children)

	case *RecordNode:
		for _, f := range n.Fields {
			if err := h.expr(f.Value); err != nil {
				return err
			}
		}
		return nil

	case *Call:
		if err := h.expr(n.Fun); err != nil {
			return err
		}
		return h.expr(n.Argument)

	case *LambdaNode:
		h.enter()
		defer h.exit()
		if err := h.declarePattern(n.Pattern); err != nil {
			return err
		}
		if err := h.guards(n.Pattern); err != nil {
			return err
		}
		return h.expr(n.Body)

	case *Assign:
		// Binding names become visible before the right-hand side runs,
		// so `f = x -> f x` resolves its own name.
		if err := h.assignPattern(n.Pattern); err != nil {
			return err
		}
		if err := h.expr(n.Expression); err != nil {
			return err
		}
		return h.guards(n.Pattern)

	case *Match:
		if err := h.expr(n.Scrutinee); err != nil {
			return err
		}
		for i := range n.Arms {
			arm := &n.Arms[i]
			h.enter()
			err := h.declarePattern(arm.Pattern)
			if err == nil {
				err = h.guards(arm.Pattern)
			}
			if err == nil {
				err = h.expr(arm.Body)
			}
			h.exit()
			if err != nil {
				return err
			}
		}
		return nil

	case *FFI:
		return h.expr(n.Argument)

	case *FiberNode:
		h.enter()
		defer h.exit()
		return h.expr(n.Body)

	case *Yield:
		return h.expr(n.Value)

	case *Try:
		h.enter()
		defer h.exit()
		return h.expr(n.Body)

	case *Loop:
		return h.expr(n.Body)

	case *ErrorNode:
		return h.expr(n.Value)

	default:
		return resolutionErrorf(h.source, e.Span(), "unexpected node survived desugaring")
	}
}

func (h *hoister) exprs(children []Expr) *Syntax {
	for _, c := range children {
		if err := h.expr(c); err != nil {
			return err
		}
	}
	return nil
}

// declarePattern declares every symbol of a parameter pattern as a
// fresh binding in the current scope: parameters always shadow.
func (h *hoister) declarePattern(p Pattern) *Syntax {
	return h.walkPattern(p, func(sym *PatSymbol) {
		id := h.fresh()
		sym.ID = id
		h.scope.declare(sym.Name, id)
	})
}

// assignPattern resolves an assignment pattern: names bound anywhere in
// scope are reassigned, unbound names declare fresh locals here.
func (h *hoister) assignPattern(p Pattern) *Syntax {
	return h.walkPattern(p, func(sym *PatSymbol) {
		if id, ok := h.scope.lookup(sym.Name); ok {
			sym.ID = id
			return
		}
		id := h.fresh()
		sym.ID = id
		h.scope.declare(sym.Name, id)
	})
}

// walkPattern visits every PatSymbol left to right. Guard conditions
// are not visited; they resolve separately once bindings exist.
func (h *hoister) walkPattern(p Pattern, visit func(*PatSymbol)) *Syntax {
	switch n := p.(type) {
	case *PatSymbol:
		visit(n)
	case *PatDiscard, *PatLiteral:
	case *PatLabel:
		return h.walkPattern(n.Inner, visit)
	case *PatTuple:
		for _, c := range n.Children {
			if err := h.walkPattern(c, visit); err != nil {
				return err
			}
		}
	case *PatList:
		for _, c := range n.Children {
			if err := h.walkPattern(c, visit); err != nil {
				return err
			}
		}
		if n.Rest != nil {
			return h.walkPattern(n.Rest, visit)
		}
	case *PatRecord:
		for _, f := range n.Fields {
			if err := h.walkPattern(f.Pattern, visit); err != nil {
				return err
			}
		}
	case *PatAnnotation:
		if err := h.walkPattern(n.Pattern, visit); err != nil {
			return err
		}
		return h.walkPattern(n.Type, visit)
	case *PatGuard:
		return h.walkPattern(n.Pattern, visit)
	default:
		return resolutionErrorf(h.source, p.Span(), "unexpected pattern survived desugaring")
	}
	return nil
}

// guards resolves guard conditions in the scope of the pattern's
// bindings.
func (h *hoister) guards(p Pattern) *Syntax {
	switch n := p.(type) {
	case *PatGuard:
		if err := h.guards(n.Pattern); err != nil {
			return err
		}
		return h.expr(n.Condition)
	case *PatLabel:
		return h.guards(n.Inner)
	case *PatTuple:
		for _, c := range n.Children {
			if err := h.guards(c); err != nil {
				return err
			}
		}
	case *PatList:
		for _, c := range n.Children {
			if err := h.guards(c); err != nil {
				return err
			}
		}
		if n.Rest != nil {
			return h.guards(n.Rest)
		}
	case *PatRecord:
		for _, f := range n.Fields {
			if err := h.guards(f.Pattern); err != nil {
				return err
			}
		}
	case *PatAnnotation:
		if err := h.guards(n.Pattern); err != nil {
			return err
		}
		return h.guards(n.Type)
	}
	return nil
}
