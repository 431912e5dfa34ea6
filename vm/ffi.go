package vm

import (
	"fmt"
	"math"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// FFI: named primitives bridging the VM into the host
// ---------------------------------------------------------------------------

// Primitive is a host function invocable from bytecode via OpFFI. Each
// primitive takes one value (multi-argument primitives take a tuple)
// and may raise a runtime error.
type Primitive func(vm *VM, arg Value) (Value, *RuntimeError)

// registerCorePrimitives installs the fixed core set.
func (vm *VM) registerCorePrimitives() {
	vm.Register("add", arith("add",
		func(a, b int64) (int64, *RuntimeError) { return a + b, nil },
		func(a, b float64) (float64, *RuntimeError) { return a + b, nil }))
	vm.Register("sub", arith("sub",
		func(a, b int64) (int64, *RuntimeError) { return a - b, nil },
		func(a, b float64) (float64, *RuntimeError) { return a - b, nil }))
	vm.Register("mul", arith("mul",
		func(a, b int64) (int64, *RuntimeError) { return a * b, nil },
		func(a, b float64) (float64, *RuntimeError) { return a * b, nil }))
	vm.Register("div", arith("div",
		func(a, b int64) (int64, *RuntimeError) {
			if b == 0 {
				return 0, zeroDivide()
			}
			return a / b, nil
		},
		func(a, b float64) (float64, *RuntimeError) { return a / b, nil }))
	vm.Register("rem", arith("rem",
		func(a, b int64) (int64, *RuntimeError) {
			if b == 0 {
				return 0, zeroDivide()
			}
			return a % b, nil
		},
		func(a, b float64) (float64, *RuntimeError) { return math.Mod(a, b), nil }))
	vm.Register("pow", arith("pow",
		func(a, b int64) (int64, *RuntimeError) {
			result := int64(1)
			for ; b > 0; b-- {
				result *= a
			}
			return result, nil
		},
		func(a, b float64) (float64, *RuntimeError) { return math.Pow(a, b), nil }))

	vm.Register("neg", primNeg)
	vm.Register("equal", primEqual)
	vm.Register("less", compare("less", func(c int) bool { return c < 0 }))
	vm.Register("greater", compare("greater", func(c int) bool { return c > 0 }))
	vm.Register("less_equal", compare("less_equal", func(c int) bool { return c <= 0 }))
	vm.Register("greater_equal", compare("greater_equal", func(c int) bool { return c >= 0 }))
	vm.Register("not", primNot)
	vm.Register("concat", primConcat)
	vm.Register("if", primIf)
	vm.Register("length", primLength)
	vm.Register("println", primPrintln)
	vm.Register("panic", primPanic)
	vm.Register("to_string", primToString)
}

func zeroDivide() *RuntimeError {
	return &RuntimeError{ErrKind: ErrUser, Message: "division by zero", Payload: String("division by zero")}
}

// pair extracts a two-element tuple argument.
func pair(name string, arg Value) (Value, Value, *RuntimeError) {
	t, ok := arg.(Tuple)
	if !ok || len(t) != 2 {
		return nil, nil, typeErrorf("%s expects a pair, found %s", name, Repr(arg))
	}
	return t[0], t[1], nil
}

// arith builds a binary numeric primitive. Both operands must be of the
// same numeric kind; there is no implicit coercion. Integer arithmetic
// wraps around.
func arith(name string, ints func(a, b int64) (int64, *RuntimeError), reals func(a, b float64) (float64, *RuntimeError)) Primitive {
	return func(_ *VM, arg Value) (Value, *RuntimeError) {
		a, b, err := pair(name, arg)
		if err != nil {
			return nil, err
		}
		switch x := a.(type) {
		case Integer:
			y, ok := b.(Integer)
			if !ok {
				return nil, typeErrorf("%s: mismatched operands %s and %s", name, a.Kind(), b.Kind())
			}
			r, err := ints(int64(x), int64(y))
			if err != nil {
				return nil, err
			}
			return Integer(r), nil
		case Real:
			y, ok := b.(Real)
			if !ok {
				return nil, typeErrorf("%s: mismatched operands %s and %s", name, a.Kind(), b.Kind())
			}
			r, err := reals(float64(x), float64(y))
			if err != nil {
				return nil, err
			}
			return Real(r), nil
		default:
			return nil, typeErrorf("%s: expected numbers, found %s", name, a.Kind())
		}
	}
}

// compare builds an ordering primitive over numbers and strings.
func compare(name string, accept func(c int) bool) Primitive {
	return func(_ *VM, arg Value) (Value, *RuntimeError) {
		a, b, err := pair(name, arg)
		if err != nil {
			return nil, err
		}
		var c int
		switch x := a.(type) {
		case Integer:
			y, ok := b.(Integer)
			if !ok {
				return nil, typeErrorf("%s: mismatched operands %s and %s", name, a.Kind(), b.Kind())
			}
			switch {
			case x < y:
				c = -1
			case x > y:
				c = 1
			}
		case Real:
			y, ok := b.(Real)
			if !ok {
				return nil, typeErrorf("%s: mismatched operands %s and %s", name, a.Kind(), b.Kind())
			}
			switch {
			case x < y:
				c = -1
			case x > y:
				c = 1
			}
		case String:
			y, ok := b.(String)
			if !ok {
				return nil, typeErrorf("%s: mismatched operands %s and %s", name, a.Kind(), b.Kind())
			}
			switch {
			case x < y:
				c = -1
			case x > y:
				c = 1
			}
		default:
			return nil, typeErrorf("%s: cannot order %s", name, a.Kind())
		}
		return Boolean(accept(c)), nil
	}
}

func primNeg(_ *VM, arg Value) (Value, *RuntimeError) {
	switch x := arg.(type) {
	case Integer:
		return Integer(-x), nil
	case Real:
		return Real(-x), nil
	default:
		return nil, typeErrorf("neg: expected a number, found %s", arg.Kind())
	}
}

func primEqual(_ *VM, arg Value) (Value, *RuntimeError) {
	a, b, err := pair("equal", arg)
	if err != nil {
		return nil, err
	}
	return Boolean(Equal(a, b)), nil
}

func primNot(_ *VM, arg Value) (Value, *RuntimeError) {
	b, ok := arg.(Boolean)
	if !ok {
		return nil, typeErrorf("not: expected a boolean, found %s", arg.Kind())
	}
	return Boolean(!b), nil
}

func primConcat(_ *VM, arg Value) (Value, *RuntimeError) {
	a, b, err := pair("concat", arg)
	if err != nil {
		return nil, err
	}
	switch x := a.(type) {
	case String:
		y, ok := b.(String)
		if !ok {
			return nil, typeErrorf("concat: mismatched operands %s and %s", a.Kind(), b.Kind())
		}
		return x + y, nil
	case List:
		y, ok := b.(List)
		if !ok {
			return nil, typeErrorf("concat: mismatched operands %s and %s", a.Kind(), b.Kind())
		}
		joined := make(List, 0, len(x)+len(y))
		joined = append(joined, x...)
		joined = append(joined, y...)
		return joined, nil
	default:
		return nil, typeErrorf("concat: expected strings or lists, found %s", a.Kind())
	}
}

// primIf takes (condition, then-thunk, else-thunk) and returns the
// selected thunk; the generated code calls it with Unit.
func primIf(_ *VM, arg Value) (Value, *RuntimeError) {
	t, ok := arg.(Tuple)
	if !ok || len(t) != 3 {
		return nil, typeErrorf("if expects (condition, consequence, alternative), found %s", Repr(arg))
	}
	cond, ok := t[0].(Boolean)
	if !ok {
		return nil, typeErrorf("if: condition must be a boolean, found %s", t[0].Kind())
	}
	if cond {
		return t[1], nil
	}
	return t[2], nil
}

func primLength(_ *VM, arg Value) (Value, *RuntimeError) {
	switch x := arg.(type) {
	case String:
		return Integer(utf8.RuneCountInString(string(x))), nil
	case List:
		return Integer(len(x)), nil
	case Tuple:
		return Integer(len(x)), nil
	default:
		return nil, typeErrorf("length: expected a string, list, or tuple, found %s", arg.Kind())
	}
}

func primPrintln(vm *VM, arg Value) (Value, *RuntimeError) {
	if _, err := fmt.Fprintln(vm.Out, Display(arg)); err != nil {
		return nil, &RuntimeError{ErrKind: ErrUser, Message: fmt.Sprintf("println: %v", err), Payload: String(err.Error())}
	}
	return Unit{}, nil
}

func primPanic(_ *VM, arg Value) (Value, *RuntimeError) {
	return nil, &RuntimeError{ErrKind: ErrUser, Message: Display(arg), Payload: arg}
}

func primToString(_ *VM, arg Value) (Value, *RuntimeError) {
	return String(Repr(arg)), nil
}
