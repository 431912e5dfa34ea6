package vm

import (
	"strings"
	"testing"
)

func callPrim(t *testing.T, machine *VM, name string, arg Value) (Value, *RuntimeError) {
	t.Helper()
	prim, ok := machine.primitives[name]
	if !ok {
		t.Fatalf("primitive %q not registered", name)
	}
	return prim(machine, arg)
}

func pairOf(a, b Value) Value {
	return Tuple{a, b}
}

func TestArithmeticPrimitives(t *testing.T) {
	tests := []struct {
		prim string
		arg  Value
		want Value
	}{
		{"add", pairOf(Integer(3), Integer(10)), Integer(13)},
		{"add", pairOf(Real(1.5), Real(2.5)), Real(4)},
		{"sub", pairOf(Integer(3), Integer(10)), Integer(-7)},
		{"mul", pairOf(Integer(2), Integer(5)), Integer(10)},
		{"div", pairOf(Integer(7), Integer(2)), Integer(3)},
		{"rem", pairOf(Integer(7), Integer(2)), Integer(1)},
		{"pow", pairOf(Integer(2), Integer(10)), Integer(1024)},
		{"neg", Integer(4), Integer(-4)},
		{"neg", Real(1.5), Real(-1.5)},
	}
	machine := New()
	for _, tt := range tests {
		got, err := callPrim(t, machine, tt.prim, tt.arg)
		if err != nil {
			t.Errorf("%s(%s): %v", tt.prim, Repr(tt.arg), err)
			continue
		}
		if !Equal(got, tt.want) {
			t.Errorf("%s(%s) = %s, want %s", tt.prim, Repr(tt.arg), Repr(got), Repr(tt.want))
		}
	}
}

func TestIntegerArithmeticWraps(t *testing.T) {
	machine := New()
	got, err := callPrim(t, machine, "add", pairOf(Integer(1<<62), Integer(1<<62)))
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(got, Integer(-(1 << 63))) {
		t.Errorf("wrap-around add = %s", Repr(got))
	}
}

func TestMixedOperandKindsAreTypeErrors(t *testing.T) {
	machine := New()
	for _, prim := range []string{"add", "sub", "mul", "div", "rem", "less", "greater"} {
		_, err := callPrim(t, machine, prim, pairOf(Integer(1), Real(2)))
		if err == nil || err.ErrKind != ErrType {
			t.Errorf("%s(int, real): err = %v, want TypeError", prim, err)
		}
	}
}

func TestDivisionByZeroRaises(t *testing.T) {
	machine := New()
	for _, prim := range []string{"div", "rem"} {
		_, err := callPrim(t, machine, prim, pairOf(Integer(1), Integer(0)))
		if err == nil {
			t.Errorf("%s by zero did not raise", prim)
		}
	}
}

func TestComparisonPrimitives(t *testing.T) {
	tests := []struct {
		prim string
		arg  Value
		want bool
	}{
		{"less", pairOf(Integer(1), Integer(2)), true},
		{"less", pairOf(Integer(2), Integer(1)), false},
		{"greater", pairOf(Real(2), Real(1)), true},
		{"less_equal", pairOf(Integer(2), Integer(2)), true},
		{"greater_equal", pairOf(String("b"), String("a")), true},
		{"equal", pairOf(Tuple{Integer(1)}, Tuple{Integer(1)}), true},
		{"equal", pairOf(Integer(1), String("1")), false},
	}
	machine := New()
	for _, tt := range tests {
		got, err := callPrim(t, machine, tt.prim, tt.arg)
		if err != nil {
			t.Errorf("%s(%s): %v", tt.prim, Repr(tt.arg), err)
			continue
		}
		if !Equal(got, Boolean(tt.want)) {
			t.Errorf("%s(%s) = %s, want %v", tt.prim, Repr(tt.arg), Repr(got), tt.want)
		}
	}
}

func TestConcat(t *testing.T) {
	machine := New()
	got, err := callPrim(t, machine, "concat", pairOf(String("foo"), String("bar")))
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(got, String("foobar")) {
		t.Errorf("concat = %s", Repr(got))
	}

	got, err = callPrim(t, machine, "concat", pairOf(List{Integer(1)}, List{Integer(2)}))
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(got, List{Integer(1), Integer(2)}) {
		t.Errorf("concat lists = %s", Repr(got))
	}
}

func TestIfSelectsThunk(t *testing.T) {
	machine := New()
	thenBranch := String("then")
	elseBranch := String("else")

	got, err := callPrim(t, machine, "if", Tuple{Boolean(true), thenBranch, elseBranch})
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(got, thenBranch) {
		t.Errorf("if(true) selected %s", Repr(got))
	}

	got, err = callPrim(t, machine, "if", Tuple{Boolean(false), thenBranch, elseBranch})
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(got, elseBranch) {
		t.Errorf("if(false) selected %s", Repr(got))
	}

	if _, err = callPrim(t, machine, "if", Tuple{Integer(1), thenBranch, elseBranch}); err == nil || err.ErrKind != ErrType {
		t.Errorf("if with non-boolean condition: err = %v, want TypeError", err)
	}
}

func TestLength(t *testing.T) {
	tests := []struct {
		arg  Value
		want int64
	}{
		{String("héllo"), 5},
		{List{Integer(1), Integer(2)}, 2},
		{Tuple{Integer(1)}, 1},
	}
	machine := New()
	for _, tt := range tests {
		got, err := callPrim(t, machine, "length", tt.arg)
		if err != nil {
			t.Errorf("length(%s): %v", Repr(tt.arg), err)
			continue
		}
		if !Equal(got, Integer(tt.want)) {
			t.Errorf("length(%s) = %s, want %d", Repr(tt.arg), Repr(got), tt.want)
		}
	}
}

func TestPrintlnWritesToSink(t *testing.T) {
	machine := New()
	var sb strings.Builder
	machine.Out = &sb
	if _, err := callPrim(t, machine, "println", String("hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := callPrim(t, machine, "println", Tuple{Integer(1), Integer(2)}); err != nil {
		t.Fatal(err)
	}
	if sb.String() != "hello\n(1, 2)\n" {
		t.Errorf("sink = %q", sb.String())
	}
}

func TestPanicRaisesUserError(t *testing.T) {
	machine := New()
	_, err := callPrim(t, machine, "panic", String("boom"))
	if err == nil || err.ErrKind != ErrUser {
		t.Fatalf("panic: err = %v, want UserError", err)
	}
	if !Equal(err.Value(), String("boom")) {
		t.Errorf("payload = %s", Repr(err.Value()))
	}
}

func TestToString(t *testing.T) {
	machine := New()
	got, err := callPrim(t, machine, "to_string", Tuple{Integer(1), String("x")})
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(got, String(`(1, "x")`)) {
		t.Errorf("to_string = %s", Repr(got))
	}
}

func TestNot(t *testing.T) {
	machine := New()
	got, err := callPrim(t, machine, "not", Boolean(true))
	if err != nil || !Equal(got, Boolean(false)) {
		t.Errorf("not(true) = %s, %v", Repr(got), err)
	}
	if _, err := callPrim(t, machine, "not", Integer(1)); err == nil || err.ErrKind != ErrType {
		t.Errorf("not(1): err = %v, want TypeError", err)
	}
}
