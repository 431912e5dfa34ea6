package passerine

import (
	"strings"
	"testing"

	"github.com/vrtbl/passerine/compiler"
	"github.com/vrtbl/passerine/vm"
)

func runProgram(t *testing.T, text string) vm.Value {
	t.Helper()
	value, err := Run("test.pn", text)
	if err != nil {
		t.Fatalf("run %q: %v", text, err)
	}
	return value
}

func runExpect(t *testing.T, text, want string) {
	t.Helper()
	got := vm.Repr(runProgram(t, text))
	if got != want {
		t.Errorf("program %q = %s, want %s", text, got, want)
	}
}

func runError(t *testing.T, text string) *vm.RuntimeError {
	t.Helper()
	_, err := Run("test.pn", text)
	if err == nil {
		t.Fatalf("run %q: expected an error", text)
	}
	rerr, ok := err.(*vm.RuntimeError)
	if !ok {
		t.Fatalf("run %q: error %T is not a runtime error: %v", text, err, err)
	}
	return rerr
}

func TestArithmeticPrecedence(t *testing.T) {
	runExpect(t, "3 + 2 * 5", "13")
}

func TestClosureOverMutableBinding(t *testing.T) {
	runExpect(t, `
make = () -> { c = 0; () -> { c = c + 1; c } }
next = make ()
next (); next (); next ()
`, "3")
}

func TestTupleDestructureSwap(t *testing.T) {
	runExpect(t, "(a, b) = (1, 2); (a, b) = (b, a); a", "2")
}

func TestMatchWithGuard(t *testing.T) {
	runExpect(t, `match 7 { n | n < 0 -> "neg", 0 -> "zero", n -> "pos" }`, `"pos"`)
	runExpect(t, `match 0 { n | n < 0 -> "neg", 0 -> "zero", n -> "pos" }`, `"zero"`)
	runExpect(t, `match -3 { n | n < 0 -> "neg", 0 -> "zero", n -> "pos" }`, `"neg"`)
}

func TestFiberYieldSequence(t *testing.T) {
	runExpect(t, `
c = fiber { i = 0; loop { yield i; i = i + 1 } }
(c (), c (), c ())
`, "(0, 1, 2)")
}

func TestTryCatchesError(t *testing.T) {
	runExpect(t, `try { error "boom" }`, `Result.Error "boom"`)
	runExpect(t, "try { 1 + 1 }", "Result.Ok 2")
}

func TestUnmatchedPatternPropagatesMatchError(t *testing.T) {
	rerr := runError(t, "match (Some 1) { None -> 0 }")
	if rerr.ErrKind != vm.ErrMatch {
		t.Errorf("kind = %s, want MatchError", rerr.ErrKind)
	}
}

func TestSelfReference(t *testing.T) {
	runExpect(t, `
fact = n -> match n { 0 -> 1, n -> n * fact (n - 1) }
fact 5
`, "120")
}

func TestShortCircuit(t *testing.T) {
	// The right operand of && must not run when the left is false:
	// dividing by zero there would raise.
	runExpect(t, "x = 0; false && (1 / x == 1)", "false")
	runExpect(t, "x = 0; true || (1 / x == 1)", "true")
	runExpect(t, "true && false", "false")
	runExpect(t, "false || true", "true")
}

func TestListPatterns(t *testing.T) {
	runExpect(t, "[a, b] = [1, 2]; a + b", "3")
	runExpect(t, "[head, ..tail] = [1, 2, 3]; (head, tail)", "(1, [2, 3])")
	runExpect(t, "[] = []; ()", "()")
	rerr := runError(t, "[a] = [1, 2]; a")
	if rerr.ErrKind != vm.ErrMatch {
		t.Errorf("kind = %s, want MatchError", rerr.ErrKind)
	}
}

func TestRecordLiteralsAndPatterns(t *testing.T) {
	runExpect(t, "{x: 1, y: 2}", "{x: 1, y: 2}")
	runExpect(t, "p = {x: 1, y: 2}; {x: a} = p; a", "1")
	rerr := runError(t, "{z: a} = {x: 1}; a")
	if rerr.ErrKind != vm.ErrMatch {
		t.Errorf("kind = %s, want MatchError", rerr.ErrKind)
	}
}

func TestLabelsAreFirstClass(t *testing.T) {
	runExpect(t, "Some 1", "Some 1")
	runExpect(t, "wrap = Some; wrap 2", "Some 2")
	runExpect(t, "Some (x, y) = Some (1, 2); x + y", "3")
}

func TestAnnotationPatternMatchesBoth(t *testing.T) {
	runExpect(t, "x : 1 = 1; x", "1")
	rerr := runError(t, "x : 2 = 1; x")
	if rerr.ErrKind != vm.ErrMatch {
		t.Errorf("kind = %s, want MatchError", rerr.ErrKind)
	}
}

func TestCurriedCalls(t *testing.T) {
	runExpect(t, "addp = a b -> a + b; inc = addp 1; inc 41", "42")
}

func TestDotIsReverseApplication(t *testing.T) {
	runExpect(t, "double = x -> x * 2; (5 . double)", "10")
}

func TestNonMatchErrorAbortsMatch(t *testing.T) {
	rerr := runError(t, `match 1 { n | n < 0 -> 0, 1 -> error "inside", _ -> 9 }`)
	if rerr.ErrKind != vm.ErrUser {
		t.Errorf("kind = %s, want UserError (match must not swallow it)", rerr.ErrKind)
	}
}

func TestTryIsolatesMatchFallthrough(t *testing.T) {
	runExpect(t, `try { match (Some 1) { None -> 0 } }`, `Result.Error "no arm matched Some 1"`)
}

func TestPrintlnSideEffect(t *testing.T) {
	machine := vm.New()
	var sb strings.Builder
	machine.Out = &sb
	value, err := RunOn(machine, "test.pn", `magic "println" "hello"; magic "println" (1, 2); 0`)
	if err != nil {
		t.Fatal(err)
	}
	if !vm.Equal(value, vm.Integer(0)) {
		t.Errorf("value = %s", vm.Repr(value))
	}
	if sb.String() != "hello\n(1, 2)\n" {
		t.Errorf("output = %q", sb.String())
	}
}

func TestCompileErrorsCarrySpans(t *testing.T) {
	_, err := Compile("test.pn", "undefined_name + 1")
	syn, ok := err.(*compiler.Syntax)
	if !ok {
		t.Fatalf("error %T, want *compiler.Syntax", err)
	}
	if syn.DiagKind != compiler.KindResolution {
		t.Errorf("kind = %s, want ResolutionError", syn.DiagKind)
	}
	if syn.Primary.Length() != len("undefined_name") {
		t.Errorf("primary span length = %d", syn.Primary.Length())
	}
}

func TestRuntimeErrorsCarrySpans(t *testing.T) {
	rerr := runError(t, "1 + \"no\"")
	if rerr.Span.Source != "test.pn" {
		t.Errorf("span = %+v", rerr.Span)
	}
}

func TestStringOperations(t *testing.T) {
	runExpect(t, `magic "concat" ("foo", "bar")`, `"foobar"`)
	runExpect(t, `magic "length" "hello"`, "5")
	runExpect(t, `"a" == "a"`, "true")
	runExpect(t, `"a" != "b"`, "true")
}

func TestComparisonChain(t *testing.T) {
	runExpect(t, "1 < 2", "true")
	runExpect(t, "2 <= 1", "false")
	runExpect(t, "2.5 > 1.5", "true")
	runExpect(t, "3 >= 3", "true")
}

func TestNestedFibers(t *testing.T) {
	runExpect(t, `
inner = fiber { yield 1; yield 2 }
outer = fiber { yield (inner ()); yield (inner ()) }
(outer (), outer ())
`, "(1, 2)")
}

func TestFiberErrorSurfaces(t *testing.T) {
	rerr := runError(t, `f = fiber { error "inside" }; f ()`)
	if rerr.ErrKind != vm.ErrUser {
		t.Errorf("kind = %s, want UserError", rerr.ErrKind)
	}
}

func TestTryCatchesFiberError(t *testing.T) {
	runExpect(t, `f = fiber { error "inside" }; try { f () }`, `Result.Error "inside"`)
}

func TestBlocksEvaluateToLastExpression(t *testing.T) {
	runExpect(t, "{ 1; 2; 3 }", "3")
	runExpect(t, "x = { 1; 2 }; x", "2")
}

func TestUnitProgram(t *testing.T) {
	runExpect(t, "()", "()")
	runExpect(t, "", "()")
}
