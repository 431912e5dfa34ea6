package compiler

import (
	"testing"

	"github.com/vrtbl/passerine/vm"
)

func compileText(t *testing.T, text string) *vm.Lambda {
	t.Helper()
	source := NewSource("test.pn", text)
	parsed, err := Parse(source)
	if err != nil {
		t.Fatalf("parse %q: %v", text, err)
	}
	desugared, derr := Desugar(source, parsed)
	if derr != nil {
		t.Fatalf("desugar %q: %v", text, derr)
	}
	hoisted, herr := Hoist(source, desugared)
	if herr != nil {
		t.Fatalf("hoist %q: %v", text, herr)
	}
	lambda, gerr := Generate(source, hoisted)
	if gerr != nil {
		t.Fatalf("generate %q: %v", text, gerr)
	}
	return lambda
}

// opcodes decodes the instruction stream into its opcode sequence.
func opcodes(code []byte) []vm.Opcode {
	var out []vm.Opcode
	ip := 0
	for ip < len(code) {
		op := vm.Opcode(code[ip])
		out = append(out, op)
		ip += 1 + op.Info().OperandBytes
	}
	return out
}

func countOp(code []byte, want vm.Opcode) int {
	n := 0
	for _, op := range opcodes(code) {
		if op == want {
			n++
		}
	}
	return n
}

// innerLambdas extracts the lambda constants of a compiled lambda.
func innerLambdas(l *vm.Lambda) []*vm.Lambda {
	var out []*vm.Lambda
	for _, c := range l.Constants {
		if nested, ok := c.(*vm.Lambda); ok {
			out = append(out, nested)
		}
	}
	return out
}

func TestGenerateLiteral(t *testing.T) {
	l := compileText(t, "42")
	ops := opcodes(l.Code)
	if len(ops) != 2 || ops[0] != vm.OpCon || ops[1] != vm.OpReturn {
		t.Fatalf("code = %v", ops)
	}
	if len(l.Constants) != 1 || !vm.Equal(l.Constants[0], vm.Integer(42)) {
		t.Fatalf("constants = %v", l.Constants)
	}
	if len(l.Captured) != 0 {
		t.Fatalf("top level captures %d cells", len(l.Captured))
	}
}

func TestGenerateReservesSlotBeforeRightHandSide(t *testing.T) {
	l := compileText(t, "x = 1")
	ops := opcodes(l.Code)
	if ops[0] != vm.OpNotInit {
		t.Fatalf("first opcode = %s, want NOT_INIT", ops[0])
	}
	// NotInit, Con, Save, Con (unit), Return
	if countOp(l.Code, vm.OpSave) != 1 {
		t.Fatalf("code = %v", ops)
	}
}

func TestGenerateCaptureDescriptor(t *testing.T) {
	l := compileText(t, "c = 0; f = () -> c; f")
	inners := innerLambdas(l)
	if len(inners) != 1 {
		t.Fatalf("inner lambdas = %d", len(inners))
	}
	f := inners[0]
	if len(f.Captured) != 1 {
		t.Fatalf("capture descriptor = %v", f.Captured)
	}
	site := f.Captured[0]
	if !site.FromLocal || site.Index != 1 {
		t.Errorf("site = %+v, want local slot 1", site)
	}
	if countOp(l.Code, vm.OpHeap) != 1 {
		t.Errorf("Heap emitted %d times, want 1", countOp(l.Code, vm.OpHeap))
	}
	if countOp(f.Code, vm.OpLoadCap) != 1 {
		t.Errorf("inner lambda loads captures %d times, want 1", countOp(f.Code, vm.OpLoadCap))
	}
}

func TestGenerateHeapOncePerLocal(t *testing.T) {
	l := compileText(t, "c = 0; f = () -> c; g = () -> c; f")
	if got := countOp(l.Code, vm.OpHeap); got != 1 {
		t.Errorf("Heap emitted %d times for one shared local, want 1", got)
	}
	if got := len(innerLambdas(l)); got != 2 {
		t.Errorf("inner lambdas = %d", got)
	}
}

func TestGenerateTransitiveCapture(t *testing.T) {
	l := compileText(t, "a = 1; f = () -> { g = () -> a; g }; f")
	outers := innerLambdas(l)
	if len(outers) != 1 {
		t.Fatalf("inner lambdas of main = %d", len(outers))
	}
	f := outers[0]
	// f captures a from main's frame even though only g reads it.
	if len(f.Captured) != 1 || !f.Captured[0].FromLocal {
		t.Fatalf("f capture descriptor = %v", f.Captured)
	}
	gs := innerLambdas(f)
	if len(gs) != 1 {
		t.Fatalf("inner lambdas of f = %d", len(gs))
	}
	g := gs[0]
	if len(g.Captured) != 1 || g.Captured[0].FromLocal {
		t.Fatalf("g capture descriptor = %v, want one nonlocal site", g.Captured)
	}
	if g.Captured[0].Index != 0 {
		t.Errorf("g nonlocal index = %d, want 0", g.Captured[0].Index)
	}
}

func TestGenerateAssignmentValueIsUnit(t *testing.T) {
	l := compileText(t, "x = 1")
	got, err := vm.New().Run(l)
	if err != nil {
		t.Fatal(err)
	}
	if !vm.Equal(got, vm.Unit{}) {
		t.Errorf("assignment value = %s, want ()", vm.Repr(got))
	}
}

func TestGenerateSimpleParameterBindsSlotZero(t *testing.T) {
	l := compileText(t, "id = x -> x; id 9")
	inners := innerLambdas(l)
	if len(inners) != 1 {
		t.Fatalf("inner lambdas = %d", len(inners))
	}
	id := inners[0]
	if id.Arity != 1 || id.NumSlots != 1 {
		t.Errorf("arity = %d slots = %d", id.Arity, id.NumSlots)
	}
	ops := opcodes(id.Code)
	if len(ops) != 2 || ops[0] != vm.OpLoad || ops[1] != vm.OpReturn {
		t.Errorf("identity body = %v", ops)
	}
}

func TestGenerateTuplePatternDestructure(t *testing.T) {
	l := compileText(t, "(a, b) = (1, 2); a")
	ops := opcodes(l.Code)
	if countOp(l.Code, vm.OpUnTuple) != 2 {
		t.Errorf("UnTuple count = %d, want 2: %v", countOp(l.Code, vm.OpUnTuple), ops)
	}
	if countOp(l.Code, vm.OpNotInit) != 2 {
		t.Errorf("NotInit count = %d, want 2", countOp(l.Code, vm.OpNotInit))
	}
	got, err := vm.New().Run(l)
	if err != nil {
		t.Fatal(err)
	}
	if !vm.Equal(got, vm.Integer(1)) {
		t.Errorf("a = %s", vm.Repr(got))
	}
}

func TestGenerateMatchEmitsArmClosures(t *testing.T) {
	l := compileText(t, `match 1 { 0 -> "a", _ -> "b" }`)
	if got := countOp(l.Code, vm.OpMatch); got != 1 {
		t.Fatalf("Match count = %d", got)
	}
	if got := countOp(l.Code, vm.OpClosure); got != 2 {
		t.Fatalf("Closure count = %d, want one per arm", got)
	}
}

func TestGenerateFiberAndTry(t *testing.T) {
	l := compileText(t, "f = fiber { 1 }; t = try { 2 }; t")
	if got := countOp(l.Code, vm.OpFiberNew); got != 1 {
		t.Errorf("FiberNew count = %d", got)
	}
	if got := countOp(l.Code, vm.OpTry); got != 1 {
		t.Errorf("Try count = %d", got)
	}
}

func TestGenerateLoopJumpsBack(t *testing.T) {
	l := compileText(t, "c = fiber { loop { yield 1 } }; c")
	inners := innerLambdas(l)
	if len(inners) != 1 {
		t.Fatalf("inner lambdas = %d", len(inners))
	}
	body := inners[0]
	if got := countOp(body.Code, vm.OpJumpBack); got != 1 {
		t.Errorf("JumpBack count = %d", got)
	}
	if got := countOp(body.Code, vm.OpYield); got != 1 {
		t.Errorf("Yield count = %d", got)
	}
}

func TestGenerateSpanTableIsMonotonic(t *testing.T) {
	l := compileText(t, "a = 1; b = a + 2; (a, b)")
	if len(l.Spans) == 0 {
		t.Fatal("no spans recorded")
	}
	prev := -1
	for _, e := range l.Spans {
		if e.IP < prev {
			t.Fatalf("span table not monotonic: %+v", l.Spans)
		}
		prev = e.IP
		if e.Span.Source != "test.pn" {
			t.Errorf("span source = %q", e.Span.Source)
		}
	}
}

func TestGenerateMagicFFI(t *testing.T) {
	l := compileText(t, `magic "add" (1, 2)`)
	if got := countOp(l.Code, vm.OpFFI); got != 1 {
		t.Fatalf("FFI count = %d", got)
	}
	got, err := vm.New().Run(l)
	if err != nil {
		t.Fatal(err)
	}
	if !vm.Equal(got, vm.Integer(3)) {
		t.Errorf("magic add = %s", vm.Repr(got))
	}
}
