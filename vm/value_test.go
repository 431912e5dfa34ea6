package vm

import "testing"

func TestTruthy(t *testing.T) {
	tests := []struct {
		value Value
		want  bool
	}{
		{Boolean(true), true},
		{Boolean(false), false},
		{Unit{}, false},
		{Integer(0), true},
		{Integer(1), true},
		{Real(0), true},
		{String(""), true},
		{List{}, true},
	}
	for _, tt := range tests {
		if got := Truthy(tt.value); got != tt.want {
			t.Errorf("Truthy(%s) = %v, want %v", Repr(tt.value), got, tt.want)
		}
	}
}

func TestEqualStructural(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"units", Unit{}, Unit{}, true},
		{"ints", Integer(3), Integer(3), true},
		{"int vs real", Integer(3), Real(3), false},
		{"strings", String("a"), String("a"), true},
		{"labels equal", &Label{Name: "Some", Inner: Integer(1)}, &Label{Name: "Some", Inner: Integer(1)}, true},
		{"labels differ by name", &Label{Name: "Some", Inner: Integer(1)}, &Label{Name: "None", Inner: Integer(1)}, false},
		{"tuples", Tuple{Integer(1), Integer(2)}, Tuple{Integer(1), Integer(2)}, true},
		{"tuple vs list", Tuple{Integer(1)}, List{Integer(1)}, false},
		{"tuples length", Tuple{Integer(1)}, Tuple{Integer(1), Integer(2)}, false},
		{"lists nested", List{List{Integer(1)}}, List{List{Integer(1)}}, true},
		{"records", Record{"a": Integer(1)}, Record{"a": Integer(1)}, true},
		{"records missing field", Record{"a": Integer(1)}, Record{"b": Integer(1)}, false},
		{"bools", Boolean(true), Boolean(true), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%s, %s) = %v, want %v", Repr(tt.a), Repr(tt.b), got, tt.want)
			}
		})
	}
}

func TestEqualClosures(t *testing.T) {
	lambda := NewLambda("f")
	other := NewLambda("g")
	cell := NewCell(Integer(1))

	a := &Closure{Lambda: lambda, Cells: []*Cell{cell}}
	b := &Closure{Lambda: lambda, Cells: []*Cell{cell}}
	c := &Closure{Lambda: lambda, Cells: []*Cell{NewCell(Integer(1))}}
	d := &Closure{Lambda: other, Cells: []*Cell{cell}}

	if !Equal(a, b) {
		t.Error("closures over the same lambda and identical cells must be equal")
	}
	if Equal(a, c) {
		t.Error("closures with distinct cells must not be equal")
	}
	if Equal(a, d) {
		t.Error("closures over distinct lambdas must not be equal")
	}
}

func TestRepr(t *testing.T) {
	tests := []struct {
		value Value
		want  string
	}{
		{Unit{}, "()"},
		{Boolean(true), "true"},
		{Boolean(false), "false"},
		{Integer(-42), "-42"},
		{Real(1.5), "1.5"},
		{Real(2), "2.0"},
		{String("hi\n"), `"hi\n"`},
		{&Label{Name: "None", Inner: Unit{}}, "None"},
		{&Label{Name: "Some", Inner: Integer(1)}, "Some 1"},
		{&Label{Name: "Result.Error", Inner: String("boom")}, `Result.Error "boom"`},
		{&Label{Name: "Some", Inner: &Label{Name: "Some", Inner: Integer(1)}}, "Some (Some 1)"},
		{Tuple{Integer(1), String("x")}, `(1, "x")`},
		{List{Integer(1), Integer(2)}, "[1, 2]"},
		{Record{"b": Integer(2), "a": Integer(1)}, "{a: 1, b: 2}"},
	}
	for _, tt := range tests {
		if got := Repr(tt.value); got != tt.want {
			t.Errorf("Repr = %s, want %s", got, tt.want)
		}
	}
}

func TestDisplayStringsUnquoted(t *testing.T) {
	if got := Display(String("hi")); got != "hi" {
		t.Errorf("Display(String) = %q, want %q", got, "hi")
	}
	if got := Display(Tuple{String("hi")}); got != `("hi")` {
		t.Errorf("Display(Tuple) = %q", got)
	}
}
