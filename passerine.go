// Package passerine ties the compilation pipeline to the virtual
// machine: source text in, bytecode or final value out.
package passerine

import (
	"github.com/vrtbl/passerine/compiler"
	"github.com/vrtbl/passerine/vm"
)

// Compile runs the full pipeline — lex, parse, desugar, hoist,
// generate — over a named source text and returns the top-level lambda.
// Compile-stage failures surface as *compiler.Syntax diagnostics.
func Compile(name, text string) (*vm.Lambda, error) {
	source := compiler.NewSource(name, text)
	parsed, err := compiler.Parse(source)
	if err != nil {
		return nil, err
	}
	desugared, err := compiler.Desugar(source, parsed)
	if err != nil {
		return nil, err
	}
	hoisted, err := compiler.Hoist(source, desugared)
	if err != nil {
		return nil, err
	}
	lambda, err := compiler.Generate(source, hoisted)
	if err != nil {
		return nil, err
	}
	return lambda, nil
}

// Run compiles a source and executes it on a fresh VM, returning the
// value of the final top-level statement.
func Run(name, text string) (vm.Value, error) {
	lambda, err := Compile(name, text)
	if err != nil {
		return nil, err
	}
	return vm.New().Run(lambda)
}

// RunOn compiles a source and executes it on the given VM, so callers
// can redirect output, set limits, or add primitives first.
func RunOn(machine *vm.VM, name, text string) (vm.Value, error) {
	lambda, err := Compile(name, text)
	if err != nil {
		return nil, err
	}
	return machine.Run(lambda)
}
