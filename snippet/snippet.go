// Package snippet implements the snippet-test protocol: source files
// whose header comments name a pipeline stage and the expected outcome.
package snippet

import (
	"fmt"
	"io"
	"strings"

	"github.com/vrtbl/passerine/compiler"
	"github.com/vrtbl/passerine/vm"
)

// Actions run the pipeline up to the named stage.
const (
	ActionLex     = "lex"
	ActionParse   = "parse"
	ActionDesugar = "desugar"
	ActionHoist   = "hoist"
	ActionCompile = "compile"
	ActionRun     = "run"
)

// Outcomes describe how the stage is expected to end.
const (
	OutcomeSuccess = "success" // the stage completes
	OutcomeSyntax  = "syntax"  // a compile-stage diagnostic
	OutcomeTrace   = "trace"   // a runtime error
)

// Snippet is a parsed test source: its header keys plus the full text
// (headers included, so spans stay honest).
type Snippet struct {
	Name      string
	Action    string
	Outcome   string
	Expect    string // printed form of the final value when Action == run
	HasExpect bool
	Text      string
}

// Parse reads the `-- key: value` (or `# key: value`) header lines off
// the top of a snippet.
func Parse(name, text string) (*Snippet, error) {
	s := &Snippet{
		Name:    name,
		Action:  ActionRun,
		Outcome: OutcomeSuccess,
		Text:    text,
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		var header string
		switch {
		case strings.HasPrefix(trimmed, "--"):
			header = strings.TrimPrefix(trimmed, "--")
		case strings.HasPrefix(trimmed, "#"):
			header = strings.TrimPrefix(trimmed, "#")
		case trimmed == "":
			continue
		default:
			// First non-header line ends the header block.
			return s.validate()
		}
		key, value, found := strings.Cut(header, ":")
		if !found {
			continue // an ordinary comment
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "action":
			s.Action = value
		case "outcome":
			s.Outcome = value
		case "expect":
			s.Expect = value
			s.HasExpect = true
		}
	}
	return s.validate()
}

func (s *Snippet) validate() (*Snippet, error) {
	switch s.Action {
	case ActionLex, ActionParse, ActionDesugar, ActionHoist, ActionCompile, ActionRun:
	default:
		return nil, fmt.Errorf("snippet %s: unknown action %q", s.Name, s.Action)
	}
	switch s.Outcome {
	case OutcomeSuccess, OutcomeSyntax, OutcomeTrace:
	default:
		return nil, fmt.Errorf("snippet %s: unknown outcome %q", s.Name, s.Outcome)
	}
	if s.Outcome == OutcomeTrace && s.Action != ActionRun {
		return nil, fmt.Errorf("snippet %s: outcome trace requires action run", s.Name)
	}
	return s, nil
}

// Result is what actually happened when a snippet ran.
type Result struct {
	Outcome string
	Value   vm.Value // final value, when the run completed
	Printed string   // Repr of Value
	Err     error    // the diagnostic or runtime error, when any
}

// Run executes the snippet's pipeline prefix and classifies the result.
// Program output written by println is discarded.
func Run(s *Snippet) Result {
	return RunWith(s, io.Discard)
}

// RunWith is Run with println output directed at the given sink.
func RunWith(s *Snippet, out io.Writer) Result {
	source := compiler.NewSource(s.Name, s.Text)

	syntax := func(err *compiler.Syntax) Result {
		return Result{Outcome: OutcomeSyntax, Err: err}
	}

	if _, lerr := compiler.Lex(source); lerr != nil {
		return syntax(lerr)
	}
	if s.Action == ActionLex {
		return Result{Outcome: OutcomeSuccess}
	}

	parsed, perr := compiler.Parse(source)
	if perr != nil {
		return syntax(perr)
	}
	if s.Action == ActionParse {
		return Result{Outcome: OutcomeSuccess}
	}

	desugared, derr := compiler.Desugar(source, parsed)
	if derr != nil {
		return syntax(derr)
	}
	if s.Action == ActionDesugar {
		return Result{Outcome: OutcomeSuccess}
	}

	hoisted, herr := compiler.Hoist(source, desugared)
	if herr != nil {
		return syntax(herr)
	}
	if s.Action == ActionHoist {
		return Result{Outcome: OutcomeSuccess}
	}

	lambda, gerr := compiler.Generate(source, hoisted)
	if gerr != nil {
		return syntax(gerr)
	}
	if s.Action == ActionCompile {
		return Result{Outcome: OutcomeSuccess}
	}

	machine := vm.New()
	machine.Out = out
	value, rerr := machine.Run(lambda)
	if rerr != nil {
		return Result{Outcome: OutcomeTrace, Err: rerr}
	}
	return Result{Outcome: OutcomeSuccess, Value: value, Printed: vm.Repr(value)}
}

// Check runs the snippet and verifies its declared outcome, plus the
// printed final value when an expectation is present.
func Check(s *Snippet) error {
	result := Run(s)
	if result.Outcome != s.Outcome {
		return fmt.Errorf("snippet %s: outcome %s, want %s (err: %v)", s.Name, result.Outcome, s.Outcome, result.Err)
	}
	if s.HasExpect && s.Action == ActionRun && s.Outcome == OutcomeSuccess {
		if result.Printed != s.Expect {
			return fmt.Errorf("snippet %s: value %s, want %s", s.Name, result.Printed, s.Expect)
		}
	}
	return nil
}
