package snippet

import (
	"strings"
	"testing"
)

func mustParse(t *testing.T, name, text string) *Snippet {
	t.Helper()
	s, err := Parse(name, text)
	if err != nil {
		t.Fatalf("parse snippet: %v", err)
	}
	return s
}

func TestParseHeaders(t *testing.T) {
	s := mustParse(t, "t1", "-- action: run\n-- outcome: success\n-- expect: 13\n3 + 2 * 5\n")
	if s.Action != ActionRun || s.Outcome != OutcomeSuccess {
		t.Errorf("parsed %+v", s)
	}
	if !s.HasExpect || s.Expect != "13" {
		t.Errorf("expect = %q (has=%v)", s.Expect, s.HasExpect)
	}
}

func TestParseHashHeaders(t *testing.T) {
	s := mustParse(t, "t2", "# action: parse\n# outcome: syntax\n(((\n")
	if s.Action != ActionParse || s.Outcome != OutcomeSyntax {
		t.Errorf("parsed %+v", s)
	}
}

func TestParseDefaultsAndOrdinaryComments(t *testing.T) {
	s := mustParse(t, "t3", "-- just a comment, no colon keys here\n1\n")
	if s.Action != ActionRun || s.Outcome != OutcomeSuccess || s.HasExpect {
		t.Errorf("parsed %+v", s)
	}
}

func TestParseRejectsUnknownAction(t *testing.T) {
	if _, err := Parse("t4", "-- action: optimize\n1\n"); err == nil {
		t.Error("unknown action accepted")
	}
	if _, err := Parse("t5", "-- outcome: explode\n1\n"); err == nil {
		t.Error("unknown outcome accepted")
	}
	if _, err := Parse("t6", "-- action: lex\n-- outcome: trace\n1\n"); err == nil {
		t.Error("trace outcome accepted for a compile-stage action")
	}
}

func TestCheckRunSuccess(t *testing.T) {
	s := mustParse(t, "arith", "-- action: run\n-- expect: 13\n3 + 2 * 5\n")
	if err := Check(s); err != nil {
		t.Error(err)
	}
}

func TestCheckValueMismatch(t *testing.T) {
	s := mustParse(t, "bad", "-- action: run\n-- expect: 14\n3 + 2 * 5\n")
	err := Check(s)
	if err == nil || !strings.Contains(err.Error(), "want 14") {
		t.Errorf("err = %v", err)
	}
}

func TestCheckSyntaxOutcome(t *testing.T) {
	s := mustParse(t, "syn", "-- action: parse\n-- outcome: syntax\n((1\n")
	if err := Check(s); err != nil {
		t.Error(err)
	}
}

func TestCheckTraceOutcome(t *testing.T) {
	s := mustParse(t, "trace", "-- action: run\n-- outcome: trace\nerror \"boom\"\n")
	if err := Check(s); err != nil {
		t.Error(err)
	}
}

func TestCheckStagePrefixes(t *testing.T) {
	// A program with a resolution error passes every stage before
	// hoisting and fails from hoist onward.
	text := "ghost + 1\n"
	for _, action := range []string{ActionLex, ActionParse, ActionDesugar} {
		s := mustParse(t, action, "-- action: "+action+"\n"+text)
		if err := Check(s); err != nil {
			t.Errorf("action %s: %v", action, err)
		}
	}
	for _, action := range []string{ActionHoist, ActionCompile} {
		s := mustParse(t, action, "-- action: "+action+"\n-- outcome: syntax\n"+text)
		if err := Check(s); err != nil {
			t.Errorf("action %s: %v", action, err)
		}
	}
}

func TestRunReportsPrintedValue(t *testing.T) {
	s := mustParse(t, "val", "-- action: run\nmatch 7 { 0 -> \"zero\", n -> \"pos\" }\n")
	result := Run(s)
	if result.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s (%v)", result.Outcome, result.Err)
	}
	if result.Printed != `"pos"` {
		t.Errorf("printed = %s", result.Printed)
	}
}

func TestSnippetHeadersStayInSource(t *testing.T) {
	// Headers are comments to the lexer, so spans in diagnostics line
	// up with the file as written.
	s := mustParse(t, "spans", "-- action: run\n-- outcome: trace\nmatch 1 { 2 -> 0 }\n")
	if err := Check(s); err != nil {
		t.Error(err)
	}
}
