package main

import (
	"strings"
	"testing"
)

func TestParseProblems(t *testing.T) {
	input := `{"id": "two-sum", "requirement": "add two numbers", "check": "assert add(1, 2) == 3"}

# commented out
{"requirement": "reverse a string"}
{"id": "third", "requirement": "never reached"}
`
	problems, err := parseProblems(strings.NewReader(input), 2)
	if err != nil {
		t.Fatalf("parse problems: %v", err)
	}
	if len(problems) != 2 {
		t.Fatalf("got %d problems, want 2", len(problems))
	}
	if problems[0].ID != "two-sum" || problems[0].Check == "" {
		t.Fatalf("first problem = %+v", problems[0])
	}
	if problems[1].ID != "problem-4" {
		t.Fatalf("fallback id = %q, want problem-4", problems[1].ID)
	}
}

func TestParseProblems_ReportsBadLine(t *testing.T) {
	_, err := parseProblems(strings.NewReader("{not json}\n"), 0)
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("err = %v, want a line 1 parse error", err)
	}
}

func TestCombineCheck(t *testing.T) {
	got := combineCheck("def add(a, b):\n    return a + b\n", "assert add(2, 2) == 4")
	want := "def add(a, b):\n    return a + b\n\n\nassert add(2, 2) == 4\n"
	if got != want {
		t.Fatalf("combined script = %q, want %q", got, want)
	}
}

func TestPrintBenchSummary_CountsFalsePositives(t *testing.T) {
	yes, no := true, false
	results := []benchResult{
		{ID: "a", Status: "succeeded", Attempts: 1, Passed: true, Verified: &yes, DurationSeconds: 4.2},
		{ID: "b", Status: "succeeded", Attempts: 2, Passed: true, Verified: &no, DurationSeconds: 9.1},
		{ID: "c", Status: "exhausted", Attempts: 3, DurationSeconds: 30.5},
	}

	var buf strings.Builder
	printBenchSummary(&buf, results)
	out := buf.String()

	if !strings.Contains(out, "solved 2/3") {
		t.Errorf("summary missing solved count:\n%s", out)
	}
	if !strings.Contains(out, "1 false positive") {
		t.Errorf("summary missing false positive count:\n%s", out)
	}
}
