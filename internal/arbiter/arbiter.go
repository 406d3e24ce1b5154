// Package arbiter rules on failed executions: which artifact is lying.
//
// The ruling follows a fixed truth hierarchy: the user story outranks the
// test's logic, and the test's logic outranks the implementation. A test
// is only trusted as an oracle once it has itself been checked against the
// story, so the first logic failure always puts the test on trial before
// the source.
package arbiter

import (
	"fmt"
	"strings"

	"github.com/zhuang-keju/GreyCells/internal/model"
)

// Decision is one arbitration ruling. Rationale states the evidence; a
// passing test is never accepted as evidence on its own.
type Decision struct {
	Verdict   model.Verdict `json:"verdict"`
	Rationale string        `json:"rationale"`
}

// Contract signals are Python runtime markers showing the test calls an
// interface the source does not provide. Matching is case-sensitive.
var contractSignals = []string{
	"NameError",
	"AttributeError",
	"ImportError",
	"ModuleNotFoundError",
}

// Logic signals mark a test that ran to an assertion and disagreed.
var logicSignals = []string{
	"AssertionError",
	"FAIL:",
	"FAILED",
}

// Arbitrate maps an execution outcome and the loop state to a verdict.
// It is pure: identical inputs always produce the identical decision, so
// a persisted run history can be replayed.
func Arbitrate(outcome model.Outcome, state model.CycleState) Decision {
	combined := outcome.Stderr + "\n" + outcome.Stdout
	contract := firstSignal(combined, contractSignals)
	logic := firstSignal(combined, logicSignals)

	switch {
	case outcome.TimedOut && contract == "" && logic == "":
		return Decision{
			Verdict:   model.Veto,
			Rationale: "execution timed out with no failure signal; treated as environmental, both artifacts stand",
		}
	case contract != "":
		return Decision{
			Verdict:   model.FixBoth,
			Rationale: fmt.Sprintf("%s: test and source disagree about the interface; both are regenerated against the story", contract),
		}
	case logic != "" && !state.TestFixed():
		return Decision{
			Verdict:   model.FixTest,
			Rationale: fmt.Sprintf("%s on an unvetted test; the expectation is checked against the story before the source is touched", logic),
		}
	case logic != "":
		return Decision{
			Verdict:   model.FixSource,
			Rationale: fmt.Sprintf("%s under a story-checked test; the source fails a trusted expectation", logic),
		}
	default:
		return Decision{
			Verdict:   model.Veto,
			Rationale: "failure carries no attributable signal; no artifact can be convicted",
		}
	}
}

func firstSignal(text string, signals []string) string {
	for _, s := range signals {
		if strings.Contains(text, s) {
			return s
		}
	}
	return ""
}
