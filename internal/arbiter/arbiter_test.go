package arbiter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhuang-keju/GreyCells/internal/model"
)

const assertionStderr = `FAIL: test_sum (test_generated.TestSum)
Traceback (most recent call last):
  File "test_generated_code.py", line 7, in test_sum
    self.assertEqual(add(2, 2), 5)
AssertionError: 4 != 5

FAILED (failures=1)`

func TestArbitrate_FirstLogicFailurePutsTestOnTrial(t *testing.T) {
	t.Parallel()

	outcome := model.Outcome{ExitCode: 1, Stderr: assertionStderr}
	state := model.CycleState{Attempt: 1, MaxAttempts: 3}

	d := Arbitrate(outcome, state)

	assert.Equal(t, model.FixTest, d.Verdict, "an unvetted test is never trusted to convict the source")
	assert.NotEqual(t, model.FixSource, d.Verdict)
	assert.NotEmpty(t, d.Rationale)
}

func TestArbitrate_TrustedTestConvictsSource(t *testing.T) {
	t.Parallel()

	outcome := model.Outcome{ExitCode: 1, Stderr: assertionStderr}
	state := model.CycleState{
		Attempt:     2,
		MaxAttempts: 3,
		History: []model.Cycle{
			{Attempt: 1, Verdict: model.FixTest, Outcome: model.Outcome{ExitCode: 1}},
		},
	}

	d := Arbitrate(outcome, state)

	assert.Equal(t, model.FixSource, d.Verdict)
}

func TestArbitrate_FixBothAlsoVetsTheTest(t *testing.T) {
	t.Parallel()

	outcome := model.Outcome{ExitCode: 1, Stderr: assertionStderr}
	state := model.CycleState{
		History: []model.Cycle{
			{Attempt: 1, Verdict: model.FixBoth},
		},
	}

	d := Arbitrate(outcome, state)

	assert.Equal(t, model.FixSource, d.Verdict, "a test regenerated by FIX_BOTH counts as vetted")
}

func TestArbitrate_ContractSignals(t *testing.T) {
	t.Parallel()

	for _, signal := range []string{"NameError", "AttributeError", "ImportError", "ModuleNotFoundError"} {
		outcome := model.Outcome{
			ExitCode: 1,
			Stderr:   signal + ": name 'solve' is not defined",
		}
		d := Arbitrate(outcome, model.CycleState{})
		assert.Equal(t, model.FixBoth, d.Verdict, "signal %s", signal)
		assert.Contains(t, d.Rationale, signal)
	}
}

func TestArbitrate_TimeoutWithoutSignalVetoes(t *testing.T) {
	t.Parallel()

	outcome := model.Outcome{ExitCode: -1, TimedOut: true}

	d := Arbitrate(outcome, model.CycleState{})

	assert.Equal(t, model.Veto, d.Verdict)
}

func TestArbitrate_TimeoutWithAssertionIsStillArbitrated(t *testing.T) {
	t.Parallel()

	outcome := model.Outcome{ExitCode: -1, TimedOut: true, Stderr: "AssertionError: deadline"}

	d := Arbitrate(outcome, model.CycleState{})

	assert.Equal(t, model.FixTest, d.Verdict, "a timeout that still carries a signal is attributable")
}

func TestArbitrate_UnattributableFailureVetoes(t *testing.T) {
	t.Parallel()

	outcome := model.Outcome{ExitCode: 137, Stderr: "Killed"}

	d := Arbitrate(outcome, model.CycleState{})

	assert.Equal(t, model.Veto, d.Verdict)
}

func TestArbitrate_Replayable(t *testing.T) {
	t.Parallel()

	outcome := model.Outcome{ExitCode: 1, Stdout: "x", Stderr: assertionStderr}
	state := model.CycleState{
		Attempt:     2,
		MaxAttempts: 3,
		History:     []model.Cycle{{Attempt: 1, Verdict: model.Veto}},
	}

	first := Arbitrate(outcome, state)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Arbitrate(outcome, state))
	}
}

func TestArbitrate_VetoDoesNotVetTest(t *testing.T) {
	t.Parallel()

	outcome := model.Outcome{ExitCode: 1, Stderr: assertionStderr}
	state := model.CycleState{
		History: []model.Cycle{{Attempt: 1, Verdict: model.Veto}},
	}

	d := Arbitrate(outcome, state)

	assert.Equal(t, model.FixTest, d.Verdict, "a veto leaves the test unvetted")
}
