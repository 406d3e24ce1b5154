package run

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/zhuang-keju/GreyCells/internal/agents"
	"github.com/zhuang-keju/GreyCells/internal/arbiter"
	"github.com/zhuang-keju/GreyCells/internal/db"
	"github.com/zhuang-keju/GreyCells/internal/extract"
	"github.com/zhuang-keju/GreyCells/internal/model"
)

// runLoop generates the initial artifact pair and then cycles through
// execute, arbitrate, fix until the tests pass or the attempt budget is
// spent. On error the returned phase is the one the run died in.
func (r *Runner) runLoop(ctx context.Context, state *model.CycleState) (model.Phase, error) {
	exec := r.newExecutor(r.layout.Workspace)

	err := r.generateChecked(ctx, agents.RoleCoder, agents.CoderPrompt(state.UserStory), func(res extract.Result) error {
		art, err := agents.ArtifactFromResult(res, agents.DefaultSourcePath)
		if err != nil {
			return err
		}
		state.Source = art
		return nil
	})
	if err != nil {
		return model.PhaseGenerating, err
	}
	err = r.generateChecked(ctx, agents.RoleTester, agents.TesterPrompt(state.UserStory, state.Source), func(res extract.Result) error {
		art, err := agents.ArtifactFromResult(res, agents.DefaultTestPath)
		if err != nil {
			return err
		}
		state.Tests = art
		return nil
	})
	if err != nil {
		return model.PhaseGenerating, err
	}
	if err := r.store.UpdateRun(ctx, r.runID, db.RunUpdate{
		Status:     string(model.PhaseGenerating),
		SourcePath: &state.Source.Path,
		TestPath:   &state.Tests.Path,
	}, &db.Event{
		Phase:   string(model.PhaseGenerating),
		Message: fmt.Sprintf("generated %s and %s", state.Source.Path, state.Tests.Path),
	}); err != nil {
		return model.PhaseGenerating, err
	}

	for {
		state.Attempt++
		if err := r.setPhase(ctx, state, model.PhaseExecuting, fmt.Sprintf("attempt %d: running tests", state.Attempt)); err != nil {
			return model.PhaseExecuting, err
		}
		outcome, err := exec.Execute(ctx, state.Source, state.Tests)
		if err != nil {
			return model.PhaseExecuting, fmt.Errorf("execute attempt %d: %w", state.Attempt, err)
		}

		if outcome.Passed {
			state.History = append(state.History, model.Cycle{Attempt: state.Attempt, Outcome: outcome})
			if err := r.setPhase(ctx, state, model.PhaseSucceeded, "all tests passed"); err != nil {
				return model.PhaseSucceeded, err
			}
			return model.PhaseSucceeded, nil
		}

		if err := r.setPhase(ctx, state, model.PhaseArbitrating, fmt.Sprintf("attempt %d: tests failed (exit %d)", state.Attempt, outcome.ExitCode)); err != nil {
			return model.PhaseArbitrating, err
		}
		decision := arbiter.Arbitrate(outcome, *state)
		if err := r.store.RecordDecision(ctx, r.runID, db.DecisionRecord{
			Attempt:   state.Attempt,
			Verdict:   string(decision.Verdict),
			Rationale: decision.Rationale,
			ExitCode:  outcome.ExitCode,
			TimedOut:  outcome.TimedOut,
		}); err != nil {
			return model.PhaseArbitrating, err
		}
		state.History = append(state.History, model.Cycle{
			Attempt:   state.Attempt,
			Outcome:   outcome,
			Verdict:   decision.Verdict,
			Rationale: decision.Rationale,
		})

		if state.Attempt >= state.MaxAttempts {
			if err := r.setPhase(ctx, state, model.PhaseExhausted, fmt.Sprintf("attempt budget spent after %d attempts", state.Attempt)); err != nil {
				return model.PhaseExhausted, err
			}
			return model.PhaseExhausted, nil
		}

		if decision.Verdict == model.Veto {
			log.Info().Str("run_id", r.runID).Int("attempt", state.Attempt).Msg("verdict vetoed, re-running unchanged artifacts")
			continue
		}

		if err := r.setPhase(ctx, state, model.PhaseFixing, fmt.Sprintf("attempt %d: %s", state.Attempt, decision.Verdict)); err != nil {
			return model.PhaseFixing, err
		}
		// Source first so a paired test fix sees the repaired API.
		if decision.Verdict.TargetsSource() {
			if err := r.fixArtifact(ctx, state, outcome, decision, agents.TargetSource); err != nil {
				return model.PhaseFixing, err
			}
		}
		if decision.Verdict.TargetsTest() {
			if err := r.fixArtifact(ctx, state, outcome, decision, agents.TargetTest); err != nil {
				return model.PhaseFixing, err
			}
		}
	}
}

// fixArtifact regenerates the artifact named by target through one
// debugger call. The other artifact is left byte for byte untouched.
func (r *Runner) fixArtifact(ctx context.Context, state *model.CycleState, outcome model.Outcome, decision arbiter.Decision, target string) error {
	current := state.Source
	if target == agents.TargetTest {
		current = state.Tests
	}
	prompt := agents.DebuggerPrompt(*state, outcome, target, decision.Rationale)
	return r.generateChecked(ctx, agents.RoleDebugger, prompt, func(res extract.Result) error {
		fixed, err := agents.FixFromResult(res, target, current)
		if err != nil {
			return err
		}
		if target == agents.TargetTest {
			state.Tests = fixed
		} else {
			state.Source = fixed
		}
		log.Info().Str("run_id", r.runID).Str("target", target).Str("path", fixed.Path).Msg("artifact regenerated")
		return nil
	})
}

func (r *Runner) setPhase(ctx context.Context, state *model.CycleState, phase model.Phase, message string) error {
	return r.store.UpdateRun(ctx, r.runID, db.RunUpdate{
		Status:  string(phase),
		Attempt: state.Attempt,
	}, &db.Event{Phase: string(phase), Message: message})
}
