// Package run drives the pipeline for one requirement: product manager,
// coder, and tester generations followed by the execute/arbitrate/fix
// cycle, with every step recorded on disk and in the store.
package run

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhuang-keju/GreyCells/internal/agents"
	"github.com/zhuang-keju/GreyCells/internal/artifact"
	"github.com/zhuang-keju/GreyCells/internal/config"
	"github.com/zhuang-keju/GreyCells/internal/db"
	"github.com/zhuang-keju/GreyCells/internal/extract"
	"github.com/zhuang-keju/GreyCells/internal/llm"
	"github.com/zhuang-keju/GreyCells/internal/model"
	"github.com/zhuang-keju/GreyCells/internal/sandbox"
)

// Executor runs a source/test pair and reports the outcome.
type Executor interface {
	Execute(ctx context.Context, source, tests model.Artifact) (model.Outcome, error)
}

// Request is one pipeline invocation.
type Request struct {
	Requirement string
	// Story skips the product-manager stage and is used verbatim.
	Story string
}

// Result summarizes a completed run.
type Result struct {
	RunID     string
	Status    model.Phase
	Attempts  int
	Story     string
	OutputDir string
}

// Runner executes the pipeline for one requirement. A Runner serves a
// single run at a time; concurrent runs each get their own Runner.
type Runner struct {
	baseDir string
	cfg     config.Config
	store   *db.Store
	client  llm.Client

	newExecutor func(workDir string) Executor

	runID  string
	layout runLayout
	step   int
}

// NewRunner wires a runner over the shared store and model client.
// baseDir is the project state directory holding runs and the database.
func NewRunner(baseDir string, cfg config.Config, store *db.Store, client llm.Client) *Runner {
	r := &Runner{
		baseDir: baseDir,
		cfg:     cfg,
		store:   store,
		client:  client,
	}
	r.newExecutor = func(workDir string) Executor {
		return sandbox.New(cfg.Sandbox, workDir)
	}
	return r
}

// Run executes the full pipeline and blocks until the run reaches a
// terminal phase or fails.
func (r *Runner) Run(ctx context.Context, req Request) (res Result, err error) {
	story := strings.TrimSpace(req.Story)
	if strings.TrimSpace(req.Requirement) == "" && story == "" {
		return Result{}, fmt.Errorf("empty requirement")
	}

	startedAt := time.Now()
	defer func() {
		if res.RunID == "" {
			return
		}
		event := log.Info().
			Str("run_id", res.RunID).
			Str("status", string(res.Status)).
			Int("attempts", res.Attempts).
			Dur("duration", time.Since(startedAt))
		if err != nil {
			event = event.Err(err)
		}
		event.Msg("run finished")
	}()

	runID, err := newRunID()
	if err != nil {
		return Result{}, err
	}
	r.runID = runID
	r.layout = newRunLayout(r.baseDir, runID)
	if err := r.layout.ensure(); err != nil {
		return Result{RunID: runID}, err
	}

	lock, err := AcquireRunLock(r.layout.Root)
	if err != nil {
		return Result{RunID: runID}, err
	}
	defer func() { _ = lock.Release() }()

	seed := story
	if seed == "" {
		seed = req.Requirement
	}
	if err := r.store.CreateRun(ctx, db.RunRecord{
		ID:          runID,
		Story:       seed,
		Status:      string(model.PhaseGenerating),
		MaxAttempts: r.cfg.Run.MaxAttempts,
		RunDir:      r.layout.Root,
	}); err != nil {
		return Result{RunID: runID}, err
	}

	if story == "" {
		story, err = r.draftStory(ctx, req.Requirement)
		if err != nil {
			r.abort(ctx, model.PhaseGenerating, err)
			return Result{RunID: runID, Status: model.PhaseGenerating}, err
		}
	}

	state := model.CycleState{
		MaxAttempts: r.cfg.Run.MaxAttempts,
		UserStory:   story,
	}
	phase, loopErr := r.runLoop(ctx, &state)
	res = Result{
		RunID:    runID,
		Status:   phase,
		Attempts: state.Attempt,
		Story:    story,
	}
	if loopErr != nil {
		r.abort(ctx, phase, loopErr)
		return res, loopErr
	}

	if phase == model.PhaseSucceeded || phase == model.PhaseExhausted {
		if phase == model.PhaseExhausted {
			log.Warn().Msg("attempt budget spent, persisting last artifact versions")
		}
		sink := artifact.NewSink(r.outputDir())
		if perr := sink.Persist(runID, state, phase); perr != nil {
			log.Warn().Err(perr).Msg("artifact persistence failed")
			_ = r.store.RecordEvent(ctx, runID, string(phase), fmt.Sprintf("artifact persistence failed: %v", perr))
		} else {
			res.OutputDir = sink.Dir()
		}
	}
	return res, nil
}

// draftStory turns the raw requirement into a user story via the
// product manager role.
func (r *Runner) draftStory(ctx context.Context, requirement string) (string, error) {
	var story string
	err := r.generateChecked(ctx, agents.RolePM, agents.PMPrompt(requirement), func(res extract.Result) error {
		s, err := agents.StoryFromResult(res)
		if err != nil {
			return err
		}
		story = s
		return nil
	})
	if err != nil {
		return "", err
	}
	if err := r.store.UpdateRun(ctx, r.runID, db.RunUpdate{
		Status: string(model.PhaseGenerating),
		Story:  &story,
	}, &db.Event{Phase: string(model.PhaseGenerating), Message: "user story drafted"}); err != nil {
		return "", err
	}
	return story, nil
}

// abort records why a run stopped making progress. The run keeps the
// phase it died in; a stale non-terminal run with a free lock is the
// signature of an aborted process.
func (r *Runner) abort(ctx context.Context, phase model.Phase, cause error) {
	_ = r.store.RecordEvent(context.WithoutCancel(ctx), r.runID, string(phase), fmt.Sprintf("run aborted: %v", cause))
}

func (r *Runner) outputDir() string {
	dir := r.cfg.Run.OutputDir
	if dir == "" {
		dir = "output"
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(r.layout.Root, dir)
}

func (r *Runner) nextStep() int {
	r.step++
	return r.step
}

func newRunID() (string, error) {
	suffix, err := randomHex(3)
	if err != nil {
		return "", err
	}
	ts := time.Now().UTC().Format("20060102-150405")
	return fmt.Sprintf("%s-%s", ts, suffix), nil
}
