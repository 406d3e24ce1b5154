package run

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhuang-keju/GreyCells/internal/config"
	"github.com/zhuang-keju/GreyCells/internal/db"
	"github.com/zhuang-keju/GreyCells/internal/llm"
	"github.com/zhuang-keju/GreyCells/internal/model"
)

// fakeClient feeds canned markdown replies to the pipeline in order.
type fakeClient struct {
	replies []string
	prompts []string
	systems []string
}

func (c *fakeClient) Generate(_ context.Context, prompt string, params llm.GenerationParams) (string, error) {
	c.prompts = append(c.prompts, prompt)
	c.systems = append(c.systems, params.SystemPrompt)
	if len(c.replies) == 0 {
		return "", fmt.Errorf("fake client exhausted after %d calls", len(c.prompts))
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}

func (c *fakeClient) Name() string { return "fake" }

type execution struct {
	source model.Artifact
	tests  model.Artifact
}

// fakeExec replays canned outcomes and records the exact artifact pair
// of every execution.
type fakeExec struct {
	outcomes   []model.Outcome
	executions []execution
}

func (e *fakeExec) Execute(_ context.Context, source, tests model.Artifact) (model.Outcome, error) {
	e.executions = append(e.executions, execution{source: source, tests: tests})
	if len(e.outcomes) == 0 {
		return model.Outcome{}, fmt.Errorf("fake executor exhausted after %d executions", len(e.executions))
	}
	out := e.outcomes[0]
	e.outcomes = e.outcomes[1:]
	return out, nil
}

const pmReply = "## Story\n\nAs a shopkeeper I want the total of two order amounts so that receipts add up.\n"

const coderReply = "## Content:\n\n```python\ndef add(a, b):\n    return a + b\n```\n\n## Metadata: {\"path\": \"calc.py\", \"packages\": []}\n"

const testerReply = "## Content:\n\n```python\nclass TestAdd(unittest.TestCase):\n    def test_add(self):\n        self.assertEqual(add(2, 2), 4)\n```\n\n## Metadata: {\"path\": \"test_calc.py\"}\n"

const fixTestReply = "## Reasoning: the test asserted a total the story does not support\n## Target: TEST\n## Content:\n\n```python\nclass TestAdd(unittest.TestCase):\n    def test_add(self):\n        self.assertEqual(add(2, 3), 5)\n```\n"

const fixSourceReply = "## Reasoning: the source returned a wrong total for the story\n## Target: SOURCE\n## Content:\n\n```python\ndef add(a, b):\n    return a + b\n```\n"

var passOutcome = model.Outcome{ExitCode: 0, Stderr: "Ran 1 test in 0.001s\n\nOK\n", Passed: true}

var assertionOutcome = model.Outcome{
	ExitCode: 1,
	Stderr:   "FAIL: test_add (test_calc.TestAdd)\nAssertionError: 4 != 5\n\nFAILED (failures=1)\n",
}

var killedOutcome = model.Outcome{ExitCode: 137, Stderr: "Killed\n"}

func loopFixture(t *testing.T, client *fakeClient, exec *fakeExec, maxAttempts int) (*Runner, *db.Store) {
	t.Helper()
	baseDir := t.TempDir()
	handle, err := db.Open(filepath.Join(baseDir, "greycells.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = handle.Close() })
	store := db.NewStore(handle)

	cfg := config.Default()
	cfg.Run.MaxAttempts = maxAttempts
	runner := NewRunner(baseDir, cfg, store, client)
	runner.newExecutor = func(string) Executor { return exec }
	return runner, store
}

func TestRunner_Run_SucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	client := &fakeClient{replies: []string{pmReply, coderReply, testerReply}}
	exec := &fakeExec{outcomes: []model.Outcome{passOutcome}}
	runner, store := loopFixture(t, client, exec, 3)

	ctx := context.Background()
	res, err := runner.Run(ctx, Request{Requirement: "add two order amounts"})
	require.NoError(t, err)
	assert.Equal(t, model.PhaseSucceeded, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.Contains(t, res.Story, "shopkeeper")

	require.Len(t, client.prompts, 3)
	assert.Contains(t, client.prompts[2], "calc", "tester prompt names the module under test")
	require.Len(t, exec.executions, 1)
	assert.Equal(t, "calc.py", exec.executions[0].source.Path)

	require.NotEmpty(t, res.OutputDir)
	source, err := os.ReadFile(filepath.Join(res.OutputDir, "calc.py"))
	require.NoError(t, err)
	assert.Equal(t, "def add(a, b):\n    return a + b", string(source))
	tests, err := os.ReadFile(filepath.Join(res.OutputDir, "test_calc.py"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(tests), "import unittest\nfrom calc import *\n\n"))

	rec, err := store.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", rec.Status)
	assert.Equal(t, "calc.py", rec.SourcePath)
	assert.Contains(t, rec.Story, "shopkeeper", "store carries the drafted story, not the raw requirement")

	events, err := store.ListEvents(ctx, res.RunID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "run started", events[0].Message)
}

func TestRunner_Run_VetoReexecutesUnchangedArtifacts(t *testing.T) {
	t.Parallel()

	client := &fakeClient{replies: []string{pmReply, coderReply, testerReply}}
	exec := &fakeExec{outcomes: []model.Outcome{killedOutcome, passOutcome}}
	runner, store := loopFixture(t, client, exec, 3)

	ctx := context.Background()
	res, err := runner.Run(ctx, Request{Requirement: "add two order amounts"})
	require.NoError(t, err)
	assert.Equal(t, model.PhaseSucceeded, res.Status)
	assert.Equal(t, 2, res.Attempts)

	assert.Len(t, client.prompts, 3, "a veto must not trigger any repair generation")
	require.Len(t, exec.executions, 2)
	assert.Equal(t, exec.executions[0].source.Content, exec.executions[1].source.Content)
	assert.Equal(t, exec.executions[0].tests.Content, exec.executions[1].tests.Content)

	decisions, err := store.ListDecisions(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "VETO", decisions[0].Verdict)
}

func TestRunner_Run_FirstLogicFailurePutsTestOnTrial(t *testing.T) {
	t.Parallel()

	client := &fakeClient{replies: []string{pmReply, coderReply, testerReply, fixTestReply}}
	exec := &fakeExec{outcomes: []model.Outcome{assertionOutcome, passOutcome}}
	runner, store := loopFixture(t, client, exec, 3)

	ctx := context.Background()
	res, err := runner.Run(ctx, Request{Requirement: "add two order amounts"})
	require.NoError(t, err)
	assert.Equal(t, model.PhaseSucceeded, res.Status)
	assert.Equal(t, 2, res.Attempts)

	require.Len(t, client.prompts, 4)
	assert.Contains(t, client.prompts[3], "Repair the TEST file")

	require.Len(t, exec.executions, 2)
	assert.Equal(t, exec.executions[0].source.Content, exec.executions[1].source.Content,
		"a FIX_TEST verdict must leave the source byte-identical")
	assert.NotEqual(t, exec.executions[0].tests.Content, exec.executions[1].tests.Content)
	assert.Contains(t, exec.executions[1].tests.Content, "add(2, 3), 5")

	decisions, err := store.ListDecisions(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "FIX_TEST", decisions[0].Verdict)
}

func TestRunner_Run_ExhaustsAttemptBudget(t *testing.T) {
	t.Parallel()

	client := &fakeClient{replies: []string{pmReply, coderReply, testerReply, fixTestReply}}
	exec := &fakeExec{outcomes: []model.Outcome{assertionOutcome, assertionOutcome}}
	runner, store := loopFixture(t, client, exec, 2)

	ctx := context.Background()
	res, err := runner.Run(ctx, Request{Requirement: "add two order amounts"})
	require.NoError(t, err)
	assert.Equal(t, model.PhaseExhausted, res.Status)
	assert.Equal(t, 2, res.Attempts)

	require.NotEmpty(t, res.OutputDir, "exhausted runs still persist their last versions")
	tests, err := os.ReadFile(filepath.Join(res.OutputDir, "test_calc.py"))
	require.NoError(t, err)
	assert.Contains(t, string(tests), "add(2, 3), 5", "the repaired test is the last version on disk")
	manifest, err := os.ReadFile(filepath.Join(res.OutputDir, "manifest.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(manifest), "status: exhausted")

	require.Len(t, exec.executions, 2)

	decisions, err := store.ListDecisions(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, "FIX_TEST", decisions[0].Verdict)
	assert.Equal(t, "FIX_SOURCE", decisions[1].Verdict, "a vetted test convicts the source")

	rec, err := store.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "exhausted", rec.Status)
	assert.Equal(t, 2, rec.Attempt)
}

func TestRunner_Run_MalformedReplyRegeneratesSameRole(t *testing.T) {
	t.Parallel()

	client := &fakeClient{replies: []string{pmReply, "no sections in this reply at all", coderReply, testerReply}}
	exec := &fakeExec{outcomes: []model.Outcome{passOutcome}}
	runner, _ := loopFixture(t, client, exec, 3)

	ctx := context.Background()
	res, err := runner.Run(ctx, Request{Requirement: "add two order amounts"})
	require.NoError(t, err)
	assert.Equal(t, model.PhaseSucceeded, res.Status)
	assert.Len(t, client.prompts, 4, "one extraction retry for the coder")

	stepsDir := filepath.Join(runner.layout.Steps)
	if _, err := os.Stat(filepath.Join(stepsDir, "02-coder")); err != nil {
		t.Fatalf("first coder step dir missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(stepsDir, "02-coder-retry-1")); err != nil {
		t.Fatalf("retry step dir missing: %v", err)
	}
}

func TestRunner_Run_StorySkipsProductManager(t *testing.T) {
	t.Parallel()

	client := &fakeClient{replies: []string{coderReply, testerReply}}
	exec := &fakeExec{outcomes: []model.Outcome{passOutcome}}
	runner, store := loopFixture(t, client, exec, 3)

	ctx := context.Background()
	res, err := runner.Run(ctx, Request{Story: "As a poet I want rhyming couplets graded."})
	require.NoError(t, err)
	assert.Equal(t, model.PhaseSucceeded, res.Status)

	require.Len(t, client.prompts, 2, "with a preapproved story the pm is never called")
	assert.Contains(t, client.prompts[0], "As a poet")

	rec, err := store.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "As a poet I want rhyming couplets graded.", rec.Story)
}

func TestRunner_Run_EmptyRequirementRejected(t *testing.T) {
	t.Parallel()

	runner, _ := loopFixture(t, &fakeClient{}, &fakeExec{}, 3)
	_, err := runner.Run(context.Background(), Request{Requirement: "   "})
	require.Error(t, err)
}
