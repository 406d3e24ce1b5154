package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	handle, err := Open(filepath.Join(t.TempDir(), "greycells.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = handle.Close() })
	return NewStore(handle)
}

func seedRun(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.CreateRun(context.Background(), RunRecord{
		ID:          id,
		Story:       "as a user I want sums",
		Status:      "generating",
		MaxAttempts: 3,
		RunDir:      "/tmp/runs/" + id,
	})
	require.NoError(t, err)
}

func TestStore_CreateAndGetRun(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	seedRun(t, s, "20260821-120000-abc")

	rec, err := s.GetRun(context.Background(), "20260821-120000-abc")
	require.NoError(t, err)
	assert.Equal(t, "generating", rec.Status)
	assert.Equal(t, 3, rec.MaxAttempts)
	assert.Empty(t, rec.SourcePath)

	events, err := s.ListEvents(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].Seq)
	assert.Equal(t, "run started", events[0].Message)
}

func TestStore_GetRun_NotFound(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	_, err := s.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UpdateRunKeepsPathsWhenNil(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := testStore(t)
	seedRun(t, s, "r1")

	src, tst := "calc.py", "test_calc.py"
	err := s.UpdateRun(ctx, "r1", RunUpdate{Status: "executing", Attempt: 1, SourcePath: &src, TestPath: &tst},
		&Event{Phase: "executing", Message: "attempt 1"})
	require.NoError(t, err)

	err = s.UpdateRun(ctx, "r1", RunUpdate{Status: "succeeded", Attempt: 1}, nil)
	require.NoError(t, err)

	rec, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", rec.Status)
	assert.Equal(t, "calc.py", rec.SourcePath, "nil path update must not clear the stored path")
	assert.Equal(t, "test_calc.py", rec.TestPath)
}

func TestStore_EventSequencePerRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := testStore(t)
	seedRun(t, s, "r1")
	seedRun(t, s, "r2")

	require.NoError(t, s.RecordEvent(ctx, "r1", "executing", "first"))
	require.NoError(t, s.RecordEvent(ctx, "r1", "arbitrating", "second"))
	require.NoError(t, s.RecordEvent(ctx, "r2", "executing", "other run"))

	events, err := s.ListEvents(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Seq)
	}

	events, err = s.ListEvents(ctx, "r2")
	require.NoError(t, err)
	require.Len(t, events, 2, "sequences are per run")
}

func TestStore_DecisionsRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := testStore(t)
	seedRun(t, s, "r1")

	err := s.RecordDecision(ctx, "r1", DecisionRecord{
		Attempt:   1,
		Verdict:   "FIX_TEST",
		Rationale: "AssertionError on an unvetted test",
		ExitCode:  1,
	})
	require.NoError(t, err)
	err = s.RecordDecision(ctx, "r1", DecisionRecord{
		Attempt:   2,
		Verdict:   "VETO",
		Rationale: "timed out with no signal",
		ExitCode:  -1,
		TimedOut:  true,
	})
	require.NoError(t, err)

	decisions, err := s.ListDecisions(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, "FIX_TEST", decisions[0].Verdict)
	assert.False(t, decisions[0].TimedOut)
	assert.True(t, decisions[1].TimedOut)

	events, err := s.ListEvents(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, events, 3, "each decision also lands on the timeline")
}

func TestStore_DeleteRunCascades(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := testStore(t)
	seedRun(t, s, "r1")
	require.NoError(t, s.RecordDecision(ctx, "r1", DecisionRecord{Attempt: 1, Verdict: "FIX_BOTH", Rationale: "NameError", ExitCode: 1}))

	require.NoError(t, s.DeleteRun(ctx, "r1"))

	_, err := s.GetRun(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
	events, err := s.ListEvents(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, events)
	decisions, err := s.ListDecisions(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, decisions)
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := testStore(t)
	seedRun(t, s, "20260821-100000-aaa")
	seedRun(t, s, "20260821-110000-bbb")
	seedRun(t, s, "20260821-120000-ccc")

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "20260821-120000-ccc", runs[0].ID)

	runs, err = s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
