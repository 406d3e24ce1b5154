package run

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhuang-keju/GreyCells/internal/config"
	"github.com/zhuang-keju/GreyCells/internal/db"
)

func pruneFixture(t *testing.T) (*db.Store, string) {
	t.Helper()
	baseDir := t.TempDir()
	handle, err := db.Open(filepath.Join(baseDir, "greycells.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = handle.Close() })
	return db.NewStore(handle), baseDir
}

func seedPruneRun(t *testing.T, store *db.Store, baseDir, id, status, createdAt string) string {
	t.Helper()
	runDir := filepath.Join(baseDir, "runs", id)
	require.NoError(t, os.MkdirAll(runDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "marker"), []byte(id), 0o644))
	require.NoError(t, store.CreateRun(context.Background(), db.RunRecord{
		ID:          id,
		Story:       "story " + id,
		Status:      status,
		MaxAttempts: 3,
		RunDir:      runDir,
	}))
	_, err := store.DB().Exec(`UPDATE runs SET created_at=? WHERE run_id=?`, createdAt, id)
	require.NoError(t, err)
	return runDir
}

func TestPruneRuns_KeepLastPreservesNewestAndLive(t *testing.T) {
	t.Parallel()

	store, baseDir := pruneFixture(t)
	ctx := context.Background()

	var dirs []string
	for i := 1; i <= 4; i++ {
		createdAt := fmt.Sprintf("2026-01-0%dT00:00:00Z", i)
		dirs = append(dirs, seedPruneRun(t, store, baseDir, fmt.Sprintf("run-%d", i), "succeeded", createdAt))
	}
	// Oldest of all, but still executing: retention must not touch it.
	liveDir := seedPruneRun(t, store, baseDir, "run-live", "executing", "2025-12-01T00:00:00Z")

	res, err := PruneRuns(ctx, store, baseDir, config.RetentionPolicy{KeepLast: 2}, false)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Considered)
	assert.Equal(t, 3, res.Kept)
	assert.Equal(t, 2, res.Deleted)

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	var ids []string
	for _, rec := range runs {
		ids = append(ids, rec.ID)
	}
	assert.ElementsMatch(t, []string{"run-4", "run-3", "run-live"}, ids)

	_, err = os.Stat(dirs[0])
	assert.True(t, os.IsNotExist(err), "oldest terminal run dir should be removed")
	_, err = os.Stat(liveDir)
	assert.NoError(t, err, "live run dir must survive")
}

func TestPruneRuns_DryRunTouchesNothing(t *testing.T) {
	t.Parallel()

	store, baseDir := pruneFixture(t)
	ctx := context.Background()

	seedPruneRun(t, store, baseDir, "run-old", "succeeded", "2026-01-01T00:00:00Z")
	seedPruneRun(t, store, baseDir, "run-new", "succeeded", "2026-01-02T00:00:00Z")

	res, err := PruneRuns(ctx, store, baseDir, config.RetentionPolicy{KeepLast: 1}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2, "dry run must not delete records")
	_, err = os.Stat(filepath.Join(baseDir, "runs", "run-old"))
	assert.NoError(t, err, "dry run must not delete directories")
}

func TestPruneRuns_KeepDays(t *testing.T) {
	t.Parallel()

	store, baseDir := pruneFixture(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-40 * 24 * time.Hour).Format(time.RFC3339)
	fresh := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	seedPruneRun(t, store, baseDir, "run-stale", "exhausted", old)
	seedPruneRun(t, store, baseDir, "run-fresh", "succeeded", fresh)

	res, err := PruneRuns(ctx, store, baseDir, config.RetentionPolicy{KeepDays: 30}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 1, res.Kept)

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-fresh", runs[0].ID)
}

func TestPurge_RemovesEverything(t *testing.T) {
	t.Parallel()

	store, baseDir := pruneFixture(t)
	ctx := context.Background()

	seedPruneRun(t, store, baseDir, "run-a", "succeeded", "2026-01-01T00:00:00Z")
	seedPruneRun(t, store, baseDir, "run-b", "executing", "2026-01-02T00:00:00Z")

	require.NoError(t, Purge(ctx, store, baseDir))

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
	_, err = os.Stat(filepath.Join(baseDir, "runs"))
	assert.True(t, os.IsNotExist(err))
}
