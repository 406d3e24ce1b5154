package run

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhuang-keju/GreyCells/internal/config"
	"github.com/zhuang-keju/GreyCells/internal/db"
	"github.com/zhuang-keju/GreyCells/internal/model"
)

// PruneResult summarizes a prune operation.
type PruneResult struct {
	Considered int
	Kept       int
	Deleted    int
	Skipped    int
}

// PruneRuns deletes old run records and their directories according to
// the retention policy. Live and non-terminal runs are always kept.
func PruneRuns(ctx context.Context, store *db.Store, baseDir string, policy config.RetentionPolicy, dryRun bool) (PruneResult, error) {
	if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
		return PruneResult{}, nil
	}
	cutoff := time.Time{}
	if policy.KeepDays > 0 {
		cutoff = time.Now().UTC().Add(-time.Duration(policy.KeepDays) * 24 * time.Hour)
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		return PruneResult{}, err
	}

	res := PruneResult{Considered: len(runs)}
	for idx, rec := range runs {
		keep := false
		if !model.Phase(rec.Status).Terminal() {
			keep = true
		}
		if !keep && policy.KeepLast > 0 && idx < policy.KeepLast {
			keep = true
		}
		if !keep && policy.KeepDays > 0 {
			createdAt, parseErr := time.Parse(time.RFC3339, rec.CreatedAt)
			if parseErr != nil || createdAt.After(cutoff) {
				keep = true
			}
		}
		if keep {
			res.Kept++
			continue
		}
		if dryRun {
			res.Deleted++
			continue
		}
		targetDir := rec.RunDir
		if targetDir == "" {
			targetDir = filepath.Join(baseDir, "runs", rec.ID)
		}
		if err := os.RemoveAll(targetDir); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("run_id", rec.ID).Msg("run dir not removed, keeping record")
			res.Skipped++
			continue
		}
		if err := store.DeleteRun(ctx, rec.ID); err != nil {
			return res, fmt.Errorf("delete run %s: %w", rec.ID, err)
		}
		res.Deleted++
	}
	return res, nil
}

// Purge removes every run, its directory, and its records.
func Purge(ctx context.Context, store *db.Store, baseDir string) error {
	runsDir := filepath.Join(baseDir, "runs")
	if err := os.RemoveAll(runsDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove runs dir: %w", err)
	}
	if err := store.PurgeRuns(ctx); err != nil {
		return err
	}
	log.Info().Str("dir", runsDir).Msg("all runs purged")
	return nil
}
