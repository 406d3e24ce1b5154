package run

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/zhuang-keju/GreyCells/internal/db"
	"github.com/zhuang-keju/GreyCells/internal/model"
)

// staleRunMessage marks a run whose process died without reaching a
// terminal phase. The message doubles as the idempotence marker.
const staleRunMessage = "run abandoned: process no longer alive"

// ReconcileStale sweeps the ledger for runs that claim to be in flight
// but whose lock is free, and records an abandonment event on each. The
// run keeps the phase it died in; only the timeline says what happened.
// Returns how many runs were newly marked.
func ReconcileStale(ctx context.Context, store *db.Store, baseDir string) (int, error) {
	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("list runs: %w", err)
	}

	marked := 0
	for _, rec := range runs {
		if model.Phase(rec.Status).Terminal() {
			continue
		}
		dir := rec.RunDir
		if dir == "" {
			dir = filepath.Join(baseDir, "runs", rec.ID)
		}
		if RunAlive(dir) {
			continue
		}
		events, err := store.ListEvents(ctx, rec.ID)
		if err != nil {
			return marked, fmt.Errorf("list events for %s: %w", rec.ID, err)
		}
		if len(events) > 0 && events[len(events)-1].Message == staleRunMessage {
			continue
		}
		if err := store.RecordEvent(ctx, rec.ID, rec.Status, staleRunMessage); err != nil {
			return marked, fmt.Errorf("record abandonment for %s: %w", rec.ID, err)
		}
		log.Warn().Str("run_id", rec.ID).Str("status", rec.Status).Msg("abandoned run detected")
		marked++
	}
	return marked, nil
}
