package main

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhuang-keju/GreyCells/internal/config"
	"github.com/zhuang-keju/GreyCells/internal/run"
)

func pruneCmd() *cobra.Command {
	var keepLast int
	var keepDays int
	var dryRun bool
	cmd := &cobra.Command{
		Use:          "prune",
		Short:        "Prune old runs from disk and database",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, repoRoot, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			cfg, err := loadConfig(repoRoot)
			if err != nil {
				return err
			}
			policy := config.RetentionPolicy{KeepLast: keepLast, KeepDays: keepDays}
			if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
				policy = cfg.Retention
			}
			if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
				return fmt.Errorf("set --keep or --days (or configure retention in %s)",
					filepath.Join(stateDirName, "config.json"))
			}

			baseDir := filepath.Join(repoRoot, stateDirName)
			res, err := run.PruneRuns(cmd.Context(), store, baseDir, policy, dryRun)
			if err != nil {
				return err
			}
			mode := "deleted"
			if dryRun {
				mode = "would delete"
			}
			log.Info().Msgf("%s %d of %d runs (kept %d, skipped %d)", mode, res.Deleted, res.Considered, res.Kept, res.Skipped)
			return nil
		},
	}
	cmd.Flags().IntVar(&keepLast, "keep", 0, "keep the newest N runs")
	cmd.Flags().IntVar(&keepDays, "days", 0, "keep runs newer than N days")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be pruned without deleting")
	return cmd
}
