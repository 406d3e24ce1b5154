package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zhuang-keju/GreyCells/internal/run"
)

func purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "purge",
		Short:        "Delete every run directory and all run history",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, repoRoot, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			baseDir := filepath.Join(repoRoot, stateDirName)
			if err := run.Purge(cmd.Context(), store, baseDir); err != nil {
				return fmt.Errorf("purge failed: %w", err)
			}

			fmt.Println("all runs purged")
			return nil
		},
	}
}
