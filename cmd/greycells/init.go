package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhuang-keju/GreyCells/internal/config"
	"github.com/zhuang-keju/GreyCells/internal/db"
)

const stateGitignore = `greycells.db
greycells.db-*
runs/
.env
`

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a greycells project",
		Long:  "Initialize a greycells project by creating the .greycells state directory, the run database, and a default config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			repoRoot, err := os.Getwd()
			if err != nil {
				return err
			}

			stateDir := filepath.Join(repoRoot, stateDirName)
			log.Info().Str("dir", stateDir).Msg("creating state directory")
			if err := os.MkdirAll(filepath.Join(stateDir, "runs"), 0o755); err != nil {
				return fmt.Errorf("create runs dir: %w", err)
			}

			configFile := filepath.Join(stateDir, "config.json")
			if _, err := os.Stat(configFile); err == nil {
				log.Info().Msg("config.json already exists, skipping")
			} else {
				log.Info().Str("path", configFile).Msg("installing default config")
				data, err := json.MarshalIndent(config.Default(), "", "  ")
				if err != nil {
					return fmt.Errorf("marshal default config: %w", err)
				}
				if err := os.WriteFile(configFile, append(data, '\n'), 0o644); err != nil {
					return fmt.Errorf("write default config: %w", err)
				}
			}

			gitignore := filepath.Join(stateDir, ".gitignore")
			if _, err := os.Stat(gitignore); os.IsNotExist(err) {
				if err := os.WriteFile(gitignore, []byte(stateGitignore), 0o644); err != nil {
					return fmt.Errorf("write gitignore: %w", err)
				}
			}

			log.Info().Msg("preparing run database")
			handle, err := db.Open(filepath.Join(stateDir, "greycells.db"))
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			if err := handle.Close(); err != nil {
				return fmt.Errorf("close database: %w", err)
			}

			fmt.Println("greycells initialized successfully")
			return nil
		},
	}
}
