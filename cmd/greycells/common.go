package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/zhuang-keju/GreyCells/internal/config"
	"github.com/zhuang-keju/GreyCells/internal/db"
)

// stateDirName is the per-project state directory holding the config,
// the run database, and all run directories.
const stateDirName = ".greycells"

func openStore() (*db.Store, string, func(), error) {
	repoRoot, err := os.Getwd()
	if err != nil {
		return nil, "", func() {}, err
	}
	stateDir := filepath.Join(repoRoot, stateDirName)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, "", func() {}, err
	}
	handle, err := db.Open(filepath.Join(stateDir, "greycells.db"))
	if err != nil {
		return nil, "", func() {}, err
	}
	return db.NewStore(handle), repoRoot, func() { _ = handle.Close() }, nil
}

func configPath(repoRoot string) string {
	path := viper.GetString("config")
	if path == "" {
		path = filepath.Join(stateDirName, "config.json")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(repoRoot, path)
	}
	return path
}

// loadConfig reads the project config, validates it against the embedded
// schema, and overlays it onto the defaults. A dedicated viper instance
// keeps flag bindings from leaking into the validated settings.
func loadConfig(repoRoot string) (config.Config, error) {
	path := configPath(repoRoot)
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return config.Config{}, fmt.Errorf("no config at %s (run `greycells init` first)", path)
		}
		return config.Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := config.ValidateSettings(v.AllSettings()); err != nil {
		return config.Config{}, err
	}
	cfg := config.Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return config.Config{}, fmt.Errorf("parse config: %w", err)
	}
	if s := os.Getenv("LLM_PROVIDER"); s != "" {
		cfg.LLM.Provider = s
	}
	if s := os.Getenv("LLM_MODEL"); s != "" {
		cfg.LLM.Model = s
	}
	if cfg.Run.MaxAttempts <= 0 {
		return config.Config{}, fmt.Errorf("run.max_attempts must be > 0")
	}
	return cfg, nil
}
