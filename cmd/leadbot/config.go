package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/sponsor-leads/internal/config"
	"github.com/jonathan/sponsor-leads/internal/db"
	"github.com/jonathan/sponsor-leads/internal/state"
	"github.com/jonathan/sponsor-leads/internal/state/sqlitestore"
)

// storeFlags are shared by every command that opens the state store.
type storeFlags struct {
	configPath  string
	store       string
	databaseURL string
	statePath   string
}

func (f *storeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	cmd.Flags().StringVar(&f.store, "store", "", "State backend: sqlite, postgres or memory (default sqlite)")
	cmd.Flags().StringVar(&f.databaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	cmd.Flags().StringVar(&f.statePath, "state-path", "", "SQLite state file (default leadbot.db)")
}

// apply copies explicitly set flags onto cfg.
func (f *storeFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("store") {
		cfg.Store = f.store
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = f.databaseURL
	}
	if cmd.Flags().Changed("state-path") {
		cfg.StatePath = f.statePath
	}
}

// loadConfig reads the optional config file. Flags are applied by the caller
// before finishConfig.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Config{}, nil
	}
	loaded, err := config.LoadConfig(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return *loaded, nil
}

// finishConfig merges defaults, fills secrets from the environment and validates.
func finishConfig(cfg config.Config, getenv func(string) string) (config.Config, error) {
	merged := cfg.MergeWithDefaults(config.Defaults())
	merged.ApplyEnv(getenv)
	if err := merged.Validate(); err != nil {
		return config.Config{}, err
	}
	return merged, nil
}

// openStore opens the configured state backend.
func openStore(ctx context.Context, cfg config.Config) (state.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return state.NewMemory(), nil
	case config.StorePostgres:
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return database, nil
	case config.StoreSQLite, "":
		store, err := sqlitestore.Open(ctx, cfg.StatePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func commandConfig(cmd *cobra.Command, f *storeFlags) (config.Config, error) {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return cfg, err
	}
	f.apply(cmd, &cfg)
	return finishConfig(cfg, os.Getenv)
}
