package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/tempo/internal/shared"
	"github.com/desertthunder/tempo/internal/store"
	"github.com/urfave/cli/v3"
)

// Setup initializes the config file and the token store database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := shared.CreateConfigFile(configPath); err != nil {
			return fmt.Errorf("failed to create config: %w", err)
		}
		r.writePlain("✓ Created %s\n", configPath)
		r.writePlain("  Edit it and set your Spotify client_id before logging in.\n")
	} else {
		r.writePlain("✓ Config already exists at %s\n", configPath)
	}

	config, err := shared.LoadConfig(configPath)
	if err != nil {
		return err
	}

	r.logger.Infof("initializing token store at %v", config.Store.Path)

	sqlite, err := store.NewSQLiteStore(config.Store.Path, config.Store.MaxOpenConns, config.Store.MaxIdleConns)
	if err != nil {
		return fmt.Errorf("failed to initialize token store: %w", err)
	}
	defer sqlite.Close()

	r.writePlain("✓ Token store ready at %s\n", config.Store.Path)
	r.writePlain("\nNext: tempo auth login\n")

	return nil
}
