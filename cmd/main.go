package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/tempo/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	runner := NewRunner(RunnerOpts{Logger: logger})

	app := &cli.Command{
		Name:     "tempo",
		Usage:    "Focus timer companion for Spotify",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) {
			logger.Warn("not authenticated, run: tempo auth login")
			os.Exit(1)
		}
		logger.Fatalf("application error: %v", err)
	}
}
