package main

import (
	"context"
	"errors"
	"os"

	"github.com/tidalhook/shelfctl/internal/catalog"
	"github.com/tidalhook/shelfctl/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		}
	}

	var session *shared.SessionHeaders
	if config.Shelf.HeadersPath != "" {
		if s, err := shared.ParseSessionFile(config.Shelf.HeadersPath); err == nil {
			session = s
		}
	}

	source := catalog.NewShelfSource(config.Shelf.BaseURL, session, nil)

	var actuator catalog.Actuator
	switch config.Shelf.Actuator {
	case "state":
		actuator = catalog.NewStateActuator(config.Shelf.BaseURL, session, nil)
	case "toggle":
		actuator = catalog.NewToggleActuator(config.Shelf.BaseURL, session, nil)
	}

	runner := NewRunner(RunnerOpts{
		Config:   config,
		Source:   source,
		Actuator: actuator,
		Logger:   logger,
	})

	app := &cli.Command{
		Name:     "shelfctl",
		Usage:    "Reconcile shelf items toward a desired state",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		err_ := errors.Unwrap(err)
		if errors.Is(err_, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		} else {
			logger.Fatalf("application error: %v", err)
		}
	}
}
