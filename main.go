package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/HenrickTheBull/stagehand/internal"
	"github.com/HenrickTheBull/stagehand/pkg/logger"
	"github.com/mitchellh/go-homedir"
)

var log = logger.Get("Main")

// main loads the user configuration, constructs the stagehand core and
// runs it until interrupted.
func main() {
	configPath := flag.String("config", "", "path to the stagehand config file (defaults to ~/.config/stagehand/stagehand.yaml)")
	flag.Parse()

	path := *configPath
	if path == "" {
		home, err := homedir.Dir()
		if err != nil {
			log.Emit(logger.FATAL, "Failed to determine home directory: %v\n", err)
			os.Exit(1)
		}

		path = filepath.Join(home, ".config", "stagehand", "stagehand.yaml")
	}

	config := internal.StagehandConfig{}
	if err := config.LoadFromFile(path); err != nil {
		log.Emit(logger.FATAL, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	stagehand, err := internal.New(config)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to initialise stagehand: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := stagehand.Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Stagehand exited with error: %v\n", err)
		os.Exit(1)
	}
}
