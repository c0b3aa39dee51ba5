package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/HenrickTheBull/stagehand/internal/cache"
	"github.com/HenrickTheBull/stagehand/internal/delivery"
	"github.com/HenrickTheBull/stagehand/internal/media"
	"github.com/HenrickTheBull/stagehand/internal/queue"
	"github.com/HenrickTheBull/stagehand/internal/scheduler"
	"github.com/HenrickTheBull/stagehand/internal/transcode"
	"github.com/ilyakaznacheev/cleanenv"
)

const stagehandUserDirSuffix = "stagehand"

// StagehandConfig is the full user-supplied configuration, loaded from
// a YAML file with environment variable overrides.
type StagehandConfig struct {
	Cache        cache.Config             `yaml:"cache"`
	Fetch        media.FetchConfig        `yaml:"fetch"`
	Transcoder   transcode.Config         `yaml:"transcoder"`
	Queue        queue.Config             `yaml:"queue"`
	Scheduler    scheduler.Config         `yaml:"scheduler"`
	Destinations []delivery.WebhookConfig `yaml:"destinations"`
}

// LoadFromFile reads the configuration file at the given path,
// applying env overrides and defaults, and fills in derived values the
// file left unset.
func (config *StagehandConfig) LoadFromFile(configPath string) error {
	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration from '%s': %w", configPath, err)
	}

	config.applyDerivedDefaults()
	return nil
}

// applyDerivedDefaults fills the cache root and queue path from the
// user cache dir when the config leaves them empty.
func (config *StagehandConfig) applyDerivedDefaults() {
	base := config.Cache.RootDir
	if base == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			panic(fmt.Sprintf("FAILURE to derive user cache dir: %s", err))
		}

		base = filepath.Join(dir, stagehandUserDirSuffix)
		config.Cache.RootDir = base
	}

	if config.Queue.FilePath == "" {
		config.Queue.FilePath = filepath.Join(base, "queue.json")
	}
}

// DestinationNames returns the configured destination names in
// configuration order. Delivery attempts follow this order.
func (config *StagehandConfig) DestinationNames() []string {
	names := make([]string, 0, len(config.Destinations))
	for _, dest := range config.Destinations {
		names = append(names, dest.Name)
	}

	return names
}
