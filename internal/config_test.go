package internal_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/HenrickTheBull/stagehand/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "stagehand.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func Test_LoadFromFile_ReadsYamlAndAppliesDefaults(t *testing.T) {
	cacheDir := t.TempDir()
	path := writeConfigFile(t, yamlWithCacheDir(cacheDir))

	var config internal.StagehandConfig
	require.NoError(t, config.LoadFromFile(path))

	assert.Equal(t, cacheDir, config.Cache.RootDir)
	assert.Equal(t, 7, config.Cache.MaxAgeDays)
	assert.Equal(t, int64(1048576), config.Fetch.MaxBytes)
	assert.Equal(t, "*/30 * * * *", config.Scheduler.CronSchedule)
	assert.Equal(t, 2, config.Scheduler.ItemsPerInterval)

	// Unset values fall back to their declared defaults.
	assert.Equal(t, "ffmpeg", config.Transcoder.FfmpegBinPath)
	assert.Equal(t, "ffprobe", config.Transcoder.FfprobeBinPath)

	// The queue path derives from the cache root when left unset.
	assert.Equal(t, filepath.Join(cacheDir, "queue.json"), config.Queue.FilePath)
}

func Test_LoadFromFile_MissingFileIsAnError(t *testing.T) {
	var config internal.StagehandConfig
	assert.Error(t, config.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")))
}

func Test_DestinationNames_PreservesConfigurationOrder(t *testing.T) {
	path := writeConfigFile(t, yamlWithCacheDir(t.TempDir()))

	var config internal.StagehandConfig
	require.NoError(t, config.LoadFromFile(path))

	assert.Equal(t, []string{"telegram", "discord"}, config.DestinationNames())
	require.Len(t, config.Destinations, 2)
	assert.Equal(t, 10, config.Destinations[1].TimeoutSeconds)
}

func yamlWithCacheDir(dir string) string {
	return "" +
		"cache:\n" +
		"  dir: " + dir + "\n" +
		"  max_age_days: 7\n" +
		"fetch:\n" +
		"  max_bytes: 1048576\n" +
		"scheduler:\n" +
		"  cron_schedule: \"*/30 * * * *\"\n" +
		"  items_per_interval: 2\n" +
		"destinations:\n" +
		"  - name: telegram\n" +
		"    url: http://localhost:9001/hook\n" +
		"  - name: discord\n" +
		"    url: http://localhost:9002/hook\n" +
		"    timeout_seconds: 10\n"
}
