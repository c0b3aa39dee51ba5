package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HenrickTheBull/stagehand/pkg/logger"
)

var log = logger.Get("CacheStore")

// Dir identifies one of the typed directories managed by the store.
// Raw fetches land in Images or RawVideos; the transcoder writes its
// normalized output to Transcoded.
type Dir int

const (
	Images Dir = iota
	RawVideos
	Transcoded
)

func (d Dir) String() string {
	return []string{"images", "videos", "transcoded"}[d]
}

const evictionInterval = time.Hour * 24

type Config struct {
	RootDir    string `yaml:"dir" env:"CACHE_DIR"`
	MaxAgeDays int    `yaml:"max_age_days" env:"CACHE_MAX_AGE_DAYS" env-default:"15"`
}

// Store maps content fingerprints to files inside a set of typed
// directories and answers validity queries based on file age. It holds
// no in-memory index; the filesystem is the source of truth.
type Store struct {
	root   string
	maxAge time.Duration
}

// NewStore creates the managed directories beneath the configured root
// (creating the root itself if needed). An error is returned if any of
// the paths exist but are not directories, or cannot be created.
func NewStore(config Config) (*Store, error) {
	if config.RootDir == "" {
		return nil, fmt.Errorf("cache store requires a root directory")
	}
	if config.MaxAgeDays <= 0 {
		return nil, fmt.Errorf("cache max age must be a positive number of days (got %d)", config.MaxAgeDays)
	}

	store := &Store{
		root:   config.RootDir,
		maxAge: time.Hour * 24 * time.Duration(config.MaxAgeDays),
	}

	for _, dir := range []Dir{Images, RawVideos, Transcoded} {
		path := store.DirFor(dir)
		if info, err := os.Stat(path); err == nil {
			if !info.IsDir() {
				return nil, fmt.Errorf("cache path '%s' exists but is not a directory", path)
			}
		} else if err := os.MkdirAll(path, os.ModeDir|os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create cache directory '%s': %w", path, err)
		}
	}

	return store, nil
}

// DirFor returns the absolute path of one of the managed directories.
func (store *Store) DirFor(dir Dir) string {
	return filepath.Join(store.root, dir.String())
}

// MaxAge is the window inside which a cache entry is considered fresh.
func (store *Store) MaxAge() time.Duration {
	return store.maxAge
}

// ResolvePath computes where the entry for the given locator belongs.
// Pure computation; no I/O is performed and the file may not exist.
func (store *Store) ResolvePath(locator string, dir Dir, extension string) string {
	return filepath.Join(store.DirFor(dir), Fingerprint(locator)+extension)
}

// IsValid reports whether the file at path exists and is younger than
// the configured maximum age.
func (store *Store) IsValid(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return time.Since(info.ModTime()) <= store.maxAge
}

// FindExisting scans the directory for a fresh entry matching the
// locator's fingerprint, regardless of extension. This lets repeat
// lookups hit the cache without re-resolving the media kind over the
// network.
func (store *Store) FindExisting(locator string, dir Dir) (string, bool) {
	prefix := Fingerprint(locator)

	entries, err := os.ReadDir(store.DirFor(dir))
	if err != nil {
		log.Emit(logger.WARNING, "Failed to scan cache directory '%s': %v\n", store.DirFor(dir), err)
		return "", false
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}

		path := filepath.Join(store.DirFor(dir), entry.Name())
		if store.IsValid(path) {
			return path, true
		}
	}

	return "", false
}

// EvictStale removes every file older than maxAge from each managed
// directory. A failure to scan one directory is logged and does not
// abort the sweep of the others.
func (store *Store) EvictStale(maxAge time.Duration) {
	for _, dir := range []Dir{Images, RawVideos, Transcoded} {
		path := store.DirFor(dir)

		entries, err := os.ReadDir(path)
		if err != nil {
			log.Emit(logger.ERROR, "Eviction sweep of '%s' failed: %v\n", path, err)
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			info, err := entry.Info()
			if err != nil {
				log.Emit(logger.WARNING, "Could not stat cache entry '%s' during eviction: %v\n", entry.Name(), err)
				continue
			}

			if time.Since(info.ModTime()) > maxAge {
				entryPath := filepath.Join(path, entry.Name())
				if err := os.Remove(entryPath); err != nil {
					log.Emit(logger.WARNING, "Failed to evict stale cache entry '%s': %v\n", entryPath, err)
					continue
				}

				log.Emit(logger.REMOVE, "Evicted stale cache entry '%s' (age %s)\n", entryPath, time.Since(info.ModTime()).Round(time.Hour))
			}
		}
	}
}

// RunEvictionLoop sweeps once immediately and then every 24 hours
// until the provided context is cancelled.
func (store *Store) RunEvictionLoop(ctx context.Context) error {
	store.EvictStale(store.maxAge)

	ticker := time.NewTicker(evictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			store.EvictStale(store.maxAge)
		case <-ctx.Done():
			log.Emit(logger.STOP, "Eviction loop shutting down (context cancelled)\n")
			return nil
		}
	}
}
