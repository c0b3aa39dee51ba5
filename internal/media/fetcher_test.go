package media_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HenrickTheBull/stagehand/internal/cache"
	"github.com/HenrickTheBull/stagehand/internal/media"
	"github.com/HenrickTheBull/stagehand/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.FATAL.Level())
}

func newFetchFixture(t *testing.T, config media.FetchConfig) (*media.Fetcher, *cache.Store) {
	t.Helper()

	store, err := cache.NewStore(cache.Config{RootDir: t.TempDir(), MaxAgeDays: 15})
	require.NoError(t, err)

	if config.ProbeTimeoutSeconds == 0 {
		config.ProbeTimeoutSeconds = 2
	}
	if config.BodyTimeoutSeconds == 0 {
		config.BodyTimeoutSeconds = 2
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = 1 << 20
	}

	return media.NewFetcher(config, store), store
}

// countDirEntries sums the files across all three managed directories.
func countDirEntries(t *testing.T, store *cache.Store) int {
	t.Helper()

	total := 0
	for _, dir := range []cache.Dir{cache.Images, cache.RawVideos, cache.Transcoded} {
		entries, err := os.ReadDir(store.DirFor(dir))
		require.NoError(t, err)
		total += len(entries)
	}

	return total
}

func Test_Fetch_WritesSingleImageFile(t *testing.T) {
	var headCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			headCount.Add(1)
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer server.Close()

	fetcher, store := newFetchFixture(t, media.FetchConfig{})

	locator := server.URL + "/blob"
	result, err := fetcher.Fetch(context.Background(), locator, false)
	require.NoError(t, err)

	assert.False(t, result.IsVideo)
	assert.Equal(t, "image/png", result.ContentType)
	assert.Equal(t, store.ResolvePath(locator, cache.Images, ".png"), result.Path)
	assert.Equal(t, int32(1), headCount.Load(), "expected exactly one metadata probe")

	content, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(content))
	assert.Equal(t, 1, countDirEntries(t, store))
}

func Test_Fetch_VideoLandsInRawVideoDir(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("mp4-bytes"))
	}))
	defer server.Close()

	fetcher, store := newFetchFixture(t, media.FetchConfig{})

	locator := server.URL + "/media"
	result, err := fetcher.Fetch(context.Background(), locator, false)
	require.NoError(t, err)

	assert.True(t, result.IsVideo)
	assert.Equal(t, store.ResolvePath(locator, cache.RawVideos, ".mp4"), result.Path)
	assert.FileExists(t, result.Path)
}

func Test_Fetch_ProbeHostileHostSkipsProbe(t *testing.T) {
	var headCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			headCount.Add(1)
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("raw-bytes"))
	}))
	defer server.Close()

	fetcher, _ := newFetchFixture(t, media.FetchConfig{
		ProbeHostilePattern: []string{"127.0.0.1"},
	})

	_, err := fetcher.Fetch(context.Background(), server.URL+"/video/clip", false)
	require.NoError(t, err)

	assert.Equal(t, int32(0), headCount.Load(), "probe should be skipped entirely for hostile hosts")
}

func Test_Fetch_SizeLimitAbortsWithoutFile(t *testing.T) {
	payload := make([]byte, 2048)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload)
	}))
	defer server.Close()

	fetcher, store := newFetchFixture(t, media.FetchConfig{MaxBytes: 1024})

	_, err := fetcher.Fetch(context.Background(), server.URL+"/big", false)

	var fetchErr *media.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 0, countDirEntries(t, store), "a failed fetch must create zero files")
}

func Test_Fetch_ErrorStatusLeavesNoFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher, store := newFetchFixture(t, media.FetchConfig{})

	_, err := fetcher.Fetch(context.Background(), server.URL+"/gone", false)

	var fetchErr *media.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 0, countDirEntries(t, store))
}

func Test_Fetch_SlowProbeTimesOutAndFallsBackToHeuristics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			time.Sleep(1500 * time.Millisecond)
			return
		}
		w.Write([]byte("raw-bytes"))
	}))
	defer server.Close()

	fetcher, store := newFetchFixture(t, media.FetchConfig{ProbeTimeoutSeconds: 1})

	locator := server.URL + "/video/clip"
	result, err := fetcher.Fetch(context.Background(), locator, false)
	require.NoError(t, err)

	assert.True(t, result.IsVideo, "locator heuristics must classify once the probe times out")
	assert.Equal(t, store.ResolvePath(locator, cache.RawVideos, ".bin"), result.Path)
}

func Test_Fetch_SlowBodyTimesOutWithoutFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "image/png")
			return
		}
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	fetcher, store := newFetchFixture(t, media.FetchConfig{BodyTimeoutSeconds: 1})

	_, err := fetcher.Fetch(context.Background(), server.URL+"/slow", false)

	var fetchErr *media.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 0, countDirEntries(t, store), "a timed-out transfer must create zero files")
}

func Test_Fetch_AssumeVideoOverridesImageSignals(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("actually-a-thumbnail"))
	}))
	defer server.Close()

	fetcher, store := newFetchFixture(t, media.FetchConfig{})

	locator := server.URL + "/media"
	result, err := fetcher.Fetch(context.Background(), locator, true)
	require.NoError(t, err)

	assert.True(t, result.IsVideo)
	assert.Equal(t, store.ResolvePath(locator, cache.RawVideos, ".jpg"), result.Path)
}
