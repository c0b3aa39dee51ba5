package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HenrickTheBull/stagehand/internal/cache"
	"github.com/HenrickTheBull/stagehand/pkg/logger"
)

var log = logger.Get("MediaFetch")

// FetchError wraps any failure to download a media locator; network
// errors, timeouts and the payload size cap all surface through it.
type FetchError struct {
	Locator string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch media from '%s': %v", e.Locator, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type FetchConfig struct {
	ProbeTimeoutSeconds int      `yaml:"probe_timeout_seconds" env:"FETCH_PROBE_TIMEOUT" env-default:"10"`
	BodyTimeoutSeconds  int      `yaml:"body_timeout_seconds" env:"FETCH_BODY_TIMEOUT" env-default:"30"`
	MaxBytes            int64    `yaml:"max_bytes" env:"FETCH_MAX_BYTES" env-default:"52428800"`
	UserAgent           string   `yaml:"user_agent" env:"FETCH_USER_AGENT" env-default:"stagehand/1.0 (+https://github.com/HenrickTheBull/stagehand)"`
	ProbeHostilePattern []string `yaml:"probe_hostile_patterns"`
}

// Hosts known to reject metadata-only probes. For these the content
// type is inferred purely from locator patterns and the HEAD request
// is skipped entirely.
var defaultProbeHostilePatterns = []string{
	"video.twimg.com",
	"v.redd.it",
}

// FetchResult describes a successfully downloaded media asset.
type FetchResult struct {
	Path        string
	ContentType string
	IsVideo     bool
}

// Fetcher downloads remote media into the cache store's typed
// directories, keyed by the locator's fingerprint.
type Fetcher struct {
	probeClient *http.Client
	bodyClient  *http.Client
	config      FetchConfig
	store       *cache.Store
}

func NewFetcher(config FetchConfig, store *cache.Store) *Fetcher {
	if len(config.ProbeHostilePattern) == 0 {
		config.ProbeHostilePattern = defaultProbeHostilePatterns
	}

	return &Fetcher{
		probeClient: &http.Client{Timeout: time.Second * time.Duration(config.ProbeTimeoutSeconds)},
		bodyClient:  &http.Client{Timeout: time.Second * time.Duration(config.BodyTimeoutSeconds)},
		config:      config,
		store:       store,
	}
}

// Fetch downloads the resource behind the locator to its cache path
// and returns the resolved result. A metadata-only probe runs first to
// learn the content type, unless the host is known to reject probes.
// Exactly one file is created on success; failure leaves no file a
// later validity check could accept.
func (fetcher *Fetcher) Fetch(ctx context.Context, locator string, assumeVideo bool) (*FetchResult, error) {
	headerContentType := ""
	if fetcher.isProbeHostile(locator) {
		log.Emit(logger.DEBUG, "Skipping probe for '%s' (host rejects metadata requests)\n", locator)
	} else if contentType, err := fetcher.probe(ctx, locator); err == nil {
		headerContentType = contentType
	} else {
		log.Emit(logger.DEBUG, "Probe of '%s' failed (%v), falling back to locator heuristics\n", locator, err)
	}

	kind := ResolveKind(locator, headerContentType)
	if assumeVideo {
		kind.IsVideo = true
	}

	targetDir := cache.Images
	if kind.IsVideo {
		targetDir = cache.RawVideos
	}

	targetPath := fetcher.store.ResolvePath(locator, targetDir, kind.Extension)
	contentType, err := fetcher.download(ctx, locator, targetPath)
	if err != nil {
		return nil, &FetchError{Locator: locator, Err: err}
	}

	if headerContentType == "" {
		headerContentType = contentType
	}

	log.Emit(logger.NEW, "Fetched '%s' -> '%s'\n", locator, targetPath)
	return &FetchResult{
		Path:        targetPath,
		ContentType: headerContentType,
		IsVideo:     kind.IsVideo,
	}, nil
}

// probe issues a HEAD request and returns the reported content type.
func (fetcher *Fetcher) probe(ctx context.Context, locator string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, locator, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", fetcher.config.UserAgent)

	resp, err := fetcher.probeClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("probe returned status %d", resp.StatusCode)
	}

	return resp.Header.Get("Content-Type"), nil
}

// download streams the body to a temporary file beside the target and
// renames it into place only once the transfer completes inside the
// size cap. The reported content type is returned.
func (fetcher *Fetcher) download(ctx context.Context, locator string, targetPath string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", fetcher.config.UserAgent)

	resp, err := fetcher.bodyClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	if resp.ContentLength > fetcher.config.MaxBytes {
		return "", fmt.Errorf("payload of %d bytes exceeds limit of %d", resp.ContentLength, fetcher.config.MaxBytes)
	}

	temp, err := os.CreateTemp(filepath.Dir(targetPath), ".fetch-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(temp.Name())

	// Read one byte past the cap so an at-limit payload is accepted
	// but an overflowing one is detected without draining the body.
	written, err := io.Copy(temp, io.LimitReader(resp.Body, fetcher.config.MaxBytes+1))
	if closeErr := temp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", err
	}

	if written > fetcher.config.MaxBytes {
		return "", fmt.Errorf("payload exceeds limit of %d bytes, transfer aborted", fetcher.config.MaxBytes)
	}

	if err := os.Rename(temp.Name(), targetPath); err != nil {
		return "", err
	}

	return resp.Header.Get("Content-Type"), nil
}

func (fetcher *Fetcher) isProbeHostile(locator string) bool {
	lowered := strings.ToLower(locator)
	for _, pattern := range fetcher.config.ProbeHostilePattern {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}

	return false
}
