package media

import (
	"context"
	"mime"
	"path/filepath"

	"github.com/HenrickTheBull/stagehand/internal/cache"
	"github.com/HenrickTheBull/stagehand/pkg/logger"
	"golang.org/x/sync/singleflight"
)

var procLog = logger.Get("MediaProc")

// Transcoder converts a raw video file into the normalized output
// profile and returns the path of the result.
type Transcoder interface {
	Transcode(ctx context.Context, rawPath string) (string, error)
}

// Result is the outcome of resolving a locator to a locally usable,
// ready-to-post media file.
type Result struct {
	LocalPath   string
	IsVideo     bool
	ContentType string
}

// Processor is the single entry point scrapers use to turn a media URL
// into a local file. It composes the fetcher, cache store and
// transcoder behind a locator-in, path-out contract; repeated calls
// within the cache validity window return the same path without
// touching the network, and concurrent calls for the same locator are
// collapsed into one in-flight fetch.
type Processor struct {
	fetcher    *Fetcher
	transcoder Transcoder
	store      *cache.Store
	flight     singleflight.Group
}

func NewProcessor(fetcher *Fetcher, transcoder Transcoder, store *cache.Store) *Processor {
	return &Processor{
		fetcher:    fetcher,
		transcoder: transcoder,
		store:      store,
	}
}

// ProcessMediaURL resolves the locator to a local media file, fetching
// and (for videos) transcoding as required.
func (proc *Processor) ProcessMediaURL(ctx context.Context, locator string, isVideoHint bool) (*Result, error) {
	value, err, shared := proc.flight.Do(cache.Fingerprint(locator), func() (interface{}, error) {
		// The in-flight work is shared with every concurrent caller of
		// this fingerprint, so it must not die with whichever caller's
		// context happened to start it. The fetch clients carry their
		// own timeouts.
		return proc.process(context.WithoutCancel(ctx), locator, isVideoHint)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		procLog.Emit(logger.DEBUG, "Reused in-flight processing of '%s'\n", locator)
	}

	return value.(*Result), nil
}

func (proc *Processor) process(ctx context.Context, locator string, isVideoHint bool) (*Result, error) {
	// Cache hits are answered without any network traffic: a fresh
	// transcoded entry wins, then a fresh image, then a fresh raw video
	// (which still short-circuits inside the transcoder).
	if path, ok := proc.store.FindExisting(locator, cache.Transcoded); ok {
		procLog.Emit(logger.DEBUG, "Cache hit (transcoded) for '%s'\n", locator)
		return resultForCached(path, true), nil
	}
	if !isVideoHint {
		if path, ok := proc.store.FindExisting(locator, cache.Images); ok {
			procLog.Emit(logger.DEBUG, "Cache hit (image) for '%s'\n", locator)
			return resultForCached(path, false), nil
		}
	}

	if rawPath, ok := proc.store.FindExisting(locator, cache.RawVideos); ok {
		procLog.Emit(logger.DEBUG, "Cache hit (raw video) for '%s'\n", locator)
		transcodedPath, err := proc.transcoder.Transcode(ctx, rawPath)
		if err != nil {
			return nil, err
		}

		return resultForCached(transcodedPath, true), nil
	}

	fetched, err := proc.fetcher.Fetch(ctx, locator, isVideoHint)
	if err != nil {
		return nil, err
	}

	if !fetched.IsVideo {
		return &Result{LocalPath: fetched.Path, IsVideo: false, ContentType: fetched.ContentType}, nil
	}

	transcodedPath, err := proc.transcoder.Transcode(ctx, fetched.Path)
	if err != nil {
		return nil, err
	}

	return &Result{LocalPath: transcodedPath, IsVideo: true, ContentType: "video/mp4"}, nil
}

func resultForCached(path string, isVideo bool) *Result {
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Result{LocalPath: path, IsVideo: isVideo, ContentType: contentType}
}
