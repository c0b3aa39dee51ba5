package transcode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/HenrickTheBull/stagehand/internal/cache"
	"github.com/HenrickTheBull/stagehand/pkg/logger"
	"github.com/floostack/transcoder/ffmpeg"
)

// TranscodeError wraps an encoder failure for a given input file. The
// failure is recoverable from the caller's perspective; other queued
// items are unaffected.
type TranscodeError struct {
	Input string
	Err   error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("failed to transcode '%s': %v", e.Input, e.Err)
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}

type Config struct {
	FfmpegBinPath  string `yaml:"ffmpeg_bin" env:"FFMPEG_BIN" env-default:"ffmpeg"`
	FfprobeBinPath string `yaml:"ffprobe_bin" env:"FFPROBE_BIN" env-default:"ffprobe"`
}

// The output container every raw video is normalized to.
const targetContainer = ".mp4"

// encodeFn runs one encode; swapped out by tests so the suite does not
// require an ffmpeg binary.
type encodeFn func(ctx context.Context, config Config, inputPath string, outputPath string, options ffmpeg.Options) error

// Transcoder converts raw fetched videos into a single broadly
// compatible profile inside the cache store's transcoded directory.
// The output path is deterministic from the input path, which makes
// transcoding idempotent: re-invocation while the prior output is
// still fresh is a cache hit and performs no encoding work.
type Transcoder struct {
	config Config
	store  *cache.Store
	encode encodeFn
}

func New(config Config, store *cache.Store) *Transcoder {
	return &Transcoder{
		config: config,
		store:  store,
		encode: runEncoder,
	}
}

// OutputPathFor computes where the normalized form of the given raw
// video belongs. Same base name as the input, normalized to the target
// container, inside the transcoded directory.
func (t *Transcoder) OutputPathFor(rawPath string) string {
	base := filepath.Base(rawPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	return filepath.Join(t.store.DirFor(cache.Transcoded), base+targetContainer)
}

// Transcode converts the raw video at rawPath and returns the path of
// the normalized output. If a fresh output already exists no encoding
// work is performed. On encoder failure any partial output is removed
// so it can never satisfy a later validity check.
func (t *Transcoder) Transcode(ctx context.Context, rawPath string) (string, error) {
	outputPath := t.OutputPathFor(rawPath)
	if t.store.IsValid(outputPath) {
		log.Emit(logger.DEBUG, "Transcode cache hit for '%s'\n", rawPath)
		return outputPath, nil
	}

	log.Emit(logger.INFO, "Transcoding '%s' -> '%s'\n", rawPath, outputPath)
	if err := t.encode(ctx, t.config, rawPath, outputPath, profileOptions()); err != nil {
		if removeErr := os.Remove(outputPath); removeErr != nil && !os.IsNotExist(removeErr) {
			log.Emit(logger.WARNING, "Could not remove partial transcode output '%s': %v\n", outputPath, removeErr)
		}

		return "", &TranscodeError{Input: rawPath, Err: err}
	}

	log.Emit(logger.SUCCESS, "Transcode of '%s' complete\n", rawPath)
	return outputPath, nil
}

// profileOptions is the fixed encoding profile: h264 at a constant
// quality in the good-tradeoff range, medium preset, AAC audio at a
// moderate bitrate, a pixel format every device can decode, and
// faststart so playback can begin before the download finishes.
func profileOptions() ffmpeg.Options {
	videoCodec := "libx264"
	crf := uint32(23)
	preset := "medium"
	audioCodec := "aac"
	audioBitrate := "128k"
	pixFmt := "yuv420p"
	movFlags := "+faststart"
	outputFormat := "mp4"
	overwrite := true

	return ffmpeg.Options{
		VideoCodec:   &videoCodec,
		Crf:          &crf,
		Preset:       &preset,
		AudioCodec:   &audioCodec,
		AudioBitrate: &audioBitrate,
		PixFmt:       &pixFmt,
		MovFlags:     &movFlags,
		OutputFormat: &outputFormat,
		Overwrite:    &overwrite,
	}
}
