package transcode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/HenrickTheBull/stagehand/internal/cache"
	"github.com/HenrickTheBull/stagehand/pkg/logger"
	"github.com/floostack/transcoder/ffmpeg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.FATAL.Level())
}

func newTestTranscoder(t *testing.T) (*Transcoder, *cache.Store) {
	t.Helper()

	store, err := cache.NewStore(cache.Config{RootDir: t.TempDir(), MaxAgeDays: 15})
	require.NoError(t, err)

	return New(Config{FfmpegBinPath: "ffmpeg", FfprobeBinPath: "ffprobe"}, store), store
}

func Test_OutputPathFor_DeterministicAndNormalized(t *testing.T) {
	transcoder, store := newTestTranscoder(t)

	rawPath := filepath.Join(store.DirFor(cache.RawVideos), "abc123.webm")
	expected := filepath.Join(store.DirFor(cache.Transcoded), "abc123.mp4")

	assert.Equal(t, expected, transcoder.OutputPathFor(rawPath))
	assert.Equal(t, expected, transcoder.OutputPathFor(rawPath))
}

func Test_Transcode_FreshOutputIsACacheHit(t *testing.T) {
	transcoder, store := newTestTranscoder(t)

	rawPath := filepath.Join(store.DirFor(cache.RawVideos), "abc123.webm")
	outputPath := transcoder.OutputPathFor(rawPath)
	require.NoError(t, os.WriteFile(outputPath, []byte("already-transcoded"), 0o644))

	encoderRuns := 0
	transcoder.encode = func(_ context.Context, _ Config, _ string, _ string, _ ffmpeg.Options) error {
		encoderRuns++
		return nil
	}

	result, err := transcoder.Transcode(context.Background(), rawPath)
	require.NoError(t, err)

	assert.Equal(t, outputPath, result)
	assert.Zero(t, encoderRuns, "a fresh output must short-circuit the encoder")
}

func Test_Transcode_RunsEncoderOnMiss(t *testing.T) {
	transcoder, store := newTestTranscoder(t)

	rawPath := filepath.Join(store.DirFor(cache.RawVideos), "abc123.webm")
	transcoder.encode = func(_ context.Context, _ Config, inputPath string, outputPath string, _ ffmpeg.Options) error {
		assert.Equal(t, rawPath, inputPath)
		return os.WriteFile(outputPath, []byte("encoded"), 0o644)
	}

	result, err := transcoder.Transcode(context.Background(), rawPath)
	require.NoError(t, err)

	assert.Equal(t, transcoder.OutputPathFor(rawPath), result)
	assert.FileExists(t, result)
}

func Test_Transcode_FailureRemovesPartialOutput(t *testing.T) {
	transcoder, store := newTestTranscoder(t)

	rawPath := filepath.Join(store.DirFor(cache.RawVideos), "abc123.webm")
	encoderErr := errors.New("encoder exited with status 1")
	transcoder.encode = func(_ context.Context, _ Config, _ string, outputPath string, _ ffmpeg.Options) error {
		// Simulate an encoder dying partway through its write.
		require.NoError(t, os.WriteFile(outputPath, []byte("trunc"), 0o644))
		return encoderErr
	}

	_, err := transcoder.Transcode(context.Background(), rawPath)

	var transcodeErr *TranscodeError
	require.ErrorAs(t, err, &transcodeErr)
	assert.Equal(t, rawPath, transcodeErr.Input)
	assert.ErrorIs(t, err, encoderErr)
	assert.NoFileExists(t, transcoder.OutputPathFor(rawPath), "partial output must never survive an encoder failure")
	assert.False(t, store.IsValid(transcoder.OutputPathFor(rawPath)))
}

func Test_ProfileOptions_FixedCompatibilityProfile(t *testing.T) {
	options := profileOptions()

	require.NotNil(t, options.VideoCodec)
	assert.Equal(t, "libx264", *options.VideoCodec)
	require.NotNil(t, options.Crf)
	assert.Equal(t, uint32(23), *options.Crf)
	require.NotNil(t, options.Preset)
	assert.Equal(t, "medium", *options.Preset)
	require.NotNil(t, options.AudioCodec)
	assert.Equal(t, "aac", *options.AudioCodec)
	require.NotNil(t, options.PixFmt)
	assert.Equal(t, "yuv420p", *options.PixFmt)
	require.NotNil(t, options.MovFlags)
	assert.Equal(t, "+faststart", *options.MovFlags)
}
