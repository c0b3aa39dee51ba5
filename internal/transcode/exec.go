package transcode

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"

	"github.com/HenrickTheBull/stagehand/pkg/logger"
	"github.com/floostack/transcoder"
	"github.com/floostack/transcoder/ffmpeg"
)

var log = logger.Get("Transcode")

// runEncoder executes a single ffmpeg invocation from inputPath to
// outputPath using the provided options, draining the progress channel
// until the encoder exits. This is the only place in stagehand that
// spawns an external process.
func runEncoder(ctx context.Context, config Config, inputPath string, outputPath string, options ffmpeg.Options) error {
	instance := ffmpeg.
		New(&ffmpeg.Config{
			ProgressEnabled: true,
			FfmpegBinPath:   config.FfmpegBinPath,
			FfprobeBinPath:  config.FfprobeBinPath,
		}).
		Input(inputPath).
		Output(outputPath).
		WithContext(&ctx)

	progressChannel, err := instance.Start(options)
	if err != nil {
		return parseFfmpegError(err)
	}

	for {
		prog, ok := <-progressChannel
		if !ok {
			log.Emit(logger.DEBUG, "FFmpeg progress channel closed, encode of '%s' complete\n", inputPath)
			return nil
		}

		emitProgress(inputPath, prog)
	}
}

func emitProgress(inputPath string, prog transcoder.Progress) {
	log.Emit(logger.VERBOSE, "Encoding '%s': %.1f%% (frames=%s speed=%s)\n",
		inputPath, prog.GetProgress(), prog.GetFramesProcessed(), prog.GetSpeed())
}

// parseFfmpegError tries to pick the relevant information out of the
// huge output log ffmpeg produces on failure. The error contains lots
// of build configuration noise; the useful part is a JSON 'message'
// document embedded inside it.
func parseFfmpegError(err error) error {
	messageMatcher := regexp.MustCompile(`(?s)message: ({.*})`)
	groups := messageMatcher.FindStringSubmatch(err.Error())
	if len(groups) == 0 {
		return err
	}

	var out map[string]interface{}
	if jsonErr := json.Unmarshal([]byte(groups[1]), &out); jsonErr != nil {
		// We failed to extract the info.. just use the entire string as our error
		return errors.New(groups[1])
	}

	if exception, ok := out["error"].(map[string]interface{}); ok {
		if message, ok := exception["string"].(string); ok {
			return errors.New(message)
		}
	}

	return errors.New(groups[1])
}
