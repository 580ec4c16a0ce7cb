package frames

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// DefaultMaxFrames bounds how many frames are exported per video.
const DefaultMaxFrames = 12

// ExtractFrames exports up to maxFrames evenly-spaced JPEG frames from the
// video into outputDir and returns their paths in time order. The caller
// owns outputDir and its cleanup.
func ExtractFrames(videoPath, outputDir string, maxFrames int) ([]string, error) {
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}

	duration, err := probeDuration(videoPath)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, fmt.Errorf("video has no playable duration: %s", videoPath)
	}

	// fps = frames/duration spaces the exported frames evenly across the
	// whole clip.
	fps := float64(maxFrames) / duration
	pattern := filepath.Join(outputDir, "frame_%03d.jpg")

	err = ffmpeg.Input(videoPath).
		Output(pattern, ffmpeg.KwArgs{
			"vf":      fmt.Sprintf("fps=%f", fps),
			"vframes": maxFrames,
			"q:v":     2,
		}).
		OverWriteOutput().
		Silent(true).
		Run()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame extraction failed: %w", err)
	}

	paths, err := filepath.Glob(filepath.Join(outputDir, "frame_*.jpg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	log.Info().Str("video", videoPath).Int("frames", len(paths)).Msg("extracted video frames")
	return paths, nil
}

// probeDuration reads the container duration in seconds via ffprobe.
func probeDuration(videoPath string) (float64, error) {
	out, err := ffmpeg.Probe(videoPath)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(out), &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	duration, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse video duration %q: %w", probe.Format.Duration, err)
	}
	return duration, nil
}

// Cleanup removes leftover frame files, best-effort. A frame that is
// already gone (deleted as a duplicate) is not an error.
func Cleanup(framePaths []string) {
	for _, path := range framePaths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Str("frame", path).Err(err).Msg("failed to clean up frame")
		}
	}
}
