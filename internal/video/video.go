// Package video wraps ffmpeg and ffprobe for frame extraction and
// segment concatenation.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/DavidJBarnes/wan22-long-form-video/internal/utils"
)

// execCommand allows us to mock exec.CommandContext in tests
var execCommand = exec.CommandContext

// Invocation ceilings. Stream copy is cheap; re-encoding is not.
const (
	probeTimeout    = 30 * time.Second
	extractTimeout  = 60 * time.Second
	copyTimeout     = 5 * time.Minute
	reencodeTimeout = 10 * time.Minute
)

// Info describes a video file's stream parameters.
type Info struct {
	FPS        float64
	FrameCount int
	Width      int
	Height     int
	Duration   float64
}

// CheckFFmpeg reports whether both ffmpeg and ffprobe are on the PATH.
func CheckFFmpeg() bool {
	if err := utils.ValidateRequiredDependency("ffmpeg"); err != nil {
		return false
	}
	return utils.ValidateRequiredDependency("ffprobe") == nil
}

// Probe reads stream parameters from the first video stream.
func Probe(ctx context.Context, videoPath string) (Info, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := execCommand(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_streams",
		"-show_format",
		"-print_format", "json",
		videoPath,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Info{}, fmt.Errorf("could not open video file %s: %w (%s)", videoPath, err, strings.TrimSpace(stderr.String()))
	}

	var probe struct {
		Streams []struct {
			Width        int    `json:"width"`
			Height       int    `json:"height"`
			RFrameRate   string `json:"r_frame_rate"`
			NbFrames     string `json:"nb_frames"`
			NbReadFrames string `json:"nb_read_frames"`
			Duration     string `json:"duration"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &probe); err != nil {
		return Info{}, fmt.Errorf("could not parse ffprobe output for %s: %w", videoPath, err)
	}
	if len(probe.Streams) == 0 {
		return Info{}, fmt.Errorf("no video stream in %s", videoPath)
	}

	stream := probe.Streams[0]
	info := Info{Width: stream.Width, Height: stream.Height}
	info.FPS = parseFrameRate(stream.RFrameRate)

	if stream.Duration != "" {
		info.Duration, _ = strconv.ParseFloat(stream.Duration, 64)
	} else if probe.Format.Duration != "" {
		info.Duration, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	}

	frames := stream.NbFrames
	if frames == "" {
		frames = stream.NbReadFrames
	}
	if frames != "" {
		info.FrameCount, _ = strconv.Atoi(frames)
	}
	if info.FrameCount == 0 && info.FPS > 0 {
		info.FrameCount = int(info.Duration * info.FPS)
	}

	return info, nil
}

func parseFrameRate(rate string) float64 {
	parts := strings.SplitN(rate, "/", 2)
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0
	}
	if len(parts) == 1 {
		return num
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return 0
	}
	return num / den
}

// ExtractLastFrame decodes a video's final frame and writes it as a
// lossless PNG. Each failure mode carries its own diagnostic: unreadable
// container, zero frames, decode failure.
func ExtractLastFrame(ctx context.Context, videoPath, outputPath string) error {
	info, err := Probe(ctx, videoPath)
	if err != nil {
		return err
	}
	if info.FrameCount <= 0 {
		return fmt.Errorf("video %s has no frames", videoPath)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create frame directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	cmd := execCommand(ctx, "ffmpeg",
		"-y",
		"-i", videoPath,
		"-vf", fmt.Sprintf("select=eq(n\\,%d)", info.FrameCount-1),
		"-frames:v", "1",
		"-update", "1",
		outputPath,
		"-loglevel", "error",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(outputPath)
		return fmt.Errorf("could not decode the last frame of %s: %w (%s)", videoPath, err, strings.TrimSpace(stderr.String()))
	}
	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("last frame of %s was not written: %w", videoPath, err)
	}

	utils.LogVerbose("Extracted last frame of %s to %s", videoPath, outputPath)
	return nil
}

// Concatenate joins ordered segments into one video. Stream copy is
// tried first; if the segments' codec parameters don't line up, a full
// re-encode at the target frame rate runs instead.
func Concatenate(ctx context.Context, segmentPaths []string, outputPath string, fps int) error {
	if err := checkSegments(segmentPaths); err != nil {
		return err
	}

	if err := concatCopy(ctx, segmentPaths, outputPath); err != nil {
		utils.LogWarning("Stream-copy concatenation failed, re-encoding: %v", err)
		return concatReencode(ctx, segmentPaths, outputPath, fps)
	}
	return nil
}

// checkSegments rejects missing segments before invoking ffmpeg.
func checkSegments(segmentPaths []string) error {
	if len(segmentPaths) == 0 {
		return fmt.Errorf("no video segments provided")
	}
	for _, path := range segmentPaths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("segment not found: %s", path)
		}
	}
	return nil
}

func concatCopy(ctx context.Context, segmentPaths []string, outputPath string) error {
	return runConcat(ctx, segmentPaths, outputPath, copyTimeout, []string{"-c", "copy"})
}

func concatReencode(ctx context.Context, segmentPaths []string, outputPath string, fps int) error {
	return runConcat(ctx, segmentPaths, outputPath, reencodeTimeout, []string{
		"-r", strconv.Itoa(fps),
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "18",
		"-pix_fmt", "yuv420p",
	})
}

func runConcat(ctx context.Context, segmentPaths []string, outputPath string, timeout time.Duration, codecArgs []string) error {
	playlist, err := writePlaylist(segmentPaths)
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(playlist); err != nil {
			utils.LogWarning("Failed to remove playlist file %s: %v", playlist, err)
		}
	}()

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", playlist,
	}
	args = append(args, codecArgs...)
	args = append(args, outputPath, "-loglevel", "error")

	cmd := execCommand(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// No partial outputs: a failed run must be safe to retry.
		_ = os.Remove(outputPath)
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("video concatenation timed out")
		}
		return fmt.Errorf("ffmpeg concat failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// writePlaylist builds the concat demuxer's playlist referencing
// absolute segment paths. The caller removes the returned file.
func writePlaylist(segmentPaths []string) (string, error) {
	f, err := os.CreateTemp("", "wanvid-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create playlist file: %w", err)
	}

	var sb strings.Builder
	for _, path := range segmentPaths {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		escaped := strings.ReplaceAll(abs, "'", `'\''`)
		fmt.Fprintf(&sb, "file '%s'\n", escaped)
	}

	if _, err := f.WriteString(sb.String()); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write playlist file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to close playlist file: %w", err)
	}
	return f.Name(), nil
}
