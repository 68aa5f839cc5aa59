package video

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain restores the real exec.CommandContext after the tests run
func TestMain(m *testing.M) {
	result := m.Run()
	execCommand = exec.CommandContext
	os.Exit(result)
}

// helperEnv carries per-test behavior flags into the helper process
var helperEnv []string

// fakeExecCommand reroutes command invocations to TestHelperProcess
func fakeExecCommand(ctx context.Context, command string, args ...string) *exec.Cmd {
	cs := []string{"-test.run=TestHelperProcess", "--", command}
	cs = append(cs, args...)
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = append([]string{"GO_WANT_HELPER_PROCESS=1"}, helperEnv...)
	return cmd
}

const probeJSON81 = `{
	"streams": [{"width": 640, "height": 640, "r_frame_rate": "16/1", "nb_frames": "81", "duration": "5.0625"}],
	"format": {"duration": "5.0625"}
}`

// TestHelperProcess is not a real test, it stands in for ffmpeg and
// ffprobe invocations
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) == 0 {
		os.Exit(2)
	}

	command, cmdArgs := args[0], args[1:]
	switch command {
	case "ffprobe":
		fmt.Fprint(os.Stdout, os.Getenv("HELPER_PROBE_JSON"))
		os.Exit(0)
	case "ffmpeg":
		if os.Getenv("HELPER_FAIL_COPY") == "1" {
			for _, arg := range cmdArgs {
				if arg == "copy" {
					fmt.Fprintln(os.Stderr, "codec parameters mismatch")
					os.Exit(1)
				}
			}
		}
		// The output path precedes the trailing -loglevel pair.
		if len(cmdArgs) >= 3 {
			out := cmdArgs[len(cmdArgs)-3]
			_ = os.WriteFile(out, []byte("rendered"), 0644)
		}
		os.Exit(0)
	}
	os.Exit(2)
}

func useFakeExec(t *testing.T, env ...string) {
	t.Helper()
	execCommand = fakeExecCommand
	helperEnv = env
	t.Cleanup(func() {
		execCommand = exec.CommandContext
		helperEnv = nil
	})
}

func TestProbe(t *testing.T) {
	useFakeExec(t, "HELPER_PROBE_JSON="+probeJSON81)

	info, err := Probe(context.Background(), "segment_001.mp4")
	require.NoError(t, err)
	assert.Equal(t, 640, info.Width)
	assert.Equal(t, 640, info.Height)
	assert.Equal(t, 16.0, info.FPS)
	assert.Equal(t, 81, info.FrameCount)
	assert.InDelta(t, 5.0625, info.Duration, 0.0001)
}

func TestProbe_FrameCountFallback(t *testing.T) {
	// Without nb_frames the count derives from duration and frame rate.
	useFakeExec(t, `HELPER_PROBE_JSON={
		"streams": [{"width": 640, "height": 640, "r_frame_rate": "16/1", "duration": "5.0625"}],
		"format": {}
	}`)

	info, err := Probe(context.Background(), "segment_001.mp4")
	require.NoError(t, err)
	assert.Equal(t, 81, info.FrameCount)
}

func TestProbe_NoVideoStream(t *testing.T) {
	useFakeExec(t, `HELPER_PROBE_JSON={"streams": [], "format": {}}`)

	_, err := Probe(context.Background(), "broken.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no video stream")
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		rate string
		want float64
	}{
		{"16/1", 16},
		{"30000/1001", 29.97002997002997},
		{"25", 25},
		{"0/0", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, parseFrameRate(tt.rate), 0.0001, "rate %q", tt.rate)
	}
}

func TestExtractLastFrame(t *testing.T) {
	useFakeExec(t, "HELPER_PROBE_JSON="+probeJSON81)
	outputPath := filepath.Join(t.TempDir(), "frames", "frame_001.png")

	require.NoError(t, ExtractLastFrame(context.Background(), "segment_001.mp4", outputPath))
	assert.FileExists(t, outputPath)
}

func TestExtractLastFrame_EmptyVideo(t *testing.T) {
	useFakeExec(t, `HELPER_PROBE_JSON={
		"streams": [{"width": 640, "height": 640, "r_frame_rate": "16/1", "nb_frames": "0"}],
		"format": {}
	}`)

	err := ExtractLastFrame(context.Background(), "empty.mp4", filepath.Join(t.TempDir(), "frame.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no frames")
}

func writeSegments(t *testing.T, dir string, count int) []string {
	t.Helper()
	paths := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		path := filepath.Join(dir, fmt.Sprintf("segment_%03d.mp4", i))
		require.NoError(t, os.WriteFile(path, []byte("segment"), 0644))
		paths = append(paths, path)
	}
	return paths
}

func TestConcatenate(t *testing.T) {
	useFakeExec(t)
	tempDir := t.TempDir()
	segments := writeSegments(t, tempDir, 3)
	outputPath := filepath.Join(tempDir, "final.mp4")

	require.NoError(t, Concatenate(context.Background(), segments, outputPath, 16))
	assert.FileExists(t, outputPath)
}

func TestConcatenate_FallsBackToReencode(t *testing.T) {
	useFakeExec(t, "HELPER_FAIL_COPY=1")
	tempDir := t.TempDir()
	segments := writeSegments(t, tempDir, 2)
	outputPath := filepath.Join(tempDir, "final.mp4")

	// The copy attempt fails; the re-encode pass still produces output.
	require.NoError(t, Concatenate(context.Background(), segments, outputPath, 16))
	assert.FileExists(t, outputPath)
}

func TestConcatenate_MissingSegment(t *testing.T) {
	useFakeExec(t)
	tempDir := t.TempDir()
	segments := writeSegments(t, tempDir, 1)
	segments = append(segments, filepath.Join(tempDir, "segment_999.mp4"))

	err := Concatenate(context.Background(), segments, filepath.Join(tempDir, "final.mp4"), 16)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "segment not found")
}

func TestConcatenate_NoSegments(t *testing.T) {
	err := Concatenate(context.Background(), nil, "final.mp4", 16)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no video segments")
}

func TestWritePlaylist(t *testing.T) {
	tempDir := t.TempDir()
	plain := filepath.Join(tempDir, "segment_001.mp4")
	quoted := filepath.Join(tempDir, "it's segment_002.mp4")

	playlist, err := writePlaylist([]string{plain, quoted})
	require.NoError(t, err)
	defer func() { _ = os.Remove(playlist) }()

	data, err := os.ReadFile(playlist)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, fmt.Sprintf("file '%s'", plain), lines[0])
	assert.Contains(t, lines[1], `'\''`)
}
