package utils

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInputFile(t *testing.T) {
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "input.png")
	require.NoError(t, os.WriteFile(filePath, []byte("data"), 0644))

	assert.NoError(t, ValidateInputFile(filePath))
	assert.Error(t, ValidateInputFile(""))
	assert.Error(t, ValidateInputFile(filepath.Join(tempDir, "missing.png")))
	assert.Error(t, ValidateInputFile(tempDir))
}

func TestValidateOutputPath(t *testing.T) {
	tempDir := t.TempDir()

	assert.Error(t, ValidateOutputPath(""))

	nested := filepath.Join(tempDir, "a", "b")
	assert.NoError(t, ValidateOutputPath(nested))
	assert.DirExists(t, nested)
}

func TestValidateRequiredDependency(t *testing.T) {
	ExecLookPath = func(file string) (string, error) {
		if file == "ffmpeg" {
			return "/usr/bin/ffmpeg", nil
		}
		return "", fmt.Errorf("not found")
	}
	defer func() { ExecLookPath = exec.LookPath }()

	assert.NoError(t, ValidateRequiredDependency("ffmpeg"))

	err := ValidateRequiredDependency("ffprobe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffprobe not found in PATH")
}

func TestValidateFileExtension(t *testing.T) {
	allowed := []string{".mp4", ".png"}

	assert.NoError(t, ValidateFileExtension("video.mp4", allowed))
	assert.NoError(t, ValidateFileExtension("FRAME.PNG", allowed))
	assert.Error(t, ValidateFileExtension("notes.txt", allowed))
}
