package validator

import (
	"fmt"
	"strings"

	"github.com/DavidJBarnes/wan22-long-form-video/internal/utils"
)

// ExternalTool represents an external command-line tool requirement
type ExternalTool struct {
	Name        string
	VersionArgs []string
	Validate    func(output string) bool
}

// requiredTools is a list of external tools that must be installed
var requiredTools = []ExternalTool{
	{
		Name:        "ffmpeg",
		VersionArgs: []string{"-version"},
		Validate: func(output string) bool {
			return strings.Contains(output, "ffmpeg version")
		},
	},
	{
		Name:        "ffprobe",
		VersionArgs: []string{"-version"},
		Validate: func(output string) bool {
			return strings.Contains(output, "ffprobe version")
		},
	},
}

// ValidateExternalTools checks if all required external tools are installed
func ValidateExternalTools() error {
	for _, tool := range requiredTools {
		if err := utils.ValidateRequiredDependency(tool.Name); err != nil {
			return fmt.Errorf("%s is required for video processing: %w", tool.Name, err)
		}
		utils.LogVerbose("Found required tool: %s", tool.Name)
	}
	return nil
}
