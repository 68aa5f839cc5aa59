package cmd

import (
	"github.com/DavidJBarnes/wan22-long-form-video/internal/comfyui"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/config"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/jobstore"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/utils"
	"github.com/spf13/cobra"
)

var (
	// verbosityLevel is the command-line flag for setting the log level
	verbosityLevel string
	settingsPath   string
	serverOverride string
	outputRoot     string
)

var rootCmd = &cobra.Command{
	Use:   "wanvid",
	Short: "Generate long-form videos with a ComfyUI Wan2.2 backend",
	Long: `wanvid chains short Wan2.2 image-to-video segments into long-form
videos: each segment's last frame becomes the next segment's start
frame, and the finished segments are concatenated into one output file.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Set the global log level based on the flag
		logLevel := utils.LogLevelFromString(verbosityLevel)
		utils.SetLogLevel(logLevel)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Initialize global flags
	rootCmd.PersistentFlags().StringVarP(&verbosityLevel, "log-level", "l", "normal",
		"Set the logging verbosity level: quiet, normal, verbose, debug")
	rootCmd.PersistentFlags().StringVarP(&settingsPath, "config", "c", "wanvid.yaml",
		"Path to the settings YAML file")
	rootCmd.PersistentFlags().StringVarP(&serverOverride, "server", "s", "",
		"ComfyUI server URL (overrides settings file)")
	rootCmd.PersistentFlags().StringVarP(&outputRoot, "output", "o", "",
		"Job output root directory (overrides settings file)")
}

// loadSettings resolves the effective settings for a command run.
func loadSettings() (*config.Settings, error) {
	settings, err := config.Load(settingsPath)
	if err != nil {
		return nil, err
	}
	if serverOverride != "" {
		settings.ServerURL = serverOverride
	}
	if outputRoot != "" {
		settings.OutputDir = outputRoot
	}
	return settings, nil
}

// newClientAndStore builds the shared collaborators for job commands.
func newClientAndStore() (*comfyui.Client, *jobstore.Store, *config.Settings, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, nil, nil, err
	}
	return comfyui.NewClient(settings.ServerURL), jobstore.NewStore(settings.OutputDir), settings, nil
}
