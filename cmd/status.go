package cmd

import (
	"github.com/DavidJBarnes/wan22-long-form-video/internal/comfyui"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/utils"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/video"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the ComfyUI server and local tooling",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}

		if video.CheckFFmpeg() {
			utils.LogSuccess("ffmpeg and ffprobe are available")
		} else {
			utils.LogWarning("ffmpeg or ffprobe not found in PATH; finalization will fail")
		}

		client := comfyui.NewClient(settings.ServerURL)
		if err := client.CheckConnection(cmd.Context()); err != nil {
			utils.LogError("ComfyUI server %s is not reachable: %v", settings.ServerURL, err)
			return err
		}
		utils.LogSuccess("ComfyUI server %s is reachable", settings.ServerURL)

		pending, running, err := client.QueueStatus(cmd.Context())
		if err != nil {
			utils.LogWarning("Could not read the server queue: %v", err)
			return nil
		}
		utils.LogInfo("Server queue: %d running, %d pending", running, pending)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
