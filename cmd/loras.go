package cmd

import (
	"fmt"

	"github.com/DavidJBarnes/wan22-long-form-video/internal/comfyui"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/utils"

	"github.com/spf13/cobra"
)

var lorasCmd = &cobra.Command{
	Use:   "loras",
	Short: "List the LoRA models available on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}

		client := comfyui.NewClient(settings.ServerURL)
		names := client.ListLoras(cmd.Context())
		if len(names) == 0 {
			utils.LogInfo("No LoRA models reported by %s", settings.ServerURL)
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lorasCmd)
}
