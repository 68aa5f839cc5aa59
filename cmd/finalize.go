package cmd

import (
	"fmt"

	"github.com/DavidJBarnes/wan22-long-form-video/internal/generator"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/utils"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/validator"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/video"

	"github.com/spf13/cobra"
)

var finalizeCmd = &cobra.Command{
	Use:   "finalize <job-dir>",
	Short: "Concatenate a job's segments into the final video",
	Long: `Concatenate the completed segments of a job into the final output
file. The job must have all of its planned stages complete. Stream copy
is attempted first; if the segments cannot be copied losslessly they
are re-encoded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validator.ValidateExternalTools(); err != nil {
			return fmt.Errorf("dependency validation failed: %w", err)
		}

		client, store, settings, err := newClientAndStore()
		if err != nil {
			return err
		}

		gen, err := generator.Resume(client, store, settings, args[0])
		if err != nil {
			return err
		}

		if err := gen.Finalize(cmd.Context()); err != nil {
			return err
		}

		finalPath := gen.Job().FinalVideoPath()
		utils.LogSuccess("Final video written to %s", finalPath)
		if info, err := video.Probe(cmd.Context(), finalPath); err == nil {
			utils.LogInfo("%dx%d, %d frames at %.4g fps, %.1fs", info.Width, info.Height, info.FrameCount, info.FPS, info.Duration)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(finalizeCmd)
}
