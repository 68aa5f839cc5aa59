package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/DavidJBarnes/wan22-long-form-video/internal/generator"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/planner"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/utils"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/validator"

	"github.com/spf13/cobra"
)

var (
	startImagePath  string
	initialPrompt   string
	totalDuration   int
	jobLabel        string
	videoWidth      int
	videoHeight     int
	videoFPS        int
	segmentDuration int
	outputFilename  string
	highNoiseLora   string
	lowNoiseLora    string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Start a new long-form video generation job",
	Long: `Plan the stage breakdown for the target duration, then generate
segments one at a time. After each segment you review the result and
supply the next stage's prompt; the final segments are concatenated
into one video.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validator.ValidateExternalTools(); err != nil {
			return fmt.Errorf("dependency validation failed: %w", err)
		}

		client, store, settings, err := newClientAndStore()
		if err != nil {
			return err
		}
		if videoWidth == 0 {
			videoWidth = settings.DefaultWidth
		}
		if videoHeight == 0 {
			videoHeight = settings.DefaultHeight
		}
		if videoFPS == 0 {
			videoFPS = settings.DefaultFPS
		}
		if jobLabel == "" {
			jobLabel = outputFilename
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		if err := client.CheckConnection(ctx); err != nil {
			return fmt.Errorf("ComfyUI server is not reachable: %w", err)
		}

		gen := generator.New(client, store, settings)
		if err := gen.Configure(generator.ConfigureParams{
			Label:           jobLabel,
			StartImagePath:  startImagePath,
			InitialPrompt:   initialPrompt,
			TotalDuration:   totalDuration,
			Width:           videoWidth,
			Height:          videoHeight,
			FPS:             videoFPS,
			SegmentDuration: segmentDuration,
			OutputFilename:  outputFilename,
			HighNoiseLora:   highNoiseLora,
			LowNoiseLora:    lowNoiseLora,
		}); err != nil {
			return err
		}

		job := gen.Job()
		client.DebugDir = job.OutputDir
		utils.LogInfo("Planned %d stages of %d seconds each. Estimated time: %s",
			job.TotalStages, job.Stages[0].DurationSeconds,
			planner.EstimateGenerationTime(job.Stages[0].NumFrames, job.TotalStages))

		return driveJob(ctx, gen, os.Stdin)
	},
}

func init() {
	generateCmd.Flags().StringVarP(&startImagePath, "image", "i", "", "Start image for the first segment (required)")
	generateCmd.Flags().StringVarP(&initialPrompt, "prompt", "p", "", "Prompt for the first segment (required)")
	generateCmd.Flags().IntVarP(&totalDuration, "duration", "d", 30, "Target total duration in seconds")
	generateCmd.Flags().StringVarP(&jobLabel, "name", "n", "", "Job name (defaults to the output filename)")
	generateCmd.Flags().IntVar(&videoWidth, "width", 0, "Video width in pixels")
	generateCmd.Flags().IntVar(&videoHeight, "height", 0, "Video height in pixels")
	generateCmd.Flags().IntVar(&videoFPS, "fps", 0, "Frames per second")
	generateCmd.Flags().IntVar(&segmentDuration, "segment-duration", 0, "Per-segment duration in seconds (3, 4 or 5; default: planner's choice)")
	generateCmd.Flags().StringVar(&outputFilename, "output-name", "my_video", "Base name for the final video file")
	generateCmd.Flags().StringVar(&highNoiseLora, "high-noise-lora", "", "LoRA applied to the high-noise sampling pass")
	generateCmd.Flags().StringVar(&lowNoiseLora, "low-noise-lora", "", "LoRA applied to the low-noise sampling pass")
	_ = generateCmd.MarkFlagRequired("image")
	_ = generateCmd.MarkFlagRequired("prompt")
	rootCmd.AddCommand(generateCmd)
}
