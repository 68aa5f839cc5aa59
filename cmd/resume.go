package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/DavidJBarnes/wan22-long-form-video/internal/generator"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/jobstore"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/utils"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/validator"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <job-dir>",
	Short: "Resume an interrupted generation job",
	Long: `Load a job from its output directory and continue where it left off.
A job in the generating state re-runs its current stage; a job in
review re-enters the review prompt. The job directory may be a name
under the output root or a full path.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validator.ValidateExternalTools(); err != nil {
			return fmt.Errorf("dependency validation failed: %w", err)
		}

		client, store, settings, err := newClientAndStore()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		if err := client.CheckConnection(ctx); err != nil {
			return fmt.Errorf("ComfyUI server is not reachable: %w", err)
		}

		gen, err := generator.Resume(client, store, settings, args[0])
		if err != nil {
			return err
		}

		job := gen.Job()
		client.DebugDir = job.OutputDir
		utils.LogInfo("Resuming job %s at stage %d/%d (status: %s)",
			job.Name(), job.CurrentStage, job.TotalStages, job.Status)

		switch job.Status {
		case jobstore.StatusComplete, jobstore.StatusCancelled:
			utils.LogInfo("Job %s is already in a terminal state (%s).", job.Name(), job.Status)
			return nil
		}

		return driveJob(ctx, gen, os.Stdin)
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
