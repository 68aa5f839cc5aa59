package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/DavidJBarnes/wan22-long-form-video/internal/generator"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/jobstore"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/utils"
)

// driveJob runs the stage loop for a configured job until it reaches a
// terminal state or the operator stops. Prompts and review decisions
// are read line by line from in.
func driveJob(ctx context.Context, gen *generator.Generator, in io.Reader) error {
	reader := bufio.NewScanner(in)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		job := gen.Job()
		if job == nil {
			return nil
		}

		switch job.Status {
		case jobstore.StatusGenerating:
			if err := gen.RunStage(ctx); err != nil {
				utils.LogError("Stage %d failed: %v", job.CurrentStage, err)
			}

		case jobstore.StatusReview:
			if err := reviewPrompt(ctx, gen, reader); err != nil {
				return err
			}

		case jobstore.StatusError:
			if err := errorPrompt(gen, reader); err != nil {
				return err
			}

		case jobstore.StatusFinalizing:
			if err := gen.Finalize(ctx); err != nil {
				utils.LogError("Finalization failed: %v", err)
			}

		case jobstore.StatusComplete:
			utils.LogSuccess("Job %s complete. Output directory: %s", job.Name(), job.OutputDir)
			return nil

		case jobstore.StatusCancelled:
			utils.LogInfo("Job %s cancelled.", job.Name())
			return nil

		default:
			return fmt.Errorf("job %s is in unexpected state %q", job.Name(), job.Status)
		}
	}
}

// reviewPrompt handles the decision point after a completed stage.
func reviewPrompt(ctx context.Context, gen *generator.Generator, reader *bufio.Scanner) error {
	job := gen.Job()
	utils.LogInfo("Stage %d/%d complete. Last frame: %s", job.CurrentStage, job.TotalStages, job.LastFramePath())

	if job.CurrentStage >= job.TotalStages {
		fmt.Println("All planned stages are complete.")
		fmt.Println("  [f] finalize video   [a] add one more stage   [r] regenerate last stage   [c] cancel")
	} else {
		fmt.Println("  [enter a prompt] continue to next stage   [r] regenerate last stage   [c] cancel")
	}
	fmt.Print("> ")

	if !reader.Scan() {
		utils.LogWarning("Input closed; leaving job in review state.")
		return nil
	}
	line := strings.TrimSpace(reader.Text())

	switch line {
	case "f":
		if job.CurrentStage < job.TotalStages {
			utils.LogWarning("Not all stages are complete yet.")
			return nil
		}
		if err := gen.Finalize(ctx); err != nil {
			utils.LogError("Finalization failed: %v", err)
		}
		return nil
	case "a":
		if err := gen.AddStage(); err != nil {
			utils.LogError("%v", err)
			return nil
		}
		utils.LogInfo("Plan extended to %d stages.", gen.Job().TotalStages)
		return nil
	case "r":
		fmt.Print("New prompt (empty keeps the current one): ")
		var prompt string
		if reader.Scan() {
			prompt = strings.TrimSpace(reader.Text())
		}
		if err := gen.Regenerate(prompt); err != nil {
			utils.LogError("%v", err)
		}
		return nil
	case "c":
		return gen.Cancel(ctx)
	case "":
		utils.LogWarning("A prompt is required to continue.")
		return nil
	default:
		if err := gen.Advance(line); err != nil {
			utils.LogError("%v", err)
		}
		return nil
	}
}

// errorPrompt offers the three recovery paths out of the error state.
func errorPrompt(gen *generator.Generator, reader *bufio.Scanner) error {
	job := gen.Job()
	utils.LogError("Job error: %s", job.ErrorMessage)
	fmt.Println("  [r] retry current stage   [s] save progress and exit   [q] quit (job stays in error state)")
	fmt.Print("> ")

	if !reader.Scan() {
		return nil
	}
	switch strings.TrimSpace(reader.Text()) {
	case "r":
		if err := gen.Retry(); err != nil {
			utils.LogError("%v", err)
		}
		return nil
	case "s":
		if err := gen.SaveProgress(); err != nil {
			utils.LogError("%v", err)
		}
		return nil
	default:
		return nil
	}
}
