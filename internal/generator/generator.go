// Package generator drives long-form video generation: it chains
// segment-generation stages, persisting the job record after every
// state transition so an interrupted session can resume.
package generator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DavidJBarnes/wan22-long-form-video/internal/comfyui"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/config"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/jobstore"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/planner"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/utils"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/video"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/workflow"
)

// ffmpeg-backed operations, substitutable in tests.
var (
	extractLastFrame = video.ExtractLastFrame
	concatenate      = video.Concatenate
)

// Generator owns exactly one job. A single cooperative driver advances
// it; stage i+1 cannot begin before stage i's extracted frame exists,
// because that frame is stage i+1's reference image.
type Generator struct {
	client   comfyui.Servicer
	store    *jobstore.Store
	settings *config.Settings
	job      *jobstore.Job
}

// New creates a generator with no job attached.
func New(client comfyui.Servicer, store *jobstore.Store, settings *config.Settings) *Generator {
	return &Generator{client: client, store: store, settings: settings}
}

// Resume loads a persisted job and attaches a generator to it.
func Resume(client comfyui.Servicer, store *jobstore.Store, settings *config.Settings, dir string) (*Generator, error) {
	job, err := store.Load(dir)
	if err != nil {
		return nil, err
	}
	g := New(client, store, settings)
	g.job = job
	return g, nil
}

// Job returns the attached job record, or nil after a reset.
func (g *Generator) Job() *jobstore.Job {
	return g.job
}

// ConfigureParams is the initial configuration for a new job.
type ConfigureParams struct {
	Label          string
	StartImagePath string
	InitialPrompt  string
	TotalDuration  int
	Width          int
	Height         int
	FPS            int
	// SegmentDuration selects the per-segment duration bucket in
	// seconds; zero lets the planner choose.
	SegmentDuration int
	OutputFilename  string
	HighNoiseLora   string
	LowNoiseLora    string
}

// Configure creates the job, plans its stages, copies the reference
// image into the job directory, and enters the generating state.
func (g *Generator) Configure(p ConfigureParams) error {
	if strings.TrimSpace(p.InitialPrompt) == "" {
		return fmt.Errorf("an initial prompt is required")
	}
	if strings.TrimSpace(p.OutputFilename) == "" {
		return fmt.Errorf("an output filename is required")
	}
	if err := utils.ValidateInputFile(p.StartImagePath); err != nil {
		return err
	}
	if p.TotalDuration <= 0 {
		return fmt.Errorf("total duration must be positive")
	}

	stages := planner.Plan(p.TotalDuration, p.FPS)
	if p.SegmentDuration > 0 {
		frames, ok := planner.FramesForDuration(p.SegmentDuration)
		if !ok {
			return fmt.Errorf("unsupported segment duration: %d seconds", p.SegmentDuration)
		}
		for i := range stages {
			stages[i].DurationSeconds = p.SegmentDuration
			stages[i].NumFrames = frames
		}
	}

	cfg := jobstore.Config{
		TotalDuration:   p.TotalDuration,
		Width:           p.Width,
		Height:          p.Height,
		FPS:             p.FPS,
		SegmentDuration: fmt.Sprintf("%d seconds", stages[0].DurationSeconds),
		NumFrames:       stages[0].NumFrames,
		OutputFilename:  p.OutputFilename,
		HighNoiseLora:   p.HighNoiseLora,
		LowNoiseLora:    p.LowNoiseLora,
	}

	job, err := g.store.Create(p.Label, cfg)
	if err != nil {
		return err
	}
	g.job = job

	startImage := filepath.Join(job.FramesDir(), jobstore.StartImageName)
	if err := copyFile(p.StartImagePath, startImage); err != nil {
		return fmt.Errorf("failed to copy start image: %w", err)
	}
	job.StartImagePath = startImage

	job.Stages = stages
	job.TotalStages = len(stages)
	job.CurrentStage = 1
	job.Prompts = []string{p.InitialPrompt}
	job.GenerationStartTime = time.Now().Unix()

	if err := g.transition(jobstore.StatusGenerating); err != nil {
		return err
	}
	return g.store.Save(job)
}

// RunStage executes the current stage end to end: upload the start
// frame, submit the graph, wait out the poll loop, download the
// segment, extract its last frame. On success the job enters review; on
// any failure it enters error with the diagnostic recorded. There is no
// silent auto-retry.
func (g *Generator) RunStage(ctx context.Context) error {
	job := g.job
	if job.Status != jobstore.StatusGenerating {
		return fmt.Errorf("job %s is %s, not generating", job.Name(), job.Status)
	}

	stage := job.Stages[job.CurrentStage-1]
	prompt := job.Prompts[len(job.Prompts)-1]

	utils.LogInfo("Stage %d/%d: uploading start frame", job.CurrentStage, job.TotalStages)
	uploadedName, err := g.client.UploadImage(ctx, job.LastFramePath(), "", true)
	if err != nil {
		return g.failStage(fmt.Errorf("failed to upload image: %w", err))
	}

	graph := workflow.Build(workflow.BuildParams{
		PositivePrompt:     prompt,
		NegativePrompt:     g.settings.DefaultNegativePrompt,
		ImageFilename:      uploadedName,
		Width:              job.Config.Width,
		Height:             job.Config.Height,
		NumFrames:          stage.NumFrames,
		FPS:                job.Config.FPS,
		OutputPrefix:       fmt.Sprintf("wan_segment_%03d", job.CurrentStage),
		HighNoiseLora:      job.Config.HighNoiseLora,
		LowNoiseLora:       job.Config.LowNoiseLora,
		Models:             g.settings.Models,
		FirstPass:          g.settings.FirstPass,
		SecondPass:         g.settings.SecondPass,
		ModelSamplingShift: g.settings.ModelSamplingShift,
	})
	if err := graph.Validate(); err != nil {
		return g.failStage(fmt.Errorf("workflow graph rejected: %w", err))
	}

	promptID, err := g.client.QueuePrompt(ctx, graph)
	if err != nil {
		return g.failStage(fmt.Errorf("failed to queue prompt: %w", err))
	}
	job.CurrentPromptID = promptID
	if err := g.store.Save(job); err != nil {
		return g.failStage(err)
	}

	utils.LogInfo("Stage %d/%d: generating segment (prompt %s)", job.CurrentStage, job.TotalStages, promptID)
	interval := time.Duration(g.settings.PollIntervalSeconds) * time.Second
	result, err := g.client.WaitForCompletion(ctx, promptID, interval, g.settings.MaxPollAttempts)
	if err != nil {
		return g.failStage(err)
	}

	artifact, err := comfyui.FindVideo(result.Outputs)
	if err != nil {
		return g.failStage(err)
	}

	data, err := g.client.DownloadOutput(ctx, artifact.Filename, artifact.Subfolder, artifact.Type)
	if err != nil {
		return g.failStage(fmt.Errorf("failed to download generated video: %w", err))
	}

	segmentPath := job.SegmentPath(job.CurrentStage)
	if err := os.WriteFile(segmentPath, data, 0644); err != nil {
		return g.failStage(fmt.Errorf("failed to save segment: %w", err))
	}

	framePath := job.FramePath(job.CurrentStage)
	if err := extractLastFrame(ctx, segmentPath, framePath); err != nil {
		return g.failStage(fmt.Errorf("failed to extract last frame: %w", err))
	}

	job.SegmentPaths = append(job.SegmentPaths, segmentPath)
	job.FramePaths = append(job.FramePaths, framePath)
	job.CurrentPromptID = ""
	if err := g.transition(jobstore.StatusReview); err != nil {
		return err
	}
	if err := g.store.Save(job); err != nil {
		return err
	}

	utils.LogSuccess("Stage %d/%d complete: %s", job.CurrentStage, job.TotalStages, segmentPath)
	return nil
}

// failStage records the diagnostic on the job and stops advancing.
func (g *Generator) failStage(cause error) error {
	job := g.job
	job.ErrorMessage = cause.Error()
	job.CurrentPromptID = ""
	job.Status = jobstore.StatusError
	if err := g.store.Save(job); err != nil {
		utils.LogError("Failed to persist error state: %v", err)
	}
	return cause
}

// Advance appends the next stage's prompt and re-enters generation.
func (g *Generator) Advance(prompt string) error {
	job := g.job
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("a prompt is required for the next stage")
	}
	if job.CurrentStage >= job.TotalStages {
		return fmt.Errorf("all %d stages are complete; finalize or add a stage", job.TotalStages)
	}
	if err := g.transition(jobstore.StatusGenerating); err != nil {
		return err
	}
	job.Prompts = append(job.Prompts, prompt)
	job.CurrentStage++
	return g.store.Save(job)
}

// Regenerate redoes the most recent stage: the last prompt is replaced
// (an empty prompt keeps it), the last segment and frame are discarded,
// and the stage counter stays put. Discarding the frame restores the
// prior frame (or the original reference image for stage 1) as the
// stage's start frame.
func (g *Generator) Regenerate(prompt string) error {
	job := g.job
	if len(job.SegmentPaths) == 0 {
		return fmt.Errorf("no completed stage to regenerate")
	}
	if err := g.transition(jobstore.StatusGenerating); err != nil {
		return err
	}

	if strings.TrimSpace(prompt) != "" {
		job.Prompts[len(job.Prompts)-1] = prompt
	}

	lastSegment := job.SegmentPaths[len(job.SegmentPaths)-1]
	job.SegmentPaths = job.SegmentPaths[:len(job.SegmentPaths)-1]
	if err := os.Remove(lastSegment); err != nil && !os.IsNotExist(err) {
		utils.LogWarning("Failed to remove discarded segment %s: %v", lastSegment, err)
	}

	lastFrame := job.FramePaths[len(job.FramePaths)-1]
	job.FramePaths = job.FramePaths[:len(job.FramePaths)-1]
	if err := os.Remove(lastFrame); err != nil && !os.IsNotExist(err) {
		utils.LogWarning("Failed to remove discarded frame %s: %v", lastFrame, err)
	}

	return g.store.Save(job)
}

// AddStage extends the plan by one more segment, reusing the plan's
// duration bucket. The caller then advances with the new stage's prompt.
func (g *Generator) AddStage() error {
	job := g.job
	if job.Status != jobstore.StatusReview {
		return fmt.Errorf("stages can only be added during review")
	}
	job.Stages = append(job.Stages, planner.NextStage(job.Stages))
	job.TotalStages++
	return g.store.Save(job)
}

// Finalize concatenates the completed segments into the final video.
// Only reachable once every planned stage has a segment.
func (g *Generator) Finalize(ctx context.Context) error {
	job := g.job
	if job.CurrentStage < job.TotalStages {
		return fmt.Errorf("only %d of %d stages are complete", job.CurrentStage, job.TotalStages)
	}
	// A resumed job may already be finalizing; re-running concatenation
	// is safe.
	if job.Status != jobstore.StatusFinalizing {
		if err := g.transition(jobstore.StatusFinalizing); err != nil {
			return err
		}
		if err := g.store.Save(job); err != nil {
			return err
		}
	}

	utils.LogInfo("Concatenating %d segments", len(job.SegmentPaths))
	if err := concatenate(ctx, job.SegmentPaths, job.FinalVideoPath(), job.Config.FPS); err != nil {
		job.ErrorMessage = err.Error()
		job.Status = jobstore.StatusError
		if saveErr := g.store.Save(job); saveErr != nil {
			utils.LogError("Failed to persist error state: %v", saveErr)
		}
		return err
	}

	if err := g.transition(jobstore.StatusComplete); err != nil {
		return err
	}
	if err := g.store.Save(job); err != nil {
		return err
	}
	utils.LogSuccess("Final video written to %s", job.FinalVideoPath())
	return nil
}

// Retry re-enters generation for the current stage after an error,
// clearing the recorded diagnostic and the stale execution handle.
func (g *Generator) Retry() error {
	if err := g.transition(jobstore.StatusGenerating); err != nil {
		return err
	}
	g.job.ErrorMessage = ""
	g.job.CurrentPromptID = ""
	return g.store.Save(g.job)
}

// SaveProgress marks an errored job complete with whatever segments it
// has. Requires at least one.
func (g *Generator) SaveProgress() error {
	if len(g.job.SegmentPaths) == 0 {
		return fmt.Errorf("no segments to save")
	}
	if err := g.transition(jobstore.StatusComplete); err != nil {
		return err
	}
	g.job.ErrorMessage = ""
	return g.store.Save(g.job)
}

// Cancel marks the job cancelled. If an execution is in flight it
// best-effort asks the server to interrupt it and drop it from the
// queue; the local record is marked cancelled regardless of the remote
// outcome.
func (g *Generator) Cancel(ctx context.Context) error {
	job := g.job
	if err := g.transition(jobstore.StatusCancelled); err != nil {
		return err
	}

	if job.CurrentPromptID != "" {
		if err := g.client.InterruptActive(ctx); err != nil {
			utils.LogWarning("Remote interrupt failed: %v", err)
		}
		if err := g.client.CancelPrompt(ctx, job.CurrentPromptID); err != nil {
			utils.LogWarning("Remote dequeue failed: %v", err)
		}
	}

	job.CurrentPromptID = ""
	return g.store.Save(job)
}

// Reset detaches the generator from its job, discarding in-memory
// progress. The persisted record on disk is untouched.
func (g *Generator) Reset() {
	g.job = nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if err := in.Close(); err != nil {
			utils.LogWarning("Failed to close %s: %v", src, err)
		}
	}()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
