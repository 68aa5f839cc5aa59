// Package jobstore persists generation jobs as one directory per job
// with a structured job_state.json record.
package jobstore

import (
	"fmt"
	"path/filepath"

	"github.com/DavidJBarnes/wan22-long-form-video/internal/planner"
)

// Status of a job. Local state is authoritative; the remote server's
// opinion never overrides it.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusGenerating Status = "generating"
	StatusReview     Status = "review"
	StatusFinalizing Status = "finalizing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// Config is the immutable configuration snapshot taken when a job is
// created.
type Config struct {
	TotalDuration   int    `json:"total_duration"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	FPS             int    `json:"fps"`
	SegmentDuration string `json:"segment_duration"`
	NumFrames       int    `json:"num_frames"`
	OutputFilename  string `json:"output_filename"`
	HighNoiseLora   string `json:"high_noise_lora,omitempty"`
	LowNoiseLora    string `json:"low_noise_lora,omitempty"`
}

// Job is the persisted record for one generation job. Prompts[i] is the
// prompt used to produce stage i+1's segment, so one prompt exists
// before its segment does. SegmentPaths and FramePaths are parallel, in
// stage-completion order.
type Job struct {
	ID                  string          `json:"id"`
	Status              Status          `json:"status"`
	CurrentStage        int             `json:"current_stage"`
	TotalStages         int             `json:"total_stages"`
	Stages              []planner.Stage `json:"stages"`
	Prompts             []string        `json:"prompts"`
	SegmentPaths        []string        `json:"segment_paths"`
	FramePaths          []string        `json:"frame_paths"`
	Config              Config          `json:"config"`
	GenerationStartTime int64           `json:"generation_start_time"`
	OutputDir           string          `json:"output_dir"`
	CurrentPromptID     string          `json:"current_prompt_id,omitempty"`
	StartImagePath      string          `json:"start_image_path"`
	ErrorMessage        string          `json:"error_message,omitempty"`
}

// CheckInvariants verifies the structural invariants of a job record.
func (j *Job) CheckInvariants() error {
	if len(j.FramePaths) != len(j.SegmentPaths) {
		return fmt.Errorf("job %s: %d frames recorded for %d segments", j.ID, len(j.FramePaths), len(j.SegmentPaths))
	}
	if len(j.SegmentPaths) > j.CurrentStage {
		return fmt.Errorf("job %s: %d segments recorded but current stage is %d", j.ID, len(j.SegmentPaths), j.CurrentStage)
	}
	if j.CurrentStage > j.TotalStages {
		return fmt.Errorf("job %s: current stage %d exceeds total stages %d", j.ID, j.CurrentStage, j.TotalStages)
	}
	if j.CurrentStage >= 1 && len(j.Prompts) < j.CurrentStage {
		return fmt.Errorf("job %s: stage %d has no prompt", j.ID, j.CurrentStage)
	}
	return nil
}

// Name is the job's directory name, its user-facing identity.
func (j *Job) Name() string {
	return filepath.Base(j.OutputDir)
}

// SegmentsDir returns the directory holding produced video segments.
func (j *Job) SegmentsDir() string {
	return filepath.Join(j.OutputDir, SegmentsDirName)
}

// FramesDir returns the directory holding extracted still frames.
func (j *Job) FramesDir() string {
	return filepath.Join(j.OutputDir, FramesDirName)
}

// FinalVideoPath is where the concatenated output lands.
func (j *Job) FinalVideoPath() string {
	return filepath.Join(j.OutputDir, j.Config.OutputFilename+"_final.mp4")
}

// LastFramePath returns the start frame for the next stage: the most
// recently extracted frame, or the original reference image before any
// stage has completed.
func (j *Job) LastFramePath() string {
	if len(j.FramePaths) > 0 {
		return j.FramePaths[len(j.FramePaths)-1]
	}
	return j.StartImagePath
}

// SegmentPath returns the canonical path for a stage's segment file.
func (j *Job) SegmentPath(stageNumber int) string {
	return filepath.Join(j.SegmentsDir(), fmt.Sprintf("segment_%03d.mp4", stageNumber))
}

// FramePath returns the canonical path for a stage's extracted frame.
func (j *Job) FramePath(stageNumber int) string {
	return filepath.Join(j.FramesDir(), fmt.Sprintf("frame_%03d.png", stageNumber))
}
