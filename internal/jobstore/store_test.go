package jobstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pinTime(t *testing.T, at time.Time) {
	t.Helper()
	timeNow = func() time.Time { return at }
	t.Cleanup(func() { timeNow = time.Now })
}

func TestStore_Create(t *testing.T) {
	pinTime(t, time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC))
	store := NewStore(t.TempDir())

	job, err := store.Create("my video", Config{TotalDuration: 30, FPS: 16, OutputFilename: "my_video"})
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, StatusIdle, job.Status)
	assert.Equal(t, "my_video_20260314_092653", job.Name())
	assert.DirExists(t, job.SegmentsDir())
	assert.DirExists(t, job.FramesDir())
	assert.FileExists(t, filepath.Join(job.OutputDir, StateFileName))
}

func TestStore_CreateRejectsEmptyLabel(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Create("   ", Config{})
	require.Error(t, err)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	job, err := store.Create("roundtrip", Config{TotalDuration: 16, Width: 640, Height: 640, FPS: 16})
	require.NoError(t, err)

	job.Status = StatusReview
	job.CurrentStage = 2
	job.TotalStages = 4
	job.Prompts = []string{"first", "second"}
	job.SegmentPaths = []string{job.SegmentPath(1), job.SegmentPath(2)}
	job.FramePaths = []string{job.FramePath(1), job.FramePath(2)}
	job.StartImagePath = filepath.Join(job.FramesDir(), StartImageName)
	require.NoError(t, store.Save(job))

	loaded, err := store.Load(job.Name())
	require.NoError(t, err)
	assert.Equal(t, job.ID, loaded.ID)
	assert.Equal(t, StatusReview, loaded.Status)
	assert.Equal(t, 2, loaded.CurrentStage)
	assert.Equal(t, job.Prompts, loaded.Prompts)
	assert.Equal(t, job.SegmentPaths, loaded.SegmentPaths)
	assert.Equal(t, job.Config, loaded.Config)
}

func TestStore_SaveRejectsInvariantViolations(t *testing.T) {
	store := NewStore(t.TempDir())
	job, err := store.Create("broken", Config{})
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(j *Job)
	}{
		{
			name: "frame and segment lists out of step",
			mutate: func(j *Job) {
				j.SegmentPaths = []string{"a.mp4"}
				j.CurrentStage = 1
				j.TotalStages = 1
				j.Prompts = []string{"p"}
			},
		},
		{
			name: "more segments than the current stage",
			mutate: func(j *Job) {
				j.SegmentPaths = []string{"a.mp4", "b.mp4"}
				j.FramePaths = []string{"a.png", "b.png"}
				j.CurrentStage = 1
				j.TotalStages = 4
				j.Prompts = []string{"p"}
			},
		},
		{
			name: "current stage beyond the plan",
			mutate: func(j *Job) {
				j.CurrentStage = 5
				j.TotalStages = 4
				j.Prompts = []string{"a", "b", "c", "d", "e"}
			},
		},
		{
			name: "stage without a prompt",
			mutate: func(j *Job) {
				j.CurrentStage = 1
				j.TotalStages = 4
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broken := *job
			tt.mutate(&broken)
			assert.Error(t, store.Save(&broken))
		})
	}
}

func TestStore_LoadTrustsActualLocation(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	job, err := store.Create("movable", Config{})
	require.NoError(t, err)

	// Simulate a wholesale directory move.
	movedRoot := t.TempDir()
	moved := filepath.Join(movedRoot, job.Name())
	require.NoError(t, os.Rename(job.OutputDir, moved))

	loaded, err := NewStore(movedRoot).Load(job.Name())
	require.NoError(t, err)
	assert.Equal(t, moved, loaded.OutputDir)
}

func TestStore_List(t *testing.T) {
	store := NewStore(t.TempDir())

	pinTime(t, time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
	_, err := store.Create("older", Config{})
	require.NoError(t, err)

	pinTime(t, time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC))
	newer, err := store.Create("newer", Config{})
	require.NoError(t, err)

	// A stray directory without a record is skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(store.Root, "not_a_job"), 0755))

	jobs, err := store.List()
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, newer.ID, jobs[0].ID)
}

func TestStore_ListMissingRoot(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "does_not_exist"))
	jobs, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestJob_LastFramePath(t *testing.T) {
	job := &Job{StartImagePath: "/jobs/a/frames/start_image.png"}
	assert.Equal(t, job.StartImagePath, job.LastFramePath())

	job.FramePaths = []string{"/jobs/a/frames/frame_001.png", "/jobs/a/frames/frame_002.png"}
	assert.Equal(t, "/jobs/a/frames/frame_002.png", job.LastFramePath())
}

func TestJob_Paths(t *testing.T) {
	job := &Job{OutputDir: "/jobs/demo", Config: Config{OutputFilename: "demo"}}

	assert.Equal(t, "/jobs/demo/segments/segment_003.mp4", job.SegmentPath(3))
	assert.Equal(t, "/jobs/demo/frames/frame_003.png", job.FramePath(3))
	assert.Equal(t, "/jobs/demo/demo_final.mp4", job.FinalVideoPath())
}

func TestSanitizeLabel(t *testing.T) {
	assert.Equal(t, "my_video", sanitizeLabel(" my video "))
	assert.Equal(t, "a_b", sanitizeLabel("a/b"))
	assert.Equal(t, "", sanitizeLabel("  "))
}
