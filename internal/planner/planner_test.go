package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name         string
		duration     int
		wantStages   int
		wantDuration int
		wantFrames   int
	}{
		{
			name:         "30 seconds divides evenly into 5s segments",
			duration:     30,
			wantStages:   6,
			wantDuration: 5,
			wantFrames:   81,
		},
		{
			name:         "32 seconds gets an extra absorbing stage",
			duration:     32,
			wantStages:   7,
			wantDuration: 5,
			wantFrames:   81,
		},
		{
			name:         "16 seconds divides evenly into 4s segments",
			duration:     16,
			wantStages:   4,
			wantDuration: 4,
			wantFrames:   65,
		},
		{
			name:         "3 seconds is a single smallest segment",
			duration:     3,
			wantStages:   1,
			wantDuration: 3,
			wantFrames:   49,
		},
		{
			name:         "shorter than every bucket still gets one segment",
			duration:     1,
			wantStages:   1,
			wantDuration: 3,
			wantFrames:   49,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stages := Plan(tt.duration, 16)
			require.Len(t, stages, tt.wantStages)
			for i, stage := range stages {
				assert.Equal(t, i+1, stage.StageNumber)
				assert.Equal(t, tt.wantDuration, stage.DurationSeconds)
				assert.Equal(t, tt.wantFrames, stage.NumFrames)
			}
		})
	}
}

func TestFramesForDuration(t *testing.T) {
	tests := []struct {
		seconds    int
		wantFrames int
		wantOK     bool
	}{
		{5, 81, true},
		{4, 65, true},
		{3, 49, true},
		{6, 0, false},
		{0, 0, false},
	}

	for _, tt := range tests {
		frames, ok := FramesForDuration(tt.seconds)
		assert.Equal(t, tt.wantOK, ok, "duration %d", tt.seconds)
		assert.Equal(t, tt.wantFrames, frames, "duration %d", tt.seconds)
	}
}

func TestNextStage(t *testing.T) {
	stages := Plan(16, 16)
	next := NextStage(stages)

	assert.Equal(t, len(stages)+1, next.StageNumber)
	assert.Equal(t, stages[len(stages)-1].DurationSeconds, next.DurationSeconds)
	assert.Equal(t, stages[len(stages)-1].NumFrames, next.NumFrames)
}

func TestEstimateGenerationTime_Monotonic(t *testing.T) {
	// More stages at a fixed frame count, and more frames at a fixed
	// stage count, never shorten the estimate.
	ladder := []string{
		EstimateGenerationTime(49, 1),
		EstimateGenerationTime(81, 1),
		EstimateGenerationTime(81, 3),
		EstimateGenerationTime(81, 7),
		EstimateGenerationTime(81, 20),
	}
	assert.Equal(t, []string{"~5 minutes", "~8 minutes", "~26 minutes", "~1.0 hours", "~2.9 hours"}, ladder)
}

func TestEstimateGenerationTime(t *testing.T) {
	// One reference stage lands in the minutes range.
	assert.Equal(t, "~8 minutes", EstimateGenerationTime(81, 1))

	// Seven reference stages cross the hour boundary.
	assert.Equal(t, "~1.0 hours", EstimateGenerationTime(81, 7))

	// Tiny loads are reported in seconds.
	assert.Equal(t, "~6 seconds", EstimateGenerationTime(1, 1))
}
