// Package planner breaks a target video duration into generation stages
// and estimates how long they will take to render.
package planner

import "fmt"

// Stage describes one segment-generation unit.
type Stage struct {
	StageNumber     int `json:"stage_number"`
	DurationSeconds int `json:"duration_seconds"`
	NumFrames       int `json:"num_frames"`
}

// segmentBucket pairs a segment duration with its frame count at the
// 16 FPS reference frame rate.
type segmentBucket struct {
	Seconds int
	Frames  int
}

// Buckets are evaluated in descending order of preferred size.
var segmentBuckets = []segmentBucket{
	{5, 81},
	{4, 65},
	{3, 49},
}

// A leftover of at least this many seconds earns an extra absorbing stage.
const remainderThreshold = 2

// Reference throughput: seconds to render one 81-frame segment at 640x640.
const (
	referenceSecondsPerStage = 520
	referenceFrames          = 81
)

// FramesForDuration returns the frame count for a segment duration bucket.
func FramesForDuration(seconds int) (int, bool) {
	for _, b := range segmentBuckets {
		if b.Seconds == seconds {
			return b.Frames, true
		}
	}
	return 0, false
}

// Plan computes the ordered stage list for a target total duration.
//
// Each bucket is scored by the leftover it would leave after absorption:
// a remainder at or above the threshold gets its own extra stage and
// counts as zero. The first bucket with the smallest leftover wins, so
// larger segments are preferred on ties. This greedy best-fit is not
// globally optimal; it is kept deliberately, since time estimates and
// job summaries assume this bucket set.
func Plan(totalDurationSeconds, fps int) []Stage {
	type fit struct {
		bucket   segmentBucket
		segments int
		extra    int
		leftover int
	}

	var best *fit
	for _, b := range segmentBuckets {
		segments := totalDurationSeconds / b.Seconds
		if segments == 0 {
			continue
		}
		remainder := totalDurationSeconds % b.Seconds

		f := fit{bucket: b, segments: segments, leftover: remainder}
		if remainder >= remainderThreshold {
			f.extra = 1
			f.leftover = 0
		}
		if best == nil || f.leftover < best.leftover {
			chosen := f
			best = &chosen
		}
	}

	if best == nil {
		// Shorter than every bucket; a single segment of the smallest
		// bucket still covers it.
		smallest := segmentBuckets[len(segmentBuckets)-1]
		best = &fit{bucket: smallest, segments: 1}
	}

	count := best.segments + best.extra
	stages := make([]Stage, 0, count)
	for i := 0; i < count; i++ {
		stages = append(stages, Stage{
			StageNumber:     i + 1,
			DurationSeconds: best.bucket.Seconds,
			NumFrames:       best.bucket.Frames,
		})
	}
	return stages
}

// NextStage returns the descriptor for one more stage appended after the
// given stage list, reusing the plan's segment duration.
func NextStage(stages []Stage) Stage {
	if len(stages) == 0 {
		b := segmentBuckets[0]
		return Stage{StageNumber: 1, DurationSeconds: b.Seconds, NumFrames: b.Frames}
	}
	last := stages[len(stages)-1]
	return Stage{
		StageNumber:     last.StageNumber + 1,
		DurationSeconds: last.DurationSeconds,
		NumFrames:       last.NumFrames,
	}
}

// EstimateGenerationTime returns a human-readable estimate of the total
// wall-clock time for the given stage count. Linear in both inputs; a
// heuristic, not a guarantee.
func EstimateGenerationTime(numFrames, numStages int) string {
	perStage := float64(referenceSecondsPerStage) * (float64(numFrames) / float64(referenceFrames))
	totalSeconds := perStage * float64(numStages)

	switch {
	case totalSeconds < 60:
		return fmt.Sprintf("~%d seconds", int(totalSeconds))
	case totalSeconds < 3600:
		return fmt.Sprintf("~%d minutes", int(totalSeconds/60))
	default:
		return fmt.Sprintf("~%.1f hours", totalSeconds/3600)
	}
}
