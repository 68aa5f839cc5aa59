package generator

import (
	"fmt"

	"github.com/DavidJBarnes/wan22-long-form-video/internal/jobstore"
)

// allowedTransitions encodes the job state machine. Cancellation is a
// side transition available before finalization; complete and cancelled
// are terminal.
var allowedTransitions = map[jobstore.Status]map[jobstore.Status]bool{
	jobstore.StatusIdle: {
		jobstore.StatusGenerating: true,
		jobstore.StatusCancelled:  true,
	},
	jobstore.StatusGenerating: {
		jobstore.StatusReview:    true,
		jobstore.StatusError:     true,
		jobstore.StatusCancelled: true,
	},
	jobstore.StatusReview: {
		jobstore.StatusGenerating: true, // advance or regenerate
		jobstore.StatusFinalizing: true,
		jobstore.StatusCancelled:  true,
	},
	jobstore.StatusFinalizing: {
		jobstore.StatusComplete: true,
		jobstore.StatusError:    true,
	},
	jobstore.StatusError: {
		jobstore.StatusGenerating: true, // retry current stage
		jobstore.StatusComplete:   true, // save progress and exit
	},
	jobstore.StatusComplete:  {},
	jobstore.StatusCancelled: {},
}

// CanTransition reports whether a status change is legal.
func CanTransition(from, to jobstore.Status) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// transition applies a status change to the job, rejecting illegal ones.
func (g *Generator) transition(to jobstore.Status) error {
	from := g.job.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid job status transition: %q -> %q (job=%s)", from, to, g.job.Name())
	}
	g.job.Status = to
	return nil
}
