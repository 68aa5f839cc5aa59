package comfyui

import (
	"context"
	"time"

	"github.com/DavidJBarnes/wan22-long-form-video/internal/workflow"
)

// Servicer defines the interface for ComfyUI client operations
type Servicer interface {
	// CheckConnection probes the server's liveness endpoint
	CheckConnection(ctx context.Context) error

	// QueuePrompt submits a workflow graph and returns the prompt ID
	QueuePrompt(ctx context.Context, graph workflow.Graph) (string, error)

	// UploadImage stages an image on the server
	UploadImage(ctx context.Context, imagePath, subfolder string, overwrite bool) (string, error)

	// PollOnce performs one non-blocking status check
	PollOnce(ctx context.Context, promptID string) (PollResult, error)

	// WaitForCompletion polls until completion, error, or budget exhaustion
	WaitForCompletion(ctx context.Context, promptID string, interval time.Duration, maxAttempts int) (PollResult, error)

	// DownloadOutput retrieves a named output artifact
	DownloadOutput(ctx context.Context, filename, subfolder, outputType string) ([]byte, error)

	// QueueStatus returns the pending and running queue lengths
	QueueStatus(ctx context.Context) (pendingCount, runningCount int, err error)

	// CancelPrompt drops a pending execution from the server queue
	CancelPrompt(ctx context.Context, promptID string) error

	// InterruptActive interrupts the currently executing graph
	InterruptActive(ctx context.Context) error

	// ListLoras enumerates loadable LoRA names; empty on failure
	ListLoras(ctx context.Context) []string
}

// Ensure Client implements Servicer
var _ Servicer = (*Client)(nil)
