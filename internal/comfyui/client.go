// Package comfyui wraps the ComfyUI server's HTTP API. Every operation
// converts transport and protocol failures into a *ClientError; nothing
// escapes this boundary unclassified.
package comfyui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DavidJBarnes/wan22-long-form-video/internal/utils"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/workflow"
)

// Per-operation timeouts, matching the reference client.
const (
	probeTimeout    = 10 * time.Second
	submitTimeout   = 30 * time.Second
	historyTimeout  = 30 * time.Second
	queueTimeout    = 10 * time.Second
	uploadTimeout   = 60 * time.Second
	downloadTimeout = 120 * time.Second
)

// Client talks to one ComfyUI server. Stateless per call; safe to share.
type Client struct {
	serverURL  string
	httpClient *http.Client

	// DebugDir, when set, receives debug_history_*.json dumps for
	// completed, failed and timed-out executions.
	DebugDir string
}

// NewClient creates a client for the given server URL.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{},
	}
}

// ServerURL returns the configured server URL.
func (c *Client) ServerURL() string {
	return c.serverURL
}

// CheckConnection probes the server's liveness endpoint.
func (c *Client) CheckConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/system_stats", nil)
	if err != nil {
		return clientErr(KindProtocol, err, "failed to create request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return clientErr(KindConnectivity, err, "cannot connect to ComfyUI server at %s", c.serverURL)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return clientErr(KindConnectivity, nil, "server returned status code %d", resp.StatusCode)
	}
	return nil
}

// QueuePrompt submits a workflow graph and returns the execution's
// prompt ID.
func (c *Client) QueuePrompt(ctx context.Context, graph workflow.Graph) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]interface{}{"prompt": graph})
	if err != nil {
		return "", clientErr(KindProtocol, err, "failed to marshal workflow")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/prompt", bytes.NewReader(payload))
	if err != nil {
		return "", clientErr(KindProtocol, err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", clientErr(KindConnectivity, err, "request failed")
	}
	defer closeBody(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", clientErr(KindProtocol, err, "failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", clientErr(KindRejected, nil, "failed to queue prompt: %s", strings.TrimSpace(string(body)))
	}

	var result struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", clientErr(KindProtocol, err, "failed to parse queue response")
	}
	if result.PromptID == "" {
		return "", clientErr(KindProtocol, nil, "no prompt_id in response")
	}
	return result.PromptID, nil
}

// UploadImage stages an image on the server and returns the stored
// filename.
func (c *Client) UploadImage(ctx context.Context, imagePath, subfolder string, overwrite bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	f, err := os.Open(imagePath)
	if err != nil {
		return "", clientErr(KindProtocol, err, "failed to open image %s", imagePath)
	}
	defer func() {
		if err := f.Close(); err != nil {
			utils.LogWarning("Failed to close image file: %v", err)
		}
	}()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return "", clientErr(KindProtocol, err, "failed to build upload form")
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", clientErr(KindProtocol, err, "failed to read image %s", imagePath)
	}
	if err := writer.WriteField("overwrite", fmt.Sprintf("%t", overwrite)); err != nil {
		return "", clientErr(KindProtocol, err, "failed to build upload form")
	}
	if subfolder != "" {
		if err := writer.WriteField("subfolder", subfolder); err != nil {
			return "", clientErr(KindProtocol, err, "failed to build upload form")
		}
	}
	if err := writer.Close(); err != nil {
		return "", clientErr(KindProtocol, err, "failed to finalize upload form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/upload/image", &buf)
	if err != nil {
		return "", clientErr(KindProtocol, err, "failed to create request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", clientErr(KindConnectivity, err, "upload request failed")
	}
	defer closeBody(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", clientErr(KindProtocol, err, "failed to read upload response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", clientErr(KindRejected, nil, "upload failed: %s", strings.TrimSpace(string(body)))
	}

	var result struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", clientErr(KindProtocol, err, "failed to parse upload response")
	}
	if result.Name == "" {
		result.Name = filepath.Base(imagePath)
	}
	return result.Name, nil
}

// historyEntry is one execution's record at /history/{id}.
type historyEntry struct {
	Outputs Outputs `json:"outputs"`
	Status  struct {
		StatusStr string            `json:"status_str"`
		Completed bool              `json:"completed"`
		Messages  []json.RawMessage `json:"messages"`
	} `json:"status"`
}

func (c *Client) getHistory(ctx context.Context, promptID string) (*historyEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/history/"+url.PathEscape(promptID), nil)
	if err != nil {
		return nil, clientErr(KindProtocol, err, "failed to create request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, clientErr(KindConnectivity, err, "history request failed")
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, clientErr(KindProtocol, nil, "history returned status code %d", resp.StatusCode)
	}

	var history map[string]*historyEntry
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, clientErr(KindProtocol, err, "failed to parse history response")
	}
	// Absent from history means the execution has not finished starting;
	// the caller consults the queue.
	return history[promptID], nil
}

// PollOnce performs a single non-blocking status check for an
// execution. If the handle is not in history yet, the live queue
// decides between pending and running.
func (c *Client) PollOnce(ctx context.Context, promptID string) (PollResult, error) {
	entry, err := c.getHistory(ctx, promptID)
	if err != nil {
		return PollResult{}, err
	}

	if entry == nil {
		return c.pollQueue(ctx, promptID)
	}

	if len(entry.Outputs) > 0 {
		return PollResult{Status: StatusComplete, Progress: 1.0, Outputs: entry.Outputs}, nil
	}
	if entry.Status.StatusStr == "error" {
		return PollResult{
			Status:  StatusError,
			Message: formatStatusMessages(entry.Status.Messages),
		}, nil
	}
	// In history without outputs: mid-flight.
	return PollResult{Status: StatusRunning, Progress: 0.5}, nil
}

// pollQueue attributes a status to a handle absent from history by
// scanning the running list, then the pending list.
func (c *Client) pollQueue(ctx context.Context, promptID string) (PollResult, error) {
	running, pending, err := c.queueEntries(ctx)
	if err != nil {
		return PollResult{}, err
	}
	for _, id := range running {
		if id == promptID {
			return PollResult{Status: StatusRunning, Progress: 0.1}, nil
		}
	}
	for _, id := range pending {
		if id == promptID {
			return PollResult{Status: StatusPending}, nil
		}
	}
	// Not queued, not in history: treat as pending rather than failing,
	// since the server updates both with a small lag.
	return PollResult{Status: StatusPending}, nil
}

// queueEntries returns the prompt IDs of the running and pending queues.
// Each queue entry is an array whose second element is the prompt ID.
func (c *Client) queueEntries(ctx context.Context) (running, pending []string, err error) {
	ctx, cancel := context.WithTimeout(ctx, queueTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/queue", nil)
	if err != nil {
		return nil, nil, clientErr(KindProtocol, err, "failed to create request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, clientErr(KindConnectivity, err, "queue request failed")
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, nil, clientErr(KindProtocol, nil, "queue returned status code %d", resp.StatusCode)
	}

	var data struct {
		QueueRunning [][]json.RawMessage `json:"queue_running"`
		QueuePending [][]json.RawMessage `json:"queue_pending"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, nil, clientErr(KindProtocol, err, "failed to parse queue response")
	}

	extract := func(entries [][]json.RawMessage) []string {
		ids := make([]string, 0, len(entries))
		for _, entry := range entries {
			if len(entry) < 2 {
				continue
			}
			var id string
			if err := json.Unmarshal(entry[1], &id); err == nil {
				ids = append(ids, id)
			}
		}
		return ids
	}
	return extract(data.QueueRunning), extract(data.QueuePending), nil
}

// QueueStatus returns the pending and running queue lengths.
func (c *Client) QueueStatus(ctx context.Context) (pendingCount, runningCount int, err error) {
	running, pending, err := c.queueEntries(ctx)
	if err != nil {
		return 0, 0, err
	}
	return len(pending), len(running), nil
}

// WaitForCompletion polls on a fixed interval until the execution
// completes, fails, or the attempt budget runs out. The context cancels
// the wait early; a user-initiated cancel must not sit out the full
// budget.
func (c *Client) WaitForCompletion(ctx context.Context, promptID string, interval time.Duration, maxAttempts int) (PollResult, error) {
	var last PollResult
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := c.PollOnce(ctx, promptID)
		if err == nil {
			last = result
			switch result.Status {
			case StatusComplete:
				c.writeDebugLog(promptID, result, "success")
				return result, nil
			case StatusError:
				c.writeDebugLog(promptID, result, "error")
				return result, clientErr(KindExecution, nil, "generation failed: %s", result.Message)
			}
		} else if kind, _ := KindOf(err); kind != KindConnectivity {
			return PollResult{}, err
		}
		// Transient connectivity errors burn an attempt and retry.

		select {
		case <-ctx.Done():
			return last, clientErr(KindConnectivity, ctx.Err(), "wait cancelled")
		case <-time.After(interval):
		}
	}

	c.writeDebugLog(promptID, last, "timeout")
	return last, clientErr(KindTimeout, nil, "generation timed out after %d attempts", maxAttempts)
}

// DownloadOutput retrieves a named output artifact's bytes.
func (c *Client) DownloadOutput(ctx context.Context, filename, subfolder, outputType string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("filename", filename)
	params.Set("type", outputType)
	if subfolder != "" {
		params.Set("subfolder", subfolder)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/view?"+params.Encode(), nil)
	if err != nil {
		return nil, clientErr(KindProtocol, err, "failed to create request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, clientErr(KindConnectivity, err, "download request failed")
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, clientErr(KindProtocol, nil, "download of %s returned status code %d", filename, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, clientErr(KindConnectivity, err, "failed to read download body")
	}
	return data, nil
}

// CancelPrompt asks the server to drop a pending execution from its
// queue. Best-effort; the caller's own state transition must not depend
// on it.
func (c *Client) CancelPrompt(ctx context.Context, promptID string) error {
	ctx, cancel := context.WithTimeout(ctx, queueTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]interface{}{"delete": []string{promptID}})
	if err != nil {
		return clientErr(KindProtocol, err, "failed to marshal cancel request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/queue", bytes.NewReader(payload))
	if err != nil {
		return clientErr(KindProtocol, err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return clientErr(KindConnectivity, err, "cancel request failed")
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return clientErr(KindProtocol, nil, "cancel returned status code %d", resp.StatusCode)
	}
	return nil
}

// InterruptActive asks the server to interrupt whatever it is currently
// executing. Best-effort.
func (c *Client) InterruptActive(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queueTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/interrupt", nil)
	if err != nil {
		return clientErr(KindProtocol, err, "failed to create request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return clientErr(KindConnectivity, err, "interrupt request failed")
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return clientErr(KindProtocol, nil, "interrupt returned status code %d", resp.StatusCode)
	}
	return nil
}

// ListLoras enumerates the LoRA names the server can load. A
// convenience lookup: any failure yields an empty list, never an error.
func (c *Client) ListLoras(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/object_info/LoraLoaderModelOnly", nil)
	if err != nil {
		return nil
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		utils.LogVerbose("LoRA lookup failed: %v", err)
		return nil
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	// The first element of the lora_name input spec is the list of
	// allowed values.
	var info map[string]struct {
		Input struct {
			Required map[string][]json.RawMessage `json:"required"`
		} `json:"input"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil
	}

	node, ok := info["LoraLoaderModelOnly"]
	if !ok {
		return nil
	}
	spec, ok := node.Input.Required["lora_name"]
	if !ok || len(spec) == 0 {
		return nil
	}
	var names []string
	if err := json.Unmarshal(spec[0], &names); err != nil {
		return nil
	}
	return names
}

// writeDebugLog dumps the final poll result for post-mortem inspection.
func (c *Client) writeDebugLog(promptID string, result PollResult, status string) {
	if c.DebugDir == "" {
		return
	}
	if err := os.MkdirAll(c.DebugDir, 0755); err != nil {
		return
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(c.DebugDir, fmt.Sprintf("debug_history_%s_%s.json", promptID, status))
	if err := os.WriteFile(path, data, 0644); err != nil {
		utils.LogDebug("Failed to write debug log %s: %v", path, err)
	}
}

func formatStatusMessages(messages []json.RawMessage) string {
	if len(messages) == 0 {
		return "no diagnostic messages reported"
	}
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, string(m))
	}
	return strings.Join(parts, "; ")
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		utils.LogWarning("Failed to close response body: %v", err)
	}
}
