package comfyui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Status of a submitted execution.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Outputs maps node IDs to their raw output payloads. The payload keys
// vary across server versions ("videos", "images", "gifs"), so artifact
// extraction scans rather than assuming one shape.
type Outputs map[string]map[string]json.RawMessage

// PollResult is one status observation of a submitted execution.
type PollResult struct {
	Status   Status  `json:"status"`
	Progress float64 `json:"progress"`
	Outputs  Outputs `json:"outputs,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// Artifact names one downloadable output file.
type Artifact struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// Keys the server is known to file video artifacts under.
var videoOutputKeys = []string{"videos", "images", "gifs"}

var videoExtensions = []string{".mp4", ".webm", ".gif", ".avi", ".mov"}

func isVideoFilename(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range videoExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// FindVideo locates the video artifact in a completed execution's
// outputs. When none is found the error lists the output keys that were
// present, to aid debugging contract drift against the server.
func FindVideo(outputs Outputs) (Artifact, error) {
	for _, nodeOutput := range outputs {
		for _, key := range videoOutputKeys {
			raw, ok := nodeOutput[key]
			if !ok {
				continue
			}
			var items []Artifact
			if err := json.Unmarshal(raw, &items); err != nil {
				continue
			}
			for _, item := range items {
				if isVideoFilename(item.Filename) {
					if item.Type == "" {
						item.Type = "output"
					}
					return item, nil
				}
			}
		}
	}

	return Artifact{}, clientErr(KindArtifactShape, nil,
		"no video output found in generation results. Present: %s", describeOutputs(outputs))
}

func describeOutputs(outputs Outputs) string {
	if len(outputs) == 0 {
		return "no output nodes"
	}
	nodeIDs := make([]string, 0, len(outputs))
	for id := range outputs {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	parts := make([]string, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		keys := make([]string, 0, len(outputs[id]))
		for key := range outputs[id] {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts = append(parts, fmt.Sprintf("node %s: [%s]", id, strings.Join(keys, ", ")))
	}
	return strings.Join(parts, "; ")
}
