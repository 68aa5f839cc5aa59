package jobstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// StateFileName is the structured record inside each job directory.
	StateFileName = "job_state.json"
	// SegmentsDirName holds produced video segments.
	SegmentsDirName = "segments"
	// FramesDirName holds extracted still frames.
	FramesDirName = "frames"
	// StartImageName is the user-supplied reference image.
	StartImageName = "start_image.png"
)

// timeNow allows tests to pin job directory timestamps.
var timeNow = time.Now

// Store manages job directories under one output root. Different jobs
// are fully independent; one orchestration flow should own a given
// job's record at a time (last writer wins otherwise).
type Store struct {
	Root string
}

// NewStore creates a store rooted at the given output directory.
func NewStore(root string) *Store {
	return &Store{Root: root}
}

// Create allocates a new job directory named after the label and the
// creation timestamp, with its segments/ and frames/ subdirectories.
func (s *Store) Create(label string, cfg Config) (*Job, error) {
	label = sanitizeLabel(label)
	if label == "" {
		return nil, fmt.Errorf("job label is required")
	}

	now := timeNow()
	dirName := fmt.Sprintf("%s_%s", label, now.Format("20060102_150405"))
	outputDir := filepath.Join(s.Root, dirName)

	for _, dir := range []string{
		filepath.Join(outputDir, SegmentsDirName),
		filepath.Join(outputDir, FramesDirName),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create job directory: %w", err)
		}
	}

	job := &Job{
		ID:                  uuid.New().String(),
		Status:              StatusIdle,
		Config:              cfg,
		GenerationStartTime: now.Unix(),
		OutputDir:           outputDir,
	}
	if err := s.Save(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Save writes the job record atomically (temp file + rename), after
// checking its invariants.
func (s *Store) Save(job *Job) error {
	if err := job.CheckInvariants(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job record: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(job.OutputDir, StateFileName)
	tmp, err := os.CreateTemp(job.OutputDir, ".wanvid-tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp record for %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp record for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp record for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace job record %s: %w", path, err)
	}
	if err := os.Chmod(path, 0644); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	return nil
}

// Load reads a job record by directory name (relative to the store
// root) or absolute path.
func (s *Store) Load(dir string) (*Job, error) {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.Root, dir)
	}
	path := filepath.Join(dir, StateFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job record %s: %w", path, err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job record %s: %w", path, err)
	}
	// The directory may have been moved wholesale; trust its actual
	// location over the recorded one.
	job.OutputDir = dir
	return &job, nil
}

// List enumerates every job under the root, newest first. Directories
// without a readable record are skipped.
func (s *Store) List() ([]*Job, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read job root %s: %w", s.Root, err)
	}

	var jobs []*Job
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		job, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].GenerationStartTime != jobs[j].GenerationStartTime {
			return jobs[i].GenerationStartTime > jobs[j].GenerationStartTime
		}
		return jobs[i].Name() > jobs[j].Name()
	})
	return jobs, nil
}

// sanitizeLabel makes a user label safe as a directory-name prefix.
func sanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	label = strings.ReplaceAll(label, " ", "_")
	label = strings.ReplaceAll(label, string(filepath.Separator), "_")
	return label
}
