package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/DavidJBarnes/wan22-long-form-video/internal/jobstore"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/utils"

	"github.com/spf13/cobra"
)

var (
	keepLatest    int
	olderThanDays int
	cleanupDryRun bool
	cleanupForce  bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove old job directories",
	Long: `Remove old job directories under the output root based on age or
count. Jobs that are still idle, generating, in review or finalizing
are skipped unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if keepLatest == 0 && olderThanDays == 0 {
			return fmt.Errorf("specify --keep-latest or --older-than")
		}

		settings, err := loadSettings()
		if err != nil {
			return err
		}

		store := jobstore.NewStore(settings.OutputDir)
		jobs, err := store.List()
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No job directories found.")
			return nil
		}

		// List returns jobs newest first.
		toDelete := map[string]*jobstore.Job{}
		if keepLatest > 0 && len(jobs) > keepLatest {
			for _, job := range jobs[keepLatest:] {
				toDelete[job.OutputDir] = job
			}
		}
		if olderThanDays > 0 {
			cutoff := time.Now().AddDate(0, 0, -olderThanDays).Unix()
			for _, job := range jobs {
				if job.GenerationStartTime > 0 && job.GenerationStartTime < cutoff {
					toDelete[job.OutputDir] = job
				}
			}
		}

		var deletable []*jobstore.Job
		for _, job := range toDelete {
			if !cleanupForce && !isTerminal(job.Status) {
				utils.LogWarning("Skipping %s: job is still %s (use --force to remove)", job.Name(), job.Status)
				continue
			}
			deletable = append(deletable, job)
		}

		if len(deletable) == 0 {
			fmt.Println("No job directories to delete.")
			return nil
		}

		fmt.Printf("Found %d job directories to delete:\n", len(deletable))
		for _, job := range deletable {
			fmt.Printf("- %s (%s)\n", job.Name(), job.Status)
		}

		if cleanupDryRun {
			fmt.Println("Dry run - no directories were deleted.")
			return nil
		}

		for _, job := range deletable {
			fmt.Printf("Deleting %s...\n", job.OutputDir)
			if err := os.RemoveAll(job.OutputDir); err != nil {
				utils.LogError("Error deleting %s: %v", job.OutputDir, err)
			}
		}

		fmt.Println("Cleanup completed.")
		return nil
	},
}

func isTerminal(status jobstore.Status) bool {
	switch status {
	case jobstore.StatusComplete, jobstore.StatusCancelled, jobstore.StatusError:
		return true
	}
	return false
}

func init() {
	cleanupCmd.Flags().IntVarP(&keepLatest, "keep-latest", "k", 0, "Keep this many latest job directories")
	cleanupCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete job directories older than this many days")
	cleanupCmd.Flags().BoolVarP(&cleanupDryRun, "dry-run", "n", false, "Show what would be deleted without actually deleting")
	cleanupCmd.Flags().BoolVar(&cleanupForce, "force", false, "Also delete jobs that are not in a terminal state")

	rootCmd.AddCommand(cleanupCmd)
}
