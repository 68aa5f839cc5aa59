package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/DavidJBarnes/wan22-long-form-video/internal/jobstore"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/utils"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var jobsAsYAML bool

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs under the output root",
	RunE: func(cmd *cobra.Command, args []string) error {
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
			utils.LogInfo("No jobs found under %s", settings.OutputDir)
			return nil
		}

		if jobsAsYAML {
			return yaml.NewEncoder(os.Stdout).Encode(jobs)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCREATED\tSTATUS\tSTAGE\tSEGMENTS")
		for _, job := range jobs {
			created := ""
			if job.GenerationStartTime > 0 {
				created = time.Unix(job.GenerationStartTime, 0).Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\n",
				job.Name(), created, job.Status, job.CurrentStage, job.TotalStages, len(job.SegmentPaths))
		}
		return w.Flush()
	},
}

func init() {
	jobsCmd.Flags().BoolVar(&jobsAsYAML, "yaml", false, "Dump the full job records as YAML")
	rootCmd.AddCommand(jobsCmd)
}
