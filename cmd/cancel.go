package cmd

import (
	"github.com/DavidJBarnes/wan22-long-form-video/internal/generator"
	"github.com/DavidJBarnes/wan22-long-form-video/internal/utils"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-dir>",
	Short: "Cancel a job and release its place on the server",
	Long: `Mark a job cancelled. If the job has a prompt queued or running on
the server, a best-effort interrupt and queue removal is sent; the
local record is marked cancelled even when the server is unreachable.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, store, settings, err := newClientAndStore()
		if err != nil {
			return err
		}

		gen, err := generator.Resume(client, store, settings, args[0])
		if err != nil {
			return err
		}

		if err := gen.Cancel(cmd.Context()); err != nil {
			return err
		}
		utils.LogSuccess("Job %s cancelled", gen.Job().Name())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
