package cmd

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"tagforge/internal/clix"
	"tagforge/internal/models"
	"tagforge/internal/store"
)

var enqueueQueue string

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <owner>/<repo>",
	Short: "Queue an analysis for the background worker",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, repo, err := clix.ParseRepo(args)
		if err != nil {
			return err
		}
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		info, err := appInstance.JobClient.EnqueueAnalysis(cmd.Context(), owner, repo, queueOpts()...)
		if err != nil {
			return fmt.Errorf("failed to enqueue analysis: %w", err)
		}
		fmt.Printf("Enqueued %s/%s: job %s on queue %s\n", owner, repo, color.CyanString(info.ID), info.Queue)
		return nil
	},
}

var jobCmd = &cobra.Command{
	Use:   "job <job-id>",
	Short: "Show the status of a queued analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid job ID %q: %w", args[0], err)
		}
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		job, err := appInstance.Store.GetJob(cmd.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("job %s not found", id)
			}
			return err
		}

		fmt.Printf("Job:        %s\n", job.JobID)
		fmt.Printf("Repository: %s/%s\n", job.Owner, job.Repo)
		fmt.Printf("Queue:      %s\n", job.Queue)
		fmt.Printf("Status:     %s\n", jobStatusString(job.Status))
		if job.ReportID != nil {
			fmt.Printf("Report:     %s\n", job.ReportID)
		}
		if job.Error != "" {
			fmt.Printf("Error:      %s\n", job.Error)
		}
		fmt.Printf("Updated:    %s\n", job.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
		return nil
	},
}

func queueOpts() []asynq.Option {
	if enqueueQueue == "" {
		return nil
	}
	return []asynq.Option{asynq.Queue(enqueueQueue)}
}

func jobStatusString(s string) string {
	switch s {
	case models.JobStatusCompleted:
		return color.GreenString(s)
	case models.JobStatusFailed, models.JobStatusCancelled:
		return color.RedString(s)
	default:
		return color.YellowString(s)
	}
}

func init() {
	enqueueCmd.Flags().StringVarP(&enqueueQueue, "queue", "q", "", "queue name (default from the job client)")
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(jobCmd)
}
