package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/core/domain"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List ingestion jobs or show one job",
	Long: `Without arguments, lists all ingestion jobs, newest first.
With a job ID, shows that job's full status including chunk counts,
retry attempts and the last error if any.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [job-id]",
	Short: "Cancel a queued or fetching job",
	Long: `Requests cancellation of an ingestion job. Jobs are only cancellable
while queued or fetching; once embedding has begun the job runs to a
terminal state and the request is ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(cancelCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	ctx := context.Background()

	if len(args) == 1 {
		job, err := ingestService.Job(ctx, args[0])
		if err != nil {
			return fmt.Errorf("job lookup failed: %w", err)
		}
		printJob(cmd, job)
		return nil
	}

	jobs, err := ingestService.Jobs(ctx)
	if err != nil {
		return fmt.Errorf("job list failed: %w", err)
	}
	if len(jobs) == 0 {
		cmd.Println("No jobs.")
		return nil
	}

	for i := range jobs {
		j := &jobs[i]
		cmd.Printf("%s  %-11s  %s\n", j.ID, j.State, j.SourceID)
	}
	return nil
}

func printJob(cmd *cobra.Command, job *domain.IngestionJob) {
	cmd.Printf("Job:      %s\n", job.ID)
	cmd.Printf("Source:   %s\n", job.SourceID)
	cmd.Printf("State:    %s\n", job.State)
	cmd.Printf("Enqueued: %s\n", job.EnqueuedAt.Format("2006-01-02 15:04:05"))
	if job.Attempts > 0 {
		cmd.Printf("Retries:  %d\n", job.Attempts)
	}
	if job.ChunksIndexed+job.ChunksSkipped+job.ChunksFailed > 0 {
		cmd.Printf("Chunks:   %d indexed, %d unchanged, %d failed\n",
			job.ChunksIndexed, job.ChunksSkipped, job.ChunksFailed)
	}
	if job.LastError != "" {
		cmd.Printf("Error:    %s\n", job.LastError)
	}
}

func runCancel(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	err := ingestService.Cancel(context.Background(), args[0])
	switch {
	case errors.Is(err, domain.ErrJobNotCancellable):
		return fmt.Errorf("job %s already finished: %w", args[0], err)
	case err != nil:
		return fmt.Errorf("cancel failed: %w", err)
	}

	cmd.Printf("Cancellation requested for job %s\n", args[0])
	return nil
}
