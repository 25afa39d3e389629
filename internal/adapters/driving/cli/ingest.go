package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/core/domain"
)

var (
	ingestPageLimit int
	ingestMaxDepth  int
	ingestInclude   []string
	ingestExclude   []string
	ingestAsync     bool
)

// ingestPollInterval is how often a foreground ingest polls job state.
var ingestPollInterval = 500 * time.Millisecond

var ingestCmd = &cobra.Command{
	Use:   "ingest [url]",
	Short: "Crawl and index a documentation site",
	Long: `Queues an ingestion job for the given root URL and waits for it to
finish. The site is crawled, chunked, embedded and indexed; re-ingesting
a source only re-embeds changed content. With --async the command
returns as soon as the job is queued; use "quarry jobs" to follow it.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().IntVar(&ingestPageLimit, "limit", 0, "maximum pages to crawl (0 = fetcher default)")
	ingestCmd.Flags().IntVar(&ingestMaxDepth, "depth", 0, "maximum link depth (0 = fetcher default)")
	ingestCmd.Flags().StringSliceVar(&ingestInclude, "include", nil, "path patterns to include, e.g. /docs/*")
	ingestCmd.Flags().StringSliceVar(&ingestExclude, "exclude", nil, "path patterns to exclude, e.g. /blog/*")
	ingestCmd.Flags().BoolVar(&ingestAsync, "async", false, "queue the job and return immediately")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	crawl := domain.CrawlConfig{
		PageLimit:       ingestPageLimit,
		MaxDepth:        ingestMaxDepth,
		IncludePatterns: ingestInclude,
		ExcludePatterns: ingestExclude,
	}

	jobID, err := ingestService.Enqueue(context.Background(), args[0], crawl)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return fmt.Errorf("invalid source url %q: %w", args[0], err)
		}
		return fmt.Errorf("enqueue failed: %w", err)
	}

	cmd.Printf("Queued job %s\n", jobID)
	if ingestAsync {
		cmd.Printf("Run 'quarry jobs %s' to follow progress.\n", jobID)
		return nil
	}

	return followJob(cmd, jobID)
}

// followJob polls the job until it reaches a terminal state, printing
// each stage as it starts.
func followJob(cmd *cobra.Command, jobID string) error {
	ticker := time.NewTicker(ingestPollInterval)
	defer ticker.Stop()

	var lastState domain.JobState
	for range ticker.C {
		job, err := ingestService.Job(context.Background(), jobID)
		if err != nil {
			return fmt.Errorf("job lookup failed: %w", err)
		}

		if job.State != lastState {
			cmd.Printf("  %s\n", job.State)
			lastState = job.State
		}
		if !job.State.Terminal() {
			continue
		}

		switch job.State {
		case domain.JobSucceeded:
			cmd.Printf("Ingestion complete: %d chunks indexed, %d unchanged.\n",
				job.ChunksIndexed, job.ChunksSkipped)
			return nil
		case domain.JobCancelled:
			cmd.Println("Ingestion cancelled.")
			return nil
		default:
			return fmt.Errorf("ingestion failed: %s", job.LastError)
		}
	}
	return nil
}
