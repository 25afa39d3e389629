package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/core/domain"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage ingested sources",
	Args:  cobra.NoArgs,
	RunE:  runSourcesList,
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sources",
	Args:  cobra.NoArgs,
	RunE:  runSourcesList,
}

var sourcesDeleteCmd = &cobra.Command{
	Use:   "delete [source-id]",
	Short: "Delete a source and everything indexed from it",
	Long: `Removes a source together with its vectors, fingerprints and catalog
entry. Refused while an ingestion job for the source is running.`,
	Args: cobra.ExactArgs(1),
	RunE: runSourcesDelete,
}

func init() {
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesDeleteCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func runSourcesList(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	sources, err := ingestService.Sources(context.Background())
	if err != nil {
		return fmt.Errorf("source list failed: %w", err)
	}
	if len(sources) == 0 {
		cmd.Println("No sources.")
		return nil
	}

	for i := range sources {
		s := &sources[i]
		cmd.Printf("%s  %-10s", s.ID, s.Status)
		if !s.LastIngested.IsZero() {
			cmd.Printf("  last ingested %s", s.LastIngested.Format("2006-01-02 15:04"))
		}
		cmd.Println()
	}
	return nil
}

func runSourcesDelete(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	err := ingestService.DeleteSource(context.Background(), args[0])
	switch {
	case errors.Is(err, domain.ErrJobActive):
		return fmt.Errorf("source %s has a running job, cancel it first: %w", args[0], err)
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("source %s not found: %w", args[0], err)
	case err != nil:
		return fmt.Errorf("delete failed: %w", err)
	}

	cmd.Printf("Deleted source %s\n", args[0])
	return nil
}
