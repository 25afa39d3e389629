package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List source summaries",
	Long: `Prints the catalog: one generated summary and keyword set per fully
ingested source. Sources whose last ingestion failed have no entry.`,
	Args: cobra.NoArgs,
	RunE: runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}

func runCatalog(cmd *cobra.Command, args []string) error {
	if catalogService == nil {
		return errors.New("catalog service not configured")
	}

	entries, err := catalogService.List(context.Background())
	if err != nil {
		return fmt.Errorf("catalog list failed: %w", err)
	}
	if len(entries) == 0 {
		cmd.Println("Catalog is empty. Ingest a source first.")
		return nil
	}

	for i := range entries {
		e := &entries[i]
		cmd.Printf("%s\n", e.SourceID)
		cmd.Printf("  %s\n", e.Summary)
		if len(e.Keywords) > 0 {
			cmd.Printf("  Keywords: %s\n", strings.Join(e.Keywords, ", "))
		}
		cmd.Println()
	}
	return nil
}
