package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/core/domain"
	"github.com/quarrylabs/quarry/internal/core/ports/driving"
)

var (
	retrieveTopN   int
	retrieveSource string
	retrieveJSON   bool
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [question]",
	Short: "Answer a question from the indexed corpus",
	Long: `Expands the question into several search queries, runs them
concurrently against the vector index, and prints the fused, ranked
passages. An empty result means nothing indexed was relevant enough.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetrieve,
}

func init() {
	retrieveCmd.Flags().IntVarP(&retrieveTopN, "top", "n", 0, "number of passages to return (0 = configured default)")
	retrieveCmd.Flags().StringVar(&retrieveSource, "source", "", "restrict the search to one source id")
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "output passages as JSON")
	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	if retrieveService == nil {
		return errors.New("retrieve service not configured")
	}

	opts := driving.RetrieveOptions{
		TopN:     retrieveTopN,
		SourceID: retrieveSource,
	}

	result, err := retrieveService.Retrieve(context.Background(), args[0], opts)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return fmt.Errorf("empty question: %w", err)
		}
		return fmt.Errorf("retrieval failed: %w", err)
	}

	if retrieveJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if result.Empty() {
		cmd.Println("No relevant passages found.")
		return nil
	}

	cmd.Printf("Passages (%d sub-queries searched):\n\n", len(result.SubQueries))
	for i := range result.Passages {
		p := &result.Passages[i]
		cmd.Printf("  [%d] %.3f  %s\n", i+1, p.Score, p.URL)
		cmd.Printf("      %s\n\n", p.Text)
	}
	return nil
}
