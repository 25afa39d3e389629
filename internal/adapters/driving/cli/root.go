// Package cli implements the quarry command line interface using cobra.
// Commands talk to core services exclusively through driving ports;
// wiring happens in cmd/quarry.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/core/ports/driving"
	"github.com/quarrylabs/quarry/internal/logger"
)

var (
	verbose bool

	ingestService   driving.Ingestor
	retrieveService driving.Retriever
	catalogService  driving.Catalog
)

var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "Ingest documentation sites and answer questions from them",
	Long: `Quarry crawls documentation sites, chunks and embeds their content,
and answers questions against the indexed corpus with semantic retrieval.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// SetServices injects the core services the commands depend on. Called
// once from cmd/quarry before Execute.
func SetServices(ingestor driving.Ingestor, retriever driving.Retriever, catalog driving.Catalog) {
	ingestService = ingestor
	retrieveService = retriever
	catalogService = catalog
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
