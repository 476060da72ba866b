package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "applydi",
	Short: "applydi - document retrieval and question answering",
	Long: `applydi ingests documents into a PostgreSQL-backed chunk store and
answers questions against them using embedding retrieval and LLM completion.

Run 'applydi ingest' to upload a document and 'applydi ask' to query it.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
