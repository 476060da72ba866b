package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/applydi/applydi/internal/app"
)

var backfillDocID string

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Embed a document's chunks that were deferred at ingest time",
	RunE:  runBackfill,
}

func init() {
	backfillCmd.Flags().StringVar(&backfillDocID, "doc", "", "document ID (required)")
	_ = backfillCmd.MarkFlagRequired("doc")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	docID, err := uuid.Parse(backfillDocID)
	if err != nil {
		return fmt.Errorf("invalid --doc: %w", err)
	}

	setupCtx, cancel := context.WithTimeout(ctx, app.SetupTimeout)
	a, cleanup, err := app.Setup(setupCtx)
	cancel()
	if err != nil {
		return err
	}
	defer cleanup()

	embedded, remaining, err := a.Ingestor.Backfill(ctx, docID)
	if err != nil {
		return fmt.Errorf("backfilling document %s: %w", docID, err)
	}

	fmt.Printf("Embedded %d chunks, %d still without vectors\n", embedded, remaining)
	return nil
}
