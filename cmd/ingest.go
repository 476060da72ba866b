package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/applydi/applydi/internal/app"
	"github.com/applydi/applydi/internal/ingest"
)

var (
	ingestUserID  string
	ingestAgentID string
	ingestName    string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Upload a text file as a searchable document",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestUserID, "user", "", "owning user ID (required)")
	ingestCmd.Flags().StringVar(&ingestAgentID, "agent", "", "attach the document to this agent (optional)")
	ingestCmd.Flags().StringVar(&ingestName, "name", "", "document name (defaults to the file name)")
	_ = ingestCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	userID, err := uuid.Parse(ingestUserID)
	if err != nil {
		return fmt.Errorf("invalid --user: %w", err)
	}
	agentID, err := parseOptionalUUID(ingestAgentID, "--agent")
	if err != nil {
		return err
	}

	path := args[0]
	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	name := ingestName
	if name == "" {
		name = filepath.Base(path)
	}

	setupCtx, cancel := context.WithTimeout(ctx, app.SetupTimeout)
	a, cleanup, err := app.Setup(setupCtx)
	cancel()
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := a.Ingestor.Ingest(ctx, ingest.Request{
		Filename: name,
		Text:     string(text),
		UserID:   userID,
		AgentID:  agentID,
	})
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", name, err)
	}

	fmt.Printf("Ingested %s as document %s: %d chunks (%d embedded, %d deferred)\n",
		name, result.Document.ID, result.Chunks, result.Embedded, result.Deferred)
	if result.Deferred > 0 {
		fmt.Printf("Run 'applydi backfill --doc %s' to embed the deferred chunks.\n", result.Document.ID)
	}
	return nil
}
