package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/applydi/applydi/internal/answer"
	"github.com/applydi/applydi/internal/app"
)

var (
	askUserID  string
	askAgentID string
	askDocIDs  []string
	askModelID string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question against the user's documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askUserID, "user", "", "user ID (required)")
	askCmd.Flags().StringVar(&askAgentID, "agent", "", "agent ID (optional persona)")
	askCmd.Flags().StringSliceVar(&askDocIDs, "doc", nil, "restrict retrieval to these document IDs (repeatable)")
	askCmd.Flags().StringVar(&askModelID, "model", "", "model ID override, e.g. gemini:gemini-2.5-pro")
	_ = askCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	userID, err := uuid.Parse(askUserID)
	if err != nil {
		return fmt.Errorf("invalid --user: %w", err)
	}
	agentID, err := parseOptionalUUID(askAgentID, "--agent")
	if err != nil {
		return err
	}
	docIDs, err := parseUUIDs(askDocIDs, "--doc")
	if err != nil {
		return err
	}

	setupCtx, cancel := context.WithTimeout(ctx, app.SetupTimeout)
	a, cleanup, err := app.Setup(setupCtx)
	cancel()
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := a.Engine.Answer(ctx, answer.Request{
		Question: strings.Join(args, " "),
		UserID:   userID,
		AgentID:  agentID,
		DocIDs:   docIDs,
		ModelID:  askModelID,
	})
	if err != nil {
		return fmt.Errorf("answering: %w", err)
	}

	fmt.Println(result.Text)
	if result.Cached {
		a.Logger.Debug("answer served from cache")
	}
	return nil
}

func parseOptionalUUID(s, flag string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", flag, err)
	}
	return &id, nil
}

func parseUUIDs(values []string, flag string) ([]uuid.UUID, error) {
	if len(values) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(values))
	for i, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", flag, v, err)
		}
		ids[i] = id
	}
	return ids, nil
}
