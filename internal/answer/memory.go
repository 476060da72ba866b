package answer

import (
	"strings"

	"github.com/applydi/applydi/internal/store"
)

// historyWindow is the number of trailing conversation turns carried into
// the prompt.
const historyWindow = 5

// Turn is one prior exchange line supplied by the caller.
type Turn struct {
	Role store.Role
	Text string
}

// LastTurns returns the trailing window of at most max turns, in
// chronological order. The input is never modified.
func LastTurns(history []Turn, max int) []Turn {
	if max <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) > max {
		history = history[len(history)-max:]
	}
	return history
}

// flattenHistory renders turns as labeled lines for inclusion in the user
// prompt.
func flattenHistory(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Previous conversation:\n")
	for _, t := range turns {
		label := "User"
		if t.Role == store.RoleAgent {
			label = "Agent"
		}
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(t.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}
