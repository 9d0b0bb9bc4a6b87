package engine

import (
	"strings"

	"inferd/pkg/types"
)

// approxTokens estimates token consumption for accounting purposes. Real
// tokenizer counts depend on the backend vocabulary; whitespace splitting is
// deterministic and close enough for metering and rate budgets.
func approxTokens(text string) int {
	return len(strings.Fields(text))
}

// chatPromptText flattens a conversation into the text the accounting layer
// tokenizes. Roles are included so multi-turn prompts meter higher than the
// bare concatenation of contents.
func chatPromptText(messages []types.Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
