package llm

import (
	"fmt"
	"strings"

	"ticketclassifier/internal/domain"
)

// BuildPrompt asks the model to pick one of cats for text. The fallback
// category is not listed; the instructions name it explicitly instead.
func BuildPrompt(cats []*domain.Category, text string) string {
	var list strings.Builder
	for _, c := range cats {
		if c.IsOther() {
			continue
		}
		if list.Len() > 0 {
			list.WriteString("\n")
		}
		fmt.Fprintf(&list, "- %s: %s", c.Name(), c.Description())
	}

	return fmt.Sprintf(`Classify the following support ticket into one of these categories:

%s

Ticket: "%s"

Respond with a JSON object containing:
- category: the category name (exactly as listed above, or "other" if no match)
- confidence: a number between 0 and 1 indicating confidence
- reasoning: brief explanation of classification

Example response:
{"category": "password_reset", "confidence": 0.95, "reasoning": "User explicitly mentions forgot password"}

Your response (JSON only):`, list.String(), text)
}
