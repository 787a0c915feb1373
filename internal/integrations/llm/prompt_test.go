package llm

import (
	"strings"
	"testing"

	"ticketclassifier/internal/categories"
)

func TestBuildPrompt_ListsCategoriesExceptOther(t *testing.T) {
	cats := categories.DefaultCategories()
	prompt := BuildPrompt(cats, "My printer is jammed")

	for _, c := range cats {
		line := "- " + c.Name() + ": " + c.Description()
		if c.IsOther() {
			if strings.Contains(prompt, line) {
				t.Fatalf("prompt must not list the fallback category, prompt=%s", prompt)
			}
			continue
		}
		if !strings.Contains(prompt, line) {
			t.Fatalf("prompt missing %q, prompt=%s", line, prompt)
		}
	}
	if strings.Count(prompt, "\n- ") < len(cats)-1 {
		t.Fatalf("expected one line per category, prompt=%s", prompt)
	}
	if !strings.Contains(prompt, `Ticket: "My printer is jammed"`) {
		t.Fatalf("prompt missing ticket text, prompt=%s", prompt)
	}
	if !strings.Contains(prompt, `or "other" if no match`) {
		t.Fatalf("prompt must mention the fallback category, prompt=%s", prompt)
	}
	if !strings.HasSuffix(prompt, "Your response (JSON only):") {
		t.Fatalf("prompt must end with the JSON instruction, prompt=%s", prompt)
	}
}

func TestBuildPrompt_CategoryOrder(t *testing.T) {
	prompt := BuildPrompt(categories.DefaultCategories(), "x")
	first := strings.Index(prompt, "- password_reset:")
	last := strings.Index(prompt, "- application_error:")
	if first < 0 || last < 0 || first > last {
		t.Fatalf("categories must be listed in registry order, prompt=%s", prompt)
	}
}
