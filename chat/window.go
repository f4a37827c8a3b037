// Package chat is the orchestration core: it builds the bounded conversation
// window for each turn, owns the in-memory session state, and drives the
// send/retry state machine across providers.
package chat

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"pulse/model"
)

const (
	// DefaultHistoryWindow is the number of prior messages included in a
	// request window when the user has not configured one.
	DefaultHistoryWindow = 10

	// snippetMaxWidth caps each injected snippet at a fixed display width so
	// one long memory cannot dominate the prompt.
	snippetMaxWidth = 200

	// augmentBudget caps the combined width of all injected snippet lines.
	// Augmentation is budgeted independently of the N-message window: the
	// provider-facing message count never changes, only the prompt grows,
	// and it grows by at most this much.
	augmentBudget = 800

	// snippetLabel introduces injected memory context inside the prompt.
	snippetLabel = "Relevant context from memory:"
)

// BuildWindow assembles the ordered message sequence sent to a provider:
// the last n prior messages (error records excluded), a system preamble when
// the truncated history does not already start with one, and the user's
// prompt last, enriched inline with any retrieved snippets.
//
// The builder is provider-agnostic; wire-shape translation happens in the
// provider adapters.
func BuildWindow(history []model.Message, preamble, prompt string, snippets []model.MemorySnippet, n int) []model.Message {
	if n <= 0 {
		n = DefaultHistoryWindow
	}

	// Error records are user-facing annotations, not conversation content.
	kept := make([]model.Message, 0, len(history))
	for _, msg := range history {
		if msg.IsError {
			continue
		}
		kept = append(kept, msg)
	}

	// Drop from the oldest end.
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}

	window := make([]model.Message, 0, len(kept)+2)
	if preamble != "" && (len(kept) == 0 || kept[0].Role != model.RoleSystem) {
		window = append(window, model.Message{Role: model.RoleSystem, Content: preamble})
	}
	for _, msg := range kept {
		window = append(window, model.Message{Role: msg.Role, Content: msg.Content})
	}

	window = append(window, model.Message{Role: model.RoleUser, Content: AugmentPrompt(prompt, snippets)})
	return window
}

// AugmentPrompt appends retrieved snippet text to the prompt under a fixed
// label, one snippet per line. Each snippet is truncated to a fixed display
// width and the combined injection is budgeted, so the enriched prompt stays
// bounded regardless of what the collaborator returns.
func AugmentPrompt(prompt string, snippets []model.MemorySnippet) string {
	if len(snippets) == 0 {
		return prompt
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n")
	b.WriteString(snippetLabel)

	used := 0
	for _, s := range snippets {
		line := runewidth.Truncate(flatten(s.Text), snippetMaxWidth, "...")
		width := runewidth.StringWidth(line)
		if used+width > augmentBudget {
			break
		}
		used += width
		b.WriteString("\n- ")
		b.WriteString(line)
	}

	return b.String()
}

// flatten collapses a snippet onto one line so each snippet occupies exactly
// one line in the prompt.
func flatten(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.TrimSpace(text)
}
