// Package summary maintains an evolving digest of a participant's editing
// tendencies. The digest is fed back into later rewrite calls as soft
// constraints ("prefers bullet lists", "asked for casual tone").
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/tacchanmaru/talkedit/internal/llm"
)

// Item is one applied edit shown to the summarizer.
type Item struct {
	Utterance string
	Plan      string
	Before    string
	After     string
}

type Summarizer struct {
	client llm.Client
}

func New(client llm.Client) *Summarizer {
	return &Summarizer{client: client}
}

// Summarize folds the edit history into an updated tendency digest. The
// caller only invokes it once at least two edits exist; with fewer items
// it returns the current summary unchanged. Failures are the caller's to
// swallow: an out-of-date digest never blocks the edit flow, and there is
// no retry here.
func (s *Summarizer) Summarize(ctx context.Context, items []Item, current string) (string, error) {
	if len(items) < 2 {
		return current, nil
	}

	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildUserPrompt(items, current)},
	}

	result, err := s.client.Complete(ctx, messages, llm.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("summarize edit history: %w", err)
	}
	return result, nil
}

const systemPrompt = `You analyze a participant's text-editing history and record their editing tendencies.

Rules:
1. Quote the participant's actual utterances in your interpretation.
2. Avoid over-generalizing; keep the concrete context.
3. Weight the most recent instructions more heavily.
4. If instructions contradict each other, record the change of mind.

Output at most 3-5 bullet points, each a short line like:
- "drop the formal tone" — prefers casual phrasing
- "list the condition too" — wants details as bullet items`

func buildUserPrompt(items []Item, current string) string {
	var b strings.Builder

	if current != "" {
		b.WriteString("Current tendency record:\n")
		b.WriteString(current)
		b.WriteString("\n\n")
	}

	b.WriteString("Edit history:\n")
	for i, item := range items {
		fmt.Fprintf(&b, "\n## Edit %d\nutterance: %s\nplan: %s\nbefore: %s\nafter: %s\n",
			i+1, item.Utterance, item.Plan, item.Before, item.After)
	}

	b.WriteString("\nRecord the tendencies shown by these edits, quoting the participant's utterances.")
	if current != "" {
		b.WriteString(" Fold new tendencies into the existing record, updating entries the new edits contradict.")
	}
	return b.String()
}
