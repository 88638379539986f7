// Package rewrite calls the text-rewrite model: it turns a participant's
// spoken or typed instruction plus the current text into structured edit
// commands (or a whole replacement text, depending on the configured
// response mode).
package rewrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tacchanmaru/talkedit/internal/patch"
)

// ErrMalformedResponse reports a model reply that could not be parsed into
// the expected JSON structure. Callers treat it as "no edit" and drop the
// instruction without retrying.
var ErrMalformedResponse = errors.New("rewrite: malformed model response")

// Mode selects the response shape the model is asked for. It is a fixed
// property of the editing surface, not negotiated per call.
type Mode int

const (
	// ModeLineCommands requests line-addressed add/delete/modify commands.
	ModeLineCommands Mode = iota
	// ModeWholeText requests a full replacement text.
	ModeWholeText
)

// HistoryItem is one prior edit shown to the model for context.
type HistoryItem struct {
	Utterance string
	Plan      string
	Before    string
	After     string
}

// Request carries everything the model sees for one instruction.
type Request struct {
	Text           string
	Instruction    string
	ImageBase64    string
	History        []HistoryItem
	HistorySummary string
}

// Result is the parsed model decision.
type Result struct {
	ShouldEdit bool
	Plan       string
	Commands   []patch.Command // ModeLineCommands only
	Text       string          // ModeWholeText only
}

// historyWindow bounds how many prior edits are shown to the model.
const historyWindow = 3

type Client struct {
	client *openai.Client
	model  string
	mode   Mode
}

func NewClient(apiKey, model string, mode Mode) *Client {
	return NewClientWithConfig(openai.DefaultConfig(apiKey), model, mode)
}

func NewClientWithConfig(config openai.ClientConfig, model string, mode Mode) *Client {
	if strings.TrimSpace(model) == "" {
		model = "gpt-4.1-mini"
	}
	return &Client{client: openai.NewClientWithConfig(config), model: model, mode: mode}
}

// Rewrite asks the model whether and how to edit. A "no edit" decision is
// not an error; a reply that cannot be parsed is ErrMalformedResponse.
func (c *Client) Rewrite(ctx context.Context, req Request) (Result, error) {
	messages := c.buildMessages(req)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		// Exactly zero; go-openai drops a zero temperature from the body.
		Temperature: math.SmallestNonzeroFloat32,
	})
	if err != nil {
		return Result{}, fmt.Errorf("rewrite completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("rewrite: no choices in response")
	}

	return parseResponse(resp.Choices[0].Message.Content, c.mode)
}

func (c *Client) buildMessages(req Request) []openai.ChatCompletionMessage {
	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: "Original text:\n" + NumberLines(req.Text)},
		{Type: openai.ChatMessagePartTypeText, Text: "Participant instruction: " + req.Instruction},
	}

	if req.HistorySummary != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: "Constraints from earlier edits:\n" + req.HistorySummary,
		})
	}

	if text := formatHistory(req.History); text != "" {
		parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: text})
	}

	if req.ImageBase64 != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: "data:image/jpeg;base64," + req.ImageBase64,
			},
		})
	}

	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt()},
		{Role: openai.ChatMessageRoleUser, MultiContent: parts},
	}
}

func formatHistory(history []HistoryItem) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	var b strings.Builder
	b.WriteString("Edit history:\n")
	for _, h := range history {
		fmt.Fprintf(&b, "- original: %s\n  instruction: %s\n  plan: %s\n  result: %s\n", h.Before, h.Utterance, h.Plan, h.After)
	}
	return b.String()
}

// NumberLines prefixes each non-blank line with its 1-indexed line number
// ("N: line"). Blank lines are skipped so the model is not tempted to
// address them, but numbering still counts them.
func NumberLines(text string) string {
	lines := strings.Split(text, "\n")
	numbered := make([]string, 0, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		numbered = append(numbered, fmt.Sprintf("%d: %s", i+1, line))
	}
	return strings.Join(numbered, "\n")
}

// wireResponse is the JSON the model is instructed to produce. Content is
// raw because its shape depends on the mode.
type wireResponse struct {
	ShouldEdit string          `json:"should_edit"`
	Plan       string          `json:"plan"`
	Content    json.RawMessage `json:"content"`
}

func parseResponse(raw string, mode Mode) (Result, error) {
	cleaned := stripCodeFence(raw)

	var wire wireResponse
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	switch wire.ShouldEdit {
	case "no":
		return Result{ShouldEdit: false}, nil
	case "yes":
	default:
		return Result{}, fmt.Errorf("%w: should_edit=%q", ErrMalformedResponse, wire.ShouldEdit)
	}

	result := Result{ShouldEdit: true, Plan: wire.Plan}

	switch mode {
	case ModeWholeText:
		if err := json.Unmarshal(wire.Content, &result.Text); err != nil {
			return Result{}, fmt.Errorf("%w: content is not a string: %v", ErrMalformedResponse, err)
		}
	default:
		if err := json.Unmarshal(wire.Content, &result.Commands); err != nil {
			return Result{}, fmt.Errorf("%w: content is not a command list: %v", ErrMalformedResponse, err)
		}
		for _, cmd := range result.Commands {
			switch cmd.Op {
			case patch.OpAdd, patch.OpDelete, patch.OpModify:
			default:
				return Result{}, fmt.Errorf("%w: unknown command %q", ErrMalformedResponse, cmd.Op)
			}
		}
	}

	return result, nil
}

// stripCodeFence removes a surrounding markdown code fence if the model
// wrapped its JSON in one.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func (c *Client) systemPrompt() string {
	var b strings.Builder
	b.WriteString(`You are an assistant that improves a marketplace product description (or an email reply) based on a participant's spoken feedback.

Given the original text (with line numbers) and the participant's utterance, do the following in one pass:

Step 1: decide whether an edit is needed.
- Concrete change requests and vague feedback ("hard to read", "missing details") both warrant an edit.
- Coughs, filler words, unrelated talk, or the participant merely reading the text aloud do not.
- "Undo"-style utterances warrant an edit: restore the relevant earlier state from the history.

Step 2: if an edit is needed, plan it.
- Preserve the existing style (bullet lists, tone) unless asked otherwise.
- Respect any listed constraints from earlier edits.
- Make the minimal change; do not mention lines that stay the same.
- Keep additions modest so the text stays easy to re-read.
- Avoid duplicate items and stray blank lines, especially around bullet lists.

`)

	if c.mode == ModeWholeText {
		b.WriteString(`Respond with JSON only, no explanation:
{"should_edit": "yes" or "no", "plan": "<short plan the participant can confirm at a glance>", "content": "<the full edited text>"}

When should_edit is "no", plan is an empty string and content is the original text unchanged.`)
	} else {
		b.WriteString(`Respond with JSON only, no explanation:
{"should_edit": "yes" or "no", "plan": "<short plan the participant can confirm at a glance>", "content": [{"line": <number>, "command": "add" | "delete" | "modify", "text": "<new text, empty for delete>"}]}

Line numbers refer to the original text. "add" inserts after the given line. When should_edit is "no", plan is an empty string and content is an empty array.`)
	}

	return b.String()
}
