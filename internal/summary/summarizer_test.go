package summary

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tacchanmaru/talkedit/internal/llm"
)

type fakeLLM struct {
	reply string
	err   error
	calls int
	last  []llm.Message
}

func (f *fakeLLM) Complete(_ context.Context, messages []llm.Message, _ ...llm.CompleteOption) (string, error) {
	f.calls++
	f.last = messages
	return f.reply, f.err
}

func twoItems() []Item {
	return []Item{
		{Utterance: "make it casual", Plan: "relax the tone", Before: "Dear Sir", After: "Hi"},
		{Utterance: "list the size", Plan: "add a size bullet", Before: "Hi", After: "Hi\n- size: 20cm"},
	}
}

func TestSummarize_SkipsBelowTwoItems(t *testing.T) {
	client := &fakeLLM{reply: "should not be used"}
	s := New(client)

	got, err := s.Summarize(context.Background(), []Item{{Utterance: "only one"}}, "existing")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if got != "existing" {
		t.Fatalf("expected current summary passed through, got %q", got)
	}
	if client.calls != 0 {
		t.Fatalf("expected no model calls, got %d", client.calls)
	}
}

func TestSummarize_IncludesHistoryAndCurrent(t *testing.T) {
	client := &fakeLLM{reply: "- \"make it casual\" — prefers casual tone"}
	s := New(client)

	got, err := s.Summarize(context.Background(), twoItems(), "- old tendency")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if !strings.Contains(got, "casual") {
		t.Fatalf("unexpected summary: %q", got)
	}

	if len(client.last) != 2 {
		t.Fatalf("expected system+user messages, got %d", len(client.last))
	}
	user := client.last[1].Content
	for _, want := range []string{"make it casual", "list the size", "- old tendency"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
}

func TestSummarize_PropagatesError(t *testing.T) {
	wantErr := errors.New("rate limited")
	s := New(&fakeLLM{err: wantErr})

	_, err := s.Summarize(context.Background(), twoItems(), "")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped model error, got %v", err)
	}
}
