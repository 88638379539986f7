package rewrite

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tacchanmaru/talkedit/internal/patch"
)

func completionServer(t *testing.T, content string, capture *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if capture != nil {
			if err := json.NewDecoder(r.Body).Decode(capture); err != nil {
				t.Fatalf("decode request: %v", err)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 123,
			"model":   "gpt-4.1-mini",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
}

func newTestClient(serverURL string, mode Mode) *Client {
	config := openai.DefaultConfig("test-key")
	config.BaseURL = serverURL + "/v1"
	return NewClientWithConfig(config, "gpt-4.1-mini", mode)
}

func TestRewrite_LineCommands(t *testing.T) {
	reply := `{"should_edit":"yes","plan":"delete line 2, add a note after line 1","content":[{"line":2,"command":"delete","text":""},{"line":1,"command":"add","text":"L1.5"}]}`
	server := completionServer(t, reply, nil)
	defer server.Close()

	client := newTestClient(server.URL, ModeLineCommands)
	result, err := client.Rewrite(context.Background(), Request{Text: "L1\nL2\nL3", Instruction: "delete line 2 and add a new line after 1"})
	if err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	if !result.ShouldEdit {
		t.Fatal("expected ShouldEdit true")
	}
	if len(result.Commands) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(result.Commands))
	}
	if got := patch.Apply("L1\nL2\nL3", result.Commands); got != "L1\nL1.5\nL3" {
		t.Fatalf("applied text = %q, want %q", got, "L1\nL1.5\nL3")
	}
}

func TestRewrite_WholeText(t *testing.T) {
	reply := `{"should_edit":"yes","plan":"tighten the opening","content":"New opening.\nRest unchanged."}`
	server := completionServer(t, reply, nil)
	defer server.Close()

	client := newTestClient(server.URL, ModeWholeText)
	result, err := client.Rewrite(context.Background(), Request{Text: "Old opening.\nRest unchanged.", Instruction: "tighten it"})
	if err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	if result.Text != "New opening.\nRest unchanged." {
		t.Fatalf("unexpected text: %q", result.Text)
	}
	if result.Commands != nil {
		t.Fatal("whole-text mode must not produce commands")
	}
}

func TestRewrite_NoEditNeeded(t *testing.T) {
	server := completionServer(t, `{"should_edit":"no","plan":"","content":[]}`, nil)
	defer server.Close()

	client := newTestClient(server.URL, ModeLineCommands)
	result, err := client.Rewrite(context.Background(), Request{Text: "a", Instruction: "just reading it aloud"})
	if err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	if result.ShouldEdit {
		t.Fatal("expected ShouldEdit false")
	}
}

func TestRewrite_MalformedResponse(t *testing.T) {
	cases := []struct {
		name  string
		reply string
	}{
		{"not json", "sorry, I cannot help with that"},
		{"wrong should_edit", `{"should_edit":"maybe","plan":"","content":[]}`},
		{"content wrong shape", `{"should_edit":"yes","plan":"p","content":"text where commands expected"}`},
		{"unknown command", `{"should_edit":"yes","plan":"p","content":[{"line":1,"command":"swap","text":"x"}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := completionServer(t, tc.reply, nil)
			defer server.Close()

			client := newTestClient(server.URL, ModeLineCommands)
			_, err := client.Rewrite(context.Background(), Request{Text: "a", Instruction: "x"})
			if !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("expected ErrMalformedResponse, got %v", err)
			}
		})
	}
}

func TestRewrite_FencedJSONAccepted(t *testing.T) {
	reply := "```json\n{\"should_edit\":\"yes\",\"plan\":\"p\",\"content\":[{\"line\":1,\"command\":\"modify\",\"text\":\"x\"}]}\n```"
	server := completionServer(t, reply, nil)
	defer server.Close()

	client := newTestClient(server.URL, ModeLineCommands)
	result, err := client.Rewrite(context.Background(), Request{Text: "a", Instruction: "x"})
	if err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	if len(result.Commands) != 1 || result.Commands[0].Op != patch.OpModify {
		t.Fatalf("unexpected commands: %v", result.Commands)
	}
}

func TestRewrite_HistoryBoundedToWindow(t *testing.T) {
	var captured openai.ChatCompletionRequest
	server := completionServer(t, `{"should_edit":"no","plan":"","content":[]}`, &captured)
	defer server.Close()

	history := []HistoryItem{
		{Utterance: "first"}, {Utterance: "second"}, {Utterance: "third"},
		{Utterance: "fourth"}, {Utterance: "fifth"},
	}

	client := newTestClient(server.URL, ModeLineCommands)
	if _, err := client.Rewrite(context.Background(), Request{Text: "a", Instruction: "x", History: history}); err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}

	var historyPart string
	for _, msg := range captured.Messages {
		for _, part := range msg.MultiContent {
			if strings.HasPrefix(part.Text, "Edit history:") {
				historyPart = part.Text
			}
		}
	}
	if historyPart == "" {
		t.Fatal("expected an edit-history part in the request")
	}
	for _, old := range []string{"first", "second"} {
		if strings.Contains(historyPart, old) {
			t.Errorf("history should be bounded to the last %d items, found %q", historyWindow, old)
		}
	}
	for _, recent := range []string{"third", "fourth", "fifth"} {
		if !strings.Contains(historyPart, recent) {
			t.Errorf("expected recent item %q in history", recent)
		}
	}
}

func TestNumberLines(t *testing.T) {
	got := NumberLines("first\n\nthird\n")
	want := "1: first\n3: third"
	if got != want {
		t.Fatalf("NumberLines = %q, want %q", got, want)
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
	}
	for _, tc := range cases {
		if got := stripCodeFence(tc.in); got != tc.want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
