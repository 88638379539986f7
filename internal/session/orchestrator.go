package session

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/tacchanmaru/talkedit/internal/patch"
	"github.com/tacchanmaru/talkedit/internal/rewrite"
	"github.com/tacchanmaru/talkedit/internal/summary"
	"github.com/tacchanmaru/talkedit/internal/textdiff"
)

// HistoryItem is one applied edit plus the summary that was current when
// it was made.
type HistoryItem struct {
	Utterance string
	Plan      string
	Before    string
	After     string
	Summary   string
}

// Orchestrator turns instructions into applied edits. It holds the
// authoritative working text for one session and serializes edits:
// HandleInstruction runs under a lock, so edits apply strictly in arrival
// order.
type Orchestrator struct {
	sessionID  string
	rewriter   Rewriter
	summarizer Summarizer
	hub        EventBroadcaster
	mode       rewrite.Mode

	mu          sync.Mutex
	text        string
	imageBase64 string
	history     []HistoryItem
	summary     string

	summaryWG sync.WaitGroup
}

func NewOrchestrator(sessionID, text string, rewriter Rewriter, summarizer Summarizer, hub EventBroadcaster, mode rewrite.Mode) *Orchestrator {
	return &Orchestrator{
		sessionID:  sessionID,
		text:       text,
		rewriter:   rewriter,
		summarizer: summarizer,
		hub:        hub,
		mode:       mode,
	}
}

// SetImage attaches a task image sent along with every rewrite request.
func (o *Orchestrator) SetImage(imageBase64 string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.imageBase64 = imageBase64
}

// HandleInstruction asks the rewrite model what to do with the instruction
// and applies the answer. A "no edit" verdict drops the instruction
// silently. A successful edit updates the working text, extends the
// history, broadcasts the new state with a line diff, and refreshes the
// tendency summary in the background once enough history exists.
func (o *Orchestrator) HandleInstruction(ctx context.Context, instruction string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	req := rewrite.Request{
		Text:           o.text,
		Instruction:    instruction,
		ImageBase64:    o.imageBase64,
		History:        o.rewriteHistory(),
		HistorySummary: o.summary,
	}

	result, err := o.rewriter.Rewrite(ctx, req)
	if err != nil {
		return fmt.Errorf("rewrite instruction: %w", err)
	}
	if !result.ShouldEdit {
		log.Printf("session %s: no edit for instruction %q", o.sessionID, instruction)
		return nil
	}

	before := o.text
	var after string
	switch o.mode {
	case rewrite.ModeWholeText:
		after = result.Text
	default:
		after = patch.Apply(before, result.Commands)
	}

	o.text = after
	o.history = append(o.history, HistoryItem{
		Utterance: instruction,
		Plan:      result.Plan,
		Before:    before,
		After:     after,
		Summary:   o.summary,
	})

	if o.hub != nil {
		o.hub.BroadcastEditApplied(o.sessionID, result.Plan, after, textdiff.Lines(before, after))
	}

	if o.summarizer != nil && len(o.history) >= 2 {
		items := o.summaryItems()
		current := o.summary
		o.summaryWG.Add(1)
		go o.refreshSummary(items, current)
	}

	return nil
}

// Text returns the current working text.
func (o *Orchestrator) Text() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.text
}

// History returns a copy of the applied edits, oldest first.
func (o *Orchestrator) History() []HistoryItem {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]HistoryItem, len(o.history))
	copy(out, o.history)
	return out
}

// Wait blocks until background summary refreshes settle.
func (o *Orchestrator) Wait() {
	o.summaryWG.Wait()
}

// refreshSummary recomputes the participant-tendency summary. Failures are
// logged and swallowed; the previous summary stays in effect.
func (o *Orchestrator) refreshSummary(items []summary.Item, current string) {
	defer o.summaryWG.Done()

	updated, err := o.summarizer.Summarize(context.Background(), items, current)
	if err != nil {
		log.Printf("session %s: summary refresh failed: %v", o.sessionID, err)
		return
	}

	o.mu.Lock()
	o.summary = updated
	o.mu.Unlock()
}

// rewriteHistory converts the edit history for the rewrite prompt. The
// rewrite client bounds the window itself.
func (o *Orchestrator) rewriteHistory() []rewrite.HistoryItem {
	items := make([]rewrite.HistoryItem, 0, len(o.history))
	for _, h := range o.history {
		items = append(items, rewrite.HistoryItem{
			Utterance: h.Utterance,
			Plan:      h.Plan,
			Before:    h.Before,
			After:     h.After,
		})
	}
	return items
}

func (o *Orchestrator) summaryItems() []summary.Item {
	items := make([]summary.Item, 0, len(o.history))
	for _, h := range o.history {
		items = append(items, summary.Item{
			Utterance: h.Utterance,
			Plan:      h.Plan,
			Before:    h.Before,
			After:     h.After,
		})
	}
	return items
}
