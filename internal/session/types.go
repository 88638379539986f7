package session

import (
	"context"
	"time"

	"github.com/tacchanmaru/talkedit/internal/rewrite"
	"github.com/tacchanmaru/talkedit/internal/summary"
	"github.com/tacchanmaru/talkedit/internal/textdiff"
)

// Experiment types. Manual sessions record only start/end text; the other
// two drive the orchestrator, by voice or by typed prompt.
const (
	TypeManual        = "manual"
	TypeThinkAloud    = "think-aloud"
	TypeTextPrompting = "text-prompting"
)

// Utterance is one recognized speech segment waiting to be coalesced.
type Utterance struct {
	Text       string
	ReceivedAt time.Time
}

// Step is one applied edit in an experiment's audit trail.
type Step struct {
	Utterance string `json:"utterance"`
	Plan      string `json:"plan"`
	Before    string `json:"before"`
	After     string `json:"after"`
	Summary   string `json:"summary"`
}

// ExperimentResult is the complete record of one session, persisted at
// completion.
type ExperimentResult struct {
	ID              int64     `json:"id"`
	ParticipantID   int       `json:"participant_id"`
	TaskID          string    `json:"task_id"`
	ExperimentType  string    `json:"experiment_type"`
	Practice        bool      `json:"practice"`
	OriginalText    string    `json:"original_text"`
	FinalText       string    `json:"final_text"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	AudioPath       string    `json:"audio_path,omitempty"`
	Steps           []Step    `json:"steps"`
}

type Store interface {
	SaveExperiment(ctx context.Context, result ExperimentResult) (int64, error)
}

type Recorder interface {
	StartSession(sessionID string) error
	WriteFrame(frame []float32) error
	EndSession() (string, error)
}

type Rewriter interface {
	Rewrite(ctx context.Context, req rewrite.Request) (rewrite.Result, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, items []summary.Item, current string) (string, error)
}

type EventBroadcaster interface {
	BroadcastUtterance(sessionID, text string)
	BroadcastEditApplied(sessionID, plan, text string, diff []textdiff.Line)
	BroadcastSessionError(sessionID, message string)
	BroadcastRecordingStopped(sessionID string)
	BroadcastSessionCompleted(sessionID string, experimentID int64)
}
