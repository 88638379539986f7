package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tacchanmaru/talkedit/internal/rewrite"
	"github.com/tacchanmaru/talkedit/internal/transcribe"
)

// Mic is the capture device surface the manager drives.
type Mic interface {
	Start() error
	Stop() error
}

// MicOpener opens a capture device that feeds frames to the callback.
type MicOpener func(onFrame func([]float32)) (Mic, error)

// TranscriberFactory builds a fresh streaming transcription client. Each
// session gets its own; the client lifecycle is single-use.
type TranscriberFactory func() (transcribe.Transcriber, error)

// StartParams describes the session being started.
type StartParams struct {
	ParticipantID  int
	TaskID         string
	ExperimentType string
	Practice       bool
	Text           string
	ImageBase64    string
}

// Manager owns the single active session: it wires mic, transcriber,
// coalescer, and orchestrator together at start and tears them down
// exactly once at stop.
type Manager struct {
	store          Store
	hub            EventBroadcaster
	recorder       Recorder
	rewriter       Rewriter
	summarizer     Summarizer
	mode           rewrite.Mode
	newTranscriber TranscriberFactory
	openMic        MicOpener

	mu     sync.Mutex
	active *activeSession
}

type activeSession struct {
	id        string
	params    StartParams
	startedAt time.Time
	audioPath string

	orch        *Orchestrator
	coalescer   *Coalescer
	transcriber transcribe.Transcriber
	mic         Mic

	stopOnce sync.Once
}

func NewManager(store Store, hub EventBroadcaster, recorder Recorder, rewriter Rewriter, summarizer Summarizer, mode rewrite.Mode, newTranscriber TranscriberFactory, openMic MicOpener) *Manager {
	return &Manager{
		store:          store,
		hub:            hub,
		recorder:       recorder,
		rewriter:       rewriter,
		summarizer:     summarizer,
		mode:           mode,
		newTranscriber: newTranscriber,
		openMic:        openMic,
	}
}

// Start begins a session. Only one session runs at a time; a second Start
// fails with ErrSessionActive. Think-aloud sessions additionally start the
// mic, the transcription stream, and the utterance coalescer.
func (m *Manager) Start(ctx context.Context, params StartParams) (string, error) {
	switch params.ExperimentType {
	case TypeManual, TypeThinkAloud, TypeTextPrompting:
	default:
		return "", fmt.Errorf("unknown experiment type %q", params.ExperimentType)
	}

	m.mu.Lock()
	if m.active != nil {
		m.mu.Unlock()
		return "", ErrSessionActive
	}

	now := time.Now().UTC()
	sess := &activeSession{
		id:        now.Format("20060102150405"),
		params:    params,
		startedAt: now,
	}
	m.active = sess
	m.mu.Unlock()

	if params.ExperimentType != TypeManual {
		sess.orch = NewOrchestrator(sess.id, params.Text, m.rewriter, m.summarizer, m.hub, m.mode)
		if params.ImageBase64 != "" {
			sess.orch.SetImage(params.ImageBase64)
		}
	}

	if params.ExperimentType == TypeThinkAloud {
		if err := m.startRecording(ctx, sess); err != nil {
			m.mu.Lock()
			m.active = nil
			m.mu.Unlock()
			return "", err
		}
	}

	log.Printf("session %s: started, participant=%d task=%s type=%s practice=%t",
		sess.id, params.ParticipantID, params.TaskID, params.ExperimentType, params.Practice)
	return sess.id, nil
}

func (m *Manager) startRecording(ctx context.Context, sess *activeSession) error {
	transcriber, err := m.newTranscriber()
	if err != nil {
		return fmt.Errorf("create transcriber: %w", err)
	}
	if err := transcriber.Start(ctx); err != nil {
		return fmt.Errorf("start transcription stream: %w", err)
	}
	sess.transcriber = transcriber

	if m.recorder != nil {
		if err := m.recorder.StartSession(sess.id); err != nil {
			transcriber.Stop()
			return fmt.Errorf("start audio archive: %w", err)
		}
	}

	mic, err := m.openMic(func(frame []float32) {
		transcriber.SendAudio(frame)
		if m.recorder != nil {
			if err := m.recorder.WriteFrame(frame); err != nil {
				log.Printf("session %s: audio archive write failed: %v", sess.id, err)
			}
		}
	})
	if err != nil {
		transcriber.Stop()
		if m.recorder != nil {
			_, _ = m.recorder.EndSession()
		}
		return fmt.Errorf("open microphone: %w", err)
	}
	if err := mic.Start(); err != nil {
		transcriber.Stop()
		if m.recorder != nil {
			_, _ = m.recorder.EndSession()
		}
		return fmt.Errorf("start microphone: %w", err)
	}
	sess.mic = mic

	sess.coalescer = NewCoalescer(func(text string) {
		if err := sess.orch.HandleInstruction(context.Background(), text); err != nil {
			log.Printf("session %s: instruction failed: %v", sess.id, err)
			if m.hub != nil {
				m.hub.BroadcastSessionError(sess.id, err.Error())
			}
		}
	})
	go sess.coalescer.Run()
	go m.consumeResults(sess)

	return nil
}

// consumeResults drains the transcription stream. Recognized text is
// broadcast and queued for coalescing; a stream error surfaces one error
// event and stops the recording through the normal path.
func (m *Manager) consumeResults(sess *activeSession) {
	for result := range sess.transcriber.Results() {
		if result.Err != nil {
			log.Printf("session %s: transcription error: %v", sess.id, result.Err)
			if m.hub != nil {
				m.hub.BroadcastSessionError(sess.id, result.Err.Error())
			}
			m.stopRecording(sess)
			return
		}
		if m.hub != nil {
			m.hub.BroadcastUtterance(sess.id, result.Text)
		}
		sess.coalescer.Push(result.Text)
	}
}

// StopRecording ends audio capture for the active session. Safe to call
// repeatedly and from any trigger: the user, an error handler, or
// shutdown.
func (m *Manager) StopRecording(sessionID string) error {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	m.stopRecording(sess)
	return nil
}

func (m *Manager) stopRecording(sess *activeSession) {
	sess.stopOnce.Do(func() {
		if sess.mic != nil {
			if err := sess.mic.Stop(); err != nil {
				log.Printf("session %s: mic stop failed: %v", sess.id, err)
			}
		}
		if sess.transcriber != nil {
			sess.transcriber.Stop()
		}
		if sess.coalescer != nil {
			sess.coalescer.Stop()
		}
		if sess.params.ExperimentType != TypeThinkAloud {
			return
		}
		if m.recorder != nil {
			path, err := m.recorder.EndSession()
			if err != nil {
				log.Printf("session %s: audio archive failed: %v", sess.id, err)
			} else {
				sess.audioPath = path
			}
		}
		if m.hub != nil {
			m.hub.BroadcastRecordingStopped(sess.id)
		}
		log.Printf("session %s: recording stopped", sess.id)
	})
}

// HandleInstruction feeds a typed instruction to the active session's
// orchestrator. Manual sessions reject it.
func (m *Manager) HandleInstruction(ctx context.Context, sessionID, text string) error {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	if sess.orch == nil {
		return ErrManualSession
	}
	return sess.orch.HandleInstruction(ctx, text)
}

// Complete stops the session, assembles the experiment record, and
// persists it atomically. Manual sessions save no steps.
func (m *Manager) Complete(ctx context.Context, sessionID, finalText string) (ExperimentResult, error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return ExperimentResult{}, err
	}

	m.stopRecording(sess)

	endedAt := time.Now().UTC()
	result := ExperimentResult{
		ParticipantID:   sess.params.ParticipantID,
		TaskID:          sess.params.TaskID,
		ExperimentType:  sess.params.ExperimentType,
		Practice:        sess.params.Practice,
		OriginalText:    sess.params.Text,
		FinalText:       finalText,
		StartedAt:       sess.startedAt,
		EndedAt:         endedAt,
		DurationSeconds: endedAt.Sub(sess.startedAt).Seconds(),
		AudioPath:       sess.audioPath,
	}

	if sess.orch != nil {
		sess.orch.Wait()
		for _, h := range sess.orch.History() {
			result.Steps = append(result.Steps, Step{
				Utterance: h.Utterance,
				Plan:      h.Plan,
				Before:    h.Before,
				After:     h.After,
				Summary:   h.Summary,
			})
		}
		if finalText == "" {
			result.FinalText = sess.orch.Text()
		}
	}

	id, err := m.store.SaveExperiment(ctx, result)
	if err != nil {
		return ExperimentResult{}, fmt.Errorf("save experiment: %w", err)
	}
	result.ID = id

	m.mu.Lock()
	m.active = nil
	m.mu.Unlock()

	if m.hub != nil {
		m.hub.BroadcastSessionCompleted(sess.id, id)
	}
	log.Printf("session %s: completed, experiment=%d steps=%d", sess.id, id, len(result.Steps))
	return result, nil
}

// Shutdown stops whatever session is running. Used on daemon exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sess := m.active
	m.mu.Unlock()
	if sess != nil {
		m.stopRecording(sess)
	}
}

// ActiveID returns the running session's id, or "".
func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return m.active.id
}

func (m *Manager) lookup(sessionID string) (*activeSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, ErrNoActiveSession
	}
	if m.active.id != sessionID {
		return nil, fmt.Errorf("session %s is not active: %w", sessionID, ErrNoActiveSession)
	}
	return m.active, nil
}
