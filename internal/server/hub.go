package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/tacchanmaru/talkedit/internal/textdiff"
)

// Hub fans session events out to websocket subscribers. Slow subscribers
// miss events rather than blocking the session pipeline.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastUtterance(sessionID, text string) {
	h.broadcastEvent(UtteranceEvent{
		Event:     newEvent("utterance", time.Now().UTC()),
		SessionID: sessionID,
		Text:      text,
	})
}

func (h *Hub) BroadcastEditApplied(sessionID, plan, text string, diff []textdiff.Line) {
	h.broadcastEvent(EditAppliedEvent{
		Event:     newEvent("edit_applied", time.Now().UTC()),
		SessionID: sessionID,
		Plan:      plan,
		Text:      text,
		Diff:      diff,
	})
}

func (h *Hub) BroadcastSessionError(sessionID, message string) {
	h.broadcastEvent(SessionErrorEvent{
		Event:     newEvent("session_error", time.Now().UTC()),
		SessionID: sessionID,
		Message:   message,
	})
}

func (h *Hub) BroadcastRecordingStopped(sessionID string) {
	h.broadcastEvent(RecordingStoppedEvent{
		Event:     newEvent("recording_stopped", time.Now().UTC()),
		SessionID: sessionID,
	})
}

func (h *Hub) BroadcastSessionCompleted(sessionID string, experimentID int64) {
	h.broadcastEvent(SessionCompletedEvent{
		Event:        newEvent("session_completed", time.Now().UTC()),
		SessionID:    sessionID,
		ExperimentID: experimentID,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	h.Broadcast(payload)
}
