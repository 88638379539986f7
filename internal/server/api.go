package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tacchanmaru/talkedit/internal/session"
)

// SessionManager is the session-lifecycle surface the API drives.
type SessionManager interface {
	Start(ctx context.Context, params session.StartParams) (string, error)
	HandleInstruction(ctx context.Context, sessionID, text string) error
	StopRecording(sessionID string) error
	Complete(ctx context.Context, sessionID, finalText string) (session.ExperimentResult, error)
}

// ExperimentStore serves the experimenter dashboard.
type ExperimentStore interface {
	ListExperiments(participantID int) ([]session.ExperimentResult, error)
	GetExperiment(id int64) (session.ExperimentResult, error)
}

// Exporter mirrors completed experiments to a human-readable log. May be
// nil; export failures never fail the request.
type Exporter interface {
	Append(result session.ExperimentResult) error
}

type startSessionRequest struct {
	ParticipantID  int    `json:"participant_id"`
	TaskID         string `json:"task_id"`
	ExperimentType string `json:"experiment_type"`
	Practice       bool   `json:"practice"`
	Text           string `json:"text"`
	ImageBase64    string `json:"image_base64,omitempty"`
}

type instructionRequest struct {
	Text string `json:"text"`
}

type completeRequest struct {
	FinalText string `json:"final_text"`
}

func registerAPIRoutes(mux *http.ServeMux, manager SessionManager, store ExperimentStore, exporter Exporter) {
	mux.HandleFunc("POST /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		var req startSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}
		if req.ParticipantID <= 0 || strings.TrimSpace(req.TaskID) == "" {
			writeJSONError(w, http.StatusBadRequest, "participant_id and task_id are required")
			return
		}

		id, err := manager.Start(r.Context(), session.StartParams{
			ParticipantID:  req.ParticipantID,
			TaskID:         req.TaskID,
			ExperimentType: req.ExperimentType,
			Practice:       req.Practice,
			Text:           req.Text,
			ImageBase64:    req.ImageBase64,
		})
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, session.ErrSessionActive) {
				status = http.StatusConflict
			} else if strings.Contains(err.Error(), "unknown experiment type") {
				status = http.StatusBadRequest
			}
			writeJSONError(w, status, err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
	})

	mux.HandleFunc("POST /api/sessions/{id}/instruction", func(w http.ResponseWriter, r *http.Request) {
		var req instructionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeJSONError(w, http.StatusBadRequest, "text is required")
			return
		}

		err := manager.HandleInstruction(r.Context(), r.PathValue("id"), req.Text)
		switch {
		case err == nil:
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, session.ErrNoActiveSession):
			writeJSONError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, session.ErrManualSession):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		default:
			writeJSONError(w, http.StatusBadGateway, err.Error())
		}
	})

	mux.HandleFunc("POST /api/sessions/{id}/stop", func(w http.ResponseWriter, r *http.Request) {
		err := manager.StopRecording(r.PathValue("id"))
		switch {
		case err == nil:
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, session.ErrNoActiveSession):
			writeJSONError(w, http.StatusNotFound, err.Error())
		default:
			writeJSONError(w, http.StatusInternalServerError, err.Error())
		}
	})

	mux.HandleFunc("POST /api/sessions/{id}/complete", func(w http.ResponseWriter, r *http.Request) {
		var req completeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}

		result, err := manager.Complete(r.Context(), r.PathValue("id"), req.FinalText)
		switch {
		case err == nil:
		case errors.Is(err, session.ErrNoActiveSession):
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		default:
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if exporter != nil {
			if err := exporter.Append(result); err != nil {
				log.Printf("experiment export failed: %v", err)
			}
		}

		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("GET /api/experiments", func(w http.ResponseWriter, r *http.Request) {
		participantID := 0
		if raw := r.URL.Query().Get("participant"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "participant must be numeric")
				return
			}
			participantID = parsed
		}

		experiments, err := store.ListExperiments(participantID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list experiments: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, experiments)
	})

	mux.HandleFunc("GET /api/experiments/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid experiment id")
			return
		}

		experiment, err := store.GetExperiment(id)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, fmt.Sprintf("get experiment: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, experiment)
	})

	mux.HandleFunc("GET /api/experiments/{id}/audio", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid experiment id")
			return
		}

		experiment, err := store.GetExperiment(id)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "experiment not found")
			return
		}
		if experiment.AudioPath == "" {
			writeJSONError(w, http.StatusNotFound, "audio not available")
			return
		}

		cleanPath := filepath.Clean(experiment.AudioPath)
		if cleanPath == "" || cleanPath == "." || strings.Contains(cleanPath, "..") {
			writeJSONError(w, http.StatusForbidden, "invalid audio path")
			return
		}

		f, err := os.Open(cleanPath)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "audio file not found")
			return
		}
		defer func() { _ = f.Close() }()

		info, err := f.Stat()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("stat audio: %v", err))
			return
		}

		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Type", "audio/wav")
		http.ServeContent(w, r, filepath.Base(cleanPath), info.ModTime(), f)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
