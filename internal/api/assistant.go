package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/autonote/internal/assistant"
	"github.com/MikeSquared-Agency/autonote/internal/store"
)

type promptRequest struct {
	Text    string            `json:"text"`
	Type    string            `json:"type,omitempty"`
	Context map[string]any    `json:"context,omitempty"`
	Options assistant.Options `json:"options,omitempty"`
}

type preferenceRequest struct {
	Value any `json:"value"`
}

func (s *Server) requireAssistant(w http.ResponseWriter) bool {
	if s.assistant == nil {
		writeError(w, http.StatusServiceUnavailable, "assistant not configured")
		return false
	}
	return true
}

// decodePrompt reads a promptRequest and renders it. An empty type lets the
// text be classified.
func (s *Server) decodePrompt(w http.ResponseWriter, r *http.Request) (assistant.Prompt, promptRequest, bool) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return assistant.Prompt{}, req, false
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return assistant.Prompt{}, req, false
	}
	var pt assistant.PromptType
	if req.Type != "" {
		parsed, ok := assistant.ParsePromptType(req.Type)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown prompt type %q", req.Type))
			return assistant.Prompt{}, req, false
		}
		pt = parsed
	}
	return s.assistant.BuildPrompt(req.Text, pt, req.Context), req, true
}

// buildPrompt handles POST /api/v1/assistant/prompt
func (s *Server) buildPrompt(w http.ResponseWriter, r *http.Request) {
	if !s.requireAssistant(w) {
		return
	}
	p, _, ok := s.decodePrompt(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// sendPrompt handles POST /api/v1/assistant/send
func (s *Server) sendPrompt(w http.ResponseWriter, r *http.Request) {
	if !s.requireAssistant(w) {
		return
	}
	p, req, ok := s.decodePrompt(w, r)
	if !ok {
		return
	}

	resp, err := s.assistant.Send(r.Context(), p, req.Options)
	s.journalExchange(r.Context(), p, resp, err)
	if err != nil {
		s.logger.Error("assistant call failed", "prompt_type", p.Type, "error", err)
		code := http.StatusBadGateway
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusGatewayTimeout
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) journalExchange(ctx context.Context, p assistant.Prompt, resp assistant.Response, callErr error) {
	if s.exchanges == nil {
		return
	}
	e := store.Exchange{
		ID:             uuid.New(),
		PromptType:     string(p.Type),
		PromptText:     p.Text,
		ConversationID: s.assistant.SessionInfo().ConversationID,
		CreatedAt:      p.Timestamp,
	}
	if resp != nil {
		e.Response = resp
	}
	if callErr != nil {
		e.Error = callErr.Error()
	}

	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.exchanges.WriteExchange(jctx, e); err != nil {
		s.logger.Error("failed to journal assistant exchange", "exchange_id", e.ID, "error", err)
	}
}

// sessionInfo handles GET /api/v1/assistant/session
func (s *Server) sessionInfo(w http.ResponseWriter, r *http.Request) {
	if !s.requireAssistant(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.assistant.SessionInfo())
}

// clearSession handles DELETE /api/v1/assistant/session
func (s *Server) clearSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireAssistant(w) {
		return
	}
	s.assistant.ClearSession()
	w.WriteHeader(http.StatusNoContent)
}

// setPreference handles PUT /api/v1/assistant/preferences/{key}
func (s *Server) setPreference(w http.ResponseWriter, r *http.Request) {
	if !s.requireAssistant(w) {
		return
	}
	key := chi.URLParam(r, "key")
	var req preferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	s.assistant.SetPreference(key, req.Value)
	writeJSON(w, http.StatusOK, s.assistant.SessionInfo())
}
