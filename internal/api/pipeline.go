package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/autonote/internal/notebook"
	"github.com/MikeSquared-Agency/autonote/internal/processor"
)

const (
	defaultCaptureSeconds = 5
	maxCaptureSeconds     = 600
)

type processRequest struct {
	AudioPath  string `json:"audio_path"`
	Title      string `json:"title,omitempty"`
	CreateNote *bool  `json:"create_note,omitempty"`
}

type captureRequest struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Title           string  `json:"title,omitempty"`
	CreateNote      *bool   `json:"create_note,omitempty"`
}

func runOptions(title string, createNote *bool) processor.RunOptions {
	return processor.RunOptions{
		Title:    strings.TrimSpace(title),
		SkipNote: createNote != nil && !*createNote,
	}
}

// resultStatus maps a run outcome to a response code. The body is always
// the full result.
func resultStatus(res processor.Result) int {
	switch {
	case res.Success:
		return http.StatusOK
	case errors.Is(res.Err, processor.ErrMicrophoneUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// processFile handles POST /api/v1/process
func (s *Server) processFile(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if strings.TrimSpace(req.AudioPath) == "" {
		writeError(w, http.StatusBadRequest, "audio_path is required")
		return
	}

	res := s.pipeline.ProcessFile(r.Context(), req.AudioPath, runOptions(req.Title, req.CreateNote))
	writeJSON(w, resultStatus(res), res)
}

// captureLive handles POST /api/v1/capture
func (s *Server) captureLive(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.DurationSeconds == 0 {
		req.DurationSeconds = defaultCaptureSeconds
	}
	if req.DurationSeconds < 0 || req.DurationSeconds > maxCaptureSeconds {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("duration_seconds must be between 0 and %d", maxCaptureSeconds))
		return
	}

	duration := time.Duration(req.DurationSeconds * float64(time.Second))
	res := s.pipeline.ProcessLiveCapture(r.Context(), duration, runOptions(req.Title, req.CreateNote))
	writeJSON(w, resultStatus(res), res)
}

func (s *Server) browser(w http.ResponseWriter) (notebook.Browser, bool) {
	store := s.pipeline.Notes()
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "no note backend active")
		return nil, false
	}
	b, ok := store.(notebook.Browser)
	if !ok {
		writeError(w, http.StatusNotImplemented, fmt.Sprintf("%s backend cannot be browsed", store.Name()))
		return nil, false
	}
	return b, true
}

// listNotebooks handles GET /api/v1/notebooks
func (s *Server) listNotebooks(w http.ResponseWriter, r *http.Request) {
	b, ok := s.browser(w)
	if !ok {
		return
	}
	notebooks, err := b.ListNotebooks(r.Context())
	if err != nil {
		s.logger.Error("failed to list notebooks", "error", err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("list notebooks: %v", err))
		return
	}
	if notebooks == nil {
		notebooks = []notebook.Notebook{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notebooks": notebooks,
		"count":     len(notebooks),
	})
}

// searchNotes handles GET /api/v1/notes/search?q=
func (s *Server) searchNotes(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	b, ok := s.browser(w)
	if !ok {
		return
	}
	matches, err := b.Search(r.Context(), query)
	if errors.Is(err, notebook.ErrSearchUnsupported) {
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("note search failed", "query", query, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("search: %v", err))
		return
	}
	if matches == nil {
		matches = []notebook.SearchMatch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"matches": matches,
		"count":   len(matches),
	})
}

// noteReader is implemented by stores backed by a local note tree.
type noteReader interface {
	NoteContent(path string) (string, error)
	Stats() (notebook.Stats, error)
}

func (s *Server) reader(w http.ResponseWriter) (noteReader, bool) {
	store := s.pipeline.Notes()
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "no note backend active")
		return nil, false
	}
	nr, ok := store.(noteReader)
	if !ok {
		writeError(w, http.StatusNotImplemented, fmt.Sprintf("%s backend has no local note tree", store.Name()))
		return nil, false
	}
	return nr, true
}

// noteContent handles GET /api/v1/notes/content?path=
func (s *Server) noteContent(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	nr, ok := s.reader(w)
	if !ok {
		return
	}
	content, err := nr.NoteContent(path)
	if errors.Is(err, notebook.ErrNotFound) {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to read note", "path", path, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read note")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"path":    path,
		"content": content,
	})
}

// noteStats handles GET /api/v1/notes/stats
func (s *Server) noteStats(w http.ResponseWriter, r *http.Request) {
	nr, ok := s.reader(w)
	if !ok {
		return
	}
	st, err := nr.Stats()
	if err != nil {
		s.logger.Error("failed to collect note stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to collect note stats")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
