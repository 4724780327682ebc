package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/autonote/internal/assistant"
	"github.com/MikeSquared-Agency/autonote/internal/notebook"
	"github.com/MikeSquared-Agency/autonote/internal/processor"
	"github.com/MikeSquared-Agency/autonote/internal/store"
)

// Pipeline is the part of the processor the API drives.
type Pipeline interface {
	ProcessFile(ctx context.Context, audioPath string, opts processor.RunOptions) processor.Result
	ProcessLiveCapture(ctx context.Context, duration time.Duration, opts processor.RunOptions) processor.Result
	Status() processor.Status
	Notes() notebook.Store
}

type Assistant interface {
	BuildPrompt(transcript string, pt assistant.PromptType, extra map[string]any) assistant.Prompt
	Send(ctx context.Context, p assistant.Prompt, opts assistant.Options) (assistant.Response, error)
	SessionInfo() assistant.SessionInfo
	ClearSession()
	SetPreference(key string, value any)
}

// ExchangeJournal records assistant exchanges.
type ExchangeJournal interface {
	WriteExchange(ctx context.Context, e store.Exchange) error
}

// RunHistory reads journaled runs.
type RunHistory interface {
	GetRun(ctx context.Context, id uuid.UUID) (*store.Run, error)
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
}

// Deps are the collaborators behind the routes. Assistant, Exchanges and
// Runs may be nil.
type Deps struct {
	Pipeline  Pipeline
	Assistant Assistant
	Exchanges ExchangeJournal
	Runs      RunHistory
	Logger    *slog.Logger
}

type Server struct {
	router *chi.Mux
	port   int
	http   *http.Server

	pipeline  Pipeline
	assistant Assistant
	exchanges ExchangeJournal
	runs      RunHistory
	logger    *slog.Logger
}

func NewServer(port int, apiToken string, d Deps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router: router,
		port:   port,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		pipeline:  d.Pipeline,
		assistant: d.Assistant,
		exchanges: d.Exchanges,
		runs:      d.Runs,
		logger:    logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/autonote/status", s.status)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))

		r.Post("/process", s.processFile)
		r.Post("/capture", s.captureLive)
		r.Get("/notebooks", s.listNotebooks)
		r.Get("/notes/search", s.searchNotes)
		r.Get("/notes/content", s.noteContent)
		r.Get("/notes/stats", s.noteStats)

		r.Get("/runs", s.listRuns)
		r.Get("/runs/{id}", s.getRun)

		r.Route("/assistant", func(r chi.Router) {
			r.Post("/prompt", s.buildPrompt)
			r.Post("/send", s.sendPrompt)
			r.Get("/session", s.sessionInfo)
			r.Delete("/session", s.clearSession)
			r.Put("/preferences/{key}", s.setPreference)
		})
	})

	return s
}

func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"agent": "autonote"}
	if s.pipeline != nil {
		body["pipeline"] = s.pipeline.Status()
	}
	body["assistant"] = s.assistant != nil
	writeJSON(w, http.StatusOK, body)
}
