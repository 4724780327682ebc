package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Run is one pipeline invocation.
type Run struct {
	ID              uuid.UUID `json:"id"`
	Source          string    `json:"source"`
	Mode            string    `json:"mode"` // "file" or "live"
	Success         bool      `json:"success"`
	Title           string    `json:"title,omitempty"`
	Transcription   string    `json:"transcription,omitempty"`
	Summary         string    `json:"summary,omitempty"`
	SummaryFallback bool      `json:"summary_fallback"`
	NoteCreated     bool      `json:"note_created"`
	NoteBackend     string    `json:"note_backend,omitempty"`
	NoteLocation    string    `json:"note_location,omitempty"`
	ProcessingTime  float64   `json:"processing_time"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// WriteRun inserts a run. Writing the same run ID twice is a no-op.
func (s *Store) WriteRun(ctx context.Context, r Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_runs (id, source, mode, success, title, transcription, summary, summary_fallback,
			note_created, note_backend, note_location, processing_time, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, r.Source, r.Mode, r.Success, r.Title, r.Transcription, r.Summary, r.SummaryFallback,
		r.NoteCreated, r.NoteBackend, r.NoteLocation, r.ProcessingTime, r.Error, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun fetches a run by ID.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, source, mode, success, title, transcription, summary, summary_fallback,
			note_created, note_backend, note_location, processing_time, error, created_at
		FROM pipeline_runs WHERE id = $1`, id)

	var r Run
	err := row.Scan(&r.ID, &r.Source, &r.Mode, &r.Success, &r.Title, &r.Transcription, &r.Summary, &r.SummaryFallback,
		&r.NoteCreated, &r.NoteBackend, &r.NoteLocation, &r.ProcessingTime, &r.Error, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &r, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, source, mode, success, title, transcription, summary, summary_fallback,
			note_created, note_backend, note_location, processing_time, error, created_at
		FROM pipeline_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Source, &r.Mode, &r.Success, &r.Title, &r.Transcription, &r.Summary, &r.SummaryFallback,
			&r.NoteCreated, &r.NoteBackend, &r.NoteLocation, &r.ProcessingTime, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Exchange is one assistant request and its outcome.
type Exchange struct {
	ID             uuid.UUID
	PromptType     string
	PromptText     string
	ConversationID string
	Response       any
	Error          string
	CreatedAt      time.Time
}

func (s *Store) WriteExchange(ctx context.Context, e Exchange) error {
	var response []byte
	if e.Response != nil {
		b, err := json.Marshal(e.Response)
		if err != nil {
			return fmt.Errorf("marshal response: %w", err)
		}
		response = b
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO assistant_exchanges (id, prompt_type, prompt_text, conversation_id, response, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.PromptType, e.PromptText, e.ConversationID, response, e.Error, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}
	return nil
}
