//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestIntegration_WriteAndGetRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := Run{
		ID:              uuid.New(),
		Source:          "/tmp/integration.wav",
		Mode:            "file",
		Success:         true,
		Title:           "AI Note 20240101_120000",
		Transcription:   "Hello, this is a test of the TTS AI Pipeline.",
		Summary:         "Hello, this is a test of the TTS AI Pipeline.",
		SummaryFallback: true,
		NoteCreated:     true,
		NoteBackend:     "local",
		NoteLocation:    "/tmp/notes/x.md",
		ProcessingTime:  0.42,
		CreatedAt:       time.Now().UTC().Truncate(time.Microsecond),
	}
	t.Cleanup(func() {
		s.pool.Exec(ctx, "DELETE FROM pipeline_runs WHERE id = $1", run.ID)
	})

	if err := s.WriteRun(ctx, run); err != nil {
		t.Fatalf("WriteRun failed: %v", err)
	}
	// Duplicate writes are ignored.
	if err := s.WriteRun(ctx, run); err != nil {
		t.Fatalf("second WriteRun failed: %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Title != run.Title || !got.SummaryFallback || got.NoteBackend != "local" || got.ProcessingTime != 0.42 {
		t.Errorf("unexpected run %+v", got)
	}

	if _, err := s.GetRun(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown run, got %v", err)
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	found := false
	for _, r := range runs {
		if r.ID == run.ID {
			found = true
		}
	}
	if !found {
		t.Error("expected written run in recent list")
	}
}

func TestIntegration_WriteExchange(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ex := Exchange{
		ID:             uuid.New(),
		PromptType:     "question",
		PromptText:     "Please help me with this question: What is the capital of France?",
		ConversationID: "conv-1",
		Response:       map[string]any{"result": "Paris"},
		CreatedAt:      time.Now().UTC(),
	}
	t.Cleanup(func() {
		s.pool.Exec(ctx, "DELETE FROM assistant_exchanges WHERE id = $1", ex.ID)
	})

	if err := s.WriteExchange(ctx, ex); err != nil {
		t.Fatalf("WriteExchange failed: %v", err)
	}

	var result string
	err := s.pool.QueryRow(ctx, "SELECT response->>'result' FROM assistant_exchanges WHERE id = $1", ex.ID).Scan(&result)
	if err != nil {
		t.Fatalf("query exchange failed: %v", err)
	}
	if result != "Paris" {
		t.Errorf("expected Paris, got %q", result)
	}
}
