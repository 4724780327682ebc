// Package store is the Postgres journal of pipeline runs and assistant
// exchanges.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id               uuid PRIMARY KEY,
	source           text NOT NULL,
	mode             text NOT NULL,
	success          boolean NOT NULL,
	title            text NOT NULL DEFAULT '',
	transcription    text NOT NULL DEFAULT '',
	summary          text NOT NULL DEFAULT '',
	summary_fallback boolean NOT NULL DEFAULT false,
	note_created     boolean NOT NULL DEFAULT false,
	note_backend     text NOT NULL DEFAULT '',
	note_location    text NOT NULL DEFAULT '',
	processing_time  double precision NOT NULL,
	error            text NOT NULL DEFAULT '',
	created_at       timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS pipeline_runs_created_at_idx ON pipeline_runs (created_at DESC);

CREATE TABLE IF NOT EXISTS assistant_exchanges (
	id              uuid PRIMARY KEY,
	prompt_type     text NOT NULL,
	prompt_text     text NOT NULL,
	conversation_id text NOT NULL DEFAULT '',
	response        jsonb,
	error           text NOT NULL DEFAULT '',
	created_at      timestamptz NOT NULL DEFAULT now()
);`

// EnsureSchema creates the journal tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
