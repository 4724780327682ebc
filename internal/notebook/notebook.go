// Package notebook persists transcription notes into a hierarchy of
// notebooks, sections and pages. Two stores implement it: Local writes
// Markdown or HTML files under a base directory, Graph writes OneNote pages
// through Microsoft Graph.
package notebook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultNotebook = "AI Transcriptions"
	DefaultSection  = "Transcriptions"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrSearchUnsupported = errors.New("search not supported by this store")
)

// Store is the capability the pipeline needs: persist one note and report
// where it landed.
type Store interface {
	// Name identifies the backend ("local" or "remote").
	Name() string
	// CreateTranscriptionNote stores the note in the default notebook and
	// section and returns its durable location (file path or page ID).
	CreateTranscriptionNote(ctx context.Context, in NoteInput) (string, error)
}

// Browser is implemented by stores that can enumerate and search notes.
type Browser interface {
	ListNotebooks(ctx context.Context) ([]Notebook, error)
	Search(ctx context.Context, query string) ([]SearchMatch, error)
}

// NoteInput is everything a note is rendered from.
type NoteInput struct {
	Title      string
	Transcript string
	Summary    string
	Metadata   *AudioMetadata
	Created    time.Time
}

// AudioMetadata describes the audio artifact a note was produced from.
type AudioMetadata struct {
	FileSizeBytes    int64     `json:"file_size_bytes"`
	FileSizeMB       float64   `json:"file_size_mb"`
	CreatedTimestamp time.Time `json:"created_timestamp"`
	// DurationSeconds is only known for readable WAV containers.
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
}

// Field is one rendered key/value pair.
type Field struct {
	Key   string
	Value string
}

// Fields returns the metadata in display order.
func (m *AudioMetadata) Fields() []Field {
	if m == nil {
		return nil
	}
	fields := []Field{
		{"file_size_bytes", fmt.Sprintf("%d", m.FileSizeBytes)},
		{"file_size_mb", fmt.Sprintf("%.2f", m.FileSizeMB)},
		{"created_timestamp", m.CreatedTimestamp.Format(isoLayout)},
	}
	if m.DurationSeconds != nil {
		fields = append(fields, Field{"duration_seconds", fmt.Sprintf("%.2f", *m.DurationSeconds)})
	}
	return fields
}

type Notebook struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Created   time.Time `json:"created"`
	NoteCount int       `json:"note_count,omitempty"`
	Path      string    `json:"path,omitempty"`
}

type Section struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SearchMatch struct {
	Path     string    `json:"path"`
	Notebook string    `json:"notebook"`
	Section  string    `json:"section"`
	Filename string    `json:"filename"`
	Modified time.Time `json:"modified"`
}

// Format selects the local note rendering.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ParseFormat maps a config value to a Format, defaulting to Markdown.
func ParseFormat(s string) Format {
	if Format(s) == FormatHTML {
		return FormatHTML
	}
	return FormatMarkdown
}

func (f Format) ext() string {
	if f == FormatHTML {
		return ".html"
	}
	return ".md"
}

const (
	isoLayout     = "2006-01-02T15:04:05.000000"
	displayLayout = "2006-01-02 15:04:05"
	fileLayout    = "20060102_150405"
)
