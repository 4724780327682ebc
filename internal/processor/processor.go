// Package processor runs the note pipeline: transcribe, summarize, then
// persist a note through the one active notebook store.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/autonote/internal/capture"
	"github.com/MikeSquared-Agency/autonote/internal/hermes"
	"github.com/MikeSquared-Agency/autonote/internal/notebook"
	"github.com/MikeSquared-Agency/autonote/internal/store"
	"github.com/MikeSquared-Agency/autonote/internal/summarize"
)

// Messages reported in Result.Error.
const (
	MsgTranscriptionFailed    = "Failed to transcribe audio"
	MsgMicrophoneUnavailable  = "Microphone component not available"
	MsgInternalError          = "Internal error while processing audio"
	titlePrefix               = "AI Note "
	titleLayout               = "20060102_150405"
	defaultCaptureGracePeriod = 10 * time.Second
)

var (
	ErrTranscriptionFailed   = errors.New("transcription failed")
	ErrMicrophoneUnavailable = errors.New("microphone unavailable")
	ErrInternal              = errors.New("internal error")
)

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

type Recorder interface {
	RecordAndTranscribe(ctx context.Context, duration time.Duration) (capture.Recording, error)
}

// Journal records finished runs.
type Journal interface {
	WriteRun(ctx context.Context, r store.Run) error
}

type Publisher interface {
	Publish(subject string, data any) error
}

// Result is the outcome of one pipeline run. It is returned by value and
// never touched by the Processor afterwards.
type Result struct {
	RunID           uuid.UUID `json:"run_id"`
	Success         bool      `json:"success"`
	Source          string    `json:"source"`
	CapturedAt      time.Time `json:"captured_at"`
	Transcription   string    `json:"transcription,omitempty"`
	Summary         string    `json:"summary,omitempty"`
	SummaryFallback bool      `json:"summary_fallback"`
	Title           string    `json:"title,omitempty"`
	NoteCreated     bool      `json:"note_created"`
	NoteBackend     string    `json:"note_backend"`
	NoteLocation    string    `json:"note_location,omitempty"`
	ProcessingTime  float64   `json:"processing_time"`
	Error           string    `json:"error,omitempty"`

	// Err is the sentinel behind Error, for callers that switch on it.
	Err error `json:"-"`
}

// RunOptions tune a single run. The zero value creates a note with a
// generated title.
type RunOptions struct {
	Title    string
	SkipNote bool
}

// Deps are the collaborators of a Processor. Nil optional fields mean the
// collaborator is not configured.
type Deps struct {
	Transcriber  Transcriber
	Summarizer   summarize.Summarizer
	Bounds       summarize.Bounds
	Recorder     Recorder
	Notes        Selection
	Capabilities Capabilities
	Journal      Journal
	Events       Publisher
	Logger       *slog.Logger
}

// Processor orchestrates the note pipeline.
type Processor struct {
	transcriber Transcriber
	summarizer  summarize.Summarizer
	bounds      summarize.Bounds
	recorder    Recorder
	notes       Selection
	caps        Capabilities
	journal     Journal
	events      Publisher
	logger      *slog.Logger

	now          func() time.Time
	tempDir      string
	captureGrace time.Duration
}

func New(d Deps) *Processor {
	if d.Notes.Backend == "" {
		d.Notes.Backend = BackendNone
	}
	return &Processor{
		transcriber:  d.Transcriber,
		summarizer:   d.Summarizer,
		bounds:       d.Bounds,
		recorder:     d.Recorder,
		notes:        d.Notes,
		caps:         d.Capabilities,
		journal:      d.Journal,
		events:       d.Events,
		logger:       d.Logger,
		now:          time.Now,
		captureGrace: defaultCaptureGracePeriod,
	}
}

// Status describes the processor's wiring.
type Status struct {
	NoteBackend  string       `json:"note_backend"`
	Downgraded   bool         `json:"downgraded"`
	Reason       string       `json:"reason,omitempty"`
	Capabilities Capabilities `json:"capabilities"`
}

func (p *Processor) Status() Status {
	return Status{
		NoteBackend:  p.notes.Backend,
		Downgraded:   p.notes.Downgraded,
		Reason:       p.notes.Reason,
		Capabilities: p.caps,
	}
}

// Notes returns the active notebook store, or nil.
func (p *Processor) Notes() notebook.Store { return p.notes.Store }

func (p *Processor) newResult(source string) Result {
	return Result{
		RunID:       uuid.New(),
		Source:      source,
		CapturedAt:  p.now(),
		NoteBackend: p.notes.Backend,
	}
}

// ProcessFile transcribes the audio file at audioPath, summarizes the
// transcript and stores a note. Only a transcription failure fails the run.
func (p *Processor) ProcessFile(ctx context.Context, audioPath string, opts RunOptions) (res Result) {
	start := p.now()
	res = p.newResult(audioPath)
	defer p.finish(ctx, &res, "file", start)

	p.logger.Info("processing audio file", "run_id", res.RunID, "audio_path", audioPath)

	text, err := p.transcribe(ctx, audioPath)
	if err != nil {
		p.logger.Error("transcription failed", "run_id", res.RunID, "audio_path", audioPath, "error", err)
		p.fail(&res, fmt.Errorf("%w: %w", ErrTranscriptionFailed, err), MsgTranscriptionFailed)
		return res
	}

	p.complete(ctx, &res, text, audioPath, opts)
	return res
}

// ProcessLiveCapture records for duration, transcribes and stores a note.
// The recording is written to a temporary file for metadata and removed
// before returning, whatever the outcome.
func (p *Processor) ProcessLiveCapture(ctx context.Context, duration time.Duration, opts RunOptions) (res Result) {
	start := p.now()
	res = p.newResult("live")
	defer p.finish(ctx, &res, "live", start)

	if p.recorder == nil || p.caps.Capture != Available {
		p.logger.Warn("live capture requested without a microphone", "run_id", res.RunID, "capture", p.caps.Capture)
		p.fail(&res, ErrMicrophoneUnavailable, MsgMicrophoneUnavailable)
		return res
	}

	p.logger.Info("starting live capture", "run_id", res.RunID, "duration", duration)

	captureCtx, cancel := context.WithTimeout(ctx, duration+p.captureGrace)
	rec, err := p.recorder.RecordAndTranscribe(captureCtx, duration)
	cancel()
	if err == nil && strings.TrimSpace(rec.Transcript) == "" {
		err = capture.ErrEmptyTranscript
	}
	if err != nil {
		p.logger.Error("live capture failed", "run_id", res.RunID, "error", err)
		p.fail(&res, fmt.Errorf("%w: %w", ErrTranscriptionFailed, err), MsgTranscriptionFailed)
		return res
	}
	res.CapturedAt = p.now()

	audioPath, cleanup, err := p.materialize(rec.Audio)
	defer cleanup()
	if err != nil {
		p.logger.Warn("could not write capture to disk, metadata skipped", "run_id", res.RunID, "error", err)
	}

	p.complete(ctx, &res, strings.TrimSpace(rec.Transcript), audioPath, opts)
	return res
}

// materialize writes audio to a temporary .wav file. cleanup is always
// safe to call.
func (p *Processor) materialize(audio []byte) (path string, cleanup func(), err error) {
	cleanup = func() {}
	if len(audio) == 0 {
		return "", cleanup, fmt.Errorf("empty recording")
	}
	f, err := os.CreateTemp(p.tempDir, "autonote-capture-*.wav")
	if err != nil {
		return "", cleanup, fmt.Errorf("create temp audio: %w", err)
	}
	cleanup = func() {
		if err := os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("failed to remove temp audio", "path", f.Name(), "error", err)
		}
	}
	if _, err := f.Write(audio); err != nil {
		f.Close()
		return "", cleanup, fmt.Errorf("write temp audio: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", cleanup, fmt.Errorf("close temp audio: %w", err)
	}
	return f.Name(), cleanup, nil
}

func (p *Processor) transcribe(ctx context.Context, audioPath string) (string, error) {
	if p.transcriber == nil || p.caps.Transcription == Unconfigured {
		return "", fmt.Errorf("no transcription service configured")
	}
	text, err := p.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty transcript")
	}
	return text, nil
}

// complete runs the steps after a successful transcription. Failures here
// degrade the result but never fail it.
func (p *Processor) complete(ctx context.Context, res *Result, text, audioPath string, opts RunOptions) {
	res.Success = true
	res.Transcription = text
	res.Summary, res.SummaryFallback = p.summarize(ctx, res.RunID, text)

	if opts.SkipNote {
		return
	}
	if p.notes.Store == nil {
		p.logger.Info("no note backend active, skipping note", "run_id", res.RunID, "reason", p.notes.Reason)
		return
	}

	var meta *notebook.AudioMetadata
	if audioPath != "" {
		m, err := ExtractMetadata(audioPath)
		if err != nil {
			p.logger.Warn("audio metadata unavailable", "run_id", res.RunID, "error", err)
		} else {
			meta = m
		}
	}

	created := p.now()
	title := opts.Title
	if title == "" {
		title = titlePrefix + created.Format(titleLayout)
	}
	res.Title = title

	location, err := p.notes.Store.CreateTranscriptionNote(ctx, notebook.NoteInput{
		Title:      title,
		Transcript: text,
		Summary:    res.Summary,
		Metadata:   meta,
		Created:    created,
	})
	if err != nil || location == "" {
		p.logger.Error("note creation failed", "run_id", res.RunID, "backend", p.notes.Backend, "error", err)
		return
	}
	res.NoteCreated = true
	res.NoteLocation = location
}

// summarize returns the summary, or the truncated transcript and true when
// no summary could be produced.
func (p *Processor) summarize(ctx context.Context, runID uuid.UUID, text string) (string, bool) {
	if p.summarizer != nil && p.caps.Summarization == Available {
		summary, err := p.summarizer.Summarize(ctx, text, p.bounds)
		if err == nil && strings.TrimSpace(summary) != "" {
			return strings.TrimSpace(summary), false
		}
		p.logger.Warn("summarization failed, using truncated transcript", "run_id", runID, "error", err)
	}
	return summarize.Truncate(text), true
}

func (p *Processor) fail(res *Result, err error, msg string) {
	res.Success = false
	res.Err = err
	res.Error = msg
}

// finish is deferred by every entry point. It also turns a panic in a
// collaborator into a failed result.
func (p *Processor) finish(ctx context.Context, res *Result, mode string, start time.Time) {
	if r := recover(); r != nil {
		p.logger.Error("run panicked", "run_id", res.RunID, "panic", r, "stack", string(debug.Stack()))
		p.fail(res, fmt.Errorf("%w: %v", ErrInternal, r), MsgInternalError)
	}
	res.ProcessingTime = p.now().Sub(start).Seconds()

	p.logger.Info("run finished",
		"run_id", res.RunID,
		"success", res.Success,
		"note_created", res.NoteCreated,
		"summary_fallback", res.SummaryFallback,
		"processing_time", res.ProcessingTime,
	)

	if p.journal != nil {
		jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		err := p.journal.WriteRun(jctx, store.Run{
			ID:              res.RunID,
			Source:          res.Source,
			Mode:            mode,
			Success:         res.Success,
			Title:           res.Title,
			Transcription:   res.Transcription,
			Summary:         res.Summary,
			SummaryFallback: res.SummaryFallback,
			NoteCreated:     res.NoteCreated,
			NoteBackend:     res.NoteBackend,
			NoteLocation:    res.NoteLocation,
			ProcessingTime:  res.ProcessingTime,
			Error:           res.Error,
			CreatedAt:       start,
		})
		cancel()
		if err != nil {
			p.logger.Error("failed to journal run", "run_id", res.RunID, "error", err)
		}
	}

	p.publish(*res)
}

func (p *Processor) publish(res Result) {
	if p.events == nil {
		return
	}
	if err := p.events.Publish(hermes.SubjectRunCompleted, res); err != nil {
		p.logger.Error("failed to publish run completed", "run_id", res.RunID, "error", err)
	}
	if !res.NoteCreated {
		return
	}
	if err := p.events.Publish(hermes.SubjectNoteCreated, hermes.NoteCreatedEvent{
		EventID:   uuid.New(),
		RunID:     res.RunID,
		Title:     res.Title,
		Backend:   res.NoteBackend,
		Location:  res.NoteLocation,
		Timestamp: p.now().UTC(),
	}); err != nil {
		p.logger.Error("failed to publish note created", "run_id", res.RunID, "error", err)
	}
}
