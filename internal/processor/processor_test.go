package processor

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/autonote/internal/capture"
	"github.com/MikeSquared-Agency/autonote/internal/hermes"
	"github.com/MikeSquared-Agency/autonote/internal/notebook"
	"github.com/MikeSquared-Agency/autonote/internal/store"
	"github.com/MikeSquared-Agency/autonote/internal/summarize"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTranscriber struct {
	text  string
	err   error
	calls int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeSummarizer struct {
	summary string
	err     error
	calls   int
}

func (f *fakeSummarizer) Summarize(ctx context.Context, text string, b summarize.Bounds) (string, error) {
	f.calls++
	return f.summary, f.err
}

type panickingSummarizer struct{}

func (panickingSummarizer) Summarize(ctx context.Context, text string, b summarize.Bounds) (string, error) {
	panic("model crashed")
}

type fakeRecorder struct {
	fn       func(ctx context.Context, d time.Duration) (capture.Recording, error)
	deadline time.Time
}

func (f *fakeRecorder) RecordAndTranscribe(ctx context.Context, d time.Duration) (capture.Recording, error) {
	f.deadline, _ = ctx.Deadline()
	return f.fn(ctx, d)
}

type fakeStore struct {
	location string
	err      error
	inputs   []notebook.NoteInput
	onCreate func(ctx context.Context)
}

func (f *fakeStore) Name() string { return "fake" }

func (f *fakeStore) CreateTranscriptionNote(ctx context.Context, in notebook.NoteInput) (string, error) {
	f.inputs = append(f.inputs, in)
	if f.onCreate != nil {
		f.onCreate(ctx)
	}
	return f.location, f.err
}

type fakeJournal struct {
	runs []store.Run
	err  error
}

func (f *fakeJournal) WriteRun(ctx context.Context, r store.Run) error {
	f.runs = append(f.runs, r)
	return f.err
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads []any
}

func (f *fakePublisher) Publish(subject string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

var allAvailable = Capabilities{
	Transcription: Available,
	Summarization: Available,
	Capture:       Available,
	RemoteNotes:   Unconfigured,
}

// writeWAV writes a mono 16-bit PCM file with the given frame count.
func writeWAV(t *testing.T, path string, sampleRate, frames int) []byte {
	t.Helper()
	dataSize := frames * 2
	buf := make([]byte, 44+dataSize)
	copy(buf[0:], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(36+dataSize))
	copy(buf[8:], "WAVE")
	copy(buf[12:], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1)
	binary.LittleEndian.PutUint16(buf[22:], 1)
	binary.LittleEndian.PutUint32(buf[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:], 2)
	binary.LittleEndian.PutUint16(buf[34:], 16)
	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(dataSize))
	if path != "" {
		if err := os.WriteFile(path, buf, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return buf
}

func TestProcessFile_LocalNoteWithoutSummarizer(t *testing.T) {
	const transcript = "Hello, this is a test of the TTS AI Pipeline."
	base := t.TempDir()
	local, err := notebook.NewLocal(base, notebook.FormatMarkdown, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	audio := filepath.Join(t.TempDir(), "test.wav")
	writeWAV(t, audio, 16000, 32000)

	caps := allAvailable
	caps.Summarization = Unconfigured
	p := New(Deps{
		Transcriber:  &fakeTranscriber{text: transcript},
		Notes:        Selection{Store: local, Backend: local.Name()},
		Capabilities: caps,
		Logger:       discardLogger(),
	})

	res := p.ProcessFile(context.Background(), audio, RunOptions{})

	if !res.Success || res.Error != "" {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Transcription != transcript {
		t.Errorf("transcription = %q", res.Transcription)
	}
	if res.Summary != transcript || !res.SummaryFallback {
		t.Errorf("expected unchanged transcript as fallback summary, got %q (fallback=%v)", res.Summary, res.SummaryFallback)
	}
	if !res.NoteCreated || res.NoteBackend != "local" {
		t.Fatalf("expected local note, got %+v", res)
	}
	wantDir := filepath.Join(base, "notes", "AI Transcriptions", "Transcriptions")
	if filepath.Dir(res.NoteLocation) != wantDir || filepath.Ext(res.NoteLocation) != ".md" {
		t.Errorf("note location = %q", res.NoteLocation)
	}
	content, err := os.ReadFile(res.NoteLocation)
	if err != nil {
		t.Fatalf("note not on disk: %v", err)
	}
	if !strings.Contains(string(content), "- **duration_seconds:** 2.00") {
		t.Errorf("expected wav duration in note:\n%s", content)
	}
	if res.ProcessingTime < 0 {
		t.Errorf("processing time = %v", res.ProcessingTime)
	}
}

func TestProcessFile_GeneratedTitle(t *testing.T) {
	notes := &fakeStore{location: "page-1"}
	p := New(Deps{
		Transcriber:  &fakeTranscriber{text: "some words"},
		Summarizer:   &fakeSummarizer{summary: "sum"},
		Notes:        Selection{Store: notes, Backend: "fake"},
		Capabilities: allAvailable,
		Logger:       discardLogger(),
	})

	res := p.ProcessFile(context.Background(), "/nonexistent/a.mp3", RunOptions{})

	re := regexp.MustCompile(`^AI Note \d{8}_\d{6}$`)
	if !re.MatchString(res.Title) {
		t.Errorf("generated title %q does not match", res.Title)
	}
	if len(notes.inputs) != 1 || notes.inputs[0].Title != res.Title {
		t.Fatalf("unexpected note inputs %+v", notes.inputs)
	}
	if notes.inputs[0].Metadata != nil {
		t.Error("metadata must be absent for an unreadable artifact")
	}
	if !res.NoteCreated || res.NoteLocation != "page-1" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestProcessFile_TitleGeneratedPerRun(t *testing.T) {
	notes := &fakeStore{location: "x"}
	p := New(Deps{
		Transcriber:  &fakeTranscriber{text: "words"},
		Notes:        Selection{Store: notes, Backend: "fake"},
		Capabilities: allAvailable,
		Logger:       discardLogger(),
	})
	clock := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	first := p.ProcessFile(context.Background(), "a.wav", RunOptions{})
	second := p.ProcessFile(context.Background(), "a.wav", RunOptions{})
	if first.Title == second.Title {
		t.Errorf("expected distinct titles for separate runs, both %q", first.Title)
	}
}

func TestProcessFile_TranscriptionFailure(t *testing.T) {
	tests := []struct {
		name string
		tr   *fakeTranscriber
	}{
		{"service error", &fakeTranscriber{err: errors.New("asr error 500")}},
		{"empty transcript", &fakeTranscriber{text: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum := &fakeSummarizer{summary: "s"}
			notes := &fakeStore{location: "x"}
			p := New(Deps{
				Transcriber:  tt.tr,
				Summarizer:   sum,
				Notes:        Selection{Store: notes, Backend: "fake"},
				Capabilities: allAvailable,
				Logger:       discardLogger(),
			})

			res := p.ProcessFile(context.Background(), "a.wav", RunOptions{})

			if res.Success || res.Error != MsgTranscriptionFailed {
				t.Errorf("expected transcription failure, got %+v", res)
			}
			if !errors.Is(res.Err, ErrTranscriptionFailed) {
				t.Errorf("expected ErrTranscriptionFailed, got %v", res.Err)
			}
			if sum.calls != 0 || len(notes.inputs) != 0 {
				t.Error("no further steps may run after a failed transcription")
			}
		})
	}
}

func TestProcessFile_UnconfiguredTranscription(t *testing.T) {
	tr := &fakeTranscriber{text: "x"}
	p := New(Deps{Transcriber: tr, Logger: discardLogger()})

	res := p.ProcessFile(context.Background(), "a.wav", RunOptions{})
	if res.Success || tr.calls != 0 {
		t.Errorf("expected fast failure without calling transcriber, got %+v (calls=%d)", res, tr.calls)
	}
}

func TestProcessFile_SummaryFallback(t *testing.T) {
	long := strings.Repeat("word ", 200)
	trimmed := strings.TrimSpace(long)

	tests := []struct {
		name         string
		transcript   string
		summarizer   *fakeSummarizer
		wantSummary  string
		wantFallback bool
	}{
		{"summarizer error long text", long, &fakeSummarizer{err: errors.New("down")}, trimmed[:500] + "...", true},
		{"summarizer empty", "short text", &fakeSummarizer{summary: " "}, "short text", true},
		{"summarizer ok", long, &fakeSummarizer{summary: " brief "}, "brief", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Deps{
				Transcriber:  &fakeTranscriber{text: tt.transcript},
				Summarizer:   tt.summarizer,
				Capabilities: allAvailable,
				Logger:       discardLogger(),
			})
			res := p.ProcessFile(context.Background(), "a.wav", RunOptions{})
			if !res.Success {
				t.Fatalf("summary problems must not fail the run: %+v", res)
			}
			if res.Summary != tt.wantSummary || res.SummaryFallback != tt.wantFallback {
				t.Errorf("summary = %q (fallback=%v), want %q (fallback=%v)", res.Summary, res.SummaryFallback, tt.wantSummary, tt.wantFallback)
			}
		})
	}
}

func TestProcessFile_NoteFailureDoesNotFailRun(t *testing.T) {
	tests := []struct {
		name  string
		notes *fakeStore
	}{
		{"store error", &fakeStore{err: errors.New("graph error 403")}},
		{"empty location", &fakeStore{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Deps{
				Transcriber:  &fakeTranscriber{text: "hello"},
				Notes:        Selection{Store: tt.notes, Backend: "remote"},
				Capabilities: allAvailable,
				Logger:       discardLogger(),
			})
			res := p.ProcessFile(context.Background(), "a.wav", RunOptions{Title: "Mine"})
			if !res.Success || res.NoteCreated || res.NoteLocation != "" {
				t.Errorf("unexpected result %+v", res)
			}
			if res.Title != "Mine" {
				t.Errorf("title = %q", res.Title)
			}
		})
	}
}

func TestProcessFile_SkipNoteAndNoBackend(t *testing.T) {
	notes := &fakeStore{location: "x"}
	p := New(Deps{
		Transcriber:  &fakeTranscriber{text: "hello"},
		Notes:        Selection{Store: notes, Backend: "fake"},
		Capabilities: allAvailable,
		Logger:       discardLogger(),
	})
	res := p.ProcessFile(context.Background(), "a.wav", RunOptions{SkipNote: true})
	if !res.Success || res.NoteCreated || len(notes.inputs) != 0 {
		t.Errorf("expected no note, got %+v", res)
	}

	none := New(Deps{
		Transcriber:  &fakeTranscriber{text: "hello"},
		Capabilities: allAvailable,
		Logger:       discardLogger(),
	})
	res = none.ProcessFile(context.Background(), "a.wav", RunOptions{})
	if !res.Success || res.NoteCreated || res.NoteBackend != BackendNone {
		t.Errorf("expected success without note, got %+v", res)
	}
}

func TestProcessFile_JournalAndEvents(t *testing.T) {
	journal := &fakeJournal{err: errors.New("db down")}
	events := &fakePublisher{}
	p := New(Deps{
		Transcriber:  &fakeTranscriber{text: "hello"},
		Notes:        Selection{Store: &fakeStore{location: "/notes/a.md"}, Backend: "local"},
		Capabilities: allAvailable,
		Journal:      journal,
		Events:       events,
		Logger:       discardLogger(),
	})

	res := p.ProcessFile(context.Background(), "a.wav", RunOptions{})
	if !res.Success {
		t.Fatalf("journal failure must not affect the result: %+v", res)
	}
	if len(journal.runs) != 1 {
		t.Fatalf("expected one journaled run, got %d", len(journal.runs))
	}
	run := journal.runs[0]
	if run.ID != res.RunID || run.Mode != "file" || run.NoteLocation != "/notes/a.md" || run.ProcessingTime != res.ProcessingTime {
		t.Errorf("unexpected journaled run %+v", run)
	}

	if len(events.subjects) != 2 || events.subjects[0] != hermes.SubjectRunCompleted || events.subjects[1] != hermes.SubjectNoteCreated {
		t.Fatalf("unexpected subjects %v", events.subjects)
	}
	completed, ok := events.payloads[0].(Result)
	if !ok || completed.RunID != res.RunID || completed.ProcessingTime != res.ProcessingTime {
		t.Errorf("unexpected completed payload %+v", events.payloads[0])
	}
	created, ok := events.payloads[1].(hermes.NoteCreatedEvent)
	if !ok || created.Location != "/notes/a.md" || created.Backend != "local" {
		t.Errorf("unexpected note payload %+v", events.payloads[1])
	}
}

func TestProcessFile_PanicBecomesFailedResult(t *testing.T) {
	journal := &fakeJournal{}
	events := &fakePublisher{}
	p := New(Deps{
		Transcriber:  &fakeTranscriber{text: "hello"},
		Summarizer:   panickingSummarizer{},
		Notes:        Selection{Store: &fakeStore{location: "x"}, Backend: "local"},
		Capabilities: allAvailable,
		Journal:      journal,
		Events:       events,
		Logger:       discardLogger(),
	})

	res := p.ProcessFile(context.Background(), "a.wav", RunOptions{})
	if res.Success || res.Error != MsgInternalError || !errors.Is(res.Err, ErrInternal) {
		t.Fatalf("expected internal error result, got %+v", res)
	}
	if !strings.Contains(res.Err.Error(), "model crashed") {
		t.Errorf("panic value missing from error: %v", res.Err)
	}
	if len(journal.runs) != 1 || journal.runs[0].Success {
		t.Errorf("failed run should still be journaled, got %+v", journal.runs)
	}
	if len(events.subjects) != 1 || events.subjects[0] != hermes.SubjectRunCompleted {
		t.Errorf("unexpected subjects %v", events.subjects)
	}

	// The event handler must survive the same collaborator.
	p.HandleAudioStored(hermes.SubjectAudioStored, []byte(`{"audio_path":"/a.wav"}`))
	if len(journal.runs) != 2 {
		t.Errorf("expected the event run to be journaled, got %d runs", len(journal.runs))
	}
}

func TestProcessLiveCapture_NoMicrophone(t *testing.T) {
	tests := []struct {
		name     string
		recorder Recorder
		caps     Capabilities
	}{
		{"no recorder", nil, allAvailable},
		{"capture unavailable", &fakeRecorder{}, Capabilities{Transcription: Available, Capture: Unavailable}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Deps{Recorder: tt.recorder, Capabilities: tt.caps, Logger: discardLogger()})
			res := p.ProcessLiveCapture(context.Background(), time.Second, RunOptions{})
			if res.Success || res.Error != MsgMicrophoneUnavailable || !errors.Is(res.Err, ErrMicrophoneUnavailable) {
				t.Errorf("unexpected result %+v", res)
			}
		})
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no temporary artifacts, found %d in %s", len(entries), dir)
	}
}

func TestProcessLiveCapture_Success(t *testing.T) {
	tmp := t.TempDir()
	wav := writeWAV(t, "", 16000, 8000)
	rec := &fakeRecorder{fn: func(ctx context.Context, d time.Duration) (capture.Recording, error) {
		return capture.Recording{Transcript: " turn on the lights ", Audio: wav, Duration: d}, nil
	}}
	notes := &fakeStore{location: "page-9"}
	p := New(Deps{
		Recorder:     rec,
		Notes:        Selection{Store: notes, Backend: "remote"},
		Capabilities: allAvailable,
		Logger:       discardLogger(),
	})
	p.tempDir = tmp

	before := time.Now()
	res := p.ProcessLiveCapture(context.Background(), 3*time.Second, RunOptions{Title: "Lights"})

	if !res.Success || !res.NoteCreated || res.Transcription != "turn on the lights" || res.Source != "live" {
		t.Fatalf("unexpected result %+v", res)
	}
	if rec.deadline.Before(before.Add(3*time.Second)) || rec.deadline.After(time.Now().Add(3*time.Second+p.captureGrace)) {
		t.Errorf("capture deadline %v not bounded by duration plus grace", rec.deadline)
	}
	meta := notes.inputs[0].Metadata
	if meta == nil || meta.DurationSeconds == nil || *meta.DurationSeconds != 0.5 || meta.FileSizeBytes != int64(len(wav)) {
		t.Errorf("unexpected metadata %+v", meta)
	}
	assertEmptyDir(t, tmp)
}

func TestProcessLiveCapture_CleanupOnEveryPath(t *testing.T) {
	wav := writeWAV(t, "", 16000, 1600)

	tests := []struct {
		name        string
		notes       *fakeStore
		cancelStage string
		wantSuccess bool
	}{
		{"note failure", &fakeStore{err: errors.New("disk full")}, "", true},
		{"cancelled during note creation", &fakeStore{location: "x"}, "note", true},
		{"cancelled during capture", &fakeStore{location: "x"}, "capture", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmp := t.TempDir()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			rec := &fakeRecorder{fn: func(ctx context.Context, d time.Duration) (capture.Recording, error) {
				if tt.cancelStage == "capture" {
					cancel()
					return capture.Recording{}, ctx.Err()
				}
				return capture.Recording{Transcript: "hello", Audio: wav}, nil
			}}
			var tempSeen bool
			tt.notes.onCreate = func(context.Context) {
				entries, _ := os.ReadDir(tmp)
				tempSeen = len(entries) == 1
				if tt.cancelStage == "note" {
					cancel()
				}
			}
			p := New(Deps{
				Recorder:     rec,
				Notes:        Selection{Store: tt.notes, Backend: "local"},
				Capabilities: allAvailable,
				Logger:       discardLogger(),
			})
			p.tempDir = tmp

			res := p.ProcessLiveCapture(ctx, time.Second, RunOptions{})

			if res.Success != tt.wantSuccess {
				t.Errorf("success = %v, want %v (%+v)", res.Success, tt.wantSuccess, res)
			}
			if tt.cancelStage != "capture" && !tempSeen {
				t.Error("expected temporary artifact to exist while the note is written")
			}
			assertEmptyDir(t, tmp)
		})
	}
}

func TestHandleAudioStored(t *testing.T) {
	notes := &fakeStore{location: "x"}
	tr := &fakeTranscriber{text: "hello"}
	p := New(Deps{
		Transcriber:  tr,
		Notes:        Selection{Store: notes, Backend: "local"},
		Capabilities: allAvailable,
		Logger:       discardLogger(),
	})

	p.HandleAudioStored(hermes.SubjectAudioStored, []byte(`{"audio_path":"/a.wav","title":"Evt"}`))
	p.HandleAudioStored(hermes.SubjectAudioStored, []byte(`{"audio_path":"/b.wav","create_note":false}`))
	p.HandleAudioStored(hermes.SubjectAudioStored, []byte(`not json`))
	p.HandleAudioStored(hermes.SubjectAudioStored, []byte(`{}`))

	if tr.calls != 2 {
		t.Errorf("expected 2 transcriptions, got %d", tr.calls)
	}
	if len(notes.inputs) != 1 || notes.inputs[0].Title != "Evt" {
		t.Errorf("unexpected notes %+v", notes.inputs)
	}
}
