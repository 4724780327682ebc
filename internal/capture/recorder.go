// Package capture records audio from a local input device with ffmpeg and
// hands it to the ASR service, fusing capture and transcription into one call.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrEmptyTranscript is returned when the capture produced no recognizable speech.
var ErrEmptyTranscript = errors.New("no speech recognized; check microphone input or mute state")

// Transcriber is the subset of the ASR client the recorder needs.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Recording is the outcome of one capture. Audio holds the WAV bytes so the
// caller can materialize its own artifact; the recorder keeps nothing.
type Recording struct {
	Transcript string
	Audio      []byte
	Duration   time.Duration
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stderr string, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// Recorder captures from Format/Device using ffmpeg.
type Recorder struct {
	ffmpegPath string
	format     string
	device     string
	asr        Transcriber
	runner     commandRunner
	logger     *slog.Logger
}

func NewRecorder(ffmpegPath, format, device string, asr Transcriber, logger *slog.Logger) *Recorder {
	return &Recorder{
		ffmpegPath: ffmpegPath,
		format:     format,
		device:     device,
		asr:        asr,
		runner:     execRunner{},
		logger:     logger,
	}
}

// RecordAndTranscribe records for the given duration, then transcribes the
// capture. The intermediate WAV file is removed before returning.
func (r *Recorder) RecordAndTranscribe(ctx context.Context, duration time.Duration) (Recording, error) {
	if duration <= 0 {
		return Recording{}, fmt.Errorf("capture duration must be positive, got %s", duration)
	}

	dir, err := os.MkdirTemp("", "autonote-capture-*")
	if err != nil {
		return Recording{}, fmt.Errorf("create capture workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	wavPath := filepath.Join(dir, "capture.wav")
	args := buildCaptureArgs(r.format, r.device, duration, wavPath)

	r.logger.Info("recording", "device", r.device, "format", r.format, "duration", duration.String())
	if stderr, err := r.runner.Run(ctx, r.ffmpegPath, args...); err != nil {
		if ctx.Err() != nil {
			return Recording{}, ctx.Err()
		}
		return Recording{}, fmt.Errorf("ffmpeg capture: %w: %s", err, lastLine(stderr))
	}

	audio, err := os.ReadFile(wavPath)
	if err != nil {
		return Recording{}, fmt.Errorf("read capture: %w", err)
	}

	text, err := r.asr.Transcribe(ctx, wavPath)
	if err != nil {
		return Recording{}, fmt.Errorf("transcribe capture: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return Recording{}, ErrEmptyTranscript
	}

	return Recording{Transcript: text, Audio: audio, Duration: duration}, nil
}

// buildCaptureArgs builds ffmpeg args for a mono 16 kHz PCM WAV capture.
func buildCaptureArgs(format, device string, duration time.Duration, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-f", format,
		"-i", device,
		"-t", strconv.FormatFloat(duration.Seconds(), 'f', 3, 64),
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
