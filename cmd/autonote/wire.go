package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MikeSquared-Agency/autonote/internal/capture"
	"github.com/MikeSquared-Agency/autonote/internal/config"
	"github.com/MikeSquared-Agency/autonote/internal/notebook"
	"github.com/MikeSquared-Agency/autonote/internal/processor"
	"github.com/MikeSquared-Agency/autonote/internal/speech"
	"github.com/MikeSquared-Agency/autonote/internal/summarize"
)

const probeTimeout = 5 * time.Second

// buildSummarizer resolves SUMMARIZER_BACKEND. auto prefers Anthropic when a
// key is present and falls back to the extractive summarizer.
func buildSummarizer(cfg config.Config, size summarize.SizeConfig, logger *slog.Logger) (summarize.Summarizer, processor.Availability) {
	backend := cfg.SummarizerBackend
	switch backend {
	case "none":
		return nil, processor.Unconfigured
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			logger.Warn("anthropic summarizer selected without ANTHROPIC_API_KEY, summaries disabled")
			return nil, processor.Unconfigured
		}
	case "extractive":
	default:
		backend = "extractive"
		if cfg.AnthropicAPIKey != "" {
			backend = "anthropic"
		}
	}

	logger.Info("summarizer ready", "backend", backend, "model", size.Model, "max_length", size.MaxLength)
	if backend == "anthropic" {
		return summarize.NewAnthropic(cfg.AnthropicAPIKey, size), processor.Available
	}
	return summarize.NewExtractive(size.Bounds()), processor.Available
}

func devicePrompt(verificationURI, userCode string) {
	fmt.Fprintf(os.Stderr, "To sign in to OneNote, open %s and enter the code %s\n", verificationURI, userCode)
}

// noteFactories returns the remote and local store constructors. remote is
// nil when no Azure client is configured.
func noteFactories(ctx context.Context, cfg config.Config, logger *slog.Logger) (remote, local processor.StoreFactory) {
	if cfg.RemoteCredentialed() {
		remote = func() (notebook.Store, error) {
			ts, err := notebook.Authenticate(ctx, notebook.Credentials{
				ClientID:     cfg.AzureClientID,
				TenantID:     cfg.AzureTenantID,
				ClientSecret: cfg.AzureClientSecret,
			}, devicePrompt, logger)
			if err != nil {
				return nil, fmt.Errorf("graph auth: %w", err)
			}
			return notebook.NewGraph(ctx, cfg.GraphURL, cfg.OneNoteUser, ts, logger), nil
		}
	}
	local = func() (notebook.Store, error) {
		l, err := notebook.NewLocal(cfg.NotesDir, notebook.ParseFormat(cfg.NoteFormat), logger)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	return remote, local
}

func remoteCapability(cfg config.Config, sel processor.Selection) processor.Availability {
	switch {
	case !cfg.RemoteCredentialed():
		return processor.Unconfigured
	case sel.Backend == "remote":
		return processor.Available
	default:
		return processor.Unavailable
	}
}

// buildPipeline probes every collaborator once and wires the processor.
// journal and events may be nil.
func buildPipeline(ctx context.Context, cfg config.Config, journal processor.Journal, events processor.Publisher, logger *slog.Logger) *processor.Processor {
	asr := speech.NewASRClient(cfg.ASRURL)

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	transcription := processor.ProbeHealth(probeCtx, asr)
	cancel()
	if transcription != processor.Available {
		logger.Warn("transcription service not reachable", "url", cfg.ASRURL)
	}

	size, ok := summarize.LookupSize(cfg.SummarizerSize)
	if !ok {
		logger.Warn("unknown summarizer size, using default", "size", cfg.SummarizerSize, "default", summarize.DefaultSize)
	}
	summarizer, summarization := buildSummarizer(cfg, size, logger)

	var recorder processor.Recorder
	captureState := processor.ProbeBinary(cfg.CaptureEnabled, cfg.FFmpegPath)
	switch captureState {
	case processor.Available:
		recorder = capture.NewRecorder(cfg.FFmpegPath, cfg.CaptureFormat, cfg.CaptureDevice, asr, logger)
	case processor.Unavailable:
		logger.Warn("capture enabled but ffmpeg not found", "ffmpeg", cfg.FFmpegPath)
	}

	remote, local := noteFactories(ctx, cfg, logger)
	sel := processor.ChooseBackend(processor.Mode(cfg.NoteStorage), remote, local, logger)

	caps := processor.Capabilities{
		Transcription: transcription,
		Summarization: summarization,
		Capture:       captureState,
		RemoteNotes:   remoteCapability(cfg, sel),
	}
	logger.Info("capabilities resolved",
		"transcription", caps.Transcription,
		"summarization", caps.Summarization,
		"capture", caps.Capture,
		"remote_notes", caps.RemoteNotes,
		"note_backend", sel.Backend,
	)

	return processor.New(processor.Deps{
		Transcriber:  asr,
		Summarizer:   summarizer,
		Bounds:       size.Bounds(),
		Recorder:     recorder,
		Notes:        sel,
		Capabilities: caps,
		Journal:      journal,
		Events:       events,
		Logger:       logger,
	})
}
