package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/autonote/internal/api"
	"github.com/MikeSquared-Agency/autonote/internal/assistant"
	"github.com/MikeSquared-Agency/autonote/internal/backfill"
	"github.com/MikeSquared-Agency/autonote/internal/config"
	"github.com/MikeSquared-Agency/autonote/internal/hermes"
	"github.com/MikeSquared-Agency/autonote/internal/processor"
	"github.com/MikeSquared-Agency/autonote/internal/speech"
	"github.com/MikeSquared-Agency/autonote/internal/store"
)

func main() {
	audioFile := flag.String("audio-file", "", "transcribe this audio file and exit")
	record := flag.Bool("record", false, "record from the microphone and exit")
	duration := flag.Float64("duration", 5, "recording length in seconds")
	title := flag.String("title", "", "note title (default: generated)")
	noNote := flag.Bool("no-note", false, "skip note creation")
	speakSummary := flag.String("speak-summary", "", "synthesize the summary to this audio file")
	backfillDir := flag.String("backfill-dir", "", "turn every recording under this directory into a note and exit")
	since := flag.String("since", "", "backfill only recordings modified on or after this date (YYYY-MM-DD)")
	until := flag.String("until", "", "backfill only recordings modified on or before this date (YYYY-MM-DD)")
	dryRun := flag.Bool("dry-run", false, "backfill: list what would be processed")
	limit := flag.Int("limit", 0, "backfill: maximum recordings to process (0 = all)")
	flag.Parse()

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *backfillDir != "" {
		bcfg := backfill.Config{
			Dir:       *backfillDir,
			StatePath: filepath.Join(cfg.NotesDir, backfill.StateFile),
			DryRun:    *dryRun,
			SkipNote:  *noNote,
			Limit:     *limit,
		}
		var err error
		bcfg.Since, bcfg.Until, err = dateWindow(*since, *until, time.Local)
		if err != nil {
			slog.Error("invalid backfill date range", "since", *since, "until", *until, "error", err)
			os.Exit(2)
		}
		os.Exit(runBackfill(ctx, cfg, bcfg))
	}

	if *audioFile != "" || *record {
		opts := processor.RunOptions{Title: *title, SkipNote: *noNote}
		os.Exit(runOnce(ctx, cfg, *audioFile, *record, time.Duration(*duration*float64(time.Second)), opts, *speakSummary))
	}
	serve(ctx, cfg)
}

// dateWindow parses the -since and -until days. until covers its whole day.
// Empty bounds stay zero.
func dateWindow(since, until string, loc *time.Location) (time.Time, time.Time, error) {
	var from, to time.Time
	if since != "" {
		t, err := time.ParseInLocation("2006-01-02", since, loc)
		if err != nil {
			return from, to, fmt.Errorf("since: %w", err)
		}
		from = t
	}
	if until != "" {
		t, err := time.ParseInLocation("2006-01-02", until, loc)
		if err != nil {
			return from, to, fmt.Errorf("until: %w", err)
		}
		to = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, fmt.Errorf("until %s is before since %s", until, since)
	}
	return from, to, nil
}

// runOnce processes one input, prints the result as JSON and returns the
// exit code.
func runOnce(ctx context.Context, cfg config.Config, audioFile string, record bool, duration time.Duration, opts processor.RunOptions, speakPath string) int {
	logger := slog.Default()

	var journal processor.Journal
	if cfg.DatabaseURL != "" {
		db, err := connectStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Warn("run journal unavailable", "error", err)
		} else {
			defer db.Close()
			journal = db
		}
	}

	proc := buildPipeline(ctx, cfg, journal, nil, logger)

	var res processor.Result
	if record {
		res = proc.ProcessLiveCapture(ctx, duration, opts)
	} else {
		res = proc.ProcessFile(ctx, audioFile, opts)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		logger.Error("failed to write result", "error", err)
	}

	if speakPath != "" && res.Success {
		tts := speech.NewTTSClient(cfg.TTSURL)
		if err := tts.Synthesize(ctx, res.Summary, speakPath); err != nil {
			logger.Error("failed to synthesize summary", "error", err)
		} else {
			logger.Info("summary synthesized", "path", speakPath)
		}
	}

	if !res.Success {
		return 1
	}
	return 0
}

func runBackfill(ctx context.Context, cfg config.Config, bcfg backfill.Config) int {
	logger := slog.Default()

	var journal processor.Journal
	if cfg.DatabaseURL != "" {
		db, err := connectStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Warn("run journal unavailable", "error", err)
		} else {
			defer db.Close()
			journal = db
		}
	}

	var events processor.Publisher
	if cfg.NatsURL != "" {
		hc, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			logger.Warn("event bus unavailable", "error", err)
		} else {
			defer hc.Drain()
			events = hc
		}
	}

	proc := buildPipeline(ctx, cfg, journal, events, logger)
	report, err := backfill.NewRunner(bcfg, proc, events, logger).Run(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(report); encErr != nil {
		logger.Error("failed to write report", "error", encErr)
	}
	if err != nil {
		logger.Error("backfill failed", "error", err)
		return 1
	}
	if report.Failed > 0 {
		return 1
	}
	return 0
}

func connectStore(ctx context.Context, url string) (*store.Store, error) {
	db, err := store.New(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func serve(ctx context.Context, cfg config.Config) {
	logger := slog.Default()
	logger.Info("autonote starting", "port", cfg.Port)

	// Database (optional: without it runs are not journaled)
	var (
		journal   processor.Journal
		exchanges api.ExchangeJournal
		runs      api.RunHistory
	)
	if cfg.DatabaseURL != "" {
		db, err := connectStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		journal, exchanges, runs = db, db, db
		logger.Info("database connected")
	} else {
		logger.Warn("DATABASE_URL not set, run journal disabled")
	}

	// NATS/Hermes (optional)
	var (
		hermesClient *hermes.Client
		events       processor.Publisher
	)
	if cfg.NatsURL != "" {
		hc, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer hc.Close()
		hermesClient, events = hc, hc
		logger.Info("NATS connected", "url", cfg.NatsURL)
	}

	proc := buildPipeline(ctx, cfg, journal, events, logger)

	if hermesClient != nil {
		if err := hermesClient.Subscribe(hermes.SubjectAudioStored, proc.HandleAudioStored); err != nil {
			logger.Error("failed to subscribe to audio events", "error", err)
			os.Exit(1)
		}
	}

	copilot := assistant.NewClient(cfg.AssistantURL, cfg.RequestTimeout, cfg.MaxRetries, logger)

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, api.Deps{
		Pipeline:  proc,
		Assistant: copilot,
		Exchanges: exchanges,
		Runs:      runs,
		Logger:    logger,
	})
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	if hermesClient != nil {
		status := proc.Status()
		if err := hermesClient.Publish(hermes.SubjectRegistered, map[string]any{
			"timestamp":    time.Now().UTC().Format(time.RFC3339),
			"port":         cfg.Port,
			"note_backend": status.NoteBackend,
			"capabilities": status.Capabilities,
		}); err != nil {
			logger.Warn("failed to publish registration", "error", err)
		}
	}

	logger.Info("autonote ready", "port", cfg.Port, "note_backend", proc.Status().NoteBackend)

	// Graceful shutdown
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	if hermesClient != nil {
		if err := hermesClient.Drain(); err != nil {
			logger.Warn("NATS drain failed", "error", err)
		}
	}
	logger.Info("autonote stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
