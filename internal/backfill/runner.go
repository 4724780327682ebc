// Package backfill turns an archive of existing recordings into notes. Runs
// are resumable: progress is kept in a state file and already processed
// recordings are skipped by content fingerprint.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/autonote/internal/hermes"
	"github.com/MikeSquared-Agency/autonote/internal/processor"
)

// Config holds the backfill configuration.
type Config struct {
	Dir       string
	StatePath string
	Since     time.Time
	Until     time.Time
	DryRun    bool
	SkipNote  bool
	// Limit caps the number of files processed in one run; 0 is unlimited.
	Limit int
}

type Pipeline interface {
	ProcessFile(ctx context.Context, audioPath string, opts processor.RunOptions) processor.Result
}

// Report summarizes one run.
type Report struct {
	Discovered   int  `json:"discovered"`
	Skipped      int  `json:"skipped"`
	Duplicates   int  `json:"duplicates"`
	Processed    int  `json:"processed"`
	Failed       int  `json:"failed"`
	NotesCreated int  `json:"notes_created"`
	DryRun       bool `json:"dry_run"`
}

// Runner orchestrates the backfill process.
type Runner struct {
	cfg      Config
	pipeline Pipeline
	events   processor.Publisher
	logger   *slog.Logger
}

// NewRunner creates a backfill runner. events may be nil.
func NewRunner(cfg Config, pipeline Pipeline, events processor.Publisher, logger *slog.Logger) *Runner {
	return &Runner{cfg: cfg, pipeline: pipeline, events: events, logger: logger}
}

// Run processes every new recording under the configured directory. A
// failed recording, or one whose note could not be stored, is recorded and
// left unmarked so the next run retries it.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	report := Report{DryRun: r.cfg.DryRun}

	state, err := LoadState(r.cfg.StatePath)
	if err != nil {
		return report, fmt.Errorf("load state: %w", err)
	}

	files, err := discover(r.cfg.Dir, r.cfg.Since, r.cfg.Until)
	if err != nil {
		return report, fmt.Errorf("discover files: %w", err)
	}
	report.Discovered = len(files)
	r.logger.Info("files discovered", "dir", r.cfg.Dir, "count", len(files))

	seen := make(map[string]string)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			r.logger.Info("backfill interrupted, saving state")
			r.save(state)
			return report, err
		}
		if r.cfg.Limit > 0 && report.Processed+report.Failed >= r.cfg.Limit {
			r.logger.Info("backfill limit reached", "limit", r.cfg.Limit)
			break
		}

		fp, err := Fingerprint(f.path)
		if err != nil {
			r.logger.Warn("failed to fingerprint file", "path", f.path, "error", err)
			state.AddError(fmt.Sprintf("fingerprint %s: %v", f.path, err))
			report.Failed++
			continue
		}
		if first, dup := seen[fp]; dup {
			r.logger.Info("skipping duplicate recording", "path", f.path, "duplicate_of", first)
			report.Duplicates++
			continue
		}
		seen[fp] = f.path
		if state.IsProcessed(fp) {
			report.Skipped++
			continue
		}

		if r.cfg.DryRun {
			r.logger.Info("would process", "path", f.path, "modified", f.modified)
			report.Processed++
			continue
		}

		res := r.pipeline.ProcessFile(ctx, f.path, processor.RunOptions{SkipNote: r.cfg.SkipNote})
		if !res.Success {
			r.logger.Error("backfill file failed", "path", f.path, "run_id", res.RunID, "error", res.Error)
			state.AddError(fmt.Sprintf("process %s: %s", f.path, res.Error))
			report.Failed++
			r.save(state)
			continue
		}
		if !res.NoteCreated && !r.cfg.SkipNote {
			// Transcribed but not stored; leave it unmarked so the note is retried.
			r.logger.Error("backfill note not created", "path", f.path, "run_id", res.RunID)
			state.AddError(fmt.Sprintf("note %s: not created", f.path))
			report.Failed++
			r.save(state)
			continue
		}

		state.MarkProcessed(fp, f.path)
		report.Processed++
		if res.NoteCreated {
			state.NotesCreated++
			report.NotesCreated++
		}
		r.save(state)
	}

	r.save(state)
	r.logger.Info("backfill complete",
		"discovered", report.Discovered,
		"processed", report.Processed,
		"skipped", report.Skipped,
		"duplicates", report.Duplicates,
		"failed", report.Failed,
		"notes_created", report.NotesCreated,
	)
	r.publish(report)
	return report, nil
}

func (r *Runner) save(state *State) {
	if r.cfg.DryRun {
		return
	}
	if err := state.Save(); err != nil {
		r.logger.Error("failed to save backfill state", "path", r.cfg.StatePath, "error", err)
	}
}

func (r *Runner) publish(report Report) {
	if r.events == nil || r.cfg.DryRun {
		return
	}
	if err := r.events.Publish(hermes.SubjectBackfillCompleted, report); err != nil {
		r.logger.Warn("failed to publish backfill report", "error", err)
	}
}
