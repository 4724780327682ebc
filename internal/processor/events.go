package processor

import (
	"context"
	"encoding/json"

	"github.com/MikeSquared-Agency/autonote/internal/hermes"
)

// HandleAudioStored is the NATS handler for autonote.audio.stored.
func (p *Processor) HandleAudioStored(subject string, data []byte) {
	ctx := context.Background()

	var evt hermes.AudioStoredEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse audio event", "subject", subject, "error", err)
		return
	}
	if evt.AudioPath == "" {
		p.logger.Warn("audio event without audio_path", "subject", subject)
		return
	}

	opts := RunOptions{Title: evt.Title}
	if evt.CreateNote != nil && !*evt.CreateNote {
		opts.SkipNote = true
	}

	res := p.ProcessFile(ctx, evt.AudioPath, opts)
	if !res.Success {
		p.logger.Warn("audio event processing failed", "run_id", res.RunID, "audio_path", evt.AudioPath, "error", res.Error)
	}
}
