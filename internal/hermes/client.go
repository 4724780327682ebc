package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Subjects carried on the bus.
const (
	// SubjectAudioStored asks the pipeline to process an audio file.
	SubjectAudioStored       = "autonote.audio.stored"
	SubjectRunCompleted      = "autonote.run.completed"
	SubjectNoteCreated       = "autonote.note.created"
	SubjectBackfillCompleted = "autonote.backfill.completed"
	SubjectRegistered        = "autonote.agent.registered"
)

// AudioStoredEvent is the payload of SubjectAudioStored.
type AudioStoredEvent struct {
	AudioPath string `json:"audio_path"`
	Title     string `json:"title,omitempty"`
	// CreateNote defaults to true when omitted.
	CreateNote *bool `json:"create_note,omitempty"`
}

// NoteCreatedEvent is the payload of SubjectNoteCreated.
type NoteCreatedEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	RunID     uuid.UUID `json:"run_id"`
	Title     string    `json:"title"`
	Backend   string    `json:"backend"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("autonote"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

// Drain flushes pending messages and closes the connection.
func (c *Client) Drain() error {
	return c.conn.Drain()
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
