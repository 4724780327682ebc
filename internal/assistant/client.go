package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

const (
	DefaultURL         = "http://localhost:3000/mcp"
	DefaultMaxAttempts = 3
	method             = "copilot/chat"
)

var ErrRetriesExhausted = errors.New("assistant retries exhausted")

// CallError reports a call that failed on every attempt. It wraps the last
// cause and matches ErrRetriesExhausted.
type CallError struct {
	Attempts   int
	LastStatus int
	Err        error
}

func (e *CallError) Error() string {
	if e.LastStatus != 0 {
		return fmt.Sprintf("assistant call failed after %d attempts (last status %d): %v", e.Attempts, e.LastStatus, e.Err)
	}
	return fmt.Sprintf("assistant call failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

func (e *CallError) Is(target error) bool { return target == ErrRetriesExhausted }

// Response is the decoded JSON body returned by the assistant.
type Response map[string]any

// Options override the default generation options of a request.
type Options map[string]any

func defaultOptions() map[string]any {
	return map[string]any{
		"temperature": 0.7,
		"max_tokens":  1000,
		"model":       "gpt-4",
	}
}

// Client sends prompts to the assistant endpoint with retry and exponential
// backoff and tracks the conversation session.
type Client struct {
	url         string
	client      *http.Client
	maxAttempts int
	logger      *slog.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
	lastID atomic.Int64

	session *session
}

func NewClient(url string, timeout time.Duration, maxAttempts int, logger *slog.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:         url,
		client:      &http.Client{Timeout: timeout},
		maxAttempts: maxAttempts,
		logger:      logger,
		sleep:       sleepContext,
		now:         time.Now,
		session:     newSession(),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// BuildPrompt renders transcript into a Prompt. The context carries the
// current session ID and request time, then extra on top.
func (c *Client) BuildPrompt(transcript string, pt PromptType, extra map[string]any) Prompt {
	now := c.now()
	ctx := map[string]any{
		"session_id": nil,
		"timestamp":  float64(now.UnixMilli()) / 1000,
	}
	if id := c.session.id(); id != "" {
		ctx["session_id"] = id
	}
	maps.Copy(ctx, extra)
	return NewPrompt(transcript, pt, ctx, now)
}

type chatMessage struct {
	Role     string         `json:"role"`
	Content  string         `json:"content"`
	Metadata PromptMetadata `json:"metadata"`
}

type params struct {
	Messages       []chatMessage  `json:"messages"`
	Context        map[string]any `json:"context"`
	Options        map[string]any `json:"options"`
	ConversationID string         `json:"conversation_id,omitempty"`
}

type envelope struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  params `json:"params"`
}

// nextID returns the current time in milliseconds, bumped past the last
// issued ID so IDs stay unique within the process.
func (c *Client) nextID() int64 {
	for {
		last := c.lastID.Load()
		id := c.now().UnixMilli()
		if id <= last {
			id = last + 1
		}
		if c.lastID.CompareAndSwap(last, id) {
			return id
		}
	}
}

func (c *Client) envelope(p Prompt, opts Options) envelope {
	merged := defaultOptions()
	maps.Copy(merged, opts)
	return envelope{
		JSONRPC: "2.0",
		ID:      c.nextID(),
		Method:  method,
		Params: params{
			Messages:       []chatMessage{{Role: "user", Content: p.Text, Metadata: p.Metadata}},
			Context:        p.Context,
			Options:        merged,
			ConversationID: c.session.id(),
		},
	}
}

// SendText builds a prompt from raw text and sends it.
func (c *Client) SendText(ctx context.Context, text string, opts Options) (Response, error) {
	return c.Send(ctx, c.BuildPrompt(text, "", nil), opts)
}

// Send delivers p, retrying failed attempts after 1s, 2s, 4s, ... up to the
// configured attempt count. Cancellation is honored between attempts. On
// success the session is updated and the decoded response returned as is.
func (c *Client) Send(ctx context.Context, p Prompt, opts Options) (Response, error) {
	body, err := json.Marshal(c.envelope(p, opts))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<(attempt-1)) * time.Second
			c.logger.Warn("assistant call failed, retrying",
				"attempt", attempt, "delay", delay, "status", lastStatus, "error", lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("assistant call cancelled after %d attempts: %w", attempt, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("assistant call cancelled after %d attempts: %w", attempt, err)
		}

		status, respBody, err := c.post(ctx, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("assistant call cancelled after %d attempts: %w", attempt+1, ctx.Err())
			}
			lastErr, lastStatus = err, 0
			continue
		}
		if status < 200 || status >= 300 {
			lastErr = fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(respBody)))
			lastStatus = status
			continue
		}

		var resp Response
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		c.session.record(p, resp, c.now())
		c.logger.Debug("assistant call succeeded", "attempt", attempt+1, "prompt_type", p.Type)
		return resp, nil
	}

	return nil, &CallError{Attempts: c.maxAttempts, LastStatus: lastStatus, Err: lastErr}
}

func (c *Client) post(ctx context.Context, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// SessionInfo returns a snapshot of the session state.
func (c *Client) SessionInfo() SessionInfo { return c.session.snapshot() }

// ClearSession discards the conversation ID, interaction history and
// preferences.
func (c *Client) ClearSession() { c.session.clear() }

func (c *Client) SetPreference(key string, value any) { c.session.setPreference(key, value) }
