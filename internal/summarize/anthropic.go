package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const anthropicURL = "https://api.anthropic.com/v1/messages"

// maxInputWords caps the transcript sent to the model.
const maxInputWords = 1024

const summarySystemPrompt = `You summarize speech transcripts for a personal note archive.
Reply with the summary text only: no preamble, no headings, no bullet markers.
Keep the speaker's terminology. Do not invent facts that are not in the transcript.`

// Anthropic summarizes through the Anthropic Messages API.
type Anthropic struct {
	apiKey   string
	size     SizeConfig
	endpoint string
	client   *http.Client
}

func NewAnthropic(apiKey string, size SizeConfig) *Anthropic {
	return &Anthropic{
		apiKey:   apiKey,
		size:     size,
		endpoint: anthropicURL,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Summarize asks the configured model for a summary between b.MinLength and
// b.MaxLength words.
func (a *Anthropic) Summarize(ctx context.Context, text string, b Bounds) (string, error) {
	if strings.TrimSpace(text) == "" {
		return EmptyInputSummary, nil
	}
	b = resolveBounds(b, a.size.Bounds())

	words := strings.Fields(preprocess(text))
	if len(words) > maxInputWords {
		words = words[:maxInputWords]
	}

	prompt := fmt.Sprintf("Summarize this transcript in %d to %d words.\n\n<transcript>\n%s\n</transcript>",
		b.MinLength, b.MaxLength, strings.Join(words, " "))

	reqBody := messagesRequest{
		Model: a.size.Model,
		// Roughly two tokens per word leaves headroom for the upper bound.
		MaxTokens: b.MaxLength * 2,
		System:    summarySystemPrompt,
		Messages:  []message{{Role: "user", Content: prompt}},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Type != "" {
			return "", fmt.Errorf("api error %d: %s: %s", resp.StatusCode, errResp.Error.Type, errResp.Error.Message)
		}
		return "", fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp messagesResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	var sb strings.Builder
	for _, c := range apiResp.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	summary := strings.TrimSpace(sb.String())
	if summary == "" {
		return "", fmt.Errorf("empty response content")
	}
	return summary, nil
}
