package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port     int
	LogLevel string
	APIToken string

	NatsURL     string
	NatsToken   string
	DatabaseURL string

	ASRURL string
	TTSURL string

	AzureClientID     string
	AzureTenantID     string
	AzureClientSecret string
	OneNoteUser       string
	GraphURL          string

	SummarizerBackend string
	SummarizerSize    string
	AnthropicAPIKey   string

	NoteStorage string
	NotesDir    string
	NoteFormat  string

	AssistantURL   string
	RequestTimeout time.Duration
	MaxRetries     int

	CaptureEnabled bool
	CaptureFormat  string
	CaptureDevice  string
	FFmpegPath     string
}

func Load() Config {
	return Config{
		Port:     envInt("AUTONOTE_PORT", 8760),
		LogLevel: envStr("LOG_LEVEL", "info"),
		APIToken: envStr("AUTONOTE_API_TOKEN", ""),

		NatsURL:     envStr("NATS_URL", ""),
		NatsToken:   envStr("NATS_TOKEN", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),

		ASRURL: envStr("ASR_URL", "http://localhost:8000"),
		TTSURL: envStr("TTS_URL", "http://localhost:8001"),

		AzureClientID:     envStr("AZURE_CLIENT_ID", ""),
		AzureTenantID:     envStr("AZURE_TENANT_ID", ""),
		AzureClientSecret: envStr("AZURE_CLIENT_SECRET", ""),
		OneNoteUser:       envStr("ONENOTE_USER", "me"),
		GraphURL:          envStr("GRAPH_URL", "https://graph.microsoft.com/v1.0"),

		SummarizerBackend: strings.ToLower(envStr("SUMMARIZER_BACKEND", "auto")),
		SummarizerSize:    strings.ToLower(envStr("SUMMARIZER_SIZE", "medium")),
		AnthropicAPIKey:   envStr("ANTHROPIC_API_KEY", ""),

		NoteStorage: strings.ToLower(envStr("NOTE_STORAGE", "auto")),
		NotesDir:    expandHome(envStr("NOTES_DIR", "~/tts_ai_notes")),
		NoteFormat:  strings.ToLower(envStr("NOTE_FORMAT", "markdown")),

		AssistantURL:   envStr("COPILOT_MCP_URL", "http://localhost:3000/mcp"),
		RequestTimeout: time.Duration(envFloat("REQUEST_TIMEOUT", 30) * float64(time.Second)),
		MaxRetries:     envInt("MAX_RETRIES", 3),

		CaptureEnabled: envBool("CAPTURE_ENABLED", false),
		CaptureFormat:  envStr("CAPTURE_FORMAT", "alsa"),
		CaptureDevice:  envStr("CAPTURE_DEVICE", "default"),
		FFmpegPath:     envStr("FFMPEG_PATH", "ffmpeg"),
	}
}

// RemoteCredentialed reports whether enough of the Azure credential triple is
// present to attempt the remote notebook backend. The secret is optional: without
// it the device-code flow is used.
func (c Config) RemoteCredentialed() bool {
	return c.AzureClientID != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home + path[1:]
	}
	return path
}
