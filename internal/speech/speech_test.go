package speech

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeAudio(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func TestTranscribe_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			t.Errorf("expected /transcribe, got %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file field: %v", err)
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "RIFFdata" {
			t.Errorf("unexpected upload body %q", data)
		}
		if header.Filename != "clip.wav" {
			t.Errorf("expected filename clip.wav, got %q", header.Filename)
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "  hello world \n"})
	}))
	defer server.Close()

	c := NewASRClient(server.URL + "/")
	text, err := c.Transcribe(context.Background(), writeAudio(t, "RIFFdata"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello world" {
		t.Errorf("expected trimmed text, got %q", text)
	}
}

func TestTranscribe_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewASRClient(server.URL)
	if _, err := c.Transcribe(context.Background(), writeAudio(t, "x")); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestTranscribe_MissingFile(t *testing.T) {
	c := NewASRClient("http://127.0.0.1:0")
	if _, err := c.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Fatal("expected error for missing audio file")
	}
}

func TestHealthy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"healthy", http.StatusOK, `{"healthy": true}`, true},
		{"unhealthy", http.StatusOK, `{"healthy": false}`, false},
		{"server error", http.StatusInternalServerError, `{"healthy": true}`, false},
		{"garbage", http.StatusOK, `nope`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			if got := NewASRClient(server.URL).Healthy(context.Background()); got != tt.want {
				t.Errorf("ASR Healthy() = %v, want %v", got, tt.want)
			}
			if got := NewTTSClient(server.URL).Healthy(context.Background()); got != tt.want {
				t.Errorf("TTS Healthy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSynthesize_WritesAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req["text"] != "read this" {
			t.Errorf("unexpected text %q", req["text"])
		}
		w.Header().Set("Content-Type", "audio/wav")
		io.WriteString(w, "WAVEBYTES")
	}))
	defer server.Close()

	out := filepath.Join(t.TempDir(), "nested", "out.wav")
	if err := NewTTSClient(server.URL).Synthesize(context.Background(), "read this", out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "WAVEBYTES" {
		t.Errorf("unexpected audio %q", data)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	if err := NewTTSClient("http://127.0.0.1:0").Synthesize(context.Background(), "  ", "x.wav"); err == nil {
		t.Fatal("expected error for empty text")
	}
}
