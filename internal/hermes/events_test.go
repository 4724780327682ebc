package hermes

import (
	"encoding/json"
	"testing"
)

func TestAudioStoredEventParsing(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantPath   string
		wantTitle  string
		wantCreate *bool
	}{
		{
			name:     "minimal",
			raw:      `{"audio_path": "/data/rec.wav"}`,
			wantPath: "/data/rec.wav",
		},
		{
			name:       "explicit no note",
			raw:        `{"audio_path": "/data/rec.mp3", "title": "Standup", "create_note": false}`,
			wantPath:   "/data/rec.mp3",
			wantTitle:  "Standup",
			wantCreate: new(bool),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var evt AudioStoredEvent
			if err := json.Unmarshal([]byte(tt.raw), &evt); err != nil {
				t.Fatalf("failed to parse AudioStoredEvent: %v", err)
			}
			if evt.AudioPath != tt.wantPath {
				t.Errorf("expected audio_path %q, got %q", tt.wantPath, evt.AudioPath)
			}
			if evt.Title != tt.wantTitle {
				t.Errorf("expected title %q, got %q", tt.wantTitle, evt.Title)
			}
			if (evt.CreateNote == nil) != (tt.wantCreate == nil) {
				t.Fatalf("create_note presence mismatch: %v", evt.CreateNote)
			}
			if evt.CreateNote != nil && *evt.CreateNote != *tt.wantCreate {
				t.Errorf("expected create_note %v, got %v", *tt.wantCreate, *evt.CreateNote)
			}
		})
	}
}

func TestSubjectConstants(t *testing.T) {
	subjects := map[string]string{
		SubjectAudioStored:  "autonote.audio.stored",
		SubjectRunCompleted: "autonote.run.completed",
		SubjectNoteCreated:  "autonote.note.created",
	}
	for got, want := range subjects {
		if got != want {
			t.Errorf("expected subject %q, got %q", want, got)
		}
	}
}
