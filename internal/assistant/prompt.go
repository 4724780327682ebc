// Package assistant turns transcripts into structured prompts and exchanges
// them with an external assistant endpoint over a JSON-RPC style envelope.
package assistant

import (
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

type PromptType string

const (
	Question    PromptType = "question"
	Command     PromptType = "command"
	CodeRequest PromptType = "code_request"
	General     PromptType = "general"
)

// ParsePromptType accepts the wire names of the prompt types.
func ParsePromptType(s string) (PromptType, bool) {
	switch pt := PromptType(strings.ToLower(strings.TrimSpace(s))); pt {
	case Question, Command, CodeRequest, General:
		return pt, true
	}
	return "", false
}

var templates = map[PromptType]string{
	Question:    "Please help me with this question: {text}",
	Command:     "Please execute this command or task: {text}",
	CodeRequest: "Please help me write code for: {text}",
	General:     "{text}",
}

// Keyword lists for Classify. Entries with a space are matched as phrases,
// the rest as whole words.
var (
	questionKeywords = []string{"what", "how", "why", "when", "where", "who", "can you", "could you"}
	commandKeywords  = []string{"please", "can you", "would you", "help me", "create", "make", "do"}
	codeKeywords     = []string{"code", "function", "class", "script", "program", "write"}
)

// Prompt is a transcript rendered for the assistant.
type Prompt struct {
	Text      string         `json:"text"`
	Type      PromptType     `json:"prompt_type"`
	Context   map[string]any `json:"context"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  PromptMetadata `json:"metadata"`
}

type PromptMetadata struct {
	OriginalTranscription string  `json:"original_transcription"`
	WordCount             int     `json:"word_count"`
	DetectedLanguage      string  `json:"detected_language"`
	ConfidenceScore       float64 `json:"confidence_score"`
}

// NewPrompt renders transcript with the template for pt, classifying it
// first when pt is empty. context is used as given.
func NewPrompt(transcript string, pt PromptType, context map[string]any, now time.Time) Prompt {
	if pt == "" {
		pt = Classify(transcript)
	}
	tmpl, ok := templates[pt]
	if !ok {
		tmpl = templates[General]
	}
	if context == nil {
		context = map[string]any{}
	}
	return Prompt{
		Text:      strings.ReplaceAll(tmpl, "{text}", strings.TrimSpace(transcript)),
		Type:      pt,
		Context:   context,
		Timestamp: now,
		Metadata: PromptMetadata{
			OriginalTranscription: transcript,
			WordCount:             len(strings.Fields(transcript)),
			DetectedLanguage:      DetectLanguage(transcript),
			ConfidenceScore:       Confidence(transcript),
		},
	}
}

// Classify assigns a prompt type from keywords. Interrogatives win; an
// imperative with a code keyword is a code request; an imperative alone is a
// command; anything else is general.
func Classify(text string) PromptType {
	words := tokenize(text)
	switch {
	case containsAny(words, questionKeywords):
		return Question
	case containsAny(words, commandKeywords):
		if containsAny(words, codeKeywords) {
			return CodeRequest
		}
		return Command
	default:
		return General
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func containsAny(words []string, keywords []string) bool {
	for _, kw := range keywords {
		phrase := strings.Fields(kw)
		for i := 0; i+len(phrase) <= len(words); i++ {
			match := true
			for j, p := range phrase {
				if words[i+j] != p {
					match = false
					break
				}
			}
			if match {
				return true
			}
		}
	}
	return false
}

var languageMarks = []struct {
	code  string
	chars string
}{
	{"es", "ñáéíóúü"},
	{"de", "äöüß"},
	{"fr", "àâäéèêëïîôùûüÿ"},
}

// DetectLanguage is a coarse guess from diacritics, defaulting to "en".
func DetectLanguage(text string) string {
	for _, lm := range languageMarks {
		if strings.ContainsAny(text, lm.chars) {
			return lm.code
		}
	}
	return "en"
}

// Confidence scores text by length and average word length:
// min(0.9, words/20) + min(0.1, avgWordLen/10).
func Confidence(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	chars := 0
	for _, w := range words {
		chars += utf8.RuneCountInString(w)
	}
	avg := float64(chars) / float64(len(words))
	return math.Min(0.9, float64(len(words))/20) + math.Min(0.1, avg/10)
}
