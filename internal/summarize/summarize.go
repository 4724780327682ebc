// Package summarize condenses transcripts. It holds the fixed size table, the
// Anthropic-backed and extractive summarizers, and the deterministic truncation
// the pipeline substitutes when no summary is available.
package summarize

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"
)

// FallbackLimit is the number of characters kept by Truncate.
const FallbackLimit = 500

// EmptyInputSummary is returned for blank input instead of calling a backend.
const EmptyInputSummary = "No text provided for summarization."

// Bounds limits summary length in words.
type Bounds struct {
	MaxLength int
	MinLength int
}

// Summarizer produces a summary of text within the given bounds. A zero Bounds
// means the summarizer's configured defaults.
type Summarizer interface {
	Summarize(ctx context.Context, text string, b Bounds) (string, error)
}

// SizeConfig is one row of the size table.
type SizeConfig struct {
	Model     string
	MaxLength int
	MinLength int
}

// Bounds returns the length bounds of the size row.
func (s SizeConfig) Bounds() Bounds {
	return Bounds{MaxLength: s.MaxLength, MinLength: s.MinLength}
}

const DefaultSize = "medium"

var sizes = map[string]SizeConfig{
	"small":  {Model: "claude-3-5-haiku-20241022", MaxLength: 100, MinLength: 20},
	"medium": {Model: "claude-sonnet-4-20250514", MaxLength: 150, MinLength: 30},
	"large":  {Model: "claude-opus-4-20250514", MaxLength: 200, MinLength: 50},
}

// LookupSize resolves a size keyword. Unknown keywords resolve to the medium
// row and ok=false.
func LookupSize(name string) (cfg SizeConfig, ok bool) {
	cfg, ok = sizes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return sizes[DefaultSize], false
	}
	return cfg, true
}

// Truncate is the deterministic stand-in for a missing summary: the first
// FallbackLimit characters followed by "...", or the text unchanged when it is
// short enough.
func Truncate(text string) string {
	if utf8.RuneCountInString(text) <= FallbackLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:FallbackLimit]) + "..."
}

var (
	reSpace   = regexp.MustCompile(`\s+`)
	reNonText = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?-]`)
)

// preprocess collapses whitespace and drops characters other than word
// characters, whitespace and basic punctuation.
func preprocess(text string) string {
	text = reSpace.ReplaceAllString(strings.TrimSpace(text), " ")
	return reNonText.ReplaceAllString(text, "")
}

func resolveBounds(b, defaults Bounds) Bounds {
	if b.MaxLength <= 0 {
		b.MaxLength = defaults.MaxLength
	}
	if b.MinLength <= 0 {
		b.MinLength = defaults.MinLength
	}
	if b.MinLength > b.MaxLength {
		b.MinLength = b.MaxLength
	}
	return b
}
