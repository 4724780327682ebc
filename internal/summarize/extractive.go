package summarize

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	reSentenceEnd = regexp.MustCompile(`[.!?]\s+`)
	reWord        = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {}, "at": {}, "to": {},
	"for": {}, "of": {}, "with": {}, "by": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {},
	"been": {}, "being": {}, "have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {}, "will": {},
	"would": {}, "could": {}, "should": {}, "may": {}, "might": {}, "must": {}, "can": {}, "shall": {},
}

// Extractive is an offline summarizer that keeps the highest-scoring
// sentences, scored by average frequency of their non-stop words.
type Extractive struct {
	defaults Bounds
}

func NewExtractive(defaults Bounds) *Extractive {
	return &Extractive{defaults: defaults}
}

func (e *Extractive) Summarize(ctx context.Context, text string, b Bounds) (string, error) {
	if strings.TrimSpace(text) == "" {
		return EmptyInputSummary, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b = resolveBounds(b, e.defaults)
	text = preprocess(text)

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		if utf8.RuneCountInString(text) > 200 {
			return string([]rune(text)[:200]) + "...", nil
		}
		return text, nil
	}

	freq := make(map[string]int)
	for _, w := range reWord.FindAllString(strings.ToLower(text), -1) {
		freq[w]++
	}

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, s := range sentences {
		words := reWord.FindAllString(strings.ToLower(s), -1)
		var total float64
		for _, w := range words {
			if _, stop := stopWords[w]; !stop {
				total += float64(freq[w])
			}
		}
		if len(words) > 0 {
			total /= float64(len(words))
		}
		ranked[i] = scored{idx: i, score: total}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	keep := make([]bool, len(sentences))
	words := 0
	for _, r := range ranked {
		n := len(strings.Fields(sentences[r.idx]))
		if words+n > b.MaxLength {
			break
		}
		keep[r.idx] = true
		words += n
	}

	var out []string
	for i, s := range sentences {
		if keep[i] {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		// Even the best sentence overflows the bound; fall back to a word cut.
		fields := strings.Fields(text)
		if len(fields) > b.MaxLength {
			return strings.Join(fields[:b.MaxLength], " ") + "...", nil
		}
		return text, nil
	}
	return strings.Join(out, " "), nil
}

// splitSentences splits after terminal punctuation followed by whitespace.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range reSentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start : loc[0]+1]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
