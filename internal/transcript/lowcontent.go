package transcript

import "strings"

// InsufficientContentSummary replaces the REDUCE output when the low-content
// guard trips. The wording is part of the client contract.
const InsufficientContentSummary = "No usable call audio was captured from the target app. Please check your capture configuration."

// DefaultFillerPhrases are the utterances whisper-family models hallucinate
// on silence or background noise. Multi-word phrases are matched before
// single words.
var DefaultFillerPhrases = []string{"thank you", "thanks", "you", "uh", "um"}

const (
	// lowContentWordThreshold is the word count below which a transcript is
	// suspected to be filler.
	lowContentWordThreshold = 30

	// lowContentFillerRatio is the fraction of words that must match filler
	// phrases for the guard to trip.
	lowContentFillerRatio = 0.8
)

// Guard decides whether a finished session produced enough real speech to be
// worth a REDUCE pass. The zero value is not usable; use NewGuard.
type Guard struct {
	// phrases holds filler phrases as word slices, longest first.
	phrases [][]string
}

// NewGuard returns a Guard matching the given filler phrases. An empty slice
// falls back to DefaultFillerPhrases.
func NewGuard(fillerPhrases []string) *Guard {
	if len(fillerPhrases) == 0 {
		fillerPhrases = DefaultFillerPhrases
	}
	g := &Guard{}
	for _, p := range fillerPhrases {
		words := strings.Fields(strings.ToLower(p))
		if len(words) > 0 {
			g.phrases = append(g.phrases, words)
		}
	}
	// Longest phrases match first so "thank you" consumes both words before
	// "you" is considered.
	for i := 1; i < len(g.phrases); i++ {
		for j := i; j > 0 && len(g.phrases[j]) > len(g.phrases[j-1]); j-- {
			g.phrases[j], g.phrases[j-1] = g.phrases[j-1], g.phrases[j]
		}
	}
	return g
}

// LowContent reports whether the session transcript should be treated as
// having no usable speech: no chunk summaries were produced at all, or the
// full text is under the word threshold and dominated by filler phrases.
func (g *Guard) LowContent(fullText string, summaryCount int) bool {
	if summaryCount == 0 {
		return true
	}
	words := tokenize(fullText)
	if len(words) == 0 {
		return true
	}
	if len(words) >= lowContentWordThreshold {
		return false
	}

	filler := 0
	for i := 0; i < len(words); {
		matched := 0
		for _, phrase := range g.phrases {
			if matchesAt(words, i, phrase) {
				matched = len(phrase)
				break
			}
		}
		if matched > 0 {
			filler += matched
			i += matched
		} else {
			i++
		}
	}
	return float64(filler)/float64(len(words)) >= lowContentFillerRatio
}

// LowContent applies the default guard.
func LowContent(fullText string, summaryCount int) bool {
	return NewGuard(nil).LowContent(fullText, summaryCount)
}

// tokenize lowercases the text and strips punctuation from word boundaries.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.TrimFunc(f, func(r rune) bool {
			return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '\'')
		})
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

func matchesAt(words []string, i int, phrase []string) bool {
	if i+len(phrase) > len(words) {
		return false
	}
	for j, p := range phrase {
		if words[i+j] != p {
			return false
		}
	}
	return true
}
