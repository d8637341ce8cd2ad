package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/auricle-audio/auricle/pkg/provider/stt"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// trailing punctuation stripped from the final token of a window before
// comparison and re-attached after replacement.
const trailingPunct = ".,!?;:"

// VocabOption is a functional option for configuring a [Vocab].
type VocabOption func(*Vocab)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) VocabOption {
	return func(v *Vocab) {
		v.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate exists and the corrector falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) VocabOption {
	return func(v *Vocab) {
		v.fuzzyThreshold = threshold
	}
}

// Replacement records a single window substitution made by [Vocab.CorrectText].
type Replacement struct {
	// Original is the window text as it appeared in the transcript.
	Original string

	// Term is the canonical vocabulary term that replaced it.
	Term string

	// Score is the Jaro-Winkler similarity that justified the substitution.
	Score float64
}

// preparedTerm caches the lowered tokens and Double Metaphone codes of one
// vocabulary term so per-window matching stays allocation-light.
type preparedTerm struct {
	canonical string
	tokens    []string
	codes     map[string]struct{}
}

// Vocab corrects domain vocabulary in speech-to-text output. Product tickers,
// company names, and contact names are routinely misheard by STT models; the
// corrector realigns them against the user's known-term list before the text
// enters the transcript buffer.
//
// Matching proceeds per whitespace n-gram window, longest window first so
// multi-word terms take precedence over partial single-word matches. A term is
// accepted when its Double Metaphone codes overlap the window's codes and the
// Jaro-Winkler similarity clears the phonetic threshold, or, lacking any code
// overlap, when pure Jaro-Winkler similarity clears the stricter fuzzy
// threshold.
//
// Vocab is read-only after construction and safe for concurrent use.
type Vocab struct {
	terms        []preparedTerm
	maxTermWords int

	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewVocab prepares the given vocabulary terms for correction. Blank terms
// are skipped. An empty vocabulary yields an identity corrector.
func NewVocab(terms []string, opts ...VocabOption) *Vocab {
	v := &Vocab{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(v)
	}
	for _, term := range terms {
		canonical := strings.TrimSpace(term)
		if canonical == "" {
			continue
		}
		tokens := strings.Fields(strings.ToLower(canonical))
		v.terms = append(v.terms, preparedTerm{
			canonical: canonical,
			tokens:    tokens,
			codes:     metaphoneCodes(tokens),
		})
		if len(tokens) > v.maxTermWords {
			v.maxTermWords = len(tokens)
		}
	}
	return v
}

// Empty reports whether the corrector has no vocabulary and therefore acts as
// the identity.
func (v *Vocab) Empty() bool {
	return len(v.terms) == 0
}

// CorrectSegments applies [Vocab.CorrectText] to each segment's text and
// returns the corrected slice along with all substitutions made. Timestamps
// are untouched. The input slice is modified in place.
func (v *Vocab) CorrectSegments(segs []stt.Segment) ([]stt.Segment, []Replacement) {
	if v.Empty() {
		return segs, nil
	}
	var all []Replacement
	for i := range segs {
		corrected, reps := v.CorrectText(segs[i].Text)
		segs[i].Text = corrected
		all = append(all, reps...)
	}
	return segs, all
}

// CorrectText scans text for windows that match a vocabulary term and
// replaces them with the canonical spelling. Trailing punctuation on the
// final token of a replaced window is preserved.
func (v *Vocab) CorrectText(text string) (string, []Replacement) {
	if v.Empty() {
		return text, nil
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	var output []string
	var replacements []Replacement

	i := 0
	for i < len(tokens) {
		// One extra token beyond the longest term so split words can merge.
		maxN := v.maxTermWords + 1
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		advanced := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			bare, punct := splitTrailingPunct(window)

			term, score, ok := v.match(bare)
			if !ok {
				continue
			}

			replaced := term + punct
			if replaced != window {
				replacements = append(replacements, Replacement{
					Original: window,
					Term:     term,
					Score:    score,
				})
			}
			output = append(output, strings.Fields(replaced)...)
			i += n
			advanced = true
			break
		}

		if !advanced {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), replacements
}

// match finds the best vocabulary term for the given window text. Phonetic
// candidates (any Double Metaphone code overlap) always outrank pure fuzzy
// candidates.
func (v *Vocab) match(window string) (term string, score float64, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(window))
	if lower == "" {
		return "", 0, false
	}
	windowTokens := strings.Fields(lower)
	windowCodes := metaphoneCodes(windowTokens)

	var (
		best         *preparedTerm
		bestScore    float64
		bestPhonetic bool
	)

	for t := range v.terms {
		pt := &v.terms[t]
		if diff := len(pt.tokens) - len(windowTokens); diff > 1 || diff < -1 {
			continue
		}
		// The relaxed phonetic threshold only applies when window and term
		// have the same shape. Split or merged words compare concatenated
		// strings, where per-token code overlap says little.
		phonetic := len(windowTokens) == len(pt.tokens) && codesOverlap(windowCodes, pt.codes)
		sim := similarity(windowTokens, pt.tokens)

		if phonetic {
			if sim >= v.phoneticThreshold && (!bestPhonetic || sim > bestScore) {
				best, bestScore, bestPhonetic = pt, sim, true
			}
		} else if !bestPhonetic {
			if sim >= v.fuzzyThreshold && sim > bestScore {
				best, bestScore = pt, sim
			}
		}
	}

	if best == nil {
		return "", 0, false
	}
	return best.canonical, bestScore, true
}

// metaphoneCodes returns the union of Double Metaphone codes for the given
// tokens. Empty codes are excluded.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, found := b[code]; found {
			return true
		}
	}
	return false
}

// similarity scores a window against a term.
//
// Equal token counts use the positional minimum of per-token Jaro-Winkler
// scores, so every spoken word must resemble its counterpart. A full-string
// comparison would let one shared word carry an otherwise unrelated window,
// turning "raised capital" into "Acme Capital".
//
// Token counts that differ by one compare the space-stripped concatenations,
// which catches words the STT model split or merged, such as "black rock"
// against the term "BlackRock". A genuine split or merge leaves the letters
// nearly intact, so the concatenated lengths may differ by at most one; the
// guard keeps a term from absorbing an unrelated neighbouring word via the
// Winkler prefix bonus.
func similarity(windowTokens, termTokens []string) float64 {
	if len(windowTokens) == len(termTokens) {
		score := 1.0
		for i := range windowTokens {
			s := matchr.JaroWinkler(windowTokens[i], termTokens[i], false)
			if s < score {
				score = s
			}
		}
		return score
	}
	joined1 := strings.Join(windowTokens, "")
	joined2 := strings.Join(termTokens, "")
	if diff := len(joined1) - len(joined2); diff > 1 || diff < -1 {
		return 0
	}
	return matchr.JaroWinkler(joined1, joined2, false)
}

// splitTrailingPunct splits off trailing sentence punctuation from the end of
// a window so "acme." can match the term "Acme".
func splitTrailingPunct(window string) (bare, punct string) {
	end := len(window)
	for end > 0 && strings.ContainsRune(trailingPunct, rune(window[end-1])) {
		end--
	}
	return window[:end], window[end:]
}
