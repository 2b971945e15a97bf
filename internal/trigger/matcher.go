package trigger

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
)

// Matcher decides whether a lower-cased transcription contains the phrase.
// Implementations are read-only after construction and safe for concurrent
// use.
type Matcher interface {
	Match(text string) bool
}

// NewMatcher returns the matcher for mode. phrase must already be lower-cased.
func NewMatcher(mode MatchMode, phrase string) (Matcher, error) {
	switch mode {
	case "", MatchSubstring:
		return SubstringMatcher{Phrase: phrase}, nil
	case MatchPhonetic:
		return NewPhoneticMatcher(phrase), nil
	default:
		return nil, fmt.Errorf("trigger: unknown match mode %q", mode)
	}
}

// SubstringMatcher matches a contiguous substring. Word boundaries are not
// required, so "robot" matches "robotics lab".
type SubstringMatcher struct {
	Phrase string
}

// Match implements [Matcher]. An empty phrase never matches.
func (m SubstringMatcher) Match(text string) bool {
	if m.Phrase == "" {
		return false
	}
	return strings.Contains(text, m.Phrase)
}

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// PhoneticMatcher accepts a transcription when some run of words with the
// phrase's word count sounds like the phrase.
//
// Each window is compared in two stages. If any Double Metaphone code of the
// window overlaps with the phrase's codes, a Jaro-Winkler score of at least
// 0.70 is enough. Otherwise a score of at least 0.85 on the plain strings is
// required. An exact substring match always succeeds.
type PhoneticMatcher struct {
	phrase            string
	tokens            []string
	codes             map[string]struct{}
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// PhoneticOption configures a [PhoneticMatcher].
type PhoneticOption func(*PhoneticMatcher)

// WithPhoneticThreshold sets the minimum score for phonetically overlapping
// windows. Default: 0.70.
func WithPhoneticThreshold(v float64) PhoneticOption {
	return func(m *PhoneticMatcher) { m.phoneticThreshold = v }
}

// WithFuzzyThreshold sets the minimum score for windows without phonetic
// overlap. Default: 0.85.
func WithFuzzyThreshold(v float64) PhoneticOption {
	return func(m *PhoneticMatcher) { m.fuzzyThreshold = v }
}

// NewPhoneticMatcher precomputes the phrase's codes.
func NewPhoneticMatcher(phrase string, opts ...PhoneticOption) *PhoneticMatcher {
	tokens := strings.Fields(phrase)
	m := &PhoneticMatcher{
		phrase:            strings.Join(tokens, " "),
		tokens:            tokens,
		codes:             codesFor(tokens),
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match implements [Matcher]. An empty phrase never matches.
func (m *PhoneticMatcher) Match(text string) bool {
	if len(m.tokens) == 0 {
		return false
	}
	if strings.Contains(text, m.phrase) {
		return true
	}
	words := strings.Fields(text)
	n := len(m.tokens)
	for i := 0; i+n <= len(words); i++ {
		window := words[i : i+n]
		full := strings.Join(window, " ")
		score := matchr.JaroWinkler(full, m.phrase, false)
		if n > 1 {
			if s := matchr.JaroWinkler(strings.Join(window, ""), strings.Join(m.tokens, ""), false); s > score {
				score = s
			}
		}
		if overlaps(codesFor(window), m.codes) {
			if score >= m.phoneticThreshold {
				return true
			}
		} else if score >= m.fuzzyThreshold {
			return true
		}
	}
	return false
}

// codesFor returns the union of all non-empty Double Metaphone codes of tokens.
func codesFor(tokens []string) map[string]struct{} {
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

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

var (
	_ Matcher = SubstringMatcher{}
	_ Matcher = (*PhoneticMatcher)(nil)
)
