package lexicon

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Mode controls how phrases are anchored inside the text.
type Mode int

const (
	// Substring matches anywhere, including inside longer words.
	Substring Mode = iota
	// WordBounded requires word boundaries at phrase edges that are word characters.
	WordBounded
)

// Matcher is a compiled, case-insensitive union over a fixed phrase list.
type Matcher struct {
	re      *regexp.Regexp
	phrases []string
	mode    Mode
}

// NewMatcher compiles phrases into a single alternation. Longer phrases are tried first so
// "so amazing" wins over "amazing".
func NewMatcher(phrases []string, mode Mode) *Matcher {
	cleaned := normalizePhrases(phrases)
	m := &Matcher{phrases: cleaned, mode: mode}
	if len(cleaned) == 0 {
		return m
	}

	alts := make([]string, 0, len(cleaned))
	for _, p := range cleaned {
		alt := regexp.QuoteMeta(p)
		if mode == WordBounded {
			first, _ := utf8.DecodeRuneInString(p)
			last, _ := utf8.DecodeLastRuneInString(p)
			if isWordRune(first) {
				alt = `\b` + alt
			}
			if isWordRune(last) {
				alt = alt + `\b`
			}
		}
		alts = append(alts, alt)
	}
	m.re = regexp.MustCompile(`(?i)(?:` + strings.Join(alts, "|") + `)`)
	return m
}

// Count returns the number of non-overlapping phrase occurrences.
func (m *Matcher) Count(text string) int {
	if m == nil || m.re == nil || text == "" {
		return 0
	}
	return len(m.re.FindAllStringIndex(Normalize(text), -1))
}

// Any reports whether at least one phrase occurs.
func (m *Matcher) Any(text string) bool {
	if m == nil || m.re == nil || text == "" {
		return false
	}
	return m.re.MatchString(Normalize(text))
}

// Matches returns the distinct phrases found, lowercased, in order of first appearance.
func (m *Matcher) Matches(text string) []string {
	if m == nil || m.re == nil || text == "" {
		return nil
	}
	found := m.re.FindAllString(Normalize(text), -1)
	seen := make(map[string]struct{}, len(found))
	out := make([]string, 0, len(found))
	for _, f := range found {
		key := strings.ToLower(f)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// Phrases returns a copy of the compiled phrase list.
func (m *Matcher) Phrases() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.phrases...)
}

func normalizePhrases(phrases []string) []string {
	seen := make(map[string]struct{}, len(phrases))
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(Normalize(p))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

var apostrophes = strings.NewReplacer("\u2019", "'", "\u2018", "'", "\u02bc", "'", "\uff07", "'")

// Normalize folds typographic apostrophes into ' and collapses whitespace runs, so text
// typed on a phone keyboard matches the same phrases as plain ASCII.
func Normalize(text string) string {
	return strings.Join(strings.Fields(apostrophes.Replace(text)), " ")
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
