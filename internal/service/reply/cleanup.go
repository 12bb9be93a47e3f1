package reply

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var genericOpeners = []string{
	"i'm so sorry to hear that",
	"i am so sorry to hear that",
	"i'm sorry to hear that",
	"i am sorry to hear that",
	"i'm sorry you're going through this",
	"i understand how you feel",
	"i understand",
	"i hear you",
	"that sounds really hard",
	"that sounds difficult",
	"thank you for sharing",
	"thanks for sharing",
	"it sounds like",
	"as an ai",
}

var clinicalTerms = []struct {
	re   *regexp.Regexp
	with string
}{
	{regexp.MustCompile(`(?i)\bcoping mechanisms\b`), "ways to cope"},
	{regexp.MustCompile(`(?i)\bcognitive distortions?\b`), "unhelpful thought patterns"},
	{regexp.MustCompile(`(?i)\banxiety disorder\b`), "a lot of anxiety"},
	{regexp.MustCompile(`(?i)\bclinical depression\b`), "feeling really low"},
	{regexp.MustCompile(`(?i)\bdepressive episode\b`), "a really low stretch"},
	{regexp.MustCompile(`(?i)\btrauma response\b`), "reaction to something painful"},
	{regexp.MustCompile(`(?i)\bdissociation\b`), "feeling disconnected"},
	{regexp.MustCompile(`(?i)\bsymptoms\b`), "what you're noticing"},
	{regexp.MustCompile(`(?i)\bdiagnosis\b`), "label"},
	{regexp.MustCompile(`(?i)\bpathological\b`), "really hard"},
}

var sentencePattern = regexp.MustCompile(`[^.!?]+(?:[.!?]+["'”’)\]]*|$)`)

// Clean strips generic openers, replaces clinical terms and re-wraps the text into at
// most sentenceCap sentences, paragraphEvery sentences per paragraph.
func Clean(raw string, sentenceCap, paragraphEvery int) string {
	text := strings.TrimSpace(raw)
	text = strings.Trim(text, "\"")
	text = stripOpeners(text)
	for _, term := range clinicalTerms {
		text = term.re.ReplaceAllString(text, term.with)
	}
	return wrap(Sentences(text), sentenceCap, paragraphEvery)
}

func stripOpeners(text string) string {
	for {
		lower := strings.ToLower(text)
		stripped := false
		for _, opener := range genericOpeners {
			if !strings.HasPrefix(lower, opener) {
				continue
			}
			rest := text[len(opener):]
			if r, _ := utf8.DecodeRuneInString(rest); r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				// "I understanding" is not the opener "I understand".
				continue
			}
			text = strings.TrimLeft(rest, " ,.;:!-—–")
			stripped = true
			break
		}
		if !stripped {
			return capitalize(text)
		}
	}
}

func capitalize(text string) string {
	r, size := utf8.DecodeRuneInString(text)
	if r == utf8.RuneError {
		return text
	}
	return string(unicode.ToUpper(r)) + text[size:]
}

// Sentences splits text into trimmed sentences, keeping terminal punctuation.
func Sentences(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}
	var out []string
	for _, s := range sentencePattern.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func wrap(sentences []string, sentenceCap, paragraphEvery int) string {
	if sentenceCap > 0 && len(sentences) > sentenceCap {
		sentences = sentences[:sentenceCap]
	}
	if paragraphEvery <= 0 {
		paragraphEvery = len(sentences)
	}
	var b strings.Builder
	for i, s := range sentences {
		if i > 0 {
			if i%paragraphEvery == 0 {
				b.WriteString("\n\n")
			} else {
				b.WriteString(" ")
			}
		}
		b.WriteString(s)
	}
	return b.String()
}
