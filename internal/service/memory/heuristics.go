package memory

import (
	"github.com/zhouzirui/enoki/backend/internal/analysis/lexicon"
)

type category struct {
	name    string
	matcher *lexicon.Matcher
}

func bucket(name string, phrases ...string) category {
	return category{name: name, matcher: lexicon.NewMatcher(phrases, lexicon.WordBounded)}
}

// Order matters: the first matching stressor wins.
var stressors = []category{
	bucket("work", "work", "job", "boss", "deadline", "deadlines", "coworker", "coworkers", "office", "manager", "shift", "overtime"),
	bucket("school", "school", "exam", "exams", "class", "classes", "homework", "college", "university", "grades", "professor", "assignment", "finals"),
	bucket("family", "family", "mom", "dad", "parents", "mother", "father", "brother", "sister", "siblings"),
}

var (
	tuitionCue    = lexicon.NewMatcher([]string{"tuition", "school fees", "student loan", "student loans"}, lexicon.WordBounded)
	familyPurpose = lexicon.NewMatcher([]string{
		"for my family", "for my parents", "for my kids", "support my family", "provide for",
		"make my parents proud", "make my family proud", "my family depends",
	}, lexicon.WordBounded)
)

var copingKeywords = []category{
	bucket("running", "run", "running", "jog", "jogging"),
	bucket("walking", "walk", "walks", "walking", "hike", "hiking"),
	bucket("exercise", "gym", "workout", "work out", "exercise", "exercising", "lifting"),
	bucket("yoga", "yoga", "stretching"),
	bucket("meditation", "meditate", "meditating", "meditation", "mindfulness"),
	bucket("breathing exercises", "breathing exercise", "breathing exercises", "deep breaths", "box breathing"),
	bucket("journaling", "journal", "journaling", "writing it down"),
	bucket("music", "music", "playlist", "guitar", "piano", "singing"),
	bucket("reading", "reading", "read a book", "books"),
	bucket("talking to friends", "talk to my friend", "talked to my friend", "talking to friends", "call a friend", "called a friend"),
	bucket("therapy", "therapy", "therapist", "counselor", "counseling"),
	bucket("sleep", "nap", "sleep", "sleeping", "rest"),
	bucket("art", "drawing", "painting", "sketching"),
	bucket("cooking", "cooking", "baking"),
	bucket("gaming", "gaming", "video games"),
	bucket("prayer", "pray", "praying", "prayer"),
}

// Stressor returns the first stressor category mentioned in text.
func Stressor(text string) string {
	for _, c := range stressors {
		if c.matcher.Any(text) {
			return c.name
		}
	}
	return ""
}

// Motivation returns the family motivation mentioned in text.
func Motivation(text string) string {
	switch {
	case tuitionCue.Any(text):
		return "family tuition"
	case familyPurpose.Any(text):
		return "family"
	default:
		return ""
	}
}

// Coping returns every coping category mentioned in text, in table order.
func Coping(text string) []string {
	var out []string
	for _, c := range copingKeywords {
		if c.matcher.Any(text) {
			out = append(out, c.name)
		}
	}
	return out
}
