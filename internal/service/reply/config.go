package reply

import (
	"time"

	"github.com/zhouzirui/enoki/backend/internal/analysis/risk"
)

// Budget scales the generation call and post-processing with severity.
type Budget struct {
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
	SentenceCap int     `json:"sentenceCap"`
}

// Config configures the reply builder.
type Config struct {
	// CrisisResources is appended verbatim to every immediate-danger reply.
	CrisisResources []string
	Timeout         time.Duration
	ParagraphEvery  int
}

// DefaultCrisisResources is the US resource list.
func DefaultCrisisResources() []string {
	return []string{
		"988 Suicide & Crisis Lifeline: call or text 988 (US)",
		"Crisis Text Line: text HOME to 741741",
		"Emergency services: call 911 or your local emergency number",
	}
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		CrisisResources: DefaultCrisisResources(),
		Timeout:         8 * time.Second,
		ParagraphEvery:  2,
	}
}

// BudgetFor returns the generation budget of a category.
func BudgetFor(c risk.Category) Budget {
	switch c {
	case risk.ImmediateDanger:
		return Budget{Temperature: 0.4, MaxTokens: 420, SentenceCap: 9}
	case risk.Grief:
		return Budget{Temperature: 0.6, MaxTokens: 360, SentenceCap: 8}
	case risk.Panic:
		return Budget{Temperature: 0.5, MaxTokens: 300, SentenceCap: 6}
	case risk.HighDistress:
		return Budget{Temperature: 0.6, MaxTokens: 300, SentenceCap: 6}
	case risk.Normal:
		return Budget{Temperature: 0.7, MaxTokens: 220, SentenceCap: 5}
	default:
		return Budget{Temperature: 0.7, MaxTokens: 220, SentenceCap: 5}
	}
}
