// Package lexicon holds the versioned trigger-phrase bank and its compiled matchers.
package lexicon

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultBank []byte

// Bank is the raw phrase data as stored in YAML.
type Bank struct {
	Version           string   `yaml:"version"`
	RiskMarkers       []string `yaml:"risk_markers"`
	Grief             []string `yaml:"grief"`
	Panic             []string `yaml:"panic"`
	NegativeEvents    []string `yaml:"negative_events"`
	PositiveHyperbole []string `yaml:"positive_hyperbole"`
	Profanity         []string `yaml:"profanity"`
}

// Set is the compiled, read-only form of a Bank. Safe for concurrent use.
type Set struct {
	Version       string
	Risk          *Matcher
	Grief         *Matcher
	Panic         *Matcher
	NegativeEvent *Matcher
	Hyperbole     *Matcher
	Profanity     *Matcher
}

var (
	defaultOnce sync.Once
	defaultSet  *Set
)

// Default returns the compiled embedded bank.
func Default() *Set {
	defaultOnce.Do(func() {
		set, err := Parse(defaultBank)
		if err != nil {
			panic(fmt.Sprintf("embedded lexicon is invalid: %v", err))
		}
		defaultSet = set
	})
	return defaultSet
}

// Load reads and compiles a bank from a YAML file. An empty path yields the embedded bank.
func Load(path string) (*Set, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	set, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("lexicon %s: %w", path, err)
	}
	return set, nil
}

// Parse decodes YAML and compiles it.
func Parse(raw []byte) (*Set, error) {
	var bank Bank
	if err := yaml.Unmarshal(raw, &bank); err != nil {
		return nil, fmt.Errorf("decode lexicon: %w", err)
	}
	return bank.Compile()
}

// Compile validates the bank and builds matchers. Risk markers are substring matched so
// inflected or run-together forms are never missed.
func (b Bank) Compile() (*Set, error) {
	if len(b.RiskMarkers) == 0 {
		return nil, fmt.Errorf("risk_markers must not be empty")
	}
	if overlap := intersect(b.NegativeEvents, b.PositiveHyperbole); len(overlap) > 0 {
		return nil, fmt.Errorf("negative_events and positive_hyperbole overlap: %s", strings.Join(overlap, ", "))
	}

	version := strings.TrimSpace(b.Version)
	if version == "" {
		version = "unversioned"
	}

	return &Set{
		Version:       version,
		Risk:          NewMatcher(b.RiskMarkers, Substring),
		Grief:         NewMatcher(b.Grief, WordBounded),
		Panic:         NewMatcher(b.Panic, WordBounded),
		NegativeEvent: NewMatcher(b.NegativeEvents, WordBounded),
		Hyperbole:     NewMatcher(b.PositiveHyperbole, WordBounded),
		Profanity:     NewMatcher(b.Profanity, WordBounded),
	}, nil
}

func intersect(a, b []string) []string {
	index := make(map[string]struct{}, len(a))
	for _, p := range a {
		index[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
	}
	var out []string
	for _, p := range b {
		key := strings.ToLower(strings.TrimSpace(p))
		if _, ok := index[key]; ok && key != "" {
			out = append(out, key)
		}
	}
	return out
}
