// Package generation describes the text-generation capability consumed by the
// classifier, the reply builder and the memory evolver.
package generation

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyOutput is returned when a model answers with nothing usable.
var ErrEmptyOutput = errors.New("model returned empty output")

// Options bounds a single generation call.
type Options struct {
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Generator turns a prompt into text. Implementations must honour ctx and Options.Timeout.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string, opts Options) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	return f(ctx, prompt, opts)
}

// WithTimeout derives a context bounded by opts.Timeout when one is set.
func WithTimeout(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	if opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, opts.Timeout)
}
