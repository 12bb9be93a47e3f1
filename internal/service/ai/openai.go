package ai

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/enoki/backend/internal/config"
	"github.com/zhouzirui/enoki/backend/internal/model/generation"
)

// OpenAIGenerator implements generation.Generator over the OpenAI chat completions API or
// any compatible endpoint.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator builds a client from configuration.
func NewOpenAIGenerator(cfg config.OpenAIConfig) *OpenAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIGenerator{client: openai.NewClientWithConfig(clientCfg), model: cfg.Model}
}

// Generate implements generation.Generator.
func (o *OpenAIGenerator) Generate(ctx context.Context, prompt string, opts generation.Options) (string, error) {
	ctx, cancel := generation.WithTimeout(ctx, opts)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: opts.Temperature,
	}
	if req.Temperature == 0 {
		// A zero temperature is dropped by omitempty; the smallest float keeps it deterministic.
		req.Temperature = math.SmallestNonzeroFloat32
	}
	if opts.MaxTokens > 0 {
		req.MaxCompletionTokens = opts.MaxTokens
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", generation.ErrEmptyOutput
	}
	return resp.Choices[0].Message.Content, nil
}
