package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/enoki/backend/internal/config"
	"github.com/zhouzirui/enoki/backend/internal/model/generation"
)

// systemPrompt frames every generation call; task instructions travel in the user message.
const systemPrompt = "You are Enoki, a supportive mental-health companion. Follow the instructions in the user message exactly and answer only with what they ask for."

// Service runs prompts through an eino chain over an Ark chat model.
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the chain for a configured Ark model.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel)
}

// NewServiceWithModel compiles the chain around any eino chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.ChatModel) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chatModel: chatModel, chain: runnable}, nil
}

// Generate implements generation.Generator.
func (s *Service) Generate(ctx context.Context, promptText string, opts generation.Options) (string, error) {
	ctx, cancel := generation.WithTimeout(ctx, opts)
	defer cancel()

	input := map[string]any{
		"system": systemPrompt,
		"query":  promptText,
	}

	modelOpts := []model.Option{model.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		modelOpts = append(modelOpts, model.WithMaxTokens(opts.MaxTokens))
	}

	response, err := s.chain.Invoke(ctx, input, compose.WithChatModelOption(modelOpts...))
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", generation.ErrEmptyOutput
	}

	log.Printf("[ai] generated response, length=%d, max_tokens=%d", len(response.Content), opts.MaxTokens)
	return response.Content, nil
}

// NewGenerator selects the generate_text backend from configuration. A nil generator with
// a nil error means generation is disabled and every caller uses its fallback.
func NewGenerator(ctx context.Context, cfg *config.Config) (generation.Generator, error) {
	switch cfg.LLMProvider {
	case "none":
		return nil, nil
	case "openai":
		if !cfg.OpenAI.Enabled() {
			log.Println("[ai] OPENAI_API_KEY 未配置，跳过 AI 功能初始化")
			return nil, nil
		}
		return NewOpenAIGenerator(cfg.OpenAI), nil
	default:
		if !cfg.AI.Enabled() {
			log.Println("[ai] Ark 凭证未配置，跳过 AI 功能初始化")
			return nil, nil
		}
		svc, err := NewService(ctx, cfg.AI)
		if err != nil {
			return nil, err
		}
		return svc, nil
	}
}
