// Package langchain implements ai.TextGenerator on langchain's OpenAI
// chat backend.
package langchain

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/telexbot/internal/ai"
)

const systemPrompt = "You are a helpful chat automation assistant on Telex.im. " +
	"You provide concise, friendly, and accurate responses. " +
	"Keep answers brief but informative. Be professional yet approachable."

const (
	defaultModel       = "gpt-3.5-turbo"
	defaultMaxTokens   = 150
	defaultTemperature = 0.7
)

// Config holds the generator settings, typically sourced from the
// [ai] config section.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

// Generator calls an OpenAI-compatible chat model through langchain.
type Generator struct {
	llm         llms.Model
	modelName   string
	maxTokens   int
	temperature float64
}

// New constructs a Generator. Returns ai.ErrUnavailable when no API
// key is configured so callers can degrade to the default reply.
func New(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, ai.ErrUnavailable
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &Generator{
		llm:         llm,
		modelName:   model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}, nil
}

func (g *Generator) Name() string { return "openai/" + g.modelName }

// Generate builds a chat completion from the system prompt, the recent
// history and the inbound text. Failures (including deadline expiry)
// come back wrapped in ai.ErrGenerationFailed.
func (g *Generator) Generate(ctx context.Context, text string, history []ai.Turn) (string, error) {
	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	for _, turn := range history {
		role := llms.ChatMessageTypeHuman
		if turn.Role == ai.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Content))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, text))

	resp, err := g.llm.GenerateContent(ctx, messages,
		llms.WithMaxTokens(g.maxTokens),
		llms.WithTemperature(g.temperature),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ai.ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", fmt.Errorf("%w: empty completion", ai.ErrGenerationFailed)
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
