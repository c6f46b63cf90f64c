package llmservice

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	lcopenai "github.com/tmc/langchaingo/llms/openai"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

// Generator completes a single prompt
type Generator interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}

// NewGenerator builds the generator for the configured provider
func NewGenerator(cfg *config.LLMConfig) (Generator, error) {
	log.Debug().Str("provider", cfg.Provider).Str("base_url", cfg.BaseURL).Str("model", cfg.Model).Msg("Creating generator")
	httpClient := &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second}

	switch cfg.Provider {
	case "openai":
		llm, err := lcopenai.New(
			lcopenai.WithBaseURL(cfg.BaseURL),
			lcopenai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			lcopenai.WithModel(cfg.Model),
			lcopenai.WithHTTPClient(httpClient),
		)
		if err != nil {
			return nil, fmt.Errorf("initializing openai client: %w", err)
		}
		return NewLangChainGenerator(llm), nil
	case "ollama":
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
			ollama.WithHTTPClient(httpClient),
		)
		if err != nil {
			return nil, fmt.Errorf("initializing ollama client: %w", err)
		}
		return NewLangChainGenerator(llm), nil
	case "openai-go":
		return NewCompletionGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("%w: unknown generation provider %q", models.ErrInvalidConfig, cfg.Provider)
	}
}

// LangChainGenerator sends the prompt as a single human message
type LangChainGenerator struct {
	llm llms.Model
}

func NewLangChainGenerator(llm llms.Model) *LangChainGenerator {
	return &LangChainGenerator{llm: llm}
}

func (g *LangChainGenerator) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, g.llm, prompt, llms.WithTemperature(temperature))
}

// CompletionGenerator uses the legacy completions endpoint, which serves
// instruct models such as gpt-3.5-turbo-instruct
type CompletionGenerator struct {
	client openai.Client
	model  string
}

func NewCompletionGenerator(cfg *config.LLMConfig) *CompletionGenerator {
	return &CompletionGenerator{
		client: openai.NewClient(
			option.WithAPIKey(cfg.Key),
			option.WithBaseURL(cfg.BaseURL),
			option.WithMaxRetries(0),
			option.WithRequestTimeout(time.Duration(cfg.TimeoutSecs)*time.Second),
		),
		model: cfg.Model,
	}
}

func (g *CompletionGenerator) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	resp, err := g.client.Completions.New(ctx, openai.CompletionNewParams{
		Model:       openai.CompletionNewParamsModel(g.model),
		Prompt:      openai.CompletionNewParamsPromptUnion{OfString: openai.String(prompt)},
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response")
	}
	return resp.Choices[0].Text, nil
}
