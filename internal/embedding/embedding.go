package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	lcopenai "github.com/tmc/langchaingo/llms/openai"

	"document-qa/internal/config"
	"document-qa/internal/helper"
	"document-qa/internal/models"
)

// Client is a remote embedding model returning one vector per text
type Client interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Service turns text into vectors of a fixed dimension
type Service struct {
	client     Client
	dimension  int
	maxRetries int
}

// NewService wraps client. A dimension of 0 disables the length check.
func NewService(client Client, dimension, maxRetries int) *Service {
	return &Service{client: client, dimension: dimension, maxRetries: maxRetries}
}

var newlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Embed returns the embedding of text with line breaks collapsed to spaces.
// Every failure wraps ErrEmbeddingService.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	input := newlines.Replace(text)

	var vec []float32
	err := helper.Retry(ctx, s.maxRetries, "embed", func(ctx context.Context) error {
		v, err := s.client.EmbedQuery(ctx, input)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingService, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned", models.ErrEmbeddingService)
	}
	if s.dimension > 0 && len(vec) != s.dimension {
		return nil, fmt.Errorf("%w: %w: got %d, want %d", models.ErrEmbeddingService, models.ErrDimensionMismatch, len(vec), s.dimension)
	}
	return vec, nil
}

// NewClient builds the embedding client for the configured provider
func NewClient(cfg *config.LLMConfig) (Client, error) {
	log.Debug().Str("provider", cfg.Provider).Str("base_url", cfg.BaseURL).Str("model", cfg.Model).Msg("Creating embedder")
	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbedder(cfg)
	case "ollama":
		return NewOllamaEmbedder(cfg)
	case "openai-go":
		return NewOpenAIGoEmbedder(cfg), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", models.ErrInvalidConfig, cfg.Provider)
	}
}

func httpClient(cfg *config.LLMConfig) *http.Client {
	return &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second}
}

// NewOpenAIEmbedder creates a langchaingo embedder over an OpenAI compatible API
func NewOpenAIEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	llm, err := lcopenai.New(
		lcopenai.WithBaseURL(cfg.BaseURL),
		lcopenai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		lcopenai.WithEmbeddingModel(cfg.Model),
		lcopenai.WithHTTPClient(httpClient(cfg)),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing openai client: %w", err)
	}
	return embeddings.NewEmbedder(llm)
}

// NewOllamaEmbedder creates a langchaingo embedder over a local Ollama server
func NewOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
		ollama.WithHTTPClient(httpClient(cfg)),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing ollama client: %w", err)
	}
	return embeddings.NewEmbedder(llm)
}

// OpenAIGoEmbedder calls the embeddings endpoint through the official SDK
type OpenAIGoEmbedder struct {
	client openai.Client
	model  string
}

func NewOpenAIGoEmbedder(cfg *config.LLMConfig) *OpenAIGoEmbedder {
	return &OpenAIGoEmbedder{
		client: openai.NewClient(
			option.WithAPIKey(cfg.Key),
			option.WithBaseURL(cfg.BaseURL),
			option.WithMaxRetries(0),
			option.WithRequestTimeout(time.Duration(cfg.TimeoutSecs)*time.Second),
		),
		model: cfg.Model,
	}
}

func (e *OpenAIGoEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding data in response")
	}
	return toFloat32(resp.Data[0].Embedding), nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
