package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"document-qa/internal/models"
)

// LLMConfig configures a remote model endpoint
type LLMConfig struct {
	Provider    string `yaml:"provider"` // openai, ollama, openai-go
	BaseURL     string `yaml:"base_url"`
	Key         string `yaml:"key"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // pgdriver or pq
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type ChromemConfig struct {
	Path          string `yaml:"path"`
	InMemory      bool   `yaml:"in_memory"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
}

type MilvusConfig struct {
	Address string `yaml:"address"`
	APIKey  string `yaml:"api_key"`
}

// IndexConfig selects the vector index backend
type IndexConfig struct {
	Backend    string        `yaml:"backend"` // chromem, pgvector, milvus
	Collection string        `yaml:"collection"`
	Dimension  int           `yaml:"dimension"`
	Chromem    ChromemConfig `yaml:"chromem"`
	Milvus     MilvusConfig  `yaml:"milvus"`
}

type RAGConfig struct {
	Separator        string   `yaml:"separator"`
	ChunkSize        int      `yaml:"chunk_size"`
	ChunkOverlap     int      `yaml:"chunk_overlap"`
	NumCandidates    int      `yaml:"num_candidates"`
	TopK             int      `yaml:"top_k"`
	MaxResults       int      `yaml:"max_results"`
	MaxContextChars  int      `yaml:"max_context_chars"`
	Temperature      *float64 `yaml:"temperature"`
	Extensions       []string `yaml:"extensions"`
	EmbedConcurrency int      `yaml:"embed_concurrency"`
	MaxRetries       int      `yaml:"max_retries"`
}

type Config struct {
	LogLevel     string         `yaml:"log_level"`
	EmbedLLM     LLMConfig      `yaml:"embed_llm"`
	InferenceLLM LLMConfig      `yaml:"inference_llm"`
	Database     DatabaseConfig `yaml:"database"`
	Index        IndexConfig    `yaml:"index"`
	RAG          RAGConfig      `yaml:"rag"`
}

// Load reads the YAML config at path, applies the environment and defaults
// and validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", models.ErrInvalidConfig, path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	applyEnv(&cfg)
	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated default configuration
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

func applyEnv(cfg *Config) {
	openAIKey := os.Getenv("OPENAI_API_KEY")
	setFromEnv(&cfg.EmbedLLM.Key, "RAG_EMBED_API_KEY", openAIKey)
	setFromEnv(&cfg.InferenceLLM.Key, "RAG_INFERENCE_API_KEY", openAIKey)
	setFromEnv(&cfg.Database.DSN, "RAG_DATABASE_DSN", "")
	setFromEnv(&cfg.Database.Password, "RAG_DATABASE_PASSWORD", "")
	setFromEnv(&cfg.Index.Milvus.Address, "RAG_MILVUS_ADDRESS", "")
	setFromEnv(&cfg.Index.Chromem.EncryptionKey, "RAG_CHROMEM_ENCRYPTION_KEY", "")
}

// setFromEnv overrides dst with the env variable, or fills an empty dst with fallback
func setFromEnv(dst *string, key, fallback string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
		return
	}
	if *dst == "" {
		*dst = fallback
	}
}

// ApplyDefaults fills zero values with the defaults
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	applyLLMDefaults(&cfg.EmbedLLM, "openai", defaultEmbedModels)
	// the default instruct model only serves the completions endpoint
	applyLLMDefaults(&cfg.InferenceLLM, "openai-go", defaultInferenceModels)

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgdriver"
	}

	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "chromem"
	}
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = models.DefaultCollection
	}
	if cfg.Index.Dimension == 0 {
		cfg.Index.Dimension = models.DefaultDimension
	}
	if cfg.Index.Chromem.Path == "" {
		cfg.Index.Chromem.Path = "./chromemdb"
	}
	if cfg.Index.Milvus.Address == "" {
		cfg.Index.Milvus.Address = "localhost:19530"
	}

	if cfg.RAG.Separator == "" {
		cfg.RAG.Separator = models.DefaultSeparator
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = models.DefaultChunkSize
	}
	if cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkOverlap = models.DefaultChunkOverlap
	}
	if cfg.RAG.NumCandidates == 0 {
		cfg.RAG.NumCandidates = models.DefaultNumCandidates
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = models.DefaultTopK
	}
	if cfg.RAG.MaxResults == 0 {
		cfg.RAG.MaxResults = models.DefaultMaxResults
	}
	if cfg.RAG.Temperature == nil {
		t := models.DefaultTemperature
		cfg.RAG.Temperature = &t
	}
	if len(cfg.RAG.Extensions) == 0 {
		cfg.RAG.Extensions = append([]string(nil), models.DefaultExtensions...)
	}
	for i, ext := range cfg.RAG.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.RAG.Extensions[i] = ext
	}
	if cfg.RAG.EmbedConcurrency == 0 {
		cfg.RAG.EmbedConcurrency = 1
	}
}

// default model per provider
var (
	defaultEmbedModels = map[string]string{
		"openai":    "text-embedding-ada-002",
		"openai-go": "text-embedding-ada-002",
		"ollama":    "nomic-embed-text",
	}
	defaultInferenceModels = map[string]string{
		"openai":    "gpt-4o-mini",
		"openai-go": "gpt-3.5-turbo-instruct",
		"ollama":    "llama3.2",
	}
)

func applyLLMDefaults(c *LLMConfig, provider string, byProvider map[string]string) {
	if c.Provider == "" {
		c.Provider = provider
	}
	if c.BaseURL == "" {
		switch c.Provider {
		case "ollama":
			c.BaseURL = "http://localhost:11434"
		default:
			c.BaseURL = "https://api.openai.com/v1"
		}
	}
	if c.Model == "" {
		c.Model = byProvider[c.Provider]
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 60
	}
}

// Temperature returns the configured sampling temperature
func (c *Config) Temperature() float64 {
	if c.RAG.Temperature == nil {
		return models.DefaultTemperature
	}
	return *c.RAG.Temperature
}

const redacted = "***"

// Redacted returns a copy safe to log: keys, passwords and DSN credentials are masked
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	c.EmbedLLM.Key = mask(c.EmbedLLM.Key)
	c.InferenceLLM.Key = mask(c.InferenceLLM.Key)
	c.Database.Password = mask(c.Database.Password)
	c.Index.Milvus.APIKey = mask(c.Index.Milvus.APIKey)
	c.Index.Chromem.EncryptionKey = mask(c.Index.Chromem.EncryptionKey)
	if u, err := url.Parse(c.Database.DSN); err == nil && u.User != nil {
		c.Database.DSN = u.Redacted()
	} else if err != nil {
		c.Database.DSN = mask(c.Database.DSN)
	}
	return c
}

// Validate rejects configurations that would fail before any external call
func (c *Config) Validate() error {
	var problems []string
	if c.RAG.ChunkSize <= 0 {
		problems = append(problems, "rag.chunk_size must be positive")
	}
	if c.RAG.ChunkOverlap < 0 {
		problems = append(problems, "rag.chunk_overlap must not be negative")
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		problems = append(problems, "rag.chunk_overlap must be smaller than rag.chunk_size")
	}
	if c.RAG.TopK < 0 || c.RAG.MaxResults < 0 || c.RAG.NumCandidates < 0 {
		problems = append(problems, "rag.top_k, rag.max_results and rag.num_candidates must not be negative")
	}
	if c.RAG.MaxContextChars < 0 {
		problems = append(problems, "rag.max_context_chars must not be negative")
	}
	if c.RAG.EmbedConcurrency < 1 {
		problems = append(problems, "rag.embed_concurrency must be at least 1")
	}
	if c.RAG.MaxRetries < 0 {
		problems = append(problems, "rag.max_retries must not be negative")
	}
	if c.Index.Dimension <= 0 {
		problems = append(problems, "index.dimension must be positive")
	}
	switch c.Index.Backend {
	case "chromem", "pgvector", "milvus":
	default:
		problems = append(problems, fmt.Sprintf("unknown index.backend %q", c.Index.Backend))
	}
	switch c.Database.Driver {
	case "pgdriver", "pq":
	default:
		problems = append(problems, fmt.Sprintf("unknown database.driver %q", c.Database.Driver))
	}
	for _, llm := range []LLMConfig{c.EmbedLLM, c.InferenceLLM} {
		switch llm.Provider {
		case "openai", "ollama", "openai-go":
		default:
			problems = append(problems, fmt.Sprintf("unknown llm provider %q", llm.Provider))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", models.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
