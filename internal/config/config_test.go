package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"document-qa/internal/models"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RAG.ChunkSize != models.DefaultChunkSize || cfg.RAG.ChunkOverlap != models.DefaultChunkOverlap {
		t.Errorf("chunking = %d/%d, want %d/%d", cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, models.DefaultChunkSize, models.DefaultChunkOverlap)
	}
	if cfg.RAG.Separator != "\n" {
		t.Errorf("separator = %q, want newline", cfg.RAG.Separator)
	}
	if cfg.RAG.NumCandidates != 200 || cfg.RAG.TopK != 10 || cfg.RAG.MaxResults != 50 {
		t.Errorf("retrieval defaults = %d/%d/%d", cfg.RAG.NumCandidates, cfg.RAG.TopK, cfg.RAG.MaxResults)
	}
	if cfg.Temperature() != 0.5 {
		t.Errorf("temperature = %v, want 0.5", cfg.Temperature())
	}
	if cfg.Index.Backend != "chromem" {
		t.Errorf("backend = %q, want chromem", cfg.Index.Backend)
	}
	if len(cfg.RAG.Extensions) != 1 || cfg.RAG.Extensions[0] != ".pdf" {
		t.Errorf("extensions = %v, want [.pdf]", cfg.RAG.Extensions)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
index:
  backend: pgvector
  dimension: 768
rag:
  chunk_size: 500
  chunk_overlap: 50
  temperature: 0
  extensions: ["PDF", "txt"]
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Index.Backend != "pgvector" || cfg.Index.Dimension != 768 {
		t.Errorf("index = %+v", cfg.Index)
	}
	if cfg.RAG.ChunkSize != 500 || cfg.RAG.ChunkOverlap != 50 {
		t.Errorf("chunking = %d/%d", cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	}
	if cfg.Temperature() != 0 {
		t.Errorf("explicit zero temperature was overridden: %v", cfg.Temperature())
	}
	want := []string{".pdf", ".txt"}
	for i, ext := range want {
		if cfg.RAG.Extensions[i] != ext {
			t.Errorf("extension[%d] = %q, want %q", i, cfg.RAG.Extensions[i], ext)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-shared")
	t.Setenv("RAG_INFERENCE_API_KEY", "sk-inference")
	t.Setenv("RAG_DATABASE_DSN", "postgres://db")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.EmbedLLM.Key != "sk-shared" {
		t.Errorf("embed key = %q, want shared key", cfg.EmbedLLM.Key)
	}
	if cfg.InferenceLLM.Key != "sk-inference" {
		t.Errorf("inference key = %q", cfg.InferenceLLM.Key)
	}
	if cfg.Database.DSN != "postgres://db" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap equals size", func(c *Config) { c.RAG.ChunkOverlap = c.RAG.ChunkSize }},
		{"overlap larger than size", func(c *Config) { c.RAG.ChunkSize = 100; c.RAG.ChunkOverlap = 150 }},
		{"negative overlap", func(c *Config) { c.RAG.ChunkOverlap = -1 }},
		{"unknown backend", func(c *Config) { c.Index.Backend = "mongo" }},
		{"unknown provider", func(c *Config) { c.EmbedLLM.Provider = "bard" }},
		{"zero concurrency", func(c *Config) { c.RAG.EmbedConcurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, models.ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoadInvalidChunkingRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("rag:\n  chunk_size: 100\n  chunk_overlap: 100\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, models.ErrInvalidConfig) {
		t.Fatalf("Load() error = %v, want ErrInvalidConfig", err)
	}
}

func TestLLMDefaults(t *testing.T) {
	tests := []struct {
		name      string
		embed     LLMConfig
		inference LLMConfig
		wantEmbed LLMConfig
		wantInfer LLMConfig
	}{
		{
			name:      "nothing set",
			wantEmbed: LLMConfig{Provider: "openai", Model: "text-embedding-ada-002"},
			wantInfer: LLMConfig{Provider: "openai-go", Model: "gpt-3.5-turbo-instruct"},
		},
		{
			name:      "chat provider gets a chat model",
			inference: LLMConfig{Provider: "openai"},
			wantEmbed: LLMConfig{Provider: "openai", Model: "text-embedding-ada-002"},
			wantInfer: LLMConfig{Provider: "openai", Model: "gpt-4o-mini"},
		},
		{
			name:      "ollama",
			embed:     LLMConfig{Provider: "ollama"},
			inference: LLMConfig{Provider: "ollama"},
			wantEmbed: LLMConfig{Provider: "ollama", Model: "nomic-embed-text"},
			wantInfer: LLMConfig{Provider: "ollama", Model: "llama3.2"},
		},
		{
			name:      "explicit model kept",
			inference: LLMConfig{Model: "gpt-3.5-turbo-instruct-0914"},
			wantEmbed: LLMConfig{Provider: "openai", Model: "text-embedding-ada-002"},
			wantInfer: LLMConfig{Provider: "openai-go", Model: "gpt-3.5-turbo-instruct-0914"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{EmbedLLM: tt.embed, InferenceLLM: tt.inference}
			ApplyDefaults(&cfg)
			if cfg.EmbedLLM.Provider != tt.wantEmbed.Provider || cfg.EmbedLLM.Model != tt.wantEmbed.Model {
				t.Errorf("embed = %s/%s, want %s/%s", cfg.EmbedLLM.Provider, cfg.EmbedLLM.Model, tt.wantEmbed.Provider, tt.wantEmbed.Model)
			}
			if cfg.InferenceLLM.Provider != tt.wantInfer.Provider || cfg.InferenceLLM.Model != tt.wantInfer.Model {
				t.Errorf("inference = %s/%s, want %s/%s", cfg.InferenceLLM.Provider, cfg.InferenceLLM.Model, tt.wantInfer.Provider, tt.wantInfer.Model)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.EmbedLLM.Key = "sk-embed"
	cfg.InferenceLLM.Key = "sk-infer"
	cfg.Database.Password = "hunter2"
	cfg.Database.DSN = "postgres://app:s3cret@db:5432/docs?sslmode=disable"
	cfg.Index.Milvus.APIKey = "milvus-token"
	cfg.Index.Chromem.EncryptionKey = "0123456789abcdef0123456789abcdef"

	data, err := json.Marshal(cfg.Redacted())
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, secret := range []string{"sk-embed", "sk-infer", "hunter2", "s3cret", "milvus-token", "0123456789abcdef"} {
		if strings.Contains(out, secret) {
			t.Errorf("secret %q leaked in %s", secret, out)
		}
	}
	if !strings.Contains(out, "db:5432/docs") {
		t.Errorf("DSN host should stay visible: %s", out)
	}
	if cfg.EmbedLLM.Key != "sk-embed" {
		t.Error("Redacted must not modify the receiver")
	}
}
