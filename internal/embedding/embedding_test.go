package embedding

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

type fakeClient struct {
	vec    []float32
	err    error
	failN  int
	calls  int
	inputs []string
}

func (f *fakeClient) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.calls++
	f.inputs = append(f.inputs, text)
	if f.calls <= f.failN {
		return nil, errors.New("rate limited")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func TestEmbed_CollapsesNewlines(t *testing.T) {
	c := &fakeClient{vec: []float32{0.1, 0.2, 0.3}}
	s := NewService(c, 3, 0)

	v, err := s.Embed(context.Background(), "stage one\nstage two\r\nend")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != 3 {
		t.Fatalf("expected 3 dims, got %d", len(v))
	}
	if c.inputs[0] != "stage one stage two end" {
		t.Fatalf("unexpected client input %q", c.inputs[0])
	}
}

func TestEmbed_Errors(t *testing.T) {
	tests := []struct {
		name    string
		client  *fakeClient
		dim     int
		wantDim bool
	}{
		{"client failure", &fakeClient{err: errors.New("unreachable")}, 3, false},
		{"empty vector", &fakeClient{vec: []float32{}}, 3, false},
		{"wrong dimension", &fakeClient{vec: []float32{1, 2}}, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(tt.client, tt.dim, 0).Embed(context.Background(), "text")
			if !errors.Is(err, models.ErrEmbeddingService) {
				t.Fatalf("expected ErrEmbeddingService, got %v", err)
			}
			if errors.Is(err, models.ErrDimensionMismatch) != tt.wantDim {
				t.Fatalf("dimension mismatch flag = %v, want %v", !tt.wantDim, tt.wantDim)
			}
		})
	}
}

func TestEmbed_DimensionCheckDisabled(t *testing.T) {
	s := NewService(&fakeClient{vec: []float32{1, 2}}, 0, 0)
	if _, err := s.Embed(context.Background(), "text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEmbed_Retries(t *testing.T) {
	c := &fakeClient{vec: []float32{1}, failN: 1}
	v, err := NewService(c, 1, 1).Embed(context.Background(), "text")
	if err != nil || len(v) != 1 {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if c.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", c.calls)
	}
}

func TestNewClient_Providers(t *testing.T) {
	base := config.Default()
	for _, provider := range []string{"openai", "ollama", "openai-go"} {
		cfg := base.EmbedLLM
		cfg.Provider = provider
		cfg.Key = "test-key"
		if _, err := NewClient(&cfg); err != nil {
			t.Errorf("provider %s: unexpected error %v", provider, err)
		}
	}

	cfg := base.EmbedLLM
	cfg.Provider = "bogus"
	if _, err := NewClient(&cfg); !errors.Is(err, models.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestToFloat32(t *testing.T) {
	got := toFloat32([]float64{0.5, -1})
	if len(got) != 2 || got[0] != 0.5 || got[1] != -1 {
		t.Fatalf("unexpected conversion %v", got)
	}
}

func TestOpenAIGoEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","model":"text-embedding-ada-002",
			"data":[{"object":"embedding","index":0,"embedding":[0.25,-0.5,1]}],
			"usage":{"prompt_tokens":2,"total_tokens":2}}`)
	}))
	defer srv.Close()

	cfg := config.Default().EmbedLLM
	cfg.Provider = "openai-go"
	cfg.BaseURL = srv.URL + "/v1/"
	cfg.Key = "test-key"

	client, err := NewClient(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	v, err := NewService(client, 3, 0).Embed(context.Background(), "lymph\nnode")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != 3 || v[0] != 0.25 || v[1] != -0.5 || v[2] != 1 {
		t.Fatalf("unexpected vector %v", v)
	}
}
