package rag

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"document-qa/internal/config"
	"document-qa/internal/llmservice"
	"document-qa/internal/models"
	"document-qa/internal/parser"
)

// StageObserver is told about every stage a question enters. err is set
// when the stage failed.
type StageObserver func(stage models.Stage, err error)

// RAG answers questions from the indexed documents
type RAG struct {
	embedder   Embedder
	retriever  *Retriever
	assembler  *Assembler
	composer   *Composer
	topK       int
	maxResults int
	observer   StageObserver
}

type Option func(*RAG)

func WithStageObserver(fn StageObserver) Option {
	return func(r *RAG) { r.observer = fn }
}

func NewRAG(embedder Embedder, retriever *Retriever, assembler *Assembler, composer *Composer, topK, maxResults int, opts ...Option) *RAG {
	r := &RAG{
		embedder:   embedder,
		retriever:  retriever,
		assembler:  assembler,
		composer:   composer,
		topK:       topK,
		maxResults: maxResults,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RAG) enter(stage models.Stage) {
	if r.observer != nil {
		r.observer(stage, nil)
	}
}

func (r *RAG) fail(stage models.Stage, err error) error {
	if r.observer != nil {
		r.observer(stage, err)
	}
	log.Error().Err(err).Str("stage", string(stage)).Msg("Question failed")
	return &models.StageError{Stage: stage, Err: err}
}

// Ask runs embedding, retrieval, assembly and generation in order. A failure
// is returned as *models.StageError naming the stage; nothing is retried here.
func (r *RAG) Ask(ctx context.Context, question string) (models.AnswerRecord, error) {
	r.enter(models.StageIdle)
	if strings.TrimSpace(question) == "" {
		return models.AnswerRecord{}, r.fail(models.StageIdle, models.ErrEmptyQuestion)
	}

	r.enter(models.StageEmbedding)
	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return models.AnswerRecord{}, r.fail(models.StageEmbedding, err)
	}

	r.enter(models.StageRetrieving)
	results, err := r.retriever.Search(ctx, vec, r.topK)
	if err != nil {
		return models.AnswerRecord{}, r.fail(models.StageRetrieving, err)
	}

	r.enter(models.StageAssembling)
	assembled := r.assembler.Assemble(results, r.maxResults)
	log.Debug().Int("results", len(results)).Int("sources", len(assembled.Sources)).Msg("Assembled context")

	r.enter(models.StageGenerating)
	answer, err := r.composer.Answer(ctx, question, assembled)
	if err != nil {
		return models.AnswerRecord{}, r.fail(models.StageGenerating, err)
	}

	r.enter(models.StageDone)
	return answer, nil
}

// Service bundles the write and read paths over one index
type Service struct {
	Pipeline *Pipeline
	RAG      *RAG
}

// NewService wires the pipeline and the question path from the config
func NewService(cfg *config.Config, extractor parser.Extractor, embedder Embedder, index Index, generator llmservice.Generator, opts ...Option) (*Service, error) {
	splitter, err := parser.NewSplitter(cfg.RAG.Separator, cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	pipeline := NewPipeline(extractor, splitter, embedder, index, cfg.RAG.Extensions, cfg.RAG.EmbedConcurrency)
	r := NewRAG(
		embedder,
		NewRetriever(index, cfg.RAG.NumCandidates),
		NewAssembler(cfg.RAG.MaxContextChars),
		NewComposer(generator, cfg.Temperature()),
		cfg.RAG.TopK,
		cfg.RAG.MaxResults,
		opts...,
	)
	return &Service{Pipeline: pipeline, RAG: r}, nil
}

func (s *Service) Ingest(ctx context.Context, dir string) (models.IngestReport, error) {
	return s.Pipeline.IngestAll(ctx, dir)
}

// IngestWithProgress ingests dir and reports every progress event to onEvent
func (s *Service) IngestWithProgress(ctx context.Context, dir string, onEvent func(models.ProgressEvent)) (models.IngestReport, error) {
	return Drain(dir, s.Pipeline.Ingest(ctx, dir), onEvent)
}

func (s *Service) Ask(ctx context.Context, question string) (models.AnswerRecord, error) {
	return s.RAG.Ask(ctx, question)
}
