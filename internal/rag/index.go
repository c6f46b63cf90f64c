package rag

import (
	"context"

	"document-qa/internal/models"
)

// Index is the vector store the pipeline writes to and the retriever reads from
type Index interface {
	Insert(ctx context.Context, rec models.IndexedRecord) (string, error)
	// VectorSearch returns at most limit records, best match first.
	// numCandidates is the approximate search candidate pool.
	VectorSearch(ctx context.Context, query []float32, numCandidates, limit int) ([]models.SearchResult, error)
}

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
