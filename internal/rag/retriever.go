package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"document-qa/internal/models"
)

// Retriever runs nearest-neighbor queries against the index
type Retriever struct {
	index         Index
	numCandidates int
}

func NewRetriever(index Index, numCandidates int) *Retriever {
	return &Retriever{index: index, numCandidates: numCandidates}
}

// Search returns at most k results in the order the index ranked them
func (r *Retriever) Search(ctx context.Context, queryVector []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	numCandidates := max(r.numCandidates, k)

	results, err := r.index.VectorSearch(ctx, queryVector, numCandidates, k)
	if err != nil {
		if errors.Is(err, models.ErrIndexUnavailable) || errors.Is(err, models.ErrDimensionMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	if len(results) > k {
		results = results[:k]
	}
	log.Debug().Int("k", k).Int("num_candidates", numCandidates).Int("results", len(results)).Msg("Vector search")
	return results, nil
}
