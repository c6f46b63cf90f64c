package rag

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"document-qa/internal/models"
)

const testDim = 3

// fakeEmbedder derives a small vector from the letters of the text
type fakeEmbedder struct {
	mu     sync.Mutex
	calls  int
	failOn string
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.Join(models.ErrEmbeddingService, errors.New("rate limited"))
	}
	v := []float32{1, 1, 1}
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'm':
			v[0]++
		case r >= 'n' && r <= 'z':
			v[1]++
		default:
			v[2]++
		}
	}
	return v, nil
}

// fakeIndex keeps records in insertion order and returns them as ranked
type fakeIndex struct {
	records       []models.IndexedRecord
	insertErr     error
	failAfter     int
	searchErr     error
	results       []models.SearchResult
	numCandidates int
	limit         int
}

func (f *fakeIndex) Insert(_ context.Context, rec models.IndexedRecord) (string, error) {
	if f.insertErr != nil && len(f.records) >= f.failAfter {
		return "", f.insertErr
	}
	f.records = append(f.records, rec)
	return string(rune('a' + len(f.records))), nil
}

func (f *fakeIndex) VectorSearch(_ context.Context, _ []float32, numCandidates, limit int) ([]models.SearchResult, error) {
	f.numCandidates = numCandidates
	f.limit = limit
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.results != nil {
		return f.results, nil
	}
	var out []models.SearchResult
	for _, r := range f.records {
		if len(out) == limit {
			break
		}
		out = append(out, models.SearchResult{IndexedRecord: r})
	}
	return out, nil
}

type fakeGenerator struct {
	prompts      []string
	temperatures []float64
	reply        string
	err          error
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, temperature float64) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.temperatures = append(f.temperatures, temperature)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

// fakeExtractor serves pages by file name
type fakeExtractor struct {
	pages map[string][]string
	errs  map[string]error
}

func (f *fakeExtractor) Extract(path string) ([]models.PageExtract, error) {
	name := filepath.Base(path)
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	var out []models.PageExtract
	for i, text := range f.pages[name] {
		out = append(out, models.PageExtract{Text: text, SourceFilename: name, PageNumber: i + 1})
	}
	return out, nil
}
