package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"document-qa/internal/models"
)

// Splitter cuts page text into overlapping chunks at separator boundaries.
// Lengths are counted in runes.
type Splitter struct {
	separator string
	chunkSize int
	overlap   int
}

// Span is a chunk with its byte offsets in the source text
type Span struct {
	Start int
	End   int
	Text  string
}

// NewSplitter validates the chunking parameters
func NewSplitter(separator string, chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrInvalidConfig, chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", models.ErrInvalidConfig, overlap)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", models.ErrInvalidConfig, overlap, chunkSize)
	}
	return &Splitter{separator: separator, chunkSize: chunkSize, overlap: overlap}, nil
}

// Split returns the chunk texts in order
func (s *Splitter) Split(text string) []string {
	spans := s.SplitSpans(text)
	if len(spans) == 0 {
		return nil
	}
	chunks := make([]string, len(spans))
	for i, sp := range spans {
		chunks[i] = sp.Text
	}
	return chunks
}

// SplitSpans returns the chunks with their offsets. Consecutive spans may
// overlap; the union of all spans covers the whole text.
func (s *Splitter) SplitSpans(text string) []Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	bounds := s.boundaries(text)
	// runes[i] is the rune offset of bounds[i]
	runes := make([]int, len(bounds))
	for i := 1; i < len(bounds); i++ {
		runes[i] = runes[i-1] + utf8.RuneCountInString(text[bounds[i-1]:bounds[i]])
	}
	pieces := len(bounds) - 1

	var spans []Span
	start := 0
	for {
		end := start + 1
		for end < pieces && runes[end+1]-runes[start] <= s.chunkSize {
			end++
		}
		spans = append(spans, Span{Start: bounds[start], End: bounds[end], Text: text[bounds[start]:bounds[end]]})
		if end == pieces {
			break
		}

		// step back into the previous chunk as far as the overlap allows
		// while leaving room for the next piece
		next := end
		nextLen := runes[end+1] - runes[end]
		for j := start + 1; j < end; j++ {
			tail := runes[end] - runes[j]
			if tail <= s.overlap && tail+nextLen <= s.chunkSize {
				next = j
				break
			}
		}
		start = next
	}
	return spans
}

// boundaries returns the byte offsets at which pieces start, plus len(text).
// A piece ends right after a separator.
func (s *Splitter) boundaries(text string) []int {
	bounds := []int{0}
	if s.separator == "" {
		for i := range text {
			if i > 0 {
				bounds = append(bounds, i)
			}
		}
		return append(bounds, len(text))
	}
	offset := 0
	for {
		idx := strings.Index(text[offset:], s.separator)
		if idx < 0 {
			break
		}
		offset += idx + len(s.separator)
		if offset >= len(text) {
			break
		}
		bounds = append(bounds, offset)
	}
	return append(bounds, len(text))
}

// Reassemble rebuilds the source text from spans produced by SplitSpans
func Reassemble(spans []Span) string {
	var b strings.Builder
	covered := 0
	for _, sp := range spans {
		if sp.End <= covered {
			continue
		}
		skip := covered - sp.Start
		if skip < 0 {
			skip = 0
		}
		b.WriteString(sp.Text[skip:])
		covered = sp.End
	}
	return b.String()
}

// SplitPage chunks a page, dropping blank chunks
func (s *Splitter) SplitPage(page models.PageExtract) []models.Chunk {
	var chunks []models.Chunk
	for _, text := range s.Split(page.Text) {
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{
			Text:           text,
			SourceFilename: page.SourceFilename,
			PageNumber:     page.PageNumber,
			Index:          len(chunks) + 1,
		})
	}
	return chunks
}
