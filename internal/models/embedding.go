package models

// PageExtract is the text of a single document page
type PageExtract struct {
	Text           string
	SourceFilename string
	PageNumber     int
}

// Chunk represents a split segment of a page with its provenance
type Chunk struct {
	Text           string
	SourceFilename string
	PageNumber     int
	Index          int
}

// Source is the provenance stored with every indexed record.
// An empty Filename or a zero PageNumber means the field is missing.
type Source struct {
	Filename   string `json:"filename"`
	PageNumber int    `json:"page_number"`
}

// IndexedRecord is a chunk persisted in a vector index
type IndexedRecord struct {
	ID              string    `json:"id"`
	TextChunk       string    `json:"text_chunk"`
	VectorEmbedding []float32 `json:"vector_embedding,omitempty"`
	Source          *Source   `json:"source,omitempty"`
}

// SearchResult is an indexed record returned by a similarity query.
// Slices of results are ordered best match first.
type SearchResult struct {
	IndexedRecord
	Score float32 `json:"score"`
}

// AssembledContext is the prompt context built from search results.
// Sources is parallel to the chunks concatenated into Text.
type AssembledContext struct {
	Text    string   `json:"text"`
	Sources []string `json:"sources"`
}

// AnswerRecord is the final answer with its provenance list
type AnswerRecord struct {
	Question   string   `json:"question"`
	AnswerText string   `json:"answer"`
	Sources    []string `json:"sources"`
}

// NewRecord builds an IndexedRecord from a chunk and its embedding
func NewRecord(chunk Chunk, embedding []float32) IndexedRecord {
	return IndexedRecord{
		TextChunk:       chunk.Text,
		VectorEmbedding: embedding,
		Source: &Source{
			Filename:   chunk.SourceFilename,
			PageNumber: chunk.PageNumber,
		},
	}
}
