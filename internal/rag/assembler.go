package rag

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"document-qa/internal/models"
)

// Assembler joins ranked results into prompt context
type Assembler struct {
	// maxContextChars caps the joined text in runes, 0 means no cap
	maxContextChars int
}

func NewAssembler(maxContextChars int) *Assembler {
	return &Assembler{maxContextChars: maxContextChars}
}

// Assemble takes up to maxResults results in order. With a character budget
// it stops before the first chunk that would exceed it.
func (a *Assembler) Assemble(results []models.SearchResult, maxResults int) models.AssembledContext {
	n := min(max(maxResults, 0), len(results))

	texts := make([]string, 0, n)
	sources := make([]string, 0, n)
	length := 0
	for _, res := range results[:n] {
		if a.maxContextChars > 0 {
			added := utf8.RuneCountInString(res.TextChunk)
			if len(texts) > 0 {
				added += utf8.RuneCountInString(models.ContextSeparator)
			}
			if length+added > a.maxContextChars {
				break
			}
			length += added
		}
		texts = append(texts, res.TextChunk)
		sources = append(sources, Provenance(res.Source))
	}

	return models.AssembledContext{
		Text:    strings.Join(texts, models.ContextSeparator),
		Sources: sources,
	}
}

// Provenance formats a source as "filename - Page N"
func Provenance(src *models.Source) string {
	filename := models.UnknownSource
	page := models.UnknownPage
	if src != nil {
		if src.Filename != "" {
			filename = src.Filename
		}
		if src.PageNumber > 0 {
			page = strconv.Itoa(src.PageNumber)
		}
	}
	return fmt.Sprintf("%s - Page %s", filename, page)
}
