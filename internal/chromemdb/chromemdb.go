package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"document-qa/internal/config"
	"document-qa/internal/helper"
	"document-qa/internal/models"
)

// metadata keys stored with every document
const (
	metaSourceFilename = "source_filename"
	metaPageNumber     = "page_number"
)

// VectorDBManager is the embedded vector index backed by chromem-go
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	dimension     int
	inMemory      bool
	compress      bool
	encryptionKey string
	filePath      string
}

// NewVectorDBManager opens the database and the configured collection.
// An in-memory database with an encryption key is restored from its
// snapshot file if one exists.
func NewVectorDBManager(cfg *config.IndexConfig) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if cfg.Chromem.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Chromem.Path, cfg.Chromem.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create database: %v", models.ErrIndexUnavailable, err)
		}
	}

	m := &VectorDBManager{
		db:            db,
		dimension:     cfg.Dimension,
		inMemory:      cfg.Chromem.InMemory,
		compress:      cfg.Chromem.Compress,
		encryptionKey: cfg.Chromem.EncryptionKey,
		filePath:      filepath.Join(cfg.Chromem.Path, cfg.Collection+".chromem"),
	}

	if m.snapshotEnabled() {
		if _, err := os.Stat(m.filePath); err == nil {
			if err := m.Import(); err != nil {
				return nil, err
			}
		}
	}

	if _, err := m.GetOrCreateCollection(cfg.Collection); err != nil {
		return nil, err
	}
	log.Debug().Str("collection", cfg.Collection).Int("documents", m.Count()).Bool("in_memory", m.inMemory).Msg("Opened chromem index")
	return m, nil
}

func (m *VectorDBManager) snapshotEnabled() bool {
	return m.inMemory && m.encryptionKey != ""
}

// GetOrCreateCollection selects the collection used by Insert and VectorSearch
func (m *VectorDBManager) GetOrCreateCollection(collectionName string) (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create/get collection: %v", models.ErrIndexUnavailable, err)
	}
	m.collection = c
	return c, nil
}

// Count returns the number of stored records
func (m *VectorDBManager) Count() int {
	if m.collection == nil {
		return 0
	}
	return m.collection.Count()
}

// Insert stores one record and returns its generated id
func (m *VectorDBManager) Insert(ctx context.Context, rec models.IndexedRecord) (string, error) {
	if m.dimension > 0 && len(rec.VectorEmbedding) != m.dimension {
		return "", fmt.Errorf("%w: record has %d dimensions, index has %d", models.ErrDimensionMismatch, len(rec.VectorEmbedding), m.dimension)
	}

	id := rec.ID
	if id == "" {
		var err error
		if id, err = helper.GenerateUUID(); err != nil {
			return "", err
		}
	}

	metadata := map[string]string{}
	if rec.Source != nil {
		if rec.Source.Filename != "" {
			metadata[metaSourceFilename] = rec.Source.Filename
		}
		if rec.Source.PageNumber > 0 {
			metadata[metaPageNumber] = strconv.Itoa(rec.Source.PageNumber)
		}
	}

	err := m.collection.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   rec.TextChunk,
		Metadata:  metadata,
		Embedding: rec.VectorEmbedding,
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to add document: %v", models.ErrIndexUnavailable, err)
	}
	return id, nil
}

// VectorSearch returns up to limit records ordered by cosine similarity.
// The search is exhaustive so numCandidates only bounds the request.
func (m *VectorDBManager) VectorSearch(ctx context.Context, query []float32, numCandidates, limit int) ([]models.SearchResult, error) {
	if m.dimension > 0 && len(query) != m.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", models.ErrDimensionMismatch, len(query), m.dimension)
	}
	if numCandidates > 0 && limit > numCandidates {
		limit = numCandidates
	}
	// chromem rejects a result count above the collection size
	if count := m.Count(); limit > count {
		limit = count
	}
	if limit <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: query,
		NResults:       limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query by similarity: %v", models.ErrIndexUnavailable, err)
	}

	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, models.SearchResult{
			IndexedRecord: models.IndexedRecord{
				ID:              r.ID,
				TextChunk:       r.Content,
				VectorEmbedding: r.Embedding,
				Source:          sourceFromMetadata(r.Metadata),
			},
			Score: r.Similarity,
		})
	}
	return out, nil
}

func sourceFromMetadata(md map[string]string) *models.Source {
	src := &models.Source{Filename: md[metaSourceFilename]}
	if p, err := strconv.Atoi(md[metaPageNumber]); err == nil {
		src.PageNumber = p
	}
	if src.Filename == "" && src.PageNumber == 0 {
		return nil
	}
	return src
}

// Export writes an encrypted snapshot of the collection
func (m *VectorDBManager) Export() error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if m.collection == nil {
		return fmt.Errorf("collection is required")
	}
	if err := os.MkdirAll(filepath.Dir(m.filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	log.Debug().Str("collection", m.collection.Name).Str("file", m.filePath).Bool("compress", m.compress).Msg("Exporting collection")
	if err := m.db.ExportToFile(m.filePath, m.compress, m.encryptionKey, m.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %v", err)
	}
	return nil
}

// Import restores the snapshot written by Export
func (m *VectorDBManager) Import() error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	log.Debug().Str("file", m.filePath).Msg("Importing collection")
	if err := m.db.ImportFromFile(m.filePath, m.encryptionKey); err != nil {
		return fmt.Errorf("%w: failed to import database: %v", models.ErrIndexUnavailable, err)
	}
	return nil
}

// Close persists an in-memory collection when a snapshot key is set.
// A persistent database writes on every insert and needs no flush.
func (m *VectorDBManager) Close() error {
	if !m.snapshotEnabled() {
		return nil
	}
	if err := m.Export(); err != nil {
		return errors.Join(models.ErrIndexUnavailable, err)
	}
	return nil
}
