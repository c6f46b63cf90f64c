package milvusdb

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"github.com/rs/zerolog/log"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

// Field names
const (
	FieldID              = "id"
	FieldTextChunk       = "text_chunk"
	FieldSourceFilename  = "source_filename"
	FieldPageNumber      = "page_number"
	FieldVectorEmbedding = "vector_embedding"
)

const (
	maxTextLength     = "65535"
	maxFilenameLength = "1024"
)

var outputFields = []string{FieldTextChunk, FieldSourceFilename, FieldPageNumber}

// Store is a vector index in a Milvus collection
type Store struct {
	client     *milvusclient.Client
	collection string
	dimension  int
}

func NewStore(ctx context.Context, cfg *config.IndexConfig) (*Store, error) {
	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address: cfg.Milvus.Address,
		APIKey:  cfg.Milvus.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to milvus at %s: %v", models.ErrIndexUnavailable, cfg.Milvus.Address, err)
	}
	log.Debug().Str("address", cfg.Milvus.Address).Str("collection", cfg.Collection).Msg("Connected to milvus")
	return &Store{client: client, collection: cfg.Collection, dimension: cfg.Dimension}, nil
}

// Schema describes the collection layout
func Schema(collection string, dimension int) *entity.Schema {
	return &entity.Schema{
		CollectionName: collection,
		Description:    "Document chunks with page provenance",
		Fields: []*entity.Field{
			{
				Name:       FieldID,
				DataType:   entity.FieldTypeInt64,
				PrimaryKey: true,
				AutoID:     true,
			},
			{
				Name:       FieldTextChunk,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": maxTextLength},
			},
			{
				Name:       FieldSourceFilename,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": maxFilenameLength},
			},
			{
				Name:     FieldPageNumber,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:       FieldVectorEmbedding,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(dimension)},
			},
		},
	}
}

// EnsureSchema creates the collection with a cosine HNSW index and loads it
func (s *Store) EnsureSchema(ctx context.Context) error {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("%w: failed to check if collection exists: %v", models.ErrIndexUnavailable, err)
	}

	if !exists {
		if err := s.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(s.collection, Schema(s.collection, s.dimension))); err != nil {
			return fmt.Errorf("%w: failed to create collection: %v", models.ErrIndexUnavailable, err)
		}

		idx := index.NewHNSWIndex(entity.COSINE, 16, 200)
		task, err := s.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(s.collection, FieldVectorEmbedding, idx))
		if err != nil {
			return fmt.Errorf("%w: failed to create index: %v", models.ErrIndexUnavailable, err)
		}
		if err := task.Await(ctx); err != nil {
			return fmt.Errorf("%w: waiting for index: %v", models.ErrIndexUnavailable, err)
		}
		log.Info().Str("collection", s.collection).Int("dimension", s.dimension).Msg("Created milvus collection")
	}
	return s.Load(ctx)
}

// Load makes an existing collection searchable
func (s *Store) Load(ctx context.Context) error {
	loadTask, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("%w: failed to load collection: %v", models.ErrIndexUnavailable, err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("%w: waiting for load: %v", models.ErrIndexUnavailable, err)
	}
	return nil
}

// Insert stores one record and returns the id assigned by Milvus
func (s *Store) Insert(ctx context.Context, rec models.IndexedRecord) (string, error) {
	if len(rec.VectorEmbedding) != s.dimension {
		return "", fmt.Errorf("%w: record has %d dimensions, index has %d", models.ErrDimensionMismatch, len(rec.VectorEmbedding), s.dimension)
	}

	var filename string
	var page int64
	if rec.Source != nil {
		filename = rec.Source.Filename
		page = int64(rec.Source.PageNumber)
	}

	opt := milvusclient.NewColumnBasedInsertOption(s.collection).
		WithVarcharColumn(FieldTextChunk, []string{rec.TextChunk}).
		WithVarcharColumn(FieldSourceFilename, []string{filename}).
		WithInt64Column(FieldPageNumber, []int64{page}).
		WithFloatVectorColumn(FieldVectorEmbedding, s.dimension, [][]float32{rec.VectorEmbedding})

	res, err := s.client.Insert(ctx, opt)
	if err != nil {
		return "", fmt.Errorf("%w: insert failed: %v", models.ErrIndexUnavailable, err)
	}
	return insertedID(res)
}

func insertedID(res milvusclient.InsertResult) (string, error) {
	if res.IDs == nil || res.IDs.Len() == 0 {
		return "", fmt.Errorf("%w: insert returned no id", models.ErrIndexUnavailable)
	}
	id, err := res.IDs.GetAsInt64(0)
	if err != nil {
		return "", fmt.Errorf("%w: reading inserted id: %v", models.ErrIndexUnavailable, err)
	}
	return strconv.FormatInt(id, 10), nil
}

// VectorSearch runs an HNSW search. numCandidates is passed as ef.
func (s *Store) VectorSearch(ctx context.Context, query []float32, numCandidates, limit int) ([]models.SearchResult, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", models.ErrDimensionMismatch, len(query), s.dimension)
	}
	if limit <= 0 {
		return nil, nil
	}
	ef := numCandidates
	if ef < limit {
		ef = limit
	}

	opt := milvusclient.NewSearchOption(s.collection, limit, []entity.Vector{entity.FloatVector(query)}).
		WithANNSField(FieldVectorEmbedding).
		WithOutputFields(outputFields...).
		WithSearchParam("ef", strconv.Itoa(ef)).
		WithConsistencyLevel(entity.ClStrong)

	sets, err := s.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("%w: search failed: %v", models.ErrIndexUnavailable, err)
	}
	if len(sets) == 0 {
		return nil, nil
	}
	return resultsFromSet(sets[0])
}

func resultsFromSet(rs milvusclient.ResultSet) ([]models.SearchResult, error) {
	if rs.Err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, rs.Err)
	}
	texts := rs.GetColumn(FieldTextChunk)
	files := rs.GetColumn(FieldSourceFilename)
	pages := rs.GetColumn(FieldPageNumber)

	results := make([]models.SearchResult, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		var r models.SearchResult
		if rs.IDs != nil {
			id, err := rs.IDs.GetAsInt64(i)
			if err != nil {
				return nil, fmt.Errorf("%w: reading result id: %v", models.ErrIndexUnavailable, err)
			}
			r.ID = strconv.FormatInt(id, 10)
		}
		if i < len(rs.Scores) {
			r.Score = rs.Scores[i]
		}
		r.TextChunk = stringAt(texts, i)
		filename := stringAt(files, i)
		var page int
		if pages != nil {
			p, err := pages.GetAsInt64(i)
			if err != nil {
				return nil, fmt.Errorf("%w: reading page number: %v", models.ErrIndexUnavailable, err)
			}
			page = int(p)
		}
		if filename != "" || page > 0 {
			r.Source = &models.Source{Filename: filename, PageNumber: page}
		}
		results = append(results, r)
	}
	return results, nil
}

func stringAt(col column.Column, i int) string {
	if col == nil {
		return ""
	}
	v, err := col.GetAsString(i)
	if err != nil {
		return ""
	}
	return v
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}
