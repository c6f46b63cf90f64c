package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

// hnsw.ef_search accepts values between 1 and 1000
const maxEfSearch = 1000

type Document struct {
	bun.BaseModel   `bun:"table:documents,alias:d"`
	ID              int64           `bun:"id,pk,autoincrement"`
	TextChunk       string          `bun:"text_chunk,notnull"`
	VectorEmbedding pgvector.Vector `bun:"vector_embedding,notnull,type:vector"`
	SourceFilename  string          `bun:"source_filename,nullzero"`
	PageNumber      int             `bun:"page_number,nullzero"`
	Distance        float64         `bun:"distance,scanonly"`
}

// Store is a vector index in a Postgres table with the pgvector extension
type Store struct {
	db        *bun.DB
	table     string
	dimension int
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the connection pool with the configured driver
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: database.dsn is required for the pgvector backend", models.ErrInvalidConfig)
	}
	switch cfg.Driver {
	case "pq":
		return sql.Open("postgres", cfg.DSN)
	default:
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	}
}

// NewStore connects and checks the database is reachable
func NewStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	sqldb, err := ConnectDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	s := NewStoreFromDB(NewDB(sqldb, cfg.Database.Debug), cfg.Index.Collection, cfg.Index.Dimension)
	if err := s.db.PingContext(ctx); err != nil {
		_ = s.db.Close()
		return nil, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	log.Debug().Str("driver", cfg.Database.Driver).Str("table", s.table).Msg("Connected to postgres")
	return s, nil
}

func NewStoreFromDB(db *bun.DB, table string, dimension int) *Store {
	return &Store{db: db, table: table, dimension: dimension}
}

// EnsureSchema creates the extension, table and HNSW cosine index
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []struct {
		query string
		args  []any
	}{
		{"CREATE EXTENSION IF NOT EXISTS vector", nil},
		{`CREATE TABLE IF NOT EXISTS ? (
	id bigserial PRIMARY KEY,
	text_chunk text NOT NULL,
	vector_embedding vector(?) NOT NULL,
	source_filename text,
	page_number integer
)`, []any{bun.Ident(s.table), s.dimension}},
		{"CREATE INDEX IF NOT EXISTS ? ON ? USING hnsw (vector_embedding vector_cosine_ops)",
			[]any{bun.Ident(s.table + "_vector_embedding_idx"), bun.Ident(s.table)}},
	}
	for _, st := range stmts {
		if _, err := s.db.ExecContext(ctx, st.query, st.args...); err != nil {
			return fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
		}
	}
	log.Info().Str("table", s.table).Int("dimension", s.dimension).Msg("Vector index ready")
	return nil
}

// Insert stores one record and returns its id
func (s *Store) Insert(ctx context.Context, rec models.IndexedRecord) (string, error) {
	if len(rec.VectorEmbedding) != s.dimension {
		return "", fmt.Errorf("%w: record has %d dimensions, index has %d", models.ErrDimensionMismatch, len(rec.VectorEmbedding), s.dimension)
	}
	doc := &Document{
		TextChunk:       rec.TextChunk,
		VectorEmbedding: pgvector.NewVector(rec.VectorEmbedding),
	}
	if rec.Source != nil {
		doc.SourceFilename = rec.Source.Filename
		doc.PageNumber = rec.Source.PageNumber
	}
	_, err := s.insertQuery(doc).Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	return fmt.Sprint(doc.ID), nil
}

func (s *Store) insertQuery(doc *Document) *bun.InsertQuery {
	return s.db.NewInsert().
		Model(doc).
		ModelTableExpr("?", bun.Ident(s.table)).
		ExcludeColumn("id").
		Returning("id")
}

// VectorSearch orders by cosine distance. numCandidates sets the HNSW
// candidate list for this transaction only.
func (s *Store) VectorSearch(ctx context.Context, query []float32, numCandidates, limit int) ([]models.SearchResult, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", models.ErrDimensionMismatch, len(query), s.dimension)
	}
	if limit <= 0 {
		return nil, nil
	}

	var docs []Document
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "SET LOCAL hnsw.ef_search = ?", efSearch(numCandidates, limit)); err != nil {
			return err
		}
		return s.searchQuery(tx, &docs, pgvector.NewVector(query), limit).Scan(ctx)
	})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}

	results := make([]models.SearchResult, 0, len(docs))
	for _, d := range docs {
		rec := models.IndexedRecord{
			ID:              fmt.Sprint(d.ID),
			TextChunk:       d.TextChunk,
			VectorEmbedding: d.VectorEmbedding.Slice(),
		}
		if d.SourceFilename != "" || d.PageNumber > 0 {
			rec.Source = &models.Source{Filename: d.SourceFilename, PageNumber: d.PageNumber}
		}
		results = append(results, models.SearchResult{IndexedRecord: rec, Score: float32(1 - d.Distance)})
	}
	return results, nil
}

func (s *Store) searchQuery(db bun.IDB, docs *[]Document, vec pgvector.Vector, limit int) *bun.SelectQuery {
	return db.NewSelect().
		Model(docs).
		ModelTableExpr("? AS d", bun.Ident(s.table)).
		Column("id", "text_chunk", "vector_embedding", "source_filename", "page_number").
		ColumnExpr("vector_embedding <=> ? AS distance", vec).
		OrderExpr("vector_embedding <=> ?", vec).
		Limit(limit)
}

func efSearch(numCandidates, limit int) int {
	ef := numCandidates
	if ef < limit {
		ef = limit
	}
	if ef < 1 {
		ef = 1
	}
	if ef > maxEfSearch {
		ef = maxEfSearch
	}
	return ef
}

func (s *Store) Close() error {
	return s.db.Close()
}
