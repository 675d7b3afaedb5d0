// Package pgvectorstore backs retrieval with a postgres table of pgvector
// embeddings ranked by cosine distance.
package pgvectorstore

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"notebookrag/internal/model"
	"notebookrag/internal/retrieval"
)

const embedBatchSize = 10

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type ChunkEmbedding struct {
	ID           string          `gorm:"primaryKey;size:36"`
	SessionID    string          `gorm:"size:36;not null;index"`
	RelativePath string          `gorm:"size:512;not null"`
	Category     string          `gorm:"size:128"`
	Chunk        string          `gorm:"type:text;not null"`
	Embedding    pgvector.Vector `gorm:"type:vector"`
}

func (ChunkEmbedding) TableName() string {
	return "chunk_embeddings"
}

type Store struct {
	db         *gorm.DB
	embedder   Embedder
	dimensions int
}

func New(db *gorm.DB, embedder Embedder, dimensions int) *Store {
	return &Store{db: db, embedder: embedder, dimensions: dimensions}
}

// EnsureSchema installs the vector extension and the embeddings table.
func (s *Store) EnsureSchema(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("create vector extension failed: %w", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunk_embeddings (
		id varchar(36) PRIMARY KEY,
		session_id varchar(36) NOT NULL,
		relative_path varchar(512) NOT NULL,
		category varchar(128),
		chunk text NOT NULL,
		embedding vector(%d) NOT NULL
	)`, s.dimensions)
	if err := db.Exec(ddl).Error; err != nil {
		return fmt.Errorf("create chunk_embeddings failed: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_scope ON chunk_embeddings (session_id, relative_path)").Error; err != nil {
		return fmt.Errorf("create chunk_embeddings index failed: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, query retrieval.Query) ([]retrieval.Fragment, error) {
	vectors, err := s.embedder.EmbedBatch(ctx, []string{query.Text})
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query returned %d vectors", len(vectors))
	}
	vec := pgvector.NewVector(vectors[0])

	var rows []searchRow
	if err := scopedSearch(s.db.WithContext(ctx), query, vec).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("pgvector search failed: %w", err)
	}

	out := make([]retrieval.Fragment, len(rows))
	for i, r := range rows {
		out[i] = retrieval.Fragment{
			Chunk:        r.Chunk,
			RelativePath: r.RelativePath,
			Category:     r.Category,
			Score:        r.Score,
		}
	}
	return out, nil
}

type searchRow struct {
	Chunk        string
	RelativePath string
	Category     string
	Score        float64
}

// scopedSearch ranks the embeddings of the query's namespace whose path is
// one of the scope paths.
func scopedSearch(tx *gorm.DB, query retrieval.Query, vec pgvector.Vector) *gorm.DB {
	return tx.Model(&ChunkEmbedding{}).
		Select("chunk, relative_path, category, 1 - (embedding <=> ?) AS score", vec).
		Where("session_id = ?", query.Filter.Namespace).
		Where("relative_path IN ?", query.Filter.Paths).
		Order(gorm.Expr("embedding <=> ?", vec)).
		Limit(query.Limit)
}

func (s *Store) Index(ctx context.Context, chunks []model.DocChunk) error {
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Chunk
		}
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks failed: %w", err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedding count mismatch: got %d want %d", len(vectors), len(batch))
		}

		rows := make([]ChunkEmbedding, len(batch))
		for i, c := range batch {
			rows[i] = ChunkEmbedding{
				ID:           c.ID,
				SessionID:    c.SessionID,
				RelativePath: c.RelativePath,
				Category:     c.Category,
				Chunk:        c.Chunk,
				Embedding:    pgvector.NewVector(vectors[i]),
			}
		}
		if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
			return fmt.Errorf("store chunk embeddings failed: %w", err)
		}
	}
	return nil
}

func (s *Store) DeleteFile(ctx context.Context, namespace, relativePath string) error {
	if err := s.db.WithContext(ctx).
		Where("session_id = ? AND relative_path = ?", namespace, relativePath).
		Delete(&ChunkEmbedding{}).Error; err != nil {
		return fmt.Errorf("delete file embeddings failed: %w", err)
	}
	return nil
}

func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", namespace).
		Delete(&ChunkEmbedding{}).Error; err != nil {
		return fmt.Errorf("delete session embeddings failed: %w", err)
	}
	return nil
}
