package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"notebookrag/internal/model"
)

const chunkInsertBatch = 100

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) WithTx(tx *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []model.DocChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&chunks, chunkInsertBatch).Error; err != nil {
		return fmt.Errorf("create chunks batch failed: %w", err)
	}
	return nil
}

// Statistics sums chunk sizes per file linked to the session.
func (r *ChunkRepository) Statistics(ctx context.Context, sessionID string) (map[string]int64, error) {
	var rows []struct {
		RelativePath string
		Total        int64
	}
	if err := r.db.WithContext(ctx).
		Table("docs_chunks AS c").
		Select("c.relative_path AS relative_path, SUM(c.size) AS total").
		Joins("JOIN session_files f ON f.session_id = c.session_id AND f.file_path = c.relative_path").
		Where("f.session_id = ?", sessionID).
		Group("c.relative_path").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("aggregate chunk statistics failed: %w", err)
	}

	stats := make(map[string]int64, len(rows))
	for _, row := range rows {
		stats[row.RelativePath] = row.Total
	}
	return stats, nil
}

func (r *ChunkRepository) DeleteByFile(ctx context.Context, sessionID, relativePath string) error {
	if err := r.db.WithContext(ctx).
		Where("session_id = ? AND relative_path = ?", sessionID, relativePath).
		Delete(&model.DocChunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks by file failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) DeleteBySessionID(ctx context.Context, sessionID string) error {
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&model.DocChunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks by session failed: %w", err)
	}
	return nil
}
