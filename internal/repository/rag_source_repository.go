package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"notebookrag/internal/model"
)

type RagSourceRepository struct {
	db *gorm.DB
}

func NewRagSourceRepository(db *gorm.DB) *RagSourceRepository {
	return &RagSourceRepository{db: db}
}

func (r *RagSourceRepository) WithTx(tx *gorm.DB) *RagSourceRepository {
	return &RagSourceRepository{db: tx}
}

func (r *RagSourceRepository) CreateBatch(ctx context.Context, sources []model.RagSource) error {
	if len(sources) == 0 {
		return nil
	}
	for _, s := range sources {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("create rag sources failed: %w", err)
		}
	}
	if err := r.db.WithContext(ctx).Create(&sources).Error; err != nil {
		return fmt.Errorf("create rag sources failed: %w", err)
	}
	return nil
}

func (r *RagSourceRepository) ListByMessageID(ctx context.Context, messageID string) ([]model.RagSource, error) {
	var sources []model.RagSource
	if err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("relevance_score DESC").
		Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("list rag sources failed: %w", err)
	}
	return sources, nil
}

// SourceStats returns the distinct cited documents and their mean relevance for a session.
func (r *RagSourceRepository) SourceStats(ctx context.Context, sessionID string) (int64, float64, error) {
	var row struct {
		UniqueSources    int64
		AverageRelevance *float64
	}
	if err := r.db.WithContext(ctx).
		Model(&model.RagSource{}).
		Select("COUNT(DISTINCT document_path) AS unique_sources, AVG(relevance_score) AS average_relevance").
		Where("session_id = ?", sessionID).
		Scan(&row).Error; err != nil {
		return 0, 0, fmt.Errorf("aggregate rag sources failed: %w", err)
	}
	if row.AverageRelevance == nil {
		return row.UniqueSources, 0, nil
	}
	return row.UniqueSources, *row.AverageRelevance, nil
}

func (r *RagSourceRepository) DeleteBySessionID(ctx context.Context, sessionID string) error {
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&model.RagSource{}).Error; err != nil {
		return fmt.Errorf("delete rag sources failed: %w", err)
	}
	return nil
}
