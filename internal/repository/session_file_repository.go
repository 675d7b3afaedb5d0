package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"notebookrag/internal/model"
)

type SessionFileRepository struct {
	db *gorm.DB
}

func NewSessionFileRepository(db *gorm.DB) *SessionFileRepository {
	return &SessionFileRepository{db: db}
}

func (r *SessionFileRepository) WithTx(tx *gorm.DB) *SessionFileRepository {
	return &SessionFileRepository{db: tx}
}

// Link records the pair once; linking it again is a no-op.
func (r *SessionFileRepository) Link(ctx context.Context, sessionID, filePath string) error {
	link := model.SessionFile{SessionID: sessionID, FilePath: filePath}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&link).Error; err != nil {
		return fmt.Errorf("link session file failed: %w", err)
	}
	return nil
}

func (r *SessionFileRepository) ListPaths(ctx context.Context, sessionID string) ([]string, error) {
	var paths []string
	if err := r.db.WithContext(ctx).
		Model(&model.SessionFile{}).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Order("id ASC").
		Pluck("file_path", &paths).Error; err != nil {
		return nil, fmt.Errorf("list session files failed: %w", err)
	}
	return paths, nil
}

func (r *SessionFileRepository) Exists(ctx context.Context, sessionID, filePath string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&model.SessionFile{}).
		Where("session_id = ? AND file_path = ?", sessionID, filePath).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check session file failed: %w", err)
	}
	return count > 0, nil
}

func (r *SessionFileRepository) Delete(ctx context.Context, sessionID, filePath string) error {
	if err := r.db.WithContext(ctx).
		Where("session_id = ? AND file_path = ?", sessionID, filePath).
		Delete(&model.SessionFile{}).Error; err != nil {
		return fmt.Errorf("unlink session file failed: %w", err)
	}
	return nil
}

func (r *SessionFileRepository) DeleteBySessionID(ctx context.Context, sessionID string) error {
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&model.SessionFile{}).Error; err != nil {
		return fmt.Errorf("unlink session files failed: %w", err)
	}
	return nil
}
