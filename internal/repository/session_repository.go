package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"notebookrag/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// WithTx returns a copy bound to tx.
func (r *SessionRepository) WithTx(tx *gorm.DB) *SessionRepository {
	return &SessionRepository{db: tx}
}

func (r *SessionRepository) Create(ctx context.Context, session *model.ChatSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create session failed: %w", err)
	}
	return nil
}

// List returns sessions most recently updated first. With activeOnly unset
// soft-deleted sessions are included.
func (r *SessionRepository) List(ctx context.Context, activeOnly bool) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	query := r.db.WithContext(ctx).Model(&model.ChatSession{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Order("updated_at DESC").Order("created_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	return sessions, nil
}

// GetByID returns the active session with id, or nil when there is none.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.ChatSession, error) {
	return r.first(ctx, r.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true))
}

// GetAny returns the session with id regardless of its active flag.
func (r *SessionRepository) GetAny(ctx context.Context, id string) (*model.ChatSession, error) {
	return r.first(ctx, r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *SessionRepository) first(_ context.Context, query *gorm.DB) (*model.ChatSession, error) {
	var session model.ChatSession
	if err := query.First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

// Update writes the given columns on an active session and bumps updated_at.
// It reports whether a row matched.
func (r *SessionRepository) Update(ctx context.Context, id string, fields map[string]any, now time.Time) (bool, error) {
	values := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		values[k] = v
	}
	values["updated_at"] = now

	result := r.db.WithContext(ctx).
		Model(&model.ChatSession{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(values)
	if result.Error != nil {
		return false, fmt.Errorf("update session failed: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// SoftDelete flips is_active off. It reports false when the session was
// missing or already inactive.
func (r *SessionRepository) SoftDelete(ctx context.Context, id string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.ChatSession{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]any{"is_active": false, "updated_at": now})
	if result.Error != nil {
		return false, fmt.Errorf("soft delete session failed: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
