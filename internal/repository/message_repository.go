package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"notebookrag/internal/model"
)

// timestampStep is the smallest created_at increment every supported driver keeps.
const timestampStep = time.Millisecond

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) WithTx(tx *gorm.DB) *MessageRepository {
	return &MessageRepository{db: tx}
}

// Create appends message. CreatedAt is forced strictly after the newest
// message of the same session so that created_at alone orders the log.
func (r *MessageRepository) Create(ctx context.Context, message *model.ChatMessage) error {
	db := r.db.WithContext(ctx)

	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	message.CreatedAt = message.CreatedAt.UTC().Truncate(timestampStep)

	var last model.ChatMessage
	err := db.Select("created_at").
		Where("session_id = ?", message.SessionID).
		Order("created_at DESC").
		Take(&last).Error
	switch {
	case err == nil:
		if !message.CreatedAt.After(last.CreatedAt) {
			message.CreatedAt = last.CreatedAt.UTC().Add(timestampStep)
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("read last message failed: %w", err)
	}

	if err := db.Create(message).Error; err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

// Recent returns up to limit newest messages of an active session, oldest first.
func (r *MessageRepository) Recent(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		return []model.ChatMessage{}, nil
	}

	var messages []model.ChatMessage
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Where("EXISTS (SELECT 1 FROM chat_sessions s WHERE s.id = chat_messages.session_id AND s.is_active = ?)", true).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list recent messages failed: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ListBySessionID returns the full transcript oldest first.
func (r *MessageRepository) ListBySessionID(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return messages, nil
}

func (r *MessageRepository) CountBySessionID(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&model.ChatMessage{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count messages failed: %w", err)
	}
	return count, nil
}

func (r *MessageRepository) DeleteBySessionID(ctx context.Context, sessionID string) (int64, error) {
	result := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&model.ChatMessage{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete messages by session failed: %w", result.Error)
	}
	return result.RowsAffected, nil
}
