// Package app holds the use cases behind the HTTP API: notebook sessions,
// their messages and sources, and the question turn.
package app

import (
	"context"
	"time"

	"notebookrag/internal/model"
)

// HistoryCache caches the most recent message window of a session.
type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, bool, error)
	SetHistory(ctx context.Context, sessionID string, messages []model.ChatMessage) error
	DeleteHistory(ctx context.Context, sessionID string) error
	MarkDirty(ctx context.Context, sessionID string) error
	IsDirty(ctx context.Context, sessionID string) (bool, error)
}

func utcNow() time.Time {
	return time.Now().UTC()
}
