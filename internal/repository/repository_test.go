package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"notebookrag/internal/model"
	"notebookrag/internal/platform/database"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.New(context.Background(), "sqlite", ":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func seedSession(t *testing.T, repo *SessionRepository, title string, at time.Time) *model.ChatSession {
	t.Helper()
	session := &model.ChatSession{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: at,
		UpdatedAt: at,
		IsActive:  true,
	}
	require.NoError(t, repo.Create(context.Background(), session))
	return session
}
