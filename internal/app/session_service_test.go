package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notebookrag/internal/model"
	"notebookrag/internal/pkg/apperr"
	"notebookrag/internal/rag"
)

func TestCreatedSessionListsFirst(t *testing.T) {
	f := newFixture(t, rag.WindowExcludeLatest)
	f.sessions.now = clock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	f.createSession(t, "Chemistry")
	created := f.createSession(t, "Physics Notes")

	sessions, err := f.sessions.ListSessions(ctx, true)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, created.ID, sessions[0].ID)

	got, err := f.sessions.GetSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Physics Notes", got.Title)
	assert.True(t, got.IsActive)
}

func TestCreateSessionRejectsBlankTitle(t *testing.T) {
	f := newFixture(t, rag.WindowExcludeLatest)
	_, err := f.sessions.CreateSession(context.Background(), CreateSessionInput{Title: "   "})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUpdateSession(t *testing.T) {
	f := newFixture(t, rag.WindowExcludeLatest)
	f.sessions.now = clock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	s := f.createSession(t, "Draft")

	ok, err := f.sessions.UpdateSession(ctx, UpdateSessionInput{ID: s.ID})
	require.NoError(t, err)
	assert.False(t, ok)

	blank := " "
	_, err = f.sessions.UpdateSession(ctx, UpdateSessionInput{ID: s.ID, Title: &blank})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	title, category := "Thermodynamics", "physics"
	ok, err = f.sessions.UpdateSession(ctx, UpdateSessionInput{ID: s.ID, Title: &title, Category: &category})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := f.sessions.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Thermodynamics", got.Title)
	require.NotNil(t, got.Category)
	assert.Equal(t, "physics", *got.Category)
	assert.True(t, got.UpdatedAt.After(s.UpdatedAt))

	_, err = f.sessions.UpdateSession(ctx, UpdateSessionInput{ID: "missing", Title: &title})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSoftDeleteSession(t *testing.T) {
	f := newFixture(t, rag.WindowExcludeLatest)
	ctx := context.Background()
	s := f.createSession(t, "Physics Notes")
	_, err := f.messages.Append(ctx, AppendMessageInput{SessionID: s.ID, Role: model.RoleUser, Content: "hello"})
	require.NoError(t, err)

	ok, err := f.sessions.SoftDeleteSession(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	active, err := f.sessions.ListSessions(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := f.sessions.ListSessions(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	recent, err := f.messages.Recent(ctx, s.ID, 7)
	require.NoError(t, err)
	assert.Empty(t, recent)

	_, err = f.sessions.GetSession(ctx, s.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	ok, err = f.sessions.SoftDeleteSession(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.sessions.SoftDeleteSession(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteSessionCascades(t *testing.T) {
	f := newFixture(t, rag.WindowExcludeLatest)
	ctx := context.Background()
	s := f.createSession(t, "Physics Notes")
	keep := f.createSession(t, "Chemistry")

	f.upload(t, s.ID, "thermo.txt", "Entropy always increases in an isolated system.")
	f.upload(t, keep.ID, "acids.txt", "Acids donate protons.")
	_, err := f.messages.Append(ctx, AppendMessageInput{SessionID: s.ID, Role: model.RoleUser, Content: "hi"})
	require.NoError(t, err)

	require.NoError(t, f.sessions.DeleteSession(ctx, s.ID))

	active, err := f.sessions.ListSessions(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, keep.ID, active[0].ID)

	recent, err := f.messages.Recent(ctx, s.ID, 7)
	require.NoError(t, err)
	assert.Empty(t, recent)

	files, err := f.stage.List(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, files)

	paths, err := f.sources.FilesForSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, paths)

	count, err := f.stores.Messages.CountBySessionID(ctx, s.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Contains(t, f.indexer.deletedSpaces, s.ID)

	// the other notebook is untouched
	kept, err := f.stage.List(ctx, keep.ID)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
	stats, err := f.sources.ChunkStatistics(ctx, keep.ID)
	require.NoError(t, err)
	assert.Contains(t, stats, "acids.txt")

	// re-issuing the delete is accepted
	require.NoError(t, f.sessions.DeleteSession(ctx, s.ID))

	err = f.sessions.DeleteSession(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteSessionReportsCleanupFailure(t *testing.T) {
	f := newFixture(t, rag.WindowExcludeLatest)
	ctx := context.Background()
	s := f.createSession(t, "Physics Notes")
	f.upload(t, s.ID, "thermo.txt", "heat flows from hot to cold")

	f.indexer.namespaceError = errors.New("weaviate unavailable")
	err := f.sessions.DeleteSession(ctx, s.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrExternalService)
	assert.ErrorIs(t, err, f.indexer.namespaceError)

	// the database part committed and the stage was still cleaned
	_, err = f.sessions.GetSession(ctx, s.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	files, err := f.stage.List(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, files)

	f.indexer.namespaceError = nil
	assert.NoError(t, f.sessions.DeleteSession(ctx, s.ID))
}

func TestSessionStats(t *testing.T) {
	f := newFixture(t, rag.WindowExcludeLatest)
	ctx := context.Background()
	s := f.createSession(t, "Physics Notes")
	f.upload(t, s.ID, "thermo.txt", "Entropy always increases.")
	_, err := f.messages.Append(ctx, AppendMessageInput{SessionID: s.ID, Role: model.RoleUser, Content: "q"})
	require.NoError(t, err)

	stats, err := f.sessions.SessionStats(ctx, s.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.MessageCount)
	assert.Equal(t, 1, stats.FileCount)
	assert.EqualValues(t, len("Entropy always increases."), stats.ChunkBytes["thermo.txt"])
	assert.Zero(t, stats.UniqueSources)
}
