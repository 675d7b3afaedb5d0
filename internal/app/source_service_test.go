package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notebookrag/internal/pkg/apperr"
	"notebookrag/internal/rag"
	"notebookrag/internal/stage"
)

// brokenRemoveStage fails every Remove and delegates everything else.
type brokenRemoveStage struct {
	*stage.LocalGateway
}

func (brokenRemoveStage) Remove(context.Context, string, string) error {
	return errors.New("bucket unreachable")
}

func (f *fixture) assertNotInScope(t *testing.T, sessionID, name string) {
	t.Helper()
	ctx := context.Background()
	paths, err := f.sources.FilesForSession(ctx, sessionID)
	require.NoError(t, err)
	assert.NotContains(t, paths, name)

	stats, err := f.sources.ChunkStatistics(ctx, sessionID)
	require.NoError(t, err)
	assert.NotContains(t, stats, name)

	files, err := f.stage.List(ctx, sessionID)
	require.NoError(t, err)
	for _, file := range files {
		assert.NotEqual(t, name, file.Name)
	}
}

func TestUploadLinksAndIndexes(t *testing.T) {
	f := newFixture(t, rag.WindowExcludeLatest)
	ctx := context.Background()
	s := f.createSession(t, "Physics Notes")

	f.upload(t, s.ID, "thermo.txt", "Entropy always increases in an isolated system.")
	f.upload(t, s.ID, "thermo.txt", "Heat flows from hot to cold.")

	paths, err := f.sources.FilesForSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"thermo.txt"}, paths)

	stats, err := f.sources.ChunkStatistics(ctx, s.ID)
	require.NoError(t, err)
	assert.EqualValues(t, len("Heat flows from hot to cold."), stats["thermo.txt"])

	stageStats, err := f.sources.StageStats(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stageStats.TotalFiles)

	require.NotEmpty(t, f.indexer.indexed)
	assert.Equal(t, s.ID, f.indexer.indexed[0].SessionID)
}

func TestUploadRejectsUnknownSessionAndEmptyText(t *testing.T) {
	f := newFixture(t, rag.WindowExcludeLatest)
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(p, []byte("content"), 0o600))

	_, err := f.sources.UploadFile(ctx, UploadFileInput{SessionID: "missing", LocalPath: p})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	s := f.createSession(t, "Physics Notes")
	blank := filepath.Join(t.TempDir(), "blank.txt")
	require.NoError(t, os.WriteFile(blank, []byte("   "), 0o600))
	_, err = f.sources.UploadFile(ctx, UploadFileInput{SessionID: s.ID, LocalPath: blank})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	f.assertNotInScope(t, s.ID, "blank.txt")
}

func TestUploadUnreadableDocumentLeavesNothingBehind(t *testing.T) {
	f := newFixture(t, rag.WindowExcludeLatest)
	ctx := context.Background()
	s := f.createSession(t, "Physics Notes")

	p := filepath.Join(t.TempDir(), "slides.docx")
	require.NoError(t, os.WriteFile(p, []byte{0xff, 0xfe, 0x00, 0x81, 0x82}, 0o600))
	_, err := f.sources.UploadFile(ctx, UploadFileInput{SessionID: s.ID, LocalPath: p})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	f.assertNotInScope(t, s.ID, "slides.docx")
}

func TestUploadIndexFailureLeavesNothingBehind(t *testing.T) {
	f := newFixture(t, rag.WindowExcludeLatest)
	ctx := context.Background()
	s := f.createSession(t, "Physics Notes")
	f.indexer.indexError = errors.New("weaviate down")

	p := filepath.Join(t.TempDir(), "thermo.txt")
	require.NoError(t, os.WriteFile(p, []byte("Entropy always increases."), 0o600))
	_, err := f.sources.UploadFile(ctx, UploadFileInput{SessionID: s.ID, LocalPath: p})
	assert.ErrorIs(t, err, apperr.ErrExternalService)
	f.assertNotInScope(t, s.ID, "thermo.txt")
}

func TestLinkFileIsIdempotent(t *testing.T) {
	f := newFixture(t, rag.WindowExcludeLatest)
	ctx := context.Background()
	s := f.createSession(t, "Physics Notes")

	require.NoError(t, f.sources.LinkFile(ctx, s.ID, "thermo.pdf"))
	require.NoError(t, f.sources.LinkFile(ctx, s.ID, "thermo.pdf"))

	paths, err := f.sources.FilesForSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"thermo.pdf"}, paths)

	require.NoError(t, f.sources.UnlinkSession(ctx, s.ID))
	paths, err = f.sources.FilesForSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestSourceURLRequiresLinkedFile(t *testing.T) {
	f := newFixture(t, rag.WindowExcludeLatest)
	ctx := context.Background()
	s := f.createSession(t, "Physics Notes")

	_, err := f.sources.SourceURL(ctx, s.ID, "thermo.pdf", time.Minute)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, f.sources.LinkFile(ctx, s.ID, "thermo.pdf"))
	url, err := f.sources.SourceURL(ctx, s.ID, "thermo.pdf", 0)
	require.NoError(t, err)
	assert.Contains(t, url, "/api/v1/stage/"+s.ID+"/thermo.pdf?expires=")
}

func TestRemoveFile(t *testing.T) {
	f := newFixture(t, rag.WindowExcludeLatest)
	ctx := context.Background()
	s := f.createSession(t, "Physics Notes")
	f.upload(t, s.ID, "thermo.txt", "Entropy.")
	f.upload(t, s.ID, "optics.txt", "Lenses.")

	require.NoError(t, f.sources.RemoveFile(ctx, s.ID, "thermo.txt"))

	paths, err := f.sources.FilesForSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"optics.txt"}, paths)

	stats, err := f.sources.ChunkStatistics(ctx, s.ID)
	require.NoError(t, err)
	assert.NotContains(t, stats, "thermo.txt")

	files, err := f.stage.List(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "optics.txt", files[0].Name)
	assert.Contains(t, f.indexer.deletedFiles, s.ID+"/thermo.txt")

	err = f.sources.RemoveFile(ctx, s.ID, "thermo.txt")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRemoveFileCanBeRetriedAfterStageFailure(t *testing.T) {
	f := newFixture(t, rag.WindowExcludeLatest)
	ctx := context.Background()
	s := f.createSession(t, "Physics Notes")
	f.upload(t, s.ID, "thermo.txt", "Entropy.")

	indexDeletes := len(f.indexer.deletedFiles)
	broken := NewSourceService(f.stores, brokenRemoveStage{f.stage}, f.indexer, nil, nil)
	err := broken.RemoveFile(ctx, s.ID, "thermo.txt")
	assert.ErrorIs(t, err, apperr.ErrExternalService)
	// the index cleanup still ran
	require.Len(t, f.indexer.deletedFiles, indexDeletes+1)
	assert.Equal(t, s.ID+"/thermo.txt", f.indexer.deletedFiles[indexDeletes])

	paths, err := f.sources.FilesForSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"thermo.txt"}, paths)

	require.NoError(t, f.sources.RemoveFile(ctx, s.ID, "thermo.txt"))
	f.assertNotInScope(t, s.ID, "thermo.txt")
}
