package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notebookrag/internal/model"
)

func TestSessionFileRepositoryLinkIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionFileRepository(openTestDB(t))

	require.NoError(t, repo.Link(ctx, "s1", "thermo.pdf"))
	require.NoError(t, repo.Link(ctx, "s1", "thermo.pdf"))
	require.NoError(t, repo.Link(ctx, "s1", "optics.pdf"))
	require.NoError(t, repo.Link(ctx, "s2", "thermo.pdf"))

	paths, err := repo.ListPaths(ctx, "s1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"thermo.pdf", "optics.pdf"}, paths)

	ok, err := repo.Exists(ctx, "s2", "optics.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Delete(ctx, "s1", "optics.pdf"))
	require.NoError(t, repo.DeleteBySessionID(ctx, "s2"))

	paths, err = repo.ListPaths(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"thermo.pdf"}, paths)
	paths, err = repo.ListPaths(ctx, "s2")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestChunkRepositoryStatisticsOnlyCountsLinkedFiles(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	files := NewSessionFileRepository(db)
	chunks := NewChunkRepository(db)

	require.NoError(t, files.Link(ctx, "s1", "thermo.pdf"))
	require.NoError(t, files.Link(ctx, "s1", "optics.pdf"))
	require.NoError(t, chunks.CreateBatch(ctx, []model.DocChunk{
		{ID: uuid.NewString(), SessionID: "s1", RelativePath: "thermo.pdf", Size: 100, Chunk: "a"},
		{ID: uuid.NewString(), SessionID: "s1", RelativePath: "thermo.pdf", Size: 50, Chunk: "b"},
		{ID: uuid.NewString(), SessionID: "s1", RelativePath: "optics.pdf", Size: 7, Chunk: "c"},
		{ID: uuid.NewString(), SessionID: "s1", RelativePath: "orphan.pdf", Size: 999, Chunk: "d"},
		{ID: uuid.NewString(), SessionID: "s2", RelativePath: "thermo.pdf", Size: 1000, Chunk: "e"},
	}))

	stats, err := chunks.Statistics(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"thermo.pdf": 150, "optics.pdf": 7}, stats)

	require.NoError(t, chunks.DeleteByFile(ctx, "s1", "thermo.pdf"))
	stats, err = chunks.Statistics(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"optics.pdf": 7}, stats)
}

func TestRagSourceRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewRagSourceRepository(openTestDB(t))

	err := repo.CreateBatch(ctx, []model.RagSource{
		{ID: uuid.NewString(), MessageID: "m1", SessionID: "s1", DocumentPath: "a.pdf", RelevanceScore: 1.5},
	})
	assert.Error(t, err)

	require.NoError(t, repo.CreateBatch(ctx, []model.RagSource{
		{ID: uuid.NewString(), MessageID: "m1", SessionID: "s1", DocumentPath: "a.pdf", RelevanceScore: 0.9},
		{ID: uuid.NewString(), MessageID: "m1", SessionID: "s1", DocumentPath: "b.pdf", RelevanceScore: 0.5},
		{ID: uuid.NewString(), MessageID: "m2", SessionID: "s1", DocumentPath: "a.pdf", RelevanceScore: 0.7},
	}))

	sources, err := repo.ListByMessageID(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "a.pdf", sources[0].DocumentPath)

	unique, avg, err := repo.SourceStats(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), unique)
	assert.InDelta(t, 0.7, avg, 1e-9)

	unique, avg, err = repo.SourceStats(ctx, "none")
	require.NoError(t, err)
	assert.Zero(t, unique)
	assert.Zero(t, avg)

}
