package retrieval

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	calls   int
	last    Query
	results []Fragment
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, q Query) ([]Fragment, error) {
	f.calls++
	f.last = q
	return f.results, f.err
}

func TestRetrieveEmptyScopeSkipsSearch(t *testing.T) {
	searcher := &fakeSearcher{results: []Fragment{{Chunk: "leak", RelativePath: "other.pdf"}}}
	engine := NewEngine(searcher, 4, nil)

	result, err := engine.Retrieve(context.Background(), Scope{Namespace: "s1"}, "What is capacitance?")
	require.NoError(t, err)

	assert.Zero(t, searcher.calls)
	assert.Empty(t, result.Fragments)
	assert.Empty(t, result.Sources)
}

func TestRetrieveBuildsScopedQuery(t *testing.T) {
	searcher := &fakeSearcher{results: []Fragment{
		{Chunk: "entropy rises", RelativePath: "thermo.pdf", Score: 0.91},
		{Chunk: "heat flows", RelativePath: "thermo.pdf", Score: 0.80},
	}}
	engine := NewEngine(searcher, 0, nil)

	result, err := engine.Retrieve(context.Background(), Scope{Namespace: "s1", Paths: []string{"thermo.pdf", "thermo.pdf"}}, "entropy?")
	require.NoError(t, err)

	assert.Equal(t, 1, searcher.calls)
	assert.Equal(t, DefaultTopK, searcher.last.Limit)
	assert.Equal(t, []string{"chunk", "relative_path", "category"}, searcher.last.Columns)
	assert.Equal(t, Scope{Namespace: "s1", Paths: []string{"thermo.pdf"}}, searcher.last.Filter)
	assert.Equal(t, "entropy?", searcher.last.Text)

	require.Len(t, result.Fragments, 2)
	for _, f := range result.Fragments {
		assert.Equal(t, "thermo.pdf", f.RelativePath)
	}
	assert.Equal(t, []string{"thermo.pdf"}, result.Sources)
}

func TestRetrieveClampsScoresAndKeepsOrder(t *testing.T) {
	searcher := &fakeSearcher{results: []Fragment{
		{Chunk: "a", RelativePath: "b.pdf", Score: 1.7},
		{Chunk: "b", RelativePath: "a.pdf", Score: -0.2},
		{Chunk: "c", RelativePath: "b.pdf", Score: math.NaN()},
		{Chunk: "d", RelativePath: "x.pdf", Score: 0.5},
	}}
	engine := NewEngine(searcher, 4, nil)

	result, err := engine.Retrieve(context.Background(), Scope{Namespace: "s1", Paths: []string{"a.pdf", "b.pdf"}}, "q")
	require.NoError(t, err)

	require.Len(t, result.Fragments, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{result.Fragments[0].Chunk, result.Fragments[1].Chunk, result.Fragments[2].Chunk})
	for _, f := range result.Fragments {
		assert.GreaterOrEqual(t, f.Score, 0.0)
		assert.LessOrEqual(t, f.Score, 1.0)
	}
	assert.Equal(t, []string{"b.pdf", "a.pdf"}, result.Sources)
	assert.Equal(t, map[string]float64{"b.pdf": 1, "a.pdf": 0}, result.BestScores())
}

func TestRetrieveCapsAtTopK(t *testing.T) {
	hits := make([]Fragment, 6)
	for i := range hits {
		hits[i] = Fragment{Chunk: "c", RelativePath: "a.pdf", Score: 0.5}
	}
	engine := NewEngine(&fakeSearcher{results: hits}, 4, nil)

	result, err := engine.Retrieve(context.Background(), Scope{Namespace: "s1", Paths: []string{"a.pdf"}}, "q")
	require.NoError(t, err)
	assert.Len(t, result.Fragments, 4)
}

func TestRetrieveWrapsSearchError(t *testing.T) {
	boom := errors.New("search down")
	engine := NewEngine(&fakeSearcher{err: boom}, 4, nil)

	_, err := engine.Retrieve(context.Background(), Scope{Namespace: "s1", Paths: []string{"a.pdf"}}, "q")
	assert.ErrorIs(t, err, boom)
}
