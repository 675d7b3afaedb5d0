// Package retrieval runs scoped semantic search over indexed document chunks.
package retrieval

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"notebookrag/internal/model"
)

const DefaultTopK = 4

// Columns returned for every hit.
var Columns = []string{"chunk", "relative_path", "category"}

var tracer = otel.Tracer("notebookrag/retrieval")

// Scope restricts a search to the listed files of one session namespace.
type Scope struct {
	Namespace string
	Paths     []string
}

type Fragment struct {
	Chunk        string  `json:"chunk"`
	RelativePath string  `json:"relative_path"`
	Category     string  `json:"category,omitempty"`
	Score        float64 `json:"relevance_score"`
}

type Result struct {
	Fragments []Fragment `json:"fragments"`
	Sources   []string   `json:"sources"`
}

// Query is what a Searcher receives. Filter matches a hit when its namespace
// equals Filter.Namespace and its relative path equals any of Filter.Paths.
type Query struct {
	Text    string
	Columns []string
	Limit   int
	Filter  Scope
}

type Searcher interface {
	Search(ctx context.Context, query Query) ([]Fragment, error)
}

// Indexer keeps the search backend in sync with stored chunks.
type Indexer interface {
	Index(ctx context.Context, chunks []model.DocChunk) error
	DeleteFile(ctx context.Context, namespace, relativePath string) error
	DeleteNamespace(ctx context.Context, namespace string) error
}

type Engine struct {
	searcher Searcher
	topK     int
	log      *zap.Logger
}

func NewEngine(searcher Searcher, topK int, log *zap.Logger) *Engine {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{searcher: searcher, topK: topK, log: log.Named("retrieval")}
}

// Retrieve searches only the files in scope. An empty scope never reaches the
// searcher and yields an empty result.
func (e *Engine) Retrieve(ctx context.Context, scope Scope, query string) (Result, error) {
	ctx, span := tracer.Start(ctx, "retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", scope.Namespace),
		attribute.Int("scope.files", len(scope.Paths)),
	)

	if len(scope.Paths) == 0 {
		e.log.Debug("empty file scope, skipping search", zap.String("session_id", scope.Namespace))
		return Result{Fragments: []Fragment{}, Sources: []string{}}, nil
	}

	hits, err := e.searcher.Search(ctx, Query{
		Text:    query,
		Columns: Columns,
		Limit:   e.topK,
		Filter:  Scope{Namespace: scope.Namespace, Paths: dedupe(scope.Paths)},
	})
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("search chunks failed: %w", err)
	}

	allowed := make(map[string]struct{}, len(scope.Paths))
	for _, p := range scope.Paths {
		allowed[p] = struct{}{}
	}

	result := Result{Fragments: make([]Fragment, 0, len(hits)), Sources: []string{}}
	seen := make(map[string]struct{}, len(hits))
	for _, hit := range hits {
		if _, ok := allowed[hit.RelativePath]; !ok {
			e.log.Warn("dropping hit outside file scope", zap.String("relative_path", hit.RelativePath))
			continue
		}
		if len(result.Fragments) == e.topK {
			break
		}
		hit.Score = ClampScore(hit.Score)
		result.Fragments = append(result.Fragments, hit)
		if _, dup := seen[hit.RelativePath]; !dup {
			seen[hit.RelativePath] = struct{}{}
			result.Sources = append(result.Sources, hit.RelativePath)
		}
	}
	span.SetAttributes(attribute.Int("fragments", len(result.Fragments)))
	return result, nil
}

// BestScores maps each source path to the highest score among its fragments.
func (r Result) BestScores() map[string]float64 {
	best := make(map[string]float64, len(r.Sources))
	for _, f := range r.Fragments {
		if cur, ok := best[f.RelativePath]; !ok || f.Score > cur {
			best[f.RelativePath] = f.Score
		}
	}
	return best
}

func ClampScore(score float64) float64 {
	switch {
	case score != score: // NaN
		return 0
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}

func dedupe(paths []string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
