// Package weaviatestore backs retrieval with a Weaviate class whose vectorizer
// module embeds chunk text on write and query text on search.
package weaviatestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"notebookrag/internal/model"
	"notebookrag/internal/retrieval"
)

const (
	propChunk     = "chunk"
	propPath      = "relative_path"
	propCategory  = "category"
	propNamespace = "session_id"
)

type Store struct {
	client     *weaviate.Client
	className  string
	vectorizer string
}

func New(client *weaviate.Client, className, vectorizer string) *Store {
	if vectorizer == "" {
		vectorizer = "text2vec-openai"
	}
	return &Store{client: client, className: className, vectorizer: vectorizer}
}

// EnsureSchema creates the chunk class when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(s.className).Do(ctx)
	if err != nil {
		return fmt.Errorf("check weaviate class failed: %w", err)
	}
	if exists {
		return nil
	}

	// exact-match properties use field tokenization so Equal compares whole values
	field := func(name string) *models.Property {
		return &models.Property{Name: name, DataType: []string{"text"}, Tokenization: "field"}
	}
	class := &models.Class{
		Class:      s.className,
		Vectorizer: s.vectorizer,
		Properties: []*models.Property{
			{Name: propChunk, DataType: []string{"text"}},
			field(propPath),
			field(propCategory),
			field(propNamespace),
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create weaviate class failed: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, query retrieval.Query) ([]retrieval.Fragment, error) {
	fields := make([]graphql.Field, 0, len(query.Columns)+1)
	for _, col := range query.Columns {
		fields = append(fields, graphql.Field{Name: col})
	}
	fields = append(fields, graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}})

	nearText := s.client.GraphQL().NearTextArgBuilder().WithConcepts([]string{query.Text})

	resp, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithFields(fields...).
		WithWhere(scopeFilter(query.Filter)).
		WithNearText(nearText).
		WithLimit(query.Limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search error: %s", resp.Errors[0].Message)
	}
	return decodeHits(resp, s.className)
}

func (s *Store) Index(ctx context.Context, chunks []model.DocChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	objects := make([]*models.Object, len(chunks))
	for i, c := range chunks {
		objects[i] = &models.Object{
			Class: s.className,
			ID:    strfmt.UUID(c.ID),
			Properties: map[string]interface{}{
				propChunk:     c.Chunk,
				propPath:      c.RelativePath,
				propCategory:  c.Category,
				propNamespace: c.SessionID,
			},
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate batch import failed: %w", err)
	}
	var errs []error
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil {
			for _, e := range item.Result.Errors.Error {
				errs = append(errs, errors.New(e.Message))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("weaviate batch import failed: %w", errors.Join(errs...))
	}
	return nil
}

func (s *Store) DeleteFile(ctx context.Context, namespace, relativePath string) error {
	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{equal(propNamespace, namespace), equal(propPath, relativePath)})
	return s.deleteWhere(ctx, where)
}

func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	return s.deleteWhere(ctx, equal(propNamespace, namespace))
}

func (s *Store) deleteWhere(ctx context.Context, where *filters.WhereBuilder) error {
	if _, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.className).
		WithOutput("minimal").
		WithWhere(where).
		Do(ctx); err != nil {
		return fmt.Errorf("weaviate batch delete failed: %w", err)
	}
	return nil
}

// scopeFilter is namespace == ns AND (path == p1 OR path == p2 ...).
func scopeFilter(scope retrieval.Scope) *filters.WhereBuilder {
	var paths *filters.WhereBuilder
	if len(scope.Paths) == 1 {
		paths = equal(propPath, scope.Paths[0])
	} else {
		operands := make([]*filters.WhereBuilder, 0, len(scope.Paths))
		for _, p := range scope.Paths {
			operands = append(operands, equal(propPath, p))
		}
		paths = filters.Where().WithOperator(filters.Or).WithOperands(operands)
	}
	return filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{equal(propNamespace, scope.Namespace), paths})
}

func equal(prop, value string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{prop}).
		WithOperator(filters.Equal).
		WithValueText(value)
}

type hit struct {
	Chunk        string `json:"chunk"`
	RelativePath string `json:"relative_path"`
	Category     string `json:"category"`
	Additional   struct {
		Certainty *float64 `json:"certainty"`
	} `json:"_additional"`
}

func decodeHits(resp *models.GraphQLResponse, className string) ([]retrieval.Fragment, error) {
	if resp == nil {
		return nil, errors.New("nil weaviate response")
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal weaviate response failed: %w", err)
	}
	var parsed struct {
		Get map[string][]hit `json:"Get"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode weaviate response failed: %w", err)
	}

	hits := parsed.Get[className]
	out := make([]retrieval.Fragment, 0, len(hits))
	for _, h := range hits {
		score := 0.0
		if h.Additional.Certainty != nil {
			score = *h.Additional.Certainty
		}
		out = append(out, retrieval.Fragment{
			Chunk:        h.Chunk,
			RelativePath: h.RelativePath,
			Category:     h.Category,
			Score:        score,
		})
	}
	return out, nil
}
