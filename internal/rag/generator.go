package rag

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"notebookrag/internal/retrieval"
)

type Generator struct {
	llm Completer
}

func NewGenerator(llm Completer) *Generator {
	return &Generator{llm: llm}
}

// Complete answers query strictly from fragments. With no fragments the model
// is still asked, so it can state that the information is missing.
func (g *Generator) Complete(ctx context.Context, query string, fragments []retrieval.Fragment) (string, error) {
	ctx, span := tracer.Start(ctx, "generate", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.Int("fragments", len(fragments)))

	answer, err := g.llm.Complete(ctx, fmt.Sprintf(answerPrompt, formatContext(fragments), query))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		return "", fmt.Errorf("generate answer failed: %w", err)
	}
	return answer, nil
}
