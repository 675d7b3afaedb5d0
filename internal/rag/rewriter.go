// Package rag holds the prompt-level steps of a question turn: folding chat
// history into a standalone query and generating a grounded answer.
package rag

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"notebookrag/internal/model"
)

var tracer = otel.Tracer("notebookrag/rag")

// Completer is a single-prompt text completion backend.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Rewriter struct {
	llm Completer
	log *zap.Logger
}

func NewRewriter(llm Completer, log *zap.Logger) *Rewriter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Rewriter{llm: llm, log: log.Named("rewriter")}
}

// Rewrite returns a standalone query and whether the backend produced it.
// Empty history, backend failure or an empty reply yield the question as is.
func (r *Rewriter) Rewrite(ctx context.Context, history []model.ChatMessage, question string) (string, bool) {
	if len(history) == 0 {
		return question, false
	}
	ctx, span := tracer.Start(ctx, "rewrite")
	defer span.End()

	out, err := r.llm.Complete(ctx, fmt.Sprintf(rewritePrompt, formatHistory(history), question))
	if err != nil {
		span.RecordError(err)
		r.log.Warn("query rewrite failed, using original question", zap.Error(err))
		return question, false
	}
	out = strings.Trim(strings.TrimSpace(out), `"`)
	if out == "" {
		r.log.Warn("query rewrite returned empty output, using original question")
		return question, false
	}
	return out, true
}
