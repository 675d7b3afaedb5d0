package ingest

import (
	"context"

	"notebookrag/internal/model"
)

// Publisher hands an ingestion job to whoever runs it.
type Publisher interface {
	Publish(ctx context.Context, job model.IngestJob) error
}

// InlinePublisher runs the job on the caller's goroutine.
type InlinePublisher struct {
	svc *Service
}

func NewInlinePublisher(svc *Service) *InlinePublisher {
	return &InlinePublisher{svc: svc}
}

func (p *InlinePublisher) Publish(ctx context.Context, job model.IngestJob) error {
	_, err := p.svc.Process(ctx, job)
	return err
}
