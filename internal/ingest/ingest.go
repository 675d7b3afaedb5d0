// Package ingest turns staged source files into indexed chunks.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"notebookrag/internal/model"
	"notebookrag/internal/observability"
	"notebookrag/internal/pkg/pdfextract"
	"notebookrag/internal/retrieval"
	"notebookrag/internal/stage"
)

const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 64
)

var (
	ErrNoText = errors.New("document has no extractable text")
	// ErrUnsupported marks content that is neither a readable PDF nor UTF-8 text.
	ErrUnsupported = errors.New("unsupported document format")

	tracer = otel.Tracer("notebookrag/ingest")

	markdownSeparators = []string{"\n## ", "\n### ", "\n\n", "\n", " ", ""}
	defaultSeparators  = []string{"\n\n", "\n", ". ", " ", ""}
)

// ChunkStore persists chunk rows. Satisfied by repository.ChunkRepository.
type ChunkStore interface {
	CreateBatch(ctx context.Context, chunks []model.DocChunk) error
	DeleteByFile(ctx context.Context, sessionID, relativePath string) error
}

type Options struct {
	ChunkSize    int
	ChunkOverlap int
	// ScopedURLTTL bounds the presigned link stored on each chunk row.
	ScopedURLTTL time.Duration
}

type Service struct {
	stage   stage.Gateway
	chunks  ChunkStore
	indexer retrieval.Indexer
	opts    Options
	metrics *observability.Metrics
	log     *zap.Logger
}

func NewService(gw stage.Gateway, chunks ChunkStore, indexer retrieval.Indexer, opts Options, metrics *observability.Metrics, log *zap.Logger) *Service {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = DefaultChunkOverlap
	}
	if opts.ScopedURLTTL <= 0 {
		opts.ScopedURLTTL = 360 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		stage:   gw,
		chunks:  chunks,
		indexer: indexer,
		opts:    opts,
		metrics: metrics,
		log:     log.Named("ingest"),
	}
}

// Process reads the staged file, replaces any earlier chunks of the same file
// and indexes the new ones. It returns the number of chunks written.
func (s *Service) Process(ctx context.Context, job model.IngestJob) (int, error) {
	ctx, span := tracer.Start(ctx, "ingest")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", job.SessionID), attribute.String("file", job.FileName))

	n, err := s.process(ctx, job)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveIngest("failed", 0)
		return 0, err
	}
	s.metrics.ObserveIngest("ok", n)
	s.log.Info("document ingested",
		zap.String("session_id", job.SessionID),
		zap.String("file", job.FileName),
		zap.Int("chunks", n),
	)
	return n, nil
}

func (s *Service) process(ctx context.Context, job model.IngestJob) (int, error) {
	rc, err := s.stage.Open(ctx, job.SessionID, job.FileName)
	if err != nil {
		return 0, fmt.Errorf("open staged file failed: %w", err)
	}
	raw, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return 0, fmt.Errorf("read staged file failed: %w", err)
	}

	text, err := ExtractText(job.FileName, raw)
	if err != nil {
		return 0, err
	}
	pieces, err := s.split(job.FileName, text)
	if err != nil {
		return 0, err
	}

	objectPath, err := stage.ObjectPath(job.SessionID, job.FileName)
	if err != nil {
		return 0, err
	}
	scoped, err := s.stage.PresignedURL(ctx, objectPath, s.opts.ScopedURLTTL)
	if err != nil {
		s.log.Warn("presign chunk url failed", zap.String("path", objectPath), zap.Error(err))
		scoped = ""
	}
	fileURL := s.stage.URI(job.SessionID, job.FileName)

	rows := make([]model.DocChunk, len(pieces))
	for i, p := range pieces {
		rows[i] = model.DocChunk{
			ID:            uuid.NewString(),
			SessionID:     job.SessionID,
			RelativePath:  job.FileName,
			Size:          int64(len(p)),
			FileURL:       fileURL,
			ScopedFileURL: scoped,
			Chunk:         p,
			Category:      job.Category,
		}
	}

	if err := s.indexer.DeleteFile(ctx, job.SessionID, job.FileName); err != nil {
		return 0, fmt.Errorf("clear previous index entries failed: %w", err)
	}
	if err := s.chunks.DeleteByFile(ctx, job.SessionID, job.FileName); err != nil {
		return 0, err
	}
	if err := s.chunks.CreateBatch(ctx, rows); err != nil {
		return 0, err
	}
	if err := s.indexer.Index(ctx, rows); err != nil {
		if delErr := s.chunks.DeleteByFile(ctx, job.SessionID, job.FileName); delErr != nil {
			s.log.Warn("drop unindexed chunks failed",
				zap.String("session_id", job.SessionID),
				zap.String("file", job.FileName),
				zap.Error(delErr),
			)
		}
		return 0, fmt.Errorf("index chunks failed: %w", err)
	}
	return len(rows), nil
}

func (s *Service) split(fileName, text string) ([]string, error) {
	separators := defaultSeparators
	if ext := strings.ToLower(filepath.Ext(fileName)); ext == ".md" || ext == ".markdown" {
		separators = markdownSeparators
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.opts.ChunkSize),
		textsplitter.WithChunkOverlap(s.opts.ChunkOverlap),
		textsplitter.WithSeparators(separators),
	)
	pieces, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split document failed: %w", err)
	}

	out := pieces[:0]
	for _, p := range pieces {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoText
	}
	return out, nil
}

// Rejected reports whether err is caused by the document itself rather than
// by storage or the search backend.
func Rejected(err error) bool {
	return errors.Is(err, ErrNoText) || errors.Is(err, ErrUnsupported)
}

// ExtractText returns the text content of an uploaded file. PDFs go through
// the PDF extractor; anything else must be valid UTF-8 text.
func ExtractText(fileName string, raw []byte) (string, error) {
	var text string
	if pdfextract.IsPDF(raw) || strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		extracted, err := pdfextract.ExtractText(bytes.NewReader(raw))
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrUnsupported, fileName, err)
		}
		text = extracted
	} else {
		if !utf8.Valid(raw) {
			return "", fmt.Errorf("%w: %s is neither a pdf nor utf-8 text", ErrUnsupported, fileName)
		}
		text = string(raw)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}
